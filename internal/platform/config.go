package platform

import (
	"fmt"

	"gpbreed/internal/build"
	"gpbreed/internal/evo"
	"gpbreed/internal/funcset"
	"gpbreed/internal/gptype"
	"gpbreed/internal/params"
	"gpbreed/internal/vector"
)

// ConfigFromParams reads a run from parameters under base:
//
//	base.run-id, seed, threads, subpops, subpop-size, generations, snapshot
//	base.species.*       vector species; when absent the run breeds trees
//	base.functionset.*   function set (see funcset.FromParams)
//	base.tree-types      list of tree root type names
//	base.init.*          initialization builder (see build.FromParams)
//	base.pipe.*          breeding pipeline graph (see evo.FromParams)
//
// opts is handed to every builder the run creates.
func ConfigFromParams(db *params.Database, base params.Parameter, opts build.Options) (Config, error) {
	var (
		cfg Config
		err error
	)
	cfg.RunID = db.StringOr(base.Push("run-id"), "", "")
	seed, err := db.IntOr(base.Push("seed"), "", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.Seed = int64(seed)
	if cfg.Threads, err = db.IntOr(base.Push("threads"), "", 1); err != nil {
		return Config{}, err
	}
	if cfg.Subpops, err = db.IntOr(base.Push("subpops"), "", 1); err != nil {
		return Config{}, err
	}
	if cfg.SubpopSize, err = db.IntWithMin(base.Push("subpop-size"), "", 1); err != nil {
		return Config{}, err
	}
	if cfg.Generations, err = db.IntOr(base.Push("generations"), "", 0); err != nil {
		return Config{}, err
	}
	if cfg.Snapshot, err = db.BoolOr(base.Push("snapshot"), "", false); err != nil {
		return Config{}, err
	}

	env := evo.Env{Build: opts}
	if db.Exists(base.Push("species").Push("type"), "") {
		if cfg.Species, err = vector.SpeciesFromParams(db, base.Push("species")); err != nil {
			return Config{}, err
		}
	} else {
		if cfg.FunctionSet, err = funcset.FromParams(db, base.Push("functionset")); err != nil {
			return Config{}, err
		}
		if cfg.TreeTypes, err = treeTypes(db, base.Push("tree-types"), cfg.FunctionSet); err != nil {
			return Config{}, err
		}
		if cfg.Builder, err = build.FromParams(db, base.Push("init"), cfg.FunctionSet, opts); err != nil {
			return Config{}, err
		}
		env.FunctionSet = cfg.FunctionSet
	}

	if db.Exists(base.Push("pipe").Push("type"), "") {
		if cfg.Pipeline, err = evo.FromParams(db, base.Push("pipe"), env); err != nil {
			return Config{}, err
		}
	} else if cfg.Generations > 0 {
		return Config{}, fmt.Errorf("%w: %s", params.ErrMissing, base.Push("pipe").Push("type"))
	}
	return cfg, nil
}

func treeTypes(db *params.Database, p params.Parameter, fs *funcset.FunctionSet) ([]*gptype.Type, error) {
	names := db.Strings(p, "")
	out := make([]*gptype.Type, 0, len(names))
	for _, name := range names {
		typ, err := fs.Types.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, typ)
	}
	return out, nil
}
