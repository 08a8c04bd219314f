package build

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"gpbreed/internal/diag"
	"gpbreed/internal/funcset"
	"gpbreed/internal/params"
)

// DefaultBase is the shared fallback base for builder parameters.
const DefaultBase params.Parameter = "build"

var ErrBuilderNotFound = errors.New("builder not found")

// Options carries collaborators that cannot come from parameters.
type Options struct {
	Sink diag.Sink
	// Tables supplies count tables to Uniform, for example from a store
	// cache. Nil builds a fresh table.
	Tables func(fs *funcset.FunctionSet, maxSize int) (*CountTable, error)
}

// Factory builds a configured builder from parameters under base.
type Factory func(db *params.Database, base params.Parameter, fs *funcset.FunctionSet, opts Options) (Builder, error)

var builderRegistry = struct {
	mu sync.RWMutex
	m  map[string]Factory
}{
	m: map[string]Factory{
		"grow":          kozaFactory("grow"),
		"full":          kozaFactory("full"),
		"half":          kozaFactory("half"),
		"ptc1":          ptc1Factory,
		"ptc2":          ptc2Factory,
		"uniform":       uniformFactory,
		"random-branch": randomBranchFactory,
		"rand-tree":     randTreeFactory,
	},
}

func Register(name string, f Factory) error {
	if name == "" || f == nil {
		return errors.New("builder name and factory are required")
	}
	builderRegistry.mu.Lock()
	defer builderRegistry.mu.Unlock()
	if _, ok := builderRegistry.m[name]; ok {
		return fmt.Errorf("builder already registered: %s", name)
	}
	builderRegistry.m[name] = f
	return nil
}

func Kinds() []string {
	builderRegistry.mu.RLock()
	defer builderRegistry.mu.RUnlock()
	out := make([]string, 0, len(builderRegistry.m))
	for k := range builderRegistry.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// FromParams reads base.type (falling back to build.type) and delegates to
// the registered factory. Every key falls back to the same key under
// DefaultBase.
func FromParams(db *params.Database, base params.Parameter, fs *funcset.FunctionSet, opts Options) (Builder, error) {
	kind, ok := db.String(base.Push("type"), DefaultBase.Push("type"))
	if !ok {
		return nil, fmt.Errorf("%w: %s", params.ErrMissing, base.Push("type"))
	}
	builderRegistry.mu.RLock()
	f, ok := builderRegistry.m[kind]
	builderRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBuilderNotFound, kind)
	}
	return f(db, base, fs, opts)
}

func def(key string) params.Parameter { return DefaultBase.Push(key) }

func kozaFactory(kind string) Factory {
	return func(db *params.Database, base params.Parameter, fs *funcset.FunctionSet, opts Options) (Builder, error) {
		minDepth, err := db.IntOr(base.Push("min-depth"), def("min-depth"), 2)
		if err != nil {
			return nil, err
		}
		maxDepth, err := db.IntOr(base.Push("max-depth"), def("max-depth"), 6)
		if err != nil {
			return nil, err
		}
		depth := KozaDepth{MinDepth: minDepth, MaxDepth: maxDepth}
		switch kind {
		case "grow":
			return NewGrow(fs, opts.Sink, depth)
		case "full":
			return NewFull(fs, opts.Sink, depth)
		}
		growp, err := db.Probability(base.Push("growp"), def("growp"), 0.5)
		if err != nil {
			return nil, err
		}
		return NewHalf(fs, opts.Sink, depth, growp)
	}
}

// SizesFromParams reads either base.size (a list of per-size weights, size 1
// first) or base.min-size and base.max-size. It returns the zero
// distribution when neither is present.
func SizesFromParams(db *params.Database, base params.Parameter) (SizeDistribution, error) {
	weights, ok, err := db.Floats(base.Push("size"), def("size"))
	if err != nil {
		return SizeDistribution{}, err
	}
	if ok {
		return NewSizeTable(weights)
	}
	if !db.Exists(base.Push("min-size"), def("min-size")) && !db.Exists(base.Push("max-size"), def("max-size")) {
		return SizeDistribution{}, nil
	}
	minSize, err := db.IntWithMin(base.Push("min-size"), def("min-size"), 1)
	if err != nil {
		return SizeDistribution{}, err
	}
	maxSize, err := db.IntWithMin(base.Push("max-size"), def("max-size"), minSize)
	if err != nil {
		return SizeDistribution{}, err
	}
	return NewSizeRange(minSize, maxSize)
}

func ptc1Factory(db *params.Database, base params.Parameter, fs *funcset.FunctionSet, opts Options) (Builder, error) {
	expected, err := db.IntWithMin(base.Push("expected-size"), def("expected-size"), 1)
	if err != nil {
		return nil, err
	}
	maxDepth, err := db.IntOr(base.Push("max-depth"), def("max-depth"), 17)
	if err != nil {
		return nil, err
	}
	return NewPTC1(fs, opts.Sink, expected, maxDepth)
}

func ptc2Factory(db *params.Database, base params.Parameter, fs *funcset.FunctionSet, opts Options) (Builder, error) {
	maxDepth, err := db.IntOr(base.Push("max-depth"), def("max-depth"), 17)
	if err != nil {
		return nil, err
	}
	sizes, err := SizesFromParams(db, base)
	if err != nil {
		return nil, err
	}
	return NewPTC2(fs, opts.Sink, maxDepth, sizes)
}

func randomBranchFactory(db *params.Database, base params.Parameter, fs *funcset.FunctionSet, opts Options) (Builder, error) {
	maxDepth, err := db.IntOr(base.Push("max-depth"), def("max-depth"), 17)
	if err != nil {
		return nil, err
	}
	sizes, err := SizesFromParams(db, base)
	if err != nil {
		return nil, err
	}
	return NewRandomBranch(fs, opts.Sink, maxDepth, sizes)
}

func randTreeFactory(db *params.Database, base params.Parameter, fs *funcset.FunctionSet, opts Options) (Builder, error) {
	sizes, err := SizesFromParams(db, base)
	if err != nil {
		return nil, err
	}
	return NewRandTree(fs, opts.Sink, sizes)
}

func uniformFactory(db *params.Database, base params.Parameter, fs *funcset.FunctionSet, opts Options) (Builder, error) {
	sizes, err := SizesFromParams(db, base)
	if err != nil {
		return nil, err
	}
	if !sizes.Configured() {
		return nil, fmt.Errorf("%w: %s needs size or min-size/max-size", ErrNoSizeDistribution, base)
	}
	trueDist, err := db.BoolOr(base.Push("true-dist"), def("true-dist"), false)
	if err != nil {
		return nil, err
	}
	var table *CountTable
	if opts.Tables != nil {
		if table, err = opts.Tables(fs, sizes.MaxSize); err != nil {
			return nil, err
		}
	}
	return NewUniform(fs, opts.Sink, table, sizes, trueDist)
}
