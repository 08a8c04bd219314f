package platform

import (
	"context"
	"fmt"
	"strings"

	"gpbreed/internal/build"
	"gpbreed/internal/diag"
	"gpbreed/internal/funcset"
	"gpbreed/internal/genotype"
	"gpbreed/internal/model"
	"gpbreed/internal/storage"
	"gpbreed/internal/vector"
)

// SnapshotID names the stored snapshot of a run's generation.
func SnapshotID(runID string, generation int) string {
	return fmt.Sprintf("%s:%d", runID, generation)
}

func (b *Breeder) snapshot(ctx context.Context, cfg Config, pop *model.Population) error {
	if b.store == nil {
		return nil
	}
	rec, err := Snapshot(cfg.RunID, cfg.FunctionSet, pop)
	if err != nil {
		return err
	}
	return b.store.SavePopulation(ctx, rec)
}

type treeRecorder interface {
	Record() model.IndividualRecord
}

type vectorRecorder interface {
	Record() (model.IndividualRecord, error)
}

// Snapshot converts a population to its persisted form.
func Snapshot(runID string, fs *funcset.FunctionSet, pop *model.Population) (model.PopulationRecord, error) {
	rec := model.PopulationRecord{
		VersionedRecord: storage.Versioned(),
		ID:              SnapshotID(runID, pop.Generation),
		RunID:           runID,
		Generation:      pop.Generation,
		Subpops:         make([][]model.IndividualRecord, len(pop.Subpops)),
	}
	if fs != nil {
		rec.FunctionSet = fs.Name
	}
	for s, sub := range pop.Subpops {
		rec.Subpops[s] = make([]model.IndividualRecord, len(sub))
		for i, ind := range sub {
			switch r := ind.(type) {
			case treeRecorder:
				rec.Subpops[s][i] = r.Record()
			case vectorRecorder:
				ir, err := r.Record()
				if err != nil {
					return model.PopulationRecord{}, err
				}
				rec.Subpops[s][i] = ir
			default:
				return model.PopulationRecord{}, fmt.Errorf("snapshot %s: unsupported individual %T", rec.ID, ind)
			}
		}
	}
	return rec, nil
}

// Restore rebuilds a population from a snapshot. Tree individuals need fs
// and vector individuals need species.
func Restore(rec model.PopulationRecord, fs *funcset.FunctionSet, species vector.AnySpecies) (*model.Population, error) {
	pop := &model.Population{Generation: rec.Generation, Subpops: make([]model.Subpopulation, len(rec.Subpops))}
	for s, sub := range rec.Subpops {
		pop.Subpops[s] = make(model.Subpopulation, len(sub))
		for i, ir := range sub {
			switch {
			case ir.Kind == genotype.Kind:
				if fs == nil {
					return nil, fmt.Errorf("restore %s: function set is required for trees", rec.ID)
				}
				ind, err := genotype.FromRecord(fs, ir)
				if err != nil {
					return nil, err
				}
				pop.Subpops[s][i] = ind
			case strings.HasPrefix(ir.Kind, vector.RecordKind("")):
				if species == nil {
					return nil, fmt.Errorf("restore %s: species is required for %s", rec.ID, ir.Kind)
				}
				ind, err := species.FromRecord(ir)
				if err != nil {
					return nil, err
				}
				pop.Subpops[s][i] = ind
			default:
				return nil, fmt.Errorf("restore %s: unknown individual kind %q", rec.ID, ir.Kind)
			}
		}
	}
	return pop, nil
}

// TableCache returns a build.Options.Tables hook that loads count tables from
// store and saves freshly computed ones back.
func TableCache(ctx context.Context, store storage.Store, sink diag.Sink) func(*funcset.FunctionSet, int) (*build.CountTable, error) {
	sink = diag.OrDiscard(sink)
	return func(fs *funcset.FunctionSet, maxSize int) (*build.CountTable, error) {
		key := build.CountTableKey(fs, maxSize)
		rec, ok, err := store.GetCountTable(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			sink.Message("count table loaded", "key", key, "function_set", fs.Name, "max_size", maxSize)
			return build.CountTableFromRecord(fs, rec)
		}

		table, err := build.NewCountTable(fs, maxSize)
		if err != nil {
			return nil, err
		}
		fresh := table.Record()
		fresh.VersionedRecord = storage.Versioned()
		if err := store.SaveCountTable(ctx, fresh); err != nil {
			return nil, err
		}
		sink.Message("count table saved", "key", key, "function_set", fs.Name, "max_size", maxSize)
		return table, nil
	}
}
