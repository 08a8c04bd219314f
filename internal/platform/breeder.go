// Package platform runs breeding experiments: it initializes subpopulations
// with a builder or species, breeds them through a pipeline graph for a fixed
// number of generations and records structural statistics and snapshots.
package platform

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/stat"

	"gpbreed/internal/build"
	"gpbreed/internal/diag"
	"gpbreed/internal/evo"
	"gpbreed/internal/funcset"
	"gpbreed/internal/genotype"
	"gpbreed/internal/gptype"
	"gpbreed/internal/model"
	"gpbreed/internal/storage"
	"gpbreed/internal/vector"
)

var ErrInvalidRun = errors.New("invalid breeding run")

type Config struct {
	RunID string
	// FunctionSet, Builder and TreeTypes configure tree runs. TreeTypes
	// defaults to the first type of the function set.
	FunctionSet *funcset.FunctionSet
	Builder     build.Builder
	TreeTypes   []*gptype.Type
	// Species configures vector runs instead.
	Species     vector.AnySpecies
	Pipeline    evo.Source
	Subpops     int
	SubpopSize  int
	Generations int
	Threads     int
	Seed        int64
	// Snapshot saves every generation's population to the store.
	Snapshot bool
}

type Result struct {
	RunID      string
	Population *model.Population
	Stats      []model.GenerationStats
}

// Breeder owns the store and diagnostics shared by runs.
type Breeder struct {
	store storage.Store
	sink  diag.Sink
}

// NewBreeder accepts a nil store, in which case nothing is persisted.
func NewBreeder(store storage.Store, sink diag.Sink) *Breeder {
	return &Breeder{store: store, sink: diag.OrDiscard(sink)}
}

func normalize(cfg Config) (Config, error) {
	if cfg.Subpops <= 0 {
		cfg.Subpops = 1
	}
	if cfg.Threads <= 0 {
		cfg.Threads = 1
	}
	if cfg.SubpopSize <= 0 {
		return cfg, fmt.Errorf("%w: subpopulation size %d", ErrInvalidRun, cfg.SubpopSize)
	}
	if cfg.Generations < 0 {
		return cfg, fmt.Errorf("%w: generations %d", ErrInvalidRun, cfg.Generations)
	}
	if cfg.Species == nil {
		if cfg.FunctionSet == nil || cfg.Builder == nil {
			return cfg, fmt.Errorf("%w: tree runs need a function set and builder", ErrInvalidRun)
		}
		if len(cfg.TreeTypes) == 0 {
			cfg.TreeTypes = []*gptype.Type{cfg.FunctionSet.Types.At(0)}
		}
	}
	if cfg.RunID == "" {
		cfg.RunID = fmt.Sprintf("breed:%d", cfg.Seed)
	}
	return cfg, nil
}

func streams(cfg Config) []*rand.Rand {
	out := make([]*rand.Rand, cfg.Threads)
	for i := range out {
		out[i] = rand.New(rand.NewSource(cfg.Seed + int64(i)))
	}
	return out
}

// chunk returns the half-open slice of [0,n) that thread t of threads owns.
func chunk(n, t, threads int) (int, int) {
	return n * t / threads, n * (t + 1) / threads
}

// Initialize builds generation zero, each thread filling its own share of
// every subpopulation with its own random stream.
func (b *Breeder) Initialize(ctx context.Context, cfg Config) (*model.Population, error) {
	cfg, err := normalize(cfg)
	if err != nil {
		return nil, err
	}
	return b.initialize(ctx, cfg, streams(cfg))
}

func (b *Breeder) initialize(ctx context.Context, cfg Config, rngs []*rand.Rand) (*model.Population, error) {
	pop := &model.Population{Subpops: make([]model.Subpopulation, cfg.Subpops)}
	for s := range pop.Subpops {
		pop.Subpops[s] = make(model.Subpopulation, cfg.SubpopSize)
	}

	p := pool.New().WithErrors().WithMaxGoroutines(cfg.Threads)
	for t := 0; t < cfg.Threads; t++ {
		rng := rngs[t]
		begin, end := chunk(cfg.SubpopSize, t, cfg.Threads)
		p.Go(func() error {
			for s := range pop.Subpops {
				for i := begin; i < end; i++ {
					if err := ctx.Err(); err != nil {
						return err
					}
					ind, err := b.newIndividual(rng, cfg)
					if err != nil {
						return err
					}
					pop.Subpops[s][i] = ind
				}
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return pop, nil
}

func (b *Breeder) newIndividual(rng *rand.Rand, cfg Config) (model.Individual, error) {
	if cfg.Species != nil {
		return cfg.Species.Random(rng), nil
	}
	trees := make([]*genotype.Tree, len(cfg.TreeTypes))
	for i, typ := range cfg.TreeTypes {
		tree, err := cfg.Builder.Build(rng, typ, build.NoSizeGiven)
		if err != nil {
			return nil, err
		}
		trees[i] = tree
	}
	return genotype.NewIndividual("init", trees...), nil
}

// Run initializes a population and breeds it for cfg.Generations
// generations. Stats has one entry per generation including generation zero.
func (b *Breeder) Run(ctx context.Context, cfg Config) (Result, error) {
	cfg, err := normalize(cfg)
	if err != nil {
		return Result{}, err
	}
	if cfg.Pipeline == nil && cfg.Generations > 0 {
		return Result{}, fmt.Errorf("%w: pipeline is required", ErrInvalidRun)
	}
	rngs := streams(cfg)
	pop, err := b.initialize(ctx, cfg, rngs)
	if err != nil {
		return Result{}, err
	}

	var clones []evo.Source
	if cfg.Pipeline != nil {
		clones = make([]evo.Source, cfg.Threads)
		for t := range clones {
			clones[t] = cfg.Pipeline.Clone()
		}
	}

	stats := make([]model.GenerationStats, 0, cfg.Generations+1)
	for gen := 0; ; gen++ {
		pop.Generation = gen
		summary := Summarize(pop)
		stats = append(stats, summary)
		b.sink.Message("generation bred", "run", cfg.RunID, "generation", gen,
			"mean_size", summary.MeanSize, "max_depth", summary.MaxDepth)
		if cfg.Snapshot {
			if err := b.snapshot(ctx, cfg, pop); err != nil {
				return Result{}, err
			}
		}
		if gen == cfg.Generations {
			break
		}
		if pop, err = b.breed(ctx, cfg, pop, rngs, clones); err != nil {
			return Result{}, err
		}
	}

	if b.store != nil {
		if err := b.store.SaveGenerationStats(ctx, cfg.RunID, stats); err != nil {
			return Result{}, err
		}
	}
	return Result{RunID: cfg.RunID, Population: pop, Stats: stats}, nil
}

func (b *Breeder) breed(ctx context.Context, cfg Config, pop *model.Population, rngs []*rand.Rand, clones []evo.Source) (*model.Population, error) {
	st := &evo.State{Random: rngs, Population: pop, Sink: b.sink}
	next := &model.Population{Generation: pop.Generation + 1, Subpops: make([]model.Subpopulation, len(pop.Subpops))}
	for s, sub := range pop.Subpops {
		next.Subpops[s] = make(model.Subpopulation, len(sub))
	}

	p := pool.New().WithErrors().WithMaxGoroutines(cfg.Threads)
	for t := 0; t < cfg.Threads; t++ {
		source := clones[t]
		p.Go(func() error {
			for s := range next.Subpops {
				begin, end := chunk(len(next.Subpops[s]), t, cfg.Threads)
				for i := begin; i < end; {
					if err := ctx.Err(); err != nil {
						return err
					}
					children, err := source.Produce(st, 1, end-i, s, t)
					if err != nil {
						return err
					}
					for _, child := range children {
						next.Subpops[s][i] = child
						i++
					}
				}
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return next, nil
}

type depther interface {
	Depth() int
}

// Summarize computes size and depth statistics over every individual.
// Vectors have depth zero.
func Summarize(pop *model.Population) model.GenerationStats {
	var sizes, depths []float64
	out := model.GenerationStats{Generation: pop.Generation}
	for _, sub := range pop.Subpops {
		for _, ind := range sub {
			size := ind.Size()
			depth := 0
			if d, ok := ind.(depther); ok {
				depth = d.Depth()
			}
			sizes = append(sizes, float64(size))
			depths = append(depths, float64(depth))
			out.MaxSize = max(out.MaxSize, size)
			out.MaxDepth = max(out.MaxDepth, depth)
		}
	}
	out.Individuals = len(sizes)
	if len(sizes) == 0 {
		return out
	}
	out.MeanSize = stat.Mean(sizes, nil)
	if len(sizes) > 1 {
		out.StdDevSize = stat.StdDev(sizes, nil)
	}
	out.MeanDepth = stat.Mean(depths, nil)
	return out
}
