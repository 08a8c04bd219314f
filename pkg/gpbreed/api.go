// Package gpbreed is the public entry point for building random GP trees,
// inspecting exact tree counts and running breeding experiments.
package gpbreed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"gpbreed/internal/build"
	"gpbreed/internal/diag"
	"gpbreed/internal/funcset"
	"gpbreed/internal/model"
	"gpbreed/internal/params"
	"gpbreed/internal/platform"
	"gpbreed/internal/storage"
)

const (
	defaultDBPath      = "gpbreed.db"
	defaultFunctionSet = "koza"
	defaultBuilder     = "ptc2"
	defaultBase        = "run"
)

type Options struct {
	StoreKind string
	DBPath    string
	// Logger receives diagnostics. Nil discards them.
	Logger *slog.Logger
}

type Client struct {
	store storage.Store
	sink  diag.Sink

	initOnce sync.Once
	initErr  error
}

type BuildRequest struct {
	FunctionSet string
	// Builder is a registered builder kind such as grow, ptc2 or uniform.
	Builder string
	// Type is the root type name. Empty uses the function set's first type.
	Type  string
	Count int
	Seed  int64
	// Size is the requested tree size; zero lets the builder choose.
	Size int
	// Params holds extra builder keys relative to build, e.g. "max-depth".
	Params map[string]string
}

type BuiltTree struct {
	Tree  string
	Size  int
	Depth int
}

type CountsRequest struct {
	FunctionSet string
	MaxSize     int
}

type CountsSummary struct {
	Key         string
	FunctionSet string
	MaxSize     int
	// Counts maps a type name to decimal tree counts indexed by size.
	Counts map[string][]string
}

type BreedRequest struct {
	// ParamsFile is loaded first and Params override it.
	ParamsFile string
	Params     map[string]string
	// Base is the parameter base of the run, "run" when empty.
	Base string
}

type BreedSummary struct {
	RunID string
	Stats []model.GenerationStats
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	sink := diag.Discard
	if opts.Logger != nil {
		sink = diag.New(opts.Logger)
	}
	return &Client{store: store, sink: sink}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.store.Init(ctx)
	})
	return c.initErr
}

func (c *Client) options(ctx context.Context) build.Options {
	return build.Options{Sink: c.sink, Tables: platform.TableCache(ctx, c.store, c.sink)}
}

// FunctionSets lists the registered built-in function sets.
func (c *Client) FunctionSets() []string {
	return funcset.Names()
}

// Build creates req.Count trees with a freshly configured builder.
func (c *Client) Build(ctx context.Context, req BuildRequest) ([]BuiltTree, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	if req.FunctionSet == "" {
		req.FunctionSet = defaultFunctionSet
	}
	if req.Builder == "" {
		req.Builder = defaultBuilder
	}
	if req.Count <= 0 {
		req.Count = 1
	}
	if req.Size < 0 {
		return nil, fmt.Errorf("invalid size: %d", req.Size)
	}
	fs, err := funcset.Get(req.FunctionSet)
	if err != nil {
		return nil, err
	}
	typ := fs.Types.At(0)
	if req.Type != "" {
		if typ, err = fs.Types.Lookup(req.Type); err != nil {
			return nil, err
		}
	}

	db := params.New()
	for k, v := range req.Params {
		db.Set(build.DefaultBase.Push(k), v)
	}
	db.Set(build.DefaultBase.Push("type"), req.Builder)
	builder, err := build.FromParams(db, build.DefaultBase, fs, c.options(ctx))
	if err != nil {
		return nil, err
	}

	size := build.NoSizeGiven
	if req.Size > 0 {
		size = req.Size
	}
	rng := rand.New(rand.NewSource(req.Seed))
	out := make([]BuiltTree, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tree, err := builder.Build(rng, typ, size)
		if err != nil {
			return nil, err
		}
		out = append(out, BuiltTree{Tree: tree.String(), Size: tree.Size(), Depth: tree.Depth()})
	}
	return out, nil
}

// Counts returns the exact number of trees of every type and size up to
// req.MaxSize, loading the table from the store when it was computed before.
func (c *Client) Counts(ctx context.Context, req CountsRequest) (CountsSummary, error) {
	if err := c.Init(ctx); err != nil {
		return CountsSummary{}, err
	}
	if req.FunctionSet == "" {
		req.FunctionSet = defaultFunctionSet
	}
	if req.MaxSize < 1 {
		return CountsSummary{}, fmt.Errorf("invalid max size: %d", req.MaxSize)
	}
	fs, err := funcset.Get(req.FunctionSet)
	if err != nil {
		return CountsSummary{}, err
	}
	table, err := platform.TableCache(ctx, c.store, c.sink)(fs, req.MaxSize)
	if err != nil {
		return CountsSummary{}, err
	}
	rec := table.Record()
	return CountsSummary{
		Key:         rec.Key,
		FunctionSet: rec.FunctionSet,
		MaxSize:     rec.MaxSize,
		Counts:      rec.TypeCounts,
	}, nil
}

// Breed runs the experiment described by the request's parameters.
func (c *Client) Breed(ctx context.Context, req BreedRequest) (BreedSummary, error) {
	if err := c.Init(ctx); err != nil {
		return BreedSummary{}, err
	}
	db := params.New()
	if req.ParamsFile != "" {
		loaded, err := params.Load(req.ParamsFile)
		if err != nil {
			return BreedSummary{}, err
		}
		db.Merge(loaded)
	}
	for k, v := range req.Params {
		db.Set(params.Parameter(k), v)
	}
	base := params.Parameter(req.Base)
	if base == "" {
		base = defaultBase
	}
	cfg, err := platform.ConfigFromParams(db, base, c.options(ctx))
	if err != nil {
		return BreedSummary{}, err
	}
	result, err := platform.NewBreeder(c.store, c.sink).Run(ctx, cfg)
	if err != nil {
		return BreedSummary{}, err
	}
	return BreedSummary{RunID: result.RunID, Stats: result.Stats}, nil
}

// Snapshots lists the stored generation snapshots of a run.
func (c *Client) Snapshots(ctx context.Context, runID string) ([]model.PopulationRecord, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	return c.store.ListPopulations(ctx, runID)
}

// Population fetches one snapshot by id.
func (c *Client) Population(ctx context.Context, id string) (model.PopulationRecord, error) {
	if err := c.Init(ctx); err != nil {
		return model.PopulationRecord{}, err
	}
	rec, ok, err := c.store.GetPopulation(ctx, id)
	if err != nil {
		return model.PopulationRecord{}, err
	}
	if !ok {
		return model.PopulationRecord{}, fmt.Errorf("population not found: %s", id)
	}
	return rec, nil
}

// Stats returns the stored per-generation statistics of a run.
func (c *Client) Stats(ctx context.Context, runID string) ([]model.GenerationStats, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	stats, ok, err := c.store.GetGenerationStats(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("stats not found: %s", runID)
	}
	return stats, nil
}
