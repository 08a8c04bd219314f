package evo

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"gpbreed/internal/build"
	"gpbreed/internal/funcset"
	"gpbreed/internal/params"
	"gpbreed/internal/vector"
)

// DefaultBase is the shared fallback base for pipeline parameters. A key
// base.k of a pipeline of type t falls back to breed.t.k.
const DefaultBase params.Parameter = "breed"

var (
	ErrPipelineExists       = errors.New("pipeline already registered")
	ErrPipelineNotFound     = errors.New("pipeline not found")
	ErrPipelineIncompatible = errors.New("pipeline incompatible with environment")
)

// Env carries what pipeline factories need beyond parameters.
type Env struct {
	FunctionSet *funcset.FunctionSet
	Build       build.Options
}

type Factory func(db *params.Database, base params.Parameter, env Env) (Source, error)

type CompatibilityFn func(env Env) error

type PipelineSpec struct {
	Name       string
	Factory    Factory
	Compatible CompatibilityFn
}

type registeredPipeline struct {
	factory    Factory
	compatible CompatibilityFn
}

var pipelineRegistry struct {
	mu sync.RWMutex
	m  map[string]registeredPipeline
}

// The built-in factories recurse through FromParams, so the table is filled
// in init rather than in the declaration.
func init() {
	pipelineRegistry.m = builtinPipelines()
}

func builtinPipelines() map[string]registeredPipeline {
	return map[string]registeredPipeline{
		"random":                    {factory: randomFactory},
		"reproduction":              {factory: reproductionFactory},
		"crossover":                 {factory: crossoverFactory},
		"mutation":                  {factory: mutationFactory, compatible: needsFunctionSet},
		"vector-crossover":          {factory: vectorCrossoverFactory},
		"vector-mutation":           {factory: vectorMutationFactory},
		"list-crossover":            {factory: listCrossoverFactory},
		"multiple-vector-crossover": {factory: multipleVectorCrossoverFactory},
		"gene-duplication":          {factory: geneDuplicationFactory},
	}
}

func needsFunctionSet(env Env) error {
	if env.FunctionSet == nil {
		return errors.New("function set is required")
	}
	return nil
}

// RegisterPipeline adds a pipeline type for FromParams.
func RegisterPipeline(spec PipelineSpec) error {
	if spec.Name == "" {
		return errors.New("pipeline name is required")
	}
	if spec.Factory == nil {
		return errors.New("pipeline factory is required")
	}

	pipelineRegistry.mu.Lock()
	defer pipelineRegistry.mu.Unlock()

	if _, exists := pipelineRegistry.m[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrPipelineExists, spec.Name)
	}
	pipelineRegistry.m[spec.Name] = registeredPipeline{factory: spec.Factory, compatible: spec.Compatible}
	return nil
}

func ListPipelines() []string {
	pipelineRegistry.mu.RLock()
	defer pipelineRegistry.mu.RUnlock()

	names := make([]string, 0, len(pipelineRegistry.m))
	for name := range pipelineRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetPipelineRegistryForTests() {
	pipelineRegistry.mu.Lock()
	defer pipelineRegistry.mu.Unlock()
	pipelineRegistry.m = builtinPipelines()
}

// FromParams builds the pipeline graph rooted at base. base.type names the
// pipeline and base.source.N configures its sources recursively.
func FromParams(db *params.Database, base params.Parameter, env Env) (Source, error) {
	kind, ok := db.String(base.Push("type"), "")
	if !ok {
		return nil, fmt.Errorf("%w: %s", params.ErrMissing, base.Push("type"))
	}

	pipelineRegistry.mu.RLock()
	entry, ok := pipelineRegistry.m[kind]
	pipelineRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPipelineNotFound, kind)
	}
	if entry.compatible != nil {
		if err := entry.compatible(env); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrPipelineIncompatible, kind, err)
		}
	}
	return entry.factory(db, base, env)
}

// keys resolves pipeline keys against base with breed.<kind> as fallback.
type keys struct {
	base params.Parameter
	def  params.Parameter
}

func keysFor(base params.Parameter, kind string) keys {
	return keys{base: base, def: DefaultBase.Push(kind)}
}

func (k keys) p(key string) (params.Parameter, params.Parameter) {
	return k.base.Push(key), k.def.Push(key)
}

func (k keys) intOr(db *params.Database, key string, fallback int) (int, error) {
	p, d := k.p(key)
	return db.IntOr(p, d, fallback)
}

func (k keys) boolOr(db *params.Database, key string, fallback bool) (bool, error) {
	p, d := k.p(key)
	return db.BoolOr(p, d, fallback)
}

func (k keys) probability(db *params.Database, key string, fallback float64) (float64, error) {
	p, d := k.p(key)
	return db.Probability(p, d, fallback)
}

func source(db *params.Database, base params.Parameter, env Env) (Source, error) {
	return FromParams(db, base.Push("source").PushIndex(0), env)
}

// sourcePair reads source.0 and, unless it is absent or "same", source.1.
func sourcePair(db *params.Database, base params.Parameter, env Env) ([]Source, error) {
	first, err := source(db, base, env)
	if err != nil {
		return nil, err
	}
	second := base.Push("source").PushIndex(1)
	if v, ok := db.String(second, ""); ok && v == "same" {
		return []Source{first}, nil
	}
	if !db.Exists(second.Push("type"), "") {
		return []Source{first}, nil
	}
	other, err := FromParams(db, second, env)
	if err != nil {
		return nil, err
	}
	return []Source{first, other}, nil
}

func randomFactory(*params.Database, params.Parameter, Env) (Source, error) {
	return RandomSource{}, nil
}

func reproductionFactory(db *params.Database, base params.Parameter, env Env) (Source, error) {
	src, err := source(db, base, env)
	if err != nil {
		return nil, err
	}
	return &ReproductionPipeline{Source: src}, nil
}

func treeLimits(db *params.Database, k keys, tries, maxDepth, maxSize *int) error {
	var err error
	if *tries, err = k.intOr(db, "tries", 1); err != nil {
		return err
	}
	if *maxDepth, err = k.intOr(db, "max-depth", 17); err != nil {
		return err
	}
	if *maxSize, err = k.intOr(db, "max-size", 0); err != nil {
		return err
	}
	if *tries < 1 || *maxDepth < 1 || *maxSize < 0 {
		return fmt.Errorf("%w: %s tries=%d max-depth=%d max-size=%d", params.ErrInvalid, k.base, *tries, *maxDepth, *maxSize)
	}
	return nil
}

func crossoverFactory(db *params.Database, base params.Parameter, env Env) (Source, error) {
	k := keysFor(base, "crossover")
	sources, err := sourcePair(db, base, env)
	if err != nil {
		return nil, err
	}
	c := NewCrossoverPipeline(sources...)
	if err := treeLimits(db, k, &c.Tries, &c.MaxDepth, &c.MaxSize); err != nil {
		return nil, err
	}
	if c.Tree1, err = k.intOr(db, "tree.0", RandomTree); err != nil {
		return nil, err
	}
	if c.Tree2, err = k.intOr(db, "tree.1", RandomTree); err != nil {
		return nil, err
	}
	if c.TossSecondParent, err = k.boolOr(db, "toss", false); err != nil {
		return nil, err
	}
	for i := range c.Selectors {
		ns, err := NodeSelectorFromParams(db, base.Push("ns").PushIndex(i))
		if err != nil {
			return nil, err
		}
		c.Selectors[i] = ns
	}
	return c, nil
}

func mutationFactory(db *params.Database, base params.Parameter, env Env) (Source, error) {
	k := keysFor(base, "mutation")
	src, err := source(db, base, env)
	if err != nil {
		return nil, err
	}
	builder, err := build.FromParams(db, base.Push("build"), env.FunctionSet, env.Build)
	if err != nil {
		return nil, err
	}
	m := NewMutationPipeline(src, builder)
	if err := treeLimits(db, k, &m.Tries, &m.MaxDepth, &m.MaxSize); err != nil {
		return nil, err
	}
	if m.Tree, err = k.intOr(db, "tree.0", RandomTree); err != nil {
		return nil, err
	}
	if m.Equal, err = k.boolOr(db, "equal", false); err != nil {
		return nil, err
	}
	ns, err := NodeSelectorFromParams(db, base.Push("ns").PushIndex(0))
	if err != nil {
		return nil, err
	}
	m.Selector = ns
	return m, nil
}

func vectorCrossoverFactory(db *params.Database, base params.Parameter, env Env) (Source, error) {
	sources, err := sourcePair(db, base, env)
	if err != nil {
		return nil, err
	}
	toss, err := keysFor(base, "vector-crossover").boolOr(db, "toss", false)
	if err != nil {
		return nil, err
	}
	return &VectorCrossover{Sources: sources, TossSecondParent: toss}, nil
}

func vectorMutationFactory(db *params.Database, base params.Parameter, env Env) (Source, error) {
	src, err := source(db, base, env)
	if err != nil {
		return nil, err
	}
	return &VectorMutation{Source: src}, nil
}

func geneDuplicationFactory(db *params.Database, base params.Parameter, env Env) (Source, error) {
	src, err := source(db, base, env)
	if err != nil {
		return nil, err
	}
	return &GeneDuplication{Source: src}, nil
}

func listCrossoverFactory(db *params.Database, base params.Parameter, env Env) (Source, error) {
	k := keysFor(base, "list-crossover")
	sources, err := sourcePair(db, base, env)
	if err != nil {
		return nil, err
	}
	l := NewListCrossover(sources...)
	p, d := k.p("crossover-type")
	switch t := db.StringOr(p, d, "one"); t {
	case "one":
		l.Crossover = vector.CrossoverOne
	case "two":
		l.Crossover = vector.CrossoverTwo
	default:
		return nil, fmt.Errorf("%w: list crossover type %q", params.ErrInvalid, t)
	}
	if l.MinChildSize, err = k.intOr(db, "min-child-size", 0); err != nil {
		return nil, err
	}
	if l.MinCrossoverPercent, err = k.probability(db, "min-crossover-percent", 0); err != nil {
		return nil, err
	}
	if l.MaxCrossoverPercent, err = k.probability(db, "max-crossover-percent", 1); err != nil {
		return nil, err
	}
	if l.MinCrossoverPercent > l.MaxCrossoverPercent {
		return nil, fmt.Errorf("%w: crossover percent range [%v,%v]", params.ErrInvalid, l.MinCrossoverPercent, l.MaxCrossoverPercent)
	}
	if l.Tries, err = k.intOr(db, "tries", 1); err != nil {
		return nil, err
	}
	if l.TossSecondParent, err = k.boolOr(db, "toss", false); err != nil {
		return nil, err
	}
	return l, nil
}

func multipleVectorCrossoverFactory(db *params.Database, base params.Parameter, env Env) (Source, error) {
	k := keysFor(base, "multiple-vector-crossover")
	src, err := source(db, base, env)
	if err != nil {
		return nil, err
	}
	n, err := k.intOr(db, "num-parents", 2)
	if err != nil {
		return nil, err
	}
	if n < 2 {
		return nil, fmt.Errorf("%w: num-parents %d", params.ErrInvalid, n)
	}
	prob, err := k.probability(db, "crossover-prob", 0.5)
	if err != nil {
		return nil, err
	}
	return &MultipleVectorCrossover{Source: src, NumParents: n, CrossoverProbability: prob}, nil
}
