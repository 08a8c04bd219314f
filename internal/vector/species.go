package vector

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"gpbreed/internal/model"
	"gpbreed/internal/params"
)

type CrossoverType int

const (
	// CrossoverAny swaps each chunk independently with CrossoverProbability.
	CrossoverAny CrossoverType = iota
	CrossoverOne
	CrossoverTwo
)

func ParseCrossoverType(s string) (CrossoverType, error) {
	switch s {
	case "", "any", "uniform":
		return CrossoverAny, nil
	case "one":
		return CrossoverOne, nil
	case "two":
		return CrossoverTwo, nil
	}
	return 0, fmt.Errorf("%w: crossover type %q", params.ErrInvalid, s)
}

type MutationType int

const (
	MutationReset MutationType = iota
	MutationGauss
)

// Gene is a user-defined genome element.
type Gene interface {
	Reset(rng *rand.Rand)
	Mutate(rng *rand.Rand)
	Clone() Gene
}

type Integer interface {
	~int8 | ~int16 | ~int32 | ~int64
}

type Float interface {
	~float32 | ~float64
}

// Species holds the parameters and element operations shared by every
// individual of one vector population.
type Species[T any] struct {
	Kind       string
	GenomeSize int
	// MinInitialSize and MaxInitialSize, when set, draw a variable initial
	// length instead of GenomeSize.
	MinInitialSize       int
	MaxInitialSize       int
	ChunkSize            int
	Crossover            CrossoverType
	CrossoverProbability float64
	MutationProbability  float64

	NewGene func(rng *rand.Rand) T
	Mutate  func(rng *rand.Rand, g T) T
	// Copy deep-copies an element. Nil means elements are plain values.
	Copy func(g T) T
	// Decode restores a persisted genome. Nil uses encoding/json.
	Decode func(raw []byte) ([]T, error)
}

// AnySpecies is the element-type independent view of a Species.
type AnySpecies interface {
	ElementKind() string
	Random(rng *rand.Rand) Vector
	FromRecord(rec model.IndividualRecord) (Vector, error)
}

func (s *Species[T]) ElementKind() string { return s.Kind }

func (s *Species[T]) copyGene(g T) T {
	if s.Copy == nil {
		return g
	}
	return s.Copy(g)
}

// Wrap adopts genome as a new individual of this species.
func (s *Species[T]) Wrap(op string, genome []T) *Individual[T] {
	return &Individual[T]{meta: model.NewMeta(op), Species: s, Genome: genome}
}

// NewIndividual draws a random genome.
func (s *Species[T]) NewIndividual(rng *rand.Rand) *Individual[T] {
	n := s.GenomeSize
	if s.MaxInitialSize > 0 && s.MaxInitialSize >= s.MinInitialSize {
		n = s.MinInitialSize + rng.Intn(s.MaxInitialSize-s.MinInitialSize+1)
	}
	genome := make([]T, n)
	for i := range genome {
		genome[i] = s.NewGene(rng)
	}
	return s.Wrap("init", genome)
}

func (s *Species[T]) Random(rng *rand.Rand) Vector { return s.NewIndividual(rng) }

func (s *Species[T]) FromRecord(rec model.IndividualRecord) (Vector, error) {
	if rec.Kind != RecordKind(s.Kind) {
		return nil, fmt.Errorf("%w: record %s is %s, species is %s", ErrGenomeMismatch, rec.ID, rec.Kind, RecordKind(s.Kind))
	}
	var genome []T
	if s.Decode != nil {
		var err error
		if genome, err = s.Decode(rec.Genome); err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal(rec.Genome, &genome); err != nil {
		return nil, fmt.Errorf("decode genome %s: %w", rec.ID, err)
	}
	ind := &Individual[T]{meta: rec.Meta, Species: s, Genome: genome}
	ind.meta.ParentIDs = append([]string(nil), rec.ParentIDs...)
	return ind, nil
}

func kindOf[T any]() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}

func NewBoolSpecies(size int) *Species[bool] {
	return &Species[bool]{
		Kind:       "bool",
		GenomeSize: size,
		ChunkSize:  1,
		NewGene:    func(rng *rand.Rand) bool { return rng.Intn(2) == 1 },
		Mutate:     func(_ *rand.Rand, g bool) bool { return !g },
	}
}

// NewIntSpecies draws and resets genes uniformly in [minGene, maxGene].
func NewIntSpecies[T Integer](size int, minGene, maxGene T) *Species[T] {
	draw := func(rng *rand.Rand) T {
		span := int64(maxGene) - int64(minGene) + 1
		if span <= 0 {
			return minGene
		}
		return T(int64(minGene) + rng.Int63n(span))
	}
	return &Species[T]{
		Kind:       kindOf[T](),
		GenomeSize: size,
		ChunkSize:  1,
		NewGene:    draw,
		Mutate:     func(rng *rand.Rand, _ T) T { return draw(rng) },
	}
}

// NewFloatSpecies draws genes uniformly in [minGene, maxGene]. Gauss mutation
// adds N(0, stdev) noise clamped to the bounds.
func NewFloatSpecies[T Float](size int, minGene, maxGene T, mutation MutationType, stdev float64) *Species[T] {
	lo, hi := float64(minGene), float64(maxGene)
	draw := func(rng *rand.Rand) T { return T(lo + rng.Float64()*(hi-lo)) }
	mutate := func(rng *rand.Rand, _ T) T { return draw(rng) }
	if mutation == MutationGauss {
		mutate = func(rng *rand.Rand, g T) T {
			x := float64(g) + rng.NormFloat64()*stdev
			if x < lo {
				x = lo
			}
			if x > hi {
				x = hi
			}
			return T(x)
		}
	}
	return &Species[T]{
		Kind:       kindOf[T](),
		GenomeSize: size,
		ChunkSize:  1,
		NewGene:    draw,
		Mutate:     mutate,
	}
}

// NewGeneSpecies builds genes by cloning and resetting proto.
func NewGeneSpecies(size int, proto Gene) *Species[Gene] {
	return &Species[Gene]{
		Kind:       "gene",
		GenomeSize: size,
		ChunkSize:  1,
		NewGene: func(rng *rand.Rand) Gene {
			g := proto.Clone()
			g.Reset(rng)
			return g
		},
		Mutate: func(rng *rand.Rand, g Gene) Gene {
			c := g.Clone()
			c.Mutate(rng)
			return c
		},
		Copy: func(g Gene) Gene { return g.Clone() },
	}
}

// DefaultBase is the shared fallback base for species parameters.
const DefaultBase params.Parameter = "vector.species"

// SpeciesFromParams reads a primitive-element species:
//
//	base.type               bool, int8, int16, int32, int64, float32, float64
//	base.genome-size        fixed length
//	base.min-initial-size / max-initial-size   variable initial length
//	base.chunk-size         crossover unit (default 1)
//	base.crossover-type     one, two or any (default any)
//	base.crossover-prob     per-chunk swap probability for any (default 0.5)
//	base.mutation-prob      per-gene mutation probability (default 0)
//	base.min-gene / max-gene  numeric bounds (default 0 and 1)
//	base.mutation-type      reset or gauss (floats only)
//	base.mutation-stdev     gauss standard deviation (default 1)
func SpeciesFromParams(db *params.Database, base params.Parameter) (AnySpecies, error) {
	def := func(k string) params.Parameter { return DefaultBase.Push(k) }
	kind, ok := db.String(base.Push("type"), def("type"))
	if !ok {
		return nil, fmt.Errorf("%w: %s", params.ErrMissing, base.Push("type"))
	}
	size, err := db.IntOr(base.Push("genome-size"), def("genome-size"), 0)
	if err != nil {
		return nil, err
	}
	minInit, err := db.IntOr(base.Push("min-initial-size"), def("min-initial-size"), 0)
	if err != nil {
		return nil, err
	}
	maxInit, err := db.IntOr(base.Push("max-initial-size"), def("max-initial-size"), 0)
	if err != nil {
		return nil, err
	}
	if size < 1 && maxInit < 1 {
		return nil, fmt.Errorf("%w: %s needs genome-size or max-initial-size", params.ErrMissing, base)
	}
	if maxInit > 0 && (minInit < 0 || minInit > maxInit) {
		return nil, fmt.Errorf("%w: initial size range [%d,%d]", params.ErrInvalid, minInit, maxInit)
	}
	chunk, err := db.IntOr(base.Push("chunk-size"), def("chunk-size"), 1)
	if err != nil {
		return nil, err
	}
	if chunk < 1 {
		return nil, fmt.Errorf("%w: chunk-size %d", params.ErrInvalid, chunk)
	}
	xover, err := ParseCrossoverType(db.StringOr(base.Push("crossover-type"), def("crossover-type"), "any"))
	if err != nil {
		return nil, err
	}
	xprob, err := db.Probability(base.Push("crossover-prob"), def("crossover-prob"), 0.5)
	if err != nil {
		return nil, err
	}
	mprob, err := db.Probability(base.Push("mutation-prob"), def("mutation-prob"), 0)
	if err != nil {
		return nil, err
	}
	minGene, err := db.FloatOr(base.Push("min-gene"), def("min-gene"), 0)
	if err != nil {
		return nil, err
	}
	maxGene, err := db.FloatOr(base.Push("max-gene"), def("max-gene"), 1)
	if err != nil {
		return nil, err
	}
	if maxGene < minGene {
		return nil, fmt.Errorf("%w: gene range [%v,%v]", params.ErrInvalid, minGene, maxGene)
	}
	mutation := MutationReset
	switch m := db.StringOr(base.Push("mutation-type"), def("mutation-type"), "reset"); m {
	case "reset":
	case "gauss":
		mutation = MutationGauss
	default:
		return nil, fmt.Errorf("%w: mutation-type %q", params.ErrInvalid, m)
	}
	stdev, err := db.FloatOr(base.Push("mutation-stdev"), def("mutation-stdev"), 1)
	if err != nil {
		return nil, err
	}

	var sp AnySpecies
	switch kind {
	case "bool":
		sp = configure(NewBoolSpecies(size), minInit, maxInit, chunk, xover, xprob, mprob)
	case "int8":
		sp = configure(NewIntSpecies(size, int8(minGene), int8(maxGene)), minInit, maxInit, chunk, xover, xprob, mprob)
	case "int16":
		sp = configure(NewIntSpecies(size, int16(minGene), int16(maxGene)), minInit, maxInit, chunk, xover, xprob, mprob)
	case "int32":
		sp = configure(NewIntSpecies(size, int32(minGene), int32(maxGene)), minInit, maxInit, chunk, xover, xprob, mprob)
	case "int64":
		sp = configure(NewIntSpecies(size, int64(minGene), int64(maxGene)), minInit, maxInit, chunk, xover, xprob, mprob)
	case "float32":
		sp = configure(NewFloatSpecies(size, float32(minGene), float32(maxGene), mutation, stdev), minInit, maxInit, chunk, xover, xprob, mprob)
	case "float64":
		sp = configure(NewFloatSpecies(size, minGene, maxGene, mutation, stdev), minInit, maxInit, chunk, xover, xprob, mprob)
	default:
		return nil, fmt.Errorf("%w: species type %q", params.ErrInvalid, kind)
	}
	return sp, nil
}

func configure[T any](s *Species[T], minInit, maxInit, chunk int, xover CrossoverType, xprob, mprob float64) *Species[T] {
	s.MinInitialSize = minInit
	s.MaxInitialSize = maxInit
	s.ChunkSize = chunk
	s.Crossover = xover
	s.CrossoverProbability = xprob
	s.MutationProbability = mprob
	return s
}
