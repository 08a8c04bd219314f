// Package vector implements fixed- and variable-length genome individuals
// over primitive element types or user-defined genes.
package vector

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"

	"gpbreed/internal/model"
)

var (
	ErrGenomeMismatch = errors.New("genome types differ")
	ErrOutOfRange     = errors.New("genome index out of range")
)

// Vector is the element-type independent view of an Individual that breeding
// pipelines operate on.
type Vector interface {
	model.Individual
	Len() int
	// Kind names the element type, for example "int32" or "gene".
	Kind() string
	ChunkSize() int
	CloneVector() Vector
	// DefaultCrossover recombines the receiver and other in place according
	// to the species crossover type.
	DefaultCrossover(rng *rand.Rand, other Vector) error
	// DefaultMutate mutates each element with the species mutation
	// probability.
	DefaultMutate(rng *rand.Rand)
	SwapAt(other Vector, i int) error
	// Exchange returns two children: the receiver with [aBegin,aEnd) replaced
	// by other's [bBegin,bEnd), and other with the reverse replacement.
	Exchange(other Vector, aBegin, aEnd, bBegin, bEnd int) (Vector, Vector, error)
	// Duplicate appends a copy of [begin,end) to the genome.
	Duplicate(begin, end int) error
	Record() (model.IndividualRecord, error)
}

// Individual is a genome of T governed by a shared species.
type Individual[T any] struct {
	meta    model.Meta
	Genome  []T
	Species *Species[T]
}

func (v *Individual[T]) Meta() *model.Meta { return &v.meta }

func (v *Individual[T]) Clone() model.Individual { return v.clone() }

func (v *Individual[T]) CloneVector() Vector { return v.clone() }

func (v *Individual[T]) clone() *Individual[T] {
	out := &Individual[T]{meta: v.meta.Derive("clone"), Species: v.Species, Genome: make([]T, len(v.Genome))}
	for i, g := range v.Genome {
		out.Genome[i] = v.Species.copyGene(g)
	}
	return out
}

func (v *Individual[T]) Size() int { return len(v.Genome) }

func (v *Individual[T]) Len() int { return len(v.Genome) }

func (v *Individual[T]) Kind() string { return v.Species.Kind }

func (v *Individual[T]) ChunkSize() int {
	if v.Species.ChunkSize < 1 {
		return 1
	}
	return v.Species.ChunkSize
}

func (v *Individual[T]) peer(other Vector) (*Individual[T], error) {
	o, ok := other.(*Individual[T])
	if !ok {
		return nil, fmt.Errorf("%w: %s and %s", ErrGenomeMismatch, v.Kind(), other.Kind())
	}
	return o, nil
}

func (v *Individual[T]) DefaultCrossover(rng *rand.Rand, other Vector) error {
	o, err := v.peer(other)
	if err != nil {
		return err
	}
	n := len(v.Genome)
	if len(o.Genome) < n {
		n = len(o.Genome)
	}
	chunk := v.ChunkSize()
	chunks := n / chunk
	swap := func(from, to int) {
		for i := from; i < to && i < n; i++ {
			v.Genome[i], o.Genome[i] = o.Genome[i], v.Genome[i]
		}
	}
	switch v.Species.Crossover {
	case CrossoverOne:
		point := rng.Intn(chunks + 1)
		swap(0, point*chunk)
	case CrossoverTwo:
		p0 := rng.Intn(chunks + 1)
		p1 := rng.Intn(chunks + 1)
		if p0 > p1 {
			p0, p1 = p1, p0
		}
		swap(p0*chunk, p1*chunk)
	default:
		for c := 0; c < chunks; c++ {
			if rng.Float64() < v.Species.CrossoverProbability {
				swap(c*chunk, (c+1)*chunk)
			}
		}
	}
	return nil
}

func (v *Individual[T]) DefaultMutate(rng *rand.Rand) {
	for i, g := range v.Genome {
		if rng.Float64() < v.Species.MutationProbability {
			v.Genome[i] = v.Species.Mutate(rng, g)
		}
	}
}

func (v *Individual[T]) SwapAt(other Vector, i int) error {
	o, err := v.peer(other)
	if err != nil {
		return err
	}
	if i < 0 || i >= len(v.Genome) || i >= len(o.Genome) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}
	v.Genome[i], o.Genome[i] = o.Genome[i], v.Genome[i]
	return nil
}

func (v *Individual[T]) Exchange(other Vector, aBegin, aEnd, bBegin, bEnd int) (Vector, Vector, error) {
	o, err := v.peer(other)
	if err != nil {
		return nil, nil, err
	}
	if aBegin < 0 || aBegin > aEnd || aEnd > len(v.Genome) || bBegin < 0 || bBegin > bEnd || bEnd > len(o.Genome) {
		return nil, nil, fmt.Errorf("%w: [%d,%d) of %d and [%d,%d) of %d",
			ErrOutOfRange, aBegin, aEnd, len(v.Genome), bBegin, bEnd, len(o.Genome))
	}
	a := v.splice(v.Genome[:aBegin], o.Genome[bBegin:bEnd], v.Genome[aEnd:])
	b := v.splice(o.Genome[:bBegin], v.Genome[aBegin:aEnd], o.Genome[bEnd:])
	return a, b, nil
}

func (v *Individual[T]) splice(parts ...[]T) *Individual[T] {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	genome := make([]T, 0, n)
	for _, p := range parts {
		for _, g := range p {
			genome = append(genome, v.Species.copyGene(g))
		}
	}
	return &Individual[T]{meta: model.NewMeta("splice"), Species: v.Species, Genome: genome}
}

func (v *Individual[T]) Duplicate(begin, end int) error {
	if begin < 0 || begin > end || end > len(v.Genome) {
		return fmt.Errorf("%w: [%d,%d) of %d", ErrOutOfRange, begin, end, len(v.Genome))
	}
	for i := begin; i < end; i++ {
		v.Genome = append(v.Genome, v.Species.copyGene(v.Genome[i]))
	}
	return nil
}

// RecordKind is the IndividualRecord kind for a vector of the given element
// kind.
func RecordKind(kind string) string { return "vector/" + kind }

func (v *Individual[T]) Record() (model.IndividualRecord, error) {
	raw, err := json.Marshal(v.Genome)
	if err != nil {
		return model.IndividualRecord{}, err
	}
	rec := model.IndividualRecord{Meta: v.meta, Kind: RecordKind(v.Kind()), Genome: raw}
	rec.ParentIDs = append([]string(nil), v.meta.ParentIDs...)
	return rec, nil
}
