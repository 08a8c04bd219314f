package evo

import (
	"fmt"
	"math/rand"

	"gpbreed/internal/model"
	"gpbreed/internal/vector"
)

func vectorParent(ind model.Individual) (vector.Vector, error) {
	v, ok := ind.(vector.Vector)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrWrongIndividual, ind)
	}
	return v, nil
}

func vectorParents(inds []model.Individual) ([]vector.Vector, error) {
	out := make([]vector.Vector, len(inds))
	for i, ind := range inds {
		v, err := vectorParent(ind)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// VectorCrossover recombines two copied parents with the species' default
// crossover.
type VectorCrossover struct {
	Sources          []Source
	TossSecondParent bool
}

func (p *VectorCrossover) TypicalIndsProduced() int { return pairSize(p.TossSecondParent) }

func (p *VectorCrossover) Clone() Source {
	return &VectorCrossover{Sources: cloneSources(p.Sources), TossSecondParent: p.TossSecondParent}
}

func (p *VectorCrossover) Produce(st *State, min, max, subpop, thread int) ([]model.Individual, error) {
	if err := checkCount(min, max); err != nil {
		return nil, err
	}
	rng, err := st.rng(thread)
	if err != nil {
		return nil, err
	}
	out := make([]model.Individual, 0, max)
	for len(out) < min {
		inds, err := produceParents(st, p.Sources, 2, subpop, thread)
		if err != nil {
			return nil, err
		}
		parents, err := vectorParents(inds)
		if err != nil {
			return nil, err
		}
		a, b := parents[0].CloneVector(), parents[1].CloneVector()
		if err := a.DefaultCrossover(rng, b); err != nil {
			return nil, err
		}
		model.Stamp(a, "vector-crossover", parents[0], parents[1])
		model.Stamp(b, "vector-crossover", parents[1], parents[0])
		out = appendPair(out, max, p.TossSecondParent, a, b)
	}
	return out, nil
}

// VectorMutation applies the species' default per-gene mutation to a copy of
// each produced individual.
type VectorMutation struct {
	Source Source
}

func (p *VectorMutation) TypicalIndsProduced() int { return p.Source.TypicalIndsProduced() }

func (p *VectorMutation) Clone() Source { return &VectorMutation{Source: p.Source.Clone()} }

func (p *VectorMutation) Produce(st *State, min, max, subpop, thread int) ([]model.Individual, error) {
	return mapVectors(st, p.Source, min, max, subpop, thread, "vector-mutation", func(rng *rand.Rand, v vector.Vector) error {
		v.DefaultMutate(rng)
		return nil
	})
}

// GeneDuplication appends a copy of a random genome span to each produced
// individual. Empty genomes pass through unchanged.
type GeneDuplication struct {
	Source Source
}

func (p *GeneDuplication) TypicalIndsProduced() int { return p.Source.TypicalIndsProduced() }

func (p *GeneDuplication) Clone() Source { return &GeneDuplication{Source: p.Source.Clone()} }

func (p *GeneDuplication) Produce(st *State, min, max, subpop, thread int) ([]model.Individual, error) {
	return mapVectors(st, p.Source, min, max, subpop, thread, "gene-duplication", func(rng *rand.Rand, v vector.Vector) error {
		n := v.Len()
		if n == 0 {
			return nil
		}
		begin := rng.Intn(n)
		end := begin + 1 + rng.Intn(n-begin)
		return v.Duplicate(begin, end)
	})
}

func mapVectors(st *State, source Source, min, max, subpop, thread int, op string, fn func(*rand.Rand, vector.Vector) error) ([]model.Individual, error) {
	rng, err := st.rng(thread)
	if err != nil {
		return nil, err
	}
	inds, err := source.Produce(st, min, max, subpop, thread)
	if err != nil {
		return nil, err
	}
	parents, err := vectorParents(inds)
	if err != nil {
		return nil, err
	}
	out := make([]model.Individual, len(parents))
	for i, parent := range parents {
		child := parent.CloneVector()
		if err := fn(rng, child); err != nil {
			return nil, err
		}
		model.Stamp(child, op, parent)
		out[i] = child
	}
	return out, nil
}

// ListCrossover cuts variable-length genomes at chunk boundaries and swaps
// the pieces, so children may differ in length from their parents.
type ListCrossover struct {
	Sources []Source
	// Crossover is vector.CrossoverOne or vector.CrossoverTwo.
	Crossover    vector.CrossoverType
	MinChildSize int
	// MinCrossoverPercent and MaxCrossoverPercent bound, as a fraction of
	// each parent's length, the span a two-point crossover exchanges.
	MinCrossoverPercent float64
	MaxCrossoverPercent float64
	Tries               int
	TossSecondParent    bool
}

func NewListCrossover(sources ...Source) *ListCrossover {
	return &ListCrossover{
		Sources:             sources,
		Crossover:           vector.CrossoverOne,
		MaxCrossoverPercent: 1,
		Tries:               1,
	}
}

func (p *ListCrossover) TypicalIndsProduced() int { return pairSize(p.TossSecondParent) }

func (p *ListCrossover) Clone() Source {
	out := *p
	out.Sources = cloneSources(p.Sources)
	return &out
}

func (p *ListCrossover) Produce(st *State, min, max, subpop, thread int) ([]model.Individual, error) {
	if err := checkCount(min, max); err != nil {
		return nil, err
	}
	rng, err := st.rng(thread)
	if err != nil {
		return nil, err
	}
	out := make([]model.Individual, 0, max)
	for len(out) < min {
		inds, err := produceParents(st, p.Sources, 2, subpop, thread)
		if err != nil {
			return nil, err
		}
		parents, err := vectorParents(inds)
		if err != nil {
			return nil, err
		}
		a, b, err := p.cross(rng, parents[0], parents[1])
		if err != nil {
			return nil, err
		}
		out = appendPair(out, max, p.TossSecondParent, a, b)
	}
	return out, nil
}

// cut draws a chunk-aligned cut point in [0, n].
func cut(rng *rand.Rand, n, chunk int) int {
	return rng.Intn(n/chunk+1) * chunk
}

// span draws an ordered chunk-aligned pair of cut points.
func span(rng *rand.Rand, n, chunk int) (int, int) {
	begin, end := cut(rng, n, chunk), cut(rng, n, chunk)
	if begin > end {
		begin, end = end, begin
	}
	return begin, end
}

func (p *ListCrossover) spanAllowed(begin, end, n int) bool {
	if n == 0 {
		return p.MinCrossoverPercent == 0
	}
	frac := float64(end-begin) / float64(n)
	return frac >= p.MinCrossoverPercent && frac <= p.MaxCrossoverPercent
}

func (p *ListCrossover) cross(rng *rand.Rand, a, b vector.Vector) (model.Individual, model.Individual, error) {
	chunk := a.ChunkSize()
	la, lb := a.Len(), b.Len()
	for i := 0; i < p.Tries; i++ {
		var aBegin, aEnd, bBegin, bEnd int
		if p.Crossover == vector.CrossoverTwo {
			aBegin, aEnd = span(rng, la, chunk)
			bBegin, bEnd = span(rng, lb, chunk)
			if !p.spanAllowed(aBegin, aEnd, la) || !p.spanAllowed(bBegin, bEnd, lb) {
				continue
			}
		} else {
			aBegin, aEnd = cut(rng, la, chunk), la
			bBegin, bEnd = cut(rng, lb, chunk), lb
		}
		size1 := la - (aEnd - aBegin) + (bEnd - bBegin)
		size2 := lb - (bEnd - bBegin) + (aEnd - aBegin)
		if size1 < p.MinChildSize || (!p.TossSecondParent && size2 < p.MinChildSize) {
			continue
		}
		c1, c2, err := a.Exchange(b, aBegin, aEnd, bBegin, bEnd)
		if err != nil {
			return nil, nil, err
		}
		model.Stamp(c1, "list-crossover", a, b)
		model.Stamp(c2, "list-crossover", b, a)
		return c1, c2, nil
	}
	return reproduce(a), reproduce(b), nil
}

// MultipleVectorCrossover shuffles, at each position independently with
// CrossoverProbability, the genes of NumParents parents among them.
type MultipleVectorCrossover struct {
	Source               Source
	NumParents           int
	CrossoverProbability float64
}

func (p *MultipleVectorCrossover) TypicalIndsProduced() int { return p.NumParents }

func (p *MultipleVectorCrossover) Clone() Source {
	out := *p
	out.Source = p.Source.Clone()
	return &out
}

func (p *MultipleVectorCrossover) Produce(st *State, min, max, subpop, thread int) ([]model.Individual, error) {
	if err := checkCount(min, max); err != nil {
		return nil, err
	}
	if p.NumParents < 2 {
		return nil, fmt.Errorf("%w: %d parents", ErrInvalidCount, p.NumParents)
	}
	rng, err := st.rng(thread)
	if err != nil {
		return nil, err
	}
	out := make([]model.Individual, 0, max)
	for len(out) < min {
		inds, err := p.Source.Produce(st, p.NumParents, p.NumParents, subpop, thread)
		if err != nil {
			return nil, err
		}
		parents, err := vectorParents(inds)
		if err != nil {
			return nil, err
		}
		children, err := p.shuffle(rng, parents)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			if len(out) == max {
				break
			}
			out = append(out, c)
		}
	}
	return out, nil
}

func (p *MultipleVectorCrossover) shuffle(rng *rand.Rand, parents []vector.Vector) ([]model.Individual, error) {
	children := make([]vector.Vector, len(parents))
	n := parents[0].Len()
	for i, parent := range parents {
		if parent.Kind() != parents[0].Kind() {
			return nil, fmt.Errorf("%w: %s and %s", vector.ErrGenomeMismatch, parents[0].Kind(), parent.Kind())
		}
		children[i] = parent.CloneVector()
		if parent.Len() < n {
			n = parent.Len()
		}
	}
	for pos := 0; pos < n; pos++ {
		if rng.Float64() >= p.CrossoverProbability {
			continue
		}
		for j := len(children) - 1; j > 0; j-- {
			k := rng.Intn(j + 1)
			if err := children[j].SwapAt(children[k], pos); err != nil {
				return nil, err
			}
		}
	}
	parentInds := make([]model.Individual, len(parents))
	for i, parent := range parents {
		parentInds[i] = parent
	}
	out := make([]model.Individual, len(children))
	for i, c := range children {
		model.Stamp(c, "multiple-vector-crossover", parentInds...)
		out[i] = c
	}
	return out, nil
}
