// Package evo composes breeding pipelines over tree and vector individuals.
//
// A pipeline is a graph of Sources. Leaf sources draw individuals from the
// current population; inner pipelines copy what their sources produce and
// modify the copies. Pipelines hold per-worker scratch state (node selector
// caches), so each worker thread uses its own Clone.
package evo

import (
	"errors"
	"fmt"
	"math/rand"

	"gpbreed/internal/diag"
	"gpbreed/internal/model"
)

var (
	ErrEmptySubpopulation = errors.New("subpopulation is empty")
	ErrNoRandomSource     = errors.New("random source is required")
	ErrInvalidCount       = errors.New("invalid produce count")
	ErrWrongIndividual    = errors.New("individual kind not supported by pipeline")
	ErrIncompatibleTrees  = errors.New("crossover trees have different root types")
)

// State is what a breeding step can see: per-thread random streams, the
// population being bred from and the diagnostics sink.
type State struct {
	Random     []*rand.Rand
	Population *model.Population
	Sink       diag.Sink
}

func (st *State) rng(thread int) (*rand.Rand, error) {
	if thread < 0 || thread >= len(st.Random) || st.Random[thread] == nil {
		return nil, fmt.Errorf("%w: thread %d", ErrNoRandomSource, thread)
	}
	return st.Random[thread], nil
}

func (st *State) sink() diag.Sink { return diag.OrDiscard(st.Sink) }

func (st *State) subpop(i int) (model.Subpopulation, error) {
	if st.Population == nil || i < 0 || i >= len(st.Population.Subpops) || len(st.Population.Subpops[i]) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrEmptySubpopulation, i)
	}
	return st.Population.Subpops[i], nil
}

// Source produces between min and max individuals for subpop on thread.
// Individuals returned by leaf sources may be population members; inner
// pipelines never modify what they receive without copying it first.
type Source interface {
	TypicalIndsProduced() int
	Produce(st *State, min, max, subpop, thread int) ([]model.Individual, error)
	Clone() Source
}

func checkCount(min, max int) error {
	if min < 1 || max < min {
		return fmt.Errorf("%w: [%d,%d]", ErrInvalidCount, min, max)
	}
	return nil
}

// RandomSource draws population members uniformly with replacement.
type RandomSource struct{}

func (RandomSource) TypicalIndsProduced() int { return 1 }

func (RandomSource) Clone() Source { return RandomSource{} }

func (RandomSource) Produce(st *State, min, max, subpop, thread int) ([]model.Individual, error) {
	if err := checkCount(min, max); err != nil {
		return nil, err
	}
	rng, err := st.rng(thread)
	if err != nil {
		return nil, err
	}
	inds, err := st.subpop(subpop)
	if err != nil {
		return nil, err
	}
	out := make([]model.Individual, min)
	for i := range out {
		out[i] = inds[rng.Intn(len(inds))]
	}
	return out, nil
}

// ReproductionPipeline copies what its source produces.
type ReproductionPipeline struct {
	Source Source
}

func (p *ReproductionPipeline) TypicalIndsProduced() int { return p.Source.TypicalIndsProduced() }

func (p *ReproductionPipeline) Clone() Source {
	return &ReproductionPipeline{Source: p.Source.Clone()}
}

func (p *ReproductionPipeline) Produce(st *State, min, max, subpop, thread int) ([]model.Individual, error) {
	parents, err := p.Source.Produce(st, min, max, subpop, thread)
	if err != nil {
		return nil, err
	}
	out := make([]model.Individual, len(parents))
	for i, parent := range parents {
		out[i] = reproduce(parent)
	}
	return out, nil
}

func reproduce(parent model.Individual) model.Individual {
	child := parent.Clone()
	model.Stamp(child, "reproduction", parent)
	return child
}

// produceParents draws n parents, all from sources[0] when only one source is
// configured, else one from each source in turn.
func produceParents(st *State, sources []Source, n, subpop, thread int) ([]model.Individual, error) {
	if len(sources) == 1 {
		return sources[0].Produce(st, n, n, subpop, thread)
	}
	out := make([]model.Individual, 0, n)
	for i := 0; i < n; i++ {
		got, err := sources[i%len(sources)].Produce(st, 1, 1, subpop, thread)
		if err != nil {
			return nil, err
		}
		out = append(out, got...)
	}
	return out, nil
}

func cloneSources(sources []Source) []Source {
	out := make([]Source, len(sources))
	for i, s := range sources {
		out[i] = s.Clone()
	}
	return out
}

// appendPair appends the produced pair to out, dropping the second child when
// toss is set or max would be exceeded.
func appendPair(out []model.Individual, max int, toss bool, a, b model.Individual) []model.Individual {
	out = append(out, a)
	if !toss && len(out) < max {
		out = append(out, b)
	}
	return out
}

func pairSize(toss bool) int {
	if toss {
		return 1
	}
	return 2
}
