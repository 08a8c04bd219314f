package evo

import (
	"fmt"
	"math/rand"

	"gpbreed/internal/build"
	"gpbreed/internal/diag"
	"gpbreed/internal/genotype"
	"gpbreed/internal/model"
)

// RandomTree asks a pipeline to pick a tree index at random.
const RandomTree = -1

func treeParent(ind model.Individual) (*genotype.Individual, error) {
	t, ok := ind.(*genotype.Individual)
	if !ok || len(t.Trees) == 0 {
		return nil, fmt.Errorf("%w: %T", ErrWrongIndividual, ind)
	}
	return t, nil
}

func pickTree(rng *rand.Rand, ind *genotype.Individual, fixed int) (int, error) {
	if fixed == RandomTree {
		return rng.Intn(len(ind.Trees)), nil
	}
	if fixed < 0 || fixed >= len(ind.Trees) {
		return 0, fmt.Errorf("%w: tree %d of %d", ErrWrongIndividual, fixed, len(ind.Trees))
	}
	return fixed, nil
}

// withTree returns a new individual sharing every tree of parent except
// index i, which is replaced by tree.
func withTree(parent *genotype.Individual, i int, tree *genotype.Tree) *genotype.Individual {
	trees := make([]*genotype.Tree, len(parent.Trees))
	for j, t := range parent.Trees {
		if j == i {
			trees[j] = tree
		} else {
			trees[j] = t.Clone()
		}
	}
	return genotype.NewIndividual("", trees...)
}

// CrossoverPipeline swaps subtrees between two tree individuals.
type CrossoverPipeline struct {
	// Sources holds one source used for both parents, or one per parent.
	Sources   []Source
	Selectors [2]NodeSelector
	// Tree1 and Tree2 fix the tree index used in each parent, or RandomTree.
	Tree1, Tree2     int
	Tries            int
	MaxDepth         int
	MaxSize          int
	TossSecondParent bool
}

func NewCrossoverPipeline(sources ...Source) *CrossoverPipeline {
	return &CrossoverPipeline{
		Sources:   sources,
		Selectors: [2]NodeSelector{NewKozaNodeSelector(), NewKozaNodeSelector()},
		Tree1:     RandomTree,
		Tree2:     RandomTree,
		Tries:     1,
		MaxDepth:  17,
	}
}

func (c *CrossoverPipeline) TypicalIndsProduced() int { return pairSize(c.TossSecondParent) }

func (c *CrossoverPipeline) Clone() Source {
	out := *c
	out.Sources = cloneSources(c.Sources)
	out.Selectors = [2]NodeSelector{c.Selectors[0].Clone(), c.Selectors[1].Clone()}
	return &out
}

// VerifyPoints reports whether the subtree at d in donor may replace the
// subtree at r in recipient without breaking slot typing, MaxDepth or
// MaxSize.
func (c *CrossoverPipeline) VerifyPoints(donor *genotype.Tree, d genotype.NodeID, recipient *genotype.Tree, r genotype.NodeID) bool {
	if !donor.Template(d).Return.Compatible(recipient.SlotType(r)) {
		return false
	}
	if donor.SubtreeDepth(d)+recipient.AtDepth(r) > c.MaxDepth {
		return false
	}
	if c.MaxSize > 0 {
		donorSize := donor.SubtreeSize(d)
		replaced := recipient.SubtreeSize(r)
		if donorSize > replaced && recipient.Size()-replaced+donorSize > c.MaxSize {
			return false
		}
	}
	return true
}

func (c *CrossoverPipeline) Produce(st *State, min, max, subpop, thread int) ([]model.Individual, error) {
	if err := checkCount(min, max); err != nil {
		return nil, err
	}
	rng, err := st.rng(thread)
	if err != nil {
		return nil, err
	}
	out := make([]model.Individual, 0, max)
	for len(out) < min {
		parents, err := produceParents(st, c.Sources, 2, subpop, thread)
		if err != nil {
			return nil, err
		}
		a, b, err := c.cross(st, rng, parents[0], parents[1])
		if err != nil {
			return nil, err
		}
		out = appendPair(out, max, c.TossSecondParent, a, b)
	}
	return out, nil
}

func (c *CrossoverPipeline) pickTrees(st *State, rng *rand.Rand, p1, p2 *genotype.Individual) (int, int, bool, error) {
	tries := c.Tries
	if c.Tree1 != RandomTree && c.Tree2 != RandomTree {
		tries = 1
	}
	for i := 0; i < tries; i++ {
		t1, err := pickTree(rng, p1, c.Tree1)
		if err != nil {
			return 0, 0, false, err
		}
		t2, err := pickTree(rng, p2, c.Tree2)
		if err != nil {
			return 0, 0, false, err
		}
		if p1.Trees[t1].Type == p2.Trees[t2].Type {
			return t1, t2, true, nil
		}
	}
	if c.Tree1 != RandomTree && c.Tree2 != RandomTree {
		return 0, 0, false, st.sink().Fatal(diag.Fatalf(ErrIncompatibleTrees, "trees %d and %d", c.Tree1, c.Tree2))
	}
	return 0, 0, false, nil
}

func (c *CrossoverPipeline) cross(st *State, rng *rand.Rand, a, b model.Individual) (model.Individual, model.Individual, error) {
	p1, err := treeParent(a)
	if err != nil {
		return nil, nil, err
	}
	p2, err := treeParent(b)
	if err != nil {
		return nil, nil, err
	}
	t1, t2, ok, err := c.pickTrees(st, rng, p1, p2)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return reproduce(a), reproduce(b), nil
	}
	tree1, tree2 := p1.Trees[t1], p2.Trees[t2]

	c.Selectors[0].Reset()
	c.Selectors[1].Reset()
	var n1, n2 genotype.NodeID
	res1, res2 := false, false
	for i := 0; i < c.Tries; i++ {
		n1 = c.Selectors[0].PickNode(rng, tree1)
		n2 = c.Selectors[1].PickNode(rng, tree2)
		res1 = c.VerifyPoints(tree2, n2, tree1, n1)
		res2 = c.TossSecondParent || c.VerifyPoints(tree1, n1, tree2, n2)
		if res1 && res2 {
			break
		}
	}

	var child1, child2 model.Individual
	if res1 {
		ind := withTree(p1, t1, tree1.CloneReplacing(n1, tree2, n2))
		model.Stamp(ind, "crossover", a, b)
		child1 = ind
	} else {
		child1 = reproduce(a)
	}
	if c.TossSecondParent {
		return child1, nil, nil
	}
	if res2 {
		ind := withTree(p2, t2, tree2.CloneReplacing(n2, tree1, n1))
		model.Stamp(ind, "crossover", b, a)
		child2 = ind
	} else {
		child2 = reproduce(b)
	}
	return child1, child2, nil
}

// MutationPipeline replaces a chosen subtree with a freshly built one.
type MutationPipeline struct {
	Source   Source
	Selector NodeSelector
	Builder  build.Builder
	Tree     int
	Tries    int
	MaxDepth int
	MaxSize  int
	// Equal requests a replacement the size of the subtree it replaces.
	Equal bool
}

func NewMutationPipeline(source Source, builder build.Builder) *MutationPipeline {
	return &MutationPipeline{
		Source:   source,
		Selector: NewKozaNodeSelector(),
		Builder:  builder,
		Tree:     RandomTree,
		Tries:    1,
		MaxDepth: 17,
	}
}

func (m *MutationPipeline) TypicalIndsProduced() int { return m.Source.TypicalIndsProduced() }

func (m *MutationPipeline) Clone() Source {
	out := *m
	out.Source = m.Source.Clone()
	out.Selector = m.Selector.Clone()
	return &out
}

func (m *MutationPipeline) Produce(st *State, min, max, subpop, thread int) ([]model.Individual, error) {
	rng, err := st.rng(thread)
	if err != nil {
		return nil, err
	}
	parents, err := m.Source.Produce(st, min, max, subpop, thread)
	if err != nil {
		return nil, err
	}
	out := make([]model.Individual, len(parents))
	for i, parent := range parents {
		if out[i], err = m.mutate(rng, parent); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *MutationPipeline) mutate(rng *rand.Rand, parent model.Individual) (model.Individual, error) {
	p, err := treeParent(parent)
	if err != nil {
		return nil, err
	}
	t, err := pickTree(rng, p, m.Tree)
	if err != nil {
		return nil, err
	}
	tree := p.Trees[t]
	m.Selector.Reset()
	for i := 0; i < m.Tries; i++ {
		at := m.Selector.PickNode(rng, tree)
		size := build.NoSizeGiven
		if m.Equal {
			size = tree.SubtreeSize(at)
		}
		sub, err := m.Builder.Build(rng, tree.SlotType(at), size)
		if err != nil {
			return nil, err
		}
		if sub.Depth()+tree.AtDepth(at) > m.MaxDepth {
			continue
		}
		if m.MaxSize > 0 && tree.Size()-tree.SubtreeSize(at)+sub.Size() > m.MaxSize {
			continue
		}
		child := withTree(p, t, tree.CloneReplacing(at, sub, sub.Root))
		model.Stamp(child, "mutation", parent)
		return child, nil
	}
	return reproduce(parent), nil
}
