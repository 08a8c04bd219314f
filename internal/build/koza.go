package build

import (
	"math/rand"

	"gpbreed/internal/diag"
	"gpbreed/internal/funcset"
	"gpbreed/internal/genotype"
	"gpbreed/internal/gptype"
)

// Grow picks a depth d in [MinDepth, MaxDepth] and fills every slot from the
// full node pool until the depth budget forces terminals. requestedSize is
// ignored.
type Grow struct {
	env
	KozaDepth
}

func NewGrow(fs *funcset.FunctionSet, sink diag.Sink, depth KozaDepth) (*Grow, error) {
	e, err := newEnv(fs, sink)
	if err != nil {
		return nil, err
	}
	if err := depth.validate(); err != nil {
		return nil, err
	}
	return &Grow{env: e, KozaDepth: depth}, nil
}

func (b *Grow) Build(rng *rand.Rand, typ *gptype.Type, _ int) (*genotype.Tree, error) {
	return kozaTree(b.env, rng, typ, b.pick(rng), false)
}

// Full is Grow restricted to nonterminals above the chosen depth, so every
// branch reaches it.
type Full struct {
	env
	KozaDepth
}

func NewFull(fs *funcset.FunctionSet, sink diag.Sink, depth KozaDepth) (*Full, error) {
	e, err := newEnv(fs, sink)
	if err != nil {
		return nil, err
	}
	if err := depth.validate(); err != nil {
		return nil, err
	}
	return &Full{env: e, KozaDepth: depth}, nil
}

func (b *Full) Build(rng *rand.Rand, typ *gptype.Type, _ int) (*genotype.Tree, error) {
	return kozaTree(b.env, rng, typ, b.pick(rng), true)
}

// Half is ramped half-and-half: each call builds Full or, with probability
// GrowProbability, Grow.
type Half struct {
	env
	KozaDepth
	GrowProbability float64
}

func NewHalf(fs *funcset.FunctionSet, sink diag.Sink, depth KozaDepth, growProbability float64) (*Half, error) {
	e, err := newEnv(fs, sink)
	if err != nil {
		return nil, err
	}
	if err := depth.validate(); err != nil {
		return nil, err
	}
	if growProbability < 0 || growProbability > 1 {
		return nil, ErrInvalidConfig
	}
	return &Half{env: e, KozaDepth: depth, GrowProbability: growProbability}, nil
}

func (b *Half) Build(rng *rand.Rand, typ *gptype.Type, _ int) (*genotype.Tree, error) {
	full := rng.Float64() >= b.GrowProbability
	return kozaTree(b.env, rng, typ, b.pick(rng), full)
}

func kozaTree(e env, rng *rand.Rand, typ *gptype.Type, depth int, full bool) (*genotype.Tree, error) {
	t := genotype.NewTree(typ)
	if err := kozaNode(e, rng, t, typ, 0, depth, full, genotype.NoNode, 0); err != nil {
		return nil, err
	}
	return t, nil
}

// kozaNode places a node at edge depth current (root is 0) in a tree aimed at
// target levels of nodes.
func kozaNode(e env, rng *rand.Rand, t *genotype.Tree, typ *gptype.Type, current, target int, full bool, parent genotype.NodeID, argPos int) error {
	if err := e.requireNodes(typ); err != nil {
		return err
	}
	var tpl *funcset.Template
	switch {
	case current+1 >= target:
		tpl = e.terminal(rng, typ)
	case full:
		tpl = e.nonterminal(rng, typ)
	default:
		tpl = e.anyNode(rng, typ)
	}
	id := t.Add(tpl, parent, argPos)
	for i, ct := range tpl.Children {
		if err := kozaNode(e, rng, t, ct, current+1, target, full, id, i); err != nil {
			return err
		}
	}
	return nil
}
