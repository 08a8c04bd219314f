package build

import (
	"fmt"
	"math/rand"

	"gpbreed/internal/diag"
	"gpbreed/internal/funcset"
	"gpbreed/internal/genotype"
	"gpbreed/internal/gptype"
)

// RandomBranch builds trees of at most the chosen length by giving each child
// of a node (length-1)/arity nodes. The integer division means subtrees often
// receive less than an even share.
type RandomBranch struct {
	env
	MaxDepth int
	Sizes    SizeDistribution
}

func NewRandomBranch(fs *funcset.FunctionSet, sink diag.Sink, maxDepth int, sizes SizeDistribution) (*RandomBranch, error) {
	e, err := newEnv(fs, sink)
	if err != nil {
		return nil, err
	}
	if maxDepth < 1 {
		return nil, fmt.Errorf("%w: random branch max depth %d", ErrInvalidConfig, maxDepth)
	}
	return &RandomBranch{env: e, MaxDepth: maxDepth, Sizes: sizes}, nil
}

func (b *RandomBranch) Build(rng *rand.Rand, typ *gptype.Type, requestedSize int) (*genotype.Tree, error) {
	length, err := b.Sizes.resolve(rng, requestedSize)
	if err != nil {
		return nil, b.sink.Fatal(err)
	}
	t := genotype.NewTree(typ)
	if err := b.branch(rng, t, typ, length, 1, genotype.NoNode, 0); err != nil {
		return nil, err
	}
	return t, nil
}

func (b *RandomBranch) branch(rng *rand.Rand, t *genotype.Tree, typ *gptype.Type, length, depth int, parent genotype.NodeID, argPos int) error {
	if err := b.requireNodes(typ); err != nil {
		return err
	}
	var tpl *funcset.Template
	if length > 1 && depth < b.MaxDepth {
		byArity := b.fs.ByArity[typ.Index()]
		var fits []*funcset.Template
		for a := 1; a <= length-1 && a < len(byArity); a++ {
			fits = append(fits, byArity[a]...)
		}
		if len(fits) > 0 {
			tpl = fits[rng.Intn(len(fits))]
		}
	}
	if tpl == nil {
		tpl = b.terminal(rng, typ)
	}
	id := t.Add(tpl, parent, argPos)
	if tpl.IsTerminal() {
		return nil
	}
	share := (length - 1) / tpl.Arity()
	for i, ct := range tpl.Children {
		if err := b.branch(rng, t, ct, share, depth+1, id, i); err != nil {
			return err
		}
	}
	return nil
}
