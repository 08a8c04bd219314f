package build

import (
	"fmt"
	"math/rand"
	"sync"

	"gpbreed/internal/diag"
	"gpbreed/internal/funcset"
	"gpbreed/internal/genotype"
	"gpbreed/internal/gptype"
)

// PTCCacheSize bounds the expected sizes whose PTC1 probability vectors are
// memoized.
const PTCCacheSize = 1024

// ptcTables holds per-type weight distributions. Weights are normalized within
// the terminals and within the nonterminals of each type independently.
type ptcTables struct {
	terminals    [][]float64
	nonterminals [][]float64
	// branching[t] is the expected arity of a nonterminal drawn for type t.
	branching []float64
}

func newPTCTables(fs *funcset.FunctionSet) ptcTables {
	n := fs.Types.Len()
	p := ptcTables{
		terminals:    make([][]float64, n),
		nonterminals: make([][]float64, n),
		branching:    make([]float64, n),
	}
	for t := 0; t < n; t++ {
		p.terminals[t] = weightCumulative(fs.Terminals[t])
		p.nonterminals[t] = weightCumulative(fs.Nonterminals[t])
		total := 0.0
		for _, tpl := range fs.Nonterminals[t] {
			total += tpl.Weight
		}
		for _, tpl := range fs.Nonterminals[t] {
			p.branching[t] += float64(tpl.Arity()) * tpl.Weight / total
		}
	}
	return p
}

func weightCumulative(tpls []*funcset.Template) []float64 {
	if len(tpls) == 0 {
		return nil
	}
	w := make([]float64, len(tpls))
	for i, tpl := range tpls {
		w[i] = tpl.Weight
	}
	cum, err := cumulative(w)
	if err != nil {
		return nil
	}
	return cum
}

// nonterminalProbabilities computes, per type, the chance of expanding a slot
// so that trees average expectedSize nodes.
func (p ptcTables) nonterminalProbabilities(expectedSize int) []float64 {
	out := make([]float64, len(p.branching))
	for t, b := range p.branching {
		if b == 0 {
			continue
		}
		out[t] = (1 - 1/float64(expectedSize)) / b
	}
	return out
}

func (p ptcTables) terminal(e env, rng *rand.Rand, typ *gptype.Type) *funcset.Template {
	i := typ.Index()
	if p.terminals[i] == nil {
		return e.terminal(rng, typ)
	}
	return e.fs.Terminals[i][pickCumulative(rng, p.terminals[i])]
}

func (p ptcTables) nonterminal(e env, rng *rand.Rand, typ *gptype.Type) *funcset.Template {
	i := typ.Index()
	if p.nonterminals[i] == nil {
		return e.nonterminal(rng, typ)
	}
	return e.fs.Nonterminals[i][pickCumulative(rng, p.nonterminals[i])]
}

// PTC1 grows trees whose expected size is ExpectedSize. At every slot it
// expands with the per-type probability computed for the whole tree, so the
// mean holds globally rather than per subtree.
type PTC1 struct {
	env
	tables       ptcTables
	ExpectedSize int
	MaxDepth     int

	mu    sync.RWMutex
	cache map[int][]float64
}

func NewPTC1(fs *funcset.FunctionSet, sink diag.Sink, expectedSize, maxDepth int) (*PTC1, error) {
	e, err := newEnv(fs, sink)
	if err != nil {
		return nil, err
	}
	if expectedSize < 1 || maxDepth < 1 {
		return nil, fmt.Errorf("%w: ptc1 expected size %d max depth %d", ErrInvalidConfig, expectedSize, maxDepth)
	}
	return &PTC1{
		env:          e,
		tables:       newPTCTables(fs),
		ExpectedSize: expectedSize,
		MaxDepth:     maxDepth,
		cache:        make(map[int][]float64),
	}, nil
}

// probabilities returns the vector for expectedSize, memoized below
// PTCCacheSize.
func (b *PTC1) probabilities(expectedSize int) []float64 {
	if expectedSize >= PTCCacheSize {
		return b.tables.nonterminalProbabilities(expectedSize)
	}
	b.mu.RLock()
	probs, ok := b.cache[expectedSize]
	b.mu.RUnlock()
	if ok {
		return probs
	}
	probs = b.tables.nonterminalProbabilities(expectedSize)
	b.mu.Lock()
	b.cache[expectedSize] = probs
	b.mu.Unlock()
	return probs
}

// Build uses requestedSize as the expected size when given.
func (b *PTC1) Build(rng *rand.Rand, typ *gptype.Type, requestedSize int) (*genotype.Tree, error) {
	expected := b.ExpectedSize
	if requestedSize != NoSizeGiven {
		expected = requestedSize
	}
	if expected < 1 {
		return nil, b.sink.Fatal(diag.Fatalf(ErrInvalidConfig, "ptc1 expected size %d", expected))
	}
	probs := b.probabilities(expected)
	t := genotype.NewTree(typ)
	if err := b.node(rng, t, typ, 1, probs, genotype.NoNode, 0); err != nil {
		return nil, err
	}
	return t, nil
}

func (b *PTC1) node(rng *rand.Rand, t *genotype.Tree, typ *gptype.Type, depth int, probs []float64, parent genotype.NodeID, argPos int) error {
	if err := b.requireNodes(typ); err != nil {
		return err
	}
	var tpl *funcset.Template
	if depth >= b.MaxDepth || rng.Float64() >= probs[typ.Index()] {
		tpl = b.tables.terminal(b.env, rng, typ)
	} else {
		tpl = b.tables.nonterminal(b.env, rng, typ)
	}
	id := t.Add(tpl, parent, argPos)
	for i, ct := range tpl.Children {
		if err := b.node(rng, t, ct, depth+1, probs, id, i); err != nil {
			return err
		}
	}
	return nil
}

// PTC2 grows trees of the requested size or slightly more by expanding
// randomly chosen open slots until the committed node count reaches the
// target.
type PTC2 struct {
	env
	tables   ptcTables
	MaxDepth int
	Sizes    SizeDistribution
}

func NewPTC2(fs *funcset.FunctionSet, sink diag.Sink, maxDepth int, sizes SizeDistribution) (*PTC2, error) {
	e, err := newEnv(fs, sink)
	if err != nil {
		return nil, err
	}
	if maxDepth < 1 {
		return nil, fmt.Errorf("%w: ptc2 max depth %d", ErrInvalidConfig, maxDepth)
	}
	return &PTC2{env: e, tables: newPTCTables(fs), MaxDepth: maxDepth, Sizes: sizes}, nil
}

type openSlot struct {
	parent genotype.NodeID
	argPos int
	depth  int
	typ    *gptype.Type
}

func (b *PTC2) Build(rng *rand.Rand, typ *gptype.Type, requestedSize int) (*genotype.Tree, error) {
	size, err := b.Sizes.resolve(rng, requestedSize)
	if err != nil {
		return nil, b.sink.Fatal(err)
	}
	if err := b.requireNodes(typ); err != nil {
		return nil, err
	}
	t := genotype.NewTree(typ)
	if size <= 1 || b.MaxDepth <= 1 {
		t.Add(b.tables.terminal(b.env, rng, typ), genotype.NoNode, 0)
		return t, nil
	}

	root := b.tables.nonterminal(b.env, rng, typ)
	id := t.Add(root, genotype.NoNode, 0)
	horizon := make([]openSlot, 0, size)
	for i, ct := range root.Children {
		horizon = append(horizon, openSlot{parent: id, argPos: i, depth: 2, typ: ct})
	}
	placed := 1
	for len(horizon) > 0 {
		pending := len(horizon)
		i := rng.Intn(pending)
		slot := horizon[i]
		horizon[i] = horizon[pending-1]
		horizon = horizon[:pending-1]

		if err := b.requireNodes(slot.typ); err != nil {
			return nil, err
		}
		var tpl *funcset.Template
		if pending+placed >= size || slot.depth >= b.MaxDepth || len(b.fs.Nonterminals[slot.typ.Index()]) == 0 {
			tpl = b.tables.terminal(b.env, rng, slot.typ)
		} else {
			tpl = b.tables.nonterminal(b.env, rng, slot.typ)
		}
		nid := t.Add(tpl, slot.parent, slot.argPos)
		placed++
		for ci, ct := range tpl.Children {
			horizon = append(horizon, openSlot{parent: nid, argPos: ci, depth: slot.depth + 1, typ: ct})
		}
	}
	return t, nil
}
