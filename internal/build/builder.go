// Package build constructs random typed trees from a function set.
//
// Builders are read-only after construction. Every call takes the caller's
// per-thread random stream and keeps its scratch state local, so one builder
// may be shared by concurrent workers.
package build

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"gpbreed/internal/diag"
	"gpbreed/internal/funcset"
	"gpbreed/internal/genotype"
	"gpbreed/internal/gptype"
)

// NoSizeGiven asks the builder to choose a size itself.
const NoSizeGiven = -1

var (
	ErrNoNodes            = errors.New("no nodes for type")
	ErrInvalidDyckWord    = errors.New("no valid dyck word rotation")
	ErrNoValidSize        = errors.New("no valid tree size for type")
	ErrNoNodeForArity     = errors.New("no node for type and arity")
	ErrNoSizeDistribution = errors.New("no size distribution configured")
	ErrInvalidConfig      = errors.New("invalid builder configuration")
)

// Builder produces a complete tree rooted at a node compatible with typ.
// requestedSize is a node count hint, or NoSizeGiven.
type Builder interface {
	Build(rng *rand.Rand, typ *gptype.Type, requestedSize int) (*genotype.Tree, error)
}

// SizeDistribution picks a target tree size either uniformly from
// [MinSize, MaxSize] or, when Weights is set, from the discrete table where
// Weights[i] is the weight of size i+1.
type SizeDistribution struct {
	MinSize int
	MaxSize int
	Weights []float64
	cum     []float64
}

// NewSizeTable builds a distribution from per-size weights, size 1 first.
func NewSizeTable(weights []float64) (SizeDistribution, error) {
	cum, err := cumulative(weights)
	if err != nil {
		return SizeDistribution{}, err
	}
	return SizeDistribution{MinSize: 1, MaxSize: len(weights), Weights: append([]float64(nil), weights...), cum: cum}, nil
}

// NewSizeRange builds a uniform distribution over [minSize, maxSize].
func NewSizeRange(minSize, maxSize int) (SizeDistribution, error) {
	if minSize < 1 || maxSize < minSize {
		return SizeDistribution{}, fmt.Errorf("%w: size range [%d,%d]", ErrInvalidConfig, minSize, maxSize)
	}
	return SizeDistribution{MinSize: minSize, MaxSize: maxSize}, nil
}

func (d SizeDistribution) Configured() bool {
	return d.cum != nil || (d.MinSize > 0 && d.MaxSize >= d.MinSize)
}

func (d SizeDistribution) Pick(rng *rand.Rand) (int, error) {
	if d.cum != nil {
		return pickCumulative(rng, d.cum) + 1, nil
	}
	if d.MinSize < 1 || d.MaxSize < d.MinSize {
		return 0, diag.Fatalf(ErrNoSizeDistribution, "size range [%d,%d]", d.MinSize, d.MaxSize)
	}
	return d.MinSize + rng.Intn(d.MaxSize-d.MinSize+1), nil
}

// resolve returns requested when given, else a draw from the distribution.
func (d SizeDistribution) resolve(rng *rand.Rand, requested int) (int, error) {
	if requested != NoSizeGiven {
		return requested, nil
	}
	return d.Pick(rng)
}

// KozaDepth is the depth range shared by Grow, Full and Half.
type KozaDepth struct {
	MinDepth int
	MaxDepth int
}

func (k KozaDepth) validate() error {
	if k.MinDepth < 1 || k.MaxDepth < k.MinDepth {
		return fmt.Errorf("%w: depth range [%d,%d]", ErrInvalidConfig, k.MinDepth, k.MaxDepth)
	}
	return nil
}

func (k KozaDepth) pick(rng *rand.Rand) int {
	return k.MinDepth + rng.Intn(k.MaxDepth-k.MinDepth+1)
}

// cumulative normalizes weights into a running sum ending at 1.
func cumulative(weights []float64) ([]float64, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("%w: empty distribution", ErrInvalidConfig)
	}
	total := 0.0
	for _, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("%w: negative weight %v", ErrInvalidConfig, w)
		}
		total += w
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: all weights zero", ErrInvalidConfig)
	}
	out := make([]float64, len(weights))
	run := 0.0
	last := 0
	for i, w := range weights {
		run += w / total
		out[i] = run
		if w > 0 {
			last = i
		}
	}
	for i := last; i < len(out); i++ {
		out[i] = 1
	}
	return out, nil
}

// pickCumulative returns the first index whose cumulative value exceeds a
// uniform draw, skipping zero-width entries.
func pickCumulative(rng *rand.Rand, cum []float64) int {
	r := rng.Float64()
	i := sort.Search(len(cum), func(i int) bool { return cum[i] > r })
	if i >= len(cum) {
		i = len(cum) - 1
	}
	return i
}

// env is the function set and sink every builder carries.
type env struct {
	fs   *funcset.FunctionSet
	sink diag.Sink
}

func newEnv(fs *funcset.FunctionSet, sink diag.Sink) (env, error) {
	if fs == nil {
		return env{}, fmt.Errorf("%w: function set is required", ErrInvalidConfig)
	}
	if !fs.Finalized() {
		return env{}, funcset.ErrNotFinalized
	}
	return env{fs: fs, sink: diag.OrDiscard(sink)}, nil
}

// requireNodes fails fatally when typ has nothing to instantiate.
func (e env) requireNodes(typ *gptype.Type) error {
	if len(e.fs.Nodes[typ.Index()]) == 0 {
		return e.sink.Fatal(diag.Fatalf(ErrNoNodes, "type %s in function set %s", typ, e.fs.Name))
	}
	return nil
}

// terminal picks a terminal uniformly. With none available it warns once per
// type and substitutes a nonterminal, which may break depth or size bounds.
func (e env) terminal(rng *rand.Rand, typ *gptype.Type) *funcset.Template {
	if ts := e.fs.Terminals[typ.Index()]; len(ts) > 0 {
		return ts[rng.Intn(len(ts))]
	}
	e.sink.WarnOnce("no-terminal:"+typ.Name(),
		"no terminal for type, using a nonterminal", "type", typ.Name(), "function_set", e.fs.Name)
	nts := e.fs.Nonterminals[typ.Index()]
	return nts[rng.Intn(len(nts))]
}

// nonterminal is the mirror of terminal.
func (e env) nonterminal(rng *rand.Rand, typ *gptype.Type) *funcset.Template {
	if nts := e.fs.Nonterminals[typ.Index()]; len(nts) > 0 {
		return nts[rng.Intn(len(nts))]
	}
	e.sink.WarnOnce("no-nonterminal:"+typ.Name(),
		"no nonterminal for type, using a terminal", "type", typ.Name(), "function_set", e.fs.Name)
	ts := e.fs.Terminals[typ.Index()]
	return ts[rng.Intn(len(ts))]
}

func (e env) anyNode(rng *rand.Rand, typ *gptype.Type) *funcset.Template {
	nodes := e.fs.Nodes[typ.Index()]
	return nodes[rng.Intn(len(nodes))]
}
