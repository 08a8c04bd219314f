package build

import (
	"math/big"
	"math/rand"
	"strings"

	"gpbreed/internal/diag"
	"gpbreed/internal/funcset"
	"gpbreed/internal/genotype"
	"gpbreed/internal/gptype"
)

// RandTree samples the multiset of node arities for the target size in
// proportion to the number of node orderings it admits, shuffles it, and
// rotates the resulting Dyck word until it describes a single tree.
type RandTree struct {
	env
	Sizes SizeDistribution
}

func NewRandTree(fs *funcset.FunctionSet, sink diag.Sink, sizes SizeDistribution) (*RandTree, error) {
	e, err := newEnv(fs, sink)
	if err != nil {
		return nil, err
	}
	return &RandTree{env: e, Sizes: sizes}, nil
}

// CheckDyckWord reports whether word, read with 'x' as push and 'y' as pop,
// never underflows and leaves exactly one symbol on the stack.
func CheckDyckWord(word string) bool {
	depth := 0
	for _, r := range word {
		switch r {
		case 'x':
			depth++
		case 'y':
			depth--
			if depth < 0 {
				return false
			}
		default:
			return false
		}
	}
	return depth == 1
}

// DyckWord encodes a postfix arity sequence: a node of arity a becomes
// a 'y's followed by one 'x'.
func DyckWord(arities []int) string {
	var b strings.Builder
	for _, a := range arities {
		b.WriteString(strings.Repeat("y", a))
		b.WriteByte('x')
	}
	return b.String()
}

func (b *RandTree) Build(rng *rand.Rand, typ *gptype.Type, requestedSize int) (*genotype.Tree, error) {
	size, err := b.Sizes.resolve(rng, requestedSize)
	if err != nil {
		return nil, b.sink.Fatal(err)
	}
	if size < 1 {
		size = 1
	}
	if err := b.requireNodes(typ); err != nil {
		return nil, err
	}

	arities := b.fs.Arities(typ)
	var comps [][]int
	achieved := size
	for ; achieved >= 1; achieved-- {
		if comps = compositions(arities, achieved-1); len(comps) > 0 {
			break
		}
	}
	if achieved != size {
		b.sink.Message("rand tree size not achievable with available arities",
			"requested", size, "using", achieved, "type", typ.Name())
	}

	m := comps[pickComposition(rng, comps, achieved)]
	seq := make([]int, 0, achieved)
	placed := 0
	for i, count := range m {
		for j := 0; j < count; j++ {
			seq = append(seq, arities[i])
		}
		placed += count
	}
	for i := placed; i < achieved; i++ {
		seq = append(seq, 0)
	}
	rng.Shuffle(len(seq), func(i, j int) { seq[i], seq[j] = seq[j], seq[i] })

	valid := false
	for try := 0; try < 2*achieved-1; try++ {
		if CheckDyckWord(DyckWord(seq)) {
			valid = true
			break
		}
		seq = append(seq[1:], seq[0])
	}
	if !valid {
		return nil, b.sink.Fatal(diag.Fatalf(ErrInvalidDyckWord, "size %d word %s", achieved, DyckWord(seq)))
	}

	root := parseShape(seq)
	t := genotype.NewTree(typ)
	if err := b.instantiate(rng, t, root, typ, genotype.NoNode, 0); err != nil {
		return nil, err
	}
	return t, nil
}

// compositions lists every multiplicity vector m with sum(m[i]*arities[i])
// equal to total.
func compositions(arities []int, total int) [][]int {
	if len(arities) == 0 {
		if total == 0 {
			return [][]int{{}}
		}
		return nil
	}
	var out [][]int
	cur := make([]int, len(arities))
	var walk func(i, remaining int)
	walk = func(i, remaining int) {
		if i == len(arities)-1 {
			if remaining%arities[i] == 0 {
				cur[i] = remaining / arities[i]
				out = append(out, append([]int(nil), cur...))
			}
			return
		}
		for n := 0; n*arities[i] <= remaining; n++ {
			cur[i] = n
			walk(i+1, remaining-n*arities[i])
		}
	}
	walk(0, total)
	return out
}

// pickComposition weights each vector by size!/(leaves! * prod(m[i]!)), the
// number of distinct node orderings it yields.
func pickComposition(rng *rand.Rand, comps [][]int, size int) int {
	if len(comps) == 1 {
		return 0
	}
	fact := func(n int) *big.Int { return new(big.Int).MulRange(1, int64(n)) }
	counts := make([]*big.Int, len(comps))
	total := new(big.Int)
	for i, m := range comps {
		internal := 0
		denom := big.NewInt(1)
		for _, c := range m {
			internal += c
			denom.Mul(denom, fact(c))
		}
		denom.Mul(denom, fact(size-internal))
		counts[i] = new(big.Int).Quo(fact(size), denom)
		total.Add(total, counts[i])
	}
	w := make([]float64, len(comps))
	for i, c := range counts {
		w[i] = ratio(c, total)
	}
	cum, err := cumulative(w)
	if err != nil {
		return 0
	}
	return pickCumulative(rng, cum)
}

type shape struct {
	arity    int
	children []*shape
}

// parseShape reads a validated postfix arity sequence.
func parseShape(seq []int) *shape {
	stack := make([]*shape, 0, len(seq))
	for _, a := range seq {
		s := &shape{arity: a}
		if a > 0 {
			s.children = append([]*shape(nil), stack[len(stack)-a:]...)
			stack = stack[:len(stack)-a]
		}
		stack = append(stack, s)
	}
	return stack[0]
}

func (b *RandTree) instantiate(rng *rand.Rand, t *genotype.Tree, s *shape, typ *gptype.Type, parent genotype.NodeID, argPos int) error {
	byArity := b.fs.ByArity[typ.Index()]
	if s.arity >= len(byArity) || len(byArity[s.arity]) == 0 {
		return b.sink.Fatal(diag.Fatalf(ErrNoNodeForArity, "type %s arity %d", typ, s.arity))
	}
	bucket := byArity[s.arity]
	tpl := bucket[rng.Intn(len(bucket))]
	id := t.Add(tpl, parent, argPos)
	for i, child := range s.children {
		if err := b.instantiate(rng, t, child, tpl.Children[i], id, i); err != nil {
			return err
		}
	}
	return nil
}
