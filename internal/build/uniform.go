package build

import (
	"fmt"
	"math/big"
	"math/rand"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"gpbreed/internal/diag"
	"gpbreed/internal/funcset"
	"gpbreed/internal/genotype"
	"gpbreed/internal/gptype"
	"gpbreed/internal/model"
)

type permKey struct {
	node  int
	outof int
	child int
}

// CountTable holds exact tree counts for one function set up to MaxSize
// nodes, and the sampling distributions derived from them. It is written
// once by NewCountTable (or CountTableFromRecord) and read-only afterwards.
type CountTable struct {
	fs      *funcset.FunctionSet
	maxSize int

	// types[t][s] and nodes[id][s]; index 0 is unused.
	types [][]*big.Int
	nodes [][]*big.Int
	perms map[permKey]*big.Int

	// roots[t][s] is cumulative over fs.Nodes[t].
	roots [][][]float64
	// children[k] is cumulative over child sizes 1..n for the non-final
	// child k.child of template k.node given k.outof remaining nodes.
	children map[permKey][]float64
}

// NewCountTable counts every tree of every type up to maxSize nodes.
func NewCountTable(fs *funcset.FunctionSet, maxSize int) (*CountTable, error) {
	if _, err := newEnv(fs, nil); err != nil {
		return nil, err
	}
	if maxSize < 1 {
		return nil, fmt.Errorf("%w: count table max size %d", ErrInvalidConfig, maxSize)
	}
	ct := newEmptyTable(fs, maxSize)
	for s := 1; s <= maxSize; s++ {
		for _, tpl := range fs.Templates {
			ct.nodes[tpl.ID][s] = ct.rootedBy(tpl, s)
		}
		for t := range ct.types {
			sum := new(big.Int)
			for _, tpl := range fs.Nodes[t] {
				sum.Add(sum, ct.nodes[tpl.ID][s])
			}
			ct.types[t][s] = sum
		}
	}
	ct.derive()
	return ct, nil
}

func newEmptyTable(fs *funcset.FunctionSet, maxSize int) *CountTable {
	ct := &CountTable{
		fs:       fs,
		maxSize:  maxSize,
		types:    make([][]*big.Int, fs.Types.Len()),
		nodes:    make([][]*big.Int, len(fs.Templates)),
		perms:    make(map[permKey]*big.Int),
		children: make(map[permKey][]float64),
	}
	for i := range ct.types {
		ct.types[i] = zeros(maxSize + 1)
	}
	for i := range ct.nodes {
		ct.nodes[i] = zeros(maxSize + 1)
	}
	return ct
}

func zeros(n int) []*big.Int {
	out := make([]*big.Int, n)
	for i := range out {
		out[i] = new(big.Int)
	}
	return out
}

func (ct *CountTable) rootedBy(tpl *funcset.Template, size int) *big.Int {
	if tpl.IsTerminal() {
		if size == 1 {
			return big.NewInt(1)
		}
		return new(big.Int)
	}
	if size-1 < tpl.Arity() {
		return new(big.Int)
	}
	return new(big.Int).Set(ct.permutations(tpl, size-1, 0))
}

// permutations counts the ways children child..arity-1 of tpl can share outof
// nodes. Only counts of sizes below the one being filled are read.
func (ct *CountTable) permutations(tpl *funcset.Template, outof, child int) *big.Int {
	key := permKey{node: tpl.ID, outof: outof, child: child}
	if v, ok := ct.perms[key]; ok {
		return v
	}
	arity := tpl.Arity()
	ctype := tpl.Children[child].Index()
	sum := new(big.Int)
	if child == arity-1 {
		if outof >= 1 && outof <= ct.maxSize {
			sum.Set(ct.types[ctype][outof])
		}
	} else {
		var term big.Int
		for k := 1; k <= outof-(arity-1-child); k++ {
			rest := ct.permutations(tpl, outof-k, child+1)
			term.Mul(ct.types[ctype][k], rest)
			sum.Add(sum, &term)
		}
	}
	ct.perms[key] = sum
	return sum
}

func (ct *CountTable) perm(tpl *funcset.Template, outof, child int) *big.Int {
	if v, ok := ct.perms[permKey{node: tpl.ID, outof: outof, child: child}]; ok {
		return v
	}
	return new(big.Int)
}

// ratio narrows a/b to float64 for sampling.
func ratio(a, b *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(a), new(big.Float).SetInt(b)).Float64()
	return f
}

func (ct *CountTable) derive() {
	ct.roots = make([][][]float64, len(ct.types))
	for t := range ct.types {
		ct.roots[t] = make([][]float64, ct.maxSize+1)
		for s := 1; s <= ct.maxSize; s++ {
			total := ct.types[t][s]
			if total.Sign() == 0 {
				continue
			}
			w := make([]float64, len(ct.fs.Nodes[t]))
			for i, tpl := range ct.fs.Nodes[t] {
				w[i] = ratio(ct.nodes[tpl.ID][s], total)
			}
			ct.roots[t][s], _ = cumulative(w)
		}
	}
	for key, total := range ct.perms {
		tpl := ct.fs.Templates[key.node]
		if key.child == tpl.Arity()-1 || total.Sign() == 0 {
			continue
		}
		ctype := tpl.Children[key.child].Index()
		n := key.outof - (tpl.Arity() - 1 - key.child)
		if n < 1 {
			continue
		}
		w := make([]float64, n)
		var term big.Int
		for k := 1; k <= n; k++ {
			term.Mul(ct.types[ctype][k], ct.perm(tpl, key.outof-k, key.child+1))
			w[k-1] = ratio(&term, total)
		}
		if cum, err := cumulative(w); err == nil {
			ct.children[key] = cum
		}
	}
}

func (ct *CountTable) MaxSize() int { return ct.maxSize }

// NumTreesOfType is the number of distinct trees of exactly size nodes whose
// root is compatible with typ.
func (ct *CountTable) NumTreesOfType(typ *gptype.Type, size int) *big.Int {
	if size < 1 || size > ct.maxSize {
		return new(big.Int)
	}
	return new(big.Int).Set(ct.types[typ.Index()][size])
}

func (ct *CountTable) NumTreesRootedByNode(tpl *funcset.Template, size int) *big.Int {
	if size < 1 || size > ct.maxSize {
		return new(big.Int)
	}
	return new(big.Int).Set(ct.nodes[tpl.ID][size])
}

func (ct *CountTable) NumChildPermutations(tpl *funcset.Template, outof, child int) *big.Int {
	return new(big.Int).Set(ct.perm(tpl, outof, child))
}

// CountTableKey identifies a table by function-set structure and size bound.
func CountTableKey(fs *funcset.FunctionSet, maxSize int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fs.Fingerprint()+"#"+strconv.Itoa(maxSize))).String()
}

// Record exports the counts for caching.
func (ct *CountTable) Record() model.CountTableRecord {
	rec := model.CountTableRecord{
		Key:         CountTableKey(ct.fs, ct.maxSize),
		FunctionSet: ct.fs.Name,
		MaxSize:     ct.maxSize,
		TypeCounts:  make(map[string][]string, len(ct.types)),
		PermCounts:  make(map[string]string),
	}
	for t, counts := range ct.types {
		row := make([]string, len(counts))
		for s, c := range counts {
			row[s] = c.String()
		}
		rec.TypeCounts[ct.fs.Types.At(t).Name()] = row
	}
	for key, v := range ct.perms {
		if v.Sign() == 0 {
			continue
		}
		name := ct.fs.Templates[key.node].Name
		rec.PermCounts[fmt.Sprintf("%s/%d/%d", name, key.outof, key.child)] = v.String()
	}
	return rec
}

// CountTableFromRecord restores a table exported by Record for the same
// function set, skipping the counting pass.
func CountTableFromRecord(fs *funcset.FunctionSet, rec model.CountTableRecord) (*CountTable, error) {
	if _, err := newEnv(fs, nil); err != nil {
		return nil, err
	}
	if rec.MaxSize < 1 {
		return nil, fmt.Errorf("%w: count table max size %d", ErrInvalidConfig, rec.MaxSize)
	}
	if want := CountTableKey(fs, rec.MaxSize); rec.Key != want {
		return nil, fmt.Errorf("%w: count table key %s does not match function set %s", ErrInvalidConfig, rec.Key, fs.Name)
	}
	ct := newEmptyTable(fs, rec.MaxSize)
	for t := range ct.types {
		name := fs.Types.At(t).Name()
		row, ok := rec.TypeCounts[name]
		if !ok || len(row) != rec.MaxSize+1 {
			return nil, fmt.Errorf("%w: count table row for type %s", ErrInvalidConfig, name)
		}
		for s, v := range row {
			if _, ok := ct.types[t][s].SetString(v, 10); !ok {
				return nil, fmt.Errorf("%w: count %q for type %s", ErrInvalidConfig, v, name)
			}
		}
	}
	for k, v := range rec.PermCounts {
		parts := strings.Split(k, "/")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: permutation key %q", ErrInvalidConfig, k)
		}
		tpl, err := fs.Lookup(parts[0])
		if err != nil {
			return nil, err
		}
		outof, err1 := strconv.Atoi(parts[1])
		child, err2 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || child < 0 || child >= tpl.Arity() {
			return nil, fmt.Errorf("%w: permutation key %q", ErrInvalidConfig, k)
		}
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("%w: permutation count %q", ErrInvalidConfig, v)
		}
		ct.perms[permKey{node: tpl.ID, outof: outof, child: child}] = n
	}
	for _, tpl := range fs.Templates {
		for s := 1; s <= ct.maxSize; s++ {
			if tpl.IsTerminal() {
				if s == 1 {
					ct.nodes[tpl.ID][s].SetInt64(1)
				}
				continue
			}
			ct.nodes[tpl.ID][s].Set(ct.perm(tpl, s-1, 0))
		}
	}
	ct.derive()
	return ct, nil
}

// Uniform samples trees uniformly among all trees of the chosen type and
// size. The size comes from the request, the true distribution of tree counts
// over [Sizes.MinSize, Table.MaxSize], or Sizes.
type Uniform struct {
	env
	Table            *CountTable
	Sizes            SizeDistribution
	TrueDistribution bool
	// trueDist[t] is cumulative over sizes 1..Table.MaxSize.
	trueDist [][]float64
}

// NewUniform builds the count table when table is nil, sized to
// sizes.MaxSize.
func NewUniform(fs *funcset.FunctionSet, sink diag.Sink, table *CountTable, sizes SizeDistribution, trueDistribution bool) (*Uniform, error) {
	e, err := newEnv(fs, sink)
	if err != nil {
		return nil, err
	}
	if !sizes.Configured() {
		return nil, ErrNoSizeDistribution
	}
	if table == nil {
		if table, err = NewCountTable(fs, sizes.MaxSize); err != nil {
			return nil, err
		}
	}
	if table.fs != fs {
		return nil, fmt.Errorf("%w: count table built for another function set", ErrInvalidConfig)
	}
	u := &Uniform{env: e, Table: table, Sizes: sizes, TrueDistribution: trueDistribution}
	if trueDistribution {
		lo := sizes.MinSize
		if lo < 1 {
			lo = 1
		}
		u.trueDist = make([][]float64, len(table.types))
		for t, counts := range table.types {
			w := make([]float64, table.maxSize)
			var total big.Int
			for s := lo; s <= table.maxSize; s++ {
				total.Add(&total, counts[s])
			}
			if total.Sign() == 0 {
				continue
			}
			for s := lo; s <= table.maxSize; s++ {
				w[s-1] = ratio(counts[s], &total)
			}
			u.trueDist[t], _ = cumulative(w)
		}
	}
	return u, nil
}

func (u *Uniform) Build(rng *rand.Rand, typ *gptype.Type, requestedSize int) (*genotype.Tree, error) {
	if err := u.requireNodes(typ); err != nil {
		return nil, err
	}
	size := requestedSize
	if size == NoSizeGiven {
		if u.TrueDistribution {
			dist := u.trueDist[typ.Index()]
			if dist == nil {
				return nil, u.sink.Fatal(diag.Fatalf(ErrNoValidSize, "type %s up to size %d", typ, u.Table.maxSize))
			}
			size = pickCumulative(rng, dist) + 1
		} else {
			var err error
			if size, err = u.Sizes.Pick(rng); err != nil {
				return nil, u.sink.Fatal(err)
			}
		}
	}
	s, ok := u.nearestNonEmptySize(typ, size)
	if !ok {
		return nil, u.sink.Fatal(diag.Fatalf(ErrNoValidSize, "type %s up to size %d", typ, u.Table.maxSize))
	}
	t := genotype.NewTree(typ)
	if err := u.fill(rng, t, typ, s, genotype.NoNode, 0); err != nil {
		return nil, err
	}
	return t, nil
}

// nearestNonEmptySize searches upward from size to the table bound, then
// downward to 1, for a size with at least one tree of typ.
func (u *Uniform) nearestNonEmptySize(typ *gptype.Type, size int) (int, bool) {
	counts := u.Table.types[typ.Index()]
	bound := u.Table.maxSize
	nonEmpty := func(s int) bool { return s >= 1 && s <= bound && counts[s].Sign() > 0 }
	if nonEmpty(size) {
		return size, true
	}
	for s := size + 1; s <= bound; s++ {
		if nonEmpty(s) {
			return s, true
		}
	}
	start := size - 1
	if start > bound {
		start = bound
	}
	for s := start; s >= 1; s-- {
		if nonEmpty(s) {
			return s, true
		}
	}
	return 0, false
}

func (u *Uniform) fill(rng *rand.Rand, t *genotype.Tree, typ *gptype.Type, size int, parent genotype.NodeID, argPos int) error {
	cum := u.Table.roots[typ.Index()][size]
	if cum == nil {
		return u.sink.Fatal(diag.Fatalf(ErrNoValidSize, "type %s size %d", typ, size))
	}
	tpl := u.fs.Nodes[typ.Index()][pickCumulative(rng, cum)]
	id := t.Add(tpl, parent, argPos)
	remaining := size - 1
	for c, ct := range tpl.Children {
		k := remaining
		if c < tpl.Arity()-1 {
			dist := u.Table.children[permKey{node: tpl.ID, outof: remaining, child: c}]
			if dist == nil {
				return u.sink.Fatal(diag.Fatalf(ErrNoValidSize, "%s child %d out of %d", tpl.Name, c, remaining))
			}
			k = pickCumulative(rng, dist) + 1
		}
		if err := u.fill(rng, t, ct, k, id, c); err != nil {
			return err
		}
		remaining -= k
	}
	return nil
}
