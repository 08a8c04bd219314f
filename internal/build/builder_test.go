package build

import (
	"errors"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/stat"

	"gpbreed/internal/diag"
	"gpbreed/internal/funcset"
	"gpbreed/internal/genotype"
	"gpbreed/internal/gptype"
	"gpbreed/internal/params"
)

func mustSet(t *testing.T, name string) *funcset.FunctionSet {
	t.Helper()
	fs, err := funcset.Get(name)
	if err != nil {
		t.Fatalf("function set %s: %v", name, err)
	}
	return fs
}

func mustSizes(t *testing.T, minSize, maxSize int) SizeDistribution {
	t.Helper()
	d, err := NewSizeRange(minSize, maxSize)
	if err != nil {
		t.Fatalf("size range: %v", err)
	}
	return d
}

type namedBuilder struct {
	name     string
	builder  Builder
	maxDepth int
}

func depthBoundedBuilders(t *testing.T, fs *funcset.FunctionSet) []namedBuilder {
	t.Helper()
	grow, err := NewGrow(fs, nil, KozaDepth{MinDepth: 2, MaxDepth: 6})
	if err != nil {
		t.Fatalf("grow: %v", err)
	}
	full, err := NewFull(fs, nil, KozaDepth{MinDepth: 2, MaxDepth: 6})
	if err != nil {
		t.Fatalf("full: %v", err)
	}
	half, err := NewHalf(fs, nil, KozaDepth{MinDepth: 2, MaxDepth: 6}, 0.5)
	if err != nil {
		t.Fatalf("half: %v", err)
	}
	ptc1, err := NewPTC1(fs, nil, 9, 8)
	if err != nil {
		t.Fatalf("ptc1: %v", err)
	}
	ptc2, err := NewPTC2(fs, nil, 7, mustSizes(t, 1, 40))
	if err != nil {
		t.Fatalf("ptc2: %v", err)
	}
	branch, err := NewRandomBranch(fs, nil, 5, mustSizes(t, 1, 40))
	if err != nil {
		t.Fatalf("random branch: %v", err)
	}
	return []namedBuilder{
		{"grow", grow, 6},
		{"full", full, 6},
		{"half", half, 6},
		{"ptc1", ptc1, 8},
		{"ptc2", ptc2, 7},
		{"random-branch", branch, 5},
	}
}

func TestBuildersRespectTypesArityAndDepth(t *testing.T) {
	for _, setName := range []string{"binary", "koza", "typed", "mixed"} {
		fs := mustSet(t, setName)
		for _, nb := range depthBoundedBuilders(t, fs) {
			for seed := 0; seed < 1000; seed++ {
				rng := rand.New(rand.NewSource(int64(seed)))
				typ := fs.Types.At(seed % fs.Types.Len())
				tree, err := nb.builder.Build(rng, typ, NoSizeGiven)
				if err != nil {
					t.Fatalf("%s/%s seed %d: %v", setName, nb.name, seed, err)
				}
				if err := tree.Validate(); err != nil {
					t.Fatalf("%s/%s seed %d: %v: %s", setName, nb.name, seed, err, tree)
				}
				if d := tree.Depth(); d > nb.maxDepth {
					t.Fatalf("%s/%s seed %d: depth %d exceeds %d: %s", setName, nb.name, seed, d, nb.maxDepth, tree)
				}
			}
		}
	}
}

func TestFullReachesChosenDepth(t *testing.T) {
	fs := mustSet(t, "binary")
	full, err := NewFull(fs, nil, KozaDepth{MinDepth: 4, MaxDepth: 4})
	if err != nil {
		t.Fatalf("full: %v", err)
	}
	tree, err := full.Build(rand.New(rand.NewSource(3)), fs.Types.At(0), NoSizeGiven)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tree.Depth() != 4 || tree.Size() != 15 {
		t.Fatalf("expected a complete binary tree of depth 4, got depth=%d size=%d", tree.Depth(), tree.Size())
	}
}

func TestPTC2SizeIsExactOrSlightlyOver(t *testing.T) {
	for _, setName := range []string{"binary", "koza", "mixed"} {
		fs := mustSet(t, setName)
		ptc2, err := NewPTC2(fs, nil, 1000, SizeDistribution{})
		if err != nil {
			t.Fatalf("ptc2: %v", err)
		}
		for seed := 0; seed < 300; seed++ {
			rng := rand.New(rand.NewSource(int64(seed)))
			want := 1 + seed%60
			tree, err := ptc2.Build(rng, fs.Types.At(0), want)
			if err != nil {
				t.Fatalf("%s seed %d: %v", setName, seed, err)
			}
			if got := tree.Size(); got < want || got > want+fs.MaxArity-1 {
				t.Fatalf("%s seed %d: size %d outside [%d,%d]", setName, seed, got, want, want+fs.MaxArity-1)
			}
		}
	}
}

func TestPTC1IsDeterministicForSeed(t *testing.T) {
	fs := mustSet(t, "binary")
	ptc1, err := NewPTC1(fs, nil, 7, 10)
	if err != nil {
		t.Fatalf("ptc1: %v", err)
	}
	build := func() []string {
		rng := rand.New(rand.NewSource(42))
		var out []string
		for i := 0; i < 20; i++ {
			tree, err := ptc1.Build(rng, fs.Types.At(0), NoSizeGiven)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			out = append(out, tree.String())
		}
		return out
	}
	a, b := build(), build()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("tree %d differs: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestPTC1MeanSizeNearExpected(t *testing.T) {
	fs := mustSet(t, "binary")
	ptc1, err := NewPTC1(fs, nil, 7, 30)
	if err != nil {
		t.Fatalf("ptc1: %v", err)
	}
	rng := rand.New(rand.NewSource(7))
	sizes := make([]float64, 5000)
	for i := range sizes {
		tree, err := ptc1.Build(rng, fs.Types.At(0), NoSizeGiven)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		sizes[i] = float64(tree.Size())
	}
	if mean := stat.Mean(sizes, nil); mean < 6 || mean > 8 {
		t.Fatalf("expected mean size near 7, got %.2f", mean)
	}
	if p1, p2 := ptc1.probabilities(7), ptc1.probabilities(7); &p1[0] != &p2[0] {
		t.Fatal("expected memoized probability vector")
	}
	if got := ptc1.probabilities(7)[0]; got < 0.428 || got > 0.429 {
		t.Fatalf("expected expansion probability 3/7, got %v", got)
	}
}

func TestRandomBranchStaysWithinLength(t *testing.T) {
	fs := mustSet(t, "mixed")
	branch, err := NewRandomBranch(fs, nil, 50, SizeDistribution{})
	if err != nil {
		t.Fatalf("random branch: %v", err)
	}
	for seed := 0; seed < 200; seed++ {
		rng := rand.New(rand.NewSource(int64(seed)))
		length := 1 + seed%30
		tree, err := branch.Build(rng, fs.Types.At(0), length)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if tree.Size() > length {
			t.Fatalf("seed %d: size %d exceeds length %d", seed, tree.Size(), length)
		}
	}
}

func noTerminalSet(t *testing.T) (*funcset.FunctionSet, *gptype.Type, *gptype.Type) {
	t.Helper()
	types := gptype.NewRegistry()
	a := types.MustAtomic("A")
	b := types.MustAtomic("B")
	types.MustAtomic("empty")
	fs := funcset.New("no-terminal", types)
	fs.MustAdd(funcset.Template{Name: "a", Return: a})
	fs.MustAdd(funcset.Template{Name: "g", Return: b, Children: []*gptype.Type{a}})
	if err := fs.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return fs, a, b
}

func TestMissingTerminalWarnsAndFallsBack(t *testing.T) {
	fs, _, b := noTerminalSet(t)
	rec := &diag.Recorder{}
	grow, err := NewGrow(fs, rec, KozaDepth{MinDepth: 1, MaxDepth: 1})
	if err != nil {
		t.Fatalf("grow: %v", err)
	}
	for seed := 0; seed < 5; seed++ {
		tree, err := grow.Build(rand.New(rand.NewSource(int64(seed))), b, NoSizeGiven)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if tree.String() != "(g a)" {
			t.Fatalf("expected nonterminal fallback, got %s", tree)
		}
	}
	if rec.WarningCount() != 1 {
		t.Fatalf("expected one warning, got %v", rec.Warnings)
	}
}

func TestTypeWithoutNodesIsFatal(t *testing.T) {
	fs, _, _ := noTerminalSet(t)
	empty, _ := fs.Types.Lookup("empty")
	rec := &diag.Recorder{}
	builders := []Builder{}
	if b, err := NewGrow(fs, rec, KozaDepth{MinDepth: 1, MaxDepth: 3}); err == nil {
		builders = append(builders, b)
	}
	if b, err := NewPTC1(fs, rec, 5, 5); err == nil {
		builders = append(builders, b)
	}
	if b, err := NewPTC2(fs, rec, 5, mustSizes(t, 3, 3)); err == nil {
		builders = append(builders, b)
	}
	if b, err := NewRandomBranch(fs, rec, 5, mustSizes(t, 3, 3)); err == nil {
		builders = append(builders, b)
	}
	if b, err := NewRandTree(fs, rec, mustSizes(t, 3, 3)); err == nil {
		builders = append(builders, b)
	}
	if len(builders) != 5 {
		t.Fatalf("expected 5 builders, got %d", len(builders))
	}
	for i, b := range builders {
		_, err := b.Build(rand.New(rand.NewSource(1)), empty, NoSizeGiven)
		if !errors.Is(err, ErrNoNodes) || !errors.Is(err, diag.ErrFatal) {
			t.Fatalf("builder %d: expected fatal ErrNoNodes, got %v", i, err)
		}
	}
	if len(rec.Fatals) != 5 {
		t.Fatalf("expected 5 recorded fatals, got %d", len(rec.Fatals))
	}
}

func TestSizeDistributionTable(t *testing.T) {
	d, err := NewSizeTable([]float64{0, 0, 1, 0})
	if err != nil {
		t.Fatalf("size table: %v", err)
	}
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 200; i++ {
		if s, _ := d.Pick(rng); s != 3 {
			t.Fatalf("expected only size 3, got %d", s)
		}
	}
	if _, err := NewSizeTable([]float64{0, 0}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := (SizeDistribution{}).Pick(rng); !errors.Is(err, ErrNoSizeDistribution) {
		t.Fatalf("expected ErrNoSizeDistribution, got %v", err)
	}
}

func TestFromParamsBuildsEveryKind(t *testing.T) {
	fs := mustSet(t, "koza")
	for _, kind := range Kinds() {
		db := params.New()
		db.Set("init.builder.type", kind)
		db.Set("build.expected-size", "9")
		db.Set("build.min-size", "1")
		db.Set("build.max-size", "15")
		db.Set("init.builder.max-depth", "12")
		b, err := FromParams(db, "init.builder", fs, Options{})
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		rng := rand.New(rand.NewSource(11))
		tree, err := b.Build(rng, fs.Types.At(0), NoSizeGiven)
		if err != nil {
			t.Fatalf("%s build: %v", kind, err)
		}
		if err := tree.Validate(); err != nil {
			t.Fatalf("%s validate: %v", kind, err)
		}
	}

	db := params.New()
	db.Set("b.type", "missing")
	if _, err := FromParams(db, "b", fs, Options{}); !errors.Is(err, ErrBuilderNotFound) {
		t.Fatalf("expected ErrBuilderNotFound, got %v", err)
	}
	db.Set("b.type", "uniform")
	if _, err := FromParams(db, "b", fs, Options{}); !errors.Is(err, ErrNoSizeDistribution) {
		t.Fatalf("expected ErrNoSizeDistribution, got %v", err)
	}
	db.Set("b.type", "half")
	db.Set("b.growp", "1.5")
	if _, err := FromParams(db, "b", fs, Options{}); !errors.Is(err, params.ErrInvalid) {
		t.Fatalf("expected params.ErrInvalid, got %v", err)
	}
}

func validateTree(t *testing.T, tree *genotype.Tree) {
	t.Helper()
	if err := tree.Validate(); err != nil {
		t.Fatalf("validate %s: %v", tree, err)
	}
}
