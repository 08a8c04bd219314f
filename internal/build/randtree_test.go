package build

import (
	"errors"
	"math/rand"
	"testing"

	"gpbreed/internal/diag"
	"gpbreed/internal/funcset"
	"gpbreed/internal/gptype"
)

func TestCheckDyckWord(t *testing.T) {
	valid := []string{"x", "xyx", "xxyyx", "xxxyyyx", "xxyyxxyyx"}
	invalid := []string{"", "y", "xx", "yxx", "xyyx", "xxyx", "xz"}
	for _, w := range valid {
		if !CheckDyckWord(w) {
			t.Fatalf("expected %q to be valid", w)
		}
	}
	for _, w := range invalid {
		if CheckDyckWord(w) {
			t.Fatalf("expected %q to be invalid", w)
		}
	}
	if got := DyckWord([]int{0, 0, 2}); got != "xxyyx" {
		t.Fatalf("unexpected encoding %q", got)
	}
}

func TestCompositions(t *testing.T) {
	got := compositions([]int{1, 2}, 3)
	if len(got) != 2 {
		t.Fatalf("expected 2 compositions of 3 over {1,2}, got %v", got)
	}
	for _, m := range got {
		if m[0]*1+m[1]*2 != 3 {
			t.Fatalf("composition %v does not sum to 3", m)
		}
	}
	if got := compositions(nil, 0); len(got) != 1 {
		t.Fatalf("expected the empty composition, got %v", got)
	}
	if got := compositions([]int{2}, 3); got != nil {
		t.Fatalf("expected no composition, got %v", got)
	}
}

func TestRandTreeBuildsExactSize(t *testing.T) {
	for _, tc := range []struct {
		set   string
		sizes []int
	}{
		{"binary", []int{1, 3, 7, 15, 31}},
		{"mixed", []int{1, 2, 5, 8, 13, 40}},
		{"koza", []int{1, 2, 9, 20}},
	} {
		fs := mustSet(t, tc.set)
		b, err := NewRandTree(fs, nil, SizeDistribution{})
		if err != nil {
			t.Fatalf("rand tree: %v", err)
		}
		for seed := 0; seed < 50; seed++ {
			rng := rand.New(rand.NewSource(int64(seed)))
			for _, size := range tc.sizes {
				tree, err := b.Build(rng, fs.Types.At(0), size)
				if err != nil {
					t.Fatalf("%s size %d: %v", tc.set, size, err)
				}
				validateTree(t, tree)
				if tree.Size() != size {
					t.Fatalf("%s: expected size %d, got %d", tc.set, size, tree.Size())
				}
			}
		}
	}
}

func TestRandTreeFallsBackToAchievableSize(t *testing.T) {
	fs := mustSet(t, "binary")
	rec := &diag.Recorder{}
	b, err := NewRandTree(fs, rec, SizeDistribution{})
	if err != nil {
		t.Fatalf("rand tree: %v", err)
	}
	tree, err := b.Build(rand.New(rand.NewSource(2)), fs.Types.At(0), 6)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tree.Size() != 5 {
		t.Fatalf("expected size 5, got %d", tree.Size())
	}
	if len(rec.Messages) != 1 {
		t.Fatalf("expected one message, got %v", rec.Messages)
	}
}

func TestRandTreeMissingArityIsFatal(t *testing.T) {
	types := gptype.NewRegistry()
	a := types.MustAtomic("A")
	bt := types.MustAtomic("B")
	fs := funcset.New("lopsided", types)
	fs.MustAdd(funcset.Template{Name: "a", Return: a})
	fs.MustAdd(funcset.Template{Name: "b", Return: bt})
	fs.MustAdd(funcset.Template{Name: "h", Return: a, Children: []*gptype.Type{bt}})
	if err := fs.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	b, err := NewRandTree(fs, nil, SizeDistribution{})
	if err != nil {
		t.Fatalf("rand tree: %v", err)
	}
	if _, err := b.Build(rand.New(rand.NewSource(1)), a, 3); !errors.Is(err, ErrNoNodeForArity) {
		t.Fatalf("expected ErrNoNodeForArity, got %v", err)
	}
	tree, err := b.Build(rand.New(rand.NewSource(1)), a, 2)
	if err != nil {
		t.Fatalf("size 2: %v", err)
	}
	if tree.String() != "(h b)" {
		t.Fatalf("unexpected tree %s", tree)
	}
}
