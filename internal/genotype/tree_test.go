package genotype

import (
	"errors"
	"testing"

	"gpbreed/internal/funcset"
	"gpbreed/internal/gptype"
)

func mustSet(t *testing.T, name string) *funcset.FunctionSet {
	t.Helper()
	fs, err := funcset.Get(name)
	if err != nil {
		t.Fatalf("function set %s: %v", name, err)
	}
	return fs
}

func mustParse(t *testing.T, fs *funcset.FunctionSet, src string) *Tree {
	t.Helper()
	tree, err := Parse(fs, fs.Types.At(0), src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return tree
}

func TestParseStringRoundTrip(t *testing.T) {
	fs := mustSet(t, "koza")
	for _, src := range []string{
		"x",
		"(add x one)",
		"(mul (sin x) (div x (log one)))",
	} {
		tree := mustParse(t, fs, src)
		if got := tree.String(); got != src {
			t.Fatalf("round trip: got %q want %q", got, src)
		}
	}
}

func TestParseErrors(t *testing.T) {
	fs := mustSet(t, "koza")
	for _, src := range []string{"", "(add x)", "(add x one one)", "add", "(missing x)", "x one"} {
		if _, err := Parse(fs, fs.Types.At(0), src); err == nil {
			t.Fatalf("expected error for %q", src)
		}
	}
	if _, err := Parse(fs, fs.Types.At(0), "(add x"); !errors.Is(err, ErrSyntax) {
		t.Fatalf("expected ErrSyntax, got %v", err)
	}
}

func TestSizeDepthAndAtDepth(t *testing.T) {
	fs := mustSet(t, "binary")
	tree := mustParse(t, fs, "(F A (F A (F A A)))")
	if tree.Size() != 7 {
		t.Fatalf("expected size 7, got %d", tree.Size())
	}
	if tree.Depth() != 4 {
		t.Fatalf("expected depth 4, got %d", tree.Depth())
	}
	nodes := tree.Preorder(tree.Root)
	deepest := nodes[len(nodes)-1]
	if tree.AtDepth(deepest) != 3 || tree.AtDepth(tree.Root) != 0 {
		t.Fatalf("unexpected at-depth values: %d %d", tree.AtDepth(deepest), tree.AtDepth(tree.Root))
	}
	if tree.SubtreeSize(nodes[2]) != 5 {
		t.Fatalf("expected subtree size 5, got %d", tree.SubtreeSize(nodes[2]))
	}
}

func TestCloneReplacingLeavesInputsIntact(t *testing.T) {
	fs := mustSet(t, "koza")
	recipient := mustParse(t, fs, "(add x one)")
	donor := mustParse(t, fs, "(mul x (sin x))")

	at := recipient.Node(recipient.Root).Children[1]
	out := recipient.CloneReplacing(at, donor, donor.Root)
	if got := out.String(); got != "(add x (mul x (sin x)))" {
		t.Fatalf("unexpected replacement: %s", got)
	}
	if err := out.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if recipient.String() != "(add x one)" || donor.String() != "(mul x (sin x))" {
		t.Fatalf("inputs modified: %s %s", recipient, donor)
	}

	root := recipient.CloneReplacing(recipient.Root, donor, donor.Node(donor.Root).Children[1])
	if got := root.String(); got != "(sin x)" {
		t.Fatalf("unexpected root replacement: %s", got)
	}
}

func TestValidateDetectsTypeMismatch(t *testing.T) {
	fs := mustSet(t, "typed")
	num, _ := fs.Types.Lookup("num")
	boolean, _ := fs.Types.Lookup("bool")

	ifTpl, _ := fs.Lookup("if")
	x, _ := fs.Lookup("x")
	tree := NewTree(num)
	root := tree.Add(ifTpl, NoNode, 0)
	tree.Add(x, root, 0)
	tree.Add(x, root, 1)
	tree.Add(x, root, 2)
	if err := tree.Validate(); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}

	partial := NewTree(boolean)
	lt, _ := fs.Lookup("lt")
	partial.Add(lt, NoNode, 0)
	if err := partial.Validate(); !errors.Is(err, ErrArity) {
		t.Fatalf("expected ErrArity, got %v", err)
	}
	if err := NewTree(num).Validate(); !errors.Is(err, ErrEmptyTree) {
		t.Fatalf("expected ErrEmptyTree, got %v", err)
	}
}

func TestEval(t *testing.T) {
	fs := mustSet(t, "koza")
	tree := mustParse(t, fs, "(add (mul x x) one)")
	if got := tree.Eval([]float64{3}); got != 10 {
		t.Fatalf("expected 10, got %v", got)
	}
	typed := mustSet(t, "typed")
	num, _ := typed.Types.Lookup("num")
	cond, err := Parse(typed, num, "(if (lt x one) one x)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cond.Eval([]float64{0}) != 1 || cond.Eval([]float64{5}) != 5 {
		t.Fatal("unexpected conditional result")
	}
}

func TestIndividualRecordRoundTrip(t *testing.T) {
	fs := mustSet(t, "typed")
	num, _ := fs.Types.Lookup("num")
	boolean, _ := fs.Types.Lookup("bool")
	a, _ := Parse(fs, num, "(add x one)")
	b, _ := Parse(fs, boolean, "(not true)")
	ind := NewIndividual("init", a, b)

	clone := ind.CloneTrees()
	if clone.Meta().ID == ind.Meta().ID || clone.Meta().ParentIDs[0] != ind.Meta().ID {
		t.Fatalf("clone lineage not derived: %+v", clone.Meta())
	}
	if clone.Size() != ind.Size() || clone.Depth() != 2 {
		t.Fatalf("unexpected clone shape: size=%d depth=%d", clone.Size(), clone.Depth())
	}

	rec := ind.Record()
	back, err := FromRecord(fs, rec)
	if err != nil {
		t.Fatalf("from record: %v", err)
	}
	if back.Meta().ID != ind.Meta().ID || back.Trees[1].String() != "(not true)" || back.Trees[1].Type != boolean {
		t.Fatalf("unexpected decoded individual: %+v", back.Record())
	}
	if err := back.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	rec.Kind = "vector"
	if _, err := FromRecord(fs, rec); err == nil {
		t.Fatal("expected kind mismatch error")
	}
	rec.Kind = Kind
	rec.TreeTypes = []string{"num", "missing"}
	if _, err := FromRecord(fs, rec); !errors.Is(err, gptype.ErrTypeNotFound) {
		t.Fatalf("expected ErrTypeNotFound, got %v", err)
	}
}
