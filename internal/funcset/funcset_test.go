package funcset

import (
	"errors"
	"testing"

	"gpbreed/internal/gptype"
	"gpbreed/internal/params"
)

func TestFinalizePartitionsByCompatibility(t *testing.T) {
	types := gptype.NewRegistry()
	num := types.MustAtomic("num")
	boolean := types.MustAtomic("bool")
	anyT, err := types.Set("any", "num", "bool")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	fs := New("t", types)
	fs.MustAdd(Template{Name: "x", Return: num})
	fs.MustAdd(Template{Name: "b", Return: boolean})
	fs.MustAdd(Template{Name: "id", Return: anyT, Children: []*gptype.Type{anyT}})
	fs.MustAdd(Template{Name: "if", Return: num, Children: []*gptype.Type{boolean, num, num}})
	if err := fs.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if got := len(fs.Terminals[num.Index()]); got != 1 {
		t.Fatalf("expected 1 num terminal, got %d", got)
	}
	if got := len(fs.Nonterminals[num.Index()]); got != 2 {
		t.Fatalf("expected 2 num nonterminals (set-typed id and if), got %d", got)
	}
	if got := len(fs.Nodes[anyT.Index()]); got != 4 {
		t.Fatalf("expected every template compatible with the set type, got %d", got)
	}
	if got := len(fs.ByArity[num.Index()][3]); got != 1 {
		t.Fatalf("expected one arity-3 num template, got %d", got)
	}
	if fs.MaxArity != 3 {
		t.Fatalf("expected max arity 3, got %d", fs.MaxArity)
	}
	if got := fs.Arities(num); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("unexpected arities: %v", got)
	}
	if _, err := fs.Add(Template{Name: "late", Return: num}); !errors.Is(err, ErrFinalized) {
		t.Fatalf("expected ErrFinalized, got %v", err)
	}
}

func TestAddValidation(t *testing.T) {
	types := gptype.NewRegistry()
	num := types.MustAtomic("num")
	fs := New("t", types)
	if _, err := fs.Add(Template{Name: "x", Return: num, Weight: -1}); !errors.Is(err, ErrInvalidWeight) {
		t.Fatalf("expected ErrInvalidWeight, got %v", err)
	}
	x := fs.MustAdd(Template{Name: "x", Return: num})
	if x.Weight != 1 || x.ID != 0 {
		t.Fatalf("unexpected defaults: %+v", x)
	}
	if _, err := fs.Add(Template{Name: "x", Return: num}); !errors.Is(err, ErrTemplateExists) {
		t.Fatalf("expected ErrTemplateExists, got %v", err)
	}
}

func TestBuiltinsRegistered(t *testing.T) {
	for _, name := range Names() {
		fs, err := Get(name)
		if err != nil {
			t.Fatalf("get %s: %v", name, err)
		}
		if !fs.Finalized() {
			t.Fatalf("expected %s to be finalized", name)
		}
		for _, tpl := range fs.Templates {
			if tpl.Op == nil {
				t.Fatalf("%s: template %s has no op", name, tpl.Name)
			}
		}
	}
	if _, err := Get("missing"); err == nil {
		t.Fatal("expected error for unknown set")
	}
}

func TestFromParams(t *testing.T) {
	db := params.New()
	db.Set("fs.name", "custom")
	db.Set("fs.types.atomic", "num, bool")
	db.Set("fs.nodes.0.name", "x")
	db.Set("fs.nodes.0.return", "num")
	db.Set("fs.nodes.0.op", "x")
	db.Set("fs.nodes.1.name", "add")
	db.Set("fs.nodes.1.return", "num")
	db.Set("fs.nodes.1.children", "num,num")
	db.Set("fs.nodes.1.weight", "2.5")
	db.Set("fs.nodes.1.op", "add")

	fs, err := FromParams(db, "fs")
	if err != nil {
		t.Fatalf("from params: %v", err)
	}
	add, err := fs.Lookup("add")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if add.Arity() != 2 || add.Weight != 2.5 || add.Op == nil {
		t.Fatalf("unexpected template: %+v", add)
	}

	builtin := params.New()
	builtin.Set("fs", "binary")
	fs, err = FromParams(builtin, "fs")
	if err != nil || fs.Name != "binary" {
		t.Fatalf("expected builtin binary set, got %v %v", fs, err)
	}

	bad := params.New()
	bad.Set("fs.types.atomic", "num")
	bad.Set("fs.nodes.0.name", "x")
	bad.Set("fs.nodes.0.return", "missing")
	if _, err := FromParams(bad, "fs"); !errors.Is(err, gptype.ErrTypeNotFound) {
		t.Fatalf("expected ErrTypeNotFound, got %v", err)
	}
}
