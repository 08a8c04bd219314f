package funcset

import (
	"fmt"
	"sort"
	"sync"

	"gpbreed/internal/gptype"
	"gpbreed/internal/params"
)

// Constructor builds a fresh, finalized function set with its own types.
type Constructor func() (*FunctionSet, error)

var registry = struct {
	mu sync.RWMutex
	m  map[string]Constructor
}{
	m: map[string]Constructor{
		"binary": Binary,
		"koza":   Koza,
		"typed":  Typed,
		"mixed":  Mixed,
	},
}

// Register adds a named function-set constructor.
func Register(name string, ctor Constructor) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, ok := registry.m[name]; ok {
		return fmt.Errorf("function set already registered: %s", name)
	}
	registry.m[name] = ctor
	return nil
}

// Get builds the named function set.
func Get(name string) (*FunctionSet, error) {
	registry.mu.RLock()
	ctor, ok := registry.m[name]
	registry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown function set: %s", name)
	}
	return ctor()
}

// Names returns all registered function-set names.
func Names() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	names := make([]string, 0, len(registry.m))
	for k := range registry.m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Binary is the smallest interesting set: terminal A and binary F over one
// type T. Tree counts per size follow the Catalan numbers.
func Binary() (*FunctionSet, error) {
	types := gptype.NewRegistry()
	t := types.MustAtomic("T")
	fs := New("binary", types)
	fs.MustAdd(Template{Name: "A", Return: t, Op: opNamed("one")})
	fs.MustAdd(Template{Name: "F", Return: t, Children: []*gptype.Type{t, t}, Op: opNamed("add")})
	return fs, fs.Finalize()
}

// Koza is the classic symbolic-regression set over one numeric type.
func Koza() (*FunctionSet, error) {
	types := gptype.NewRegistry()
	num := types.MustAtomic("num")
	fs := New("koza", types)
	for _, name := range []string{"x", "one"} {
		fs.MustAdd(Template{Name: name, Return: num, Op: opNamed(name)})
	}
	for _, name := range []string{"add", "sub", "mul", "div"} {
		fs.MustAdd(Template{Name: name, Return: num, Children: []*gptype.Type{num, num}, Op: opNamed(name)})
	}
	for _, name := range []string{"sin", "cos", "exp", "log"} {
		fs.MustAdd(Template{Name: name, Return: num, Children: []*gptype.Type{num}, Op: opNamed(name)})
	}
	return fs, fs.Finalize()
}

// Typed mixes a numeric and a boolean type so slot-type checks matter.
func Typed() (*FunctionSet, error) {
	types := gptype.NewRegistry()
	num := types.MustAtomic("num")
	boolean := types.MustAtomic("bool")
	fs := New("typed", types)
	fs.MustAdd(Template{Name: "x", Return: num, Op: opNamed("x")})
	fs.MustAdd(Template{Name: "one", Return: num, Op: opNamed("one")})
	fs.MustAdd(Template{Name: "true", Return: boolean, Op: opNamed("one")})
	fs.MustAdd(Template{Name: "add", Return: num, Children: []*gptype.Type{num, num}, Op: opNamed("add")})
	fs.MustAdd(Template{Name: "mul", Return: num, Children: []*gptype.Type{num, num}, Op: opNamed("mul")})
	fs.MustAdd(Template{Name: "if", Return: num, Children: []*gptype.Type{boolean, num, num}, Op: opNamed("if")})
	fs.MustAdd(Template{Name: "lt", Return: boolean, Children: []*gptype.Type{num, num}, Op: opNamed("lt")})
	fs.MustAdd(Template{Name: "and", Return: boolean, Children: []*gptype.Type{boolean, boolean}, Op: opNamed("and")})
	fs.MustAdd(Template{Name: "not", Return: boolean, Children: []*gptype.Type{boolean}, Op: opNamed("not")})
	return fs, fs.Finalize()
}

// Mixed has arities 1, 2 and 3 over one type.
func Mixed() (*FunctionSet, error) {
	types := gptype.NewRegistry()
	t := types.MustAtomic("T")
	fs := New("mixed", types)
	fs.MustAdd(Template{Name: "x", Return: t, Op: opNamed("x")})
	fs.MustAdd(Template{Name: "neg", Return: t, Children: []*gptype.Type{t}, Op: opNamed("neg")})
	fs.MustAdd(Template{Name: "add", Return: t, Children: []*gptype.Type{t, t}, Op: opNamed("add")})
	fs.MustAdd(Template{Name: "if3", Return: t, Children: []*gptype.Type{t, t, t}, Op: opNamed("if")})
	return fs, fs.Finalize()
}

func opNamed(name string) Op {
	op, _ := LookupOp(name)
	return op
}

// FromParams loads a function set. If base itself names a registered set
// (or base.builtin does) that set is returned; otherwise types and nodes are
// read from:
//
//	base.name
//	base.types.atomic          list of atomic type names
//	base.types.set.N.name      set type name
//	base.types.set.N.members   list of atomic members
//	base.nodes.N.name / return / children / weight / op
func FromParams(db *params.Database, base params.Parameter) (*FunctionSet, error) {
	if name, ok := db.String(base, ""); ok && name != "" {
		return Get(name)
	}
	if name, ok := db.String(base.Push("builtin"), ""); ok && name != "" {
		return Get(name)
	}

	types := gptype.NewRegistry()
	atomics := db.Strings(base.Push("types").Push("atomic"), "")
	if len(atomics) == 0 {
		return nil, fmt.Errorf("%w: %s", params.ErrMissing, base.Push("types").Push("atomic"))
	}
	for _, name := range atomics {
		if _, err := types.Atomic(name); err != nil {
			return nil, err
		}
	}
	setBase := base.Push("types").Push("set")
	for i := 0; i < db.Count(setBase); i++ {
		p := setBase.PushIndex(i)
		name, _ := db.String(p.Push("name"), "")
		if _, err := types.Set(name, db.Strings(p.Push("members"), "")...); err != nil {
			return nil, err
		}
	}

	fs := New(db.StringOr(base.Push("name"), "", "custom"), types)
	nodesBase := base.Push("nodes")
	count := db.Count(nodesBase)
	if count == 0 {
		return nil, fmt.Errorf("%w: %s", params.ErrMissing, nodesBase)
	}
	for i := 0; i < count; i++ {
		p := nodesBase.PushIndex(i)
		name, _ := db.String(p.Push("name"), "")
		retName, ok := db.String(p.Push("return"), "")
		if !ok {
			return nil, fmt.Errorf("%w: %s", params.ErrMissing, p.Push("return"))
		}
		ret, err := types.Lookup(retName)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", name, err)
		}
		var children []*gptype.Type
		for _, c := range db.Strings(p.Push("children"), "") {
			ct, err := types.Lookup(c)
			if err != nil {
				return nil, fmt.Errorf("node %s: %w", name, err)
			}
			children = append(children, ct)
		}
		weight, err := db.FloatOr(p.Push("weight"), "", 1)
		if err != nil {
			return nil, err
		}
		var op Op
		if opName, ok := db.String(p.Push("op"), ""); ok && opName != "" {
			if op, ok = LookupOp(opName); !ok {
				return nil, fmt.Errorf("node %s: unknown op %s", name, opName)
			}
		}
		if _, err := fs.Add(Template{Name: name, Return: ret, Children: children, Weight: weight, Op: op}); err != nil {
			return nil, err
		}
	}
	return fs, fs.Finalize()
}
