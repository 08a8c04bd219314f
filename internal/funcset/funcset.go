// Package funcset holds node templates and the function sets that partition
// them by return type, for builders to instantiate from.
package funcset

import (
	"errors"
	"fmt"
	"strings"

	"gpbreed/internal/gptype"
)

var (
	ErrFinalized        = errors.New("function set already finalized")
	ErrNotFinalized     = errors.New("function set not finalized")
	ErrTemplateExists   = errors.New("template already registered")
	ErrTemplateNotFound = errors.New("template not found")
	ErrInvalidWeight    = errors.New("template weight must be > 0")
)

// Template is an immutable node prototype. Its arity is the number of child
// slots.
type Template struct {
	ID       int
	Name     string
	Return   *gptype.Type
	Children []*gptype.Type
	// Weight biases PTC selection among templates of the same kind.
	Weight float64
	Op     Op
}

func (t *Template) Arity() int { return len(t.Children) }

func (t *Template) IsTerminal() bool { return len(t.Children) == 0 }

func (t *Template) String() string {
	if t.IsTerminal() {
		return fmt.Sprintf("%s:%s", t.Name, t.Return)
	}
	parts := make([]string, len(t.Children))
	for i, c := range t.Children {
		parts[i] = c.String()
	}
	return fmt.Sprintf("%s:%s(%s)", t.Name, t.Return, strings.Join(parts, ","))
}

// FunctionSet partitions templates per type index. For every registered type
// t, Nodes[t] holds all templates whose return type is compatible with t.
type FunctionSet struct {
	Name      string
	Types     *gptype.Registry
	Templates []*Template

	Nodes        [][]*Template
	Terminals    [][]*Template
	Nonterminals [][]*Template
	// ByArity[t][a] holds the templates of type t with arity a.
	ByArity  [][][]*Template
	MaxArity int

	byName    map[string]*Template
	finalized bool
}

func New(name string, types *gptype.Registry) *FunctionSet {
	return &FunctionSet{
		Name:   name,
		Types:  types,
		byName: make(map[string]*Template),
	}
}

// Add registers a template. Weight 0 means the default of 1.
func (fs *FunctionSet) Add(tpl Template) (*Template, error) {
	if fs.finalized {
		return nil, ErrFinalized
	}
	if strings.TrimSpace(tpl.Name) == "" {
		return nil, errors.New("template name is required")
	}
	if tpl.Return == nil {
		return nil, fmt.Errorf("template %s: return type is required", tpl.Name)
	}
	for i, c := range tpl.Children {
		if c == nil {
			return nil, fmt.Errorf("template %s: child %d type is required", tpl.Name, i)
		}
	}
	if _, ok := fs.byName[tpl.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateExists, tpl.Name)
	}
	if tpl.Weight == 0 {
		tpl.Weight = 1
	}
	if tpl.Weight < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWeight, tpl.Name)
	}
	t := tpl
	t.ID = len(fs.Templates)
	t.Children = append([]*gptype.Type(nil), tpl.Children...)
	fs.Templates = append(fs.Templates, &t)
	fs.byName[t.Name] = &t
	return &t, nil
}

// MustAdd is Add for built-in sets.
func (fs *FunctionSet) MustAdd(tpl Template) *Template {
	t, err := fs.Add(tpl)
	if err != nil {
		panic(err)
	}
	return t
}

// Finalize builds the per-type partitions. The set is read-only afterwards.
func (fs *FunctionSet) Finalize() error {
	if fs.finalized {
		return ErrFinalized
	}
	if len(fs.Templates) == 0 {
		return fmt.Errorf("function set %s has no templates", fs.Name)
	}
	n := fs.Types.Len()
	fs.Nodes = make([][]*Template, n)
	fs.Terminals = make([][]*Template, n)
	fs.Nonterminals = make([][]*Template, n)
	fs.ByArity = make([][][]*Template, n)
	fs.MaxArity = 0
	for _, tpl := range fs.Templates {
		if tpl.Arity() > fs.MaxArity {
			fs.MaxArity = tpl.Arity()
		}
	}
	for i := 0; i < n; i++ {
		typ := fs.Types.At(i)
		fs.ByArity[i] = make([][]*Template, fs.MaxArity+1)
		for _, tpl := range fs.Templates {
			if !tpl.Return.Compatible(typ) {
				continue
			}
			fs.Nodes[i] = append(fs.Nodes[i], tpl)
			if tpl.IsTerminal() {
				fs.Terminals[i] = append(fs.Terminals[i], tpl)
			} else {
				fs.Nonterminals[i] = append(fs.Nonterminals[i], tpl)
			}
			fs.ByArity[i][tpl.Arity()] = append(fs.ByArity[i][tpl.Arity()], tpl)
		}
	}
	fs.finalized = true
	return nil
}

func (fs *FunctionSet) Finalized() bool { return fs.finalized }

func (fs *FunctionSet) Lookup(name string) (*Template, error) {
	t, ok := fs.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return t, nil
}

// Arities returns the distinct positive arities available to type t, ascending.
func (fs *FunctionSet) Arities(t *gptype.Type) []int {
	var out []int
	for a := 1; a < len(fs.ByArity[t.Index()]); a++ {
		if len(fs.ByArity[t.Index()][a]) > 0 {
			out = append(out, a)
		}
	}
	return out
}

// Fingerprint identifies the structure of the set for cache keys.
func (fs *FunctionSet) Fingerprint() string {
	var b strings.Builder
	b.WriteString(fs.Name)
	for _, tpl := range fs.Templates {
		b.WriteByte('|')
		b.WriteString(tpl.String())
	}
	return b.String()
}
