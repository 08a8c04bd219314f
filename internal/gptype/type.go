// Package gptype implements the flat GP type system: atomic types and set
// types with a symmetric compatibility relation and no inheritance.
package gptype

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-set/v3"
)

var (
	ErrTypeExists   = errors.New("type already registered")
	ErrTypeNotFound = errors.New("type not found")
	ErrEmptySet     = errors.New("set type has no members")
)

// Type is either atomic or a set of atomic type names.
type Type struct {
	name    string
	index   int
	members *set.Set[string]
}

func (t *Type) Name() string { return t.name }

// Index is the dense registry index, used to address per-type tables.
func (t *Type) Index() int { return t.index }

func (t *Type) IsSet() bool { return t.members != nil }

// Members returns the sorted atomic members of a set type, or the type's own
// name when it is atomic.
func (t *Type) Members() []string {
	if t.members == nil {
		return []string{t.name}
	}
	out := t.members.Slice()
	sort.Strings(out)
	return out
}

// Compatible reports whether a node returning t may fill a slot requiring
// other (and vice versa; the relation is symmetric).
func (t *Type) Compatible(other *Type) bool {
	if t == nil || other == nil {
		return false
	}
	if t == other {
		return true
	}
	switch {
	case t.members == nil && other.members == nil:
		return t.name == other.name
	case t.members == nil:
		return other.members.Contains(t.name)
	case other.members == nil:
		return t.members.Contains(other.name)
	}
	small, large := t.members, other.members
	if small.Size() > large.Size() {
		small, large = large, small
	}
	for _, name := range small.Slice() {
		if large.Contains(name) {
			return true
		}
	}
	return false
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	if t.members == nil {
		return t.name
	}
	return t.name + "{" + strings.Join(t.Members(), ",") + "}"
}

// Registry owns the types of one GP setup. Atomic types are numbered first so
// that set types never shadow an atomic index.
type Registry struct {
	types  []*Type
	byName map[string]*Type
	sealed bool
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Type)}
}

// Atomic registers (or returns the existing) atomic type name.
func (r *Registry) Atomic(name string) (*Type, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("type name is required")
	}
	if existing, ok := r.byName[name]; ok {
		if existing.members != nil {
			return nil, fmt.Errorf("%w: %s is a set type", ErrTypeExists, name)
		}
		return existing, nil
	}
	if r.sealed {
		return nil, fmt.Errorf("registry sealed: cannot add atomic type %s", name)
	}
	t := &Type{name: name, index: len(r.types)}
	r.types = append(r.types, t)
	r.byName[name] = t
	return t, nil
}

// Set registers a set type whose members must already be atomic types.
func (r *Registry) Set(name string, members ...string) (*Type, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("type name is required")
	}
	if _, ok := r.byName[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeExists, name)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySet, name)
	}
	for _, m := range members {
		mt, ok := r.byName[m]
		if !ok {
			return nil, fmt.Errorf("%w: set %s member %s", ErrTypeNotFound, name, m)
		}
		if mt.members != nil {
			return nil, fmt.Errorf("set %s member %s must be atomic", name, m)
		}
	}
	r.sealed = true
	t := &Type{name: name, index: len(r.types), members: set.From(members)}
	r.types = append(r.types, t)
	r.byName[name] = t
	return t, nil
}

// MustAtomic is Atomic for package-level fixtures; it panics on error.
func (r *Registry) MustAtomic(name string) *Type {
	t, err := r.Atomic(name)
	if err != nil {
		panic(err)
	}
	return t
}

func (r *Registry) Lookup(name string) (*Type, error) {
	t, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotFound, name)
	}
	return t, nil
}

func (r *Registry) Len() int { return len(r.types) }

func (r *Registry) At(index int) *Type { return r.types[index] }

// Types returns the registered types in index order.
func (r *Registry) Types() []*Type {
	return append([]*Type(nil), r.types...)
}
