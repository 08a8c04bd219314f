// Package params is a dotted-key parameter database with default-base
// fallback. A component reads its own base (for example
// "pipeline.source.0.max-depth") and, when absent, a shared default base
// ("breed.xover.max-depth").
package params

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var (
	ErrMissing = errors.New("parameter missing")
	ErrInvalid = errors.New("parameter invalid")
)

// Parameter is a dotted key.
type Parameter string

func NewParameter(parts ...string) Parameter {
	return Parameter(strings.Join(parts, "."))
}

func (p Parameter) Push(part string) Parameter {
	if p == "" {
		return Parameter(part)
	}
	return Parameter(string(p) + "." + part)
}

func (p Parameter) PushIndex(i int) Parameter {
	return p.Push(strconv.Itoa(i))
}

func (p Parameter) String() string { return string(p) }

// Database is safe for concurrent reads; writes are expected during setup.
type Database struct {
	mu     sync.RWMutex
	values map[string]string
}

func New() *Database {
	return &Database{values: make(map[string]string)}
}

// FromMap builds a database from already-flattened keys.
func FromMap(values map[string]string) *Database {
	db := New()
	for k, v := range values {
		db.values[k] = v
	}
	return db
}

func (d *Database) Set(p Parameter, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[string(p)] = strings.TrimSpace(value)
}

// Merge copies every key of other into d, overwriting.
func (d *Database) Merge(other *Database) {
	if other == nil {
		return
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range other.values {
		d.values[k] = v
	}
}

// Keys returns all keys in sorted order.
func (d *Database) Keys() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	keys := make([]string, 0, len(d.values))
	for k := range d.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d *Database) lookup(p, def Parameter) (string, Parameter, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if p != "" {
		if v, ok := d.values[string(p)]; ok {
			return v, p, true
		}
	}
	if def != "" {
		if v, ok := d.values[string(def)]; ok {
			return v, def, true
		}
	}
	return "", p, false
}

func (d *Database) Exists(p, def Parameter) bool {
	_, _, ok := d.lookup(p, def)
	return ok
}

// String returns the raw value.
func (d *Database) String(p, def Parameter) (string, bool) {
	v, _, ok := d.lookup(p, def)
	return v, ok
}

func (d *Database) StringOr(p, def Parameter, fallback string) string {
	if v, ok := d.String(p, def); ok && v != "" {
		return v
	}
	return fallback
}

func (d *Database) Int(p, def Parameter) (int, error) {
	v, at, ok := d.lookup(p, def)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissing, p)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, at, v)
	}
	return n, nil
}

// IntOr returns fallback when the key is absent but still rejects malformed values.
func (d *Database) IntOr(p, def Parameter, fallback int) (int, error) {
	if !d.Exists(p, def) {
		return fallback, nil
	}
	return d.Int(p, def)
}

// IntWithMin reads a required integer that must be >= min.
func (d *Database) IntWithMin(p, def Parameter, min int) (int, error) {
	n, err := d.Int(p, def)
	if err != nil {
		return 0, err
	}
	if n < min {
		return 0, fmt.Errorf("%w: %s=%d must be >= %d", ErrInvalid, p, n, min)
	}
	return n, nil
}

func (d *Database) Float(p, def Parameter) (float64, error) {
	v, at, ok := d.lookup(p, def)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissing, p)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, at, v)
	}
	return f, nil
}

func (d *Database) FloatOr(p, def Parameter, fallback float64) (float64, error) {
	if !d.Exists(p, def) {
		return fallback, nil
	}
	return d.Float(p, def)
}

// Probability reads a float in [0,1], defaulting to fallback.
func (d *Database) Probability(p, def Parameter, fallback float64) (float64, error) {
	f, err := d.FloatOr(p, def, fallback)
	if err != nil {
		return 0, err
	}
	if f < 0 || f > 1 {
		return 0, fmt.Errorf("%w: %s=%v must be a probability", ErrInvalid, p, f)
	}
	return f, nil
}

func (d *Database) BoolOr(p, def Parameter, fallback bool) (bool, error) {
	v, at, ok := d.lookup(p, def)
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, at, v)
	}
	return b, nil
}

// Floats reads a list either as indexed keys (p.0, p.1, ...) or as a single
// comma/space separated value.
func (d *Database) Floats(p, def Parameter) ([]float64, bool, error) {
	for _, base := range []Parameter{p, def} {
		if base == "" {
			continue
		}
		var out []float64
		for i := 0; ; i++ {
			f, err := d.Float(base.PushIndex(i), "")
			if errors.Is(err, ErrMissing) {
				break
			}
			if err != nil {
				return nil, true, err
			}
			out = append(out, f)
		}
		if len(out) > 0 {
			return out, true, nil
		}
	}
	v, at, ok := d.lookup(p, def)
	if !ok {
		return nil, false, nil
	}
	fields := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	out := make([]float64, 0, len(fields))
	for _, field := range fields {
		f, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, true, fmt.Errorf("%w: %s element %q is not a number", ErrInvalid, at, field)
		}
		out = append(out, f)
	}
	return out, true, nil
}

// Strings reads indexed keys p.0, p.1, ... or a comma separated value.
func (d *Database) Strings(p, def Parameter) []string {
	for _, base := range []Parameter{p, def} {
		if base == "" {
			continue
		}
		var out []string
		for i := 0; ; i++ {
			v, ok := d.String(base.PushIndex(i), "")
			if !ok {
				break
			}
			out = append(out, v)
		}
		if len(out) > 0 {
			return out
		}
	}
	v, ok := d.String(p, def)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Count returns how many indexed children p.0, p.1, ... exist, where a child
// exists if any key starts with its prefix.
func (d *Database) Count(p Parameter) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for {
		prefix := string(p.PushIndex(n))
		found := false
		for k := range d.values {
			if k == prefix || strings.HasPrefix(k, prefix+".") {
				found = true
				break
			}
		}
		if !found {
			return n
		}
		n++
	}
}
