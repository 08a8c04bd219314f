package funcset

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Op evaluates a node given its already evaluated children. vars holds the
// terminal inputs (x is vars[0], y is vars[1]).
type Op func(vars []float64, args []float64) float64

var opRegistry = struct {
	mu sync.RWMutex
	m  map[string]Op
}{
	m: map[string]Op{
		"add": func(_ []float64, a []float64) float64 { return a[0] + a[1] },
		"sub": func(_ []float64, a []float64) float64 { return a[0] - a[1] },
		"mul": func(_ []float64, a []float64) float64 { return a[0] * a[1] },
		"div": func(_ []float64, a []float64) float64 {
			if a[1] == 0 {
				return 1
			}
			return a[0] / a[1]
		},
		"neg": func(_ []float64, a []float64) float64 { return -a[0] },
		"sin": func(_ []float64, a []float64) float64 { return math.Sin(a[0]) },
		"cos": func(_ []float64, a []float64) float64 { return math.Cos(a[0]) },
		"exp": func(_ []float64, a []float64) float64 { return math.Exp(a[0]) },
		"log": func(_ []float64, a []float64) float64 {
			if a[0] == 0 {
				return 0
			}
			return math.Log(math.Abs(a[0]))
		},
		"if": func(_ []float64, a []float64) float64 {
			if a[0] != 0 {
				return a[1]
			}
			return a[2]
		},
		"lt": func(_ []float64, a []float64) float64 { return truth(a[0] < a[1]) },
		"and": func(_ []float64, a []float64) float64 {
			return truth(a[0] != 0 && a[1] != 0)
		},
		"or": func(_ []float64, a []float64) float64 {
			return truth(a[0] != 0 || a[1] != 0)
		},
		"not":  func(_ []float64, a []float64) float64 { return truth(a[0] == 0) },
		"zero": func([]float64, []float64) float64 { return 0 },
		"one":  func([]float64, []float64) float64 { return 1 },
		"x":    varAt(0),
		"y":    varAt(1),
		"noop": func(_ []float64, a []float64) float64 {
			if len(a) == 0 {
				return 0
			}
			return a[0]
		},
	},
}

func truth(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func varAt(i int) Op {
	return func(vars []float64, _ []float64) float64 {
		if i >= len(vars) {
			return 0
		}
		return vars[i]
	}
}

// RegisterOp makes an op available to parameter-declared function sets.
func RegisterOp(name string, op Op) error {
	opRegistry.mu.Lock()
	defer opRegistry.mu.Unlock()
	if _, ok := opRegistry.m[name]; ok {
		return fmt.Errorf("op already registered: %s", name)
	}
	opRegistry.m[name] = op
	return nil
}

func LookupOp(name string) (Op, bool) {
	opRegistry.mu.RLock()
	defer opRegistry.mu.RUnlock()
	op, ok := opRegistry.m[name]
	return op, ok
}

func OpNames() []string {
	opRegistry.mu.RLock()
	defer opRegistry.mu.RUnlock()
	names := make([]string, 0, len(opRegistry.m))
	for k := range opRegistry.m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
