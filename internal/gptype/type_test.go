package gptype

import (
	"errors"
	"testing"
)

func TestCompatibility(t *testing.T) {
	r := NewRegistry()
	num := r.MustAtomic("num")
	boolean := r.MustAtomic("bool")
	vec := r.MustAtomic("vec")
	scalar, err := r.Set("scalar", "num", "bool")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	numeric, err := r.Set("numeric", "num", "vec")
	if err != nil {
		t.Fatalf("set: %v", err)
	}

	cases := []struct {
		a, b *Type
		want bool
	}{
		{num, num, true},
		{num, boolean, false},
		{num, scalar, true},
		{scalar, num, true},
		{vec, scalar, false},
		{scalar, numeric, true},
		{numeric, boolean, false},
	}
	for _, tc := range cases {
		if got := tc.a.Compatible(tc.b); got != tc.want {
			t.Fatalf("%s compatible %s = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestRegistryOrderAndErrors(t *testing.T) {
	r := NewRegistry()
	a := r.MustAtomic("a")
	if again := r.MustAtomic("a"); again != a {
		t.Fatal("expected atomic registration to be idempotent")
	}
	if _, err := r.Set("s", "a", "missing"); !errors.Is(err, ErrTypeNotFound) {
		t.Fatalf("expected ErrTypeNotFound, got %v", err)
	}
	s, err := r.Set("s", "a")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if s.Index() != 1 || a.Index() != 0 {
		t.Fatalf("unexpected indices: a=%d s=%d", a.Index(), s.Index())
	}
	if _, err := r.Atomic("late"); err == nil {
		t.Fatal("expected atomic registration after a set type to fail")
	}
	if _, err := r.Set("s", "a"); !errors.Is(err, ErrTypeExists) {
		t.Fatalf("expected ErrTypeExists, got %v", err)
	}
	if got := s.String(); got != "s{a}" {
		t.Fatalf("unexpected string: %q", got)
	}
}
