package evo

import (
	"fmt"
	"math/rand"

	"gpbreed/internal/genotype"
	"gpbreed/internal/params"
)

// NodeSelector picks crossover and mutation points. Implementations may
// cache per-tree data between calls; Reset drops it.
type NodeSelector interface {
	PickNode(rng *rand.Rand, tree *genotype.Tree) genotype.NodeID
	Reset()
	Clone() NodeSelector
}

// KozaNodeSelector picks the root, a terminal or a nonterminal with the
// configured probabilities, and any node uniformly with the remainder. When
// the tree has no nonterminals a nonterminal pick falls back to a terminal.
type KozaNodeSelector struct {
	RootProbability        float64
	TerminalProbability    float64
	NonterminalProbability float64

	tree         *genotype.Tree
	terminals    []genotype.NodeID
	nonterminals []genotype.NodeID
	all          []genotype.NodeID
}

func NewKozaNodeSelector() *KozaNodeSelector {
	return &KozaNodeSelector{TerminalProbability: 0.1, NonterminalProbability: 0.9}
}

func (s *KozaNodeSelector) validate() error {
	if s.RootProbability < 0 || s.TerminalProbability < 0 || s.NonterminalProbability < 0 ||
		s.RootProbability+s.TerminalProbability+s.NonterminalProbability > 1 {
		return fmt.Errorf("%w: node selector probabilities %v/%v/%v", params.ErrInvalid,
			s.RootProbability, s.TerminalProbability, s.NonterminalProbability)
	}
	return nil
}

func (s *KozaNodeSelector) Reset() {
	s.tree = nil
	s.terminals = s.terminals[:0]
	s.nonterminals = s.nonterminals[:0]
	s.all = s.all[:0]
}

func (s *KozaNodeSelector) Clone() NodeSelector {
	return &KozaNodeSelector{
		RootProbability:        s.RootProbability,
		TerminalProbability:    s.TerminalProbability,
		NonterminalProbability: s.NonterminalProbability,
	}
}

func (s *KozaNodeSelector) index(tree *genotype.Tree) {
	if s.tree == tree {
		return
	}
	s.Reset()
	s.tree = tree
	s.all = tree.Preorder(tree.Root)
	for _, id := range s.all {
		if tree.Template(id).IsTerminal() {
			s.terminals = append(s.terminals, id)
		} else {
			s.nonterminals = append(s.nonterminals, id)
		}
	}
}

func (s *KozaNodeSelector) PickNode(rng *rand.Rand, tree *genotype.Tree) genotype.NodeID {
	s.index(tree)
	r := rng.Float64()
	nt := s.NonterminalProbability
	term := nt + s.TerminalProbability
	root := term + s.RootProbability
	switch {
	case r >= root:
		return s.all[rng.Intn(len(s.all))]
	case r >= term:
		return tree.Root
	case r >= nt || len(s.nonterminals) == 0:
		return s.terminals[rng.Intn(len(s.terminals))]
	default:
		return s.nonterminals[rng.Intn(len(s.nonterminals))]
	}
}

// NodeSelectorFromParams reads base.root, base.terminals and
// base.nonterminals, each falling back to breed.ns.<key>.
func NodeSelectorFromParams(db *params.Database, base params.Parameter) (*KozaNodeSelector, error) {
	def := DefaultBase.Push("ns")
	s := NewKozaNodeSelector()
	var err error
	if s.RootProbability, err = db.Probability(base.Push("root"), def.Push("root"), s.RootProbability); err != nil {
		return nil, err
	}
	if s.TerminalProbability, err = db.Probability(base.Push("terminals"), def.Push("terminals"), s.TerminalProbability); err != nil {
		return nil, err
	}
	if s.NonterminalProbability, err = db.Probability(base.Push("nonterminals"), def.Push("nonterminals"), s.NonterminalProbability); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}
