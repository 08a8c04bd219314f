package genotype

import (
	"fmt"

	"gpbreed/internal/funcset"
	"gpbreed/internal/model"
)

const Kind = "tree"

// Individual carries one or more typed trees.
type Individual struct {
	meta  model.Meta
	Trees []*Tree
}

func NewIndividual(op string, trees ...*Tree) *Individual {
	return &Individual{meta: model.NewMeta(op), Trees: trees}
}

func (ind *Individual) Meta() *model.Meta { return &ind.meta }

// Clone deep-copies every tree and derives a fresh ID.
func (ind *Individual) Clone() model.Individual {
	return ind.CloneTrees()
}

// CloneTrees is Clone with the concrete return type.
func (ind *Individual) CloneTrees() *Individual {
	trees := make([]*Tree, len(ind.Trees))
	for i, t := range ind.Trees {
		trees[i] = t.Clone()
	}
	return &Individual{meta: ind.meta.Derive("clone"), Trees: trees}
}

// Size is the total node count over all trees.
func (ind *Individual) Size() int {
	n := 0
	for _, t := range ind.Trees {
		n += t.Size()
	}
	return n
}

func (ind *Individual) Depth() int {
	d := 0
	for _, t := range ind.Trees {
		if td := t.Depth(); td > d {
			d = td
		}
	}
	return d
}

func (ind *Individual) Validate() error {
	for i, t := range ind.Trees {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// Record converts the individual to its persisted form.
func (ind *Individual) Record() model.IndividualRecord {
	rec := model.IndividualRecord{
		Meta:      ind.meta,
		Kind:      Kind,
		TreeTypes: make([]string, len(ind.Trees)),
		Trees:     make([]string, len(ind.Trees)),
	}
	rec.ParentIDs = append([]string(nil), ind.meta.ParentIDs...)
	for i, t := range ind.Trees {
		rec.TreeTypes[i] = t.Type.Name()
		rec.Trees[i] = t.String()
	}
	return rec
}

// FromRecord parses a persisted tree individual against fs.
func FromRecord(fs *funcset.FunctionSet, rec model.IndividualRecord) (*Individual, error) {
	if rec.Kind != Kind {
		return nil, fmt.Errorf("individual %s: unexpected kind %q", rec.ID, rec.Kind)
	}
	if len(rec.TreeTypes) != len(rec.Trees) {
		return nil, fmt.Errorf("individual %s: %d tree types for %d trees", rec.ID, len(rec.TreeTypes), len(rec.Trees))
	}
	ind := &Individual{meta: rec.Meta, Trees: make([]*Tree, len(rec.Trees))}
	ind.meta.ParentIDs = append([]string(nil), rec.ParentIDs...)
	for i, src := range rec.Trees {
		typ, err := fs.Types.Lookup(rec.TreeTypes[i])
		if err != nil {
			return nil, fmt.Errorf("individual %s tree %d: %w", rec.ID, i, err)
		}
		tree, err := Parse(fs, typ, src)
		if err != nil {
			return nil, fmt.Errorf("individual %s tree %d: %w", rec.ID, i, err)
		}
		ind.Trees[i] = tree
	}
	return ind, nil
}
