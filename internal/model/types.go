package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Meta identifies an individual and records how it was produced.
type Meta struct {
	ID        string   `json:"id"`
	ParentIDs []string `json:"parent_ids,omitempty"`
	Operation string   `json:"operation,omitempty"`
}

// NewMeta assigns a fresh ID to an individual created by op.
func NewMeta(op string, parentIDs ...string) Meta {
	return Meta{
		ID:        uuid.NewString(),
		ParentIDs: append([]string(nil), parentIDs...),
		Operation: op,
	}
}

// Derive returns a fresh Meta whose lineage points at m.
func (m Meta) Derive(op string) Meta {
	return NewMeta(op, m.ID)
}

// Individual is anything a breeding pipeline can carry: tree-based or
// vector-based genomes.
type Individual interface {
	Meta() *Meta
	// Clone returns a deep copy with a fresh ID derived from the receiver.
	Clone() Individual
	// Size is the node count for trees and the genome length for vectors.
	Size() int
}

// Stamp rewrites the lineage of ind after a breeding operation.
func Stamp(ind Individual, op string, parents ...Individual) {
	meta := ind.Meta()
	meta.Operation = op
	ids := make([]string, 0, len(parents))
	for _, p := range parents {
		ids = append(ids, p.Meta().ID)
	}
	meta.ParentIDs = ids
}

// Subpopulation is an ordered slice of individuals.
type Subpopulation []Individual

// Population groups subpopulations for one breeding run.
type Population struct {
	Generation int
	Subpops    []Subpopulation
}

// IndividualRecord is the persisted form of an individual.
type IndividualRecord struct {
	Meta
	Kind      string          `json:"kind"`
	TreeTypes []string        `json:"tree_types,omitempty"`
	Trees     []string        `json:"trees,omitempty"`
	Genome    json.RawMessage `json:"genome,omitempty"`
}

// PopulationRecord is a generation snapshot of a population.
type PopulationRecord struct {
	VersionedRecord
	ID          string               `json:"id"`
	RunID       string               `json:"run_id"`
	Generation  int                  `json:"generation"`
	Subpops     [][]IndividualRecord `json:"subpops"`
	FunctionSet string               `json:"function_set,omitempty"`
}

// CountTableRecord caches exact tree counts for a function set so the
// dynamic-programming pass can be skipped on later runs.
type CountTableRecord struct {
	VersionedRecord
	Key         string              `json:"key"`
	FunctionSet string              `json:"function_set"`
	MaxSize     int                 `json:"max_size"`
	TypeCounts  map[string][]string `json:"type_counts"`
	// PermCounts holds the nonzero child-permutation counts keyed by
	// "template/outof/child".
	PermCounts  map[string]string   `json:"perm_counts"`
}

// GenerationStats summarizes the structure of one generation.
type GenerationStats struct {
	Generation  int     `json:"generation"`
	Individuals int     `json:"individuals"`
	MeanSize    float64 `json:"mean_size"`
	StdDevSize  float64 `json:"stddev_size"`
	MaxSize     int     `json:"max_size"`
	MeanDepth   float64 `json:"mean_depth"`
	MaxDepth    int     `json:"max_depth"`
}
