package storage

import (
	"context"
	"errors"

	"gpbreed/internal/model"
)

var ErrNotInitialized = errors.New("store is not initialized")

// Store persists count-table caches, population snapshots and per-run
// generation statistics.
type Store interface {
	Init(ctx context.Context) error
	SaveCountTable(ctx context.Context, table model.CountTableRecord) error
	GetCountTable(ctx context.Context, key string) (model.CountTableRecord, bool, error)
	SavePopulation(ctx context.Context, population model.PopulationRecord) error
	GetPopulation(ctx context.Context, id string) (model.PopulationRecord, bool, error)
	// ListPopulations returns the snapshots of runID ordered by generation.
	ListPopulations(ctx context.Context, runID string) ([]model.PopulationRecord, error)
	SaveGenerationStats(ctx context.Context, runID string, stats []model.GenerationStats) error
	GetGenerationStats(ctx context.Context, runID string) ([]model.GenerationStats, bool, error)
}
