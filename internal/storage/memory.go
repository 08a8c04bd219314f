package storage

import (
	"context"
	"sort"
	"sync"

	"gpbreed/internal/model"
)

// MemoryStore keeps encoded records in maps, so callers never share slices
// with the store and reads pass the same version checks as the sqlite backend.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	tables      map[string][]byte
	populations map[string][]byte
	runs        map[string][]string
	stats       map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.tables = make(map[string][]byte)
	s.populations = make(map[string][]byte)
	s.runs = make(map[string][]string)
	s.stats = make(map[string][]byte)
	return nil
}

func (s *MemoryStore) SaveCountTable(_ context.Context, table model.CountTableRecord) error {
	payload, err := EncodeCountTable(table)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.tables[table.Key] = payload
	return nil
}

func (s *MemoryStore) GetCountTable(_ context.Context, key string) (model.CountTableRecord, bool, error) {
	s.mu.RLock()
	payload, ok := s.tables[key]
	initialized := s.initialized
	s.mu.RUnlock()

	if !initialized {
		return model.CountTableRecord{}, false, ErrNotInitialized
	}
	if !ok {
		return model.CountTableRecord{}, false, nil
	}
	table, err := DecodeCountTable(payload)
	if err != nil {
		return model.CountTableRecord{}, false, err
	}
	return table, true, nil
}

func (s *MemoryStore) SavePopulation(_ context.Context, population model.PopulationRecord) error {
	payload, err := EncodePopulation(population)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	if _, exists := s.populations[population.ID]; !exists {
		s.runs[population.RunID] = append(s.runs[population.RunID], population.ID)
	}
	s.populations[population.ID] = payload
	return nil
}

func (s *MemoryStore) GetPopulation(_ context.Context, id string) (model.PopulationRecord, bool, error) {
	s.mu.RLock()
	payload, ok := s.populations[id]
	initialized := s.initialized
	s.mu.RUnlock()

	if !initialized {
		return model.PopulationRecord{}, false, ErrNotInitialized
	}
	if !ok {
		return model.PopulationRecord{}, false, nil
	}
	population, err := DecodePopulation(payload)
	if err != nil {
		return model.PopulationRecord{}, false, err
	}
	return population, true, nil
}

func (s *MemoryStore) ListPopulations(ctx context.Context, runID string) ([]model.PopulationRecord, error) {
	s.mu.RLock()
	ids := append([]string(nil), s.runs[runID]...)
	initialized := s.initialized
	s.mu.RUnlock()

	if !initialized {
		return nil, ErrNotInitialized
	}
	out := make([]model.PopulationRecord, 0, len(ids))
	for _, id := range ids {
		population, ok, err := s.GetPopulation(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok && population.RunID == runID {
			out = append(out, population)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Generation < out[j].Generation })
	return out, nil
}

func (s *MemoryStore) SaveGenerationStats(_ context.Context, runID string, stats []model.GenerationStats) error {
	payload, err := EncodeGenerationStats(stats)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.stats[runID] = payload
	return nil
}

func (s *MemoryStore) GetGenerationStats(_ context.Context, runID string) ([]model.GenerationStats, bool, error) {
	s.mu.RLock()
	payload, ok := s.stats[runID]
	initialized := s.initialized
	s.mu.RUnlock()

	if !initialized {
		return nil, false, ErrNotInitialized
	}
	if !ok {
		return nil, false, nil
	}
	stats, err := DecodeGenerationStats(payload)
	if err != nil {
		return nil, false, err
	}
	return stats, true, nil
}
