package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpbreed/internal/model"
)

func sampleCountTable(key string) model.CountTableRecord {
	return model.CountTableRecord{
		VersionedRecord: Versioned(),
		Key:             key,
		FunctionSet:     "binary",
		MaxSize:         5,
		TypeCounts:      map[string][]string{"T": {"1", "0", "1", "0", "2"}},
		PermCounts:      map[string]string{"1/2/0": "1"},
	}
}

func samplePopulation(id, runID string, generation int) model.PopulationRecord {
	return model.PopulationRecord{
		VersionedRecord: Versioned(),
		ID:              id,
		RunID:           runID,
		Generation:      generation,
		FunctionSet:     "binary",
		Subpops: [][]model.IndividualRecord{{{
			Meta:      model.Meta{ID: id + "-i0", Operation: "init"},
			Kind:      "tree",
			TreeTypes: []string{"T"},
			Trees:     []string{"(F A A)"},
		}}},
	}
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := store.GetCountTable(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	table := sampleCountTable("k1")
	require.NoError(t, store.SaveCountTable(ctx, table))
	loaded, ok, err := store.GetCountTable(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, table, loaded)

	table.MaxSize = 7
	require.NoError(t, store.SaveCountTable(ctx, table))
	loaded, _, err = store.GetCountTable(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.MaxSize)

	for gen, id := range []string{"p0", "p1", "p2"} {
		require.NoError(t, store.SavePopulation(ctx, samplePopulation(id, "run-1", 2-gen)))
	}
	require.NoError(t, store.SavePopulation(ctx, samplePopulation("other", "run-2", 0)))

	pop, ok, err := store.GetPopulation(ctx, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, samplePopulation("p1", "run-1", 1), pop)

	listed, err := store.ListPopulations(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, []string{"p2", "p1", "p0"}, []string{listed[0].ID, listed[1].ID, listed[2].ID})

	none, err := store.ListPopulations(ctx, "run-9")
	require.NoError(t, err)
	assert.Empty(t, none)

	stats := []model.GenerationStats{{Generation: 0, Individuals: 10, MeanSize: 4.5, MaxSize: 9}}
	require.NoError(t, store.SaveGenerationStats(ctx, "run-1", stats))
	gotStats, ok, err := store.GetGenerationStats(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stats, gotStats)

	stale := sampleCountTable("old")
	stale.CodecVersion = CurrentCodecVersion + 1
	require.NoError(t, store.SaveCountTable(ctx, stale))
	_, _, err = store.GetCountTable(ctx, "old")
	require.ErrorIs(t, err, ErrVersionMismatch)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	_, _, err := store.GetPopulation(context.Background(), "p0")
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, store.SaveCountTable(context.Background(), sampleCountTable("k")), ErrNotInitialized)

	require.NoError(t, store.Init(context.Background()))
	exerciseStore(t, store)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Init(ctx))

	table := sampleCountTable("k")
	require.NoError(t, store.SaveCountTable(ctx, table))
	table.TypeCounts["T"][0] = "99"

	loaded, _, err := store.GetCountTable(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "1", loaded.TypeCounts["T"][0])
}

func TestDecodePopulationRejectsVersion(t *testing.T) {
	pop := samplePopulation("p", "r", 0)
	pop.SchemaVersion = 0
	data, err := EncodePopulation(pop)
	require.NoError(t, err)
	_, err = DecodePopulation(data)
	require.ErrorIs(t, err, ErrVersionMismatch)

	_, err = DecodeCountTable([]byte("{"))
	require.Error(t, err)
}

func TestNewStore(t *testing.T) {
	store, err := NewStore("memory", "")
	require.NoError(t, err)
	require.NotNil(t, store)
	require.NoError(t, CloseIfSupported(store))

	_, err = NewStore("unknown", "")
	require.Error(t, err)
}
