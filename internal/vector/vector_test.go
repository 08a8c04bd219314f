package vector

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpbreed/internal/params"
)

func boolPair(sp *Species[bool], n int) (*Individual[bool], *Individual[bool]) {
	a := make([]bool, n)
	b := make([]bool, n)
	for i := range a {
		a[i] = true
	}
	return sp.Wrap("test", a), sp.Wrap("test", b)
}

func TestDefaultCrossoverConservesGenes(t *testing.T) {
	for _, xo := range []CrossoverType{CrossoverOne, CrossoverTwo, CrossoverAny} {
		sp := NewBoolSpecies(20)
		sp.Crossover = xo
		sp.CrossoverProbability = 0.5
		rng := rand.New(rand.NewSource(3))
		for trial := 0; trial < 50; trial++ {
			a, b := boolPair(sp, 20)
			require.NoError(t, a.DefaultCrossover(rng, b))
			for i := range a.Genome {
				require.NotEqual(t, a.Genome[i], b.Genome[i], "position %d lost its gene", i)
			}
			if xo == CrossoverOne {
				// the swapped region is a prefix
				seenTrue := false
				for _, g := range a.Genome {
					if g {
						seenTrue = true
					} else {
						require.False(t, seenTrue, "one-point crossover swapped a non-prefix: %v", a.Genome)
					}
				}
			}
		}
	}
}

func TestDefaultCrossoverRespectsChunks(t *testing.T) {
	sp := NewBoolSpecies(12)
	sp.ChunkSize = 4
	sp.Crossover = CrossoverAny
	sp.CrossoverProbability = 0.5
	rng := rand.New(rand.NewSource(9))
	for trial := 0; trial < 30; trial++ {
		a, b := boolPair(sp, 12)
		require.NoError(t, a.DefaultCrossover(rng, b))
		for c := 0; c < 3; c++ {
			for i := c * 4; i < (c+1)*4; i++ {
				assert.Equal(t, a.Genome[c*4], a.Genome[i], "chunk %d split", c)
			}
		}
	}
}

func TestGenomeMismatch(t *testing.T) {
	ints := NewIntSpecies[int32](4, 0, 9)
	floats := NewFloatSpecies[float64](4, 0, 1, MutationReset, 0)
	rng := rand.New(rand.NewSource(1))
	a := ints.NewIndividual(rng)
	b := floats.NewIndividual(rng)
	require.ErrorIs(t, a.DefaultCrossover(rng, b), ErrGenomeMismatch)
	require.ErrorIs(t, a.SwapAt(b, 0), ErrGenomeMismatch)
	_, _, err := a.Exchange(b, 0, 1, 0, 1)
	require.ErrorIs(t, err, ErrGenomeMismatch)
	assert.Equal(t, "int32", a.Kind())
	assert.Equal(t, "float64", b.Kind())
}

func TestMutateAndBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	bools := NewBoolSpecies(10)
	bools.MutationProbability = 1
	a, _ := boolPair(bools, 10)
	a.DefaultMutate(rng)
	for _, g := range a.Genome {
		require.False(t, g)
	}

	ints := NewIntSpecies[int8](200, -3, 3)
	ints.MutationProbability = 0.5
	ind := ints.NewIndividual(rng)
	ind.DefaultMutate(rng)
	for _, g := range ind.Genome {
		require.True(t, g >= -3 && g <= 3, "gene %d out of bounds", g)
	}

	floats := NewFloatSpecies[float32](200, 0, 1, MutationGauss, 5)
	floats.MutationProbability = 1
	f := floats.NewIndividual(rng)
	f.DefaultMutate(rng)
	for _, g := range f.Genome {
		require.True(t, g >= 0 && g <= 1, "gene %v out of bounds", g)
	}
}

func TestExchangeAndDuplicate(t *testing.T) {
	sp := NewIntSpecies[int64](0, 0, 100)
	a := sp.Wrap("test", []int64{1, 2, 3, 4, 5})
	b := sp.Wrap("test", []int64{10, 11, 12, 13})

	x, y, err := a.Exchange(b, 1, 3, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 10, 11, 4, 5}, x.(*Individual[int64]).Genome)
	assert.Equal(t, []int64{2, 3, 12, 13}, y.(*Individual[int64]).Genome)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, a.Genome)

	_, _, err = a.Exchange(b, 3, 2, 0, 0)
	require.ErrorIs(t, err, ErrOutOfRange)

	require.NoError(t, a.Duplicate(0, 2))
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 1, 2}, a.Genome)
	require.ErrorIs(t, a.Duplicate(2, 9), ErrOutOfRange)

	require.NoError(t, a.SwapAt(b, 0))
	assert.Equal(t, int64(10), a.Genome[0])
	assert.Equal(t, int64(1), b.Genome[0])
	require.ErrorIs(t, a.SwapAt(b, 5), ErrOutOfRange)
}

type counterGene struct{ N int }

func (g *counterGene) Reset(rng *rand.Rand) { g.N = rng.Intn(10) }

func (g *counterGene) Mutate(_ *rand.Rand) { g.N += 100 }

func (g *counterGene) Clone() Gene {
	c := *g
	return &c
}

func TestGeneSpeciesDeepCopies(t *testing.T) {
	sp := NewGeneSpecies(5, &counterGene{})
	sp.MutationProbability = 1
	rng := rand.New(rand.NewSource(2))
	orig := sp.NewIndividual(rng)
	clone := orig.CloneVector().(*Individual[Gene])
	clone.DefaultMutate(rng)
	for i := range orig.Genome {
		require.Less(t, orig.Genome[i].(*counterGene).N, 10)
		require.GreaterOrEqual(t, clone.Genome[i].(*counterGene).N, 100)
	}
	require.NoError(t, orig.Duplicate(0, 1))
	orig.Genome[5].(*counterGene).N = -1
	require.NotEqual(t, -1, orig.Genome[0].(*counterGene).N)
	assert.Equal(t, orig.Meta().ID, clone.Meta().ParentIDs[0])
}

func TestRecordRoundTrip(t *testing.T) {
	sp := NewFloatSpecies[float64](6, -1, 1, MutationReset, 0)
	rng := rand.New(rand.NewSource(8))
	ind := sp.NewIndividual(rng)
	rec, err := ind.Record()
	require.NoError(t, err)
	assert.Equal(t, "vector/float64", rec.Kind)

	back, err := sp.FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, ind.Genome, back.(*Individual[float64]).Genome)
	assert.Equal(t, ind.Meta().ID, back.Meta().ID)

	other := NewIntSpecies[int32](6, 0, 1)
	_, err = other.FromRecord(rec)
	require.ErrorIs(t, err, ErrGenomeMismatch)
}

func TestSpeciesFromParams(t *testing.T) {
	db := params.New()
	db.Set("pop.species.type", "int16")
	db.Set("pop.species.min-initial-size", "3")
	db.Set("pop.species.max-initial-size", "7")
	db.Set("vector.species.min-gene", "-5")
	db.Set("vector.species.max-gene", "5")
	db.Set("vector.species.crossover-type", "two")
	db.Set("pop.species.chunk-size", "2")

	sp, err := SpeciesFromParams(db, "pop.species")
	require.NoError(t, err)
	require.Equal(t, "int16", sp.ElementKind())
	typed := sp.(*Species[int16])
	assert.Equal(t, CrossoverTwo, typed.Crossover)
	assert.Equal(t, 2, typed.ChunkSize)

	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 50; i++ {
		v := sp.Random(rng)
		require.True(t, v.Len() >= 3 && v.Len() <= 7, "length %d", v.Len())
		for _, g := range v.(*Individual[int16]).Genome {
			require.True(t, g >= -5 && g <= 5)
		}
	}

	bad := params.New()
	bad.Set("s.type", "complex128")
	bad.Set("s.genome-size", "4")
	_, err = SpeciesFromParams(bad, "s")
	require.ErrorIs(t, err, params.ErrInvalid)

	missing := params.New()
	missing.Set("s.type", "bool")
	_, err = SpeciesFromParams(missing, "s")
	require.ErrorIs(t, err, params.ErrMissing)
}
