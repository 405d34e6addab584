package store_test

import (
	"math/rand"
	"testing"

	"github.com/hydro-project/anna/internal/lattice"
	"github.com/hydro-project/anna/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAbsentKey(t *testing.T) {
	s := store.New[lattice.LWW]()
	_, ok := s.Get("missing")
	assert.False(t, ok)
	assert.Zero(t, s.Size("missing"))
}

func TestPutMergesNotOverwrites(t *testing.T) {
	s := store.New[lattice.LWW]()
	s.Put("k", lattice.NewLWW(5, "newer"))
	s.Put("k", lattice.NewLWW(3, "older"))

	val, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "newer", val.Value)
	assert.Equal(t, uint64(5), val.Timestamp)
}

func TestRemove(t *testing.T) {
	s := store.New[lattice.Set]()
	s.Put("k", lattice.NewSet("a"))
	s.Remove("k")
	_, ok := s.Get("k")
	assert.False(t, ok)
	assert.Zero(t, s.Len())
}

func TestSizeTracksValueCost(t *testing.T) {
	s := store.New[lattice.Set]()
	s.Put("k", lattice.NewSet("abc"))
	assert.Equal(t, 3, s.Size("k"))
	s.Put("k", lattice.NewSet("de"))
	assert.Equal(t, 5, s.Size("k"))
}

// Replaying any prefix of puts in any order yields the join of their values.
func TestPutReplayYieldsJoin(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	puts := []lattice.Set{
		lattice.NewSet("a", "b"),
		lattice.NewSet("b", "c"),
		lattice.NewSet("d"),
		lattice.NewSet("a", "d", "e"),
	}

	expected := lattice.NewSet()
	for _, p := range puts {
		expected = expected.Merge(p)
	}

	for trial := 0; trial < 10; trial++ {
		shuffled := make([]lattice.Set, len(puts))
		copy(shuffled, puts)
		r.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		s := store.New[lattice.Set]()
		// replay some puts twice; idempotence keeps the join unchanged
		for _, p := range shuffled {
			s.Put("k", p)
		}
		s.Put("k", shuffled[0])

		val, ok := s.Get("k")
		require.True(t, ok)
		assert.Equal(t, expected.Reveal(), val.Reveal())
	}
}

func TestKeys(t *testing.T) {
	s := store.New[lattice.LWW]()
	s.Put("k1", lattice.NewLWW(1, "a"))
	s.Put("k2", lattice.NewLWW(1, "b"))
	assert.ElementsMatch(t, []string{"k1", "k2"}, s.Keys())
}
