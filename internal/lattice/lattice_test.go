package lattice_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/hydro-project/anna/internal/lattice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkLaws fuzzes the semilattice laws for one type: idempotence,
// commutativity, associativity and monotonicity (a ⊑ a⊔b).
func checkLaws[T lattice.Lattice[T]](t *testing.T, gen func(r *rand.Rand) T, equal func(a, b T) bool) {
	t.Helper()
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		a, b, c := gen(r), gen(r), gen(r)

		require.True(t, equal(a.Merge(a), a), "idempotence violated: %v", a)
		require.True(t, equal(a.Merge(b), b.Merge(a)),
			"commutativity violated: %v vs %v", a, b)
		require.True(t, equal(a.Merge(b).Merge(c), a.Merge(b.Merge(c))),
			"associativity violated: %v %v %v", a, b, c)

		ab := a.Merge(b)
		require.True(t, equal(a.Merge(ab), ab),
			"monotonicity violated: %v not below %v", a, ab)
	}
}

func randomString(r *rand.Rand, n int) string {
	const alphabet = "abcdefgh"
	b := make([]byte, 1+r.Intn(n))
	for i := range b {
		b[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(b)
}

func randomClock(r *rand.Rand) lattice.VectorClock {
	clients := []string{"A", "B", "C"}
	vc := lattice.NewVectorClock(nil)
	for _, id := range clients {
		if r.Intn(2) == 0 {
			vc.Insert(id, uint64(r.Intn(4)))
		}
	}
	return vc
}

func TestMaxLaws(t *testing.T) {
	checkLaws(t,
		func(r *rand.Rand) lattice.Max { return lattice.Max(r.Intn(1000)) },
		func(a, b lattice.Max) bool { return a == b })
}

func TestLWWLaws(t *testing.T) {
	checkLaws(t,
		func(r *rand.Rand) lattice.LWW {
			return lattice.NewLWW(uint64(r.Intn(5)), randomString(r, 4))
		},
		func(a, b lattice.LWW) bool { return a == b })
}

func TestSetLaws(t *testing.T) {
	gen := func(r *rand.Rand) lattice.Set {
		s := lattice.NewSet()
		for i := 0; i < r.Intn(5); i++ {
			s.Insert(randomString(r, 3))
		}
		return s
	}
	checkLaws(t, gen, func(a, b lattice.Set) bool {
		return assert.ObjectsAreEqual(a.Reveal(), b.Reveal())
	})
}

func TestOrderedSetLaws(t *testing.T) {
	gen := func(r *rand.Rand) lattice.OrderedSet {
		var elems []string
		for i := 0; i < r.Intn(5); i++ {
			elems = append(elems, randomString(r, 3))
		}
		return lattice.NewOrderedSet(elems...)
	}
	checkLaws(t, gen, func(a, b lattice.OrderedSet) bool {
		return assert.ObjectsAreEqual(a.Reveal(), b.Reveal())
	})
}

func TestVectorClockLaws(t *testing.T) {
	checkLaws(t, randomClock, func(a, b lattice.VectorClock) bool {
		return assert.ObjectsAreEqual(a.Reveal(), b.Reveal())
	})
}

func TestMapLaws(t *testing.T) {
	gen := func(r *rand.Rand) lattice.Map[lattice.Max] {
		m := lattice.NewMap[lattice.Max]()
		for i := 0; i < r.Intn(4); i++ {
			m.Insert(randomString(r, 2), lattice.Max(r.Intn(100)))
		}
		return m
	}
	checkLaws(t, gen, func(a, b lattice.Map[lattice.Max]) bool {
		return assert.ObjectsAreEqual(map[string]lattice.Max(a), map[string]lattice.Max(b))
	})
}

func TestPriorityLaws(t *testing.T) {
	checkLaws(t,
		func(r *rand.Rand) lattice.Priority {
			return lattice.NewPriority(float64(r.Intn(5)), randomString(r, 4))
		},
		func(a, b lattice.Priority) bool { return a == b })
}

func singleCausalEqual(a, b lattice.SingleCausal) bool {
	return assert.ObjectsAreEqual(a.Clock.Reveal(), b.Clock.Reveal()) &&
		assert.ObjectsAreEqual(a.Values.Reveal(), b.Values.Reveal())
}

// Causal merges drop dominated value sets, so associativity only holds when
// clocks form a chain; the fuzz below generates totally ordered histories
// and the targeted cases cover concurrency.
func TestSingleCausalLawsOnChains(t *testing.T) {
	gen := func(r *rand.Rand) lattice.SingleCausal {
		depth := uint64(r.Intn(4))
		return lattice.NewSingleCausal(
			lattice.NewVectorClock(map[string]uint64{"A": depth, "B": depth}),
			lattice.NewSet(randomString(r, 3)),
		)
	}
	checkLaws(t, gen, singleCausalEqual)
}

func TestSingleCausalDominance(t *testing.T) {
	older := lattice.NewSingleCausal(
		lattice.NewVectorClock(map[string]uint64{"A": 1}),
		lattice.NewSet("a"))
	newer := lattice.NewSingleCausal(
		lattice.NewVectorClock(map[string]uint64{"A": 1, "B": 1}),
		lattice.NewSet("b"))

	merged := older.Merge(newer)
	assert.Equal(t, map[string]uint64{"A": 1, "B": 1}, merged.Clock.Reveal())
	assert.Equal(t, []string{"b"}, merged.Values.Reveal())

	// dominated incoming value is dropped
	back := newer.Merge(older)
	assert.Equal(t, []string{"b"}, back.Values.Reveal())
}

func TestSingleCausalConcurrent(t *testing.T) {
	left := lattice.NewSingleCausal(
		lattice.NewVectorClock(map[string]uint64{"A": 2}),
		lattice.NewSet("x"))
	right := lattice.NewSingleCausal(
		lattice.NewVectorClock(map[string]uint64{"B": 2}),
		lattice.NewSet("y"))

	merged := left.Merge(right)
	assert.Equal(t, map[string]uint64{"A": 2, "B": 2}, merged.Clock.Reveal())
	assert.Equal(t, []string{"x", "y"}, merged.Values.Reveal())
	require.True(t, singleCausalEqual(merged, right.Merge(left)))
}

func TestMultiCausalDependenciesAlwaysJoin(t *testing.T) {
	older := lattice.NewMultiCausal(
		lattice.NewVectorClock(map[string]uint64{"A": 1}),
		map[string]lattice.VectorClock{
			"dep1": lattice.NewVectorClock(map[string]uint64{"A": 1}),
		},
		lattice.NewSet("a"))
	newer := lattice.NewMultiCausal(
		lattice.NewVectorClock(map[string]uint64{"A": 2}),
		map[string]lattice.VectorClock{
			"dep1": lattice.NewVectorClock(map[string]uint64{"B": 1}),
			"dep2": lattice.NewVectorClock(map[string]uint64{"C": 1}),
		},
		lattice.NewSet("b"))

	merged := older.Merge(newer)
	assert.Equal(t, []string{"b"}, merged.Values.Reveal())
	// dependencies join pointwise even though the older value was replaced
	assert.Equal(t, map[string]uint64{"A": 1, "B": 1},
		merged.Dependencies["dep1"].Reveal())
	assert.Equal(t, map[string]uint64{"C": 1},
		merged.Dependencies["dep2"].Reveal())
}

func TestVectorClockCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b map[string]uint64
		want lattice.Comparison
	}{
		{"equal", map[string]uint64{"A": 1}, map[string]uint64{"A": 1}, lattice.Equal},
		{"greater", map[string]uint64{"A": 2}, map[string]uint64{"A": 1}, lattice.Greater},
		{"less", map[string]uint64{"A": 1}, map[string]uint64{"A": 1, "B": 1}, lattice.Less},
		{"concurrent", map[string]uint64{"A": 1}, map[string]uint64{"B": 1}, lattice.Concurrent},
		{"empty below anything", nil, map[string]uint64{"A": 1}, lattice.Less},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := lattice.NewVectorClock(tt.a)
			b := lattice.NewVectorClock(tt.b)
			assert.Equal(t, tt.want, a.Compare(b))
		})
	}
}

// Replaying merges in any order must converge to the same state.
func TestRandomizedMergeOrderConverges(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	values := make([]lattice.Set, 0, 10)
	for i := 0; i < 10; i++ {
		values = append(values, lattice.NewSet(
			fmt.Sprintf("v%d", r.Intn(20)),
			fmt.Sprintf("v%d", r.Intn(20))))
	}

	reference := lattice.NewSet()
	for _, v := range values {
		reference = reference.Merge(v)
	}

	for trial := 0; trial < 20; trial++ {
		shuffled := make([]lattice.Set, len(values))
		copy(shuffled, values)
		r.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		got := lattice.NewSet()
		for _, v := range shuffled {
			got = got.Merge(v)
		}
		assert.Equal(t, reference.Reveal(), got.Reveal())
	}
}

func TestLWWTieBreakIsDeterministic(t *testing.T) {
	a := lattice.NewLWW(5, "apple")
	b := lattice.NewLWW(5, "banana")
	assert.Equal(t, a.Merge(b), b.Merge(a))
	assert.Equal(t, "banana", a.Merge(b).Value)
}

func TestOrderedSetStaysSorted(t *testing.T) {
	s := lattice.NewOrderedSet("m", "a", "z")
	merged := s.Merge(lattice.NewOrderedSet("b", "z"))
	assert.Equal(t, []string{"a", "b", "m", "z"}, merged.Reveal())
	// operands untouched
	assert.Equal(t, []string{"a", "m", "z"}, s.Reveal())
}
