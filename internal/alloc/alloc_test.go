package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPick_EmptyAssigned(t *testing.T) {
	id, err := Pick(map[int]struct{}{}, 100)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, id, 0)
	assert.Less(t, id, 100)
}

func TestPick_NeverReturnsAssigned(t *testing.T) {
	assigned := map[int]struct{}{}
	for i := 0; i < 99; i++ {
		assigned[i] = struct{}{}
	}

	// Only 99 is free; every draw must find it.
	for range 20 {
		id, err := Pick(assigned, 100)
		require.NoError(t, err)
		assert.Equal(t, 99, id)
	}
}

func TestPick_SkipsAssignedSubset(t *testing.T) {
	assigned := map[int]struct{}{0: {}, 2: {}, 4: {}, 6: {}, 8: {}}

	for range 100 {
		id, err := Pick(assigned, 10)
		require.NoError(t, err)
		_, taken := assigned[id]
		assert.False(t, taken, "picked assigned id %d", id)
	}
}

func TestPick_Exhausted(t *testing.T) {
	assigned := map[int]struct{}{}
	for i := 0; i < 10; i++ {
		assigned[i] = struct{}{}
	}

	_, err := Pick(assigned, 10)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestPick_CoversWholeRange(t *testing.T) {
	seen := map[int]struct{}{}
	for range 2000 {
		id, err := Pick(nil, 5)
		require.NoError(t, err)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 5)
}

func TestPick_OversizedAssignedSet(t *testing.T) {
	// Identifiers outside [0, n) can appear in a hand-edited document.
	assigned := map[int]struct{}{0: {}, 1: {}, 50: {}, 60: {}}
	_, err := Pick(assigned, 2)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestReservationSet_ClaimRelease(t *testing.T) {
	r := NewReservationSet()

	assert.True(t, r.Claim(7))
	assert.False(t, r.Claim(7), "second claim must fail")

	r.Release(7)
	assert.True(t, r.Claim(7), "released id is claimable again")
}

func TestReservationSet_Union(t *testing.T) {
	r := NewReservationSet()
	r.Claim(1)
	r.Claim(2)

	assigned := map[int]struct{}{0: {}}
	union := r.Union(assigned)

	assert.Len(t, union, 3)

	// Allocation over the union can only yield the remaining id.
	id, err := Pick(union, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, id)
}
