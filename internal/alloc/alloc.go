// Package alloc assigns identifiers from the shrinking unminted pool.
package alloc

import (
	"errors"
	"math/rand"
	"sync"
)

// ErrExhausted signals that every identifier is assigned. It is a terminal
// business state (the collection is sold out), not a fault.
var ErrExhausted = errors.New("all identifiers assigned")

// Pick selects one identifier uniformly at random from the complement of
// assigned within [0, n). It is pure and stateless; concurrency control
// belongs to the caller. The scan is O(n), acceptable for the fixed
// collection size.
func Pick(assigned map[int]struct{}, n int) (int, error) {
	// A corrupt state document can assign ids outside [0, n).
	free := n - len(assigned)
	if free < 0 {
		free = 0
	}
	available := make([]int, 0, free)
	for i := 0; i < n; i++ {
		if _, ok := assigned[i]; !ok {
			available = append(available, i)
		}
	}
	if len(available) == 0 {
		return 0, ErrExhausted
	}
	return available[rand.Intn(len(available))], nil
}

// ReservationSet tracks identifiers claimed by an in-flight provisioning
// run. Claiming before the pipeline starts closes the check-then-act race
// that would otherwise allow two requests to provision the same identifier.
type ReservationSet struct {
	mu      sync.Mutex
	claimed map[int]struct{}
}

// NewReservationSet returns an empty reservation set.
func NewReservationSet() *ReservationSet {
	return &ReservationSet{claimed: make(map[int]struct{})}
}

// Claim atomically reserves an identifier. It returns false if the
// identifier is already claimed.
func (r *ReservationSet) Claim(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.claimed[id]; ok {
		return false
	}
	r.claimed[id] = struct{}{}
	return true
}

// Release frees a claimed identifier, returning it to the pool. Called when
// provisioning fails; successful identifiers move to the mint state instead.
func (r *ReservationSet) Release(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.claimed, id)
}

// Union copies the claimed identifiers into dst and returns it, so callers
// can allocate over assigned-plus-reserved in one pass.
func (r *ReservationSet) Union(dst map[int]struct{}) map[int]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.claimed {
		dst[id] = struct{}{}
	}
	return dst
}
