package personaquiz

import (
	"sort"
	"sync"
)

// SlotPool bounds how many template indices can be generating at once and
// remembers which ones they are
type SlotPool struct {
	mu       sync.Mutex
	limit    int
	inFlight map[int]struct{}
	peak     int
}

// NewSlotPool creates a pool with limit slots
func NewSlotPool(limit int) *SlotPool {
	if limit < 1 {
		limit = 1
	}
	return &SlotPool{
		limit:    limit,
		inFlight: make(map[int]struct{}),
	}
}

// TryAcquire takes a slot for index. It fails when the pool is full or the
// index already holds a slot.
func (sp *SlotPool) TryAcquire(index int) bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if _, ok := sp.inFlight[index]; ok {
		return false
	}
	if len(sp.inFlight) >= sp.limit {
		return false
	}
	sp.inFlight[index] = struct{}{}
	if len(sp.inFlight) > sp.peak {
		sp.peak = len(sp.inFlight)
	}
	return true
}

// Release frees the slot held by index
func (sp *SlotPool) Release(index int) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	delete(sp.inFlight, index)
}

// Has reports whether index currently holds a slot
func (sp *SlotPool) Has(index int) bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	_, ok := sp.inFlight[index]
	return ok
}

// Size returns the number of occupied slots
func (sp *SlotPool) Size() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return len(sp.inFlight)
}

// IsFull returns true if no slot is free
func (sp *SlotPool) IsFull() bool {
	return sp.Size() >= sp.limit
}

// Limit returns the pool capacity
func (sp *SlotPool) Limit() int {
	return sp.limit
}

// Peak returns the highest number of slots ever occupied at once
func (sp *SlotPool) Peak() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.peak
}

// InFlight returns the occupied indices in ascending order
func (sp *SlotPool) InFlight() []int {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	indices := make([]int, 0, len(sp.inFlight))
	for i := range sp.inFlight {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices
}
