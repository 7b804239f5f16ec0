package engine

import (
	"sync"
	"time"

	"github.com/drummonds/dtools/conversion"
	"github.com/oklog/ulid/v2"
)

// Workspaces holds one conversion state per browser workspace
type Workspaces struct {
	mu       sync.Mutex
	items    map[ulid.ULID]*conversion.State
	onCreate func(ulid.ULID, *conversion.State)
}

// NewWorkspaces returns an empty registry. onCreate, if set, is called for
// every new state before it is used.
func NewWorkspaces(onCreate func(ulid.ULID, *conversion.State)) *Workspaces {
	return &Workspaces{
		items:    make(map[ulid.ULID]*conversion.State),
		onCreate: onCreate,
	}
}

// Get returns the state of an existing workspace
func (w *Workspaces) Get(id ulid.ULID) (*conversion.State, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	state, ok := w.items[id]
	return state, ok
}

// GetOrCreate returns the workspace state, creating it on first use
func (w *Workspaces) GetOrCreate(id ulid.ULID) *conversion.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	if state, ok := w.items[id]; ok {
		return state
	}
	state := conversion.NewState()
	if w.onCreate != nil {
		w.onCreate(id, state)
	}
	w.items[id] = state
	return state
}

// Len is the number of live workspaces
func (w *Workspaces) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

// Evict resets and forgets every workspace untouched for longer than idle,
// releasing its page images. It returns how many were evicted.
func (w *Workspaces) Evict(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	w.mu.Lock()
	var stale []*conversion.State
	for id, state := range w.items {
		if state.LastTouched().Before(cutoff) {
			stale = append(stale, state)
			delete(w.items, id)
		}
	}
	w.mu.Unlock()

	// reset outside the lock, watchers may write to the database
	for _, state := range stale {
		state.Reset()
	}
	return len(stale)
}

// ResetAll resets and forgets every workspace
func (w *Workspaces) ResetAll() int {
	w.mu.Lock()
	items := w.items
	w.items = make(map[ulid.ULID]*conversion.State)
	w.mu.Unlock()

	for _, state := range items {
		state.Reset()
	}
	return len(items)
}
