package conversion

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Change is passed to watchers after every swap. Current is nil after a reset.
type Change struct {
	Version  uint64
	Previous *Session
	Current  *Session
}

// State holds either no session or one Session. Every mutation swaps in a
// new value so readers always see a consistent snapshot.
type State struct {
	mu       sync.Mutex
	current  *Session
	version  uint64
	cancel   context.CancelFunc
	touched  time.Time
	watchers []func(Change)

	// notify is taken before mu by every mutation, so watchers see changes
	// in version order and can still take mu to read
	notify sync.Mutex
}

// NewState returns an empty state
func NewState() *State {
	return &State{touched: time.Now()}
}

// Watch registers fn to be called after every change. Watchers run outside
// the state lock and may read the state, but must not change it.
func (st *State) Watch(fn func(Change)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.watchers = append(st.watchers, fn)
}

// Snapshot returns the current session (nil if none) and its version
func (st *State) Snapshot() (*Session, uint64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.touched = time.Now()
	return st.current, st.version
}

// LastTouched is when the state was last read or changed
func (st *State) LastTouched() time.Time {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.touched
}

// Begin replaces any session with sess and returns the context the new
// conversion run must use. The previous run's context is cancelled.
func (st *State) Begin(parent context.Context, sess *Session) context.Context {
	ctx, cancel := context.WithCancel(parent)

	st.notify.Lock()
	defer st.notify.Unlock()

	st.mu.Lock()
	if st.cancel != nil {
		st.cancel()
	}
	st.cancel = cancel
	change, watchers := st.swapLocked(sess)
	st.mu.Unlock()

	notifyAll(watchers, change)
	return ctx
}

// Update applies fn to the current session if it is still the one with id.
// It returns false, leaving the state alone, when the session was replaced
// or reset in the meantime.
func (st *State) Update(id ulid.ULID, fn func(Session) Session) bool {
	st.notify.Lock()
	defer st.notify.Unlock()

	st.mu.Lock()
	if st.current == nil || st.current.ID != id {
		st.mu.Unlock()
		return false
	}
	next := fn(*st.current)
	change, watchers := st.swapLocked(&next)
	st.mu.Unlock()

	notifyAll(watchers, change)
	return true
}

// Reset cancels any running conversion and clears the state. The discarded
// session is returned so the caller can release anything derived from it.
func (st *State) Reset() *Session {
	st.notify.Lock()
	defer st.notify.Unlock()

	st.mu.Lock()
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
	prev := st.current
	if prev == nil {
		st.mu.Unlock()
		return nil
	}
	change, watchers := st.swapLocked(nil)
	st.mu.Unlock()

	notifyAll(watchers, change)
	return prev
}

// swapLocked installs next. Callers hold notify then mu, and deliver the
// returned change after releasing mu.
func (st *State) swapLocked(next *Session) (Change, []func(Change)) {
	change := Change{Previous: st.current, Current: next}
	st.current = next
	st.version++
	st.touched = time.Now()
	change.Version = st.version
	return change, st.watchers
}

func notifyAll(watchers []func(Change), change Change) {
	for _, fn := range watchers {
		fn(change)
	}
}
