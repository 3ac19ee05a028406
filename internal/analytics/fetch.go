package analytics

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStaleSelection is returned when a fetch completes after a newer one for the
// same level began. Callers drop the result.
var ErrStaleSelection = errors.New("stale selection")

// FetchStatus is the lifecycle of a level's data.
type FetchStatus string

const (
	FetchIdle    FetchStatus = "idle"
	FetchLoading FetchStatus = "loading"
	FetchReady   FetchStatus = "ready"
	FetchFailed  FetchStatus = "failed"
)

// LevelState is the last accepted outcome for one level. Stale marks Data
// left over from an earlier fetch after a later one failed.
type LevelState struct {
	Status    FetchStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
	Data      interface{} `json:"-"`
	Stale     bool        `json:"stale,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Ticket identifies one fetch. Only the newest ticket per level may complete.
type Ticket struct {
	Level Level
	seq   uint64
}

type inflight struct {
	seq    uint64
	cancel context.CancelFunc
}

// FetchTracker enforces last-request-wins per level. Failures are recorded on
// the failing level only.
type FetchTracker struct {
	mu       sync.Mutex
	seq      uint64
	inflight map[Level]inflight
	states   map[Level]LevelState
	now      func() time.Time
}

// NewFetchTracker constructs an empty tracker.
func NewFetchTracker() *FetchTracker {
	return &FetchTracker{
		inflight: make(map[Level]inflight),
		states:   make(map[Level]LevelState),
		now:      time.Now,
	}
}

// Begin starts a fetch for level, cancelling any in-flight fetch for it.
func (t *FetchTracker) Begin(ctx context.Context, level Level) (context.Context, Ticket) {
	fetchCtx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.inflight[level]; ok {
		prev.cancel()
	}
	t.seq++
	t.inflight[level] = inflight{seq: t.seq, cancel: cancel}
	state := t.states[level]
	state.Status = FetchLoading
	state.UpdatedAt = t.now()
	t.states[level] = state

	return fetchCtx, Ticket{Level: level, seq: t.seq}
}

// Complete records the outcome of ticket. It returns ErrStaleSelection, and
// records nothing, when a newer fetch for the level has begun.
func (t *FetchTracker) Complete(ticket Ticket, data interface{}, err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.inflight[ticket.Level]
	if !ok || current.seq != ticket.seq {
		return ErrStaleSelection
	}
	current.cancel()
	delete(t.inflight, ticket.Level)

	state := LevelState{UpdatedAt: t.now()}
	if err != nil {
		state.Status = FetchFailed
		state.Error = err.Error()
		state.Data = t.states[ticket.Level].Data
		state.Stale = state.Data != nil
	} else {
		state.Status = FetchReady
		state.Data = data
	}
	t.states[ticket.Level] = state
	return nil
}

// State returns the last recorded state for level.
func (t *FetchTracker) State(level Level) LevelState {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.states[level]
	if !ok {
		return LevelState{Status: FetchIdle}
	}
	return state
}

// Forget cancels and clears level, used when the level is popped off the stack.
func (t *FetchTracker) Forget(level Level) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.inflight[level]; ok {
		prev.cancel()
		delete(t.inflight, level)
	}
	delete(t.states, level)
}
