package raft

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kartikbazzad/territory/internal/model"
	"github.com/kartikbazzad/territory/internal/reducer"
)

// FSM is the Raft state machine: the ordered event vector plus the
// GameState the reducer derives from it. The reducer itself never
// suspends; FSM holds the write lock only for the duration of Apply,
// matching spec.md §5's "reducer must not suspend" rule.
type FSM struct {
	mu     sync.RWMutex
	events []model.GameEvent
	state  *model.GameState
}

// NewFSM returns an empty state machine.
func NewFSM() *FSM {
	return &FSM{state: model.NewGameState()}
}

// Apply decodes payload as a GameEvent, folds it into the state, and
// records it at the given committed log index. Called once per committed
// index on every replica.
func (f *FSM) Apply(index uint64, payload []byte) (model.GameEvent, error) {
	ev, err := model.Decode(payload)
	if err != nil {
		return model.GameEvent{}, fmt.Errorf("apply index %d: %w", index, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !ev.IsBlank() {
		reducer.Apply(f.state, ev)
		f.events = append(f.events, ev)
	}
	f.state.LastAppliedLogIndex = index
	return ev, nil
}

// State returns a consistent snapshot of the current GameState. Safe to
// call concurrently with Apply; readers take the read lock only for the
// duration of the clone (spec.md §5).
func (f *FSM) State() *model.GameState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.Clone()
}

// BuildSnapshot serializes the full event vector and the index it was
// built at, on demand (spec.md §4.2).
func (f *FSM) BuildSnapshot() (Snapshot, error) {
	f.mu.RLock()
	events := make([]model.GameEvent, len(f.events))
	copy(events, f.events)
	lastApplied := f.state.LastAppliedLogIndex
	f.mu.RUnlock()

	data, err := json.Marshal(events)
	if err != nil {
		return Snapshot{}, fmt.Errorf("build snapshot: %w", err)
	}
	return Snapshot{LastIncludedIndex: lastApplied, Events: data}, nil
}

// InstallSnapshot replaces this FSM's event vector and rebuilds GameState by
// replaying from index 1, per spec.md §4.2.
func (f *FSM) InstallSnapshot(snap Snapshot) error {
	var events []model.GameEvent
	if len(snap.Events) > 0 {
		if err := json.Unmarshal(snap.Events, &events); err != nil {
			return fmt.Errorf("install snapshot: %w", err)
		}
	}

	state := reducer.ApplyAll(events)
	state.LastAppliedLogIndex = snap.LastIncludedIndex

	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = events
	f.state = state
	return nil
}

// LastAppliedIndex reports the highest log index folded into state so far.
func (f *FSM) LastAppliedIndex() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.LastAppliedLogIndex
}

// EventCount reports how many non-blank events have been applied.
func (f *FSM) EventCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.events)
}

// LatestEvent returns the most recently applied event, if any.
func (f *FSM) LatestEvent() (model.GameEvent, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.events) == 0 {
		return model.GameEvent{}, false
	}
	return f.events[len(f.events)-1], true
}
