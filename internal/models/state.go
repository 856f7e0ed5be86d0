package models

import "fmt"

// SyncState is the per-record synchronization state machine shared by
// Project, Issue, Comment and Attachment. The task executor records
// the transition to an in-flight phase before invoking a backend
// operation, and the operation must leave the record in a terminal
// OK/Erred state. This keeps retries from double-submitting work.
type SyncState string

const (
	StateCreationScheduled SyncState = "creation_scheduled"
	StateCreating          SyncState = "creating"
	StateUpdateScheduled   SyncState = "update_scheduled"
	StateUpdating          SyncState = "updating"
	StateDeletionScheduled SyncState = "deletion_scheduled"
	StateDeleting          SyncState = "deleting"
	StateOK                SyncState = "ok"
	StateErred             SyncState = "erred"
)

// Valid reports whether s is a known state.
func (s SyncState) Valid() bool {
	switch s {
	case StateCreationScheduled, StateCreating,
		StateUpdateScheduled, StateUpdating,
		StateDeletionScheduled, StateDeleting,
		StateOK, StateErred:
		return true
	}
	return false
}

// Terminal reports whether s is a resting state (OK or Erred).
func (s SyncState) Terminal() bool {
	return s == StateOK || s == StateErred
}

// InFlight reports whether a backend operation is currently running
// for the record.
func (s SyncState) InFlight() bool {
	return s == StateCreating || s == StateUpdating || s == StateDeleting
}

// next maps each scheduled state to its in-flight phase.
var next = map[SyncState]SyncState{
	StateCreationScheduled: StateCreating,
	StateUpdateScheduled:   StateUpdating,
	StateDeletionScheduled: StateDeleting,
}

// Begin moves a scheduled state into its in-flight phase. It is the
// executor's responsibility to persist the transition before the
// backend call runs.
func (s SyncState) Begin() (SyncState, error) {
	n, ok := next[s]
	if !ok {
		return s, fmt.Errorf("cannot begin operation from state %q", s)
	}
	return n, nil
}
