package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Change is one dispatched batch call, successful or not.
type Change struct {
	Context  Context
	TargetID int
	Group    ActionGroup
	Err      error
	At       time.Time
}

// ChangeEntry is the stored form of a Change.
type ChangeEntry struct {
	ID             string     `json:"id"`
	Context        Context    `json:"context"`
	TargetID       int        `json:"targetId"`
	Action         ActionKind `json:"action"`
	IntervalMillis int64      `json:"intervalMillis,omitempty"`
	DefinitionIDs  []int      `json:"definitionIds"`
	Error          string     `json:"error,omitempty"`
	At             time.Time  `json:"at"`
}

// Entry converts c into a ChangeEntry with a fresh id.
func (c Change) Entry() ChangeEntry {
	e := ChangeEntry{
		ID:             uuid.NewString(),
		Context:        c.Context,
		TargetID:       c.TargetID,
		Action:         c.Group.Action,
		IntervalMillis: c.Group.IntervalMillis,
		DefinitionIDs:  c.Group.DefinitionIDs,
		At:             c.At,
	}
	if c.Err != nil {
		e.Error = c.Err.Error()
	}
	return e
}

// ChangeLister reads back recorded changes for one target, newest first.
type ChangeLister interface {
	ListChanges(ctx context.Context, kind Context, targetID, limit int) ([]ChangeEntry, error)
}

// ChangeRecorder receives every dispatched batch call. Recorder failures are logged by
// the resolver and never affect its result.
type ChangeRecorder interface {
	RecordChange(ctx context.Context, c Change) error
}

// NopRecorder discards changes.
type NopRecorder struct{}

func (NopRecorder) RecordChange(context.Context, Change) error { return nil }

// MultiRecorder fans a change out to every recorder and joins their errors.
type MultiRecorder []ChangeRecorder

func (m MultiRecorder) RecordChange(ctx context.Context, c Change) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.RecordChange(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
