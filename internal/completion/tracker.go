// Package completion implements the per-series completion state
// machine of spec §4.6: Unknown -> Partial -> Complete (terminal
// unless forced), write-through to the Store after every batch.
// Grounded on original_source/src/timeframe_status.rs's
// is_complete/mark_complete/update_progress functions.
package completion

import (
	"context"

	"github.com/tradingplatform/candlearchiver/internal/archerr"
	"github.com/tradingplatform/candlearchiver/internal/model"
	"github.com/tradingplatform/candlearchiver/internal/store"
)

// State is the in-process view of a series's completion record.
type State struct {
	Status *model.TimeframeStatus // nil means Unknown
}

func (s State) IsComplete() bool {
	return s.Status != nil && s.Status.IsComplete
}

// Tracker reads and writes completion state through a Store.
type Tracker struct {
	store store.Store
}

func New(s store.Store) *Tracker {
	return &Tracker{store: s}
}

// Load returns the current state for key: Unknown if no record exists.
func (t *Tracker) Load(ctx context.Context, key model.SeriesKey) (State, error) {
	st, err := t.store.GetStatus(ctx, key)
	if err != nil {
		return State{}, archerr.StoreBackend(key, err)
	}
	return State{Status: st}, nil
}

// RecordProgress records that oldest has advanced. An Unknown or
// Partial series is written as Partial; a Complete series (reached
// during a forced run) stays Complete with its reason, so only Clear
// ever moves it back.
func (t *Tracker) RecordProgress(ctx context.Context, key model.SeriesKey, oldest int64) error {
	current, err := t.store.GetStatus(ctx, key)
	if err != nil {
		return archerr.StoreBackend(key, err)
	}
	isComplete, reason := false, model.ReasonNone
	if current != nil && current.IsComplete {
		isComplete, reason = true, current.Reason
	}
	if err := t.store.SetStatus(ctx, key, &oldest, isComplete, reason); err != nil {
		return archerr.StoreBackend(key, err)
	}
	return nil
}

// MarkComplete writes the terminal Complete transition. Never
// transitions back automatically (spec §4.6): only Clear does.
func (t *Tracker) MarkComplete(ctx context.Context, key model.SeriesKey, oldest *int64, reason model.CompletionReason) error {
	if err := t.store.SetStatus(ctx, key, oldest, true, reason); err != nil {
		return archerr.StoreBackend(key, err)
	}
	return nil
}

// Clear is the explicit operator action that resets a series back to
// Unknown (spec §3, "cleared only by explicit operator action").
func (t *Tracker) Clear(ctx context.Context, key model.SeriesKey) error {
	if err := t.store.ClearStatus(ctx, key); err != nil {
		return archerr.StoreBackend(key, err)
	}
	return nil
}
