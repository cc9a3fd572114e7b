// Package store persists candles and per-series completion status. It
// is the sole owner of durable state (spec §3, "Ownership"): every
// other component reaches durable data only through this interface.
package store

import (
	"context"

	"github.com/tradingplatform/candlearchiver/internal/model"
)

// Store is the durable, sorted-by-open_time set of candles per
// (provider, symbol, timeframe), plus the completion status map.
//
// Implementations must serialise writers per series (a write lock on
// the series is sufficient, never a process-wide lock) and give
// readers snapshot-consistent, at-least-row-level results.
type Store interface {
	// InsertCandles is idempotent: for each row, insert if absent, do
	// nothing if the identity already exists. Atomic per batch.
	// Returns the number of genuinely new rows.
	InsertCandles(ctx context.Context, batch []model.Candle) (inserted int, err error)

	// RangeQuery returns candles with startMs <= open_time <= endMs,
	// ascending, truncated to limit. nil bounds mean "earliest"/"now".
	RangeQuery(ctx context.Context, key model.SeriesKey, startMs, endMs *int64, limit int) ([]model.Candle, error)

	MaxOpenTime(ctx context.Context, key model.SeriesKey) (*int64, error)
	MinOpenTime(ctx context.Context, key model.SeriesKey) (*int64, error)

	GetStatus(ctx context.Context, key model.SeriesKey) (*model.TimeframeStatus, error)
	SetStatus(ctx context.Context, key model.SeriesKey, oldest *int64, isComplete bool, reason model.CompletionReason) error

	// ClearStatus is the explicit operator action that resets a
	// series's completion record (spec §3, "cleared only by explicit
	// operator action").
	ClearStatus(ctx context.Context, key model.SeriesKey) error
}
