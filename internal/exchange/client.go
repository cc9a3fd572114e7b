// Package exchange defines the boundary the ingestion engine and
// realtime merger use to talk to a single exchange provider, plus a
// Binance-flavoured implementation. Dynamic dispatch on Client is
// deliberate (spec §9): tests substitute a fake satisfying the same
// interface.
package exchange

import (
	"context"

	"github.com/tradingplatform/candlearchiver/internal/model"
)

// Client fetches historical batches and opens live subscriptions for
// a single exchange provider.
type Client interface {
	// FetchClosed returns up to limit closed candles with
	// open_time < endTimeMs, ascending. May return fewer than limit,
	// including zero, signalling no older data exists. Never returns
	// candles with close_time > now.
	FetchClosed(ctx context.Context, symbol, timeframe string, endTimeMs int64, limit int) ([]model.Candle, error)

	// Subscribe opens a live update stream for (symbol, timeframe).
	// The returned channel yields in-progress updates followed by one
	// closing update (IsClosed=true) per period, and is closed when
	// ctx is cancelled or the subscription ends irrecoverably. Errors
	// not fatal to the caller are logged and trigger a reconnect.
	Subscribe(ctx context.Context, symbol, timeframe string) (<-chan model.CandleUpdate, error)

	// Provider is the identity recorded on every Candle this client
	// produces.
	Provider() string
}
