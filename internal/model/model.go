// Package model holds the data types shared across the candle archiver:
// durable candles, per-series completion status, and the transient
// types used by ingestion and the realtime merger.
package model

import "time"

// Candle is a single OHLCV bar. Immutable once closed. Identity is
// (Provider, Symbol, Timeframe, OpenTimeMs).
type Candle struct {
	Provider       string  `db:"provider" json:"provider"`
	Symbol         string  `db:"symbol" json:"symbol"`
	Timeframe      string  `db:"timeframe" json:"timeframe"`
	OpenTimeMs     int64   `db:"open_time" json:"openTime"`
	CloseTimeMs    int64   `db:"close_time" json:"closeTime"`
	Open           float64 `db:"open" json:"open"`
	High           float64 `db:"high" json:"high"`
	Low            float64 `db:"low" json:"low"`
	Close          float64 `db:"close" json:"close"`
	Volume         float64 `db:"volume" json:"volume"`
	QuoteVolume    float64 `db:"quote_asset_volume" json:"quoteAssetVolume"`
	TakerBaseVol   float64 `db:"taker_buy_base_asset_volume" json:"takerBuyBaseAssetVolume"`
	TakerQuoteVol  float64 `db:"taker_buy_quote_asset_volume" json:"takerBuyQuoteAssetVolume"`
	NumberOfTrades int64   `db:"number_of_trades" json:"numberOfTrades"`
	Interpolated   bool    `db:"interpolated" json:"interpolated"`
}

// SeriesKey identifies a (provider, symbol, timeframe) triple, the
// unit of ingestion planning and completion status.
type SeriesKey struct {
	Provider  string
	Symbol    string
	Timeframe string
}

func (k SeriesKey) String() string {
	return k.Provider + "/" + k.Symbol + "/" + k.Timeframe
}

// CompletionReason explains why a series was marked complete.
type CompletionReason string

const (
	ReasonNone         CompletionReason = ""
	ReasonExhausted    CompletionReason = "exhausted"
	ReasonFloorReached CompletionReason = "floor_reached"
)

// TimeframeStatus is the durable completion record for a series.
type TimeframeStatus struct {
	Provider         string           `db:"provider" json:"provider"`
	Symbol           string           `db:"symbol" json:"symbol"`
	Timeframe        string           `db:"timeframe" json:"timeframe"`
	OldestCandleTime *int64           `db:"oldest_candle_time" json:"oldestCandleTime,omitempty"`
	IsComplete       bool             `db:"is_complete" json:"isComplete"`
	Reason           CompletionReason `db:"reason" json:"reason,omitempty"`
	LastUpdated      time.Time        `db:"last_updated" json:"lastUpdated"`
}

// InProgressCandle is the transient, in-memory-only candle for the
// current, not-yet-closed period of a subscribed series.
type InProgressCandle struct {
	Candle
	IsClosed bool
}

// IngestionCursor is the transient, per-run cursor used while paging
// backward through a series's history.
type IngestionCursor struct {
	Key       SeriesKey
	EndTimeMs int64
}

// CandleUpdate is what the Exchange Client's subscription stream
// yields, and what the Realtime Merger fans out to clients.
type CandleUpdate struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Candle    Candle `json:"candle"`
	IsClosed  bool   `json:"isClosed"`
}
