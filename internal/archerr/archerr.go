// Package archerr defines the error taxonomy shared by the ingestion
// engine, exchange client, gap filler and store: transient network
// errors are retriable, everything else fails a series outright.
package archerr

import (
	"errors"
	"fmt"

	"github.com/tradingplatform/candlearchiver/internal/model"
)

// Kind classifies an error for the ingestion orchestrator's
// retry/abort decision.
type Kind string

const (
	KindTransientNetwork Kind = "transient_network"
	KindProtocolMismatch Kind = "protocol_mismatch"
	KindStoreBackend     Kind = "store_backend"
	KindInvariant        Kind = "invariant"
	KindCancelled        Kind = "cancelled"
)

// SeriesError carries a classified error for a single series. The
// ingestion orchestrator never lets one series's SeriesError affect
// another series.
type SeriesError struct {
	Kind   Kind
	Series model.SeriesKey
	Err    error
}

func (e *SeriesError) Error() string {
	return fmt.Sprintf("series %s: %s: %v", e.Series, e.Kind, e.Err)
}

func (e *SeriesError) Unwrap() error { return e.Err }

func Transient(key model.SeriesKey, err error) *SeriesError {
	return &SeriesError{Kind: KindTransientNetwork, Series: key, Err: err}
}

func Protocol(key model.SeriesKey, err error) *SeriesError {
	return &SeriesError{Kind: KindProtocolMismatch, Series: key, Err: err}
}

func StoreBackend(key model.SeriesKey, err error) *SeriesError {
	return &SeriesError{Kind: KindStoreBackend, Series: key, Err: err}
}

func Invariant(key model.SeriesKey, err error) *SeriesError {
	return &SeriesError{Kind: KindInvariant, Series: key, Err: err}
}

func Cancelled(key model.SeriesKey, err error) *SeriesError {
	return &SeriesError{Kind: KindCancelled, Series: key, Err: err}
}

// IsRetriable reports whether err should be retried locally with
// backoff before the series is abandoned.
func IsRetriable(err error) bool {
	var se *SeriesError
	if errors.As(err, &se) {
		return se.Kind == KindTransientNetwork
	}
	return false
}

// KindOf extracts the Kind of a SeriesError, or "" if err is not one.
func KindOf(err error) Kind {
	var se *SeriesError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
