// Package ingestion implements the historical ingestion engine (spec
// §4.4): a resumable, idempotent backward-paginated fetcher per
// (symbol, timeframe), plus a Scheduler that fans out one logical
// task per series (spec §5, supplemented by
// original_source/src/backfill.rs's per-timeframe task loop).
//
// Grounded on the teacher's internal/service/market_data_download_service.go
// processBinanceDownload loop, restructured to match spec §4.4's
// batch-loop contract exactly (resume-from-min, floor semantics,
// gap-fill-per-batch, completion write-through).
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/tradingplatform/candlearchiver/internal/archerr"
	"github.com/tradingplatform/candlearchiver/internal/completion"
	"github.com/tradingplatform/candlearchiver/internal/exchange"
	"github.com/tradingplatform/candlearchiver/internal/gapfill"
	"github.com/tradingplatform/candlearchiver/internal/model"
	"github.com/tradingplatform/candlearchiver/internal/period"
	"github.com/tradingplatform/candlearchiver/internal/rsi"
	"github.com/tradingplatform/candlearchiver/internal/store"
)

// BatchSize is the fixed page size for fetch_closed requests (spec §4.4).
const BatchSize = 1000

// RetryPolicy mirrors spec §4.4's exact retry contract: base 500ms,
// factor 2, cap 8s, max 5 retries.
func RetryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 8 * time.Second
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, 5)
}

// Options configures a single series ingestion run (spec §6 operator
// controls: symbol, start_date/floor, force).
type Options struct {
	FloorMs *int64 // inclusive lower bound; nil means "all available"
	Force   bool   // ignore Complete status when starting
}

// Summary is the post-loop result of Run (spec §4.4 step 5).
type Summary struct {
	Series             model.SeriesKey
	Batches            int
	CandlesInserted    int
	InterpolatedCount  int
	FinalStatus        model.CompletionReason
	Skipped            bool
}

// Engine runs the per-series batch loop of spec §4.4.
type Engine struct {
	store     store.Store
	client    exchange.Client
	filler    *gapfill.Filler
	tracker   *completion.Tracker
	rsiCache  *rsi.Cache
	logger    *zap.Logger
	nowFunc   func() int64
}

func New(s store.Store, c exchange.Client, logger *zap.Logger) *Engine {
	return &Engine{
		store:   s,
		client:  c,
		filler:  gapfill.New(s, logger),
		tracker: completion.New(s),
		logger:  logger,
		nowFunc: func() int64 { return time.Now().UnixMilli() },
	}
}

// SetRSICache attaches the RSI indicator cache so each batch insert
// invalidates the series' cached value; the next read recomputes it
// over the Store's current contents (see DESIGN.md).
func (e *Engine) SetRSICache(c *rsi.Cache) { e.rsiCache = c }

// Run executes spec §4.4's full procedure for a single series.
func (e *Engine) Run(ctx context.Context, symbol, timeframe string, opts Options) (Summary, error) {
	key := model.SeriesKey{Provider: e.client.Provider(), Symbol: symbol, Timeframe: timeframe}
	log := e.logger.With(zap.String("symbol", symbol), zap.String("timeframe", timeframe))
	summary := Summary{Series: key}

	_, err := period.Ms(timeframe)
	if err != nil {
		return summary, archerr.Protocol(key, err)
	}

	// 1. Admission.
	state, err := e.tracker.Load(ctx, key)
	if err != nil {
		return summary, err
	}
	if state.IsComplete() && !opts.Force {
		log.Info("series already complete, skipping")
		summary.Skipped = true
		return summary, nil
	}

	// 2. Cursor initialisation.
	now := e.nowFunc()
	var cursor int64
	minOpen, err := e.store.MinOpenTime(ctx, key)
	if err != nil {
		return summary, archerr.StoreBackend(key, err)
	}
	if minOpen != nil {
		// Resume mode: extend further into the past, regardless of
		// force (spec §4.4 "force... does not alter the cursor
		// logic; the engine will still resume from the stored
		// minimum unless the operator explicitly clears the series").
		cursor = *minOpen
	} else {
		cursor = now
	}

	// 3. Floor.
	floorMs := int64(0)
	if opts.FloorMs != nil {
		floorMs = *opts.FloorMs
		if floorMs > now {
			floorMs = now
		}
	}

	// 4. Batch loop.
	for {
		if err := ctx.Err(); err != nil {
			return summary, archerr.Cancelled(key, err)
		}

		originalCursor := cursor
		batch, err := e.fetchWithRetry(ctx, key, symbol, timeframe, cursor)
		if err != nil {
			return summary, err
		}
		summary.Batches++

		if len(batch) == 0 {
			if err := e.tracker.MarkComplete(ctx, key, minOpenOrNil(minOpen), model.ReasonExhausted); err != nil {
				return summary, err
			}
			summary.FinalStatus = model.ReasonExhausted
			log.Info("series exhausted at exchange", zap.Int64("cursor", cursor))
			break
		}

		batch = discardAtOrAfterCursor(batch, originalCursor)
		if len(batch) == 0 {
			// Every candle the exchange returned was discarded by the
			// sanity guard; nothing to do this iteration but the
			// exchange clearly has no older usable data.
			if err := e.tracker.MarkComplete(ctx, key, minOpenOrNil(minOpen), model.ReasonExhausted); err != nil {
				return summary, err
			}
			summary.FinalStatus = model.ReasonExhausted
			break
		}

		inserted, err := e.store.InsertCandles(ctx, batch)
		if err != nil {
			return summary, archerr.StoreBackend(key, err)
		}
		summary.CandlesInserted += inserted
		if inserted > 0 && e.rsiCache != nil {
			e.rsiCache.Invalidate(ctx, key)
		}

		oldestInBatch := batch[0].OpenTimeMs
		for _, c := range batch {
			if c.OpenTimeMs < oldestInBatch {
				oldestInBatch = c.OpenTimeMs
			}
		}

		gapLo := oldestInBatch
		gapHi := originalCursor - 1
		if gapHi >= gapLo {
			interp, err := e.filler.Fill(ctx, key, gapLo, gapHi)
			if err != nil {
				return summary, err
			}
			summary.InterpolatedCount += interp
		}

		if minOpen == nil || oldestInBatch < *minOpen {
			minOpen = &oldestInBatch
		}

		if err := e.tracker.RecordProgress(ctx, key, oldestInBatch); err != nil {
			return summary, err
		}

		if oldestInBatch <= floorMs {
			if err := e.tracker.MarkComplete(ctx, key, &oldestInBatch, model.ReasonFloorReached); err != nil {
				return summary, err
			}
			summary.FinalStatus = model.ReasonFloorReached
			log.Info("floor reached", zap.Int64("oldest", oldestInBatch), zap.Int64("floor", floorMs))
			break
		}

		cursor = oldestInBatch
	}

	log.Info("ingestion run complete",
		zap.Int("batches", summary.Batches),
		zap.Int("inserted", summary.CandlesInserted),
		zap.Int("interpolated", summary.InterpolatedCount))
	return summary, nil
}

func minOpenOrNil(v *int64) *int64 { return v }

// discardAtOrAfterCursor drops any candle whose open_time >= cursor,
// the sanity guard against provider mis-ordering (spec §4.4 "Tie-break
// & edge cases").
func discardAtOrAfterCursor(batch []model.Candle, cursor int64) []model.Candle {
	out := batch[:0:0]
	for _, c := range batch {
		if c.OpenTimeMs >= cursor {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (e *Engine) fetchWithRetry(ctx context.Context, key model.SeriesKey, symbol, timeframe string, cursor int64) ([]model.Candle, error) {
	var result []model.Candle
	op := func() error {
		batch, err := e.client.FetchClosed(ctx, symbol, timeframe, cursor, BatchSize)
		if err != nil {
			if archerr.IsRetriable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = batch
		return nil
	}

	notify := func(err error, d time.Duration) {
		e.logger.Warn("retrying exchange fetch",
			zap.String("series", key.String()),
			zap.Error(err),
			zap.Duration("backoff", d))
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(RetryPolicy(), ctx), notify); err != nil {
		return nil, fmt.Errorf("ingestion: fetch_closed exhausted retries: %w", err)
	}
	return result, nil
}
