package ingestion

import (
	"context"

	"go.uber.org/zap"

	"github.com/tradingplatform/candlearchiver/internal/archerr"
	"github.com/tradingplatform/candlearchiver/internal/model"
)

// FillWindow pages backward from cursorMs (exclusive) down to
// floorMs (inclusive), fetching and storing closed candles, then
// gap-fills the touched range. Unlike Run, it never consults or
// writes completion status: it serves the Realtime Merger's narrow
// gap-heal on reconnect (spec §4.7), which must not affect a series's
// historical-ingestion completion record.
func (e *Engine) FillWindow(ctx context.Context, symbol, timeframe string, floorMs, cursorMs int64) error {
	key := model.SeriesKey{Provider: e.client.Provider(), Symbol: symbol, Timeframe: timeframe}
	log := e.logger.With(zap.String("symbol", symbol), zap.String("timeframe", timeframe))

	cursor := cursorMs
	for cursor > floorMs {
		if err := ctx.Err(); err != nil {
			return archerr.Cancelled(key, err)
		}

		originalCursor := cursor
		batch, err := e.fetchWithRetry(ctx, key, symbol, timeframe, cursor)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}
		batch = discardAtOrAfterCursor(batch, originalCursor)
		if len(batch) == 0 {
			break
		}

		if _, err := e.store.InsertCandles(ctx, batch); err != nil {
			return archerr.StoreBackend(key, err)
		}

		oldestInBatch := batch[0].OpenTimeMs
		for _, c := range batch {
			if c.OpenTimeMs < oldestInBatch {
				oldestInBatch = c.OpenTimeMs
			}
		}

		gapLo := oldestInBatch
		if gapLo < floorMs {
			gapLo = floorMs
		}
		gapHi := originalCursor - 1
		if gapHi >= gapLo {
			if _, err := e.filler.Fill(ctx, key, gapLo, gapHi); err != nil {
				return err
			}
		}

		if oldestInBatch <= floorMs {
			break
		}
		cursor = oldestInBatch
	}

	log.Debug("gap heal window filled", zap.Int64("floor", floorMs), zap.Int64("cursor", cursorMs))
	return nil
}
