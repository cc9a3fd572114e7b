package ingestion

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// DefaultTimeframes mirrors original_source/src/backfill.rs's default
// timeframe list for multi-timeframe backfill orchestration.
var DefaultTimeframes = []string{
	"3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "8h", "12h", "1d", "3d",
}

// Scheduler fans out one Engine.Run task per (symbol, timeframe) pair,
// matching spec §5's "one logical task per (symbol, timeframe)" and
// supplementing the distilled spec with the original's multi-timeframe
// backfill sweep (original_source/src/backfill.rs).
type Scheduler struct {
	engine     *Engine
	logger     *zap.Logger
	timeframes []string
}

func NewScheduler(engine *Engine, logger *zap.Logger, timeframes []string) *Scheduler {
	if len(timeframes) == 0 {
		timeframes = DefaultTimeframes
	}
	return &Scheduler{engine: engine, logger: logger, timeframes: timeframes}
}

// RunAll runs every (symbol, timeframe) pair concurrently and returns
// one Summary per pair in unspecified order; a failure on one series
// never cancels the others (spec §7, "Recovery policy: failures are
// per-series. The engine continues with other series.").
func (s *Scheduler) RunAll(ctx context.Context, symbols []string, opts Options) []Summary {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []Summary
	)

	for _, symbol := range symbols {
		for _, tf := range s.timeframes {
			symbol, tf := symbol, tf
			wg.Add(1)
			go func() {
				defer wg.Done()
				summary, err := s.engine.Run(ctx, symbol, tf, opts)
				if err != nil {
					s.logger.Error("series failed",
						zap.String("symbol", symbol),
						zap.String("timeframe", tf),
						zap.Error(err))
				}
				mu.Lock()
				results = append(results, summary)
				mu.Unlock()
			}()
		}
	}

	wg.Wait()
	return results
}
