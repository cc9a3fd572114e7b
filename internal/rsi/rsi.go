// Package rsi implements an RSI (Relative Strength Index) cache per
// (symbol, timeframe) over the stored candle series, supplementing the
// distilled spec's §2 table row. Grounded on
// original_source/src/rsi.rs's Wilder's-smoothing calculation. The
// cached series is not extended incrementally: after an invalidation
// the next read recomputes it over the whole stored series.
package rsi

import (
	"context"
	"time"

	"github.com/tradingplatform/candlearchiver/internal/cache"
	"github.com/tradingplatform/candlearchiver/internal/model"
	"github.com/tradingplatform/candlearchiver/internal/store"
)

// DefaultPeriod is the conventional RSI lookback window.
const DefaultPeriod = 14

// Point is one computed RSI value, aligned to a candle's open time.
type Point struct {
	OpenTimeMs int64   `json:"openTime"`
	Value      float64 `json:"value"`
}

// Calculate computes RSI over a sequence of closes, using a simple
// average to seed the first value and Wilder's smoothing thereafter,
// exactly as original_source/src/rsi.rs's calculate_rsi.
func Calculate(closes []float64, period int) []Point {
	if period <= 0 || len(closes) <= period {
		return nil
	}

	gains := make([]float64, 0, len(closes)-1)
	losses := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains = append(gains, delta)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -delta)
		}
	}

	var avgGain, avgLoss float64
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	points := make([]Point, 0, len(closes)-period)
	points = append(points, Point{Value: rsiFromAverages(avgGain, avgLoss)})

	for i := period; i < len(gains); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		points = append(points, Point{Value: rsiFromAverages(avgGain, avgLoss)})
	}
	return points
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// Cache serves RSI values for a series, backed by the candle Store and
// a Redis cache holding the full computed point series
// (services/api-gateway/internal/middleware/redis_cache.go pattern
// adapted to value caching rather than HTTP response caching).
type Cache struct {
	store  store.Store
	redis  *cache.RedisCache
	ttl    time.Duration
	period int
}

func New(s store.Store, redisCache *cache.RedisCache, ttl time.Duration, period int) *Cache {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Cache{store: s, redis: redisCache, ttl: ttl, period: period}
}

// Series returns RSI points for the given series over its full
// stored range, serving from Redis when the series has not advanced
// since the last computation.
func (c *Cache) Series(ctx context.Context, key model.SeriesKey) ([]Point, error) {
	var cacheKey string
	if c.redis != nil {
		cacheKey = c.redis.Key("rsi", key.Provider, key.Symbol, key.Timeframe)
		var cached []Point
		if c.redis.GetJSON(ctx, cacheKey, &cached) {
			return cached, nil
		}
	}

	candles, err := c.store.RangeQuery(ctx, key, nil, nil, 1<<20)
	if err != nil {
		return nil, err
	}
	closes := make([]float64, len(candles))
	for i, cndl := range candles {
		closes[i] = cndl.Close
	}

	raw := Calculate(closes, c.period)
	points := make([]Point, len(raw))
	offset := len(candles) - len(raw)
	for i, p := range raw {
		p.OpenTimeMs = candles[offset+i].OpenTimeMs
		points[i] = p
	}

	if c.redis != nil && len(points) > 0 {
		c.redis.SetJSON(ctx, cacheKey, points, c.ttl)
	}
	return points, nil
}

// Invalidate drops the cached RSI series for key, forcing the next
// Series call to recompute over the Store's current contents. Called
// by the Ingestion Engine and Realtime Merger whenever a closed candle
// lands in the Store for this series, so the cache never serves a
// value computed before the series' most recent candle.
func (c *Cache) Invalidate(ctx context.Context, key model.SeriesKey) {
	if c.redis == nil {
		return
	}
	c.redis.Invalidate(ctx, c.redis.Key("rsi", key.Provider, key.Symbol, key.Timeframe))
}
