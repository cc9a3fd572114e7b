package gapfill

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/tradingplatform/candlearchiver/internal/model"
	"github.com/tradingplatform/candlearchiver/internal/period"
	"github.com/tradingplatform/candlearchiver/internal/store"
)

func testKey() model.SeriesKey {
	return model.SeriesKey{Provider: "binance", Symbol: "BTCUSDT", Timeframe: "1h"}
}

func candleAt(key model.SeriesKey, openTime int64, open, high, low, close float64) model.Candle {
	periodMs := period.MustMs(key.Timeframe)
	return model.Candle{
		Provider: key.Provider, Symbol: key.Symbol, Timeframe: key.Timeframe,
		OpenTimeMs: openTime, CloseTimeMs: period.CloseTime(openTime, periodMs),
		Open: open, High: high, Low: low, Close: close,
	}
}

// S2: a 3-candle hole between 10:00 and 14:00 on a 1h series produces
// three synthetic rows at 11:00, 12:00, 13:00, each interpolated=true,
// with close values equal to close_prev + (close_next - close_prev) * {1,2,3}/4.
func TestFillScenarioS2(t *testing.T) {
	key := testKey()
	periodMs := period.MustMs(key.Timeframe)
	base := int64(1_000_000_000_000)
	base = period.Align(base, periodMs)

	a := candleAt(key, base, 100, 110, 95, 105)
	b := candleAt(key, base+4*periodMs, 109, 115, 108, 113)

	mem := store.NewMemoryStore()
	ctx := context.Background()
	if _, err := mem.InsertCandles(ctx, []model.Candle{a, b}); err != nil {
		t.Fatal(err)
	}

	f := New(mem, zap.NewNop())
	inserted, err := f.Fill(ctx, key, base, base+4*periodMs)
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 3 {
		t.Fatalf("expected 3 synthetic candles, got %d", inserted)
	}

	all, err := mem.RangeQuery(ctx, key, nil, nil, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 candles total, got %d", len(all))
	}

	for i, c := range all {
		if i == 0 || i == len(all)-1 {
			if c.Interpolated {
				t.Errorf("endpoint candle at %d unexpectedly interpolated", c.OpenTimeMs)
			}
			continue
		}
		if !c.Interpolated {
			t.Errorf("middle candle at %d expected interpolated=true", c.OpenTimeMs)
		}
		k := int64(i)
		wantClose := a.Close + (b.Close-a.Close)*float64(k)/4
		if abs(c.Close-wantClose) > 1e-9 {
			t.Errorf("candle %d: close = %v, want %v", i, c.Close, wantClose)
		}
	}
}

// S6: interpolation bounds. Synthetic high is never below
// max(linear open, linear close) and low never above min(open, close).
func TestFillScenarioS6InterpolationBounds(t *testing.T) {
	key := testKey()
	periodMs := period.MustMs(key.Timeframe)
	base := period.Align(int64(2_000_000_000_000), periodMs)

	a := candleAt(key, base, 100, 110, 95, 105)
	b := candleAt(key, base+4*periodMs, 109, 115, 108, 113)

	mem := store.NewMemoryStore()
	ctx := context.Background()
	mem.InsertCandles(ctx, []model.Candle{a, b})

	f := New(mem, zap.NewNop())
	if _, err := f.Fill(ctx, key, base, base+4*periodMs); err != nil {
		t.Fatal(err)
	}

	all, _ := mem.RangeQuery(ctx, key, nil, nil, 100)
	for _, c := range all {
		if !c.Interpolated {
			continue
		}
		if c.High < c.Open || c.High < c.Close {
			t.Errorf("candle %d: high %v below open/close %v/%v", c.OpenTimeMs, c.High, c.Open, c.Close)
		}
		if c.Low > c.Open || c.Low > c.Close {
			t.Errorf("candle %d: low %v above open/close %v/%v", c.OpenTimeMs, c.Low, c.Open, c.Close)
		}
		if c.Volume < 0 || c.NumberOfTrades < 0 {
			t.Errorf("candle %d: negative volume or trades", c.OpenTimeMs)
		}
	}
}

// Gap of size 1 (consecutive candles) produces no fill.
func TestFillGapOfOneIsNoop(t *testing.T) {
	key := testKey()
	periodMs := period.MustMs(key.Timeframe)
	base := period.Align(int64(3_000_000_000_000), periodMs)

	a := candleAt(key, base, 1, 2, 0, 1)
	b := candleAt(key, base+periodMs, 1, 2, 0, 1)

	mem := store.NewMemoryStore()
	ctx := context.Background()
	mem.InsertCandles(ctx, []model.Candle{a, b})

	f := New(mem, zap.NewNop())
	inserted, err := f.Fill(ctx, key, base, base+periodMs)
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 0 {
		t.Errorf("expected no synthetic candles for adjacent pair, got %d", inserted)
	}
}

func TestVerifyReportsNoAnomaliesAfterFill(t *testing.T) {
	key := testKey()
	periodMs := period.MustMs(key.Timeframe)
	base := period.Align(int64(4_000_000_000_000), periodMs)

	a := candleAt(key, base, 100, 110, 95, 105)
	b := candleAt(key, base+4*periodMs, 109, 115, 108, 113)

	mem := store.NewMemoryStore()
	ctx := context.Background()
	mem.InsertCandles(ctx, []model.Candle{a, b})

	f := New(mem, zap.NewNop())
	if _, err := f.Fill(ctx, key, base, base+4*periodMs); err != nil {
		t.Fatal(err)
	}

	report, err := f.Verify(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if report.GapCount() != 0 || report.OverlapCount() != 0 {
		t.Errorf("expected zero anomalies after fill, got gaps=%d overlaps=%d", report.GapCount(), report.OverlapCount())
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
