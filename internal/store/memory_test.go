package store

import (
	"context"
	"testing"

	"github.com/tradingplatform/candlearchiver/internal/model"
)

func sampleCandle(openTime int64) model.Candle {
	return model.Candle{
		Provider: "binance", Symbol: "BTCUSDT", Timeframe: "1h",
		OpenTimeMs: openTime, CloseTimeMs: openTime + 3_599_999,
		Open: 1, High: 2, Low: 0, Close: 1, Volume: 10,
	}
}

func TestInsertCandlesIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	batch := []model.Candle{sampleCandle(0), sampleCandle(3_600_000)}

	inserted, err := mem.InsertCandles(ctx, batch)
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 2 {
		t.Fatalf("first insert: expected 2, got %d", inserted)
	}

	inserted, err = mem.InsertCandles(ctx, batch)
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 0 {
		t.Fatalf("second insert: expected 0 new rows, got %d", inserted)
	}
}

func TestInsertCandlesPartialOverlap(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	mem.InsertCandles(ctx, []model.Candle{sampleCandle(0)})

	inserted, err := mem.InsertCandles(ctx, []model.Candle{sampleCandle(0), sampleCandle(3_600_000)})
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 1 {
		t.Fatalf("expected 1 new row from partial overlap, got %d", inserted)
	}
}

func TestMinMaxOpenTime(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	key := model.SeriesKey{Provider: "binance", Symbol: "BTCUSDT", Timeframe: "1h"}

	if v, _ := mem.MinOpenTime(ctx, key); v != nil {
		t.Fatalf("expected nil min on empty series, got %v", *v)
	}

	mem.InsertCandles(ctx, []model.Candle{sampleCandle(0), sampleCandle(3_600_000), sampleCandle(7_200_000)})

	min, err := mem.MinOpenTime(ctx, key)
	if err != nil || min == nil || *min != 0 {
		t.Fatalf("expected min=0, got %v err=%v", min, err)
	}
	max, err := mem.MaxOpenTime(ctx, key)
	if err != nil || max == nil || *max != 7_200_000 {
		t.Fatalf("expected max=7200000, got %v err=%v", max, err)
	}
}

func TestRangeQueryOrderingAndLimit(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	key := model.SeriesKey{Provider: "binance", Symbol: "BTCUSDT", Timeframe: "1h"}
	mem.InsertCandles(ctx, []model.Candle{sampleCandle(7_200_000), sampleCandle(0), sampleCandle(3_600_000)})

	got, err := mem.RangeQuery(ctx, key, nil, nil, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected limit=2 respected, got %d", len(got))
	}
	if got[0].OpenTimeMs != 0 || got[1].OpenTimeMs != 3_600_000 {
		t.Fatalf("expected ascending order, got %v", got)
	}
}

func TestStatusLifecycle(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	key := model.SeriesKey{Provider: "binance", Symbol: "BTCUSDT", Timeframe: "1h"}

	st, err := mem.GetStatus(ctx, key)
	if err != nil || st != nil {
		t.Fatalf("expected nil status before any write, got %v", st)
	}

	oldest := int64(100)
	if err := mem.SetStatus(ctx, key, &oldest, false, model.ReasonNone); err != nil {
		t.Fatal(err)
	}
	st, _ = mem.GetStatus(ctx, key)
	if st == nil || st.IsComplete {
		t.Fatalf("expected partial non-complete status, got %v", st)
	}

	if err := mem.SetStatus(ctx, key, &oldest, true, model.ReasonFloorReached); err != nil {
		t.Fatal(err)
	}
	st, _ = mem.GetStatus(ctx, key)
	if st == nil || !st.IsComplete || st.Reason != model.ReasonFloorReached {
		t.Fatalf("expected complete(floor_reached), got %v", st)
	}

	if err := mem.ClearStatus(ctx, key); err != nil {
		t.Fatal(err)
	}
	st, _ = mem.GetStatus(ctx, key)
	if st != nil {
		t.Fatalf("expected nil status after clear, got %v", st)
	}
}
