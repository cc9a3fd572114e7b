package ingestion

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/tradingplatform/candlearchiver/internal/model"
	"github.com/tradingplatform/candlearchiver/internal/store"
)

// fakeClient is the dynamic-dispatch test double spec §9 calls for:
// it satisfies exchange.Client deterministically via scripted pages.
type fakeClient struct {
	provider string
	pages    [][]model.Candle // each call to FetchClosed pops the next page
	calls    int
}

func (f *fakeClient) Provider() string { return f.provider }

func (f *fakeClient) FetchClosed(_ context.Context, symbol, timeframe string, endTimeMs int64, limit int) ([]model.Candle, error) {
	if f.calls >= len(f.pages) {
		return nil, nil
	}
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

func (f *fakeClient) Subscribe(_ context.Context, symbol, timeframe string) (<-chan model.CandleUpdate, error) {
	ch := make(chan model.CandleUpdate)
	close(ch)
	return ch, nil
}

const testPeriodMs = 300_000 // 5m

func page(n int, oldestOpenTime int64) []model.Candle {
	out := make([]model.Candle, n)
	for i := 0; i < n; i++ {
		openTime := oldestOpenTime + int64(i)*testPeriodMs
		out[i] = model.Candle{
			Provider: "binance", Symbol: "BTCUSDT", Timeframe: "5m",
			OpenTimeMs: openTime, CloseTimeMs: openTime + testPeriodMs - 1,
			Open: 1, High: 1, Low: 1, Close: 1,
		}
	}
	return out
}

// S1: two non-empty pages where the second page's oldest candle
// reaches the floor. Expected: all rows stored, status
// Complete(FloorReached), min_open_time == floor.
func TestRunScenarioS1FloorReached(t *testing.T) {
	ctx := context.Background()
	floor := int64(1_000_000_000)
	page2Oldest := floor
	page1Oldest := page2Oldest + 500*testPeriodMs

	client := &fakeClient{
		provider: "binance",
		pages: [][]model.Candle{
			page(1000, page1Oldest),
			page(500, page2Oldest),
		},
	}
	mem := store.NewMemoryStore()
	engine := New(mem, client, zap.NewNop())
	engine.nowFunc = func() int64 { return page1Oldest + 1000*testPeriodMs }

	summary, err := engine.Run(ctx, "BTCUSDT", "5m", Options{FloorMs: &floor})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.FinalStatus != model.ReasonFloorReached {
		t.Errorf("expected FloorReached, got %q", summary.FinalStatus)
	}
	if summary.CandlesInserted != 1500 {
		t.Errorf("expected 1500 candles inserted, got %d", summary.CandlesInserted)
	}

	key := model.SeriesKey{Provider: "binance", Symbol: "BTCUSDT", Timeframe: "5m"}
	min, _ := mem.MinOpenTime(ctx, key)
	if min == nil || *min != floor {
		t.Errorf("expected min_open_time == floor, got %v", min)
	}

	status, _ := mem.GetStatus(ctx, key)
	if status == nil || !status.IsComplete || status.Reason != model.ReasonFloorReached {
		t.Fatalf("expected Complete(FloorReached) status, got %v", status)
	}
}

// Empty first batch marks the series Complete(Exhausted).
func TestRunEmptyFirstBatchMarksExhausted(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{provider: "binance", pages: [][]model.Candle{{}}}
	mem := store.NewMemoryStore()
	engine := New(mem, client, zap.NewNop())

	summary, err := engine.Run(ctx, "ETHUSDT", "1h", Options{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.FinalStatus != model.ReasonExhausted {
		t.Errorf("expected Exhausted, got %q", summary.FinalStatus)
	}
	if summary.CandlesInserted != 0 {
		t.Errorf("expected 0 candles inserted, got %d", summary.CandlesInserted)
	}
}

// S3 / property 7: once Complete, the engine without force performs
// zero exchange calls.
func TestRunCompletionIsTerminalWithoutForce(t *testing.T) {
	ctx := context.Background()
	key := model.SeriesKey{Provider: "binance", Symbol: "BTCUSDT", Timeframe: "5m"}
	mem := store.NewMemoryStore()
	oldest := int64(500)
	if err := mem.SetStatus(ctx, key, &oldest, true, model.ReasonFloorReached); err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{provider: "binance", pages: [][]model.Candle{page(10, 0)}}
	engine := New(mem, client, zap.NewNop())

	summary, err := engine.Run(ctx, "BTCUSDT", "5m", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !summary.Skipped {
		t.Error("expected series to be skipped")
	}
	if client.calls != 0 {
		t.Errorf("expected zero exchange calls, got %d", client.calls)
	}
}

// With force=true, the engine still resumes from the stored minimum
// rather than restarting from now (spec §4.4 "Tie-break & edge cases").
func TestRunForceStillResumesFromMin(t *testing.T) {
	ctx := context.Background()
	key := model.SeriesKey{Provider: "binance", Symbol: "BTCUSDT", Timeframe: "5m"}
	mem := store.NewMemoryStore()

	existingOldest := int64(10_000_000)
	mem.InsertCandles(ctx, []model.Candle{{
		Provider: "binance", Symbol: "BTCUSDT", Timeframe: "5m",
		OpenTimeMs: existingOldest, CloseTimeMs: existingOldest + testPeriodMs - 1,
		Open: 1, High: 1, Low: 1, Close: 1,
	}})
	mem.SetStatus(ctx, key, &existingOldest, true, model.ReasonFloorReached)

	floor := existingOldest - int64(2)*testPeriodMs
	nextPage := page(2, floor)
	client := &fakeClient{provider: "binance", pages: [][]model.Candle{nextPage}}
	engine := New(mem, client, zap.NewNop())

	summary, err := engine.Run(ctx, "BTCUSDT", "5m", Options{FloorMs: &floor, Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Skipped {
		t.Fatal("expected force to bypass the completion skip gate")
	}
	min, _ := mem.MinOpenTime(ctx, key)
	if min == nil || *min != floor {
		t.Errorf("expected resumed ingestion to reach floor %d, got %v", floor, min)
	}
}

// S5: running the same ingestion twice back to back inserts zero new
// rows on the second run.
func TestRunTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	floor := int64(1_000_000_000)
	page1Oldest := floor + 500*testPeriodMs

	newClient := func() *fakeClient {
		return &fakeClient{provider: "binance", pages: [][]model.Candle{
			page(500, page1Oldest),
			page(500, floor),
		}}
	}
	mem := store.NewMemoryStore()

	client1 := newClient()
	engine1 := New(mem, client1, zap.NewNop())
	engine1.nowFunc = func() int64 { return page1Oldest + 500*testPeriodMs }
	first, err := engine1.Run(ctx, "BTCUSDT", "5m", Options{FloorMs: &floor})
	if err != nil {
		t.Fatal(err)
	}
	if first.CandlesInserted != 1000 {
		t.Fatalf("expected 1000 inserted on first run, got %d", first.CandlesInserted)
	}

	client2 := newClient()
	engine2 := New(mem, client2, zap.NewNop())
	engine2.nowFunc = engine1.nowFunc
	second, err := engine2.Run(ctx, "BTCUSDT", "5m", Options{FloorMs: &floor, Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if second.CandlesInserted != 0 {
		t.Errorf("expected 0 inserted on idempotent re-run, got %d", second.CandlesInserted)
	}
}
