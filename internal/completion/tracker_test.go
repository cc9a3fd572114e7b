package completion

import (
	"context"
	"testing"

	"github.com/tradingplatform/candlearchiver/internal/model"
	"github.com/tradingplatform/candlearchiver/internal/store"
)

func testKey() model.SeriesKey {
	return model.SeriesKey{Provider: "binance", Symbol: "BTCUSDT", Timeframe: "1h"}
}

func TestUnknownByDefault(t *testing.T) {
	tr := New(store.NewMemoryStore())
	state, err := tr.Load(context.Background(), testKey())
	if err != nil {
		t.Fatal(err)
	}
	if state.IsComplete() {
		t.Error("expected Unknown state to not be complete")
	}
	if state.Status != nil {
		t.Error("expected nil status for Unknown")
	}
}

func TestProgressThenComplete(t *testing.T) {
	ctx := context.Background()
	tr := New(store.NewMemoryStore())
	key := testKey()

	if err := tr.RecordProgress(ctx, key, 1000); err != nil {
		t.Fatal(err)
	}
	state, _ := tr.Load(ctx, key)
	if state.IsComplete() {
		t.Error("expected Partial state to not be complete")
	}

	oldest := int64(0)
	if err := tr.MarkComplete(ctx, key, &oldest, model.ReasonExhausted); err != nil {
		t.Fatal(err)
	}
	state, _ = tr.Load(ctx, key)
	if !state.IsComplete() {
		t.Fatal("expected Complete state")
	}
	if state.Status.Reason != model.ReasonExhausted {
		t.Errorf("expected reason Exhausted, got %q", state.Status.Reason)
	}
}

func TestClearResetsToUnknown(t *testing.T) {
	ctx := context.Background()
	tr := New(store.NewMemoryStore())
	key := testKey()

	oldest := int64(0)
	tr.MarkComplete(ctx, key, &oldest, model.ReasonFloorReached)
	if err := tr.Clear(ctx, key); err != nil {
		t.Fatal(err)
	}
	state, _ := tr.Load(ctx, key)
	if state.Status != nil {
		t.Error("expected Unknown state after Clear")
	}
}
