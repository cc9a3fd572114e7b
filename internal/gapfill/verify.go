package gapfill

import (
	"context"
	"fmt"

	"github.com/tradingplatform/candlearchiver/internal/archerr"
	"github.com/tradingplatform/candlearchiver/internal/model"
	"github.com/tradingplatform/candlearchiver/internal/period"
)

// Anomaly is a single spacing anomaly found by Verify: a gap (missing
// candles) or an overlap (duplicate/out-of-order candles).
type Anomaly struct {
	AtOpenTimeMs int64
	IntervalMs   int64
	ExpectedMs   int64
	IsGap        bool
}

// Report is the structured result of a full-series spacing check,
// supplementing spec §6's "verify" operator control; grounded on
// original_source/src/verify.rs's report fields.
type Report struct {
	Series        model.SeriesKey
	TotalCandles  int
	FirstOpenTime *int64
	LastOpenTime  *int64
	ExpectedCount int64
	Anomalies     []Anomaly
}

func (r Report) GapCount() int {
	n := 0
	for _, a := range r.Anomalies {
		if a.IsGap {
			n++
		}
	}
	return n
}

func (r Report) OverlapCount() int {
	return len(r.Anomalies) - r.GapCount()
}

// Verify scans the full stored series and reports every deviation
// from the expected `period_ms` spacing, without mutating the store.
func (f *Filler) Verify(ctx context.Context, key model.SeriesKey) (Report, error) {
	periodMs, err := period.Ms(key.Timeframe)
	if err != nil {
		return Report{}, archerr.Protocol(key, err)
	}

	candles, err := f.store.RangeQuery(ctx, key, nil, nil, 1<<31-1)
	if err != nil {
		return Report{}, archerr.StoreBackend(key, err)
	}

	report := Report{Series: key, TotalCandles: len(candles)}
	if len(candles) == 0 {
		return report, nil
	}
	report.FirstOpenTime = &candles[0].OpenTimeMs
	report.LastOpenTime = &candles[len(candles)-1].OpenTimeMs
	report.ExpectedCount = (*report.LastOpenTime-*report.FirstOpenTime)/periodMs + 1

	for i := 1; i < len(candles); i++ {
		prev, cur := candles[i-1], candles[i]
		interval := cur.OpenTimeMs - prev.OpenTimeMs
		if interval == periodMs {
			continue
		}
		report.Anomalies = append(report.Anomalies, Anomaly{
			AtOpenTimeMs: prev.OpenTimeMs,
			IntervalMs:   interval,
			ExpectedMs:   periodMs,
			IsGap:        interval > periodMs,
		})
	}
	return report, nil
}

// String renders the report the way the operator CLI prints it,
// grounded on original_source/src/verify.rs's textual report.
func (r Report) String() string {
	s := fmt.Sprintf("series %s: %d candles, %d gaps, %d overlaps", r.Series, r.TotalCandles, r.GapCount(), r.OverlapCount())
	if r.FirstOpenTime != nil {
		s += fmt.Sprintf(" (expected %d, diff %d)", r.ExpectedCount, int64(r.TotalCandles)-r.ExpectedCount)
	}
	return s
}
