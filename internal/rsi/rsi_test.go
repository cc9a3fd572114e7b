package rsi

import (
	"math"
	"testing"
)

func TestCalculateAllGainsGivesRSI100(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	points := Calculate(closes, 14)
	if len(points) == 0 {
		t.Fatal("expected at least one RSI point")
	}
	for _, p := range points {
		if math.Abs(p.Value-100) > 1e-9 {
			t.Errorf("expected RSI=100 for monotonically rising closes, got %v", p.Value)
		}
	}
}

func TestCalculateAllLossesGivesRSI0(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(20 - i)
	}
	points := Calculate(closes, 14)
	for _, p := range points {
		if math.Abs(p.Value) > 1e-9 {
			t.Errorf("expected RSI=0 for monotonically falling closes, got %v", p.Value)
		}
	}
}

func TestCalculateTooShortReturnsNil(t *testing.T) {
	closes := []float64{1, 2, 3}
	if got := Calculate(closes, 14); got != nil {
		t.Errorf("expected nil for series shorter than period, got %v", got)
	}
}

func TestCalculateBoundedBetween0And100(t *testing.T) {
	closes := []float64{10, 11, 9, 12, 8, 13, 7, 14, 6, 15, 5, 16, 4, 17, 3, 18, 2, 19, 1, 20}
	points := Calculate(closes, 14)
	for _, p := range points {
		if p.Value < 0 || p.Value > 100 {
			t.Errorf("RSI value %v out of [0,100] bounds", p.Value)
		}
	}
}
