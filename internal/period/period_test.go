package period

import "testing"

func TestMs(t *testing.T) {
	cases := []struct {
		tf   string
		want int64
	}{
		{"1m", 60_000},
		{"5m", 300_000},
		{"1h", 3_600_000},
		{"4h", 14_400_000},
		{"1d", 86_400_000},
	}
	for _, c := range cases {
		got, err := Ms(c.tf)
		if err != nil {
			t.Fatalf("Ms(%q) returned error: %v", c.tf, err)
		}
		if got != c.want {
			t.Errorf("Ms(%q) = %d, want %d", c.tf, got, c.want)
		}
	}
}

func TestMsRejectsMalformed(t *testing.T) {
	for _, tf := range []string{"", "m", "5", "5x", "0m", "-1h"} {
		if _, err := Ms(tf); err == nil {
			t.Errorf("Ms(%q) expected error, got nil", tf)
		}
	}
}

func TestLessOrdersByPeriodLength(t *testing.T) {
	less, err := Less("5m", "1h")
	if err != nil {
		t.Fatal(err)
	}
	if !less {
		t.Error("expected 5m < 1h")
	}
	less, err = Less("1h", "5m")
	if err != nil {
		t.Fatal(err)
	}
	if less {
		t.Error("expected 1h not < 5m")
	}
}

func TestCloseTime(t *testing.T) {
	periodMs := MustMs("5m")
	openTime := int64(1_700_000_000_000)
	got := CloseTime(openTime, periodMs)
	want := openTime + periodMs - 1
	if got != want {
		t.Errorf("CloseTime = %d, want %d", got, want)
	}
}

func TestBackwardStep(t *testing.T) {
	got := BackwardStep(1000, MustMs("5m"))
	want := int64(1000) * 300_000
	if got != want {
		t.Errorf("BackwardStep = %d, want %d", got, want)
	}
}
