package exchange

import "testing"

func TestParseKlineValidRow(t *testing.T) {
	row := rawKline{
		float64(1_000), "100.0", "110.0", "95.0", "105.0", "10.5",
		float64(1_299), "1050.0", float64(42), "5.0", "525.0",
	}
	c, ok := parseKline(row, "binance", "BTCUSDT", "1m", 60_000)
	if !ok {
		t.Fatal("expected valid row to parse")
	}
	if c.OpenTimeMs != 1000 || c.CloseTimeMs != 1000+60_000-1 {
		t.Errorf("unexpected open/close time: %d/%d", c.OpenTimeMs, c.CloseTimeMs)
	}
	if c.Open != 100 || c.High != 110 || c.Low != 95 || c.Close != 105 {
		t.Errorf("unexpected OHLC: %+v", c)
	}
	if c.NumberOfTrades != 42 {
		t.Errorf("expected 42 trades, got %d", c.NumberOfTrades)
	}
	if c.Interpolated {
		t.Error("exchange-sourced candle must not be marked interpolated")
	}
}

func TestParseKlineRejectsShortRow(t *testing.T) {
	row := rawKline{float64(1000), "1", "2"}
	if _, ok := parseKline(row, "binance", "BTCUSDT", "1m", 60_000); ok {
		t.Error("expected short row to be rejected")
	}
}

func TestParseKlineRejectsMalformedNumeric(t *testing.T) {
	row := rawKline{
		float64(1_000), "not-a-number", "110.0", "95.0", "105.0", "10.5",
		float64(1_299), "1050.0", float64(42), "5.0", "525.0",
	}
	if _, ok := parseKline(row, "binance", "BTCUSDT", "1m", 60_000); ok {
		t.Error("expected malformed numeric field to be rejected")
	}
}

func TestToFloatAcceptsStringAndNumber(t *testing.T) {
	if v, ok := toFloat("3.14"); !ok || v != 3.14 {
		t.Errorf("expected string parse to succeed, got %v ok=%v", v, ok)
	}
	if v, ok := toFloat(float64(2.5)); !ok || v != 2.5 {
		t.Errorf("expected float64 passthrough, got %v ok=%v", v, ok)
	}
	if _, ok := toFloat(nil); ok {
		t.Error("expected nil to be rejected")
	}
}

func TestToInt64AcceptsStringAndNumber(t *testing.T) {
	if v, ok := toInt64("42"); !ok || v != 42 {
		t.Errorf("expected string parse to succeed, got %v ok=%v", v, ok)
	}
	if v, ok := toInt64(float64(7)); !ok || v != 7 {
		t.Errorf("expected float64 passthrough, got %v ok=%v", v, ok)
	}
}

func TestTimeframeToBinanceInterval(t *testing.T) {
	if iv, err := timeframeToBinanceInterval("1h"); err != nil || iv != "1h" {
		t.Errorf("expected 1h to map to 1h, got %q err=%v", iv, err)
	}
	if _, err := timeframeToBinanceInterval("7m"); err == nil {
		t.Error("expected unsupported timeframe to error")
	}
}
