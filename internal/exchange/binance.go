package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tradingplatform/candlearchiver/internal/archerr"
	"github.com/tradingplatform/candlearchiver/internal/model"
	"github.com/tradingplatform/candlearchiver/internal/period"
)

const providerBinance = "binance"

// BinanceClient implements Client against Binance's REST klines
// endpoint and combined-stream websocket, grounded on the teacher's
// internal/client/binance_client.go.
type BinanceClient struct {
	baseURL      string
	wsBaseURL    string
	httpClient   *http.Client
	stallTimeout time.Duration
	logger       *zap.Logger
}

func NewBinanceClient(baseURL, wsBaseURL string, fetchTimeout, stallTimeout time.Duration, logger *zap.Logger) *BinanceClient {
	if fetchTimeout <= 0 {
		fetchTimeout = 15 * time.Second
	}
	if stallTimeout <= 0 {
		stallTimeout = defaultStallTimeout
	}
	return &BinanceClient{
		baseURL:   baseURL,
		wsBaseURL: wsBaseURL,
		httpClient: &http.Client{
			Timeout: fetchTimeout,
		},
		stallTimeout: stallTimeout,
		logger:       logger,
	}
}

func (c *BinanceClient) Provider() string { return providerBinance }

// rawKline mirrors Binance's positional kline array response.
type rawKline []interface{}

func (c *BinanceClient) FetchClosed(ctx context.Context, symbol, timeframe string, endTimeMs int64, limit int) ([]model.Candle, error) {
	key := model.SeriesKey{Provider: providerBinance, Symbol: symbol, Timeframe: timeframe}
	interval, err := timeframeToBinanceInterval(timeframe)
	if err != nil {
		return nil, archerr.Protocol(key, err)
	}
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("endTime", strconv.FormatInt(endTimeMs, 10))
	q.Set("limit", strconv.Itoa(limit))

	reqURL := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, archerr.Protocol(key, fmt.Errorf("build request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, archerr.Cancelled(key, ctx.Err())
		}
		return nil, archerr.Transient(key, fmt.Errorf("klines request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, archerr.Transient(key, fmt.Errorf("klines status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, archerr.Protocol(key, fmt.Errorf("klines status %d", resp.StatusCode))
	}

	var raw []rawKline
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, archerr.Protocol(key, fmt.Errorf("decode klines: %w", err))
	}

	periodMs, err := period.Ms(timeframe)
	if err != nil {
		return nil, archerr.Protocol(key, err)
	}

	now := time.Now().UnixMilli()
	candles := make([]model.Candle, 0, len(raw))
	for i, row := range raw {
		cndl, ok := parseKline(row, providerBinance, symbol, timeframe, periodMs)
		if !ok {
			c.logger.Warn("skipping malformed kline row", zap.Int("index", i), zap.String("series", key.String()))
			continue
		}
		if cndl.CloseTimeMs > now {
			continue
		}
		candles = append(candles, cndl)
	}
	return candles, nil
}

func parseKline(row rawKline, provider, symbol, timeframe string, periodMs int64) (model.Candle, bool) {
	if len(row) < 11 {
		return model.Candle{}, false
	}
	openTime, ok := toInt64(row[0])
	if !ok {
		return model.Candle{}, false
	}
	open, ok1 := toFloat(row[1])
	high, ok2 := toFloat(row[2])
	low, ok3 := toFloat(row[3])
	closeP, ok4 := toFloat(row[4])
	vol, ok5 := toFloat(row[5])
	quoteVol, ok6 := toFloat(row[7])
	trades, ok7 := toInt64(row[8])
	takerBase, ok8 := toFloat(row[9])
	takerQuote, ok9 := toFloat(row[10])
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7 && ok8 && ok9) {
		return model.Candle{}, false
	}
	return model.Candle{
		Provider:       provider,
		Symbol:         symbol,
		Timeframe:      timeframe,
		OpenTimeMs:     openTime,
		CloseTimeMs:    period.CloseTime(openTime, periodMs),
		Open:           open,
		High:           high,
		Low:            low,
		Close:          closeP,
		Volume:         vol,
		QuoteVolume:    quoteVol,
		NumberOfTrades: trades,
		TakerBaseVol:   takerBase,
		TakerQuoteVol:  takerQuote,
		Interpolated:   false,
	}, true
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case string:
		i, err := strconv.ParseInt(t, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

var timeframeToInterval = map[string]string{
	"1m": "1m", "3m": "3m", "5m": "5m", "15m": "15m", "30m": "30m",
	"1h": "1h", "2h": "2h", "4h": "4h", "6h": "6h", "8h": "8h", "12h": "12h",
	"1d": "1d", "3d": "3d",
}

func timeframeToBinanceInterval(tf string) (string, error) {
	if iv, ok := timeframeToInterval[tf]; ok {
		return iv, nil
	}
	return "", fmt.Errorf("exchange: unsupported timeframe %q", tf)
}
