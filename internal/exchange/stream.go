package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tradingplatform/candlearchiver/internal/model"
	"github.com/tradingplatform/candlearchiver/internal/period"
)

// reconnectDelay mirrors original_source/src/realtime.rs's 5-second
// reconnect backoff on any disconnect or error.
const reconnectDelay = 5 * time.Second

// defaultStallTimeout is the subscription stall timeout default from
// spec §5; overridden per-client via NewBinanceClient's stallTimeout
// parameter (wired to config's realtime.stall_timeout).
const defaultStallTimeout = 90 * time.Second

// binanceKlineEvent mirrors the combined-stream kline event payload.
type binanceKlineEvent struct {
	Data struct {
		Kline struct {
			StartTime int64  `json:"t"`
			CloseTime int64  `json:"T"`
			Open      string `json:"o"`
			High      string `json:"h"`
			Low       string `json:"l"`
			Close     string `json:"c"`
			Volume    string `json:"v"`
			Trades    int64  `json:"n"`
			IsClosed  bool   `json:"x"`
			QuoteVol  string `json:"q"`
			TakerBase string `json:"V"`
			TakerQuote string `json:"Q"`
		} `json:"k"`
	} `json:"data"`
}

// Subscribe opens the Binance combined-stream websocket for the
// <symbol>@kline_<interval> stream and reconnects silently on any
// error or disconnect, per spec §4.3 ("the stream may reconnect
// silently; on reconnect, the first delivered update for a given
// candle may be a mid-life snapshot, not an open event").
func (c *BinanceClient) Subscribe(ctx context.Context, symbol, timeframe string) (<-chan model.CandleUpdate, error) {
	interval, err := timeframeToBinanceInterval(timeframe)
	if err != nil {
		return nil, err
	}
	out := make(chan model.CandleUpdate, 16)
	streamName := fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), interval)

	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil {
				return
			}
			c.runStream(ctx, streamName, symbol, timeframe, out)
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()

	return out, nil
}

func (c *BinanceClient) runStream(ctx context.Context, streamName, symbol, timeframe string, out chan<- model.CandleUpdate) {
	url := fmt.Sprintf("%s/stream?streams=%s", c.wsBaseURL, streamName)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		c.logger.Warn("exchange stream dial failed, will reconnect", zap.String("symbol", symbol), zap.String("timeframe", timeframe), zap.Error(err))
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		conn.Close()
		close(done)
	}()

	conn.SetReadDeadline(time.Now().Add(c.stallTimeout))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.logger.Debug("exchange stream closed, will reconnect", zap.String("symbol", symbol), zap.String("timeframe", timeframe), zap.Error(err))
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.stallTimeout))

		var ev binanceKlineEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			c.logger.Warn("malformed kline event", zap.Error(err))
			continue
		}
		periodMs, _ := period.Ms(timeframe)
		open, _ := toFloat(ev.Data.Kline.Open)
		high, _ := toFloat(ev.Data.Kline.High)
		low, _ := toFloat(ev.Data.Kline.Low)
		closeP, _ := toFloat(ev.Data.Kline.Close)
		vol, _ := toFloat(ev.Data.Kline.Volume)
		quoteVol, _ := toFloat(ev.Data.Kline.QuoteVol)
		takerBase, _ := toFloat(ev.Data.Kline.TakerBase)
		takerQuote, _ := toFloat(ev.Data.Kline.TakerQuote)

		update := model.CandleUpdate{
			Symbol:    symbol,
			Timeframe: timeframe,
			IsClosed:  ev.Data.Kline.IsClosed,
			Candle: model.Candle{
				Provider:       providerBinance,
				Symbol:         symbol,
				Timeframe:      timeframe,
				OpenTimeMs:     ev.Data.Kline.StartTime,
				CloseTimeMs:    ev.Data.Kline.StartTime + periodMs - 1,
				Open:           open,
				High:           high,
				Low:            low,
				Close:          closeP,
				Volume:         vol,
				QuoteVolume:    quoteVol,
				TakerBaseVol:   takerBase,
				TakerQuoteVol:  takerQuote,
				NumberOfTrades: ev.Data.Kline.Trades,
			},
		}

		select {
		case out <- update:
		case <-ctx.Done():
			return
		}
	}
}
