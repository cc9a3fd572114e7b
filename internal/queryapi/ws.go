package queryapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tradingplatform/candlearchiver/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientMessage is what a client sends on the bidirectional channel
// (spec §6): {subscribe, symbol, timeframes[]}.
type clientMessage struct {
	Type       string   `json:"type"`
	Symbol     string   `json:"symbol"`
	Timeframes []string `json:"timeframes"`
}

// serverMessage is what the server sends: candle_update, subscribed
// acknowledgements, or error frames (spec §6).
type serverMessage struct {
	Type      string      `json:"type"`
	Symbol    string      `json:"symbol,omitempty"`
	Timeframe string      `json:"timeframe,omitempty"`
	Candle    interface{} `json:"candle,omitempty"`
	IsClosed  bool        `json:"isClosed,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// ServeWS handles GET /ws, upgrading to the realtime client surface.
func (h *Handlers) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	type subscription struct {
		symbol, timeframe string
		client            *realtime.Client
	}
	var subs []subscription
	defer func() {
		for _, s := range subs {
			h.Merger.Unsubscribe(s.symbol, s.timeframe, s.client)
		}
	}()

	writeCh := make(chan serverMessage, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range writeCh {
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}()
	defer close(writeCh)

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != "subscribe" {
			select {
			case writeCh <- serverMessage{Type: "error", Message: "unknown message type"}:
			case <-done:
				return
			}
			continue
		}
		for _, tf := range msg.Timeframes {
			client, err := h.Merger.Subscribe(ctx, msg.Symbol, tf)
			if err != nil {
				select {
				case writeCh <- serverMessage{Type: "error", Message: err.Error()}:
				case <-done:
					return
				}
				continue
			}
			subs = append(subs, subscription{symbol: msg.Symbol, timeframe: tf, client: client})
			select {
			case writeCh <- serverMessage{Type: "subscribed", Symbol: msg.Symbol, Timeframe: tf}:
			case <-done:
				return
			}
			go relay(ctx, client, msg.Symbol, tf, writeCh, done)
		}
	}
}

func relay(ctx context.Context, client *realtime.Client, symbol, timeframe string, writeCh chan serverMessage, done chan struct{}) {
	for {
		select {
		case update, ok := <-client.Updates():
			if !ok {
				return
			}
			msg := serverMessage{
				Type:      "candle_update",
				Symbol:    symbol,
				Timeframe: timeframe,
				Candle:    update.Candle,
				IsClosed:  update.IsClosed,
			}
			select {
			case writeCh <- msg:
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		case <-done:
			return
		}
	}
}
