// Package realtime implements the realtime candle merger (spec §4.7):
// it maintains one in-progress candle per active (symbol, timeframe)
// subscription, persists only closed candles, heals gaps on reconnect
// by invoking the ingestion engine synchronously, and fans updates out
// to subscribed clients with bounded, drop-for-slow-client queues.
//
// Grounded on original_source/src/realtime.rs's RealtimeManager
// (command channel + per-stream task + shared cache map), translated
// to goroutines and channels.
package realtime

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tradingplatform/candlearchiver/internal/exchange"
	"github.com/tradingplatform/candlearchiver/internal/ingestion"
	"github.com/tradingplatform/candlearchiver/internal/model"
	"github.com/tradingplatform/candlearchiver/internal/period"
	"github.com/tradingplatform/candlearchiver/internal/rsi"
	"github.com/tradingplatform/candlearchiver/internal/store"
)

// DefaultFanoutQueueDepth is the bounded per-client queue depth from
// spec §5 ("drops updates for a slow client beyond a bounded queue,
// default 64").
const DefaultFanoutQueueDepth = 64

// Publisher is the optional external fan-out side-channel (e.g.
// Kafka); nil disables it. Publish must never block the in-process
// fan-out (spec §4.7's ordering guarantee applies only to client
// delivery, not to this side-channel).
type Publisher interface {
	Publish(ctx context.Context, update model.CandleUpdate) error
}

type seriesKey = model.SeriesKey

// stream holds the state for one active (symbol, timeframe)
// subscription: its in-progress candle, subscribed clients, and
// teardown handle.
type stream struct {
	mu          sync.Mutex
	inProgress  *model.InProgressCandle
	lastPersist *int64
	clients     map[*Client]struct{}
	cancel      context.CancelFunc
}

// Merger owns the in-memory in-progress-candle map and the client
// fan-out, per spec §5 ("the in-memory InProgressCandle map is owned
// by the Realtime Merger; no external mutation").
type Merger struct {
	store      store.Store
	client     exchange.Client
	engine     *ingestion.Engine
	publisher  Publisher
	rsiCache   *rsi.Cache
	logger     *zap.Logger
	queueDepth int

	mu      sync.Mutex
	streams map[seriesKey]*stream
}

func New(s store.Store, c exchange.Client, engine *ingestion.Engine, publisher Publisher, logger *zap.Logger, queueDepth int) *Merger {
	if queueDepth <= 0 {
		queueDepth = DefaultFanoutQueueDepth
	}
	return &Merger{
		store:      s,
		client:     c,
		engine:     engine,
		publisher:  publisher,
		logger:     logger,
		queueDepth: queueDepth,
		streams:    make(map[seriesKey]*stream),
	}
}

// SetRSICache attaches the RSI indicator cache so a persisted closed
// candle invalidates that series' cached value; the next read
// recomputes it over the Store's current contents (see DESIGN.md).
func (m *Merger) SetRSICache(c *rsi.Cache) { m.rsiCache = c }

// Client is a subscriber's bounded fan-out queue.
type Client struct {
	updates chan model.CandleUpdate
}

func newClient(depth int) *Client {
	return &Client{updates: make(chan model.CandleUpdate, depth)}
}

// Updates returns the channel a subscriber reads candle updates from.
func (c *Client) Updates() <-chan model.CandleUpdate { return c.updates }

// Subscribe attaches a new client to (symbol, timeframe), starting
// the upstream stream if this is the first subscriber.
func (m *Merger) Subscribe(ctx context.Context, symbol, timeframe string) (*Client, error) {
	key := seriesKey{Provider: m.client.Provider(), Symbol: symbol, Timeframe: timeframe}

	m.mu.Lock()
	st, ok := m.streams[key]
	if !ok {
		streamCtx, cancel := context.WithCancel(ctx)
		st = &stream{clients: make(map[*Client]struct{}), cancel: cancel}
		m.streams[key] = st
		go m.runStream(streamCtx, key, st)
	}
	m.mu.Unlock()

	client := newClient(m.queueDepth)
	st.mu.Lock()
	st.clients[client] = struct{}{}
	st.mu.Unlock()
	return client, nil
}

// Unsubscribe detaches a client; if it was the last subscriber for
// its series, the upstream stream is torn down and the in-progress
// candle discarded (spec §4.7 "Cancellation").
func (m *Merger) Unsubscribe(symbol, timeframe string, client *Client) {
	key := seriesKey{Provider: m.client.Provider(), Symbol: symbol, Timeframe: timeframe}

	m.mu.Lock()
	st, ok := m.streams[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	st.mu.Lock()
	delete(st.clients, client)
	empty := len(st.clients) == 0
	st.mu.Unlock()

	if empty {
		delete(m.streams, key)
	}
	m.mu.Unlock()

	if empty {
		st.cancel()
		close(client.updates)
	}
}

func (m *Merger) runStream(ctx context.Context, key seriesKey, st *stream) {
	updates, err := m.client.Subscribe(ctx, key.Symbol, key.Timeframe)
	if err != nil {
		m.logger.Error("realtime subscribe failed", zap.String("series", key.String()), zap.Error(err))
		return
	}

	periodMs, err := period.Ms(key.Timeframe)
	if err != nil {
		m.logger.Error("realtime subscribe: bad timeframe", zap.String("series", key.String()), zap.Error(err))
		return
	}

	if last, err := m.store.MaxOpenTime(ctx, key); err == nil {
		st.mu.Lock()
		st.lastPersist = last
		st.mu.Unlock()
	}

	for update := range updates {
		m.handleUpdate(ctx, key, periodMs, st, update)
	}
}

func (m *Merger) handleUpdate(ctx context.Context, key seriesKey, periodMs int64, st *stream, update model.CandleUpdate) {
	st.mu.Lock()
	lastPersist := st.lastPersist
	isFirstForCandle := st.inProgress == nil || st.inProgress.Candle.OpenTimeMs != update.Candle.OpenTimeMs
	st.mu.Unlock()

	// Gap-heal fires once, on the first update seen for a given
	// open_time (spec §4.7: "on receipt of the first update for a
	// candle"), never on the in-progress ticks that follow it.
	if isFirstForCandle && lastPersist != nil {
		expectedNext := *lastPersist + periodMs
		if update.Candle.OpenTimeMs > expectedNext {
			if err := m.healGap(ctx, key, expectedNext, update.Candle.OpenTimeMs); err != nil {
				m.logger.Error("gap heal failed", zap.String("series", key.String()), zap.Error(err))
			}
		}
	}

	st.mu.Lock()
	st.inProgress = &model.InProgressCandle{Candle: update.Candle, IsClosed: update.IsClosed}
	st.mu.Unlock()

	if update.IsClosed {
		if _, err := m.store.InsertCandles(ctx, []model.Candle{update.Candle}); err != nil {
			m.logger.Error("persist closed candle failed", zap.String("series", key.String()), zap.Error(err))
		} else {
			persisted := update.Candle.OpenTimeMs
			st.mu.Lock()
			st.lastPersist = &persisted
			st.inProgress = nil
			st.mu.Unlock()
			if m.rsiCache != nil {
				m.rsiCache.Invalidate(ctx, key)
			}
		}
	}

	m.fanOut(ctx, st, update)

	if m.publisher != nil && update.IsClosed {
		go func() {
			if err := m.publisher.Publish(ctx, update); err != nil {
				m.logger.Warn("external publish failed", zap.String("series", key.String()), zap.Error(err))
			}
		}()
	}
}

// healGap invokes the ingestion engine synchronously for the narrow
// window between the last persisted candle and the newly arrived
// update, before the update is fanned out to clients (spec §4.7,
// property 9).
func (m *Merger) healGap(ctx context.Context, key seriesKey, fromMs, toMs int64) error {
	if m.engine == nil {
		return nil
	}
	if err := m.engine.FillWindow(ctx, key.Symbol, key.Timeframe, fromMs, toMs); err != nil {
		return fmt.Errorf("realtime: gap heal for %s [%d,%d]: %w", key, fromMs, toMs, err)
	}
	return nil
}

func (m *Merger) fanOut(_ context.Context, st *stream, update model.CandleUpdate) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for c := range st.clients {
		select {
		case c.updates <- update:
		default:
			m.logger.Warn("dropping update for slow client", zap.String("symbol", update.Symbol), zap.String("timeframe", update.Timeframe))
		}
	}
}
