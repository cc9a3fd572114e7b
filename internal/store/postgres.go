package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/tradingplatform/candlearchiver/internal/model"
)

// PostgresStore is the production Store, grounded on the teacher's
// internal/repository/market_data_repository.go transaction pattern.
// Unlike the teacher's ON CONFLICT DO UPDATE, inserts here are
// ON CONFLICT DO NOTHING: this Store's identity rows are immutable
// once written (spec §3, "Candle. Immutable once closed").
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger

	locksMu sync.Mutex
	locks   map[model.SeriesKey]*sync.Mutex
}

func NewPostgresStore(db *sqlx.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
		locks:  make(map[model.SeriesKey]*sync.Mutex),
	}
}

func (s *PostgresStore) seriesLock(key model.SeriesKey) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

const insertCandleSQL = `
INSERT INTO candles (
	provider, symbol, timeframe, open_time, close_time,
	open, high, low, close, volume,
	quote_asset_volume, taker_buy_base_asset_volume, taker_buy_quote_asset_volume,
	number_of_trades, interpolated
) VALUES (
	$1, $2, $3, $4, $5,
	$6, $7, $8, $9, $10,
	$11, $12, $13,
	$14, $15
)
ON CONFLICT (provider, symbol, timeframe, open_time) DO NOTHING
`

func (s *PostgresStore) InsertCandles(ctx context.Context, batch []model.Candle) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	key := model.SeriesKey{Provider: batch[0].Provider, Symbol: batch[0].Symbol, Timeframe: batch[0].Timeframe}
	lock := s.seriesLock(key)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, insertCandleSQL)
	if err != nil {
		return 0, fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, c := range batch {
		res, err := stmt.ExecContext(ctx,
			c.Provider, c.Symbol, c.Timeframe, c.OpenTimeMs, c.CloseTimeMs,
			c.Open, c.High, c.Low, c.Close, c.Volume,
			c.QuoteVolume, c.TakerBaseVol, c.TakerQuoteVol,
			c.NumberOfTrades, c.Interpolated,
		)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok {
				return 0, fmt.Errorf("store: insert candle (pq code %s): %w", pqErr.Code, err)
			}
			return 0, fmt.Errorf("store: insert candle: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	s.logger.Debug("inserted candle batch",
		zap.String("series", key.String()),
		zap.Int("requested", len(batch)),
		zap.Int("inserted", inserted))
	return inserted, nil
}

func (s *PostgresStore) RangeQuery(ctx context.Context, key model.SeriesKey, startMs, endMs *int64, limit int) ([]model.Candle, error) {
	if limit <= 0 {
		limit = 5000
	}
	query := `
SELECT provider, symbol, timeframe, open_time, close_time,
       open, high, low, close, volume,
       quote_asset_volume, taker_buy_base_asset_volume, taker_buy_quote_asset_volume,
       number_of_trades, interpolated
FROM candles
WHERE provider = $1 AND symbol = $2 AND timeframe = $3`
	args := []interface{}{key.Provider, key.Symbol, key.Timeframe}
	idx := 4
	if startMs != nil {
		query += fmt.Sprintf(" AND open_time >= $%d", idx)
		args = append(args, *startMs)
		idx++
	}
	if endMs != nil {
		query += fmt.Sprintf(" AND open_time <= $%d", idx)
		args = append(args, *endMs)
		idx++
	}
	query += fmt.Sprintf(" ORDER BY open_time ASC LIMIT $%d", idx)
	args = append(args, limit)

	var candles []model.Candle
	if err := s.db.SelectContext(ctx, &candles, query, args...); err != nil {
		return nil, fmt.Errorf("store: range query: %w", err)
	}
	return candles, nil
}

func (s *PostgresStore) MaxOpenTime(ctx context.Context, key model.SeriesKey) (*int64, error) {
	return s.extremeOpenTime(ctx, key, "MAX")
}

func (s *PostgresStore) MinOpenTime(ctx context.Context, key model.SeriesKey) (*int64, error) {
	return s.extremeOpenTime(ctx, key, "MIN")
}

func (s *PostgresStore) extremeOpenTime(ctx context.Context, key model.SeriesKey, agg string) (*int64, error) {
	query := fmt.Sprintf(`SELECT %s(open_time) FROM candles WHERE provider = $1 AND symbol = $2 AND timeframe = $3`, agg)
	var v sql.NullInt64
	if err := s.db.GetContext(ctx, &v, query, key.Provider, key.Symbol, key.Timeframe); err != nil {
		return nil, fmt.Errorf("store: %s open_time: %w", agg, err)
	}
	if !v.Valid {
		return nil, nil
	}
	return &v.Int64, nil
}

func (s *PostgresStore) GetStatus(ctx context.Context, key model.SeriesKey) (*model.TimeframeStatus, error) {
	var st model.TimeframeStatus
	err := s.db.GetContext(ctx, &st, `
SELECT provider, symbol, timeframe, oldest_candle_time, is_complete, reason, last_updated
FROM timeframe_status
WHERE provider = $1 AND symbol = $2 AND timeframe = $3`, key.Provider, key.Symbol, key.Timeframe)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get status: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, key model.SeriesKey, oldest *int64, isComplete bool, reason model.CompletionReason) error {
	lock := s.seriesLock(key)
	lock.Lock()
	defer lock.Unlock()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO timeframe_status (provider, symbol, timeframe, oldest_candle_time, is_complete, reason, last_updated)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (provider, symbol, timeframe) DO UPDATE SET
	oldest_candle_time = EXCLUDED.oldest_candle_time,
	is_complete = EXCLUDED.is_complete,
	reason = EXCLUDED.reason,
	last_updated = EXCLUDED.last_updated
`, key.Provider, key.Symbol, key.Timeframe, oldest, isComplete, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: set status: %w", err)
	}
	return nil
}

func (s *PostgresStore) ClearStatus(ctx context.Context, key model.SeriesKey) error {
	lock := s.seriesLock(key)
	lock.Lock()
	defer lock.Unlock()

	_, err := s.db.ExecContext(ctx, `
DELETE FROM timeframe_status WHERE provider = $1 AND symbol = $2 AND timeframe = $3
`, key.Provider, key.Symbol, key.Timeframe)
	if err != nil {
		return fmt.Errorf("store: clear status: %w", err)
	}
	return nil
}
