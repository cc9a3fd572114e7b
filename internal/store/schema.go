package store

// Schema is the logical table layout described in spec §6. cmd/archiver
// executes it at startup; every statement is IF NOT EXISTS, so
// re-running it against an existing database changes nothing.
const Schema = `
CREATE TABLE IF NOT EXISTS candles (
	provider                       TEXT    NOT NULL,
	symbol                         TEXT    NOT NULL,
	timeframe                      TEXT    NOT NULL,
	open_time                      BIGINT  NOT NULL,
	close_time                     BIGINT  NOT NULL,
	open                           DOUBLE PRECISION NOT NULL,
	high                           DOUBLE PRECISION NOT NULL,
	low                            DOUBLE PRECISION NOT NULL,
	close                          DOUBLE PRECISION NOT NULL,
	volume                         DOUBLE PRECISION NOT NULL,
	quote_asset_volume             DOUBLE PRECISION NOT NULL DEFAULT 0,
	taker_buy_base_asset_volume    DOUBLE PRECISION NOT NULL DEFAULT 0,
	taker_buy_quote_asset_volume   DOUBLE PRECISION NOT NULL DEFAULT 0,
	number_of_trades               BIGINT  NOT NULL DEFAULT 0,
	interpolated                   BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (provider, symbol, timeframe, open_time)
);

CREATE INDEX IF NOT EXISTS idx_candles_series_open_time
	ON candles (provider, symbol, timeframe, open_time);

CREATE TABLE IF NOT EXISTS timeframe_status (
	provider           TEXT NOT NULL,
	symbol             TEXT NOT NULL,
	timeframe          TEXT NOT NULL,
	oldest_candle_time BIGINT,
	is_complete        BOOLEAN NOT NULL DEFAULT FALSE,
	reason             TEXT NOT NULL DEFAULT '',
	last_updated       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (provider, symbol, timeframe)
);
`
