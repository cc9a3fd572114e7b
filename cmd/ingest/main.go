// Command ingest is the operator-control CLI of spec §6: repeatable
// -symbol, -start-date floor, -force, and -verify.
//
// Implemented with the standard flag package: no CLI-parsing library
// appears anywhere in the retrieved example pack (see DESIGN.md), and
// CLI parsing is explicitly named as an ambient, out-of-scope concern
// in spec §1.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/tradingplatform/candlearchiver/internal/config"
	"github.com/tradingplatform/candlearchiver/internal/exchange"
	"github.com/tradingplatform/candlearchiver/internal/gapfill"
	"github.com/tradingplatform/candlearchiver/internal/ingestion"
	"github.com/tradingplatform/candlearchiver/internal/store"
)

// symbolList implements flag.Value so -symbol can repeat (spec §6,
// "symbol: repeatable; at least one required for ingestion").
type symbolList []string

func (s *symbolList) String() string { return strings.Join(*s, ",") }
func (s *symbolList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var symbols symbolList
	flag.Var(&symbols, "symbol", "symbol to ingest (repeatable)")
	timeframe := flag.String("timeframe", "", "timeframe to ingest; if omitted, backfills every timeframe in ingestion.DefaultTimeframes")
	startDate := flag.String("start-date", "", "floor date, YYYY-MM-DD UTC")
	force := flag.Bool("force", false, "ignore Complete status and re-ingest")
	verify := flag.Bool("verify", false, "run Gap Filler verification after ingestion")
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	if len(symbols) == 0 {
		fmt.Fprintln(os.Stderr, "at least one -symbol is required")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	db, err := sqlx.Connect("pgx", cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	candleStore := store.NewPostgresStore(db, logger)
	exchangeClient := exchange.NewBinanceClient(cfg.Exchange.BaseURL, cfg.Exchange.WSBaseURL, cfg.Exchange.FetchTimeout, cfg.Realtime.StallTimeout, logger)
	engine := ingestion.New(candleStore, exchangeClient, logger)
	filler := gapfill.New(candleStore, logger)

	var floorMs *int64
	if *startDate != "" {
		t, err := time.ParseInLocation("2006-01-02", *startDate, time.UTC)
		if err != nil {
			fmt.Fprintf(os.Stderr, "malformed -start-date %q: %v\n", *startDate, err)
			os.Exit(1)
		}
		ms := t.UnixMilli()
		floorMs = &ms
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("received shutdown signal, cancelling")
		cancel()
	}()

	opts := ingestion.Options{FloorMs: floorMs, Force: *force}

	var summaries []ingestion.Summary
	exitCode := 0

	if *timeframe == "" {
		scheduler := ingestion.NewScheduler(engine, logger, nil)
		summaries = scheduler.RunAll(ctx, symbols, opts)
	} else {
		for _, symbol := range symbols {
			summary, err := engine.Run(ctx, symbol, *timeframe, opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "series %s/%s failed: %v\n", symbol, *timeframe, err)
				exitCode = 1
				continue
			}
			summaries = append(summaries, summary)
		}
	}

	for _, summary := range summaries {
		if summary.Skipped {
			fmt.Printf("series %s: skipped (already complete)\n", summary.Series)
			continue
		}
		fmt.Printf("series %s: %d batches, %d inserted, %d interpolated, status=%s\n",
			summary.Series, summary.Batches, summary.CandlesInserted, summary.InterpolatedCount, summary.FinalStatus)

		if *verify {
			report, err := filler.Verify(ctx, summary.Series)
			if err != nil {
				fmt.Fprintf(os.Stderr, "verify failed for %s: %v\n", summary.Series, err)
				exitCode = 1
				continue
			}
			fmt.Println(report.String())
		}
	}

	os.Exit(exitCode)
}
