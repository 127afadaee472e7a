// Command ohlcv aggregates trades into candles.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"

	"exchange/internal/cache"
	"exchange/internal/candle"
	"exchange/internal/eventlog"
	"exchange/internal/obs"
	"exchange/internal/ops"
	"exchange/internal/store"
	"exchange/pkg/conn"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON or YAML config")
	migrate := flag.Bool("migrate", false, "Migrate the schema before consuming")
	flag.Parse()

	if err := run(*configPath, *migrate); err != nil {
		logs.Errorf("ohlcv: %+v", err)
		os.Exit(1)
	}
}

func run(configPath string, migrate bool) error {
	cfg, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)

	timeframes, err := candle.ParseTimeframes(cfg.Candle.Timeframes)
	if err != nil {
		return err
	}

	stopProfiler, err := obs.StartProfiler(obs.ProfileOption{
		ApplicationName: cfg.Profiling.ApplicationName + ".ohlcv",
		ServerAddress:   cfg.Profiling.ServerAddress,
		Tags:            cfg.Profiling.Tags,
	})
	if err != nil {
		return err
	}
	defer stopProfiler()

	ctx, cancel := ops.SignalContext()
	defer cancel()

	db, err := conn.New(cfg.Database.Option())
	if err != nil {
		return errors.Wrap(err, "connect database")
	}
	defer db.Close()

	st := store.New(db.DB())
	if migrate {
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		logs.Infof("schema migrated")
	}

	nc, err := conn.NewNATS(cfg.NATS.Option("ohlcv"))
	if err != nil {
		return errors.Wrap(err, "connect nats")
	}
	defer nc.Close()

	md, err := cache.NewNATS(nc, cfg.Cache.Option())
	if err != nil {
		return err
	}

	trades, err := cfg.OpenSource(nc, cfg.EventLog.TradesTopic, "candles")
	if err != nil {
		return err
	}
	defer trades.Close()

	metrics := obs.NewMetrics()
	aggregator := candle.NewAggregator(st, md, timeframes, metrics)
	if cfg.Candle.ReseedEnabled() {
		if err := aggregator.Reseed(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eventlog.NewConsumer(obs.StreamCandle, trades, aggregator.Handle, cfg.EventLog.Backoff.Backoff(), metrics).Run(gctx)
	})
	g.Go(func() error {
		return aggregator.Run(gctx, cfg.Candle.FlushInterval.Std())
	})
	g.Go(func() error {
		return obs.Serve(gctx, cfg.Metrics.Addr, metrics)
	})
	err = g.Wait()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()
	if cerr := aggregator.Close(closeCtx); cerr != nil {
		logs.Errorf("ohlcv final flush, err: %+v", cerr)
		if err == nil {
			err = cerr
		}
	}

	obs.LogSummary("ohlcv", metrics)
	return err
}
