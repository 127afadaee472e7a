// Command processor settles trades into the ledger and maintains the cached
// order books.
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
	"exchange/internal/eventlog"
	"exchange/internal/obs"
	"exchange/internal/ops"
	"exchange/internal/orderbook"
	"exchange/internal/settlement"
	"exchange/internal/store"
	"exchange/pkg/conn"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON or YAML config")
	migrate := flag.Bool("migrate", false, "Migrate the schema before consuming")
	flag.Parse()

	if err := run(*configPath, *migrate); err != nil {
		logs.Errorf("processor: %+v", err)
		os.Exit(1)
	}
}

func run(configPath string, migrate bool) error {
	cfg, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)

	stopProfiler, err := obs.StartProfiler(obs.ProfileOption{
		ApplicationName: cfg.Profiling.ApplicationName + ".processor",
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

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := db.Ping(pingCtx); err != nil {
		return errors.Wrap(err, "ping database")
	}

	st := store.New(db.DB())
	if migrate {
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		logs.Infof("schema migrated")
	}

	nc, err := conn.NewNATS(cfg.NATS.Option("processor"))
	if err != nil {
		return errors.Wrap(err, "connect nats")
	}
	defer nc.Close()

	md, err := cache.NewNATS(nc, cfg.Cache.Option())
	if err != nil {
		return err
	}

	trades, err := cfg.OpenSource(nc, cfg.EventLog.TradesTopic, "settlement")
	if err != nil {
		return err
	}
	defer trades.Close()

	books, err := cfg.OpenSource(nc, cfg.EventLog.OrderbookTopic, "orderbook")
	if err != nil {
		return err
	}
	defer books.Close()

	metrics := obs.NewMetrics()
	backoff := cfg.EventLog.Backoff.Backoff()
	engine := settlement.NewEngine(st, md, metrics)
	maintainer := orderbook.NewMaintainer(md, md, cfg.Orderbook.Depth, metrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eventlog.NewConsumer(obs.StreamSettlement, trades, engine.Handle, backoff, metrics).Run(gctx)
	})
	g.Go(func() error {
		return eventlog.NewConsumer(obs.StreamOrderbook, books, maintainer.Handle, backoff, metrics).Run(gctx)
	})
	g.Go(func() error {
		return obs.Serve(gctx, cfg.Metrics.Addr, metrics)
	})

	err = g.Wait()
	obs.LogSummary("processor", metrics)
	return err
}
