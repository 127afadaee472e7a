// Command gateway streams order books, trades and candles to websocket
// clients.
package main

import (
	"flag"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"exchange/internal/cache"
	"exchange/internal/gateway"
	"exchange/internal/obs"
	"exchange/internal/ops"
	"exchange/pkg/conn"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON or YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logs.Errorf("gateway: %+v", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)

	stopProfiler, err := obs.StartProfiler(obs.ProfileOption{
		ApplicationName: cfg.Profiling.ApplicationName + ".gateway",
		ServerAddress:   cfg.Profiling.ServerAddress,
		Tags:            cfg.Profiling.Tags,
	})
	if err != nil {
		return err
	}
	defer stopProfiler()

	ctx, cancel := ops.SignalContext()
	defer cancel()

	nc, err := conn.NewNATS(cfg.NATS.Option("gateway"))
	if err != nil {
		return errors.Wrap(err, "connect nats")
	}
	defer nc.Close()

	md, err := cache.NewNATS(nc, cfg.Cache.Option())
	if err != nil {
		return err
	}

	metrics := obs.NewMetrics()
	hub := gateway.NewHub(metrics)
	server := gateway.NewServer(cfg.Gateway.Option(), hub, md, metrics)

	stopBridge, err := gateway.Bridge(ctx, md, hub)
	if err != nil {
		return err
	}
	defer stopBridge()

	err = server.Run(ctx)
	obs.LogSummary("gateway", metrics)
	return err
}
