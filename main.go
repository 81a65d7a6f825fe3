package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IsaacDSC/gquery/cmd/setup"
	"github.com/IsaacDSC/gquery/internal/backoffice"
	"github.com/IsaacDSC/gquery/internal/cfg"
	"github.com/IsaacDSC/gquery/internal/querycache"
	"github.com/IsaacDSC/gquery/pkg/logs"
	"github.com/IsaacDSC/gquery/pkg/metrics/prom"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const appName = "gquery"

// go run . --service=gateway
// go run . --service=loadtest
// go run . --service=gateway --config=config.json
func main() {
	service := flag.String("service", "gateway", "service to run: gateway, loadtest")
	configPath := flag.String("config", "", "optional JSON config file, env vars override it")
	flag.Parse()

	env := cfg.Get()
	if *configPath != "" {
		loaded, err := cfg.Load(*configPath)
		if err != nil {
			panic(err)
		}
		cfg.SetConfig(loaded)
		env = loaded
	}

	logger := logs.New(
		logs.WithLevel(logs.ParseLevel(env.Log.Level)),
		logs.WithJSONFormat(env.Log.JSON),
	).With("app", appName, "service", *service)
	logs.SetDefault(logger)

	switch *service {
	case "gateway":
		runGateway(env, logger)
	case "loadtest":
		setup.RunLoadTest(env.LoadTest, os.Stdout)
	default:
		logger.Error("unknown service", "service", *service)
		os.Exit(2)
	}
}

func runGateway(env cfg.Config, logger *logs.Logger) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client, err := querycache.New(env,
		querycache.WithLogger(logger),
		querycache.WithMetrics(prom.New(reg, appName, "cache", nil)),
	)
	if err != nil {
		logger.Error("failed to build query cache", "error", err)
		os.Exit(1)
	}
	client.Start()

	queries := backoffice.NewQueries(client, env.Cache.MaxSize)
	handler := setup.GatewayHandler(env, queries, client, reg, logger)
	server := setup.StartGateway(env, handler, logger)

	waitForShutdown(logger, func(ctx context.Context) {
		start := time.Now()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("gateway shutdown error", "error", err)
		}
		logger.Info("Gateway server stopped", "duration", time.Since(start))

		queries.Close()
		if err := client.Close(); err != nil {
			logger.Error("query cache close error", "error", err)
		}
	})
}

func waitForShutdown(logger *logs.Logger, shutdown func(ctx context.Context)) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("Shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	shutdown(shutdownCtx)

	logger.Info("All servers shutdown complete")
}
