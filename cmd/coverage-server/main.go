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

	"github.com/mohammed-shakir/coverage-cache/internal/cache"
	"github.com/mohammed-shakir/coverage-cache/internal/core/config"
	"github.com/mohammed-shakir/coverage-cache/internal/core/health"
	"github.com/mohammed-shakir/coverage-cache/internal/core/model"
	"github.com/mohammed-shakir/coverage-cache/internal/core/observability"
	"github.com/mohammed-shakir/coverage-cache/internal/core/server"
	"github.com/mohammed-shakir/coverage-cache/internal/coverage"
	"github.com/mohammed-shakir/coverage-cache/internal/demand"
	"github.com/mohammed-shakir/coverage-cache/internal/hotness/expdecay"
	"github.com/mohammed-shakir/coverage-cache/internal/hotness/metricswrap"
	"github.com/mohammed-shakir/coverage-cache/internal/logger"
	"github.com/mohammed-shakir/coverage-cache/internal/lookupevents"
	h3mapper "github.com/mohammed-shakir/coverage-cache/internal/mapper/h3"
	"github.com/mohammed-shakir/coverage-cache/internal/metrics"
	"github.com/mohammed-shakir/coverage-cache/internal/scenarios"
	_ "github.com/mohammed-shakir/coverage-cache/internal/scenarios/baseline"
	cachescn "github.com/mohammed-shakir/coverage-cache/internal/scenarios/cache"
	"github.com/mohammed-shakir/coverage-cache/internal/store/postgis"
)

func main() {
	os.Exit(run())
}

func run() int {
	// overriding scenario via flag
	scenarioFlag := flag.String("scenario", "", "scenario name (baseline|cache)")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 2
	}
	if *scenarioFlag != "" {
		cfg.Scenario = strings.ToLower(strings.TrimSpace(*scenarioFlag))
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Scenario:  cfg.Scenario,
		Component: "coverage-server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prov := metrics.Init(metrics.Config{Build: metrics.BuildInfo{
		Version:   cfg.Build.Version,
		Revision:  cfg.Build.Revision,
		Branch:    cfg.Build.Branch,
		BuildDate: cfg.Build.Date,
	}})
	observability.Init(prov.Registerer(), cfg.MetricsEnabled)
	observability.SetScenario(cfg.Scenario)

	appLog.Info("starting coverage server",
		"addr", cfg.Addr,
		"version", cfg.Build.Version,
		"scenario", cfg.Scenario,
		"cache_driver", cfg.CacheDriver,
		"cache_ttl", cfg.CacheTTL.String())

	openCtx, cancelOpen := context.WithTimeout(ctx, 10*time.Second)
	defer cancelOpen()

	pool, err := postgis.Open(openCtx, postgis.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		appLog.Error("database setup failed", "err", err)
		return 1
	}
	defer pool.Close()
	if cfg.MetricsEnabled {
		prov.Register(metrics.NewPoolCollector(postgis.PoolStats(pool)))
	}

	store := postgis.New(pool, appLog, cfg.StoreQueryTimeout, postgis.Tables{
		Coverage: cfg.CoverageTable,
		Product:  cfg.ProductTable,
	})
	resolver := coverage.NewResolver(store, appLog)

	ready := []health.Check{{Name: "store", Ping: pool.Ping}}

	var respCache cache.Interface
	if cfg.Scenario == "cache" {
		c, closeCache, err := cachescn.OpenStore(openCtx, cfg)
		if err != nil {
			appLog.Error("cache setup failed", "err", err)
			return 1
		}
		defer func() {
			if err := closeCache(); err != nil {
				appLog.Warn("cache close", "err", err)
			}
		}()
		respCache = c
		if p, ok := c.(cache.Pinger); ok {
			ready = append(ready, health.Check{Name: "cache", Ping: p.Ping})
		}
	}

	mapr := h3mapper.New()
	scores := metricswrap.New(expdecay.New(cfg.DemandHalfLife), appLog, metricswrap.Options{
		Threshold: cfg.DemandLogThreshold,
		LogSample: cfg.DemandLogSample,
	})
	tracker := demand.New(mapr, scores, cfg.H3Res, appLog)
	go tracker.Run(ctx, time.Minute)

	observers := scenarios.Observers{tracker}
	if cfg.LookupEvents.Enabled {
		pub, err := lookupevents.NewPublisher(cfg.LookupEvents.Brokers, lookupevents.Options{
			Topic:     cfg.LookupEvents.Topic,
			QueueSize: cfg.LookupEvents.QueueSize,
			CellFor:   func(p model.Point) (string, error) { return mapr.CellForPoint(p, cfg.H3Res) },
			Logger:    appLog,
		})
		if err != nil {
			appLog.Error("lookup events setup failed", "err", err)
			return 1
		}
		defer func() {
			if err := pub.Close(); err != nil {
				appLog.Warn("lookup events close", "err", err)
			}
		}()
		observers = append(observers, pub)
	}

	// selected scenario
	handler, err := scenarios.New(cfg.Scenario, cfg, scenarios.Deps{
		Logger:   appLog,
		Resolver: resolver,
		Cache:    respCache,
		Observer: observers,
	})
	if err != nil {
		appLog.Error("scenario setup failed", "err", err)
		return 1
	}

	deps := server.Deps{
		Lookup: handler,
		Ready:  ready,
		Demand: tracker.Handler(),
	}
	if cfg.MetricsEnabled {
		deps.Metrics = prov.Handler()
	}

	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
