package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nadmax/pipepulse/internal/api"
	"github.com/nadmax/pipepulse/internal/bus"
	"github.com/nadmax/pipepulse/internal/cache"
	"github.com/nadmax/pipepulse/internal/config"
	"github.com/nadmax/pipepulse/internal/dashboard"
	"github.com/nadmax/pipepulse/internal/dora"
	"github.com/nadmax/pipepulse/internal/insights"
	"github.com/nadmax/pipepulse/internal/ledger"
	"github.com/nadmax/pipepulse/internal/middleware"
	"github.com/nadmax/pipepulse/internal/repository/postgres"
	"github.com/nadmax/pipepulse/internal/telemetry/gitlab"
	"github.com/nadmax/pipepulse/internal/trend"
)

func main() {
	configPath := flag.String("config", "pipepulse.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(cfg.PostgresDSN)
	if err != nil {
		log.Fatal(err)
	}

	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("failed to close Postgres store: %v", err)
		}
	}()

	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	aggregateCache, err := cache.NewAggregateCache(cfg.RedisAddr, cfg.CacheTTL)
	if err != nil {
		log.Fatal(err)
	}

	defer func() {
		if err := aggregateCache.Close(); err != nil {
			log.Printf("failed to close aggregate cache: %v", err)
		}
	}()

	source := gitlab.NewAdapter(cfg.GitLab.Token, cfg.GitLab.URL)
	engine := insights.NewEngine(source, insights.Limits{
		Projects:            cfg.Limits.Projects,
		PipelinesPerProject: cfg.Limits.PipelinesPerProject,
		MaxFailures:         cfg.Limits.MaxFailures,
		MaxBottlenecks:      cfg.Limits.MaxBottlenecks,
		Concurrency:         cfg.Limits.Concurrency,
	})
	dash := dashboard.NewService(source, aggregateCache, dashboard.Options{
		Concurrency: cfg.Limits.Concurrency,
	})

	deps := api.Deps{
		Engine:    engine,
		Dora:      dora.NewCalculator(store),
		Trends:    trend.NewRecorder(store),
		Ledger:    ledger.New(store),
		Dashboard: dash,
		Subject:   cfg.NATSSubject,
	}

	publisher, err := bus.NewPublisher(cfg.NATSURL)
	if err != nil {
		log.Printf("Event ingestion disabled: %v", err)
	} else {
		defer publisher.Close()
		deps.Publisher = publisher
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", api.NewAPI(deps))

	go startCacheWarmer(ctx, dash, cfg.CacheTTL)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           middleware.MetricsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("failed to shut down server: %v", err)
		}
	}()

	log.Printf("Server starting on :%s", cfg.Port)
	log.Printf("Connected to Redis at %s", cfg.RedisAddr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
