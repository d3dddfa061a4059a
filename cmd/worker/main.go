package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/nadmax/pipepulse/internal/bus"
	"github.com/nadmax/pipepulse/internal/config"
	"github.com/nadmax/pipepulse/internal/ledger"
	"github.com/nadmax/pipepulse/internal/repository/postgres"
	"github.com/nadmax/pipepulse/internal/trend"
	"github.com/nadmax/pipepulse/internal/worker"
	"github.com/nadmax/pipepulse/internal/worker/handlers"
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

	store, err := postgres.NewStore(cfg.PostgresDSN)
	if err != nil {
		log.Fatal(err)
	}

	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("failed to close Postgres store: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = fmt.Sprintf("worker-%d", time.Now().Unix())
	}

	w := worker.NewWorker(workerID, 0)

	ingestor := handlers.NewIngestor(trend.NewRecorder(store), ledger.New(store))
	w.RegisterHandler(bus.PipelineCompleted, ingestor.PipelineCompletedHandler)
	w.RegisterHandler(bus.IncidentDetected, ingestor.IncidentDetectedHandler)
	w.RegisterHandler(bus.IncidentResolved, ingestor.IncidentResolvedHandler)

	sub, err := bus.NewSubscriber(cfg.NATSURL)
	if err != nil {
		log.Fatal(err)
	}

	if _, err := sub.Subscribe(cfg.NATSSubject, func(evt bus.Event) {
		if !w.Submit(evt) {
			log.Printf("Dropping %s event: worker stopped", evt.Type)
		}
	}); err != nil {
		log.Fatal(err)
	}

	go w.Start(ctx)
	log.Printf("Listening on %s at %s", cfg.NATSSubject, cfg.NATSURL)

	<-ctx.Done()

	log.Println("Shutting down worker...")
	w.Stop()
	sub.Close()
}
