package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Rob-Kly/Project-Zeiterfassung/internal/app"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/config"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/metrics"
)

// Worker drains card scans from the queue, resolves each card against
// the roster and registers the check-in/check-out. Run it next to the
// server when the reader publishes through redis.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend != "redis" {
		log.Println("WARNING: QUEUE_BACKEND is not redis; an in-memory queue cannot be shared with the reader process")
	}

	za, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("wiring failed: %v", err)
	}
	defer za.Close()

	scans, err := za.Scans.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for card scans...")
	for scan := range scans {
		res, err := za.Cards.Clock(ctx, scan.Code, scan.At)
		if err != nil {
			metrics.CardScans.WithLabelValues("unknown").Inc()
			log.Printf("card %s: %v", scan.Code, err)
			continue
		}
		metrics.CardScans.WithLabelValues("resolved").Inc()
		metrics.ClockEvents.WithLabelValues(string(res.Action)).Inc()
		if res.Anomaly {
			metrics.Anomalies.WithLabelValues(string(res.Action)).Inc()
		}
		log.Println(res.Message)
	}

	log.Println("worker stopped")
}
