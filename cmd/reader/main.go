package main

import (
	"bufio"
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Rob-Kly/Project-Zeiterfassung/internal/app"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/config"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/queue"
)

// Reader tails the card-reader device stream (one hex card identifier
// per line) and publishes each scan to the queue. Codes are
// upper-cased before they reach resolution. With the in-memory queue
// the reader also clocks the scans itself, like the historical
// single-process listener did.
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

	za, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("wiring failed: %v", err)
	}
	defer za.Close()

	if cfg.QueueBackend != "redis" {
		go consumeLocal(ctx, za)
	}

	var src io.Reader
	if cfg.ReaderDevice == "-" || cfg.ReaderDevice == "" {
		log.Println("reading card codes from stdin")
		src = os.Stdin
	} else {
		f, err := os.Open(cfg.ReaderDevice)
		if err != nil {
			log.Fatalf("open reader device %s: %v", cfg.ReaderDevice, err)
		}
		defer f.Close()
		log.Printf("reading card codes from %s", cfg.ReaderDevice)
		src = f
	}

	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		code := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		if code == "" {
			continue
		}
		log.Printf("card detected: %s", code)
		if err := za.Scans.Publish(ctx, queue.Scan{Code: code, At: time.Now()}); err != nil {
			log.Printf("publish scan failed: %v", err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("reader stream error: %v", err)
	}

	log.Println("reader stopped")
}

func consumeLocal(ctx context.Context, za *app.App) {
	scans, err := za.Scans.Consume(ctx)
	if err != nil {
		log.Printf("scan consume init failed: %v", err)
		return
	}
	for scan := range scans {
		res, err := za.Cards.Clock(ctx, scan.Code, scan.At)
		if err != nil {
			log.Printf("card %s: %v", scan.Code, err)
			continue
		}
		log.Println(res.Message)
	}
}
