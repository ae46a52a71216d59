package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/Rob-Kly/Project-Zeiterfassung/internal/app"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/config"
)

// Export writes the whole-roster monthly report as a JSON file under
// the reports directory. Without flags it exports the previous month,
// which is what the monthly cron invocation wants.
func main() {
	var year, month int
	flag.IntVar(&year, "year", 0, "report year (defaults to previous month)")
	flag.IntVar(&month, "month", 0, "report month 1-12 (defaults to previous month)")
	flag.Parse()

	if year == 0 || month == 0 {
		lastMonth := time.Now().AddDate(0, 0, -time.Now().Day())
		year = lastMonth.Year()
		month = int(lastMonth.Month())
	}

	cfg := config.Load()
	ctx := context.Background()

	za, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("wiring failed: %v", err)
	}
	defer za.Close()

	path, err := za.Sheets.ExportMonthly(ctx, cfg.ReportsDir, year, month)
	if err != nil {
		log.Fatalf("export failed: %v", err)
	}
	log.Printf("monthly report %02d/%d exported to %s", month, year, path)
}
