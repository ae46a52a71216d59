// Package app wires configuration, storage backends and services into
// one place shared by the server, worker, reader and export binaries.
package app

import (
	"context"
	"fmt"

	"github.com/Rob-Kly/Project-Zeiterfassung/internal/config"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/correction"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/nfc"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/queue"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/roster"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/store"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/store/filestore"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/store/pgstore"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/timeclock"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/timesheet"
)

// App bundles the wired services for one process.
type App struct {
	Cfg      config.App
	Defaults timeclock.Defaults

	Roster      *roster.Service
	Clock       *timeclock.Service
	Sheets      *timesheet.Service
	Corrections *correction.Registry
	Cards       *nfc.Service
	Scans       queue.Queue

	Redis *store.Redis
	DB    *store.DB
}

// backend is the union of persistence contracts both storage
// implementations satisfy.
type backend interface {
	timeclock.EventStore
	timeclock.AnomalyStore
	correction.FlagStore
	nfc.CardLogStore
	Roster() roster.Store
}

// Build opens the configured storage backend and wires every service.
func Build(ctx context.Context, cfg config.App) (*App, error) {
	defaults, err := parseDefaults(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{Cfg: cfg, Defaults: defaults}

	var st backend
	switch cfg.Storage {
	case "postgres":
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		pg := pgstore.New(db.Client)
		if err := pg.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		a.DB = db
		st = pg
	default:
		fs, err := filestore.New(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		st = fs
	}

	a.Roster = roster.NewService(st.Roster())
	a.Clock = timeclock.NewService(a.Roster, st, st, st, defaults)
	a.Sheets = timesheet.NewService(a.Roster, st)
	a.Corrections = correction.NewRegistry(a.Roster, st, st, a.Clock.SubjectLocks(), defaults)
	a.Cards = nfc.NewService(a.Roster, st, a.Clock)

	if cfg.QueueBackend == "redis" {
		a.Redis = store.NewRedis(cfg.RedisAddr)
		a.Scans = queue.NewRedisQueue(a.Redis.Client, cfg.ScanQueueKey)
	} else {
		a.Scans = queue.NewInMemory(64)
	}

	return a, nil
}

// Close releases backend connections.
func (a *App) Close() {
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.Redis != nil && a.Redis.Client != nil {
		_ = a.Redis.Client.Close()
	}
}

func parseDefaults(cfg config.App) (timeclock.Defaults, error) {
	start, err := timeclock.ParseTimeOfDay(cfg.WorkStart)
	if err != nil {
		return timeclock.Defaults{}, fmt.Errorf("WORK_START: %w", err)
	}
	end, err := timeclock.ParseTimeOfDay(cfg.WorkEnd)
	if err != nil {
		return timeclock.Defaults{}, fmt.Errorf("WORK_END: %w", err)
	}
	if cfg.LateLoginHour < 0 || cfg.LateLoginHour > 23 {
		return timeclock.Defaults{}, fmt.Errorf("LATE_LOGIN_HOUR out of range: %d", cfg.LateLoginHour)
	}
	return timeclock.Defaults{WorkStart: start, WorkEnd: end, LateLoginHour: cfg.LateLoginHour}, nil
}
