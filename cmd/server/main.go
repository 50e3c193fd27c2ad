package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Csepi/cal3-sub006/internal/action"
	"github.com/Csepi/cal3-sub006/internal/api"
	"github.com/Csepi/cal3-sub006/internal/audit"
	"github.com/Csepi/cal3-sub006/internal/config"
	"github.com/Csepi/cal3-sub006/internal/engine"
	"github.com/Csepi/cal3-sub006/internal/event"
	"github.com/Csepi/cal3-sub006/internal/notify"
	"github.com/Csepi/cal3-sub006/internal/rule"
	"github.com/Csepi/cal3-sub006/internal/scheduler"
	"github.com/Csepi/cal3-sub006/internal/storage"
)

func main() {
	cfgPath := flag.String("config", "configs/automation.yaml", "Path to YAML config")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	level.Set(parseLevel(cfg.Logging.Level))

	// ── Stores ────────────────────────────────────────────────────────────────
	ruleStore, auditStore, closeDB, err := openStores(cfg.Storage)
	if err != nil {
		slog.Error("failed to open storage", "driver", cfg.Storage.Driver, "err", err)
		os.Exit(1)
	}
	defer closeDB()

	// The calendar system is an external collaborator; this process keeps a
	// local event store only as the integration boundary.
	eventStore := event.NewMemoryStore()

	// ── Action registry ───────────────────────────────────────────────────────
	reg := action.NewRegistry()
	err = action.RegisterAll(reg, action.Deps{
		Events:    eventStore,
		Calendars: eventStore.Calendars(),
		Notifier:  &notify.LogNotifier{Log: logger},
	})
	if err != nil {
		slog.Error("executor registration failed", "err", err)
		os.Exit(1)
	}
	reg.Freeze()
	slog.Info("action registry ready", "types", reg.Types())

	// ── Engine + retention + scheduler ───────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	retention := audit.NewRetention(auditStore, cfg.Audit.RetentionCap, logger)
	eng := engine.New(ctx, ruleStore, reg, auditStore, retention, engine.Config{
		Workers:    cfg.Engine.Workers,
		QueueDepth: cfg.Engine.QueueDepth,
	}, logger)

	sched := scheduler.New(ruleStore, eventStore, eventStore.Calendars(), eng,
		time.Duration(cfg.Scheduler.IntervalSeconds)*time.Second, logger)
	go sched.Run(ctx)
	go retention.Run(ctx, time.Duration(cfg.Audit.SweepIntervalHours)*time.Hour)

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		retention.SetCap(newCfg.Audit.RetentionCap)
		level.Set(parseLevel(newCfg.Logging.Level))
		slog.Info("config hot-reloaded",
			"audit_cap", newCfg.Audit.RetentionCap, "log_level", newCfg.Logging.Level)
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.New(ruleStore, eventStore, eventStore.Calendars(), reg, eng, auditStore, retention, logger)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	cancel() // stop scheduler and sweeper
	eng.Shutdown()
	slog.Info("goodbye")
}

// openStores wires the rule and audit stores for the configured driver.
func openStores(sc config.StorageConf) (rule.Store, audit.Store, func(), error) {
	noop := func() {}
	switch sc.Driver {
	case "sqlite":
		db, err := storage.OpenSQLite(sc.DSN)
		if err != nil {
			return nil, nil, noop, err
		}
		return buildSQLStores(db, sc.Driver)
	case "postgres":
		db, err := storage.OpenPostgres(sc.DSN)
		if err != nil {
			return nil, nil, noop, err
		}
		return buildSQLStores(db, sc.Driver)
	default:
		return rule.NewMemoryStore(), audit.NewMemoryStore(), noop, nil
	}
}

func buildSQLStores(db *sql.DB, driver string) (rule.Store, audit.Store, func(), error) {
	closeDB := func() { _ = db.Close() }
	if driver == "sqlite" {
		rs, err := rule.NewSQLiteStore(db)
		if err != nil {
			closeDB()
			return nil, nil, func() {}, err
		}
		as, err := audit.NewSQLiteStore(db)
		if err != nil {
			closeDB()
			return nil, nil, func() {}, err
		}
		return rs, as, closeDB, nil
	}
	return rule.NewPostgresStore(db), audit.NewPostgresStore(db), closeDB, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
