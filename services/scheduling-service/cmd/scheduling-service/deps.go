package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruralhealthconnect/telecare/libs/config"
	"github.com/ruralhealthconnect/telecare/libs/db"
	"github.com/ruralhealthconnect/telecare/libs/runtime"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/booking"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/meeting"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/notify"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/outbox"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/storage"
)

const defaultService = "scheduling-service"

func newLogger() (*slog.Logger, string) {
	service := config.String("SERVICE_NAME", defaultService)
	return runtime.NewLogger(service, config.String("LOG_LEVEL", "info")), service
}

func openPool(ctx context.Context) (*db.Pool, error) {
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	return db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
}

// deps is everything the commands share. pool is nil for the memory driver.
type deps struct {
	pool  *db.Pool
	store storage.Store
	mgr   *booking.Manager
}

func (d *deps) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
}

func buildDeps(ctx context.Context, logger *slog.Logger) (*deps, error) {
	loc, err := config.Location("SCHEDULE_TIMEZONE")
	if err != nil {
		return nil, err
	}

	d := &deps{}
	var notifier notify.Dispatcher
	switch driver := config.String("STORAGE_DRIVER", "postgres"); driver {
	case "postgres":
		pool, err := openPool(ctx)
		if err != nil {
			return nil, fmt.Errorf("db connection failed: %w", err)
		}
		d.pool = pool
		d.store = storage.NewPostgresStore(pool)
		notifier = notify.NewOutboxDispatcher(pool, outbox.NewRepository())
	case "memory":
		logger.Warn("using in-memory storage; data is lost on exit")
		d.store = storage.NewMemoryStore()
		notifier = notify.NewLogDispatcher(logger)
	default:
		return nil, fmt.Errorf("STORAGE_DRIVER: unknown driver %q", driver)
	}

	var meetings meeting.Provisioner = meeting.Disabled{}
	if url := config.String("MEETING_PROVIDER_URL", ""); url != "" {
		meetings = meeting.NewHTTPProvisioner(url, config.String("MEETING_PROVIDER_TOKEN", ""), loc,
			config.Duration("MEETING_PROVIDER_TIMEOUT", 5*time.Second))
	} else {
		logger.Info("meeting provider not configured; video links disabled")
	}

	d.mgr = booking.NewManager(d.store, notifier, meetings, logger, booking.Options{
		Location:          loc,
		SideEffectTimeout: config.Duration("SIDE_EFFECT_TIMEOUT", 10*time.Second),
	})
	return d, nil
}
