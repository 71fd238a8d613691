package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ruralhealthconnect/telecare/libs/config"
	"github.com/ruralhealthconnect/telecare/libs/db"
	"github.com/ruralhealthconnect/telecare/libs/grpcx"
	"github.com/ruralhealthconnect/telecare/libs/httpx"
	"github.com/ruralhealthconnect/telecare/libs/kafkax"
	otelx "github.com/ruralhealthconnect/telecare/libs/otel"
	"github.com/ruralhealthconnect/telecare/libs/runtime"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/handlers"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/outbox"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, gRPC health server and outbox relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	logger, service := newLogger()
	port, err := config.Port("PORT", "8085")
	if err != nil {
		return err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9085")
	if err != nil {
		return err
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	d, err := buildDeps(ctx, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		return err
	}
	defer d.Close()

	checks := []runtime.ReadyCheck{{Name: "store", Check: d.store.Ping}}
	brokers := config.String("KAFKA_BROKERS", "")
	if d.pool != nil {
		checks[0] = runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(d.pool)}
		publisher := outbox.NewPublisher(d.pool, outbox.NewRepository(), logger, outbox.PublisherConfig{
			Brokers:     brokers,
			TopicPrefix: config.String("KAFKA_TOPIC_PREFIX", ""),
			PollEvery:   config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize:   config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)
		if brokers != "" {
			checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		}
	}

	// Only writes are rate limited; slot browsing stays cheap.
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	var limiter httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
		limiter = httpx.NewRedisRateLimiter(rdb, limit, time.Minute, service).Middleware(logger, true)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	} else {
		limiter = httpx.NewRateLimiter(limit, time.Minute).Middleware()
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.New(d.mgr, logger).Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithCaller,
		httpx.WithAccessLog(logger),
		httpx.OnlyMethods(limiter, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete),
		httpx.WithBodyLimit(64<<10),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 15*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	health := grpcx.NewHealthServer(logger, service)
	go health.Watch(ctx, 10*time.Second, d.store.Ping)
	go func() {
		if err := health.Serve(ctx, ":"+grpcPort); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	return runtime.ServeHTTP(ctx, logger, srv, 10*time.Second)
}
