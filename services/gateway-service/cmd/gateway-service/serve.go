package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ruralhealthconnect/telecare/libs/auth"
	"github.com/ruralhealthconnect/telecare/libs/config"
	"github.com/ruralhealthconnect/telecare/libs/httpx"
	otelx "github.com/ruralhealthconnect/telecare/libs/otel"
	"github.com/ruralhealthconnect/telecare/libs/runtime"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	service := config.String("SERVICE_NAME", "gateway-service")
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))
	port, err := config.Port("PORT", "8080")
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

	verifier := &auth.Verifier{Secret: config.String("JWT_SECRET", "")}
	if url := config.String("JWKS_URL", ""); url != "" {
		client := &http.Client{Timeout: 5 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)}
		verifier.JWKS = auth.NewJWKSClient(url, config.Duration("JWKS_CACHE_TTL", 5*time.Minute), client)
	}
	if verifier.Secret == "" && verifier.JWKS == nil {
		logger.Warn("neither JWT_SECRET nor JWKS_URL is set; every authenticated route will return 401")
	}

	routes, err := upstreamsFromConfig()
	if err != nil {
		return err
	}

	var checks []runtime.ReadyCheck
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var limiter httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer rdb.Close()
		limiter = httpx.NewRedisRateLimiter(rdb, limit, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl")).
			Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
		logger.Info("rate limiting enabled (redis)", "per_minute", limit, "redis_addr", addr)
	} else {
		limiter = httpx.NewRateLimiter(limit, time.Minute).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limit)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	registerRoutes(mux, routes, verifier, otelhttp.NewTransport(http.DefaultTransport))

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS"),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 20*time.Second)),
		limiter,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return runtime.ServeHTTP(ctx, logger, srv, 10*time.Second)
}
