package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ruralhealthconnect/telecare/libs/config"
	"github.com/ruralhealthconnect/telecare/libs/db"
	"github.com/ruralhealthconnect/telecare/libs/grpcx"
	"github.com/ruralhealthconnect/telecare/libs/httpx"
	"github.com/ruralhealthconnect/telecare/libs/kafkax"
	otelx "github.com/ruralhealthconnect/telecare/libs/otel"
	"github.com/ruralhealthconnect/telecare/libs/runtime"
	"github.com/ruralhealthconnect/telecare/services/notification-service/internal/consumer"
	"github.com/ruralhealthconnect/telecare/services/notification-service/internal/delivery"
	"github.com/ruralhealthconnect/telecare/services/notification-service/internal/handlers"
	"github.com/ruralhealthconnect/telecare/services/notification-service/internal/inbox"
	"github.com/ruralhealthconnect/telecare/services/notification-service/internal/render"
	"github.com/ruralhealthconnect/telecare/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// defaultEvents are the scheduling-service event types this service renders.
var defaultEvents = []string{
	"appointment.created.v1",
	"appointment.confirmed.v1",
	"appointment.cancelled.v1",
	"appointment.completed.v1",
	"appointment.rescheduled.v1",
	"appointment.updated.v1",
	"appointment.reminder.v1",
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume appointment events and serve the notifications API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func topics() []string {
	events := config.List("KAFKA_CONSUME_EVENTS")
	if len(events) == 0 {
		events = defaultEvents
	}
	prefix := config.String("KAFKA_TOPIC_PREFIX", "")
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, kafkax.Topic(prefix, strings.TrimSpace(e)))
	}
	return out
}

func serve() error {
	service := config.String("SERVICE_NAME", "notification-service")
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))
	port, err := config.Port("PORT", "8086")
	if err != nil {
		return err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9086")
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

	pool, err := openPool(ctx)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		return err
	}
	defer pool.Close()

	notifications := storage.NewRepository(pool)
	deliverer := newDeliverer(notifications, logger)
	brokers := config.String("KAFKA_BROKERS", "")
	if brokers == "" {
		logger.Warn("event consumer disabled (no kafka brokers configured)")
	} else {
		eventConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topics:  topics(),
		}, func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
			evt, err := render.Decode(msg.Value)
			if err != nil {
				// Poison messages are dropped, not retried.
				logger.Error("invalid appointment event", "err", err, "topic", msg.Topic)
				return nil
			}
			items := render.Render(evt)
			for _, n := range items {
				if err := notifications.Insert(ctx, tx, storage.Notification{
					UserID:        n.UserID,
					Title:         n.Title,
					Message:       n.Message,
					Type:          n.Type,
					AppointmentID: n.AppointmentID,
				}); err != nil {
					return err
				}
			}
			logger.Info("appointment event processed", "event_type", evt.EventType, "appointment_id", evt.AppointmentID, "notifications", len(items))
			return nil
		})
		if deliverer.Enabled() {
			eventConsumer.OnApplied(func(ctx context.Context, msg kafka.Message) {
				evt, err := render.Decode(msg.Value)
				if err != nil {
					return
				}
				res := deliverer.Deliver(ctx, render.Render(evt))
				logger.Info("appointment event delivered", "event_type", evt.EventType, "appointment_id", evt.AppointmentID, "emails", res.Emails, "sms", res.SMS)
			})
		}
		go eventConsumer.Run(ctx)
	}

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewNotificationHandler(notifications, logger).Register(mux)
	handlers.NewContactHandler(notifications, logger).Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithCaller,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	health := grpcx.NewHealthServer(logger, service)
	go health.Watch(ctx, 10*time.Second, db.ReadyCheck(pool))
	go func() {
		if err := health.Serve(ctx, ":"+grpcPort); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	return runtime.ServeHTTP(ctx, logger, srv, 10*time.Second)
}

// newDeliverer enables email when SMTP_HOST is set and SMS when
// SMS_WEBHOOK_URL is set. With neither, notifications stay in-app.
func newDeliverer(contacts delivery.Contacts, logger *slog.Logger) *delivery.Deliverer {
	var (
		email delivery.EmailSender
		sms   delivery.SMSSender
	)
	if host := config.String("SMTP_HOST", ""); host != "" {
		email = delivery.NewSMTPSender(host, config.String("SMTP_PORT", "1025"), config.String("SMTP_FROM", ""))
		logger.Info("email delivery enabled", "smtp_host", host)
	}
	if url := config.String("SMS_WEBHOOK_URL", ""); url != "" {
		client := &http.Client{
			Timeout:   config.Duration("SMS_WEBHOOK_TIMEOUT", 5*time.Second),
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
		sms = delivery.NewWebhookSMSSender(url, config.String("SMS_WEBHOOK_TOKEN", ""), client)
		logger.Info("sms delivery enabled")
	}
	return delivery.New(contacts, email, sms, logger)
}
