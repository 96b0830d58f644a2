// Command server runs the verification workflow API. main wires the
// configured backends, mounts the HTTP surface, and owns the process
// lifecycle; all business logic lives under internal/.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vetgate/internal/notification"
	"vetgate/internal/platform/config"
	"vetgate/internal/platform/events"
	"vetgate/internal/platform/httpserver"
	"vetgate/internal/platform/lock"
	"vetgate/internal/platform/logger"
	"vetgate/internal/platform/middleware"
	platformredis "vetgate/internal/platform/redis"
	"vetgate/internal/upload"
	"vetgate/internal/verification/handler"
	"vetgate/internal/verification/metrics"
	"vetgate/internal/verification/service"
	"vetgate/internal/verification/store"
	"vetgate/pkg/platform/audit"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		processes  store.ProcessStore
		messages   store.MessageStore
		refs       store.ReferenceStore
		accounts   store.AccountStore
		auditStore audit.Store
	)
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := store.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		pgAudit := audit.NewPostgresStore(pool)
		if err := pgAudit.EnsureSchema(ctx); err != nil {
			return err
		}
		processes = store.NewPostgresProcessStore(pool)
		messages = store.NewPostgresMessageStore(pool)
		refs = store.NewPostgresReferenceStore(pool)
		accounts = store.NewPostgresAccountStore(pool)
		auditStore = pgAudit
		log.Info("using postgres stores")
	} else {
		memRefs := store.NewInMemoryReferenceStore()
		store.SeedReferenceStore(memRefs)
		processes = store.NewInMemoryProcessStore()
		messages = store.NewInMemoryMessageStore()
		refs = memRefs
		accounts = store.NewInMemoryAccountStore()
		auditStore = audit.NewInMemoryStore()
		log.Warn("using in-memory stores; state is lost on restart")
	}

	var locker lock.Locker = lock.NewInMemoryLocker()
	if cfg.Redis.URL != "" {
		redisClient, err := platformredis.New(cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient)
		log.Info("using redis submission lease")
	}

	var feed events.Publisher = events.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := events.NewKafka(cfg.Kafka)
		if err != nil {
			return err
		}
		feed = kafka
		log.Info("publishing process events to kafka", "topic", cfg.Kafka.Topic)
	}
	defer feed.Close()

	var sender notification.Sender = notification.NoopSender{}
	if cfg.SMTP.Host != "" {
		sender = notification.NewSMTPSender(cfg.SMTP)
		log.Info("sending notification email via smtp", "host", cfg.SMTP.Host)
	}

	var uploader upload.Uploader = upload.NewInMemoryUploader()
	if cfg.Cloudinary.URL != "" {
		cld, err := upload.NewCloudinary(cfg.Cloudinary.URL)
		if err != nil {
			return err
		}
		uploader = cld
		log.Info("storing documents in cloudinary")
	}

	auditor := audit.NewPublisher(auditStore, audit.WithAsyncBuffer(256))
	defer auditor.Close()

	dispatcher := notification.NewDispatcher(messages, refs, sender, log)
	svc := service.New(processes, messages, refs, refs, uploader, locker, dispatcher,
		service.WithLogger(log),
		service.WithMetrics(metrics.New()),
		service.WithAccountStore(accounts),
		service.WithFeed(feed),
		service.WithAudit(auditor),
		service.WithLeaseTTL(cfg.SubmissionLeaseTTL),
	)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RequestTime,
		middleware.Reviewer,
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.Timeout(30*time.Second),
	)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	handler.New(svc, log).Register(router)

	srv := httpserver.New(cfg.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
