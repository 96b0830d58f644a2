// Package service orchestrates the verification workflow: intake, review
// transitions, bulk actions, and the reviewer queue. It owns no state of its
// own; every record lives in the stores and every status change goes through
// the transition table.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"vetgate/internal/notification"
	"vetgate/internal/platform/events"
	"vetgate/internal/platform/lock"
	"vetgate/internal/upload"
	"vetgate/internal/verification/metrics"
	"vetgate/internal/verification/models"
	"vetgate/internal/verification/store"
	dErrors "vetgate/pkg/domain-errors"
	"vetgate/pkg/platform/audit"
	"vetgate/pkg/platform/sentinel"
)

// EventProcessUpdated is the feed record type emitted after every durable
// process write.
const EventProcessUpdated = "process_updated"

const defaultLeaseTTL = 10 * time.Second

// Service drives the verification workflow.
type Service struct {
	processes store.ProcessStore
	messages  store.MessageStore
	reasons   store.ReasonStore
	templates store.TemplateStore
	accounts  store.AccountStore

	uploader   upload.Uploader
	locker     lock.Locker
	dispatcher *notification.Dispatcher
	feed       events.Publisher
	auditor    *audit.Publisher

	leaseTTL time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAccountStore mirrors the latest verification status onto the user's
// account record. Mirror failures are logged, never fatal.
func WithAccountStore(accounts store.AccountStore) Option {
	return func(s *Service) { s.accounts = accounts }
}

// WithFeed publishes process_updated events after durable commits.
func WithFeed(feed events.Publisher) Option {
	return func(s *Service) { s.feed = feed }
}

func WithAudit(auditor *audit.Publisher) Option {
	return func(s *Service) { s.auditor = auditor }
}

// WithLeaseTTL overrides the per-user submission lease duration.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(s *Service) { s.leaseTTL = ttl }
}

// New constructs a Service. The account store, feed, audit publisher, and
// metrics are optional; everything else is required.
func New(
	processes store.ProcessStore,
	messages store.MessageStore,
	reasons store.ReasonStore,
	templates store.TemplateStore,
	uploader upload.Uploader,
	locker lock.Locker,
	dispatcher *notification.Dispatcher,
	opts ...Option,
) *Service {
	s := &Service{
		processes:  processes,
		messages:   messages,
		reasons:    reasons,
		templates:  templates,
		uploader:   uploader,
		locker:     locker,
		dispatcher: dispatcher,
		feed:       events.Noop{},
		leaseTTL:   defaultLeaseTTL,
		logger:     slog.Default(),
		tracer:     otel.Tracer("vetgate/verification"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// translateStoreErr maps infrastructure sentinels onto the coded taxonomy.
// Already-coded errors pass through untouched.
func translateStoreErr(err error) error {
	var coded *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &coded):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "verification process not found")
	case errors.Is(err, sentinel.ErrVersionMismatch):
		return dErrors.New(dErrors.CodeConcurrentModification,
			"the process was modified concurrently; reload and retry")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeDuplicateSubmission,
			"an active verification process already exists for this user")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "storage unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "internal error")
	}
}

// publishUpdated pushes the committed record to the feed. Failures are
// logged, never surfaced.
func (s *Service) publishUpdated(ctx context.Context, p *models.VerificationProcess) {
	if err := s.feed.Publish(ctx, p.ID, EventProcessUpdated, p); err != nil {
		s.logger.Warn("feed publish failed",
			"process_id", p.ID, "error", err)
	}
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.Warn("audit emit failed",
			"process_id", event.ProcessID, "action", string(event.Action), "error", err)
	}
}
