//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vetgate/internal/verification/models"
	"vetgate/internal/verification/store"
	"vetgate/pkg/platform/sentinel"
	"vetgate/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresProcessStore
	messages *store.PostgresMessageStore
	refs     *store.PostgresReferenceStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.Require().NoError(store.EnsureSchema(context.Background(), s.postgres.Pool))
	s.store = store.NewPostgresProcessStore(s.postgres.Pool)
	s.messages = store.NewPostgresMessageStore(s.postgres.Pool)
	s.refs = store.NewPostgresReferenceStore(s.postgres.Pool)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	s.postgres.Close(context.Background())
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"verification_processes", "system_messages", "user_messages")
	s.Require().NoError(err)
}

func newTestProcess(userID string, status models.Status) *models.VerificationProcess {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.VerificationProcess{
		ID:       uuid.NewString(),
		UserID:   userID,
		UserType: models.UserTypeDesigner,
		Request: models.VerificationRequest{
			FullName:       "Mira Okafor",
			Email:          "mira@example.com",
			Specialization: "structural_engineer",
		},
		Status:    status,
		Priority:  models.PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TestConcurrentCreateOneActive verifies the partial unique index admits
// exactly one active process per user under concurrent submissions.
func (s *PostgresStoreSuite) TestConcurrentCreateOneActive() {
	ctx := context.Background()
	userID := "user-" + uuid.NewString()
	const goroutines = 30

	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.CreateIfNoActive(ctx, newTestProcess(userID, models.StatusPending))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one create should succeed")
	s.Equal(int32(goroutines-1), conflictCount.Load(), "all others should conflict")

	found, err := s.store.FindActiveByUser(ctx, userID)
	s.Require().NoError(err)
	s.Equal(userID, found.UserID)
}

// TestCreateAfterTerminal verifies a closed process does not block a new one.
func (s *PostgresStoreSuite) TestCreateAfterTerminal() {
	ctx := context.Background()
	userID := "user-" + uuid.NewString()

	closed := newTestProcess(userID, models.StatusRejected)
	done := time.Now().UTC().Truncate(time.Microsecond)
	closed.CompletedAt = &done
	s.Require().NoError(s.store.CreateIfNoActive(ctx, closed))

	s.Require().NoError(s.store.CreateIfNoActive(ctx, newTestProcess(userID, models.StatusResubmitted)))

	latest, err := s.store.LatestClosedByUser(ctx, userID)
	s.Require().NoError(err)
	s.Equal(closed.ID, latest.ID)

	n, err := s.store.CountRejectedByUser(ctx, userID)
	s.Require().NoError(err)
	s.Equal(1, n)
}

// TestExecuteOptimisticConcurrency verifies concurrent transitions against
// the same expected version admit exactly one writer.
func (s *PostgresStoreSuite) TestExecuteOptimisticConcurrency() {
	ctx := context.Background()
	p := newTestProcess("user-"+uuid.NewString(), models.StatusPending)
	s.Require().NoError(s.store.CreateIfNoActive(ctx, p))

	const goroutines = 20
	var wg sync.WaitGroup
	var successCount, staleCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := s.store.Execute(ctx, p.ID, p.UpdatedAt,
				func(*models.VerificationProcess) error { return nil },
				func(cur *models.VerificationProcess) {
					cur.Status = models.StatusUnderReview
					cur.AssignedReviewer = "reviewer-" + uuid.NewString()
					cur.UpdatedAt = time.Now().UTC().Add(time.Duration(idx+1) * time.Millisecond)
				})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, sentinel.ErrVersionMismatch):
				staleCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one transition should win")
	s.Equal(int32(goroutines-1), staleCount.Load(), "all others should see a stale version")

	stored, err := s.store.Get(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusUnderReview, stored.Status)
	s.NotEmpty(stored.AssignedReviewer)
}

// TestExecuteValidationRollsBack verifies a failed validation leaves no trace.
func (s *PostgresStoreSuite) TestExecuteValidationRollsBack() {
	ctx := context.Background()
	p := newTestProcess("user-"+uuid.NewString(), models.StatusPending)
	s.Require().NoError(s.store.CreateIfNoActive(ctx, p))

	boom := errors.New("rejected by validation")
	_, err := s.store.Execute(ctx, p.ID, p.UpdatedAt,
		func(*models.VerificationProcess) error { return boom },
		func(cur *models.VerificationProcess) { cur.Status = models.StatusApproved })
	s.Require().ErrorIs(err, boom)

	stored, err := s.store.Get(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, stored.Status)
}

// TestQueryFiltersAndPagination exercises the denormalized queue columns.
func (s *PostgresStoreSuite) TestQueryFiltersAndPagination() {
	ctx := context.Background()

	for i, spec := range []struct {
		status models.Status
		risk   models.RiskLevel
		score  int
		name   string
	}{
		{models.StatusPending, models.RiskLow, 10, "Alice Archer"},
		{models.StatusPending, models.RiskHigh, 60, "Bob Builder"},
		{models.StatusUnderReview, models.RiskCritical, 90, "Carol Crane"},
	} {
		p := newTestProcess("user-"+uuid.NewString(), spec.status)
		p.RiskAssessment = models.RiskAssessment{Level: spec.risk, Score: spec.score}
		p.Request.FullName = spec.name
		p.CreatedAt = p.CreatedAt.Add(time.Duration(i) * time.Second)
		s.Require().NoError(s.store.CreateIfNoActive(ctx, p))
	}

	got, total, err := s.store.Query(ctx, store.ProcessQuery{
		Statuses: []models.Status{models.StatusPending},
		SortBy:   store.SortRiskScore,
		Page:     1, PageSize: 10,
	})
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Require().Len(got, 2)
	s.Equal("Bob Builder", got[0].Request.FullName)

	got, total, err = s.store.Query(ctx, store.ProcessQuery{
		Search: "crane",
		Page:   1, PageSize: 10,
	})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal("Carol Crane", got[0].Request.FullName)

	got, total, err = s.store.Query(ctx, store.ProcessQuery{Page: 4, PageSize: 1})
	s.Require().NoError(err)
	s.Equal(3, total)
	s.Empty(got)

	stats, err := s.store.Stats(ctx)
	s.Require().NoError(err)
	s.Equal(3, stats.Total)
	s.Equal(2, stats.ByStatus[models.StatusPending])
	s.Equal(1, stats.ByRisk[models.RiskCritical])
}

// TestMessagesRoundTrip covers the message store against real JSONB.
func (s *PostgresStoreSuite) TestMessagesRoundTrip() {
	ctx := context.Background()

	msg := &models.SystemMessage{
		ID:        uuid.NewString(),
		ProcessID: "proc-" + uuid.NewString(),
		UserID:    "user-1",
		Type:      models.MessageApproval,
		Subject:   "Approved",
		Content:   "Your verification has been approved.",
		Status:    models.DeliveryPending,
		Channels:  []models.Channel{models.ChannelEmail, models.ChannelInApp},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	s.Require().NoError(s.messages.SaveSystemMessage(ctx, msg))

	sentAt := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.messages.UpdateDelivery(ctx, msg.ID, models.DeliverySent, 1, &sentAt))

	got, err := s.messages.GetSystemMessage(ctx, msg.ID)
	s.Require().NoError(err)
	s.Equal(models.DeliverySent, got.Status)
	s.Equal(1, got.DeliveryAttempts)
	s.Require().NotNil(got.SentAt)

	listed, err := s.messages.ListSystemMessages(ctx, msg.ProcessID)
	s.Require().NoError(err)
	s.Len(listed, 1)
}

// TestReferenceCatalogSeeded verifies EnsureSchema seeds reasons and
// templates exactly once.
func (s *PostgresStoreSuite) TestReferenceCatalogSeeded() {
	ctx := context.Background()

	// idempotent re-run
	s.Require().NoError(store.EnsureSchema(ctx, s.postgres.Pool))

	reasons, err := s.refs.ListReasons(ctx, true)
	s.Require().NoError(err)
	s.Len(reasons, len(store.DefaultReasons()))

	r, err := s.refs.FindReason(ctx, "doc_quality")
	s.Require().NoError(err)
	s.Equal(models.CategoryDocumentation, r.Category)

	tpl, err := s.refs.FindTemplateByType(ctx, models.MessageRejection)
	s.Require().NoError(err)
	s.Equal(models.MessageRejection, tpl.Type)
}
