package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"vetgate/internal/notification"
	"vetgate/internal/platform/lock"
	"vetgate/internal/platform/middleware"
	"vetgate/internal/upload"
	"vetgate/internal/verification/models"
	"vetgate/internal/verification/service"
	"vetgate/internal/verification/store"
	"vetgate/pkg/platform/audit"
	"vetgate/pkg/testutil"
)

type stubSender struct {
	mu   sync.Mutex
	Fail bool
	Sent []string
}

func (f *stubSender) Send(_ context.Context, to, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail {
		return errors.New("smtp unreachable")
	}
	f.Sent = append(f.Sent, to)
	return nil
}

type HandlerSuite struct {
	suite.Suite
	router    chi.Router
	processes *store.InMemoryProcessStore
	sender    *stubSender
}

func (s *HandlerSuite) SetupTest() {
	s.processes = store.NewInMemoryProcessStore()
	messages := store.NewInMemoryMessageStore()
	refs := store.NewInMemoryReferenceStore()
	store.SeedReferenceStore(refs)
	s.sender = &stubSender{}

	logger := testutil.DiscardLogger()
	dispatcher := notification.NewDispatcher(messages, refs, s.sender, logger)
	svc := service.New(s.processes, messages, refs, refs,
		upload.NewInMemoryUploader(), lock.NewInMemoryLocker(), dispatcher,
		service.WithLogger(logger),
		service.WithAudit(audit.NewPublisher(audit.NewInMemoryStore())),
	)

	s.router = chi.NewRouter()
	s.router.Use(middleware.RequestID, middleware.RequestTime, middleware.Reviewer)
	New(svc, logger).Register(s.router)
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func submitBody(userID string) SubmitRequest {
	return SubmitRequest{
		UserID:   userID,
		UserType: "designer",
		Request: models.VerificationRequest{
			FullName:                  "Ana Duarte",
			Email:                     "ana@example.com",
			PhoneNumber:               "+351 912 000 000",
			Address:                   "Rua do Carmo 12, Lisboa",
			Specialization:            "architect",
			SpecializationDescription: "Residential renovation and small commercial projects.",
			YearsOfExperience:         "2-5",
			SoftwareProficiency:       []string{"AutoCAD"},
			PortfolioURL:              "https://portfolio.example.com/ana",
			Education:                 "M.Arch, University of Lisbon",
			TermsAccepted:             true,
		},
		Files: []FilePayload{
			{Type: "identity", FileName: "id.pdf", ContentType: "application/pdf", Data: []byte("id-bytes")},
			{Type: "work_sample", FileName: "plans.pdf", ContentType: "application/pdf", Data: []byte("plan-bytes")},
		},
	}
}

func (s *HandlerSuite) submit(userID string) *models.VerificationProcess {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications", submitBody(userID)))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	return testutil.UnmarshalResponse[models.VerificationProcess](s.T(), rr)
}

func (s *HandlerSuite) transition(processID string, body TransitionRequest, reviewer string) *models.VerificationProcess {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications/"+processID+"/transition", body)
	rr := testutil.DoRequest(s.router, testutil.AsReviewer(req, reviewer))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	return testutil.UnmarshalResponse[models.VerificationProcess](s.T(), rr)
}

func (s *HandlerSuite) TestSubmit() {
	s.Run("creates pending process", func() {
		proc := s.submit("user-1")
		s.Equal(models.StatusPending, proc.Status)
		s.Equal("user-1", proc.UserID)
		s.Len(proc.Request.Documents, 2)
		for _, doc := range proc.Request.Documents {
			s.NotEmpty(doc.URL)
		}
	})

	s.Run("missing userId is a validation error", func() {
		body := submitBody("")
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications", body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("unknown user type is a validation error", func() {
		body := submitBody("user-2")
		body.UserType = "robot"
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications", body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("unknown document type is a validation error", func() {
		body := submitBody("user-2")
		body.Files[0].Type = "selfie"
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications", body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("second active submission conflicts", func() {
		s.submit("user-3")
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications", submitBody("user-3")))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "duplicate_active_submission")
	})

	s.Run("malformed body is a validation error", func() {
		req := testutil.NewRequest(s.T(), http.MethodPost, "/verifications")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})
}

func (s *HandlerSuite) TestTransition() {
	s.Run("assign then approve", func() {
		proc := s.submit("user-1")

		assigned := s.transition(proc.ID, TransitionRequest{
			Action:            "assign",
			ExpectedUpdatedAt: proc.UpdatedAt,
		}, "rev-1")
		s.Equal(models.StatusUnderReview, assigned.Status)
		s.Equal("rev-1", assigned.AssignedReviewer)

		approved := s.transition(proc.ID, TransitionRequest{
			Action:            "approve",
			ExpectedUpdatedAt: assigned.UpdatedAt,
			Notes:             "all documents check out",
		}, "rev-1")
		s.Equal(models.StatusApproved, approved.Status)
		s.NotNil(approved.CompletedAt)
	})

	s.Run("stale expectedUpdatedAt conflicts", func() {
		proc := s.submit("user-2")
		s.transition(proc.ID, TransitionRequest{Action: "assign", ExpectedUpdatedAt: proc.UpdatedAt}, "rev-1")

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications/"+proc.ID+"/transition", TransitionRequest{
			Action:            "approve",
			ExpectedUpdatedAt: proc.UpdatedAt,
		})
		rr := testutil.DoRequest(s.router, testutil.AsReviewer(req, "rev-2"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "concurrent_modification")
	})

	s.Run("missing expectedUpdatedAt is a validation error", func() {
		proc := s.submit("user-3")
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications/"+proc.ID+"/transition", TransitionRequest{Action: "assign"})
		rr := testutil.DoRequest(s.router, testutil.AsReviewer(req, "rev-1"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("unknown action is a validation error", func() {
		proc := s.submit("user-4")
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications/"+proc.ID+"/transition", TransitionRequest{
			Action:            "escalate",
			ExpectedUpdatedAt: proc.UpdatedAt,
		})
		rr := testutil.DoRequest(s.router, testutil.AsReviewer(req, "rev-1"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("illegal transition conflicts", func() {
		proc := s.submit("user-5")
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications/"+proc.ID+"/transition", TransitionRequest{
			Action:            "approve",
			ExpectedUpdatedAt: proc.UpdatedAt,
		})
		rr := testutil.DoRequest(s.router, testutil.AsReviewer(req, "rev-1"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "invalid_transition")
	})

	s.Run("unknown process is not found", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications/ghost/transition", TransitionRequest{
			Action:            "assign",
			ExpectedUpdatedAt: time.Now(),
		})
		rr := testutil.DoRequest(s.router, testutil.AsReviewer(req, "rev-1"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}

func (s *HandlerSuite) TestBulk() {
	p1 := s.submit("user-1")
	p2 := s.submit("user-2")

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications/bulk", BulkRequest{
		ProcessIDs: []string{p1.ID, p2.ID, "ghost"},
		Action:     "assign",
	})
	rr := testutil.DoRequest(s.router, testutil.AsReviewer(req, "rev-1"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	result := testutil.UnmarshalResponse[service.BulkResult](s.T(), rr)
	s.ElementsMatch([]string{p1.ID, p2.ID}, result.Successful)
	s.Require().Len(result.Failed, 1)
	s.Equal("ghost", result.Failed[0].ID)

	s.Run("empty id list is a validation error", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications/bulk", BulkRequest{Action: "assign"})
		rr := testutil.DoRequest(s.router, testutil.AsReviewer(req, "rev-1"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})
}

func (s *HandlerSuite) TestListAndStats() {
	p1 := s.submit("user-1")
	s.submit("user-2")
	s.transition(p1.ID, TransitionRequest{Action: "assign", ExpectedUpdatedAt: p1.UpdatedAt}, "rev-1")

	s.Run("filter by status", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/verifications?status=under_review"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		result := testutil.UnmarshalResponse[service.ListResult](s.T(), rr)
		s.Equal(1, result.TotalCount)
		s.Require().Len(result.Items, 1)
		s.Equal(p1.ID, result.Items[0].ID)
	})

	s.Run("pagination is clamped", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/verifications?pageSize=5000"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		result := testutil.UnmarshalResponse[service.ListResult](s.T(), rr)
		s.Equal(100, result.PageSize)
		s.Equal(2, result.TotalCount)
	})

	s.Run("unknown status is a validation error", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/verifications?status=parked"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("unknown sort field is a validation error", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/verifications?sortBy=karma"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("stats aggregates by status", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/verifications/stats"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		stats := testutil.UnmarshalResponse[store.Stats](s.T(), rr)
		s.Equal(2, stats.Total)
		s.Equal(1, stats.ByStatus[models.StatusPending])
		s.Equal(1, stats.ByStatus[models.StatusUnderReview])
	})
}

func (s *HandlerSuite) TestGetDetail() {
	proc := s.submit("user-1")

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/verifications/"+proc.ID))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	detail := testutil.UnmarshalResponse[service.ProcessDetail](s.T(), rr)
	s.Equal(proc.ID, detail.Process.ID)

	s.Run("unknown id is not found", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/verifications/ghost"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}

func (s *HandlerSuite) TestMetadata() {
	proc := s.submit("user-1")

	priority := "high"
	notes := "flagged by fraud desk"
	req := testutil.NewJSONRequest(s.T(), http.MethodPatch, "/verifications/"+proc.ID+"/metadata", MetadataRequest{
		Priority:          &priority,
		Tags:              []string{"fraud-desk"},
		InternalNotes:     &notes,
		ExpectedUpdatedAt: proc.UpdatedAt,
	})
	rr := testutil.DoRequest(s.router, testutil.AsReviewer(req, "rev-1"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	updated := testutil.UnmarshalResponse[models.VerificationProcess](s.T(), rr)
	s.Equal(models.PriorityHigh, updated.Priority)
	s.Equal([]string{"fraud-desk"}, updated.Tags)
	s.Equal(notes, updated.InternalNotes)

	s.Run("unknown priority is a validation error", func() {
		bad := "ultra"
		req := testutil.NewJSONRequest(s.T(), http.MethodPatch, "/verifications/"+proc.ID+"/metadata", MetadataRequest{
			Priority:          &bad,
			ExpectedUpdatedAt: updated.UpdatedAt,
		})
		rr := testutil.DoRequest(s.router, testutil.AsReviewer(req, "rev-1"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})
}

func (s *HandlerSuite) TestUserMessages() {
	proc := s.submit("user-1")

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications/"+proc.ID+"/messages", UserMessageRequest{
		Subject:     "Missing certification",
		Content:     "Could you attach your chamber registration?",
		IsFromAdmin: true,
	})
	rr := testutil.DoRequest(s.router, testutil.AsReviewer(req, "rev-1"))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	posted := testutil.UnmarshalResponse[models.UserMessage](s.T(), rr)
	s.Equal(proc.ID, posted.ProcessID)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/verifications/"+proc.ID+"/messages"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	listed := testutil.UnmarshalResponse[[]*models.UserMessage](s.T(), rr)
	s.Require().Len(*listed, 1)
	s.Equal(posted.ID, (*listed)[0].ID)

	s.Run("blank content is a validation error", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications/"+proc.ID+"/messages", UserMessageRequest{Content: "   "})
		rr := testutil.DoRequest(s.router, testutil.AsReviewer(req, "rev-1"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})
}

func (s *HandlerSuite) TestReferenceCatalogs() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/rejection-reasons"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	reasons := testutil.UnmarshalResponse[[]*models.RejectionReason](s.T(), rr)
	s.Len(*reasons, 9)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/message-templates"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	templates := testutil.UnmarshalResponse[[]*models.MessageTemplate](s.T(), rr)
	s.Len(*templates, 5)
}

func (s *HandlerSuite) TestRetryMessage() {
	proc := s.submit("user-1")
	assigned := s.transition(proc.ID, TransitionRequest{Action: "assign", ExpectedUpdatedAt: proc.UpdatedAt}, "rev-1")

	s.sender.Fail = true
	s.transition(proc.ID, TransitionRequest{
		Action:            "reject",
		ExpectedUpdatedAt: assigned.UpdatedAt,
		ReasonIDs:         []string{"doc_quality"},
		NotifyUser:        true,
	}, "rev-1")

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/verifications/"+proc.ID))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	detail := testutil.UnmarshalResponse[service.ProcessDetail](s.T(), rr)
	s.Require().Len(detail.SystemMessages, 1)
	s.Equal(models.DeliveryFailed, detail.SystemMessages[0].Status)

	s.sender.Fail = false
	req := testutil.NewRequest(s.T(), http.MethodPost, "/messages/"+detail.SystemMessages[0].ID+"/retry")
	rr = testutil.DoRequest(s.router, testutil.AsReviewer(req, "rev-1"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	retried := testutil.UnmarshalResponse[models.SystemMessage](s.T(), rr)
	s.Equal(models.DeliverySent, retried.Status)
	s.Equal(2, retried.DeliveryAttempts)
	s.Equal([]string{"ana@example.com"}, s.sender.Sent)

	s.Run("unknown message is not found", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, "/messages/ghost/retry"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}
