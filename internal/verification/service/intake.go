package service

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"vetgate/internal/risk"
	"vetgate/internal/upload"
	"vetgate/internal/verification/models"
	dErrors "vetgate/pkg/domain-errors"
	"vetgate/pkg/platform/audit"
	"vetgate/pkg/platform/sentinel"
	"vetgate/pkg/requestcontext"
)

// DocumentUpload is one file attached to a submission.
type DocumentUpload struct {
	Type        models.DocumentType
	FileName    string
	ContentType string
	Data        []byte
}

// SubmitInput is the intake payload.
type SubmitInput struct {
	UserID   string
	UserType models.UserType
	Request  models.VerificationRequest
	Files    []DocumentUpload
}

// Submit validates and persists a new verification submission, enforcing the
// one-active-process-per-user invariant. When the user's active process is
// waiting in requires_more_info, the submission is applied as a resubmission
// of that same process instead of creating a new one.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*models.VerificationProcess, error) {
	ctx, span := s.tracer.Start(ctx, "verification.Submit")
	defer span.End()
	start := time.Now()
	defer s.metrics.ObserveSubmit(start)

	if in.UserID == "" {
		return nil, dErrors.NewValidation("userId is required", "userId")
	}

	// Stage the document metadata onto the request so required-document
	// validation sees what will be uploaded.
	req := in.Request
	now := requestcontext.Now(ctx)
	for _, f := range in.Files {
		if err := upload.ValidateDocument(f.Type, int64(len(f.Data)), f.ContentType); err != nil {
			return nil, err
		}
		req.Documents = append(req.Documents, models.VerificationDocument{
			Type:        f.Type,
			Size:        int64(len(f.Data)),
			MimeType:    f.ContentType,
			DisplayName: f.FileName,
			UploadedAt:  now,
		})
	}
	if missing := req.MissingRequiredFields(); len(missing) > 0 {
		return nil, dErrors.NewValidation("required fields are missing or blank", missing...)
	}

	// Serialize check-then-insert per user. The store's conditional insert
	// is the backstop; the lease keeps a concurrent double-submit from
	// reaching the upload stage twice.
	release, err := s.locker.Acquire(ctx, in.UserID, s.leaseTTL)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.RecordSubmissionConflict()
			return nil, dErrors.New(dErrors.CodeDuplicateSubmission,
				"another submission for this user is already in progress")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "submission lease unavailable")
	}
	defer release(ctx)

	active, err := s.processes.FindActiveByUser(ctx, in.UserID)
	switch {
	case err == nil:
		if active.Status == models.StatusRequiresMoreInfo {
			return s.resubmitInPlace(ctx, active, req, in.Files)
		}
		s.metrics.RecordSubmissionConflict()
		return nil, dErrors.New(dErrors.CodeDuplicateSubmission,
			"an active verification process already exists for this user")
	case errors.Is(err, sentinel.ErrNotFound):
		// no active process; proceed
	default:
		return nil, translateStoreErr(err)
	}

	return s.createProcess(ctx, in, req)
}

// createProcess builds a fresh process, linking rejected-but-resubmittable
// lineage when the user's latest closed process allows a follow-up.
func (s *Service) createProcess(ctx context.Context, in SubmitInput, req models.VerificationRequest) (*models.VerificationProcess, error) {
	now := requestcontext.Now(ctx)

	status := models.StatusPending
	auditAction := audit.EventSubmissionReceived
	resubmissionCount := 0
	var lineage []string
	var priorFactors []string

	prior, err := s.processes.LatestClosedByUser(ctx, in.UserID)
	if err == nil && prior.Status == models.StatusRejected && prior.RequiresResubmission {
		status = models.StatusResubmitted
		auditAction = audit.EventResubmitted
		resubmissionCount = prior.ResubmissionCount + 1
		lineage = append(append(lineage, prior.PreviousSubmissions...), prior.ID)
		priorFactors = prior.RiskAssessment.Factors
	} else if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, translateStoreErr(err)
	}

	uploaded, err := s.uploadDocuments(ctx, in.UserID, in.Files)
	if err != nil {
		return nil, err
	}
	// staged entries sit at the tail of req.Documents, in file order
	base := len(req.Documents) - len(uploaded)
	for i, url := range uploaded {
		req.Documents[base+i].URL = url
	}

	priorRejections, err := s.processes.CountRejectedByUser(ctx, in.UserID)
	if err != nil {
		s.logger.Warn("prior rejection count unavailable, scoring without it",
			"user_id", in.UserID, "error", err)
		priorRejections = 0
	}
	assessment := risk.Assess(risk.Input{
		Request:         req,
		PriorRejections: priorRejections,
	}, priorFactors, now)

	p := &models.VerificationProcess{
		ID:                  uuid.NewString(),
		UserID:              in.UserID,
		UserType:            in.UserType,
		Request:             req,
		Status:              status,
		Priority:            risk.PriorityFor(assessment.Level),
		RiskAssessment:      assessment,
		CreatedAt:           now,
		UpdatedAt:           now,
		ResubmissionCount:   resubmissionCount,
		PreviousSubmissions: lineage,
	}

	if err := s.processes.CreateIfNoActive(ctx, p); err != nil {
		s.cleanupUploads(ctx, uploaded)
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.RecordSubmissionConflict()
		}
		return nil, translateStoreErr(err)
	}

	s.mirrorAccountStatus(ctx, p)
	s.metrics.RecordSubmission(string(in.UserType))
	s.emitAudit(ctx, audit.Event{
		Timestamp: now,
		ProcessID: p.ID,
		UserID:    p.UserID,
		Action:    auditAction,
		RequestID: requestcontext.RequestID(ctx),
	})
	s.publishUpdated(ctx, p)

	s.logger.Info("submission accepted",
		"process_id", p.ID, "user_id", p.UserID,
		"status", string(p.Status), "risk_level", string(p.RiskAssessment.Level))
	return p, nil
}

// resubmitInPlace answers a requires_more_info request: same process id, the
// updated payload merged in, resubmissionCount incremented.
func (s *Service) resubmitInPlace(ctx context.Context, active *models.VerificationProcess, req models.VerificationRequest, files []DocumentUpload) (*models.VerificationProcess, error) {
	now := requestcontext.Now(ctx)

	uploaded, err := s.uploadDocuments(ctx, active.UserID, files)
	if err != nil {
		return nil, err
	}
	base := len(req.Documents) - len(uploaded)
	for i, url := range uploaded {
		req.Documents[base+i].URL = url
	}

	priorRejections, err := s.processes.CountRejectedByUser(ctx, active.UserID)
	if err != nil {
		priorRejections = 0
	}

	params := models.TransitionParams{UpdatedRequest: &req}
	updated, err := s.processes.Execute(ctx, active.ID, active.UpdatedAt,
		func(cur *models.VerificationProcess) error {
			return models.ValidateTransition(cur.Status, models.ActionResubmit, params)
		},
		func(cur *models.VerificationProcess) {
			models.ApplyTransition(cur, models.ActionResubmit, params, now)
			cur.RiskAssessment = risk.Assess(risk.Input{
				Request:         cur.Request,
				PriorRejections: priorRejections,
			}, cur.RiskAssessment.Factors, now)
			cur.Priority = risk.PriorityFor(cur.RiskAssessment.Level)
		})
	if err != nil {
		s.cleanupUploads(ctx, uploaded)
		return nil, translateStoreErr(err)
	}

	s.mirrorAccountStatus(ctx, updated)
	s.metrics.RecordSubmission(string(updated.UserType))
	s.emitAudit(ctx, audit.Event{
		Timestamp: now,
		ProcessID: updated.ID,
		UserID:    updated.UserID,
		Action:    audit.EventResubmitted,
		RequestID: requestcontext.RequestID(ctx),
	})
	s.publishUpdated(ctx, updated)

	s.logger.Info("resubmission applied",
		"process_id", updated.ID, "user_id", updated.UserID,
		"resubmission_count", updated.ResubmissionCount)
	return updated, nil
}

// uploadDocuments pushes every file to blob storage, returning the URLs in
// input order. Any failure deletes the files uploaded so far; the submission
// never leaves orphaned partial uploads unlogged.
func (s *Service) uploadDocuments(ctx context.Context, userID string, files []DocumentUpload) ([]string, error) {
	now := requestcontext.Now(ctx)
	urls := make([]string, 0, len(files))
	for _, f := range files {
		path := upload.BuildPath(userID, f.Type, filepath.Ext(f.FileName), now)
		url, err := s.uploader.Upload(ctx, path, f.Data, f.ContentType)
		if err != nil {
			s.cleanupUploads(ctx, urls)
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "document upload failed")
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// cleanupUploads is the compensating action after a partial failure.
// Cleanup failures are logged, not thrown.
func (s *Service) cleanupUploads(ctx context.Context, urls []string) {
	for _, url := range urls {
		if err := s.uploader.Delete(ctx, url); err != nil {
			s.logger.Error("orphaned upload could not be deleted",
				"url", url, "error", err)
		}
	}
}

// mirrorAccountStatus copies the process status onto the account record.
// Non-fatal on failure.
func (s *Service) mirrorAccountStatus(ctx context.Context, p *models.VerificationProcess) {
	if s.accounts == nil {
		return
	}
	if err := s.accounts.SetVerificationStatus(ctx, p.UserID, p.Status); err != nil {
		s.logger.Warn("account status mirror failed",
			"process_id", p.ID, "user_id", p.UserID, "error", err)
	}
}
