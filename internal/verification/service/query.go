package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"vetgate/internal/verification/models"
	"vetgate/internal/verification/store"
	dErrors "vetgate/pkg/domain-errors"
	"vetgate/pkg/platform/audit"
	platformstrings "vetgate/pkg/platform/strings"
	"vetgate/pkg/requestcontext"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListResult is one page of the review queue. TotalCount reflects the whole
// filtered set, not the page.
type ListResult struct {
	Items      []*models.VerificationProcess `json:"items"`
	TotalCount int                           `json:"totalCount"`
	Page       int                           `json:"page"`
	PageSize   int                           `json:"pageSize"`
}

// List runs a review-queue query with clamped pagination.
func (s *Service) List(ctx context.Context, q store.ProcessQuery) (*ListResult, error) {
	ctx, span := s.tracer.Start(ctx, "verification.List")
	defer span.End()
	start := time.Now()
	defer s.metrics.ObserveQuery(start)

	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	if q.SortBy == "" {
		q.SortBy = store.SortCreatedAt
	}

	items, total, err := s.processes.Query(ctx, q)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return &ListResult{Items: items, TotalCount: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// ProcessDetail is the single-process view: the record plus its message and
// audit history.
type ProcessDetail struct {
	Process        *models.VerificationProcess `json:"process"`
	SystemMessages []*models.SystemMessage     `json:"systemMessages"`
	UserMessages   []*models.UserMessage       `json:"userMessages"`
	History        []audit.Event               `json:"history,omitempty"`
}

// Get returns one process with its messages and audit history.
func (s *Service) Get(ctx context.Context, processID string) (*ProcessDetail, error) {
	ctx, span := s.tracer.Start(ctx, "verification.Get")
	defer span.End()

	p, err := s.processes.Get(ctx, processID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	detail := &ProcessDetail{Process: p}

	if detail.SystemMessages, err = s.messages.ListSystemMessages(ctx, processID); err != nil {
		s.logger.Warn("system message history unavailable", "process_id", processID, "error", err)
		detail.SystemMessages = nil
	}
	if detail.UserMessages, err = s.messages.ListUserMessages(ctx, processID); err != nil {
		s.logger.Warn("user message history unavailable", "process_id", processID, "error", err)
		detail.UserMessages = nil
	}
	if s.auditor != nil {
		if detail.History, err = s.auditor.List(ctx, processID); err != nil {
			s.logger.Warn("audit history unavailable", "process_id", processID, "error", err)
			detail.History = nil
		}
	}
	return detail, nil
}

// Stats aggregates queue counts by status, priority, and risk level.
func (s *Service) Stats(ctx context.Context) (store.Stats, error) {
	ctx, span := s.tracer.Start(ctx, "verification.Stats")
	defer span.End()

	stats, err := s.processes.Stats(ctx)
	if err != nil {
		return stats, translateStoreErr(err)
	}
	return stats, nil
}

// ListReasons returns the rejection reason catalog.
func (s *Service) ListReasons(ctx context.Context, activeOnly bool) ([]*models.RejectionReason, error) {
	reasons, err := s.reasons.ListReasons(ctx, activeOnly)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return reasons, nil
}

// ListTemplates returns the message template catalog.
func (s *Service) ListTemplates(ctx context.Context, activeOnly bool) ([]*models.MessageTemplate, error) {
	templates, err := s.templates.ListTemplates(ctx, activeOnly)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return templates, nil
}

// UserMessageInput is a human-authored message posted onto a process thread.
type UserMessageInput struct {
	ParentMessageID string
	Subject         string
	Content         string
	IsFromAdmin     bool
}

// PostUserMessage appends threaded correspondence to a process.
func (s *Service) PostUserMessage(ctx context.Context, processID string, in UserMessageInput) (*models.UserMessage, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, dErrors.NewValidation("message content is required", "content")
	}
	p, err := s.processes.Get(ctx, processID)
	if err != nil {
		return nil, translateStoreErr(err)
	}

	msg := &models.UserMessage{
		ID:              uuid.NewString(),
		ProcessID:       p.ID,
		UserID:          p.UserID,
		ParentMessageID: in.ParentMessageID,
		IsFromAdmin:     in.IsFromAdmin,
		Subject:         in.Subject,
		Content:         in.Content,
		CreatedAt:       requestcontext.Now(ctx),
	}
	if err := s.messages.SaveUserMessage(ctx, msg); err != nil {
		return nil, translateStoreErr(err)
	}
	return msg, nil
}

// ListUserMessages returns the correspondence thread for a process.
func (s *Service) ListUserMessages(ctx context.Context, processID string) ([]*models.UserMessage, error) {
	if _, err := s.processes.Get(ctx, processID); err != nil {
		return nil, translateStoreErr(err)
	}
	msgs, err := s.messages.ListUserMessages(ctx, processID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return msgs, nil
}

// MetadataPatch carries the reviewer edits that never touch status. Nil
// fields are left unchanged.
type MetadataPatch struct {
	Priority      *models.Priority
	Tags          []string
	InternalNotes *string
}

// UpdateMetadata applies a non-transition edit. Legal on terminal records;
// guarded by the same updatedAt precondition as transitions.
func (s *Service) UpdateMetadata(ctx context.Context, processID string, patch MetadataPatch, expectedUpdatedAt time.Time) (*models.VerificationProcess, error) {
	ctx, span := s.tracer.Start(ctx, "verification.UpdateMetadata")
	defer span.End()

	now := requestcontext.Now(ctx)
	updated, err := s.processes.Execute(ctx, processID, expectedUpdatedAt,
		func(*models.VerificationProcess) error { return nil },
		func(cur *models.VerificationProcess) {
			if patch.Priority != nil {
				cur.Priority = *patch.Priority
			}
			if patch.Tags != nil {
				// Tags are reviewer-facing labels; fold case so "Fraud-Desk"
				// and "fraud-desk" stay one tag.
				cur.Tags = platformstrings.DedupeAndTrimLower(patch.Tags)
			}
			if patch.InternalNotes != nil {
				cur.InternalNotes = *patch.InternalNotes
			}
			cur.UpdatedAt = now
		})
	if err != nil {
		return nil, translateStoreErr(err)
	}

	s.emitAudit(ctx, audit.Event{
		Timestamp: now,
		ProcessID: updated.ID,
		UserID:    updated.UserID,
		Action:    audit.EventMetadataUpdated,
		Actor:     requestcontext.ActorID(ctx),
		RequestID: requestcontext.RequestID(ctx),
	})
	s.publishUpdated(ctx, updated)
	return updated, nil
}

// RetryMessage re-attempts delivery of a failed system message.
func (s *Service) RetryMessage(ctx context.Context, messageID string) (*models.SystemMessage, error) {
	ctx, span := s.tracer.Start(ctx, "verification.RetryMessage")
	defer span.End()

	msg, err := s.messages.GetSystemMessage(ctx, messageID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	p, err := s.processes.Get(ctx, msg.ProcessID)
	if err != nil {
		return nil, translateStoreErr(err)
	}

	retried, err := s.dispatcher.RetryDelivery(ctx, messageID, p.Request.Email)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordMessage(string(retried.Type), string(retried.Status))
	s.emitAudit(ctx, audit.Event{
		Timestamp: requestcontext.Now(ctx),
		ProcessID: p.ID,
		UserID:    p.UserID,
		Action:    audit.EventMessageRetried,
		Actor:     requestcontext.ActorID(ctx),
		RequestID: requestcontext.RequestID(ctx),
	})
	return retried, nil
}
