package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"vetgate/internal/notification"
	"vetgate/internal/verification/models"
	dErrors "vetgate/pkg/domain-errors"
	"vetgate/pkg/platform/audit"
	"vetgate/pkg/platform/sentinel"
	"vetgate/pkg/requestcontext"
)

// Transition applies a reviewer action to one process. The status and every
// side-effect field land in a single atomic write guarded by the expected
// updatedAt precondition; the notification fires only after the commit is
// durable and never rolls it back.
func (s *Service) Transition(ctx context.Context, processID string, action models.Action, params models.TransitionParams, expectedUpdatedAt time.Time) (*models.VerificationProcess, error) {
	ctx, span := s.tracer.Start(ctx, "verification.Transition")
	defer span.End()
	start := time.Now()
	defer s.metrics.ObserveTransition(start)

	now := requestcontext.Now(ctx)
	if params.Reviewer == "" {
		params.Reviewer = requestcontext.ActorID(ctx)
	}

	if action == models.ActionReject {
		resolved, err := s.resolveRejection(ctx, &params)
		if err != nil {
			return nil, err
		}
		params = resolved
	}

	updated, err := s.processes.Execute(ctx, processID, expectedUpdatedAt,
		func(cur *models.VerificationProcess) error {
			return models.ValidateTransition(cur.Status, action, params)
		},
		func(cur *models.VerificationProcess) {
			models.ApplyTransition(cur, action, params, now)
		})
	if err != nil {
		return nil, s.transitionFailure(processID, action, err)
	}

	s.metrics.RecordTransition(string(action))
	if updated.Status.Terminal() {
		s.mirrorAccountStatus(ctx, updated)
	}
	s.emitAudit(ctx, audit.Event{
		Timestamp: now,
		ProcessID: updated.ID,
		UserID:    updated.UserID,
		Action:    auditActionFor(action),
		Actor:     params.Reviewer,
		Reason:    strings.Join(params.ReasonIDs, ","),
		RequestID: requestcontext.RequestID(ctx),
	})
	s.publishUpdated(ctx, updated)
	s.notify(ctx, updated, action, params)

	return updated, nil
}

// resolveRejection validates the chosen reason ids against the catalog and
// derives requiresResubmission and default rejection details from them.
func (s *Service) resolveRejection(ctx context.Context, params *models.TransitionParams) (models.TransitionParams, error) {
	out := *params
	var fragments []string
	for _, id := range out.ReasonIDs {
		reason, err := s.reasons.FindReason(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return out, dErrors.NewValidation("unknown rejection reason: "+id, "reasonIds")
			}
			return out, translateStoreErr(err)
		}
		if !reason.IsActive {
			return out, dErrors.NewValidation("rejection reason is inactive: "+id, "reasonIds")
		}
		if reason.RequiresResubmission {
			out.RequiresResubmission = true
		}
		fragments = append(fragments, reason.MessageTemplate)
	}
	if out.RejectionDetails == "" {
		out.RejectionDetails = strings.Join(fragments, "\n")
	}
	return out, nil
}

// transitionFailure translates and records a failed transition. Invalid
// transitions are logged as warnings: through normal flow they indicate a
// stale or broken caller.
func (s *Service) transitionFailure(processID string, action models.Action, err error) error {
	translated := translateStoreErr(err)
	var coded *dErrors.Error
	if errors.As(translated, &coded) {
		s.metrics.RecordTransitionFailure(string(coded.Code))
		if coded.Code == dErrors.CodeInvalidTransition {
			s.logger.Warn("invalid transition attempted",
				"process_id", processID, "action", string(action), "error", translated)
		}
	}
	return translated
}

// notify dispatches the transition's system message. notifyUser=false keeps
// the audit record but creates no message.
func (s *Service) notify(ctx context.Context, p *models.VerificationProcess, action models.Action, params models.TransitionParams) {
	if !params.NotifyUser || action == models.ActionAssign {
		return
	}
	msg := s.dispatcher.Dispatch(ctx, p, models.MessageTypeFor(action), notification.Options{
		TemplateID:    params.TemplateID,
		CustomMessage: params.CustomMessage,
	})
	if msg == nil {
		s.logger.Error("system message could not be recorded",
			"process_id", p.ID, "action", string(action))
		return
	}
	s.metrics.RecordMessage(string(msg.Type), string(msg.Status))
	s.emitAudit(ctx, audit.Event{
		Timestamp: requestcontext.Now(ctx),
		ProcessID: p.ID,
		UserID:    p.UserID,
		Action:    audit.EventMessageDispatched,
		Actor:     params.Reviewer,
		Reason:    string(msg.Type),
		RequestID: requestcontext.RequestID(ctx),
	})
}

func auditActionFor(action models.Action) audit.Action {
	switch action {
	case models.ActionAssign:
		return audit.EventReviewerAssigned
	case models.ActionApprove:
		return audit.EventApproved
	case models.ActionReject:
		return audit.EventRejected
	case models.ActionRequestInfo:
		return audit.EventMoreInfoRequested
	default:
		return audit.EventResubmitted
	}
}
