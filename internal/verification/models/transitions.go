package models

import (
	"time"

	dErrors "vetgate/pkg/domain-errors"
)

// Action is a reviewer- or system-initiated status transition.
type Action string

const (
	ActionAssign      Action = "assign"
	ActionApprove     Action = "approve"
	ActionReject      Action = "reject"
	ActionRequestInfo Action = "request_more_info"
	// ActionResubmit is triggered through intake when the applicant answers
	// a requires_more_info request, never directly by a reviewer.
	ActionResubmit Action = "resubmit"
)

// ParseAction rejects unknown values at the API boundary. ActionResubmit is
// excluded: it is not reviewer-callable.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionAssign, ActionApprove, ActionReject, ActionRequestInfo:
		return Action(s), nil
	}
	return "", dErrors.NewValidation("unknown action", "action")
}

// transitionTable is the authoritative set of legal transitions. Anything
// not listed fails with CodeInvalidTransition.
var transitionTable = map[Action]map[Status]Status{
	ActionAssign: {
		StatusPending:     StatusUnderReview,
		StatusUnderReview: StatusUnderReview,
		StatusResubmitted: StatusUnderReview,
	},
	ActionApprove: {
		StatusPending:     StatusApproved,
		StatusUnderReview: StatusApproved,
		StatusResubmitted: StatusApproved,
	},
	ActionReject: {
		StatusPending:     StatusRejected,
		StatusUnderReview: StatusRejected,
		StatusResubmitted: StatusRejected,
	},
	ActionRequestInfo: {
		StatusPending:     StatusRequiresMoreInfo,
		StatusUnderReview: StatusRequiresMoreInfo,
	},
	ActionResubmit: {
		StatusRequiresMoreInfo: StatusResubmitted,
	},
}

// NextStatus returns the target status for applying action in the given
// state, or false when the transition is illegal.
func NextStatus(from Status, action Action) (Status, bool) {
	to, ok := transitionTable[action][from]
	return to, ok
}

// TransitionParams carries the per-action side-effect inputs.
type TransitionParams struct {
	Reviewer string
	Notes    string

	// Reject
	ReasonIDs            []string
	RejectionDetails     string
	RequiresResubmission bool

	// Request more info
	RequiredFields []string
	Deadline       *time.Time

	// Resubmit
	UpdatedRequest *VerificationRequest

	// Notification
	NotifyUser    bool
	TemplateID    string
	CustomMessage string
}

// ValidateTransition checks both the table and the per-action parameter
// requirements, without mutating anything. A terminal current status is
// always an invalid transition.
func ValidateTransition(current Status, action Action, params TransitionParams) error {
	if current.Terminal() {
		return dErrors.New(dErrors.CodeInvalidTransition,
			"process is closed; terminal statuses accept no transitions")
	}
	if _, ok := NextStatus(current, action); !ok {
		return dErrors.New(dErrors.CodeInvalidTransition,
			"action "+string(action)+" is not legal from status "+string(current))
	}
	switch action {
	case ActionAssign:
		if params.Reviewer == "" {
			return dErrors.NewValidation("assign requires a reviewer", "reviewer")
		}
	case ActionReject:
		if len(params.ReasonIDs) == 0 {
			return dErrors.NewValidation("reject requires at least one rejection reason", "reasonIds")
		}
	case ActionRequestInfo:
		if len(params.RequiredFields) == 0 {
			return dErrors.NewValidation("request_more_info requires a non-empty field list", "requiredFields")
		}
	case ActionResubmit:
		if params.UpdatedRequest == nil {
			return dErrors.NewValidation("resubmit requires an updated request payload", "request")
		}
	}
	return nil
}

// ApplyTransition mutates the process in place with every side-effect field
// of the action. Callers run it inside the store's atomic update so status
// and metadata land in one write. Validate first; Apply assumes legality.
func ApplyTransition(p *VerificationProcess, action Action, params TransitionParams, now time.Time) {
	to, _ := NextStatus(p.Status, action)
	p.Status = to
	p.UpdatedAt = now

	switch action {
	case ActionAssign:
		p.AssignedReviewer = params.Reviewer
		if p.ReviewStartedAt == nil {
			t := now
			p.ReviewStartedAt = &t
		}
	case ActionApprove:
		t := now
		p.CompletedAt = &t
		p.ReviewNotes = params.Notes
	case ActionReject:
		t := now
		p.CompletedAt = &t
		p.ReviewNotes = params.Notes
		p.RejectionReasons = append([]string(nil), params.ReasonIDs...)
		p.RejectionDetails = params.RejectionDetails
		p.RequiresResubmission = params.RequiresResubmission
	case ActionRequestInfo:
		p.RequiredFields = append([]string(nil), params.RequiredFields...)
		p.MoreInfoDeadline = params.Deadline
	case ActionResubmit:
		p.Request = *params.UpdatedRequest
		p.ResubmissionCount++
		p.RequiredFields = nil
		p.MoreInfoDeadline = nil
	}
}

// MessageTypeFor maps a transition to the system-message type announcing it.
func MessageTypeFor(action Action) MessageType {
	switch action {
	case ActionApprove:
		return MessageApproval
	case ActionReject:
		return MessageRejection
	case ActionRequestInfo:
		return MessageMoreInfoRequest
	default:
		return MessageStatusUpdate
	}
}
