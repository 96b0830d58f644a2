package audit

import (
	"context"
	"time"
)

// Event is emitted from domain logic to capture key review-workflow actions.
// Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	ProcessID string    `json:"processId"`
	UserID    string    `json:"userId"`
	Action    Action    `json:"action"`
	// Actor tracks who performed the action when different from UserID,
	// typically the reviewer or admin driving a transition.
	Actor     string `json:"actor,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Action identifies an auditable workflow step.
type Action string

const (
	EventSubmissionReceived Action = "submission_received"
	EventResubmitted        Action = "resubmitted"
	EventReviewerAssigned   Action = "reviewer_assigned"
	EventApproved           Action = "approved"
	EventRejected           Action = "rejected"
	EventMoreInfoRequested  Action = "more_info_requested"
	EventMessageDispatched  Action = "message_dispatched"
	EventMessageRetried     Action = "message_retried"
	EventMetadataUpdated    Action = "metadata_updated"
)

// Store persists audit events. Append must be durable before Emit returns in
// sync mode.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByProcess(ctx context.Context, processID string) ([]Event, error)
}
