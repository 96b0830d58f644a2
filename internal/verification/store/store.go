// Package store persists verification workflow records. Interfaces are
// interface-driven to keep the domain logic testable and to allow swapping
// the in-memory and postgres implementations without rewiring business code.
//
// Stores return sentinel errors (pkg/platform/sentinel); services translate
// them into coded domain errors.
package store

import (
	"context"
	"time"

	"vetgate/internal/verification/models"
)

// ProcessStore owns VerificationProcess records. All writes that touch
// status go through Execute so the precondition and the side-effect fields
// land in one atomic update.
type ProcessStore interface {
	// CreateIfNoActive inserts the process only when the user has no
	// process in a non-terminal status. The check and the insert are one
	// conditional write; a concurrent duplicate loses with
	// sentinel.ErrConflict.
	CreateIfNoActive(ctx context.Context, p *models.VerificationProcess) error

	Get(ctx context.Context, id string) (*models.VerificationProcess, error)

	// Execute runs validate then mutate on the current record under the
	// store's write lock, guarded by the expectedUpdatedAt precondition.
	// Validation failure aborts with no write; a precondition mismatch
	// returns sentinel.ErrVersionMismatch. The returned record is the
	// post-mutation state.
	Execute(ctx context.Context, id string, expectedUpdatedAt time.Time,
		validate func(*models.VerificationProcess) error,
		mutate func(*models.VerificationProcess)) (*models.VerificationProcess, error)

	// FindActiveByUser returns the user's non-terminal process, or
	// sentinel.ErrNotFound.
	FindActiveByUser(ctx context.Context, userID string) (*models.VerificationProcess, error)

	// LatestClosedByUser returns the user's most recently completed
	// process, or sentinel.ErrNotFound. Intake uses it to link
	// resubmission lineage after a rejection.
	LatestClosedByUser(ctx context.Context, userID string) (*models.VerificationProcess, error)

	// CountRejectedByUser feeds the risk engine's prior-rejection factor.
	CountRejectedByUser(ctx context.Context, userID string) (int, error)

	// Query returns one page of matching processes plus the total match
	// count independent of pagination.
	Query(ctx context.Context, q ProcessQuery) ([]*models.VerificationProcess, int, error)

	// Stats returns counts grouped by status, priority, and risk level.
	Stats(ctx context.Context) (Stats, error)
}

// MessageStore owns generated system messages and threaded user messages.
type MessageStore interface {
	SaveSystemMessage(ctx context.Context, msg *models.SystemMessage) error
	GetSystemMessage(ctx context.Context, id string) (*models.SystemMessage, error)
	UpdateDelivery(ctx context.Context, id string, status models.DeliveryStatus, attempts int, sentAt *time.Time) error
	ListSystemMessages(ctx context.Context, processID string) ([]*models.SystemMessage, error)

	SaveUserMessage(ctx context.Context, msg *models.UserMessage) error
	ListUserMessages(ctx context.Context, processID string) ([]*models.UserMessage, error)
}

// ReasonStore serves the rejection-reason catalog (reference data).
type ReasonStore interface {
	ListReasons(ctx context.Context, activeOnly bool) ([]*models.RejectionReason, error)
	FindReason(ctx context.Context, id string) (*models.RejectionReason, error)
}

// TemplateStore serves message templates (reference data).
type TemplateStore interface {
	ListTemplates(ctx context.Context, activeOnly bool) ([]*models.MessageTemplate, error)
	FindTemplate(ctx context.Context, id string) (*models.MessageTemplate, error)
	FindTemplateByType(ctx context.Context, t models.MessageType) (*models.MessageTemplate, error)
}

// ReferenceStore bundles both reference catalogs, the shape every concrete
// reference store provides.
type ReferenceStore interface {
	ReasonStore
	TemplateStore
}

// AccountStore mirrors the verification status onto the user's account
// record, the denormalized read the rest of the marketplace consumes.
type AccountStore interface {
	SetVerificationStatus(ctx context.Context, userID string, status models.Status) error
}

// ProcessQuery expresses the review-queue filter, sort, and pagination.
// Zero-valued filters match everything.
type ProcessQuery struct {
	Statuses   []models.Status
	Priorities []models.Priority
	UserTypes  []models.UserType
	RiskLevels []models.RiskLevel

	CreatedFrom *time.Time
	CreatedTo   *time.Time

	AssignedReviewer string

	// Search matches name, email, or specialization, case-insensitive
	// substring.
	Search string

	// SortBy is one of the scalar sort keys; empty means createdAt.
	SortBy   SortField
	SortAsc  bool
	Page     int
	PageSize int
}

// SortField names the scalar fields the queue can sort on.
type SortField string

const (
	SortCreatedAt SortField = "createdAt"
	SortUpdatedAt SortField = "updatedAt"
	SortStatus    SortField = "status"
	SortPriority  SortField = "priority"
	SortRiskScore SortField = "riskScore"
	SortFullName  SortField = "fullName"
)

// ParseSortField validates a caller-supplied sort key.
func ParseSortField(s string) (SortField, bool) {
	switch SortField(s) {
	case SortCreatedAt, SortUpdatedAt, SortStatus, SortPriority, SortRiskScore, SortFullName:
		return SortField(s), true
	case "":
		return SortCreatedAt, true
	}
	return "", false
}

// Stats is the GetStats aggregation.
type Stats struct {
	ByStatus   map[models.Status]int    `json:"byStatus"`
	ByPriority map[models.Priority]int  `json:"byPriority"`
	ByRisk     map[models.RiskLevel]int `json:"byRiskLevel"`
	Total      int                      `json:"total"`
}
