// Package models defines the verification-workflow records. Field names and
// enum string values are part of the external contract and round-trip
// exactly through the store and the HTTP layer.
package models

import (
	"fmt"
	"time"
)

// UserType classifies the submitting account.
type UserType string

const (
	UserTypeDesigner         UserType = "designer"
	UserTypeServiceRequester UserType = "service_requester"
	UserTypeAdmin            UserType = "admin"
)

// ParseUserType rejects unknown values at the deserialization boundary.
func ParseUserType(s string) (UserType, error) {
	switch UserType(s) {
	case UserTypeDesigner, UserTypeServiceRequester, UserTypeAdmin:
		return UserType(s), nil
	}
	return "", fmt.Errorf("unknown user type %q", s)
}

// Status is the review state of a verification process.
type Status string

const (
	StatusPending          Status = "pending"
	StatusUnderReview      Status = "under_review"
	StatusRequiresMoreInfo Status = "requires_more_info"
	StatusResubmitted      Status = "resubmitted"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
)

// ParseStatus rejects unknown values at the deserialization boundary.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusUnderReview, StatusRequiresMoreInfo,
		StatusResubmitted, StatusApproved, StatusRejected:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Terminal reports whether no further status transitions are permitted.
// Terminal records remain mutable only in non-status metadata.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ActiveStatuses are the non-terminal statuses counted by the
// one-active-process-per-user invariant.
var ActiveStatuses = []Status{
	StatusPending, StatusUnderReview, StatusRequiresMoreInfo, StatusResubmitted,
}

// Priority orders the review queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return Priority(s), nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// RiskLevel buckets the 0-100 risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return RiskLevel(s), nil
	}
	return "", fmt.Errorf("unknown risk level %q", s)
}

// DocumentType classifies an uploaded verification document.
type DocumentType string

const (
	DocumentIdentity      DocumentType = "identity"
	DocumentWorkSample    DocumentType = "work_sample"
	DocumentCertification DocumentType = "certification"
	DocumentOther         DocumentType = "other"
)

func ParseDocumentType(s string) (DocumentType, error) {
	switch DocumentType(s) {
	case DocumentIdentity, DocumentWorkSample, DocumentCertification, DocumentOther:
		return DocumentType(s), nil
	}
	return "", fmt.Errorf("unknown document type %q", s)
}

// PortfolioSignal is the supplied reachability class of the portfolio URL.
// It feeds risk scoring; the core never fetches the URL itself.
type PortfolioSignal string

const (
	PortfolioReachable   PortfolioSignal = "reachable"
	PortfolioUnreachable PortfolioSignal = "unreachable"
	PortfolioUnknown     PortfolioSignal = "unknown"
)

// VerificationDocument is one uploaded file attached to a request.
type VerificationDocument struct {
	Type        DocumentType `json:"type"`
	URL         string       `json:"url"`
	Size        int64        `json:"size"`
	MimeType    string       `json:"mimeType"`
	Verified    bool         `json:"verified"`
	UploadedAt  time.Time    `json:"uploadedAt"`
	DisplayName string       `json:"displayName,omitempty"`
}

// VerificationRequest is the applicant-supplied payload embedded in a
// process.
type VerificationRequest struct {
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Address     string `json:"address"`

	Specialization            string   `json:"specialization"`
	SpecializationDescription string   `json:"specializationDescription"`
	YearsOfExperience         string   `json:"yearsOfExperience"`
	SoftwareProficiency       []string `json:"softwareProficiency"`
	PortfolioURL              string   `json:"portfolioUrl"`

	Certifications string `json:"certifications,omitempty"`
	Education      string `json:"education"`
	AdditionalInfo string `json:"additionalInfo,omitempty"`

	PortfolioReachability PortfolioSignal `json:"portfolioReachability,omitempty"`

	Documents []VerificationDocument `json:"documents"`

	TermsAccepted bool `json:"termsAccepted"`
}

// MissingRequiredFields returns the names of required submission fields that
// are missing or blank, in a stable order. Empty means the request is
// submittable.
func (r *VerificationRequest) MissingRequiredFields() []string {
	var missing []string
	add := func(ok bool, field string) {
		if !ok {
			missing = append(missing, field)
		}
	}
	add(r.FullName != "", "fullName")
	add(r.Address != "", "address")
	add(r.PhoneNumber != "", "phoneNumber")
	add(r.Specialization != "", "specialization")
	add(r.SpecializationDescription != "", "specializationDescription")
	add(r.YearsOfExperience != "", "yearsOfExperience")
	add(r.PortfolioURL != "", "portfolioUrl")
	add(r.Education != "", "education")
	add(len(r.SoftwareProficiency) > 0, "softwareProficiency")
	add(r.countDocuments(DocumentIdentity) > 0, "documents.identity")
	add(r.countDocuments(DocumentWorkSample) > 0, "documents.work_sample")
	add(r.TermsAccepted, "termsAccepted")
	return missing
}

func (r *VerificationRequest) countDocuments(t DocumentType) int {
	n := 0
	for _, d := range r.Documents {
		if d.Type == t {
			n++
		}
	}
	return n
}

// RiskAssessment is the derived prioritization signal on a process.
type RiskAssessment struct {
	Level       RiskLevel `json:"level"`
	Score       int       `json:"score"`
	Factors     []string  `json:"factors"`
	LastUpdated time.Time `json:"lastUpdated"`
	AssessedBy  string    `json:"assessedBy"`
}

// VerificationProcess is the aggregate root: one submission attempt and its
// full review history. Created only by intake, status-mutated only through
// the transition table, never physically deleted.
type VerificationProcess struct {
	ID       string   `json:"id"`
	UserID   string   `json:"userId"`
	UserType UserType `json:"userType"`

	Request VerificationRequest `json:"request"`

	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`

	RiskAssessment RiskAssessment `json:"riskAssessment"`

	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	ReviewStartedAt *time.Time `json:"reviewStartedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`

	AssignedReviewer string   `json:"assignedReviewer,omitempty"`
	ReviewNotes      string   `json:"reviewNotes,omitempty"`
	RejectionReasons []string `json:"rejectionReasons,omitempty"`
	RejectionDetails string   `json:"rejectionDetails,omitempty"`
	InternalNotes    string   `json:"internalNotes,omitempty"`
	Tags             []string `json:"tags,omitempty"`

	// RequiresResubmission is set on rejection when the chosen reasons allow
	// a follow-up submission linked through PreviousSubmissions.
	RequiresResubmission bool `json:"requiresResubmission,omitempty"`

	// RequiredFields and MoreInfoDeadline carry a requires_more_info request.
	RequiredFields   []string   `json:"requiredFields,omitempty"`
	MoreInfoDeadline *time.Time `json:"moreInfoDeadline,omitempty"`

	ResubmissionCount int `json:"resubmissionCount"`
	// PreviousSubmissions is the ordered lineage of closed prior process
	// ids. Append-only; never mutated after a process closes.
	PreviousSubmissions []string `json:"previousSubmissions,omitempty"`
}

// Clone returns a deep copy so stores can hand out records without aliasing
// internal state.
func (p *VerificationProcess) Clone() *VerificationProcess {
	cp := *p
	cp.Request.SoftwareProficiency = append([]string(nil), p.Request.SoftwareProficiency...)
	cp.Request.Documents = append([]VerificationDocument(nil), p.Request.Documents...)
	cp.RiskAssessment.Factors = append([]string(nil), p.RiskAssessment.Factors...)
	cp.RejectionReasons = append([]string(nil), p.RejectionReasons...)
	cp.Tags = append([]string(nil), p.Tags...)
	cp.RequiredFields = append([]string(nil), p.RequiredFields...)
	cp.PreviousSubmissions = append([]string(nil), p.PreviousSubmissions...)
	if p.ReviewStartedAt != nil {
		t := *p.ReviewStartedAt
		cp.ReviewStartedAt = &t
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		cp.CompletedAt = &t
	}
	if p.MoreInfoDeadline != nil {
		t := *p.MoreInfoDeadline
		cp.MoreInfoDeadline = &t
	}
	return &cp
}

// ReasonCategory is the fixed rejection-reason catalog grouping.
type ReasonCategory string

const (
	CategoryDocumentation    ReasonCategory = "Documentation"
	CategoryIdentity         ReasonCategory = "Identity Verification"
	CategoryQualifications   ReasonCategory = "Professional Qualifications"
	CategoryPortfolioQuality ReasonCategory = "Portfolio Quality"
	CategoryCompliance       ReasonCategory = "Compliance"
	CategoryTechnical        ReasonCategory = "Technical Requirements"
	CategoryOther            ReasonCategory = "Other"
)

// RejectionReason is reviewer-selectable reference data.
type RejectionReason struct {
	ID                   string         `json:"id"`
	Category             ReasonCategory `json:"category"`
	Text                 string         `json:"text"`
	MessageTemplate      string         `json:"messageTemplate"`
	RequiresResubmission bool           `json:"requiresResubmission"`
	IsActive             bool           `json:"isActive"`
}

// MessageType classifies a system message by the transition it announces.
type MessageType string

const (
	MessageApproval             MessageType = "approval"
	MessageRejection            MessageType = "rejection"
	MessageMoreInfoRequest      MessageType = "more_info_request"
	MessageResubmissionGuidance MessageType = "resubmission_guidance"
	MessageStatusUpdate         MessageType = "status_update"
)

func ParseMessageType(s string) (MessageType, error) {
	switch MessageType(s) {
	case MessageApproval, MessageRejection, MessageMoreInfoRequest,
		MessageResubmissionGuidance, MessageStatusUpdate:
		return MessageType(s), nil
	}
	return "", fmt.Errorf("unknown message type %q", s)
}

// MessageTemplate is reference data for generated notifications. Body
// placeholders use {{name}} syntax; Placeholders lists the names the
// dispatcher knows how to fill.
type MessageTemplate struct {
	ID           string      `json:"id"`
	Type         MessageType `json:"type"`
	Subject      string      `json:"subject"`
	Body         string      `json:"body"`
	Placeholders []string    `json:"placeholders"`
	IsActive     bool        `json:"isActive"`
}

// DeliveryStatus tracks a system message through outbound delivery.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
	DeliveryFailed    DeliveryStatus = "failed"
)

func ParseDeliveryStatus(s string) (DeliveryStatus, error) {
	switch DeliveryStatus(s) {
	case DeliveryPending, DeliverySent, DeliveryDelivered, DeliveryRead, DeliveryFailed:
		return DeliveryStatus(s), nil
	}
	return "", fmt.Errorf("unknown delivery status %q", s)
}

// Channel is an outbound delivery channel for a system message.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

// SystemMessage is a generated, templated notification tied to a process.
// Immutable once sent; only delivery state and attempt count change.
type SystemMessage struct {
	ID               string         `json:"id"`
	ProcessID        string         `json:"processId"`
	UserID           string         `json:"userId"`
	Type             MessageType    `json:"type"`
	Subject          string         `json:"subject"`
	Content          string         `json:"content"`
	Status           DeliveryStatus `json:"status"`
	DeliveryAttempts int            `json:"deliveryAttempts"`
	Channels         []Channel      `json:"channels"`
	CreatedAt        time.Time      `json:"createdAt"`
	SentAt           *time.Time     `json:"sentAt,omitempty"`
}

// UserMessage is human-authored, threaded correspondence between a reviewer
// and the applicant.
type UserMessage struct {
	ID              string     `json:"id"`
	ProcessID       string     `json:"processId"`
	UserID          string     `json:"userId"`
	ParentMessageID string     `json:"parentMessageId,omitempty"`
	IsFromAdmin     bool       `json:"isFromAdmin"`
	Subject         string     `json:"subject,omitempty"`
	Content         string     `json:"content"`
	CreatedAt       time.Time  `json:"createdAt"`
	ReadAt          *time.Time `json:"readAt,omitempty"`
	RespondedAt     *time.Time `json:"respondedAt,omitempty"`
}
