package handler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vetgate/internal/upload"
	"vetgate/internal/verification/models"
	"vetgate/internal/verification/service"
	"vetgate/internal/verification/store"
	dErrors "vetgate/pkg/domain-errors"
)

// maxInlineSize mirrors the storage caps: identity documents stay small,
// work samples may be full project bundles.
func maxInlineSize(docType models.DocumentType) int {
	if docType == models.DocumentIdentity {
		return upload.MaxIdentityDocumentSize
	}
	return upload.MaxWorkSampleSize
}

// FilePayload is one document embedded in a submission body. Data is
// base64-encoded on the wire.
type FilePayload struct {
	Type        string `json:"type"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// SubmitRequest is the body for POST /verifications.
type SubmitRequest struct {
	UserID   string                     `json:"userId"`
	UserType string                     `json:"userType"`
	Request  models.VerificationRequest `json:"request"`
	Files    []FilePayload              `json:"files"`

	parsedUserType models.UserType
	parsedFiles    []service.DocumentUpload
}

func (r *SubmitRequest) Validate() error {
	r.UserID = strings.TrimSpace(r.UserID)
	if r.UserID == "" {
		return dErrors.NewValidation("userId is required", "userId")
	}

	userType, err := models.ParseUserType(r.UserType)
	if err != nil {
		return dErrors.NewValidation(err.Error(), "userType")
	}
	r.parsedUserType = userType

	r.parsedFiles = make([]service.DocumentUpload, 0, len(r.Files))
	for i, f := range r.Files {
		field := "files[" + strconv.Itoa(i) + "]"
		docType, err := models.ParseDocumentType(f.Type)
		if err != nil {
			return dErrors.NewValidation("unknown document type: "+f.Type, field+".type")
		}
		if len(f.Data) == 0 {
			return dErrors.NewValidation("file data is required", field+".data")
		}
		if limit := maxInlineSize(docType); len(f.Data) > limit {
			return dErrors.NewValidation(
				fmt.Sprintf("file exceeds the %d MB limit for %s documents", limit>>20, docType),
				field+".data")
		}
		r.parsedFiles = append(r.parsedFiles, service.DocumentUpload{
			Type:        docType,
			FileName:    f.FileName,
			ContentType: f.ContentType,
			Data:        f.Data,
		})
	}
	return nil
}

// Input converts the validated body into the service intake payload.
func (r *SubmitRequest) Input() service.SubmitInput {
	return service.SubmitInput{
		UserID:   r.UserID,
		UserType: r.parsedUserType,
		Request:  r.Request,
		Files:    r.parsedFiles,
	}
}

// TransitionRequest is the body for POST /verifications/{id}/transition and,
// minus ExpectedUpdatedAt, the shared action block of bulk requests.
type TransitionRequest struct {
	Action            string    `json:"action"`
	ExpectedUpdatedAt time.Time `json:"expectedUpdatedAt"`

	Reviewer string `json:"reviewer,omitempty"`
	Notes    string `json:"notes,omitempty"`

	ReasonIDs            []string `json:"reasonIds,omitempty"`
	RejectionDetails     string   `json:"rejectionDetails,omitempty"`
	RequiresResubmission bool     `json:"requiresResubmission,omitempty"`

	RequiredFields []string   `json:"requiredFields,omitempty"`
	Deadline       *time.Time `json:"deadline,omitempty"`

	UpdatedRequest *models.VerificationRequest `json:"updatedRequest,omitempty"`

	NotifyUser    bool   `json:"notifyUser,omitempty"`
	TemplateID    string `json:"templateId,omitempty"`
	CustomMessage string `json:"customMessage,omitempty"`

	parsedAction models.Action
}

func (r *TransitionRequest) Validate() error {
	action, err := models.ParseAction(r.Action)
	if err != nil {
		return err
	}
	r.parsedAction = action
	if r.ExpectedUpdatedAt.IsZero() {
		return dErrors.NewValidation("expectedUpdatedAt is required", "expectedUpdatedAt")
	}
	return nil
}

// Params maps the body onto the transition side-effect inputs.
func (r *TransitionRequest) Params() models.TransitionParams {
	return models.TransitionParams{
		Reviewer:             strings.TrimSpace(r.Reviewer),
		Notes:                r.Notes,
		ReasonIDs:            r.ReasonIDs,
		RejectionDetails:     r.RejectionDetails,
		RequiresResubmission: r.RequiresResubmission,
		RequiredFields:       r.RequiredFields,
		Deadline:             r.Deadline,
		UpdatedRequest:       r.UpdatedRequest,
		NotifyUser:           r.NotifyUser,
		TemplateID:           r.TemplateID,
		CustomMessage:        r.CustomMessage,
	}
}

// BulkRequest is the body for POST /verifications/bulk. Each item carries
// its own optimistic-concurrency check inside the service, so no
// expectedUpdatedAt appears here.
type BulkRequest struct {
	ProcessIDs []string `json:"processIds"`
	Action     string   `json:"action"`

	Reviewer string `json:"reviewer,omitempty"`
	Notes    string `json:"notes,omitempty"`

	ReasonIDs            []string `json:"reasonIds,omitempty"`
	RejectionDetails     string   `json:"rejectionDetails,omitempty"`
	RequiresResubmission bool     `json:"requiresResubmission,omitempty"`

	RequiredFields []string   `json:"requiredFields,omitempty"`
	Deadline       *time.Time `json:"deadline,omitempty"`

	NotifyUser    bool   `json:"notifyUser,omitempty"`
	TemplateID    string `json:"templateId,omitempty"`
	CustomMessage string `json:"customMessage,omitempty"`

	parsedAction models.Action
}

func (r *BulkRequest) Validate() error {
	if len(r.ProcessIDs) == 0 {
		return dErrors.NewValidation("processIds is required", "processIds")
	}
	action, err := models.ParseAction(r.Action)
	if err != nil {
		return err
	}
	r.parsedAction = action
	return nil
}

func (r *BulkRequest) Params() models.TransitionParams {
	return models.TransitionParams{
		Reviewer:             strings.TrimSpace(r.Reviewer),
		Notes:                r.Notes,
		ReasonIDs:            r.ReasonIDs,
		RejectionDetails:     r.RejectionDetails,
		RequiresResubmission: r.RequiresResubmission,
		RequiredFields:       r.RequiredFields,
		Deadline:             r.Deadline,
		NotifyUser:           r.NotifyUser,
		TemplateID:           r.TemplateID,
		CustomMessage:        r.CustomMessage,
	}
}

// MetadataRequest is the body for PATCH /verifications/{id}/metadata.
type MetadataRequest struct {
	Priority          *string   `json:"priority,omitempty"`
	Tags              []string  `json:"tags,omitempty"`
	InternalNotes     *string   `json:"internalNotes,omitempty"`
	ExpectedUpdatedAt time.Time `json:"expectedUpdatedAt"`

	parsedPriority *models.Priority
}

func (r *MetadataRequest) Validate() error {
	if r.Priority != nil {
		p, err := models.ParsePriority(*r.Priority)
		if err != nil {
			return dErrors.NewValidation(err.Error(), "priority")
		}
		r.parsedPriority = &p
	}
	if r.ExpectedUpdatedAt.IsZero() {
		return dErrors.NewValidation("expectedUpdatedAt is required", "expectedUpdatedAt")
	}
	return nil
}

func (r *MetadataRequest) Patch() service.MetadataPatch {
	return service.MetadataPatch{
		Priority:      r.parsedPriority,
		Tags:          r.Tags,
		InternalNotes: r.InternalNotes,
	}
}

// UserMessageRequest is the body for POST /verifications/{id}/messages.
type UserMessageRequest struct {
	ParentMessageID string `json:"parentMessageId,omitempty"`
	Subject         string `json:"subject,omitempty"`
	Content         string `json:"content"`
	IsFromAdmin     bool   `json:"isFromAdmin"`
}

func (r *UserMessageRequest) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return dErrors.NewValidation("content is required", "content")
	}
	return nil
}

func (r *UserMessageRequest) Input() service.UserMessageInput {
	return service.UserMessageInput{
		ParentMessageID: r.ParentMessageID,
		Subject:         r.Subject,
		Content:         r.Content,
		IsFromAdmin:     r.IsFromAdmin,
	}
}

// parseListQuery maps GET /verifications query parameters onto a store
// query. Multi-valued filters accept repeated parameters or comma lists.
func parseListQuery(values url.Values) (store.ProcessQuery, error) {
	var q store.ProcessQuery

	for _, s := range splitMulti(values, "status") {
		status, err := models.ParseStatus(s)
		if err != nil {
			return q, dErrors.NewValidation(err.Error(), "status")
		}
		q.Statuses = append(q.Statuses, status)
	}
	for _, s := range splitMulti(values, "priority") {
		p, err := models.ParsePriority(s)
		if err != nil {
			return q, dErrors.NewValidation(err.Error(), "priority")
		}
		q.Priorities = append(q.Priorities, p)
	}
	for _, s := range splitMulti(values, "userType") {
		ut, err := models.ParseUserType(s)
		if err != nil {
			return q, dErrors.NewValidation(err.Error(), "userType")
		}
		q.UserTypes = append(q.UserTypes, ut)
	}
	for _, s := range splitMulti(values, "riskLevel") {
		rl, err := models.ParseRiskLevel(s)
		if err != nil {
			return q, dErrors.NewValidation(err.Error(), "riskLevel")
		}
		q.RiskLevels = append(q.RiskLevels, rl)
	}

	q.AssignedReviewer = strings.TrimSpace(values.Get("assignedReviewer"))
	q.Search = strings.TrimSpace(values.Get("search"))

	var err error
	if q.CreatedFrom, err = parseTimeParam(values, "createdFrom"); err != nil {
		return q, err
	}
	if q.CreatedTo, err = parseTimeParam(values, "createdTo"); err != nil {
		return q, err
	}

	sortBy, ok := store.ParseSortField(values.Get("sortBy"))
	if !ok {
		return q, dErrors.NewValidation("unknown sort field: "+values.Get("sortBy"), "sortBy")
	}
	q.SortBy = sortBy
	switch dir := values.Get("sortDir"); dir {
	case "", "desc":
	case "asc":
		q.SortAsc = true
	default:
		return q, dErrors.NewValidation("sortDir must be asc or desc", "sortDir")
	}

	if q.Page, err = parseIntParam(values, "page"); err != nil {
		return q, err
	}
	if q.PageSize, err = parseIntParam(values, "pageSize"); err != nil {
		return q, err
	}
	return q, nil
}

func splitMulti(values url.Values, key string) []string {
	var out []string
	for _, raw := range values[key] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseTimeParam(values url.Values, key string) (*time.Time, error) {
	raw := values.Get(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, dErrors.NewValidation(key+" must be an RFC 3339 timestamp", key)
	}
	return &t, nil
}

func parseIntParam(values url.Values, key string) (int, error) {
	raw := values.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, dErrors.NewValidation(key+" must be a non-negative integer", key)
	}
	return n, nil
}
