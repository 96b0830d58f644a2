// Package handler exposes the verification workflow over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"vetgate/internal/verification/models"
	"vetgate/internal/verification/service"
	"vetgate/internal/verification/store"
	"vetgate/pkg/platform/httputil"
	"vetgate/pkg/requestcontext"
)

// Service defines the verification operations the handlers depend on.
type Service interface {
	Submit(ctx context.Context, in service.SubmitInput) (*models.VerificationProcess, error)
	Transition(ctx context.Context, processID string, action models.Action, params models.TransitionParams, expectedUpdatedAt time.Time) (*models.VerificationProcess, error)
	BulkTransition(ctx context.Context, processIDs []string, action models.Action, params models.TransitionParams) (*service.BulkResult, error)
	List(ctx context.Context, q store.ProcessQuery) (*service.ListResult, error)
	Get(ctx context.Context, processID string) (*service.ProcessDetail, error)
	Stats(ctx context.Context) (store.Stats, error)
	ListReasons(ctx context.Context, activeOnly bool) ([]*models.RejectionReason, error)
	ListTemplates(ctx context.Context, activeOnly bool) ([]*models.MessageTemplate, error)
	UpdateMetadata(ctx context.Context, processID string, patch service.MetadataPatch, expectedUpdatedAt time.Time) (*models.VerificationProcess, error)
	PostUserMessage(ctx context.Context, processID string, in service.UserMessageInput) (*models.UserMessage, error)
	ListUserMessages(ctx context.Context, processID string) ([]*models.UserMessage, error)
	RetryMessage(ctx context.Context, messageID string) (*models.SystemMessage, error)
}

// Handler wires verification endpoints to the service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a verification handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts verification endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/verifications", func(r chi.Router) {
		r.Post("/", h.HandleSubmit)
		r.Get("/", h.HandleList)
		r.Get("/stats", h.HandleStats)
		r.Post("/bulk", h.HandleBulk)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Post("/transition", h.HandleTransition)
			r.Patch("/metadata", h.HandleUpdateMetadata)
			r.Post("/messages", h.HandlePostMessage)
			r.Get("/messages", h.HandleListMessages)
		})
	})
	r.Get("/rejection-reasons", h.HandleListReasons)
	r.Get("/message-templates", h.HandleListTemplates)
	r.Post("/messages/{id}/retry", h.HandleRetryMessage)
}

// HandleSubmit handles POST /verifications.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r)
	if !ok {
		return
	}

	proc, err := h.service.Submit(ctx, req.Input())
	if err != nil {
		h.logger.WarnContext(ctx, "submission rejected",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", req.UserID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "submission accepted",
		"request_id", requestcontext.RequestID(ctx),
		"process_id", proc.ID,
		"user_id", proc.UserID,
		"status", proc.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, proc)
}

// HandleTransition handles POST /verifications/{id}/transition.
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	processID := chi.URLParam(r, "id")

	req, ok := httputil.DecodeAndPrepare[TransitionRequest](w, r)
	if !ok {
		return
	}

	proc, err := h.service.Transition(ctx, processID, req.parsedAction, req.Params(), req.ExpectedUpdatedAt)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "process transitioned",
		"request_id", requestcontext.RequestID(ctx),
		"process_id", proc.ID,
		"action", req.Action,
		"status", proc.Status,
	)
	httputil.WriteJSON(w, http.StatusOK, proc)
}

// HandleBulk handles POST /verifications/bulk.
func (h *Handler) HandleBulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[BulkRequest](w, r)
	if !ok {
		return
	}

	result, err := h.service.BulkTransition(ctx, req.ProcessIDs, req.parsedAction, req.Params())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "bulk transition finished",
		"request_id", requestcontext.RequestID(ctx),
		"action", req.Action,
		"succeeded", len(result.Successful),
		"failed", len(result.Failed),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleList handles GET /verifications.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.List(ctx, q)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleGet handles GET /verifications/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, detail)
}

// HandleStats handles GET /verifications/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// HandleUpdateMetadata handles PATCH /verifications/{id}/metadata.
func (h *Handler) HandleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	processID := chi.URLParam(r, "id")

	req, ok := httputil.DecodeAndPrepare[MetadataRequest](w, r)
	if !ok {
		return
	}

	proc, err := h.service.UpdateMetadata(ctx, processID, req.Patch(), req.ExpectedUpdatedAt)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, proc)
}

// HandlePostMessage handles POST /verifications/{id}/messages.
func (h *Handler) HandlePostMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	processID := chi.URLParam(r, "id")

	req, ok := httputil.DecodeAndPrepare[UserMessageRequest](w, r)
	if !ok {
		return
	}

	msg, err := h.service.PostUserMessage(ctx, processID, req.Input())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, msg)
}

// HandleListMessages handles GET /verifications/{id}/messages.
func (h *Handler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.service.ListUserMessages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if msgs == nil {
		msgs = []*models.UserMessage{}
	}
	httputil.WriteJSON(w, http.StatusOK, msgs)
}

// HandleListReasons handles GET /rejection-reasons.
func (h *Handler) HandleListReasons(w http.ResponseWriter, r *http.Request) {
	reasons, err := h.service.ListReasons(r.Context(), r.URL.Query().Get("includeInactive") != "true")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reasons)
}

// HandleListTemplates handles GET /message-templates.
func (h *Handler) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service.ListTemplates(r.Context(), r.URL.Query().Get("includeInactive") != "true")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, templates)
}

// HandleRetryMessage handles POST /messages/{id}/retry.
func (h *Handler) HandleRetryMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	messageID := chi.URLParam(r, "id")

	msg, err := h.service.RetryMessage(ctx, messageID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "message redelivery attempted",
		"request_id", requestcontext.RequestID(ctx),
		"message_id", messageID,
		"status", msg.Status,
	)
	httputil.WriteJSON(w, http.StatusOK, msg)
}
