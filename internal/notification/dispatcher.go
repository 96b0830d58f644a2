// Package notification converts review transitions into templated system
// messages and drives their delivery. Dispatch problems degrade to a
// recorded-but-unsent message; they never fail the surrounding transition.
package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vetgate/internal/verification/models"
	dErrors "vetgate/pkg/domain-errors"
	"vetgate/pkg/platform/circuit"
	"vetgate/pkg/platform/sentinel"
	"vetgate/pkg/requestcontext"
)

// MessageStore persists system messages and their delivery state.
type MessageStore interface {
	SaveSystemMessage(ctx context.Context, msg *models.SystemMessage) error
	GetSystemMessage(ctx context.Context, id string) (*models.SystemMessage, error)
	UpdateDelivery(ctx context.Context, id string, status models.DeliveryStatus, attempts int, sentAt *time.Time) error
}

// TemplateStore resolves message templates.
type TemplateStore interface {
	FindTemplate(ctx context.Context, id string) (*models.MessageTemplate, error)
	FindTemplateByType(ctx context.Context, t models.MessageType) (*models.MessageTemplate, error)
}

// Sender delivers one message to the applicant. Implementations must not
// retry internally; retry is an operator-triggered action.
type Sender interface {
	Send(ctx context.Context, to string, subject string, body string) error
}

// Options selects the message source for one dispatch.
type Options struct {
	// TemplateID picks a specific template; empty falls back to the active
	// template for the message type.
	TemplateID string
	// CustomMessage, when set, is used verbatim instead of any template.
	CustomMessage string
}

// Dispatcher records and delivers system messages. A circuit breaker guards
// the outbound sender: once it opens, messages are recorded as failed
// without hitting the sender until deliveries succeed again.
type Dispatcher struct {
	messages  MessageStore
	templates TemplateStore
	sender    Sender
	breaker   *circuit.Breaker
	logger    *slog.Logger
}

func NewDispatcher(messages MessageStore, templates TemplateStore, sender Sender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		messages:  messages,
		templates: templates,
		sender:    sender,
		breaker:   circuit.New("notification-sender"),
		logger:    logger,
	}
}

// Dispatch records a SystemMessage for the transition and attempts delivery.
// The returned message reflects the delivery outcome. A nil return means the
// message could not even be recorded; callers log and move on.
func (d *Dispatcher) Dispatch(ctx context.Context, p *models.VerificationProcess, msgType models.MessageType, opts Options) *models.SystemMessage {
	now := requestcontext.Now(ctx)
	subject, body := d.resolveContent(ctx, p, msgType, opts)

	msg := &models.SystemMessage{
		ID:        uuid.NewString(),
		ProcessID: p.ID,
		UserID:    p.UserID,
		Type:      msgType,
		Subject:   subject,
		Content:   body,
		Status:    models.DeliveryPending,
		Channels:  []models.Channel{models.ChannelEmail, models.ChannelInApp},
		CreatedAt: now,
	}
	if err := d.messages.SaveSystemMessage(ctx, msg); err != nil {
		d.logger.ErrorContext(ctx, "failed to record system message",
			"request_id", requestcontext.RequestID(ctx),
			"process_id", p.ID,
			"message_type", string(msgType),
			"error", err.Error(),
		)
		return nil
	}

	if d.breaker.IsOpen() {
		msg.Status = models.DeliveryFailed
		d.logger.WarnContext(ctx, "sender circuit open, message recorded undelivered",
			"request_id", requestcontext.RequestID(ctx),
			"message_id", msg.ID,
		)
		if err := d.messages.UpdateDelivery(ctx, msg.ID, msg.Status, msg.DeliveryAttempts, nil); err != nil {
			d.logger.ErrorContext(ctx, "failed to persist delivery state",
				"message_id", msg.ID,
				"error", err.Error(),
			)
		}
		return msg
	}

	d.attemptDelivery(ctx, msg, p.Request.Email)
	return msg
}

// RetryDelivery re-attempts a failed message. Operator-triggered only. The
// recipient address is not stored on the message row, so the caller resolves
// it from the owning process.
func (d *Dispatcher) RetryDelivery(ctx context.Context, messageID string, email string) (*models.SystemMessage, error) {
	msg, err := d.messages.GetSystemMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "system message not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "message store unavailable")
	}
	if msg.Status != models.DeliveryFailed && msg.Status != models.DeliveryPending {
		return nil, dErrors.New(dErrors.CodeValidation, "message is not awaiting delivery")
	}

	d.attemptDelivery(ctx, msg, email)
	return msg, nil
}

// attemptDelivery always calls the sender, even with the breaker open: a
// manual retry doubles as the probe that lets the circuit close again.
func (d *Dispatcher) attemptDelivery(ctx context.Context, msg *models.SystemMessage, email string) {
	msg.DeliveryAttempts++
	err := d.sender.Send(ctx, email, msg.Subject, msg.Content)
	if err != nil {
		if _, change := d.breaker.RecordFailure(); change.Opened {
			d.logger.WarnContext(ctx, "sender circuit opened", "breaker", d.breaker.Name())
		}
		msg.Status = models.DeliveryFailed
		d.logger.WarnContext(ctx, "message delivery failed",
			"request_id", requestcontext.RequestID(ctx),
			"message_id", msg.ID,
			"attempts", msg.DeliveryAttempts,
			"error", err.Error(),
		)
	} else {
		if _, change := d.breaker.RecordSuccess(); change.Closed {
			d.logger.InfoContext(ctx, "sender circuit closed", "breaker", d.breaker.Name())
		}
		now := requestcontext.Now(ctx)
		msg.Status = models.DeliverySent
		msg.SentAt = &now
	}
	if uerr := d.messages.UpdateDelivery(ctx, msg.ID, msg.Status, msg.DeliveryAttempts, msg.SentAt); uerr != nil {
		d.logger.ErrorContext(ctx, "failed to persist delivery state",
			"message_id", msg.ID,
			"error", uerr.Error(),
		)
	}
}

// resolveContent picks custom message, requested template, or the active
// template for the type, falling back to a minimal built-in body so a
// missing template never blocks a transition.
func (d *Dispatcher) resolveContent(ctx context.Context, p *models.VerificationProcess, msgType models.MessageType, opts Options) (string, string) {
	if opts.CustomMessage != "" {
		return defaultSubject(msgType), opts.CustomMessage
	}

	var tpl *models.MessageTemplate
	var err error
	if opts.TemplateID != "" {
		tpl, err = d.templates.FindTemplate(ctx, opts.TemplateID)
	} else {
		tpl, err = d.templates.FindTemplateByType(ctx, msgType)
	}
	if err != nil || tpl == nil || !tpl.IsActive {
		d.logger.WarnContext(ctx, "no usable template, using fallback",
			"message_type", string(msgType),
			"template_id", opts.TemplateID,
		)
		return defaultSubject(msgType), defaultBody(msgType)
	}

	values := placeholderValues(p)
	subject, unresolvedSubject := render(tpl.Subject, values)
	body, unresolvedBody := render(tpl.Body, values)
	if unresolved := append(unresolvedSubject, unresolvedBody...); len(unresolved) > 0 {
		d.logger.WarnContext(ctx, "unresolved template placeholders",
			"template_id", tpl.ID,
			"placeholders", unresolved,
		)
	}
	return subject, body
}

func defaultSubject(msgType models.MessageType) string {
	switch msgType {
	case models.MessageApproval:
		return "Your verification has been approved"
	case models.MessageRejection:
		return "Update on your verification submission"
	case models.MessageMoreInfoRequest:
		return "More information needed for your verification"
	case models.MessageResubmissionGuidance:
		return "How to resubmit your verification"
	default:
		return "Verification status update"
	}
}

func defaultBody(msgType models.MessageType) string {
	switch msgType {
	case models.MessageApproval:
		return "Congratulations, your professional verification has been approved."
	case models.MessageRejection:
		return "Your verification submission was not approved. Please review the details in your dashboard."
	case models.MessageMoreInfoRequest:
		return "A reviewer has requested additional information. Please check your dashboard for the required fields."
	default:
		return "The status of your verification submission has changed."
	}
}
