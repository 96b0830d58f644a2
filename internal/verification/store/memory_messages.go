package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"vetgate/internal/verification/models"
	"vetgate/pkg/platform/sentinel"
)

// InMemoryMessageStore holds system and user messages.
type InMemoryMessageStore struct {
	mu     sync.RWMutex
	system map[string]*models.SystemMessage
	user   map[string]*models.UserMessage
}

func NewInMemoryMessageStore() *InMemoryMessageStore {
	return &InMemoryMessageStore{
		system: make(map[string]*models.SystemMessage),
		user:   make(map[string]*models.UserMessage),
	}
}

func (s *InMemoryMessageStore) SaveSystemMessage(_ context.Context, msg *models.SystemMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *msg
	s.system[msg.ID] = &cp
	return nil
}

func (s *InMemoryMessageStore) GetSystemMessage(_ context.Context, id string) (*models.SystemMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if msg, ok := s.system[id]; ok {
		cp := *msg
		return &cp, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryMessageStore) UpdateDelivery(_ context.Context, id string, status models.DeliveryStatus, attempts int, sentAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.system[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	msg.Status = status
	msg.DeliveryAttempts = attempts
	msg.SentAt = sentAt
	return nil
}

func (s *InMemoryMessageStore) ListSystemMessages(_ context.Context, processID string) ([]*models.SystemMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.SystemMessage
	for _, msg := range s.system {
		if msg.ProcessID == processID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryMessageStore) SaveUserMessage(_ context.Context, msg *models.UserMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *msg
	s.user[msg.ID] = &cp
	return nil
}

func (s *InMemoryMessageStore) ListUserMessages(_ context.Context, processID string) ([]*models.UserMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.UserMessage
	for _, msg := range s.user {
		if msg.ProcessID == processID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// InMemoryReferenceStore serves rejection reasons and message templates.
// Implements both ReasonStore and TemplateStore; Seed populates the default
// catalog.
type InMemoryReferenceStore struct {
	mu        sync.RWMutex
	reasons   map[string]*models.RejectionReason
	templates map[string]*models.MessageTemplate
}

func NewInMemoryReferenceStore() *InMemoryReferenceStore {
	return &InMemoryReferenceStore{
		reasons:   make(map[string]*models.RejectionReason),
		templates: make(map[string]*models.MessageTemplate),
	}
}

func (s *InMemoryReferenceStore) PutReason(r *models.RejectionReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.reasons[r.ID] = &cp
}

func (s *InMemoryReferenceStore) PutTemplate(t *models.MessageTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.templates[t.ID] = &cp
}

func (s *InMemoryReferenceStore) ListReasons(_ context.Context, activeOnly bool) ([]*models.RejectionReason, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.RejectionReason
	for _, r := range s.reasons {
		if activeOnly && !r.IsActive {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryReferenceStore) FindReason(_ context.Context, id string) (*models.RejectionReason, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.reasons[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryReferenceStore) ListTemplates(_ context.Context, activeOnly bool) ([]*models.MessageTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.MessageTemplate
	for _, t := range s.templates {
		if activeOnly && !t.IsActive {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryReferenceStore) FindTemplate(_ context.Context, id string) (*models.MessageTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.templates[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryReferenceStore) FindTemplateByType(_ context.Context, msgType models.MessageType) (*models.MessageTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id := range s.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if t := s.templates[id]; t.Type == msgType && t.IsActive {
			cp := *t
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// InMemoryAccountStore records the mirrored verification status per user.
type InMemoryAccountStore struct {
	mu       sync.RWMutex
	statuses map[string]models.Status

	// FailNext makes the next write fail, for exercising the non-fatal
	// mirror path in intake tests.
	FailNext bool
}

func NewInMemoryAccountStore() *InMemoryAccountStore {
	return &InMemoryAccountStore{statuses: make(map[string]models.Status)}
}

func (s *InMemoryAccountStore) SetVerificationStatus(_ context.Context, userID string, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailNext {
		s.FailNext = false
		return sentinel.ErrUnavailable
	}
	s.statuses[userID] = status
	return nil
}

// StatusOf returns the mirrored status for assertions in tests.
func (s *InMemoryAccountStore) StatusOf(userID string) (models.Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[userID]
	return st, ok
}
