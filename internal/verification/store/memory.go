package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"vetgate/internal/verification/models"
	"vetgate/pkg/platform/sentinel"
)

// In-memory stores back tests and dev mode. They intentionally favor
// clarity over performance.

// InMemoryProcessStore holds processes behind one mutex; Execute therefore
// gives the same atomicity the postgres store gets from row locking.
type InMemoryProcessStore struct {
	mu        sync.RWMutex
	processes map[string]*models.VerificationProcess
}

func NewInMemoryProcessStore() *InMemoryProcessStore {
	return &InMemoryProcessStore{processes: make(map[string]*models.VerificationProcess)}
}

func (s *InMemoryProcessStore) CreateIfNoActive(_ context.Context, p *models.VerificationProcess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.processes {
		if existing.UserID == p.UserID && !existing.Status.Terminal() {
			return sentinel.ErrConflict
		}
	}
	s.processes[p.ID] = p.Clone()
	return nil
}

func (s *InMemoryProcessStore) Get(_ context.Context, id string) (*models.VerificationProcess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.processes[id]; ok {
		return p.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryProcessStore) Execute(_ context.Context, id string, expectedUpdatedAt time.Time,
	validate func(*models.VerificationProcess) error,
	mutate func(*models.VerificationProcess)) (*models.VerificationProcess, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.processes[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !current.UpdatedAt.Equal(expectedUpdatedAt) {
		return nil, sentinel.ErrVersionMismatch
	}

	next := current.Clone()
	if err := validate(next); err != nil {
		return nil, err
	}
	mutate(next)
	s.processes[id] = next
	return next.Clone(), nil
}

func (s *InMemoryProcessStore) FindActiveByUser(_ context.Context, userID string) (*models.VerificationProcess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.processes {
		if p.UserID == userID && !p.Status.Terminal() {
			return p.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryProcessStore) LatestClosedByUser(_ context.Context, userID string) (*models.VerificationProcess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.VerificationProcess
	for _, p := range s.processes {
		if p.UserID != userID || !p.Status.Terminal() {
			continue
		}
		if latest == nil || (p.CompletedAt != nil && latest.CompletedAt != nil && p.CompletedAt.After(*latest.CompletedAt)) {
			latest = p
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return latest.Clone(), nil
}

func (s *InMemoryProcessStore) CountRejectedByUser(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.processes {
		if p.UserID == userID && p.Status == models.StatusRejected {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryProcessStore) Query(_ context.Context, q ProcessQuery) ([]*models.VerificationProcess, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.VerificationProcess
	for _, p := range s.processes {
		if matches(q, p) {
			matched = append(matched, p.Clone())
		}
	}
	total := len(matched)

	sortProcesses(matched, q.SortBy, q.SortAsc)

	start := (q.Page - 1) * q.PageSize
	if start < 0 {
		start = 0
	}
	if start >= total {
		return []*models.VerificationProcess{}, total, nil
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *InMemoryProcessStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats{
		ByStatus:   make(map[models.Status]int),
		ByPriority: make(map[models.Priority]int),
		ByRisk:     make(map[models.RiskLevel]int),
	}
	for _, p := range s.processes {
		stats.ByStatus[p.Status]++
		stats.ByPriority[p.Priority]++
		stats.ByRisk[p.RiskAssessment.Level]++
		stats.Total++
	}
	return stats, nil
}

func matches(q ProcessQuery, p *models.VerificationProcess) bool {
	if len(q.Statuses) > 0 && !containsStatus(q.Statuses, p.Status) {
		return false
	}
	if len(q.Priorities) > 0 && !containsPriority(q.Priorities, p.Priority) {
		return false
	}
	if len(q.UserTypes) > 0 && !containsUserType(q.UserTypes, p.UserType) {
		return false
	}
	if len(q.RiskLevels) > 0 && !containsRisk(q.RiskLevels, p.RiskAssessment.Level) {
		return false
	}
	if q.CreatedFrom != nil && p.CreatedAt.Before(*q.CreatedFrom) {
		return false
	}
	if q.CreatedTo != nil && p.CreatedAt.After(*q.CreatedTo) {
		return false
	}
	if q.AssignedReviewer != "" && p.AssignedReviewer != q.AssignedReviewer {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(p.Request.FullName), needle) &&
			!strings.Contains(strings.ToLower(p.Request.Email), needle) &&
			!strings.Contains(strings.ToLower(p.Request.Specialization), needle) {
			return false
		}
	}
	return true
}

var priorityRank = map[models.Priority]int{
	models.PriorityLow: 0, models.PriorityMedium: 1,
	models.PriorityHigh: 2, models.PriorityUrgent: 3,
}

// sortProcesses orders by the requested key with process id as the stable
// tiebreak so pagination never shuffles equal keys.
func sortProcesses(items []*models.VerificationProcess, field SortField, asc bool) {
	less := func(a, b *models.VerificationProcess) bool {
		switch field {
		case SortUpdatedAt:
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.Before(b.UpdatedAt)
			}
		case SortStatus:
			if a.Status != b.Status {
				return a.Status < b.Status
			}
		case SortPriority:
			if priorityRank[a.Priority] != priorityRank[b.Priority] {
				return priorityRank[a.Priority] < priorityRank[b.Priority]
			}
		case SortRiskScore:
			if a.RiskAssessment.Score != b.RiskAssessment.Score {
				return a.RiskAssessment.Score < b.RiskAssessment.Score
			}
		case SortFullName:
			an, bn := strings.ToLower(a.Request.FullName), strings.ToLower(b.Request.FullName)
			if an != bn {
				return an < bn
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	}
	sort.SliceStable(items, func(i, j int) bool {
		if asc {
			return less(items[i], items[j])
		}
		return less(items[j], items[i])
	})
}

func containsStatus(ss []models.Status, s models.Status) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(ps []models.Priority, p models.Priority) bool {
	for _, v := range ps {
		if v == p {
			return true
		}
	}
	return false
}

func containsUserType(ts []models.UserType, t models.UserType) bool {
	for _, v := range ts {
		if v == t {
			return true
		}
	}
	return false
}

func containsRisk(rs []models.RiskLevel, r models.RiskLevel) bool {
	for _, v := range rs {
		if v == r {
			return true
		}
	}
	return false
}
