package adapters

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/satriahrh/aidoctor/domain/entities"
)

// MemoryConsultationRepository keeps consultation history in process memory.
// It is used when no MongoDB URI is configured.
type MemoryConsultationRepository struct {
	mu      sync.RWMutex
	results map[string][]*entities.ConsultationResult // session id -> results
}

// NewMemoryConsultationRepository creates an empty history store
func NewMemoryConsultationRepository() *MemoryConsultationRepository {
	return &MemoryConsultationRepository{
		results: make(map[string][]*entities.ConsultationResult),
	}
}

// Save implements ConsultationRepository interface
func (m *MemoryConsultationRepository) Save(ctx context.Context, result *entities.ConsultationResult) error {
	if result == nil {
		return errors.New("result cannot be nil")
	}
	if result.ID == "" || result.SessionID == "" {
		return errors.New("result needs an id and a session id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	resultCopy := *result
	m.results[result.SessionID] = append(m.results[result.SessionID], &resultCopy)
	return nil
}

// ListBySession implements ConsultationRepository interface, newest first
func (m *MemoryConsultationRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*entities.ConsultationResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.results[sessionID]
	out := make([]*entities.ConsultationResult, 0, len(stored))
	for _, r := range stored {
		resultCopy := *r
		out = append(out, &resultCopy)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
