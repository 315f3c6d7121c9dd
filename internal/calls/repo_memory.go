package calls

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory call record store for tests and local
// development. Lookups by external and provider id are index maps over
// the primary map.
type MemoryStore struct {
	mu sync.Mutex

	sessions   map[string]CallSession
	byExternal map[string]string
	byProvider map[string]string

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   map[string]CallSession{},
		byExternal: map[string]string{},
		byProvider: map[string]string{},
		now:        time.Now,
	}
}

// WithClock overrides the creation timestamp source. Test hook.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) Create(ctx context.Context, s CallSession) (CallSession, error) {
	if s.ExternalCallID == "" || s.OwnerUserID == "" {
		return CallSession{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byExternal[s.ExternalCallID]; ok {
		return CallSession{}, ErrConflict
	}

	s.ID = uuid.NewString()
	s.StartedAt = m.now()
	s.EndedAt = nil
	s.DurationSeconds = nil

	m.sessions[s.ID] = s
	m.byExternal[s.ExternalCallID] = s.ID
	if s.ProviderCallID != "" {
		m.byProvider[s.ProviderCallID] = s.ID
	}
	return s, nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) GetByExternalID(ctx context.Context, externalID string) (CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byExternal[externalID]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	return m.sessions[id], nil
}

func (m *MemoryStore) GetByProviderID(ctx context.Context, providerID string) (CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if providerID == "" {
		return CallSession{}, ErrNotFound
	}
	id, ok := m.byProvider[providerID]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	return m.sessions[id], nil
}

func (m *MemoryStore) ListByOwner(ctx context.Context, userID string) ([]CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CallSession, 0)
	for _, s := range m.sessions {
		if s.OwnerUserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, f UpdateFields) (CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return CallSession{}, ErrNotFound
	}

	if f.Status != nil {
		s.Status = *f.Status
	}
	if f.ProviderCallID != nil && s.ProviderCallID == "" && *f.ProviderCallID != "" {
		// Write-once: a provider id already on the record wins.
		s.ProviderCallID = *f.ProviderCallID
		m.byProvider[s.ProviderCallID] = s.ID
	}
	if f.EndedAt != nil {
		t := *f.EndedAt
		s.EndedAt = &t
	}
	if f.DurationSeconds != nil {
		d := *f.DurationSeconds
		s.DurationSeconds = &d
	}

	m.sessions[id] = s
	return s, nil
}
