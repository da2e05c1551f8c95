package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sevigo/extpr/internal/core"
)

type memoryStore struct {
	mu         sync.Mutex
	nextID     int64
	dispatches []core.DispatchRecord
	tokens     map[string]time.Time
}

// NewMemoryStore returns a Store kept in process memory. Consumed tokens are
// lost on restart, so it only suits development and tests.
func NewMemoryStore() Store {
	return &memoryStore{tokens: make(map[string]time.Time)}
}

func (m *memoryStore) SaveDispatches(_ context.Context, records []*core.DispatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.nextID++
		rec := *r
		rec.ID = m.nextID
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
		m.dispatches = append(m.dispatches, rec)
	}
	return nil
}

func (m *memoryStore) ListDispatches(_ context.Context, repoFullName string, limit int) ([]*core.DispatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*core.DispatchRecord
	for i := range m.dispatches {
		if repoFullName != "" && m.dispatches[i].RepoFullName != repoFullName {
			continue
		}
		rec := m.dispatches[i]
		out = append(out, &rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) ConsumeToken(_ context.Context, tokenID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, used := m.tokens[tokenID]; used {
		return ErrTokenConsumed
	}
	m.tokens[tokenID] = expiresAt
	return nil
}

func (m *memoryStore) TokenConsumed(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, used := m.tokens[tokenID]
	return used, nil
}

func (m *memoryStore) ReleaseToken(_ context.Context, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, tokenID)
	return nil
}

func (m *memoryStore) PurgeExpiredTokens(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, exp := range m.tokens {
		if exp.Before(before) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}
