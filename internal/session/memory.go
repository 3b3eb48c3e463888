package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// memoryStore implements Store with an in-process map. Used by tests and
// local single-instance runs; production uses the redis driver.
type memoryStore struct {
	cfg      *storeConfig
	mu       sync.Mutex
	sessions map[string][]byte // stored serialized so callers never share pointers
	locks    map[string]bool
}

func newMemoryStore(cfg *storeConfig) *memoryStore {
	return &memoryStore{
		cfg:      cfg,
		sessions: map[string][]byte{},
		locks:    map[string]bool{},
	}
}

func (m *memoryStore) GetOrCreate(ctx context.Context, id, msisdn, network string) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.cfg.nowFunc()
	if raw, ok := m.sessions[id]; ok {
		var s Session
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false, err
		}
		if expireIfStale(&s, now) {
			if err := m.saveLocked(&s); err != nil {
				return nil, false, err
			}
		}
		return &s, false, nil
	}

	s := newSession(id, msisdn, network, now, m.cfg.ttl)
	if err := m.saveLocked(s); err != nil {
		return nil, false, err
	}
	return s, true, nil
}

func (m *memoryStore) Save(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = m.cfg.nowFunc()
	return m.saveLocked(s)
}

func (m *memoryStore) saveLocked(s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.sessions[s.ID] = raw
	return nil
}

func (m *memoryStore) Extend(ctx context.Context, s *Session, d time.Duration) error {
	s.ExpiresAt = m.cfg.nowFunc().Add(d)
	return m.Save(ctx, s)
}

func (m *memoryStore) AcquireTurnLock(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[id] {
		return false, nil
	}
	m.locks[id] = true
	return true, nil
}

func (m *memoryStore) ReleaseTurnLock(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, id)
	return nil
}

func (m *memoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = nil
	m.locks = nil
	return nil
}
