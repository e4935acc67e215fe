package state

import (
	"context"
	"sync"
)

// MemoryBackend keeps sessions in process. It is the default backend.
type MemoryBackend struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{sessions: make(map[string]Session)}
}

func (m *MemoryBackend) Read(ctx context.Context, sessionID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryBackend) CompareAndSwap(ctx context.Context, expected int64, next Session) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.sessions[next.SessionID]
	switch {
	case !ok && expected != 0:
		return false, nil
	case ok && cur.Version != expected:
		return false, nil
	}
	m.sessions[next.SessionID] = next.Clone()
	return true, nil
}
