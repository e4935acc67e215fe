package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionConflict = errors.New("session was modified concurrently")
)

type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %s not found", e.SessionID)
}

func (e *SessionNotFoundError) Is(target error) bool {
	return target == ErrSessionNotFound
}

func (e *SessionNotFoundError) Kind() string { return "session_not_found" }

func (e *SessionNotFoundError) Details() map[string]string {
	return map[string]string{"session_id": e.SessionID}
}

// SessionConflictError reports a rejected optimistic commit. Callers re-read
// the session and re-run their request.
type SessionConflictError struct {
	SessionID string
	Expected  int64
	Actual    int64
}

func (e *SessionConflictError) Error() string {
	return fmt.Sprintf("session %s: version conflict (expected=%d actual=%d)", e.SessionID, e.Expected, e.Actual)
}

func (e *SessionConflictError) Is(target error) bool {
	return target == ErrSessionConflict
}

func (e *SessionConflictError) Kind() string { return "session_conflict" }

func (e *SessionConflictError) Details() map[string]string {
	return map[string]string{
		"session_id":       e.SessionID,
		"expected_version": strconv.FormatInt(e.Expected, 10),
		"actual_version":   strconv.FormatInt(e.Actual, 10),
	}
}

// Store is the only write path for sessions.
type Store interface {
	Get(ctx context.Context, sessionID string) (Session, error)
	CreateOrGet(ctx context.Context, sessionID, customerID string, channel Channel) (Session, error)
	Commit(ctx context.Context, sessionID string, expectedVersion int64, muts MutationSet) (Session, error)
}

// Backend persists whole session records with a compare-and-swap on Version.
// CompareAndSwap with expected == 0 creates the record only if it is absent.
type Backend interface {
	Read(ctx context.Context, sessionID string) (Session, error)
	CompareAndSwap(ctx context.Context, expected int64, next Session) (bool, error)
}

// StoreOption customizes VersionedStore.
type StoreOption func(*VersionedStore)

func WithClock(now func() time.Time) StoreOption {
	return func(s *VersionedStore) {
		if now != nil {
			s.now = now
		}
	}
}

// VersionedStore implements Store on top of any Backend.
type VersionedStore struct {
	backend Backend
	now     func() time.Time
}

var _ Store = (*VersionedStore)(nil)

func NewStore(backend Backend, opts ...StoreOption) (*VersionedStore, error) {
	if backend == nil {
		return nil, errors.New("session backend is required")
	}
	s := &VersionedStore{
		backend: backend,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *VersionedStore) Get(ctx context.Context, sessionID string) (Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return Session{}, ErrInvalidSession
	}
	sess, err := s.backend.Read(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return Session{}, &SessionNotFoundError{SessionID: sessionID}
	}
	return sess, err
}

func (s *VersionedStore) CreateOrGet(ctx context.Context, sessionID, customerID string, channel Channel) (Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return Session{}, ErrInvalidSession
	}

	existing, err := s.backend.Read(ctx, sessionID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return Session{}, err
	}

	fresh := NewSession(sessionID, customerID, channel, s.now())
	fresh.Version = 1
	if err := fresh.Validate(); err != nil {
		return Session{}, err
	}

	created, err := s.backend.CompareAndSwap(ctx, 0, fresh)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	if created {
		return fresh, nil
	}
	// Lost the creation race; the winner's record is authoritative.
	return s.backend.Read(ctx, sessionID)
}

func (s *VersionedStore) Commit(ctx context.Context, sessionID string, expectedVersion int64, muts MutationSet) (Session, error) {
	current, err := s.Get(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if current.Version != expectedVersion {
		return Session{}, &SessionConflictError{SessionID: sessionID, Expected: expectedVersion, Actual: current.Version}
	}

	next := current.Clone()
	now := s.now()
	if err := muts.Apply(&next, now); err != nil {
		return Session{}, err
	}
	next.Version = expectedVersion + 1
	next.UpdatedAt = now.UTC()

	swapped, err := s.backend.CompareAndSwap(ctx, expectedVersion, next)
	if err != nil {
		return Session{}, fmt.Errorf("commit session: %w", err)
	}
	if !swapped {
		actual := expectedVersion
		if latest, err := s.backend.Read(ctx, sessionID); err == nil {
			actual = latest.Version
		}
		return Session{}, &SessionConflictError{SessionID: sessionID, Expected: expectedVersion, Actual: actual}
	}
	return next, nil
}
