package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dunamismax/shrinkit/internal/domain"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	// ErrConflict means the session changed since it was read.
	ErrConflict = errors.New("session was modified concurrently")
)

const maxMutateAttempts = 5

// SessionStore persists sessions with optimistic concurrency. Update only
// succeeds when the stored version equals session.Version, and returns the
// session with its version bumped.
type SessionStore interface {
	Create(ctx context.Context, session domain.Session) (domain.Session, error)
	Get(ctx context.Context, id string) (domain.Session, bool, error)
	Update(ctx context.Context, session domain.Session) (domain.Session, error)
}

// Mutate applies fn to the latest copy of a session and writes it back,
// retrying on version conflicts. A *domain.Error from fn is a recorded
// failure: the session is still written and the error is returned with it.
// Any other error aborts without writing.
func Mutate(ctx context.Context, s SessionStore, id string, fn func(*domain.Session) error) (domain.Session, error) {
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		session, ok, err := s.Get(ctx, id)
		if err != nil {
			return domain.Session{}, err
		}
		if !ok {
			return domain.Session{}, ErrSessionNotFound
		}

		fnErr := fn(&session)
		var de *domain.Error
		if fnErr != nil && !errors.As(fnErr, &de) {
			return session, fnErr
		}

		updated, err := s.Update(ctx, session)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return domain.Session{}, err
		}
		return updated, fnErr
	}
	return domain.Session{}, fmt.Errorf("mutate session %s: %w", id, ErrConflict)
}
