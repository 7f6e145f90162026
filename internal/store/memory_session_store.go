package store

import (
	"context"
	"sync"

	"github.com/dunamismax/shrinkit/internal/domain"
)

type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domain.Session),
	}
}

func (s *MemorySessionStore) Create(_ context.Context, session domain.Session) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return domain.Session{}, ErrSessionExists
	}
	session.Version = 1
	s.sessions[session.ID] = cloneSession(session)
	return cloneSession(session), nil
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (domain.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, false, nil
	}
	return cloneSession(session), true, nil
}

func (s *MemorySessionStore) Update(_ context.Context, session domain.Session) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[session.ID]
	if !ok {
		return domain.Session{}, ErrSessionNotFound
	}
	if current.Version != session.Version {
		return domain.Session{}, ErrConflict
	}

	session.Version++
	s.sessions[session.ID] = cloneSession(session)
	return cloneSession(session), nil
}

func cloneSession(in domain.Session) domain.Session {
	out := in
	if in.Source != nil {
		src := *in.Source
		src.Data = nil
		out.Source = &src
	}
	if in.Processed != nil {
		processed := *in.Processed
		processed.Data = nil
		out.Processed = &processed
	}
	return out
}
