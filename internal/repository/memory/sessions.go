package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tandem/internal/domain"
	"tandem/internal/domain/models"
)

// SessionStore keeps named transcript snapshots in memory.
type SessionStore struct {
	mu     sync.RWMutex
	byName map[string]*models.Session
}

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{byName: make(map[string]*models.Session)}
}

// Save upserts the snapshot under session.Name.
func (s *SessionStore) Save(ctx context.Context, session *models.Session) error {
	if session == nil || session.Name == "" {
		return &domain.ValidationError{Message: "session name is required"}
	}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := &models.Session{
		Name:      session.Name,
		AgentID:   session.AgentID,
		Messages:  cloneMessages(session.Messages),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if prev, ok := s.byName[session.Name]; ok {
		stored.CreatedAt = prev.CreatedAt
	}
	s.byName[session.Name] = stored
	session.CreatedAt = stored.CreatedAt
	session.UpdatedAt = stored.UpdatedAt
	return nil
}

// Get returns the snapshot, or domain.ErrNotFound.
func (s *SessionStore) Get(ctx context.Context, name string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.byName[name]
	if !ok {
		return nil, &domain.NotFoundError{Message: "session not found: " + name}
	}
	out := *stored
	out.Messages = cloneMessages(stored.Messages)
	return &out, nil
}

// List returns all sessions without messages, most recently updated
// first.
func (s *SessionStore) List(ctx context.Context) ([]models.SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SessionInfo, 0, len(s.byName))
	for _, stored := range s.byName {
		out = append(out, models.SessionInfo{
			Name:         stored.Name,
			AgentID:      stored.AgentID,
			MessageCount: len(stored.Messages),
			CreatedAt:    stored.CreatedAt,
			UpdatedAt:    stored.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Rename changes a session's name.
func (s *SessionStore) Rename(ctx context.Context, oldName, newName string) error {
	if newName == "" {
		return &domain.ValidationError{Message: "new session name is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byName[oldName]
	if !ok {
		return &domain.NotFoundError{Message: "session not found: " + oldName}
	}
	if _, taken := s.byName[newName]; taken && newName != oldName {
		return &domain.ConflictError{
			Message:      "session already exists: " + newName,
			ResourceType: "session",
			ResourceID:   newName,
		}
	}
	delete(s.byName, oldName)
	stored.Name = newName
	stored.UpdatedAt = time.Now().UTC()
	s.byName[newName] = stored
	return nil
}

// Delete removes a session by name.
func (s *SessionStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[name]; !ok {
		return &domain.NotFoundError{Message: "session not found: " + name}
	}
	delete(s.byName, name)
	return nil
}
