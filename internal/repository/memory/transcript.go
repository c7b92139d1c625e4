// Package memory provides the in-process store implementations used
// when no database is configured. They hold the same contracts as the
// postgres implementations, including index assignment and the
// not-found/conflict error conventions.
package memory

import (
	"context"
	"sync"
	"time"

	"tandem/internal/domain"
	"tandem/internal/domain/models"
)

// MessageStore keeps per-agent transcripts in memory.
type MessageStore struct {
	mu      sync.RWMutex
	byAgent map[string][]models.Message
}

// NewMessageStore creates an empty in-memory transcript store.
func NewMessageStore() *MessageStore {
	return &MessageStore{byAgent: make(map[string][]models.Message)}
}

// Append adds the message, assigning the next index.
func (s *MessageStore) Append(ctx context.Context, agentID string, msg *models.Message) error {
	if agentID == "" {
		return &domain.ValidationError{Message: "agent_id is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.byAgent[agentID]
	msg.Index = len(msgs)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.byAgent[agentID] = append(msgs, cloneMessage(*msg))
	return nil
}

// List returns one page in index order plus the total count.
func (s *MessageStore) List(ctx context.Context, agentID string, offset, limit int) ([]models.Message, int, error) {
	if offset < 0 || limit < 1 {
		return nil, 0, &domain.ValidationError{Message: "offset must be >= 0 and limit >= 1"}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.byAgent[agentID]
	total := len(msgs)
	if offset >= total {
		return []models.Message{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := make([]models.Message, 0, end-offset)
	for _, m := range msgs[offset:end] {
		page = append(page, cloneMessage(m))
	}
	return page, total, nil
}

// Replace swaps the whole transcript, reindexing from zero.
func (s *MessageStore) Replace(ctx context.Context, agentID string, msgs []models.Message) error {
	if agentID == "" {
		return &domain.ValidationError{Message: "agent_id is required"}
	}
	copied := make([]models.Message, len(msgs))
	now := time.Now().UTC()
	for i, m := range msgs {
		m.Index = i
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		copied[i] = cloneMessage(m)
	}
	s.mu.Lock()
	s.byAgent[agentID] = copied
	s.mu.Unlock()
	return nil
}

// Clear removes the agent's transcript.
func (s *MessageStore) Clear(ctx context.Context, agentID string) error {
	s.mu.Lock()
	delete(s.byAgent, agentID)
	s.mu.Unlock()
	return nil
}

func cloneMessage(m models.Message) models.Message {
	if m.Meta != nil {
		meta := make(map[string]any, len(m.Meta))
		for k, v := range m.Meta {
			meta[k] = v
		}
		m.Meta = meta
	}
	return m
}

func cloneMessages(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	for i, m := range msgs {
		out[i] = cloneMessage(m)
	}
	return out
}
