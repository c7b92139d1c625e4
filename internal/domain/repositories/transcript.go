package repositories

import (
	"context"

	"tandem/internal/domain/models"
)

// MessageStore defines the interface for agent transcript access
type MessageStore interface {
	// Append adds the message to the agent's transcript, assigning the
	// next index in append order. The assigned index is written back to
	// msg.Index.
	Append(ctx context.Context, agentID string, msg *models.Message) error

	// List returns one page of the transcript in index order, plus the
	// total message count. Offset past the end yields an empty page.
	List(ctx context.Context, agentID string, offset, limit int) ([]models.Message, int, error)

	// Replace swaps the agent's whole transcript, reindexing from zero.
	// Used when loading a session snapshot.
	Replace(ctx context.Context, agentID string, msgs []models.Message) error

	// Clear removes the agent's transcript.
	Clear(ctx context.Context, agentID string) error
}

// SessionStore defines the interface for named transcript snapshots
type SessionStore interface {
	// Save upserts the snapshot under session.Name and writes the
	// stored timestamps back to session.CreatedAt and session.UpdatedAt.
	Save(ctx context.Context, session *models.Session) error

	// Get retrieves a session by name
	// Returns domain.ErrNotFound if not found
	Get(ctx context.Context, name string) (*models.Session, error)

	// List returns all sessions without their messages, most recently
	// updated first.
	List(ctx context.Context) ([]models.SessionInfo, error)

	// Rename changes a session's name
	// Returns domain.ErrNotFound if oldName is unknown and
	// domain.ErrConflict if newName is taken
	Rename(ctx context.Context, oldName, newName string) error

	// Delete removes a session by name
	// Returns domain.ErrNotFound if not found
	Delete(ctx context.Context, name string) error
}
