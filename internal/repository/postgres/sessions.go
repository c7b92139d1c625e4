package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"tandem/internal/domain"
	"tandem/internal/domain/models"
)

// SessionStore implements repositories.SessionStore on Postgres.
// Snapshots store their messages as one jsonb document; sessions are
// read and written whole.
type SessionStore struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewSessionStore creates a Postgres-backed session store.
func NewSessionStore(cfg RepositoryConfig) *SessionStore {
	return &SessionStore{
		pool:   cfg.Pool,
		tables: cfg.Tables,
		logger: cfg.Logger,
	}
}

// Save upserts the snapshot under session.Name.
func (r *SessionStore) Save(ctx context.Context, session *models.Session) error {
	if session == nil || session.Name == "" {
		return &domain.ValidationError{Message: "session name is required"}
	}
	messages, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("marshal session messages: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (name, agent_id, messages, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (name) DO UPDATE
		SET agent_id = EXCLUDED.agent_id, messages = EXCLUDED.messages, updated_at = now()
		RETURNING created_at, updated_at`,
		r.tables.Sessions)

	executor := GetExecutor(ctx, r.pool)
	err = executor.QueryRow(ctx, query, session.Name, session.AgentID, messages).
		Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Get retrieves a session by name.
func (r *SessionStore) Get(ctx context.Context, name string) (*models.Session, error) {
	query := fmt.Sprintf(`
		SELECT agent_id, messages, created_at, updated_at
		FROM %s WHERE name = $1`, r.tables.Sessions)

	executor := GetExecutor(ctx, r.pool)
	session := &models.Session{Name: name}
	var messages []byte
	err := executor.QueryRow(ctx, query, name).Scan(
		&session.AgentID, &messages, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, &domain.NotFoundError{Message: "session not found: " + name}
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if err := json.Unmarshal(messages, &session.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal session messages: %w", err)
	}
	return session, nil
}

// List returns all sessions without messages, most recently updated
// first.
func (r *SessionStore) List(ctx context.Context) ([]models.SessionInfo, error) {
	query := fmt.Sprintf(`
		SELECT name, agent_id, jsonb_array_length(messages), created_at, updated_at
		FROM %s
		ORDER BY updated_at DESC, name`, r.tables.Sessions)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.SessionInfo
	for rows.Next() {
		var info models.SessionInfo
		if err := rows.Scan(&info.Name, &info.AgentID, &info.MessageCount, &info.CreatedAt, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// Rename changes a session's name.
func (r *SessionStore) Rename(ctx context.Context, oldName, newName string) error {
	if newName == "" {
		return &domain.ValidationError{Message: "new session name is required"}
	}
	query := fmt.Sprintf(`UPDATE %s SET name = $2, updated_at = now() WHERE name = $1`, r.tables.Sessions)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, oldName, newName)
	if err != nil {
		if IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      "session already exists: " + newName,
				ResourceType: "session",
				ResourceID:   newName,
			}
		}
		return fmt.Errorf("rename session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: "session not found: " + oldName}
	}
	return nil
}

// Delete removes a session by name.
func (r *SessionStore) Delete(ctx context.Context, name string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE name = $1`, r.tables.Sessions)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, name)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: "session not found: " + name}
	}
	return nil
}
