// Package postgres implements the store interfaces on PostgreSQL via
// pgx. Table names are prefixed per deployment; the SQL is interpolated
// with the prefixed names before reaching the database, so each prefix
// gets its own statements.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tandem/internal/domain"
	"tandem/internal/domain/models"
)

// MessageStore implements repositories.MessageStore on Postgres.
type MessageStore struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewMessageStore creates a Postgres-backed transcript store.
func NewMessageStore(cfg RepositoryConfig) *MessageStore {
	return &MessageStore{
		pool:   cfg.Pool,
		tables: cfg.Tables,
		logger: cfg.Logger,
	}
}

// Append adds the message with the next index for the agent. The index
// subquery runs inside the insert statement, so concurrent appends for
// one agent cannot collide on (agent_id, idx).
func (r *MessageStore) Append(ctx context.Context, agentID string, msg *models.Message) error {
	if agentID == "" {
		return &domain.ValidationError{Message: "agent_id is required"}
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (agent_id, idx, role, content, tool_call_id, meta, created_at)
		VALUES ($1, (SELECT COALESCE(MAX(idx) + 1, 0) FROM %s WHERE agent_id = $1), $2, $3, $4, $5, $6)
		RETURNING idx`, r.tables.Messages, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		agentID, msg.Role, msg.Content, nullIfEmpty(msg.ToolCallID), msg.Meta, createdAt,
	).Scan(&msg.Index)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	msg.CreatedAt = createdAt
	return nil
}

// List returns one transcript page in index order plus the total count.
func (r *MessageStore) List(ctx context.Context, agentID string, offset, limit int) ([]models.Message, int, error) {
	if offset < 0 || limit < 1 {
		return nil, 0, &domain.ValidationError{Message: "offset must be >= 0 and limit >= 1"}
	}
	executor := GetExecutor(ctx, r.pool)

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE agent_id = $1`, r.tables.Messages)
	if err := executor.QueryRow(ctx, countQuery, agentID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	pageQuery := fmt.Sprintf(`
		SELECT idx, role, content, tool_call_id, meta, created_at
		FROM %s
		WHERE agent_id = $1
		ORDER BY idx
		LIMIT $2 OFFSET $3`, r.tables.Messages)

	rows, err := executor.Query(ctx, pageQuery, agentID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]models.Message, 0, limit)
	for rows.Next() {
		var m models.Message
		var toolCallID *string
		if err := rows.Scan(&m.Index, &m.Role, &m.Content, &toolCallID, &m.Meta, &m.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan message: %w", err)
		}
		if toolCallID != nil {
			m.ToolCallID = *toolCallID
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, total, nil
}

// Replace swaps the agent's whole transcript, reindexing from zero.
// Callers wanting atomicity run it under the transaction manager.
func (r *MessageStore) Replace(ctx context.Context, agentID string, msgs []models.Message) error {
	if agentID == "" {
		return &domain.ValidationError{Message: "agent_id is required"}
	}
	executor := GetExecutor(ctx, r.pool)

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE agent_id = $1`, r.tables.Messages)
	if _, err := executor.Exec(ctx, deleteQuery, agentID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (agent_id, idx, role, content, tool_call_id, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, r.tables.Messages)

	now := time.Now().UTC()
	for i, m := range msgs {
		createdAt := m.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := executor.Exec(ctx, insertQuery,
			agentID, i, m.Role, m.Content, nullIfEmpty(m.ToolCallID), m.Meta, createdAt); err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}
	return nil
}

// Clear removes the agent's transcript.
func (r *MessageStore) Clear(ctx context.Context, agentID string) error {
	executor := GetExecutor(ctx, r.pool)
	query := fmt.Sprintf(`DELETE FROM %s WHERE agent_id = $1`, r.tables.Messages)
	if _, err := executor.Exec(ctx, query, agentID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
