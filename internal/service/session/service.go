// Package session manages named transcript snapshots: saving an
// agent's conversation under a name and restoring it later, possibly
// into a different agent.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"tandem/internal/domain"
	"tandem/internal/domain/models"
	"tandem/internal/domain/repositories"
)

// snapshotPage sizes the transcript reads behind Save.
const snapshotPage = 500

// nameRe is the session name grammar, shared with agent IDs.
var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Config carries the service's collaborators. Tx is optional: stores
// whose Replace is not atomic on its own (Postgres) supply one.
type Config struct {
	Sessions repositories.SessionStore
	Messages repositories.MessageStore
	Tx       repositories.TransactionManager
	Logger   *slog.Logger
}

// Service implements the session operations over the stores.
type Service struct {
	sessions repositories.SessionStore
	messages repositories.MessageStore
	tx       repositories.TransactionManager
	logger   *slog.Logger
}

// New creates a session service.
func New(cfg Config) *Service {
	return &Service{
		sessions: cfg.Sessions,
		messages: cfg.Messages,
		tx:       cfg.Tx,
		logger:   cfg.Logger.With("component", "session"),
	}
}

// List returns all saved sessions, most recently updated first.
func (s *Service) List(ctx context.Context) ([]models.SessionInfo, error) {
	return s.sessions.List(ctx)
}

// Save snapshots the agent's current transcript under name. An
// existing session of the same name is overwritten.
func (s *Service) Save(ctx context.Context, agentID, name string) (*models.SessionInfo, error) {
	if err := s.validateName(name); err != nil {
		return nil, err
	}
	if agentID == "" {
		return nil, &domain.ValidationError{Message: "agent_id is required"}
	}

	msgs, err := s.fullTranscript(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("snapshot transcript: %w", err)
	}

	sess := &models.Session{Name: name, AgentID: agentID, Messages: msgs}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.logger.Info("session saved", "name", name, "agent_id", agentID, "messages", len(msgs))
	return &models.SessionInfo{
		Name:         sess.Name,
		AgentID:      sess.AgentID,
		MessageCount: len(msgs),
		CreatedAt:    sess.CreatedAt,
		UpdatedAt:    sess.UpdatedAt,
	}, nil
}

// Load replaces the agent's transcript with the named snapshot and
// returns the number of restored messages. The replace runs in one
// transaction when the store needs it.
func (s *Service) Load(ctx context.Context, agentID, name string) (int, error) {
	if err := s.validateName(name); err != nil {
		return 0, err
	}
	if agentID == "" {
		return 0, &domain.ValidationError{Message: "agent_id is required"}
	}

	sess, err := s.sessions.Get(ctx, name)
	if err != nil {
		return 0, err
	}

	apply := func(ctx context.Context) error {
		return s.messages.Replace(ctx, agentID, sess.Messages)
	}
	if s.tx != nil {
		err = s.tx.ExecTx(ctx, apply)
	} else {
		err = apply(ctx)
	}
	if err != nil {
		return 0, fmt.Errorf("load session: %w", err)
	}

	s.logger.Info("session loaded", "name", name, "agent_id", agentID, "messages", len(sess.Messages))
	return len(sess.Messages), nil
}

// Clone copies an existing session under a new name. The new name must
// be free.
func (s *Service) Clone(ctx context.Context, name, newName string) error {
	if err := s.validateName(name); err != nil {
		return err
	}
	if err := s.validateName(newName); err != nil {
		return err
	}

	if _, err := s.sessions.Get(ctx, newName); err == nil {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("session %q already exists", newName),
			ResourceType: "session",
			ResourceID:   newName,
		}
	}

	sess, err := s.sessions.Get(ctx, name)
	if err != nil {
		return err
	}

	clone := &models.Session{Name: newName, AgentID: sess.AgentID, Messages: sess.Messages}
	if err := s.sessions.Save(ctx, clone); err != nil {
		return fmt.Errorf("clone session: %w", err)
	}

	s.logger.Info("session cloned", "from", name, "to", newName)
	return nil
}

// Rename changes a session's name.
func (s *Service) Rename(ctx context.Context, name, newName string) error {
	if err := s.validateName(name); err != nil {
		return err
	}
	if err := s.validateName(newName); err != nil {
		return err
	}
	if err := s.sessions.Rename(ctx, name, newName); err != nil {
		return err
	}
	s.logger.Info("session renamed", "from", name, "to", newName)
	return nil
}

// Delete removes a session.
func (s *Service) Delete(ctx context.Context, name string) error {
	if err := s.validateName(name); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, name); err != nil {
		return err
	}
	s.logger.Info("session deleted", "name", name)
	return nil
}

// fullTranscript pages through the whole transcript.
func (s *Service) fullTranscript(ctx context.Context, agentID string) ([]models.Message, error) {
	var all []models.Message
	for offset := 0; ; offset += snapshotPage {
		page, total, err := s.messages.List(ctx, agentID, offset, snapshotPage)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) == 0 || len(all) >= total {
			return all, nil
		}
	}
}

func (s *Service) validateName(name string) error {
	err := validation.Validate(name,
		validation.Required,
		validation.Length(1, 64),
		validation.Match(nameRe),
	)
	if err != nil {
		return &domain.ValidationError{Message: fmt.Sprintf("invalid session name: %v", err)}
	}
	return nil
}
