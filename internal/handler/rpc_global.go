package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"tandem/internal/agent"
	"tandem/internal/config"
	"tandem/internal/domain"
	"tandem/internal/domain/models"
)

type createAgentParams struct {
	AgentID      string `json:"agent_id"`
	Engine       string `json:"engine"`
	SystemPrompt string `json:"system_prompt"`
	Cwd          string `json:"cwd"`
}

func (p createAgentParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.AgentID, validation.Length(0, config.MaxAgentIDLength)),
		validation.Field(&p.SystemPrompt, validation.Length(0, config.MaxSystemPromptBytes)),
	)
}

func (h *RPCHandler) createAgent(r *http.Request, raw json.RawMessage) (any, error) {
	var p createAgentParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	inst, err := h.agents.Create(agent.CreateParams{
		ID:           p.AgentID,
		EngineName:   p.Engine,
		SystemPrompt: p.SystemPrompt,
		Cwd:          p.Cwd,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"agent_id": inst.ID}, nil
}

type destroyAgentParams struct {
	AgentID string `json:"agent_id"`
}

func (p destroyAgentParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.AgentID, validation.Required, validation.Length(1, config.MaxAgentIDLength)),
	)
}

func (h *RPCHandler) destroyAgent(r *http.Request, raw json.RawMessage) (any, error) {
	var p destroyAgentParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	// Cascade before deregistering: running turns are cancelled, pending
	// confirmations denied, and subscriber streams closed.
	cancelled := h.coord.CancelAll(p.AgentID)
	denied := h.broker.DenyAgent(p.AgentID)
	h.hub.DropAgent(p.AgentID)
	if _, err := h.agents.Remove(p.AgentID); err != nil {
		return nil, err
	}
	h.logger.Info("agent destroyed",
		"agent_id", p.AgentID,
		"cancelled_turns", cancelled,
		"denied_confirmations", denied)
	return map[string]any{"destroyed": true}, nil
}

type agentSummary struct {
	AgentID     string `json:"agent_id"`
	Engine      string `json:"engine"`
	Busy        bool   `json:"busy"`
	Subscribers int    `json:"subscribers"`
}

func (h *RPCHandler) listAgents(r *http.Request, raw json.RawMessage) (any, error) {
	instances := h.agents.List()
	agents := make([]agentSummary, 0, len(instances))
	for _, inst := range instances {
		agents = append(agents, agentSummary{
			AgentID:     inst.ID,
			Engine:      inst.EngineName,
			Busy:        h.coord.Busy(inst.ID),
			Subscribers: h.hub.SubscriberCount(inst.ID),
		})
	}
	return map[string]any{"agents": agents}, nil
}

func (h *RPCHandler) shutdownServer(r *http.Request, raw json.RawMessage) (any, error) {
	if h.shutdown == nil {
		return nil, errors.New("shutdown trigger not configured")
	}
	h.logger.Info("shutdown requested over rpc", "remote", r.RemoteAddr)
	// The trigger runs concurrently so this response still gets written;
	// graceful drain keeps the connection alive until then.
	go h.shutdown("shutdown_server rpc")
	return map[string]any{"ok": true}, nil
}

func (h *RPCHandler) listSessions(r *http.Request, raw json.RawMessage) (any, error) {
	infos, err := h.sessions.List(r.Context())
	if err != nil {
		return nil, err
	}
	if infos == nil {
		infos = []models.SessionInfo{}
	}
	return map[string]any{"sessions": infos}, nil
}

// sessionRefParams names a session and the agent whose transcript it
// snapshots or restores.
type sessionRefParams struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
}

func (p sessionRefParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.AgentID, validation.Required, validation.Length(1, config.MaxAgentIDLength)),
		validation.Field(&p.Name, validation.Required, validation.Length(1, config.MaxSessionNameLength)),
	)
}

func (h *RPCHandler) saveSession(r *http.Request, raw json.RawMessage) (any, error) {
	var p sessionRefParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if _, err := h.agents.Get(p.AgentID); err != nil {
		return nil, err
	}
	info, err := h.sessions.Save(r.Context(), p.AgentID, p.Name)
	if err != nil {
		return nil, err
	}
	return map[string]any{"session": info}, nil
}

func (h *RPCHandler) loadSession(r *http.Request, raw json.RawMessage) (any, error) {
	var p sessionRefParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if _, err := h.agents.Get(p.AgentID); err != nil {
		return nil, err
	}
	// Best-effort guard: replacing a transcript under a running turn
	// would interleave with its appends.
	if h.coord.Busy(p.AgentID) {
		return nil, &domain.ConflictError{
			Message:      fmt.Sprintf("agent %q has a turn in flight", p.AgentID),
			ResourceType: "agent",
			ResourceID:   p.AgentID,
		}
	}
	n, err := h.sessions.Load(r.Context(), p.AgentID, p.Name)
	if err != nil {
		return nil, err
	}
	return map[string]any{"agent_id": p.AgentID, "name": p.Name, "messages": n}, nil
}

type sessionPairParams struct {
	Name    string `json:"name"`
	NewName string `json:"new_name"`
}

func (p sessionPairParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required, validation.Length(1, config.MaxSessionNameLength)),
		validation.Field(&p.NewName, validation.Required, validation.Length(1, config.MaxSessionNameLength)),
	)
}

func (h *RPCHandler) cloneSession(r *http.Request, raw json.RawMessage) (any, error) {
	var p sessionPairParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := h.sessions.Clone(r.Context(), p.Name, p.NewName); err != nil {
		return nil, err
	}
	return map[string]any{"cloned": true}, nil
}

func (h *RPCHandler) renameSession(r *http.Request, raw json.RawMessage) (any, error) {
	var p sessionPairParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := h.sessions.Rename(r.Context(), p.Name, p.NewName); err != nil {
		return nil, err
	}
	return map[string]any{"renamed": true}, nil
}

type sessionNameParams struct {
	Name string `json:"name"`
}

func (p sessionNameParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required, validation.Length(1, config.MaxSessionNameLength)),
	)
}

func (h *RPCHandler) deleteSession(r *http.Request, raw json.RawMessage) (any, error) {
	var p sessionNameParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := h.sessions.Delete(r.Context(), p.Name); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": true}, nil
}
