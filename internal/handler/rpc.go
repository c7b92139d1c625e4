// Package handler implements the HTTP surface: the JSON-RPC control
// plane and the SSE event stream.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"tandem/internal/agent"
	"tandem/internal/confirm"
	"tandem/internal/domain"
	"tandem/internal/httputil"
	"tandem/internal/hub"
	"tandem/internal/service/session"
	"tandem/internal/turn"
)

// JSON-RPC 2.0 error codes. The -32000 range is reserved for
// server-defined errors.
const (
	codeParse          = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603

	codeNotFound      = -32001
	codeTurnCancelled = -32002
	codeConflict      = -32003
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError implements error so method handlers can return one directly
// when the default domain mapping is not specific enough.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *rpcError) Error() string { return e.Message }

// globalMethod handles a method on POST /rpc.
type globalMethod func(r *http.Request, params json.RawMessage) (any, error)

// agentMethod handles a method on POST /agent/{agent_id}/rpc. The
// instance is resolved before dispatch.
type agentMethod func(r *http.Request, inst *agent.Instance, params json.RawMessage) (any, error)

// RPCConfig carries the RPC handler's collaborators.
type RPCConfig struct {
	Agents      *agent.Registry
	Coordinator *turn.Coordinator
	Broker      *confirm.Broker
	Hub         *hub.Hub
	Sessions    *session.Service

	// Shutdown is invoked by the shutdown_server method after the
	// response has been written.
	Shutdown func(reason string)

	MaxBodyBytes int64
	Logger       *slog.Logger
}

// RPCHandler dispatches JSON-RPC 2.0 requests to the coordinator,
// broker, registry, and session service.
type RPCHandler struct {
	agents   *agent.Registry
	coord    *turn.Coordinator
	broker   *confirm.Broker
	hub      *hub.Hub
	sessions *session.Service
	shutdown func(reason string)
	maxBody  int64
	logger   *slog.Logger

	global       map[string]globalMethod
	agentMethods map[string]agentMethod
}

// NewRPCHandler creates an RPC handler and builds its dispatch tables.
func NewRPCHandler(cfg RPCConfig) *RPCHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &RPCHandler{
		agents:   cfg.Agents,
		coord:    cfg.Coordinator,
		broker:   cfg.Broker,
		hub:      cfg.Hub,
		sessions: cfg.Sessions,
		shutdown: cfg.Shutdown,
		maxBody:  cfg.MaxBodyBytes,
		logger:   cfg.Logger.With("component", "rpc"),
	}
	h.global = map[string]globalMethod{
		"create_agent":    h.createAgent,
		"destroy_agent":   h.destroyAgent,
		"list_agents":     h.listAgents,
		"shutdown_server": h.shutdownServer,
		"list_sessions":   h.listSessions,
		"save_session":    h.saveSession,
		"load_session":    h.loadSession,
		"clone_session":   h.cloneSession,
		"rename_session":  h.renameSession,
		"delete_session":  h.deleteSession,
	}
	h.agentMethods = map[string]agentMethod{
		"send":         h.send,
		"cancel":       h.cancel,
		"confirm":      h.confirm,
		"get_messages": h.getMessages,
	}
	return h
}

// ServeGlobal handles POST /rpc.
func (h *RPCHandler) ServeGlobal(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readRequest(w, r)
	if !ok {
		return
	}
	method, ok := h.global[req.Method]
	if !ok {
		h.writeError(w, req.ID, &rpcError{Code: codeMethodNotFound, Message: "method not found: " + req.Method})
		return
	}
	result, err := method(r, req.Params)
	h.writeOutcome(w, req.ID, req.Method, result, err)
}

// ServeAgent handles POST /agent/{agent_id}/rpc. The agent is resolved
// once here; methods receive the live instance.
func (h *RPCHandler) ServeAgent(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")
	if !agent.ValidID(agentID) {
		httputil.RespondError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	req, ok := h.readRequest(w, r)
	if !ok {
		return
	}
	method, ok := h.agentMethods[req.Method]
	if !ok {
		h.writeError(w, req.ID, &rpcError{Code: codeMethodNotFound, Message: "method not found: " + req.Method})
		return
	}
	inst, err := h.agents.Get(agentID)
	if err != nil {
		h.writeOutcome(w, req.ID, req.Method, nil, err)
		return
	}
	result, err := method(r, inst, req.Params)
	h.writeOutcome(w, req.ID, req.Method, result, err)
}

// readRequest decodes and validates the JSON-RPC envelope. On failure
// it writes the error response and returns ok=false.
func (h *RPCHandler) readRequest(w http.ResponseWriter, r *http.Request) (rpcRequest, bool) {
	var req rpcRequest
	if err := httputil.ParseJSONLimit(w, r, &req, h.maxBody); err != nil {
		h.writeError(w, nil, &rpcError{Code: codeParse, Message: "parse error", Data: err.Error()})
		return req, false
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		h.writeError(w, req.ID, &rpcError{Code: codeInvalidRequest, Message: "invalid request: jsonrpc must be \"2.0\" and method is required"})
		return req, false
	}
	return req, true
}

func (h *RPCHandler) writeOutcome(w http.ResponseWriter, id json.RawMessage, method string, result any, err error) {
	if err != nil {
		rpcErr := h.toRPCError(err)
		if rpcErr.Code == codeInternal {
			h.logger.Error("rpc method failed", "method", method, "error", err)
		} else {
			h.logger.Debug("rpc method rejected", "method", method, "code", rpcErr.Code, "error", err)
		}
		h.writeError(w, id, rpcErr)
		return
	}
	h.writeResponse(w, rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (h *RPCHandler) writeError(w http.ResponseWriter, id json.RawMessage, rpcErr *rpcError) {
	h.writeResponse(w, rpcResponse{JSONRPC: "2.0", ID: id, Error: rpcErr})
}

// writeResponse emits the envelope. Transport-level status is always
// 200; failures live in the error member.
func (h *RPCHandler) writeResponse(w http.ResponseWriter, resp rpcResponse) {
	if len(resp.ID) == 0 {
		resp.ID = json.RawMessage("null")
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// toRPCError maps domain errors onto JSON-RPC codes. Handlers may
// return a *rpcError directly to override the mapping.
func (h *RPCHandler) toRPCError(err error) *rpcError {
	var rpcErr *rpcError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	switch {
	case errors.Is(err, domain.ErrValidation):
		return &rpcError{Code: codeInvalidParams, Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return &rpcError{Code: codeNotFound, Message: err.Error()}
	case errors.Is(err, domain.ErrConflict):
		return &rpcError{Code: codeConflict, Message: err.Error()}
	case errors.Is(err, domain.ErrTurnCancelled):
		return &rpcError{Code: codeTurnCancelled, Message: err.Error()}
	default:
		return &rpcError{Code: codeInternal, Message: err.Error()}
	}
}

// decodeParams unmarshals params into dst and runs its ozzo validation
// when present. Absent params are allowed; methods whose params carry
// required fields reject the zero value through Validate.
func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, dst); err != nil {
			return &domain.ValidationError{Message: "malformed params: " + err.Error()}
		}
	}
	if v, ok := dst.(validation.Validatable); ok {
		if err := v.Validate(); err != nil {
			return &domain.ValidationError{Message: err.Error()}
		}
	}
	return nil
}
