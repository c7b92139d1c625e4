// Package turn serializes agent turns, translates engine streams into
// wire events, and guarantees a terminal event per request.
package turn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"tandem/internal/agent"
	"tandem/internal/confirm"
	"tandem/internal/domain"
	"tandem/internal/domain/models"
	"tandem/internal/domain/repositories"
	"tandem/internal/event"
	"tandem/internal/hub"
	"tandem/internal/toolcap"
)

// MaxMessagesLimit caps one GetMessages page.
const MaxMessagesLimit = 2000

// historyLimit bounds the transcript snapshot handed to engines.
const historyLimit = 2000

// TurnResult is the RPC response of a completed turn. RequestID is
// filled even on failed turns once an id has been assigned, so callers
// can report which request ended.
type TurnResult struct {
	RequestID string
	Content   string
	Halted    bool
}

// CancelResult reports the outcome of a cancel request. Reason is
// "not_found" when no in-flight turn matched; cancelling an already
// finished turn is not an error.
type CancelResult struct {
	Cancelled bool
	RequestID string
	Reason    string
}

// MessagesPage is one page of an agent transcript.
type MessagesPage struct {
	AgentID  string
	Total    int
	Offset   int
	Limit    int
	Messages []models.Message
}

// agentTurns is the per-agent serialization state: a single-occupancy
// turn slot and the in-flight cancellation signals.
type agentTurns struct {
	slot chan struct{}

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

func newAgentTurns() *agentTurns {
	return &agentTurns{
		slot:     make(chan struct{}, 1),
		inflight: make(map[string]context.CancelFunc),
	}
}

// register records the request's cancel func so a concurrent Cancel can
// reach a turn that is still queued for the slot.
func (s *agentTurns) register(requestID string, cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.inflight[requestID]; exists {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("request %q is already in flight", requestID),
			ResourceType: "turn",
			ResourceID:   requestID,
		}
	}
	s.inflight[requestID] = cancel
	return nil
}

func (s *agentTurns) unregister(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, requestID)
}

func (s *agentTurns) lookup(requestID string) (context.CancelFunc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.inflight[requestID]
	return cancel, ok
}

func (s *agentTurns) cancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.inflight {
		cancel()
	}
	return len(s.inflight)
}

// Config carries the coordinator's collaborators.
type Config struct {
	Hub      *hub.Hub
	Broker   *confirm.Broker
	Tools    *toolcap.Registry
	Agents   *agent.Registry
	Messages repositories.MessageStore
	Logger   *slog.Logger
}

// Coordinator runs at most one turn per agent at a time and owns the
// transcript writes those turns produce.
type Coordinator struct {
	hub      *hub.Hub
	broker   *confirm.Broker
	tools    *toolcap.Registry
	agents   *agent.Registry
	messages repositories.MessageStore
	logger   *slog.Logger

	mu     sync.Mutex
	states map[string]*agentTurns
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	return &Coordinator{
		hub:      cfg.Hub,
		broker:   cfg.Broker,
		tools:    cfg.Tools,
		agents:   cfg.Agents,
		messages: cfg.Messages,
		logger:   cfg.Logger.With("component", "turn"),
		states:   make(map[string]*agentTurns),
	}
}

func (c *Coordinator) state(agentID string) *agentTurns {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[agentID]
	if !ok {
		st = newAgentTurns()
		c.states[agentID] = st
	}
	return st
}

func (c *Coordinator) lookupState(agentID string) (*agentTurns, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[agentID]
	return st, ok
}

// RunTurn executes one turn for the agent, blocking until the turn
// reaches its terminal event. Exactly one of turn_completed or
// turn_cancelled is published for the request, and it is the last
// event carrying its request_id.
func (c *Coordinator) RunTurn(ctx context.Context, agentID, content, requestID string) (TurnResult, error) {
	inst, err := c.agents.Get(agentID)
	if err != nil {
		return TurnResult{}, err
	}
	if strings.TrimSpace(content) == "" {
		return TurnResult{}, &domain.ValidationError{Message: "content is required"}
	}
	if requestID == "" {
		requestID = uuid.New().String()
	}

	st := c.state(agentID)
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := st.register(requestID, cancel); err != nil {
		return TurnResult{}, err
	}
	defer st.unregister(requestID)

	// A cancel that lands while the turn is queued must terminate it
	// without a turn_started: clients never see a started turn that
	// produced nothing but a cancel.
	select {
	case st.slot <- struct{}{}:
	case <-turnCtx.Done():
		c.hub.Publish(agentID, event.NewTurnCancelled(agentID, requestID))
		return TurnResult{RequestID: requestID}, fmt.Errorf("turn %s: %w", requestID, domain.ErrTurnCancelled)
	}
	defer func() { <-st.slot }()

	if turnCtx.Err() != nil {
		c.hub.Publish(agentID, event.NewTurnCancelled(agentID, requestID))
		return TurnResult{RequestID: requestID}, fmt.Errorf("turn %s: %w", requestID, domain.ErrTurnCancelled)
	}

	return c.drive(turnCtx, inst, content, requestID)
}

// drive owns the turn from user-message append to terminal event. It
// runs holding the agent's turn slot.
func (c *Coordinator) drive(ctx context.Context, inst *agent.Instance, content, requestID string) (TurnResult, error) {
	agentID := inst.ID

	userMsg := &models.Message{Role: models.RoleUser, Content: content}
	if err := c.messages.Append(ctx, agentID, userMsg); err != nil {
		c.hub.Publish(agentID, event.NewTurnCancelled(agentID, requestID))
		return TurnResult{RequestID: requestID}, fmt.Errorf("append user message: %w", err)
	}

	history, _, err := c.messages.List(ctx, agentID, 0, historyLimit)
	if err != nil {
		c.logger.Warn("history snapshot unavailable", "agent_id", agentID, "error", err)
		history = nil
	}

	c.hub.Publish(agentID, event.NewTurnStarted(agentID, requestID))

	req := agent.Request{
		AgentID:   agentID,
		RequestID: requestID,
		Content:   content,
		System:    inst.SystemPrompt,
		History:   history,
		Cwd:       inst.Cwd,
		Confirmer: &turnConfirmer{
			broker:    c.broker,
			tools:     c.tools,
			agentID:   agentID,
			requestID: requestID,
			cwd:       inst.Cwd,
		},
	}
	events, err := inst.Engine().Stream(ctx, req)
	if err != nil {
		c.hub.Publish(agentID, event.NewTurnCancelled(agentID, requestID))
		return TurnResult{RequestID: requestID}, fmt.Errorf("start turn: %w", err)
	}

	var buf strings.Builder
	halted := false
	for {
		select {
		case <-ctx.Done():
			c.finishCancelled(ctx, agentID, requestID, buf.String())
			return TurnResult{RequestID: requestID}, fmt.Errorf("turn %s: %w", requestID, domain.ErrTurnCancelled)

		case ev, ok := <-events:
			if !ok {
				// A cancel can land in the same instant the stream ends;
				// the cancel wins so the caller's error matches the wire.
				if ctx.Err() != nil {
					c.finishCancelled(ctx, agentID, requestID, buf.String())
					return TurnResult{RequestID: requestID}, fmt.Errorf("turn %s: %w", requestID, domain.ErrTurnCancelled)
				}
				final := buf.String()
				c.appendAssistant(ctx, agentID, final, halted)
				c.hub.Publish(agentID, event.NewTurnCompleted(agentID, requestID, final, halted))
				return TurnResult{RequestID: requestID, Content: final, Halted: halted}, nil
			}

			switch ev.Kind {
			case agent.KindDone:
				halted = ev.Halted
				continue
			case agent.KindError:
				c.finishCancelled(ctx, agentID, requestID, buf.String())
				return TurnResult{RequestID: requestID}, fmt.Errorf("turn %s: %w", requestID, ev.Err)
			}

			if wire, mapped := mapEvent(agentID, requestID, ev); mapped {
				c.hub.Publish(agentID, wire)
			}
			switch ev.Kind {
			case agent.KindContentDelta:
				buf.WriteString(ev.Text)
			case agent.KindToolCompleted:
				c.appendToolResult(ctx, agentID, ev)
			}
		}
	}
}

// finishCancelled records whatever content accumulated and publishes
// the terminal cancel.
func (c *Coordinator) finishCancelled(ctx context.Context, agentID, requestID, partial string) {
	if partial != "" {
		c.appendAssistant(ctx, agentID, partial, true)
	}
	c.hub.Publish(agentID, event.NewTurnCancelled(agentID, requestID))
}

// appendAssistant persists the turn's assistant message. The transcript
// write happens before the terminal event so a GetMessages issued on
// seeing the terminal observes it. Store failures are logged, not
// surfaced: the turn's outcome is already decided.
func (c *Coordinator) appendAssistant(ctx context.Context, agentID, content string, halted bool) {
	if content == "" {
		return
	}
	msg := &models.Message{Role: models.RoleAssistant, Content: content}
	if halted {
		msg.Meta = map[string]any{"halted": true}
	}
	if err := c.messages.Append(context.WithoutCancel(ctx), agentID, msg); err != nil {
		c.logger.Error("append assistant message failed", "agent_id", agentID, "error", err)
	}
}

func (c *Coordinator) appendToolResult(ctx context.Context, agentID string, ev agent.StreamEvent) {
	content := ev.Output
	if !ev.Success {
		content = ev.ErrText
	}
	msg := &models.Message{
		Role:       models.RoleTool,
		Content:    content,
		ToolCallID: ev.Tool.ID,
		Meta:       map[string]any{"tool": ev.Tool.Name, "success": ev.Success},
	}
	if err := c.messages.Append(context.WithoutCancel(ctx), agentID, msg); err != nil {
		c.logger.Error("append tool result failed", "agent_id", agentID, "error", err)
	}
}

// Cancel marks an in-flight turn for cancellation. Unknown request IDs
// are not errors: the turn may have already reached its terminal.
func (c *Coordinator) Cancel(agentID, requestID string) CancelResult {
	st, ok := c.lookupState(agentID)
	if !ok {
		return CancelResult{Cancelled: false, RequestID: requestID, Reason: "not_found"}
	}
	cancel, ok := st.lookup(requestID)
	if !ok {
		return CancelResult{Cancelled: false, RequestID: requestID, Reason: "not_found"}
	}
	cancel()
	c.logger.Info("turn cancel requested", "agent_id", agentID, "request_id", requestID)
	return CancelResult{Cancelled: true, RequestID: requestID}
}

// Busy reports whether the agent has a turn running or queued.
func (c *Coordinator) Busy(agentID string) bool {
	st, ok := c.lookupState(agentID)
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.inflight) > 0
}

// CancelAll cancels every in-flight turn for the agent and forgets its
// serialization state. Part of the destroy cascade.
func (c *Coordinator) CancelAll(agentID string) int {
	c.mu.Lock()
	st, ok := c.states[agentID]
	delete(c.states, agentID)
	c.mu.Unlock()
	if !ok {
		return 0
	}
	n := st.cancelAll()
	if n > 0 {
		c.logger.Info("cancelled in-flight turns", "agent_id", agentID, "count", n)
	}
	return n
}

// GetMessages returns one page of the agent's transcript.
func (c *Coordinator) GetMessages(ctx context.Context, agentID string, offset, limit int) (MessagesPage, error) {
	if _, err := c.agents.Get(agentID); err != nil {
		return MessagesPage{}, err
	}
	if offset < 0 || limit < 1 || limit > MaxMessagesLimit {
		return MessagesPage{}, &domain.ValidationError{
			Message: fmt.Sprintf("offset must be >= 0 and limit within [1,%d]", MaxMessagesLimit),
		}
	}
	msgs, total, err := c.messages.List(ctx, agentID, offset, limit)
	if err != nil {
		return MessagesPage{}, fmt.Errorf("list messages: %w", err)
	}
	return MessagesPage{
		AgentID:  agentID,
		Total:    total,
		Offset:   offset,
		Limit:    limit,
		Messages: msgs,
	}, nil
}

// turnConfirmer gates batch tools through the broker. Policy lookup
// happens here so engines stay policy-free: tools that need no prompt
// are approved immediately.
type turnConfirmer struct {
	broker    *confirm.Broker
	tools     *toolcap.Registry
	agentID   string
	requestID string
	cwd       string
}

func (tc *turnConfirmer) RequestConfirmation(ctx context.Context, tool, cwd string) (confirm.Decision, error) {
	if !tc.tools.RequiresConfirmation(tool) {
		return confirm.DecisionAllowOnce, nil
	}
	if cwd == "" {
		cwd = tc.cwd
	}
	return tc.broker.Request(ctx, confirm.Spec{
		AgentID:   tc.agentID,
		RequestID: tc.requestID,
		Tool:      tool,
		Options:   tc.tools.Options(tool),
		Cwd:       cwd,
	})
}
