// Package event defines the canonical stream event model shared by the
// hub, the turn coordinator, the confirmation broker, and the SSE
// endpoint. The set of event types is closed: everything the server
// publishes is one of the constants below, and the wire image of every
// event is a flat JSON object.
package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type identifies one kind of stream event.
type Type string

// Stream event type constants
const (
	TypePing                  Type = "ping"                   // Heartbeat, carries no seq
	TypeTurnStarted           Type = "turn_started"           // Turn acquired the agent and began
	TypeTurnCompleted         Type = "turn_completed"         // Turn finished (terminal)
	TypeTurnCancelled         Type = "turn_cancelled"         // Turn cancelled or failed (terminal)
	TypeContentChunk          Type = "content_chunk"          // Incremental assistant text
	TypeThinkingStarted       Type = "thinking_started"       // Reasoning block opened
	TypeThinkingEnded         Type = "thinking_ended"         // Reasoning block closed
	TypeToolDetected          Type = "tool_detected"          // Tool call noticed mid-stream
	TypeBatchStarted          Type = "batch_started"          // Tool batch about to execute
	TypeToolStarted           Type = "tool_started"           // One tool began executing
	TypeToolCompleted         Type = "tool_completed"         // One tool finished
	TypeBatchHalted           Type = "batch_halted"           // Batch stopped early
	TypeBatchCompleted        Type = "batch_completed"        // Batch ran to completion
	TypeConfirmationRequested Type = "confirmation_requested" // Tool approval prompt opened
	TypeConfirmationResolved  Type = "confirmation_resolved"  // Tool approval prompt settled
	TypeStreamError           Type = "stream_error"           // Synthesized client-side on transport failure
)

// Terminal reports whether t ends the event window of a request.
func (t Type) Terminal() bool {
	return t == TypeTurnCompleted || t == TypeTurnCancelled
}

// Payload carries the type-specific fields of an event. Implementations
// form a closed set; their JSON fields are flattened into the top level
// of the event object on the wire.
type Payload interface {
	payload()
}

// Event is one element of an agent's stream.
//
// Wire image (flat JSON object):
//
//	{"type": "content_chunk", "agent_id": "a1", "request_id": "r1", "seq": 7, "text": "hi"}
//
// Seq is stamped by the hub when the event is published; constructors
// leave it zero and a zero seq is omitted from the wire image. Ping
// events never carry a seq.
type Event struct {
	Type      Type
	AgentID   string
	RequestID string
	Seq       uint64
	Payload   Payload
}

// TurnCompleted carries the final accumulated assistant content.
type TurnCompleted struct {
	Content string `json:"content"`
	Halted  bool   `json:"halted"`
}

// ContentChunk carries one increment of assistant text.
type ContentChunk struct {
	Text string `json:"text"`
}

// ThinkingEnded reports how long the reasoning block ran.
type ThinkingEnded struct {
	DurationMS int64 `json:"duration_ms"`
}

// ToolDetected announces a tool call noticed while streaming.
type ToolDetected struct {
	Name   string `json:"name"`
	ToolID string `json:"tool_id"`
}

// BatchTool describes one tool call within a batch_started event.
// Params is rendered single-line: runs of whitespace are collapsed.
type BatchTool struct {
	Name   string `json:"name"`
	ID     string `json:"id"`
	Params string `json:"params"`
}

// BatchStarted lists the tool calls about to execute.
type BatchStarted struct {
	Tools []BatchTool `json:"tools"`
}

// ToolStarted marks the start of one tool execution.
type ToolStarted struct {
	ToolID string `json:"tool_id"`
	Name   string `json:"name"`
}

// ToolCompleted reports the outcome of one tool execution.
type ToolCompleted struct {
	ToolID  string `json:"tool_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Output  string `json:"output,omitempty"`
}

// ConfirmationRequested opens a tool approval prompt.
type ConfirmationRequested struct {
	ConfirmID string   `json:"confirm_id"`
	Tool      string   `json:"tool"`
	Options   []string `json:"options"`
	Cwd       string   `json:"cwd,omitempty"`
	TimeoutS  int      `json:"timeout_s,omitempty"`
}

// ConfirmationResolved settles a tool approval prompt.
type ConfirmationResolved struct {
	ConfirmID  string `json:"confirm_id"`
	Decision   string `json:"decision"`
	ResolvedAt string `json:"resolved_at"`
}

// StreamError is synthesized by clients when a stream dies; the server
// never publishes it through the hub.
type StreamError struct {
	Error string `json:"error"`
}

func (TurnCompleted) payload()         {}
func (ContentChunk) payload()          {}
func (ThinkingEnded) payload()         {}
func (ToolDetected) payload()          {}
func (BatchStarted) payload()          {}
func (ToolStarted) payload()           {}
func (ToolCompleted) payload()         {}
func (ConfirmationRequested) payload() {}
func (ConfirmationResolved) payload()  {}
func (StreamError) payload()           {}

// Constructors. Seq is left zero for the hub to stamp.

func NewPing(agentID string) Event {
	return Event{Type: TypePing, AgentID: agentID}
}

func NewTurnStarted(agentID, requestID string) Event {
	return Event{Type: TypeTurnStarted, AgentID: agentID, RequestID: requestID}
}

func NewTurnCompleted(agentID, requestID, content string, halted bool) Event {
	return Event{
		Type:      TypeTurnCompleted,
		AgentID:   agentID,
		RequestID: requestID,
		Payload:   TurnCompleted{Content: content, Halted: halted},
	}
}

func NewTurnCancelled(agentID, requestID string) Event {
	return Event{Type: TypeTurnCancelled, AgentID: agentID, RequestID: requestID}
}

func NewContentChunk(agentID, requestID, text string) Event {
	return Event{
		Type:      TypeContentChunk,
		AgentID:   agentID,
		RequestID: requestID,
		Payload:   ContentChunk{Text: text},
	}
}

func NewThinkingStarted(agentID, requestID string) Event {
	return Event{Type: TypeThinkingStarted, AgentID: agentID, RequestID: requestID}
}

func NewThinkingEnded(agentID, requestID string, d time.Duration) Event {
	return Event{
		Type:      TypeThinkingEnded,
		AgentID:   agentID,
		RequestID: requestID,
		Payload:   ThinkingEnded{DurationMS: d.Milliseconds()},
	}
}

func NewToolDetected(agentID, requestID, name, toolID string) Event {
	return Event{
		Type:      TypeToolDetected,
		AgentID:   agentID,
		RequestID: requestID,
		Payload:   ToolDetected{Name: name, ToolID: toolID},
	}
}

// NewBatchStarted normalizes each tool's params for single-line display.
func NewBatchStarted(agentID, requestID string, tools []BatchTool) Event {
	normalized := make([]BatchTool, len(tools))
	for i, t := range tools {
		t.Params = NormalizeParams(t.Params)
		normalized[i] = t
	}
	return Event{
		Type:      TypeBatchStarted,
		AgentID:   agentID,
		RequestID: requestID,
		Payload:   BatchStarted{Tools: normalized},
	}
}

func NewToolStarted(agentID, requestID, toolID, name string) Event {
	return Event{
		Type:      TypeToolStarted,
		AgentID:   agentID,
		RequestID: requestID,
		Payload:   ToolStarted{ToolID: toolID, Name: name},
	}
}

func NewToolCompleted(agentID, requestID, toolID string, success bool, errMsg, output string) Event {
	return Event{
		Type:      TypeToolCompleted,
		AgentID:   agentID,
		RequestID: requestID,
		Payload:   ToolCompleted{ToolID: toolID, Success: success, Error: errMsg, Output: output},
	}
}

func NewBatchHalted(agentID, requestID string) Event {
	return Event{Type: TypeBatchHalted, AgentID: agentID, RequestID: requestID}
}

func NewBatchCompleted(agentID, requestID string) Event {
	return Event{Type: TypeBatchCompleted, AgentID: agentID, RequestID: requestID}
}

func NewConfirmationRequested(agentID, requestID, confirmID, tool string, options []string, cwd string, timeoutS int) Event {
	return Event{
		Type:      TypeConfirmationRequested,
		AgentID:   agentID,
		RequestID: requestID,
		Payload: ConfirmationRequested{
			ConfirmID: confirmID,
			Tool:      tool,
			Options:   options,
			Cwd:       cwd,
			TimeoutS:  timeoutS,
		},
	}
}

func NewConfirmationResolved(agentID, requestID, confirmID, decision string, resolvedAt time.Time) Event {
	return Event{
		Type:      TypeConfirmationResolved,
		AgentID:   agentID,
		RequestID: requestID,
		Payload: ConfirmationResolved{
			ConfirmID:  confirmID,
			Decision:   decision,
			ResolvedAt: resolvedAt.UTC().Format(time.RFC3339),
		},
	}
}

func NewStreamError(agentID, errMsg string) Event {
	return Event{Type: TypeStreamError, AgentID: agentID, Payload: StreamError{Error: errMsg}}
}

// MarshalJSON produces the flat wire image: common fields plus the
// payload's fields at the top level.
func (e Event) MarshalJSON() ([]byte, error) {
	obj := map[string]any{
		"type":     e.Type,
		"agent_id": e.AgentID,
	}
	if e.RequestID != "" {
		obj["request_id"] = e.RequestID
	}
	if e.Seq > 0 {
		obj["seq"] = e.Seq
	}
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", e.Type, err)
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("failed to flatten %s payload: %w", e.Type, err)
		}
		for k, v := range fields {
			obj[k] = v
		}
	}
	return json.Marshal(obj)
}

// UnmarshalJSON decodes the flat wire image back into a typed event.
// Unknown types are rejected.
func (e *Event) UnmarshalJSON(data []byte) error {
	var head struct {
		Type      Type   `json:"type"`
		AgentID   string `json:"agent_id"`
		RequestID string `json:"request_id"`
		Seq       uint64 `json:"seq"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("failed to decode event envelope: %w", err)
	}
	e.Type = head.Type
	e.AgentID = head.AgentID
	e.RequestID = head.RequestID
	e.Seq = head.Seq
	e.Payload = nil

	switch head.Type {
	case TypePing, TypeTurnStarted, TypeTurnCancelled, TypeThinkingStarted, TypeBatchHalted, TypeBatchCompleted:
		return nil
	case TypeTurnCompleted:
		return decodePayload(data, e, &TurnCompleted{})
	case TypeContentChunk:
		return decodePayload(data, e, &ContentChunk{})
	case TypeThinkingEnded:
		return decodePayload(data, e, &ThinkingEnded{})
	case TypeToolDetected:
		return decodePayload(data, e, &ToolDetected{})
	case TypeBatchStarted:
		return decodePayload(data, e, &BatchStarted{})
	case TypeToolStarted:
		return decodePayload(data, e, &ToolStarted{})
	case TypeToolCompleted:
		return decodePayload(data, e, &ToolCompleted{})
	case TypeConfirmationRequested:
		return decodePayload(data, e, &ConfirmationRequested{})
	case TypeConfirmationResolved:
		return decodePayload(data, e, &ConfirmationResolved{})
	case TypeStreamError:
		return decodePayload(data, e, &StreamError{})
	default:
		return fmt.Errorf("unknown event type %q", head.Type)
	}
}

func decodePayload[P Payload](data []byte, e *Event, p *P) error {
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	e.Payload = *p
	return nil
}

// NormalizeParams collapses all whitespace runs to single spaces so tool
// parameters render on one line in batch_started events.
func NormalizeParams(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
