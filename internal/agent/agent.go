// Package agent defines the runtime surface the turn coordinator
// drives: an Engine streams the internal elements of one turn, and a
// Registry tracks the live agents hosted by the server.
package agent

import (
	"context"
	"time"

	"tandem/internal/confirm"
	"tandem/internal/domain/models"
)

// Kind enumerates the internal stream element kinds. The set is closed;
// the coordinator's wire mapping is exhaustive over it.
type Kind int

const (
	KindContentDelta Kind = iota
	KindThinkingStarted
	KindThinkingEnded
	KindToolDetected
	KindBatchStarted
	KindToolStarted
	KindToolCompleted
	KindBatchHalted
	KindBatchCompleted
	KindDone
	KindError
)

// ToolCall describes one tool invocation produced by an engine.
type ToolCall struct {
	ID     string
	Name   string
	Params string
}

// StreamEvent is one internal element of a running turn. Fields beyond
// Kind are populated per kind.
type StreamEvent struct {
	Kind     Kind
	Text     string        // KindContentDelta
	Duration time.Duration // KindThinkingEnded
	Tool     *ToolCall     // KindToolDetected, KindToolStarted, KindToolCompleted
	Batch    []ToolCall    // KindBatchStarted
	Success  bool          // KindToolCompleted
	Output   string        // KindToolCompleted
	ErrText  string        // KindToolCompleted
	Halted   bool          // KindDone
	Err      error         // KindError
}

// Confirmer asks for approval before a tool runs. Implementations
// decide whether the tool needs a prompt at all; tools that do not are
// approved immediately.
type Confirmer interface {
	RequestConfirmation(ctx context.Context, tool, cwd string) (confirm.Decision, error)
}

// Request is the input of one turn.
type Request struct {
	AgentID   string
	RequestID string
	Content   string
	System    string
	History   []models.Message
	Cwd       string
	Confirmer Confirmer
}

// Engine produces the stream of one turn. Stream returns a channel that
// closes when the turn is done; blocking producers run on their own
// goroutine and stop when ctx is cancelled.
type Engine interface {
	Name() string
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}
