// Package lorem implements a scripted demo engine over golorem. It
// exercises the full turn surface without a real model behind it:
// substrings in the profile name select pacing, an optional thinking
// block, and a confirmation-gated tool batch.
package lorem

import (
	"context"
	"fmt"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"
	"github.com/google/uuid"

	"tandem/internal/agent"
	"tandem/internal/confirm"
)

// Supports reports whether name selects this engine family.
func Supports(name string) bool {
	return strings.HasPrefix(name, "lorem")
}

// Engine generates lorem ipsum turns according to its profile name.
// Profiles: "lorem" (default pacing), "lorem-fast", "lorem-slow",
// "lorem-thinking", "lorem-tools". Substrings combine, so
// "lorem-thinking-tools-test" is valid; "test" removes all delays.
type Engine struct {
	name      string
	generator *loremgen.Lorem
}

// New creates an engine for the given profile name.
func New(name string) (*Engine, error) {
	if !Supports(name) {
		return nil, fmt.Errorf("lorem engine does not support %q", name)
	}
	return &Engine{
		name:      name,
		generator: loremgen.New(),
	}, nil
}

// Factory adapts New to the registry's factory signature.
func Factory() agent.EngineFactory {
	return func(name string) (agent.Engine, error) {
		return New(name)
	}
}

func (e *Engine) Name() string {
	return e.name
}

// Stream runs one scripted turn. The returned channel closes after the
// done element; on ctx cancellation the script stops early without one.
func (e *Engine) Stream(ctx context.Context, req agent.Request) (<-chan agent.StreamEvent, error) {
	events := make(chan agent.StreamEvent, 10)
	go e.run(ctx, req, events)
	return events, nil
}

func (e *Engine) run(ctx context.Context, req agent.Request, events chan<- agent.StreamEvent) {
	defer close(events)

	delay := streamDelay(e.name)
	withTools := strings.Contains(e.name, "tools")

	if strings.Contains(e.name, "thinking") {
		if !e.think(ctx, events, delay) {
			return
		}
	}

	sentences := 3
	if withTools {
		sentences = 1
	}
	if !e.speak(ctx, events, delay, sentences) {
		return
	}

	halted := false
	if withTools {
		h, ok := e.runToolBatch(ctx, req, events, delay)
		if !ok {
			return
		}
		halted = h
		if !halted && !e.speak(ctx, events, delay, 1) {
			return
		}
	}

	send(ctx, events, agent.StreamEvent{Kind: agent.KindDone, Halted: halted})
}

// think simulates a reasoning pause. Thinking content never reaches
// subscribers, so only the boundaries are emitted.
func (e *Engine) think(ctx context.Context, events chan<- agent.StreamEvent, delay time.Duration) bool {
	if !send(ctx, events, agent.StreamEvent{Kind: agent.KindThinkingStarted}) {
		return false
	}
	started := time.Now()
	for range strings.Fields(e.generator.Sentence(8, 12)) {
		if !pause(ctx, delay) {
			return false
		}
	}
	return send(ctx, events, agent.StreamEvent{
		Kind:     agent.KindThinkingEnded,
		Duration: time.Since(started),
	})
}

// speak streams the given number of sentences word by word.
func (e *Engine) speak(ctx context.Context, events chan<- agent.StreamEvent, delay time.Duration, sentences int) bool {
	for i := 0; i < sentences; i++ {
		for _, word := range strings.Fields(e.generator.Sentence(5, 15)) {
			ev := agent.StreamEvent{Kind: agent.KindContentDelta, Text: word + " "}
			if !send(ctx, events, ev) {
				return false
			}
			if !pause(ctx, delay) {
				return false
			}
		}
	}
	return true
}

// runToolBatch emits a two-tool batch: a read followed by a write. The
// write is subject to confirmation; a denial halts the batch. Returns
// (halted, ok) where ok is false when ctx ended the turn.
func (e *Engine) runToolBatch(ctx context.Context, req agent.Request, events chan<- agent.StreamEvent, delay time.Duration) (bool, bool) {
	target := "notes/draft.md"
	batch := []agent.ToolCall{
		{
			ID:     uuid.New().String(),
			Name:   "read_file",
			Params: fmt.Sprintf(`{"path":%q}`, target),
		},
		{
			ID:     uuid.New().String(),
			Name:   "write_file",
			Params: fmt.Sprintf(`{"path":%q,"content":%q}`, target, e.generator.Sentence(4, 8)),
		},
	}

	for i := range batch {
		ev := agent.StreamEvent{Kind: agent.KindToolDetected, Tool: &batch[i]}
		if !send(ctx, events, ev) {
			return false, false
		}
		if !pause(ctx, delay) {
			return false, false
		}
	}
	if !send(ctx, events, agent.StreamEvent{Kind: agent.KindBatchStarted, Batch: batch}) {
		return false, false
	}

	for i := range batch {
		tc := &batch[i]
		if !send(ctx, events, agent.StreamEvent{Kind: agent.KindToolStarted, Tool: tc}) {
			return false, false
		}

		decision := confirm.DecisionAllowOnce
		if req.Confirmer != nil {
			d, err := req.Confirmer.RequestConfirmation(ctx, tc.Name, req.Cwd)
			if err != nil {
				return false, false
			}
			decision = d
		}
		if !decision.Allowed() {
			denied := agent.StreamEvent{
				Kind:    agent.KindToolCompleted,
				Tool:    tc,
				Success: false,
				ErrText: "denied by user",
			}
			if !send(ctx, events, denied) {
				return false, false
			}
			if !send(ctx, events, agent.StreamEvent{Kind: agent.KindBatchHalted}) {
				return false, false
			}
			return true, true
		}

		if !pause(ctx, delay) {
			return false, false
		}
		done := agent.StreamEvent{
			Kind:    agent.KindToolCompleted,
			Tool:    tc,
			Success: true,
			Output:  e.toolOutput(tc.Name, target),
		}
		if !send(ctx, events, done) {
			return false, false
		}
	}

	if !send(ctx, events, agent.StreamEvent{Kind: agent.KindBatchCompleted}) {
		return false, false
	}
	return false, true
}

func (e *Engine) toolOutput(tool, target string) string {
	if tool == "write_file" {
		return fmt.Sprintf("wrote %s", target)
	}
	return e.generator.Sentence(6, 10)
}

// send delivers ev unless ctx ends first.
func send(ctx context.Context, events chan<- agent.StreamEvent, ev agent.StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// pause waits for one word delay, honoring cancellation.
func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func streamDelay(name string) time.Duration {
	switch {
	case strings.Contains(name, "test"):
		return 0
	case strings.Contains(name, "slow"):
		return 500 * time.Millisecond
	case strings.Contains(name, "fast"):
		return 33 * time.Millisecond
	default:
		return 100 * time.Millisecond
	}
}
