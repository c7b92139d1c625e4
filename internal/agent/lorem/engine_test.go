package lorem

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tandem/internal/agent"
	"tandem/internal/confirm"
)

type confirmerFunc func(ctx context.Context, tool, cwd string) (confirm.Decision, error)

func (f confirmerFunc) RequestConfirmation(ctx context.Context, tool, cwd string) (confirm.Decision, error) {
	return f(ctx, tool, cwd)
}

// collect drains the stream until it closes.
func collect(t *testing.T, ch <-chan agent.StreamEvent) []agent.StreamEvent {
	t.Helper()
	var out []agent.StreamEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatal("stream did not close in time")
		}
	}
}

func countKind(events []agent.StreamEvent, kind agent.Kind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func firstIndex(events []agent.StreamEvent, kind agent.Kind) int {
	for i, ev := range events {
		if ev.Kind == kind {
			return i
		}
	}
	return -1
}

func TestSupports(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"lorem", true},
		{"lorem-fast", true},
		{"lorem-thinking-tools-test", true},
		{"gpt-4", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := Supports(tt.name); got != tt.want {
			t.Errorf("Supports(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}

	if _, err := New("claude"); err == nil {
		t.Error("New(claude) succeeded, want error")
	}
}

func TestStreamBasic(t *testing.T) {
	e, err := New("lorem-test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ch, err := e.Stream(context.Background(), agent.Request{AgentID: "a1", Content: "hi"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	events := collect(t, ch)

	if len(events) < 2 {
		t.Fatalf("got %d events, want at least a delta and a done", len(events))
	}
	if countKind(events, agent.KindContentDelta) == 0 {
		t.Error("no content deltas emitted")
	}
	last := events[len(events)-1]
	if last.Kind != agent.KindDone || last.Halted {
		t.Errorf("last event = %+v, want done with halted=false", last)
	}
	for _, kind := range []agent.Kind{agent.KindThinkingStarted, agent.KindToolDetected, agent.KindBatchStarted} {
		if countKind(events, kind) != 0 {
			t.Errorf("plain profile emitted kind %d", kind)
		}
	}
}

func TestStreamThinking(t *testing.T) {
	e, err := New("lorem-thinking-test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ch, err := e.Stream(context.Background(), agent.Request{AgentID: "a1"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	events := collect(t, ch)

	if events[0].Kind != agent.KindThinkingStarted {
		t.Errorf("first event kind = %d, want thinking started", events[0].Kind)
	}
	if events[1].Kind != agent.KindThinkingEnded {
		t.Errorf("second event kind = %d, want thinking ended", events[1].Kind)
	}
	if firstIndex(events, agent.KindContentDelta) < 2 {
		t.Error("content delta arrived before thinking finished")
	}
}

func TestStreamToolsAllowed(t *testing.T) {
	e, err := New("lorem-tools-test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var mu sync.Mutex
	var asked []string
	confirmer := confirmerFunc(func(ctx context.Context, tool, cwd string) (confirm.Decision, error) {
		mu.Lock()
		asked = append(asked, tool+"@"+cwd)
		mu.Unlock()
		return confirm.DecisionAllowOnce, nil
	})

	req := agent.Request{AgentID: "a1", Cwd: "/work", Confirmer: confirmer}
	ch, err := e.Stream(context.Background(), req)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	events := collect(t, ch)

	if got := countKind(events, agent.KindToolDetected); got != 2 {
		t.Errorf("tool detections = %d, want 2", got)
	}
	batchIdx := firstIndex(events, agent.KindBatchStarted)
	if batchIdx == -1 {
		t.Fatal("no batch started event")
	}
	if got := len(events[batchIdx].Batch); got != 2 {
		t.Errorf("batch size = %d, want 2", got)
	}
	if got := countKind(events, agent.KindToolCompleted); got != 2 {
		t.Errorf("tool completions = %d, want 2", got)
	}
	for _, ev := range events {
		if ev.Kind == agent.KindToolCompleted && !ev.Success {
			t.Errorf("tool %s failed: %s", ev.Tool.Name, ev.ErrText)
		}
	}
	if countKind(events, agent.KindBatchCompleted) != 1 || countKind(events, agent.KindBatchHalted) != 0 {
		t.Error("allowed batch should complete, not halt")
	}

	last := events[len(events)-1]
	if last.Kind != agent.KindDone || last.Halted {
		t.Errorf("last event = %+v, want done with halted=false", last)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"read_file@/work", "write_file@/work"}
	if len(asked) != len(want) {
		t.Fatalf("confirmer asked %v, want %v", asked, want)
	}
	for i := range want {
		if asked[i] != want[i] {
			t.Errorf("confirmer call %d = %q, want %q", i, asked[i], want[i])
		}
	}
}

func TestStreamToolsDenied(t *testing.T) {
	e, err := New("lorem-tools-test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	confirmer := confirmerFunc(func(ctx context.Context, tool, cwd string) (confirm.Decision, error) {
		if tool == "write_file" {
			return confirm.DecisionDeny, nil
		}
		return confirm.DecisionAllowOnce, nil
	})

	ch, err := e.Stream(context.Background(), agent.Request{AgentID: "a1", Confirmer: confirmer})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	events := collect(t, ch)

	var denied *agent.StreamEvent
	for i := range events {
		ev := &events[i]
		if ev.Kind == agent.KindToolCompleted && ev.Tool != nil && ev.Tool.Name == "write_file" {
			denied = ev
		}
	}
	if denied == nil {
		t.Fatal("no completion recorded for the denied tool")
	}
	if denied.Success || denied.ErrText == "" {
		t.Errorf("denied completion = %+v, want failure with error text", denied)
	}

	n := len(events)
	if n < 2 || events[n-2].Kind != agent.KindBatchHalted {
		t.Error("denial did not halt the batch")
	}
	if events[n-1].Kind != agent.KindDone || !events[n-1].Halted {
		t.Errorf("last event = %+v, want done with halted=true", events[n-1])
	}
}

func TestStreamCancellation(t *testing.T) {
	e, err := New("lorem")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := e.Stream(ctx, agent.Request{AgentID: "a1"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	select {
	case _, ok := <-ch:
		if !ok {
			t.Fatal("stream closed before producing anything")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no first event")
	}
	cancel()

	events := collect(t, ch)
	if countKind(events, agent.KindDone) != 0 {
		t.Error("cancelled stream still emitted a done event")
	}
}

func TestStreamConfirmerError(t *testing.T) {
	e, err := New("lorem-tools-test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	confirmer := confirmerFunc(func(ctx context.Context, tool, cwd string) (confirm.Decision, error) {
		return "", errors.New("broker shut down")
	})

	ch, err := e.Stream(context.Background(), agent.Request{AgentID: "a1", Confirmer: confirmer})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	events := collect(t, ch)

	if countKind(events, agent.KindDone) != 0 {
		t.Error("stream emitted done after confirmer failure")
	}
	if countKind(events, agent.KindToolStarted) == 0 {
		t.Error("expected the first tool to start before the failure")
	}
}

func TestStreamDelayProfiles(t *testing.T) {
	tests := []struct {
		name string
		want time.Duration
	}{
		{"lorem", 100 * time.Millisecond},
		{"lorem-fast", 33 * time.Millisecond},
		{"lorem-slow", 500 * time.Millisecond},
		{"lorem-test", 0},
		{"lorem-slow-test", 0},
	}

	for _, tt := range tests {
		if got := streamDelay(tt.name); got != tt.want {
			t.Errorf("streamDelay(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
