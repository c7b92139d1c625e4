package turn

import (
	"testing"
	"time"

	"tandem/internal/agent"
	"tandem/internal/event"
)

// Every internal kind must either map to a wire event or be one of the
// two kinds the coordinator consumes itself.
func TestMapEventTotal(t *testing.T) {
	call := &agent.ToolCall{ID: "t-1", Name: "read_file", Params: "{}"}

	tests := []struct {
		name     string
		ev       agent.StreamEvent
		wantType event.Type
		dropped  bool
	}{
		{"content delta", agent.StreamEvent{Kind: agent.KindContentDelta, Text: "hi"}, event.TypeContentChunk, false},
		{"thinking started", agent.StreamEvent{Kind: agent.KindThinkingStarted}, event.TypeThinkingStarted, false},
		{"thinking ended", agent.StreamEvent{Kind: agent.KindThinkingEnded, Duration: time.Second}, event.TypeThinkingEnded, false},
		{"tool detected", agent.StreamEvent{Kind: agent.KindToolDetected, Tool: call}, event.TypeToolDetected, false},
		{"batch started", agent.StreamEvent{Kind: agent.KindBatchStarted, Batch: []agent.ToolCall{*call}}, event.TypeBatchStarted, false},
		{"tool started", agent.StreamEvent{Kind: agent.KindToolStarted, Tool: call}, event.TypeToolStarted, false},
		{"tool completed", agent.StreamEvent{Kind: agent.KindToolCompleted, Tool: call, Success: true}, event.TypeToolCompleted, false},
		{"batch halted", agent.StreamEvent{Kind: agent.KindBatchHalted}, event.TypeBatchHalted, false},
		{"batch completed", agent.StreamEvent{Kind: agent.KindBatchCompleted}, event.TypeBatchCompleted, false},
		{"done", agent.StreamEvent{Kind: agent.KindDone}, "", true},
		{"error", agent.StreamEvent{Kind: agent.KindError}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, mapped := mapEvent("a1", "r1", tt.ev)
			if tt.dropped {
				if mapped {
					t.Fatalf("kind %d should be consumed by the coordinator, got %s", tt.ev.Kind, wire.Type)
				}
				return
			}
			if !mapped {
				t.Fatalf("kind %d has no wire image", tt.ev.Kind)
			}
			if wire.Type != tt.wantType {
				t.Errorf("wire type = %s, want %s", wire.Type, tt.wantType)
			}
			if wire.AgentID != "a1" || wire.RequestID != "r1" {
				t.Errorf("wire ids = %s/%s, want a1/r1", wire.AgentID, wire.RequestID)
			}
		})
	}
}

func TestMapEventBatchParams(t *testing.T) {
	ev := agent.StreamEvent{
		Kind: agent.KindBatchStarted,
		Batch: []agent.ToolCall{
			{ID: "t-1", Name: "write_file", Params: "{\n  \"path\":\t\"a\"\n}"},
		},
	}
	wire, mapped := mapEvent("a1", "r1", ev)
	if !mapped {
		t.Fatal("batch started not mapped")
	}
	batch := wire.Payload.(event.BatchStarted)
	if batch.Tools[0].Params != "{ \"path\": \"a\" }" {
		t.Errorf("params = %q, want whitespace collapsed", batch.Tools[0].Params)
	}
}
