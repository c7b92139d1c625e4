package turn

import (
	"tandem/internal/agent"
	"tandem/internal/event"
)

// mapEvent translates one internal stream element into its wire event.
// The mapping is total over the internal kind set: every kind either
// has a wire image here or is consumed by the coordinator's control
// flow (KindDone sets the halted flag, KindError becomes the terminal
// turn_cancelled), in which case mapped is false.
func mapEvent(agentID, requestID string, ev agent.StreamEvent) (wire event.Event, mapped bool) {
	switch ev.Kind {
	case agent.KindContentDelta:
		return event.NewContentChunk(agentID, requestID, ev.Text), true
	case agent.KindThinkingStarted:
		return event.NewThinkingStarted(agentID, requestID), true
	case agent.KindThinkingEnded:
		return event.NewThinkingEnded(agentID, requestID, ev.Duration), true
	case agent.KindToolDetected:
		return event.NewToolDetected(agentID, requestID, ev.Tool.Name, ev.Tool.ID), true
	case agent.KindBatchStarted:
		tools := make([]event.BatchTool, len(ev.Batch))
		for i, tc := range ev.Batch {
			tools[i] = event.BatchTool{Name: tc.Name, ID: tc.ID, Params: tc.Params}
		}
		return event.NewBatchStarted(agentID, requestID, tools), true
	case agent.KindToolStarted:
		return event.NewToolStarted(agentID, requestID, ev.Tool.ID, ev.Tool.Name), true
	case agent.KindToolCompleted:
		return event.NewToolCompleted(agentID, requestID, ev.Tool.ID, ev.Success, ev.ErrText, ev.Output), true
	case agent.KindBatchHalted:
		return event.NewBatchHalted(agentID, requestID), true
	case agent.KindBatchCompleted:
		return event.NewBatchCompleted(agentID, requestID), true
	case agent.KindDone, agent.KindError:
		return event.Event{}, false
	}
	return event.Event{}, false
}
