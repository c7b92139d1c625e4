package confirm

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tandem/internal/domain"
	"tandem/internal/event"
	"tandem/internal/hub"
)

func newTestBroker(t *testing.T) (*Broker, *hub.Hub) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	h := hub.New(hub.Config{Logger: logger})
	return New(h, Config{Logger: logger}), h
}

func nextEvent(t *testing.T, sub *hub.Subscriber) event.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscriber closed while waiting for event")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return event.Event{}
}

func TestRequestAndSubmit(t *testing.T) {
	b, h := newTestBroker(t)
	sub := h.SubscribeBuffered("a1", 64)
	defer h.Unsubscribe(sub)

	type result struct {
		decision Decision
		err      error
	}
	results := make(chan result, 1)
	go func() {
		d, err := b.Request(context.Background(), Spec{
			AgentID:   "a1",
			RequestID: "r1",
			Tool:      "write_file",
			Options:   WriteOptions,
			Cwd:       "/tmp/work",
		})
		results <- result{d, err}
	}()

	requested := nextEvent(t, sub)
	if requested.Type != event.TypeConfirmationRequested {
		t.Fatalf("first event = %s, want confirmation_requested", requested.Type)
	}
	reqPayload := requested.Payload.(event.ConfirmationRequested)
	if reqPayload.Tool != "write_file" || reqPayload.Cwd != "/tmp/work" {
		t.Errorf("payload = %+v", reqPayload)
	}
	if len(reqPayload.Options) != len(WriteOptions) {
		t.Errorf("options = %v", reqPayload.Options)
	}

	accepted, err := b.Submit(reqPayload.ConfirmID, DecisionAllowFile)
	if err != nil || !accepted {
		t.Fatalf("Submit = (%v, %v), want (true, nil)", accepted, err)
	}

	res := <-results
	if res.err != nil || res.decision != DecisionAllowFile {
		t.Fatalf("Request = (%s, %v), want (allow_file, nil)", res.decision, res.err)
	}

	resolved := nextEvent(t, sub)
	if resolved.Type != event.TypeConfirmationResolved {
		t.Fatalf("second event = %s, want confirmation_resolved", resolved.Type)
	}
	resPayload := resolved.Payload.(event.ConfirmationResolved)
	if resPayload.ConfirmID != reqPayload.ConfirmID || resPayload.Decision != "allow_file" {
		t.Errorf("resolved payload = %+v", resPayload)
	}
	if resPayload.ResolvedAt == "" {
		t.Error("resolved_at missing")
	}
	if got := b.Pending(); got != 0 {
		t.Errorf("Pending = %d, want 0", got)
	}
}

func TestFirstWriterWins(t *testing.T) {
	b, h := newTestBroker(t)
	sub := h.SubscribeBuffered("a1", 64)
	defer h.Unsubscribe(sub)

	decisions := make(chan Decision, 1)
	go func() {
		d, _ := b.Request(context.Background(), Spec{AgentID: "a1", RequestID: "r1", Tool: "run_command"})
		decisions <- d
	}()

	requested := nextEvent(t, sub)
	confirmID := requested.Payload.(event.ConfirmationRequested).ConfirmID

	submitted := []Decision{DecisionAllowOnce, DecisionDeny, DecisionDeny, DecisionAllowOnce, DecisionDeny}
	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners []Decision
	for _, d := range submitted {
		wg.Add(1)
		go func(d Decision) {
			defer wg.Done()
			accepted, err := b.Submit(confirmID, d)
			if err != nil {
				t.Errorf("Submit error: %v", err)
				return
			}
			if accepted {
				mu.Lock()
				winners = append(winners, d)
				mu.Unlock()
			}
		}(d)
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("%d submits were accepted, want exactly 1", len(winners))
	}
	if got := <-decisions; got != winners[0] {
		t.Errorf("Request returned %s, accepted submit was %s", got, winners[0])
	}
}

func TestSubmitUnknownConfirmID(t *testing.T) {
	b, _ := newTestBroker(t)
	accepted, err := b.Submit("nope", DecisionDeny)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted {
		t.Error("unknown confirm_id must not be accepted")
	}
}

func TestSubmitRejectsInvalidDecisions(t *testing.T) {
	b, _ := newTestBroker(t)

	tests := []struct {
		name      string
		confirmID string
		decision  Decision
	}{
		{"empty confirm_id", "", DecisionDeny},
		{"timeout_deny is broker internal", "c1", DecisionTimeoutDeny},
		{"unknown decision", "c1", Decision("sometimes")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Submit(tt.confirmID, tt.decision)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestRequestTimesOutAsDeny(t *testing.T) {
	b, h := newTestBroker(t)
	sub := h.SubscribeBuffered("a1", 64)
	defer h.Unsubscribe(sub)

	d, err := b.Request(context.Background(), Spec{
		AgentID:   "a1",
		RequestID: "r1",
		Tool:      "write_file",
		Timeout:   30 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if d != DecisionDeny {
		t.Fatalf("decision = %s, want deny", d)
	}

	requested := nextEvent(t, sub)
	resolved := nextEvent(t, sub)
	if resolved.Type != event.TypeConfirmationResolved {
		t.Fatalf("second event = %s", resolved.Type)
	}
	p := resolved.Payload.(event.ConfirmationResolved)
	if p.Decision != "timeout_deny" {
		t.Errorf("wire decision = %q, want timeout_deny", p.Decision)
	}

	// Late submit finds nothing.
	confirmID := requested.Payload.(event.ConfirmationRequested).ConfirmID
	accepted, err := b.Submit(confirmID, DecisionAllowOnce)
	if err != nil || accepted {
		t.Errorf("late Submit = (%v, %v), want (false, nil)", accepted, err)
	}
}

func TestRequestHonorsContextCancellation(t *testing.T) {
	b, h := newTestBroker(t)
	sub := h.SubscribeBuffered("a1", 64)
	defer h.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan error, 1)
	go func() {
		_, err := b.Request(ctx, Spec{AgentID: "a1", RequestID: "r1", Tool: "write_file"})
		results <- err
	}()

	nextEvent(t, sub) // confirmation_requested
	cancel()

	if err := <-results; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	resolved := nextEvent(t, sub)
	if p := resolved.Payload.(event.ConfirmationResolved); p.Decision != "deny" {
		t.Errorf("wire decision = %q, want deny", p.Decision)
	}
	if got := b.Pending(); got != 0 {
		t.Errorf("Pending = %d, want 0", got)
	}
}

func TestDenyAgentSettlesItsPromptsOnly(t *testing.T) {
	b, h := newTestBroker(t)
	subA := h.SubscribeBuffered("a1", 64)
	subB := h.SubscribeBuffered("a2", 64)
	defer h.Unsubscribe(subA)
	defer h.Unsubscribe(subB)

	results := make(chan Decision, 3)
	for _, agentID := range []string{"a1", "a1", "a2"} {
		go func(agentID string) {
			d, _ := b.Request(context.Background(), Spec{AgentID: agentID, RequestID: "r", Tool: "write_file"})
			results <- d
		}(agentID)
	}
	nextEvent(t, subA)
	nextEvent(t, subA)
	bReq := nextEvent(t, subB)

	if settled := b.DenyAgent("a1"); settled != 2 {
		t.Fatalf("DenyAgent settled %d, want 2", settled)
	}
	for i := 0; i < 2; i++ {
		if d := <-results; d != DecisionDeny {
			t.Errorf("a1 request returned %s, want deny", d)
		}
	}
	if got := b.Pending(); got != 1 {
		t.Fatalf("Pending = %d, want 1", got)
	}

	confirmID := bReq.Payload.(event.ConfirmationRequested).ConfirmID
	if accepted, err := b.Submit(confirmID, DecisionAllowOnce); err != nil || !accepted {
		t.Fatalf("a2 Submit = (%v, %v)", accepted, err)
	}
	if d := <-results; d != DecisionAllowOnce {
		t.Errorf("a2 request returned %s, want allow_once", d)
	}
}

func TestDecisionPredicates(t *testing.T) {
	allowed := []Decision{DecisionAllowOnce, DecisionAllowFile, DecisionAllowDir, DecisionAllowExecCwd}
	for _, d := range allowed {
		if !d.Allowed() {
			t.Errorf("%s should be allowed", d)
		}
		if !Submittable(d) {
			t.Errorf("%s should be submittable", d)
		}
	}
	for _, d := range []Decision{DecisionDeny, DecisionTimeoutDeny, Decision("x")} {
		if d.Allowed() {
			t.Errorf("%s should not be allowed", d)
		}
	}
	if Submittable(DecisionTimeoutDeny) {
		t.Error("timeout_deny must not be submittable")
	}
	if !Submittable(DecisionDeny) {
		t.Error("deny must be submittable")
	}
}
