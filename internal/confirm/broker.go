// Package confirm implements the tool approval broker: pending
// confirmation prompts keyed by confirm_id, first-writer-wins decision
// submission, timeout denial, and resolution events on the agent
// stream.
package confirm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tandem/internal/domain"
	"tandem/internal/event"
)

// Decision is one element of the closed decision vocabulary.
type Decision string

const (
	DecisionAllowOnce    Decision = "allow_once"
	DecisionAllowFile    Decision = "allow_file"
	DecisionAllowDir     Decision = "allow_dir"
	DecisionAllowExecCwd Decision = "allow_exec_cwd"
	DecisionDeny         Decision = "deny"

	// DecisionTimeoutDeny is recorded on the wire when a prompt expires.
	// It is broker-internal: clients cannot submit it.
	DecisionTimeoutDeny Decision = "timeout_deny"
)

// Allowed reports whether the decision permits the tool to run.
func (d Decision) Allowed() bool {
	switch d {
	case DecisionAllowOnce, DecisionAllowFile, DecisionAllowDir, DecisionAllowExecCwd:
		return true
	default:
		return false
	}
}

// Submittable reports whether clients may submit the decision.
func Submittable(d Decision) bool {
	switch d {
	case DecisionAllowOnce, DecisionAllowFile, DecisionAllowDir, DecisionAllowExecCwd, DecisionDeny:
		return true
	default:
		return false
	}
}

// Option sets offered per tool family. Options shown to clients are
// always a subset of the submittable vocabulary.
var (
	WriteOptions   = []Decision{DecisionAllowOnce, DecisionAllowFile, DecisionAllowDir, DecisionDeny}
	ExecCwdOptions = []Decision{DecisionAllowOnce, DecisionAllowExecCwd, DecisionDeny}
	DefaultOptions = []Decision{DecisionAllowOnce, DecisionDeny}
)

// DefaultTimeout applies when a request does not carry its own.
const DefaultTimeout = 120 * time.Second

// Publisher publishes events onto an agent's stream.
type Publisher interface {
	Publish(agentID string, ev event.Event) uint64
}

// Spec describes one approval prompt.
type Spec struct {
	AgentID   string
	RequestID string
	Tool      string
	Options   []Decision
	Cwd       string
	Timeout   time.Duration
}

type pending struct {
	spec      Spec
	confirmID string
	done      chan struct{}
	decision  Decision // written once under the broker mutex before done closes
}

// Config tunes a Broker.
type Config struct {
	DefaultTimeout time.Duration
	Logger         *slog.Logger
}

// Broker tracks pending confirmations. One goroutine blocks in Request
// per prompt (the turn that needs the approval); any number of clients
// race in Submit and exactly one wins.
type Broker struct {
	pub     Publisher
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*pending
}

// New creates a Broker.
func New(pub Publisher, cfg Config) *Broker {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Broker{
		pub:     pub,
		logger:  cfg.Logger.With("component", "confirm"),
		timeout: cfg.DefaultTimeout,
		pending: make(map[string]*pending),
	}
}

// Request opens an approval prompt and blocks until a client submits a
// decision, the timeout expires, or ctx is cancelled. Exactly one
// confirmation_requested and one confirmation_resolved are published
// per prompt. On timeout the wire records timeout_deny and the caller
// gets deny; on ctx cancellation the wire records deny and the caller
// gets ctx's error.
func (b *Broker) Request(ctx context.Context, spec Spec) (Decision, error) {
	if spec.AgentID == "" || spec.Tool == "" {
		return DecisionDeny, &domain.ValidationError{Message: "confirmation requires agent_id and tool"}
	}
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = b.timeout
	}
	if len(spec.Options) == 0 {
		spec.Options = DefaultOptions
	}

	p := &pending{
		spec:      spec,
		confirmID: uuid.New().String(),
		done:      make(chan struct{}),
	}
	b.mu.Lock()
	b.pending[p.confirmID] = p
	b.mu.Unlock()

	b.pub.Publish(spec.AgentID, event.NewConfirmationRequested(
		spec.AgentID, spec.RequestID, p.confirmID, spec.Tool,
		optionStrings(spec.Options), spec.Cwd, int(timeout.Seconds())))
	b.logger.Info("confirmation requested",
		"agent_id", spec.AgentID,
		"confirm_id", p.confirmID,
		"tool", spec.Tool,
		"timeout_s", int(timeout.Seconds()))

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		b.resolve(spec, p.confirmID, p.decision)
		return p.decision, nil

	case <-timer.C:
		decision, expired := b.settle(p, DecisionTimeoutDeny)
		b.resolve(spec, p.confirmID, decision)
		if expired {
			return DecisionDeny, nil
		}
		// A submit landed while the timer was firing; honor it.
		return decision, nil

	case <-ctx.Done():
		decision, _ := b.settle(p, DecisionDeny)
		b.resolve(spec, p.confirmID, decision)
		return DecisionDeny, ctx.Err()
	}
}

// settle removes the entry and stores the fallback decision unless a
// submit already won, in which case the submitted decision is returned
// with settled = false.
func (b *Broker) settle(p *pending, fallback Decision) (Decision, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if current, ok := b.pending[p.confirmID]; ok && current == p {
		delete(b.pending, p.confirmID)
		p.decision = fallback
		close(p.done)
		return fallback, true
	}
	return p.decision, false
}

func (b *Broker) resolve(spec Spec, confirmID string, decision Decision) {
	b.pub.Publish(spec.AgentID, event.NewConfirmationResolved(
		spec.AgentID, spec.RequestID, confirmID, string(decision), time.Now()))
	b.logger.Info("confirmation resolved",
		"agent_id", spec.AgentID,
		"confirm_id", confirmID,
		"decision", string(decision))
}

// Submit records a decision for a pending confirmation. The first
// successful submit wins; later submits and submits for unknown or
// already settled prompts return accepted = false without error.
// Decisions outside the submittable vocabulary are rejected.
func (b *Broker) Submit(confirmID string, decision Decision) (bool, error) {
	if confirmID == "" {
		return false, &domain.ValidationError{Message: "confirm_id is required"}
	}
	if !Submittable(decision) {
		return false, &domain.ValidationError{Message: fmt.Sprintf("invalid decision %q", decision)}
	}

	b.mu.Lock()
	p, ok := b.pending[confirmID]
	if !ok {
		b.mu.Unlock()
		return false, nil
	}
	delete(b.pending, confirmID)
	p.decision = decision
	close(p.done)
	b.mu.Unlock()

	b.logger.Info("confirmation submitted",
		"agent_id", p.spec.AgentID,
		"confirm_id", confirmID,
		"decision", string(decision))
	return true, nil
}

// Pending returns the number of unresolved prompts.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// DenyAgent settles every pending prompt of the agent with deny. Used
// when an agent is destroyed. Returns the number of prompts settled.
func (b *Broker) DenyAgent(agentID string) int {
	b.mu.Lock()
	var victims []*pending
	for id, p := range b.pending {
		if p.spec.AgentID == agentID {
			delete(b.pending, id)
			p.decision = DecisionDeny
			victims = append(victims, p)
		}
	}
	for _, p := range victims {
		close(p.done)
	}
	b.mu.Unlock()
	return len(victims)
}

func optionStrings(opts []Decision) []string {
	out := make([]string, len(opts))
	for i, d := range opts {
		out[i] = string(d)
	}
	return out
}
