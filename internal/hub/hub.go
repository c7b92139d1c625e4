// Package hub implements per-agent event fan-out: monotonic sequence
// stamping, a bounded replay ring for reconnecting clients, bounded
// per-subscriber queues with drop-newest overflow, and eviction of
// subscribers that stay persistently behind.
package hub

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"tandem/internal/event"
)

// Defaults applied when Config fields are zero.
const (
	DefaultRingSize = 100 // retained events per agent for replay

	// DefaultQueueCapacity buffers one network subscriber; in-process
	// consumers get the larger capacity since draining them is cheap.
	DefaultQueueCapacity          = 100
	DefaultInProcessQueueCapacity = 200

	// DefaultEvictThreshold is the number of consecutive dropped events
	// after which a subscriber is considered dead weight and evicted.
	DefaultEvictThreshold = 10
)

// Config tunes a Hub. Zero fields take the package defaults.
type Config struct {
	RingSize       int
	QueueCapacity  int
	EvictThreshold int
	Logger         *slog.Logger
}

// Subscriber is one consumer of an agent's event stream. Events arrive
// on the channel returned by Events; the channel closes when the
// subscriber is unsubscribed, its agent is dropped, or it is evicted
// for falling too far behind (Evicted distinguishes the last case).
type Subscriber struct {
	agentID  string
	ch       chan event.Event
	drops    int // consecutive full-queue drops, guarded by the hub mutex
	evicted  atomic.Bool
	closeOne sync.Once
}

// Events returns the subscriber's receive channel.
func (s *Subscriber) Events() <-chan event.Event { return s.ch }

// AgentID returns the agent this subscriber is attached to.
func (s *Subscriber) AgentID() string { return s.agentID }

// Evicted reports whether the channel was closed because the subscriber
// fell too far behind.
func (s *Subscriber) Evicted() bool { return s.evicted.Load() }

func (s *Subscriber) close() {
	s.closeOne.Do(func() { close(s.ch) })
}

// agentStream is the per-agent state: the next sequence number, the
// replay ring, and the live subscriber set.
type agentStream struct {
	nextSeq uint64
	ring    *ring
	subs    map[*Subscriber]struct{}
}

// Hub fans events out to subscribers, one stream per agent. A single
// mutex guards all agent streams: fan-out is non-blocking, so the
// critical section is short even with slow consumers attached.
type Hub struct {
	mu        sync.Mutex
	agents    map[string]*agentStream
	totalSubs int

	ringSize       int
	queueCap       int
	evictThreshold int
	logger         *slog.Logger
}

// New creates a Hub.
func New(cfg Config) *Hub {
	if cfg.RingSize <= 0 {
		cfg.RingSize = DefaultRingSize
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.EvictThreshold <= 0 {
		cfg.EvictThreshold = DefaultEvictThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Hub{
		agents:         make(map[string]*agentStream),
		ringSize:       cfg.RingSize,
		queueCap:       cfg.QueueCapacity,
		evictThreshold: cfg.EvictThreshold,
		logger:         cfg.Logger.With("component", "hub"),
	}
}

// stream returns the agent's state, creating it lazily. Callers must
// hold h.mu.
func (h *Hub) stream(agentID string) *agentStream {
	st, ok := h.agents[agentID]
	if !ok {
		st = &agentStream{
			nextSeq: 1,
			ring:    newRing(h.ringSize),
			subs:    make(map[*Subscriber]struct{}),
		}
		h.agents[agentID] = st
	}
	return st
}

// Publish stamps the event with the agent's next sequence number,
// appends it to the replay ring, and enqueues it to every live
// subscriber without blocking. Subscribers whose queue is full drop the
// event; after EvictThreshold consecutive drops the subscriber is
// removed and its channel closed. Returns the stamped sequence number.
//
// The hub is authoritative for agent_id and seq: both are stamped here,
// overwriting whatever the caller set. Stamping, ring insert and
// fan-out happen under one lock acquisition, so publishes to the same
// agent can never interleave.
func (h *Hub) Publish(agentID string, ev event.Event) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.stream(agentID)
	ev.AgentID = agentID
	ev.Seq = st.nextSeq
	st.nextSeq++
	st.ring.append(ev)

	for sub := range st.subs {
		select {
		case sub.ch <- ev:
			sub.drops = 0
		default:
			sub.drops++
			h.logger.Warn("subscriber queue full, dropping event",
				"agent_id", agentID,
				"type", string(ev.Type),
				"seq", ev.Seq,
				"consecutive_drops", sub.drops)
			if sub.drops >= h.evictThreshold {
				delete(st.subs, sub)
				h.totalSubs--
				sub.evicted.Store(true)
				sub.close()
				h.logger.Warn("evicted slow subscriber",
					"agent_id", agentID,
					"consecutive_drops", sub.drops)
			}
		}
	}
	return ev.Seq
}

// Subscribe attaches a new subscriber to the agent's stream with the
// hub's default queue capacity. The agent's stream is created lazily;
// callers that care whether the agent exists check the registry first.
func (h *Hub) Subscribe(agentID string) *Subscriber {
	return h.SubscribeBuffered(agentID, h.queueCap)
}

// SubscribeBuffered attaches a subscriber with an explicit queue
// capacity. In-process consumers typically pass
// DefaultInProcessQueueCapacity.
func (h *Hub) SubscribeBuffered(agentID string, capacity int) *Subscriber {
	if capacity <= 0 {
		capacity = h.queueCap
	}
	sub := &Subscriber{
		agentID: agentID,
		ch:      make(chan event.Event, capacity),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.stream(agentID)
	st.subs[sub] = struct{}{}
	h.totalSubs++
	return sub
}

// Unsubscribe detaches the subscriber and closes its channel. Safe to
// call more than once and after eviction.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	if st, ok := h.agents[sub.agentID]; ok {
		if _, live := st.subs[sub]; live {
			delete(st.subs, sub)
			h.totalSubs--
		}
	}
	h.mu.Unlock()

	// No publisher can reach the subscriber once it left the set, so
	// closing outside the lock cannot race a send.
	sub.close()
}

// ReplaySince returns the retained events for the agent with sequence
// numbers greater than since, oldest first. since = 0 returns
// everything retained.
func (h *Hub) ReplaySince(agentID string, since uint64) []event.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.agents[agentID]
	if !ok {
		return nil
	}
	return st.ring.since(since)
}

// LastSeq returns the highest sequence number published for the agent,
// or 0 if nothing was published yet.
func (h *Hub) LastSeq(agentID string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.agents[agentID]
	if !ok {
		return 0
	}
	return st.nextSeq - 1
}

// TotalSubscribers returns the live subscriber count across all agents.
// The idle monitor polls this to keep the server up while anyone is
// still watching.
func (h *Hub) TotalSubscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.totalSubs
}

// SubscriberCount returns the live subscriber count for one agent.
func (h *Hub) SubscriberCount(agentID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.agents[agentID]
	if !ok {
		return 0
	}
	return len(st.subs)
}

// DropAgent closes every subscriber of the agent and discards its ring
// and sequence state. Used when an agent is destroyed.
func (h *Hub) DropAgent(agentID string) {
	h.mu.Lock()
	st, ok := h.agents[agentID]
	if !ok {
		h.mu.Unlock()
		return
	}
	subs := make([]*Subscriber, 0, len(st.subs))
	for sub := range st.subs {
		subs = append(subs, sub)
	}
	h.totalSubs -= len(subs)
	delete(h.agents, agentID)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
