package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"tandem/internal/agent"
	"tandem/internal/event"
	"tandem/internal/httputil"
	"tandem/internal/hub"
)

// SSEConfig carries the stream handler's collaborators.
type SSEConfig struct {
	Hub    *hub.Hub
	Agents *agent.Registry

	// Heartbeat is the quiet-stream ping interval. The timer resets
	// after every frame written, pings included.
	Heartbeat time.Duration

	// QueueCapacity sizes each subscriber's delivery queue.
	QueueCapacity int

	// Closing, when closed, ends every open stream. The server closes it
	// at the start of graceful shutdown so connection draining is not
	// held up by long-lived streams.
	Closing <-chan struct{}

	Logger *slog.Logger
}

// SSEHandler serves GET /agent/{agent_id}/events.
type SSEHandler struct {
	hub       *hub.Hub
	agents    *agent.Registry
	heartbeat time.Duration
	queueCap  int
	closing   <-chan struct{}
	logger    *slog.Logger
}

// NewSSEHandler creates the stream handler.
func NewSSEHandler(cfg SSEConfig) *SSEHandler {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SSEHandler{
		hub:       cfg.Hub,
		agents:    cfg.Agents,
		heartbeat: cfg.Heartbeat,
		queueCap:  cfg.QueueCapacity,
		closing:   cfg.Closing,
		logger:    cfg.Logger.With("component", "sse"),
	}
}

// Stream attaches the client to the agent's event stream. A resume
// cursor triggers replay of retained history after subscribing, so
// events published during replay queue up instead of falling into a
// gap; clients deduplicate by seq.
func (h *SSEHandler) Stream(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")
	if !agent.ValidID(agentID) {
		httputil.RespondError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	if _, err := h.agents.Get(agentID); err != nil {
		httputil.RespondDomainError(w, err)
		return
	}

	lastSeq, resume := parseLastEventID(r.Header.Get("Last-Event-ID"))

	// Subscribe before the 200 goes out so anything published after the
	// client sees the status is already in this stream's queue.
	sub := h.hub.SubscribeBuffered(agentID, h.queueCap)
	defer h.hub.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	logger := h.logger.With("agent_id", agentID, "remote", r.RemoteAddr)

	// ResponseController reaches the flusher through middleware wrappers.
	// A dead or non-streaming connection shows up on this first flush.
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		logger.Error("response writer cannot stream", "error", err)
		return
	}

	logger.Info("event stream opened", "resume", resume, "last_event_id", lastSeq)

	if resume {
		for _, ev := range h.hub.ReplaySince(agentID, lastSeq) {
			if !h.writeEvent(w, rc, logger, ev) {
				return
			}
		}
	}

	heartbeat := time.NewTimer(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug("client disconnected")
			return
		case <-h.closing:
			logger.Debug("server closing, ending stream")
			return
		case ev, ok := <-sub.Events():
			if !ok {
				if sub.Evicted() {
					logger.Warn("slow consumer evicted, ending stream")
				} else {
					logger.Debug("agent stream dropped, ending stream")
				}
				return
			}
			if !h.writeEvent(w, rc, logger, ev) {
				return
			}
			resetTimer(heartbeat, h.heartbeat)
		case <-heartbeat.C:
			if !h.writeEvent(w, rc, logger, event.NewPing(agentID)) {
				return
			}
			heartbeat.Reset(h.heartbeat)
		}
	}
}

// writeEvent formats and flushes one frame. Format failures skip the
// event and keep the stream; write and flush failures end it.
func (h *SSEHandler) writeEvent(w io.Writer, rc *http.ResponseController, logger *slog.Logger, ev event.Event) bool {
	frame, err := event.FormatSSE(ev)
	if err != nil {
		logger.Error("dropping unformattable event", "type", string(ev.Type), "seq", ev.Seq, "error", err)
		return true
	}
	if _, err := io.WriteString(w, frame); err != nil {
		logger.Debug("stream write failed", "error", err)
		return false
	}
	if err := rc.Flush(); err != nil {
		logger.Debug("stream flush failed", "error", err)
		return false
	}
	return true
}

// parseLastEventID reads the resume cursor. An absent or unparseable
// header means no replay, same as a fresh connection; an explicit 0 is
// a valid cursor asking for everything retained, since seq starts at 1.
func parseLastEventID(raw string) (uint64, bool) {
	if raw == "" {
		return 0, false
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// resetTimer rearms a timer whose channel may hold a stale fire.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
