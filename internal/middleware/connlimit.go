package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"tandem/internal/agent"
	"tandem/internal/httputil"
)

// DefaultConnCapacity bounds concurrent non-SSE requests when the
// config does not say otherwise.
const DefaultConnCapacity = 64

// ConnLimit holds a global semaphore slot for the duration of each
// request. The SSE path is recognized from the request line alone and
// never takes a slot: event streams are long-lived and must not starve
// the RPC plane. Body reads happen downstream of the acquire, so slots
// also bound buffered request bodies.
func ConnLimit(capacity int, logger *slog.Logger) func(http.Handler) http.Handler {
	if capacity <= 0 {
		capacity = DefaultConnCapacity
	}
	sem := make(chan struct{}, capacity)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isEventStream(r) {
				next.ServeHTTP(w, r)
				return
			}

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
				next.ServeHTTP(w, r)
			case <-r.Context().Done():
				logger.Warn("connection slot wait abandoned",
					"path", r.URL.Path,
					"method", r.Method,
				)
				httputil.RespondError(w, http.StatusServiceUnavailable, "server at connection capacity")
			}
		})
	}
}

// isEventStream matches GET /agent/{id}/events where id satisfies the
// agent ID grammar, the same shape the mux routes to the SSE handler.
func isEventStream(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	rest, ok := strings.CutPrefix(r.URL.Path, "/agent/")
	if !ok {
		return false
	}
	id, ok := strings.CutSuffix(rest, "/events")
	if !ok {
		return false
	}
	return agent.ValidID(id)
}
