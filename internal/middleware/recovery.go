package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"tandem/internal/httputil"
)

// Recovery converts panics into 500 responses. If the response already
// started (a live event stream, say), no status can be retracted; the
// panic is logged and the connection just ends.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &trackingWriter{ResponseWriter: w}
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						"error", err,
						"path", r.URL.Path,
						"method", r.Method,
						"stack", string(debug.Stack()),
					)
					if !tw.wrote {
						httputil.RespondError(tw, http.StatusInternalServerError, "internal server error")
					}
				}
			}()

			next.ServeHTTP(tw, r)
		})
	}
}

// trackingWriter remembers whether the response has started. Unwrap
// keeps http.ResponseController working through the wrapper.
type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (t *trackingWriter) WriteHeader(status int) {
	t.wrote = true
	t.ResponseWriter.WriteHeader(status)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.wrote = true
	return t.ResponseWriter.Write(b)
}

func (t *trackingWriter) Unwrap() http.ResponseWriter {
	return t.ResponseWriter
}
