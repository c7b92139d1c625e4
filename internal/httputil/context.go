package httputil

import (
	"context"
	"net/http"
)

// Context key type to avoid collisions
type contextKey string

const subjectKey contextKey = "subject"

// WithSubject stamps the authenticated subject on the request context.
func WithSubject(r *http.Request, subject string) *http.Request {
	ctx := context.WithValue(r.Context(), subjectKey, subject)
	return r.WithContext(ctx)
}

// Subject retrieves the authenticated subject, empty if unauthenticated.
func Subject(r *http.Request) string {
	subject, _ := r.Context().Value(subjectKey).(string)
	return subject
}
