package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"tandem/internal/auth"
	"tandem/internal/httputil"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth(t *testing.T) {
	verifier, err := auth.NewStaticVerifier("good-token")
	if err != nil {
		t.Fatalf("NewStaticVerifier() error = %v", err)
	}

	var gotSubject string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject = httputil.Subject(r)
		w.WriteHeader(http.StatusOK)
	})
	handler := Auth(verifier, discard(), "/health")(inner)

	tests := []struct {
		name       string
		path       string
		authHeader string
		wantStatus int
	}{
		{"valid token", "/rpc", "Bearer good-token", http.StatusOK},
		{"missing header", "/rpc", "", http.StatusUnauthorized},
		{"wrong scheme", "/rpc", "Basic good-token", http.StatusUnauthorized},
		{"wrong token", "/rpc", "Bearer bad-token", http.StatusUnauthorized},
		{"case-insensitive scheme", "/rpc", "bearer good-token", http.StatusOK},
		{"exempt path", "/health", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSubject = ""
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				if got := rec.Header().Get("Content-Type"); got != "application/problem+json" {
					t.Errorf("content type = %q, want problem+json", got)
				}
				if rec.Header().Get("WWW-Authenticate") == "" {
					t.Error("missing WWW-Authenticate challenge")
				}
			}
			if tt.name == "valid token" && gotSubject != "local" {
				t.Errorf("subject = %q, want local", gotSubject)
			}
		})
	}
}

func TestConnLimitBlocksAtCapacity(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusOK)
	})
	handler := ConnLimit(1, discard())(slow)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", nil))
	}()
	<-entered

	// Second request gives up waiting for a slot.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/rpc", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}

	close(release)
	wg.Wait()
}

func TestConnLimitBypassesEventStream(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	handler := ConnLimit(1, discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			close(entered)
			<-release
		}
		w.WriteHeader(http.StatusOK)
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/slow", nil))
	}()
	<-entered

	// The only slot is held, but the SSE path must still get through.
	done := make(chan int, 1)
	go func() {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/agent/a1/events", nil))
		done <- rec.Code
	}()
	select {
	case code := <-done:
		if code != http.StatusOK {
			t.Errorf("SSE status = %d, want 200", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SSE request waited for a semaphore slot")
	}

	close(release)
	wg.Wait()
}

func TestIsEventStream(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodGet, "/agent/a1/events", true},
		{http.MethodGet, "/agent/Agent-1.x_2/events", true},
		{http.MethodPost, "/agent/a1/events", false},
		{http.MethodGet, "/agent/a1/rpc", false},
		{http.MethodGet, "/agent//events", false},
		{http.MethodGet, "/agent/../events", false},
		{http.MethodGet, "/agent/has space/events", false},
		{http.MethodGet, "/rpc", false},
		{http.MethodGet, "/agent/a1/events/extra", false},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(tt.method, "http://host/", nil)
		r.URL.Path = tt.path
		if got := isEventStream(r); got != tt.want {
			t.Errorf("isEventStream(%s %s) = %v, want %v", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rpc", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/problem+json" {
		t.Errorf("content type = %q, want problem+json", got)
	}
}

func TestRecoveryAfterResponseStarted(t *testing.T) {
	handler := Recovery(discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("partial"))
		panic("mid-stream")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/agent/a1/events", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want the already-written 200", rec.Code)
	}
	if body := rec.Body.String(); body != "partial" {
		t.Errorf("body = %q, want only the pre-panic bytes", body)
	}
}

func TestRecoveryPassthrough(t *testing.T) {
	handler := Recovery(discard())(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
