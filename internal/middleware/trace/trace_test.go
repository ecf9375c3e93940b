package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applog "github.com/Imaginaryverse/spending-habits/internal/log"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Level: slog.LevelDebug, Format: "json", Output: &buf})
	m := NewMiddleware(logger, func(*http.Request) string { return "9.9.9.9" })

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		applog.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/items", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("unexpected request id %q", seen)
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("response header %q does not match %q", rec.Header().Get(RequestIDHeader), seen)
	}
	out := buf.String()
	if strings.Count(out, `"request_id":"`+seen+`"`) != 2 {
		t.Fatalf("both log lines must carry the request id: %s", out)
	}
	if !strings.Contains(out, `"status_code":201`) || !strings.Contains(out, `"client_ip":"9.9.9.9"`) {
		t.Fatalf("completion log missing fields: %s", out)
	}
}

func TestMiddlewareReusesUpstreamID(t *testing.T) {
	m := NewMiddleware(nil, nil)
	h := m.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	tests := []struct {
		header string
		reused bool
	}{
		{"abc-123", true},
		{"bad id with spaces", false},
		{strings.Repeat("x", 65), false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, tt.header)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if got := rec.Header().Get(RequestIDHeader) == tt.header; got != tt.reused {
			t.Errorf("header %q reused = %v, want %v", tt.header, got, tt.reused)
		}
	}
}
