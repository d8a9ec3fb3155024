package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestRenderAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RenderAuthMiddleware("worker-secret", zerolog.Nop())(next)

	tests := []struct {
		name   string
		secret string
		want   int
	}{
		{"valid secret", "worker-secret", http.StatusOK},
		{"wrong secret", "guess", http.StatusUnauthorized},
		{"missing secret", "", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/internal/render-callback", nil)
			if tc.secret != "" {
				req.Header.Set("X-Render-Secret", tc.secret)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("got status %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestRenderAuthMiddlewareUnconfigured(t *testing.T) {
	handler := RenderAuthMiddleware("", zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run without a configured secret")
	}))

	req := httptest.NewRequest(http.MethodPost, "/internal/render-callback", nil)
	req.Header.Set("X-Render-Secret", "anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("got status %d, want 500", rec.Code)
	}
}
