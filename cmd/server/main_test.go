package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hamori-app/hamori/internal/middleware"
)

func TestCORSMiddleware(t *testing.T) {
	var reached int
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached++
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("preflight is answered without reaching the handler", func(t *testing.T) {
		reached = 0
		req := httptest.NewRequest(http.MethodOptions, "/hamori.v1.GroupService/GetGroup", nil)
		req.Header.Set("Origin", "http://localhost:8081")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "content-type,x-request-id")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if reached != 0 {
			t.Errorf("handler ran %d times for a preflight", reached)
		}
		if rec.Code < 200 || rec.Code >= 300 {
			t.Errorf("expected 2xx, got %d", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, http.MethodPost) {
			t.Errorf("Access-Control-Allow-Methods = %q, want POST", got)
		}
	})

	t.Run("actual request exposes the request ID header", func(t *testing.T) {
		reached = 0
		req := httptest.NewRequest(http.MethodPost, "/hamori.v1.GroupService/GetGroup", nil)
		req.Header.Set("Origin", "http://localhost:8081")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if reached != 1 {
			t.Errorf("handler ran %d times, want 1", reached)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
		}
		if got := rec.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, middleware.RequestIDHeader) {
			t.Errorf("Access-Control-Expose-Headers = %q, want %s", got, middleware.RequestIDHeader)
		}
	})
}
