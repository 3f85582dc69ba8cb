package trace

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateRequestID(t *testing.T) {
	id := GenerateRequestID()
	if !strings.HasPrefix(id, "req_") || len(id) != 20 {
		t.Errorf("unexpected id %q", id)
	}
	if GenerateRequestID() == id {
		t.Error("ids should differ")
	}
}

func TestMiddleware(t *testing.T) {
	m := NewMiddleware(func(r *http.Request) string { return "10.0.0.1" })

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		if r.URL.Path == "/boom" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
		if seen == "" || rec.Header().Get(HeaderRequestID) != seen {
			t.Errorf("context id %q, header %q", seen, rec.Header().Get(HeaderRequestID))
		}
	})

	t.Run("propagates client id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set(HeaderRequestID, "abc-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if seen != "abc-123" {
			t.Errorf("id = %q, want abc-123", seen)
		}
	})

	t.Run("rejects unsafe client id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set(HeaderRequestID, "bad id\nwith newline")
		h.ServeHTTP(httptest.NewRecorder(), req)
		if !strings.HasPrefix(seen, "req_") {
			t.Errorf("id = %q, want generated", seen)
		}
	})

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	got := m.GetMetrics()
	if got.TotalRequests != 4 || got.ServerErrors != 1 {
		t.Errorf("metrics = %+v", got)
	}
}
