package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJSONResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/1").
		Body(map[string]string{"id": "1"}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Location"); got != "/api/transactions/1" {
		t.Errorf("Location = %q", got)
	}
	if got := w.Body.String(); got != "{\"id\":\"1\"}\n" {
		t.Errorf("Body = %q", got)
	}
}

func TestJSONResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)

	if w.Code != http.StatusNoContent {
		t.Errorf("Status code = %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Body should be empty, got %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "" {
		t.Errorf("Content-Type should be unset, got %q", ct)
	}
}

func TestJSONResponseBuilder_EncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Body(map[string]any{"ch": make(chan int)}).Write(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status code = %d, want 500", w.Code)
	}
}

func TestUnauthorizedError(t *testing.T) {
	w := httptest.NewRecorder()
	UnauthorizedError().Write(w)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Status code = %d", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("WWW-Authenticate header not set")
	}
}
