// Package http serves the dashboard's JSON API.
//
// This file implements the builder used by every handler to write JSON
// responses, and the mapping from domain errors to status codes.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"bilancio/internal/core"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body. A nil body writes no content.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		http.Error(w, `{"error":"Internal","message":"encoding failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(payload, '\n'))
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ErrorResponse creates an error response with the given kind and message.
func ErrorResponse(statusCode int, kind, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(ErrorBody{Error: kind, Message: message})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, "ValidationError", message)
}

func UnauthorizedError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, "NotAuthenticated", "missing or invalid bearer token").
		Header("WWW-Authenticate", `Bearer realm="bilancio"`)
}

func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "RateLimited", "rate limit exceeded, please try again later")
}

// FromError maps a service error onto a response. Unknown errors become a
// 500 whose message does not leak internals.
func FromError(err error) *JSONResponseBuilder {
	var ve *core.ValidationError
	var de *core.DuplicateError
	switch {
	case errors.As(err, &ve):
		return NewJSONResponse().
			Status(http.StatusBadRequest).
			Body(ErrorBody{Error: "ValidationError", Message: ve.Error(), Field: ve.Field})
	case errors.As(err, &de):
		return ErrorResponse(http.StatusConflict, "DuplicateError", de.Error())
	case errors.Is(err, core.ErrDuplicate):
		return ErrorResponse(http.StatusConflict, "DuplicateError", "already exists")
	case errors.Is(err, core.ErrNotAuthenticated):
		return UnauthorizedError()
	case errors.Is(err, core.ErrNotFound):
		return ErrorResponse(http.StatusNotFound, "NotFound", "resource not found")
	case errors.Is(err, core.ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		return ErrorResponse(http.StatusServiceUnavailable, "StoreUnavailable", "storage temporarily unavailable").
			Header("Retry-After", "1")
	default:
		return ErrorResponse(http.StatusInternalServerError, "Internal", "internal error")
	}
}

// writeError logs err at a level matching its status and writes the response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := FromError(err)
	switch {
	case resp.statusCode >= 500:
		slog.ErrorContext(r.Context(), "Request failed", "error", err, "path", r.URL.Path)
	case resp.statusCode != http.StatusUnauthorized:
		slog.InfoContext(r.Context(), "Request rejected", "error", err, "status", resp.statusCode)
	}
	resp.Write(w)
}
