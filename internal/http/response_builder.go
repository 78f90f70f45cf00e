package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"gastos/internal/middleware/trace"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// JSONResponseBuilder provides a fluent API for JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewJSONResponse creates a builder with status 200.
func NewJSONResponse(body any) *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
		body:       body,
	}
}

// Status sets the HTTP status code.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a response header.
func (b *JSONResponseBuilder) Header(key, value string) *JSONResponseBuilder {
	b.headers[key] = value
	return b
}

// NoStore marks the response as uncacheable.
func (b *JSONResponseBuilder) NoStore() *JSONResponseBuilder {
	return b.Header("Cache-Control", "no-store")
}

// Write encodes the body to w.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter, r *http.Request) {
	for k, v := range b.headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.body); err != nil {
		slog.ErrorContext(r.Context(), "JSON encode failed", "error", err, "path", r.URL.Path)
	}
}

// writeJSON writes body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	NewJSONResponse(body).Status(status).Write(w, r)
}

// writeError writes an ErrorResponse carrying the request ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, ErrorResponse{Error: msg, RequestID: trace.GetRequestID(r.Context())})
}
