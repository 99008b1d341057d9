// Package handlers provides the HTTP handlers of the web service.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/myselamat/selamat-importer/internal/ingest/dispatcher"
)

// Dispatcher handles trigger events.
type Dispatcher interface {
	Handle(ctx context.Context, event json.RawMessage) dispatcher.Response
}

// Events feeds the trigger events posted to the service to a dispatcher.
// Notifications of S3 compatible stores use the same record shape as Lambda triggers.
type Events struct {
	dispatcher   Dispatcher
	maxEventSize int64
}

// NewEvents creates a new Events handler. Bodies larger than maxEventSize are rejected.
func NewEvents(d Dispatcher, maxEventSize int64) *Events {
	return &Events{
		dispatcher:   d,
		maxEventSize: maxEventSize,
	}
}

// ServeHTTP answers with the dispatcher response, using its status code as HTTP status.
func (h *Events) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxEventSize)
	event, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "Event too large", http.StatusRequestEntityTooLarge)
			slog.Error("Event too large", "req_id", reqID, "limit", maxErr.Limit)
			return
		}
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		slog.Error("Error reading the event", "req_id", reqID, "err", err)
		return
	}

	slog.Debug("Event received", "req_id", reqID, "size", len(event))
	resp := h.dispatcher.Handle(r.Context(), event)

	b, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		slog.Error("Error encoding the response", "req_id", reqID, "err", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(b); err != nil {
		slog.Warn("Error writing the response", "req_id", reqID, "err", err)
		return
	}
	slog.Info("Event handled", "req_id", reqID, "status", resp.StatusCode)
}
