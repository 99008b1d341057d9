// Package testutils provides helpers shared by the tests of the importer.
package testutils

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// MockHandler records the logs it receives and implements slog.Handler.
type MockHandler struct {
	// IgnoreBelow drops records with a level lower or equal to it.
	IgnoreBelow slog.Level
	records     *[]slog.Record
	attrs       []slog.Attr

	mu *sync.Mutex
}

// NewMockHandler returns a new MockHandler. Levels <= ignoreBelow are not recorded.
func NewMockHandler(ignoreBelow slog.Level) *MockHandler {
	return &MockHandler{
		IgnoreBelow: ignoreBelow,
		records:     &[]slog.Record{},
		mu:          &sync.Mutex{},
	}
}

// Enabled implements slog.Handler.
func (h *MockHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level > h.IgnoreBelow
}

// Handle implements slog.Handler.
func (h *MockHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	r = r.Clone()
	r.AddAttrs(h.attrs...)
	*h.records = append(*h.records, r)
	return nil
}

// WithAttrs implements slog.Handler. The returned handler shares the records of h.
func (h *MockHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := *h
	n.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &n
}

// WithGroup implements slog.Handler. Groups are flattened.
func (h *MockHandler) WithGroup(string) slog.Handler {
	return h
}

// Levels returns how many records were logged per level.
func (h *MockHandler) Levels() map[slog.Level]uint {
	h.mu.Lock()
	defer h.mu.Unlock()

	levels := make(map[slog.Level]uint)
	for _, r := range *h.records {
		levels[r.Level]++
	}
	return levels
}

// AssertLevels asserts that the logging levels observed match the expected amount.
// A nil levels map asserts that nothing was logged.
func (h *MockHandler) AssertLevels(t *testing.T, levels map[slog.Level]uint) bool {
	t.Helper()

	have := h.Levels()
	if levels == nil {
		return assert.Empty(t, have, "Expected no logs")
	}
	return assert.Equal(t, levels, have, "Unexpected number of logs per level")
}

// Attrs returns the attributes of every record logged with msg, in logging order.
func (h *MockHandler) Attrs(msg string) []map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var all []map[string]string
	for _, r := range *h.records {
		if r.Message != msg {
			continue
		}
		attrs := make(map[string]string)
		r.Attrs(func(a slog.Attr) bool {
			attrs[a.Key] = a.Value.String()
			return true
		})
		all = append(all, attrs)
	}
	return all
}

// OutputLogs outputs the logs collected by the handler in a readable format.
func (h *MockHandler) OutputLogs(t *testing.T) {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, r := range *h.records {
		t.Logf("Logged %v %s:", r.Level, r.Message)
		r.Attrs(func(attr slog.Attr) bool {
			t.Log(attr.String())
			return true
		})
	}
}
