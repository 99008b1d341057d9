package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ErrNotObject is returned when a document is valid JSON but not an object.
var ErrNotObject = errors.New("document is not a JSON object")

// ParseDocument decodes a JSON document, keeping numbers as json.Number so integers and
// fractional values can be told apart.
func ParseDocument(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON document: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("invalid JSON document: trailing data after top-level value")
	}
	return v, nil
}

// Normalize returns a copy of v that the table stores accept: every fractional number is
// replaced by its canonical text, everything else is kept as is.
// Objects keep their keys and arrays keep their order. Normalize is idempotent.
func Normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	case json.Number:
		if isFractional(t) {
			return fractionalText(t)
		}
		return t
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	default:
		return v
	}
}

// Text renders a raw document value for a promoted text field.
func Text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		if isFractional(t) {
			return fractionalText(t)
		}
		return t.String()
	case float64:
		return formatFloat(t)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return "null"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func isFractional(n json.Number) bool {
	return strings.ContainsAny(string(n), ".eE")
}

func fractionalText(n json.Number) string {
	f, err := n.Float64()
	if err != nil {
		// Out of float64 range: the literal is the only faithful rendering.
		return n.String()
	}
	return formatFloat(f)
}

// formatFloat renders f as the shortest decimal that round-trips, always marked as fractional.
func formatFloat(f float64) string {
	var s string
	if abs := math.Abs(f); abs == 0 || (abs >= 1e-4 && abs < 1e16) {
		s = strconv.FormatFloat(f, 'f', -1, 64)
	} else {
		s = strconv.FormatFloat(f, 'g', -1, 64)
	}
	if !strings.ContainsAny(s, ".eIN") {
		s += ".0"
	}
	return s
}
