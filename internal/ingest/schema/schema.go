// Package schema maps storage keys to record schemas and turns JSON documents into flat records
// that the table stores accept.
package schema

import (
	"fmt"
	"strings"

	"github.com/myselamat/selamat-importer/internal/constants"
)

// ID identifies the record shape and destination table of a document.
type ID string

const (
	// Unknown is the zero ID. Documents routed to it are not ingested.
	Unknown ID = ""
	// SOS is the schema of emergency (SOS) alerts.
	SOS ID = "sos"
	// Report is the schema of disaster reports.
	Report ID = "report"
)

// String implements fmt.Stringer.
func (id ID) String() string {
	if id == Unknown {
		return "unknown"
	}
	return string(id)
}

// UnmarshalText parses a schema name. The empty string decodes to Unknown.
func (id *ID) UnmarshalText(text []byte) error {
	s := ID(strings.TrimSpace(string(text)))
	if s == Unknown {
		*id = Unknown
		return nil
	}
	if _, ok := lookup(s); !ok {
		return fmt.Errorf("unknown schema %q", string(text))
	}
	*id = s
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id), nil
}

// Prefix returns the storage key prefix rooting the documents of the schema.
// It is empty for Unknown.
func (id ID) Prefix() string {
	d, ok := lookup(id)
	if !ok {
		return ""
	}
	return d.prefix
}

// IDs returns the known schemas, in routing order.
func IDs() []ID {
	ids := make([]ID, 0, len(definitions))
	for _, d := range definitions {
		ids = append(ids, d.id)
	}
	return ids
}

// Route maps a storage key to the schema of the documents stored under its prefix.
// Matching is ordered and case-sensitive. It returns false when no prefix matches.
func Route(key string) (ID, bool) {
	for _, d := range definitions {
		if strings.HasPrefix(key, d.prefix) {
			return d.id, true
		}
	}
	return Unknown, false
}

// definition is the declarative shape of one schema.
type definition struct {
	id     ID
	prefix string

	// required fields are always present in the record, with their default when the source field
	// is absent or null.
	required []field
	// optional fields are copied only when present in the source document.
	optional []field
}

type field struct {
	name   string // record attribute
	source string // document field, name when empty
	text   bool   // render the value as text
	def    func(importedAt string) any
}

func (f field) sourceName() string {
	if f.source == "" {
		return f.name
	}
	return f.source
}

func constant(v string) func(string) any {
	return func(string) any { return v }
}

func importTime(importedAt string) any {
	return importedAt
}

var definitions = []definition{
	{
		id:     SOS,
		prefix: constants.SOSPrefix,
		required: []field{
			{name: "userId", def: constant("unknown")},
			{name: "category", def: constant("unknown")},
			{name: "latitude", text: true, def: constant("0")},
			{name: "longitude", text: true, def: constant("0")},
			{name: "timestamp", def: importTime},
			{name: "status", def: constant("active")},
		},
		optional: []field{
			{name: "userName"},
			{name: "userEmail"},
			{name: "userPhone"},
			{name: "userAddress"},
			{name: "accuracy", text: true},
			{name: "altitude", text: true},
			{name: "speed", text: true},
			{name: "heading", text: true},
		},
	},
	{
		id:     Report,
		prefix: constants.ReportPrefix,
		required: []field{
			{name: "userId", def: constant("unknown")},
			{name: "disasterType", def: constant("unknown")},
			{name: "latitude", source: "userLatitude", text: true, def: constant("0")},
			{name: "longitude", source: "userLongitude", text: true, def: constant("0")},
			{name: "timestamp", def: importTime},
			{name: "location", def: constant("unknown")},
		},
		optional: []field{
			{name: "userName"},
			{name: "waterLevel", text: true},
		},
	},
}

func lookup(id ID) (definition, bool) {
	for _, d := range definitions {
		if d.id == id {
			return d, true
		}
	}
	return definition{}, false
}
