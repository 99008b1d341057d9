package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record attributes always set on a mapped record.
const (
	FieldID           = "id"
	FieldSourceKey    = "s3Key"
	FieldImportedAt   = "importedAt"
	FieldOriginalData = "originalData"
)

// Record is the flat structure persisted in a table.
type Record map[string]any

// ID returns the identifier of the record.
func (r Record) ID() string {
	id, _ := r[FieldID].(string)
	return id
}

// SourceKey returns the storage key the record was built from.
func (r Record) SourceKey() string {
	k, _ := r[FieldSourceKey].(string)
	return k
}

// ImportedAt returns the capture time of the record, in ISO-8601 UTC.
func (r Record) ImportedAt() string {
	t, _ := r[FieldImportedAt].(string)
	return t
}

// Map builds the record of a raw document for the given schema.
//
// The record holds a fresh identifier, the source key, the import time and the normalized document.
// The promoted fields of the schema are read from the raw document: required ones fall back to
// their default, optional ones are only set when present in the source.
func Map(doc any, sourceKey string, id ID) (Record, error) {
	return mapAt(doc, sourceKey, id, time.Now())
}

func mapAt(doc any, sourceKey string, id ID, now time.Time) (Record, error) {
	def, ok := lookup(id)
	if !ok {
		return nil, fmt.Errorf("no definition for schema %q", id)
	}
	raw, ok := doc.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}

	importedAt := now.UTC().Format(time.RFC3339Nano)
	r := Record{
		FieldID:           uuid.NewString(),
		FieldSourceKey:    sourceKey,
		FieldImportedAt:   importedAt,
		FieldOriginalData: Normalize(raw),
	}

	for _, f := range def.required {
		v, ok := raw[f.sourceName()]
		// A null required field takes its default, as if it were missing.
		if !ok || v == nil {
			r[f.name] = f.def(importedAt)
			continue
		}
		r[f.name] = promote(f, v)
	}

	for _, f := range def.optional {
		v, ok := raw[f.sourceName()]
		if !ok {
			continue
		}
		if v == nil {
			r[f.name] = nil
			continue
		}
		r[f.name] = promote(f, v)
	}

	return r, nil
}

func promote(f field, v any) any {
	if f.text {
		return Text(v)
	}
	return v
}
