package processor

import (
	"errors"
	"fmt"

	"github.com/myselamat/selamat-importer/internal/ingest/schema"
)

var (
	// ErrRoutingMiss is reported when a key is not ingested because of its prefix.
	ErrRoutingMiss = errors.New("unmatched prefix")
	// ErrFetch is reported when an object cannot be read or is not valid JSON.
	ErrFetch = errors.New("could not fetch document")
	// ErrTargetUnavailable is reported when the destination table is missing or unreachable.
	ErrTargetUnavailable = errors.New("target table unavailable")
	// ErrWrite is reported when the destination table rejects a record.
	ErrWrite = errors.New("could not write record")
	// ErrListing is returned when a batch listing fails.
	ErrListing = errors.New("could not list objects")
)

// Kind is the result of ingesting a single object.
type Kind int

const (
	// Imported means the record was written.
	Imported Kind = iota
	// Skipped means the object was not meant to be ingested.
	Skipped
	// Failed means the object could not be ingested.
	Failed
)

func (k Kind) String() string {
	switch k {
	case Imported:
		return "imported"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Outcome reports what happened to a single object.
type Outcome struct {
	Kind Kind
	// Schema is the schema the key routed to. It is Unknown when routing did not happen or missed.
	Schema schema.ID
	// Reason is a short human readable explanation for skipped and failed objects.
	Reason string
	// Err wraps one of the sentinel errors of this package for skipped and failed objects.
	Err error
}

func imported(id schema.ID) Outcome {
	return Outcome{Kind: Imported, Schema: id}
}

func skipped(id schema.ID, reason string) Outcome {
	return Outcome{Kind: Skipped, Schema: id, Reason: reason, Err: ErrRoutingMiss}
}

func failed(id schema.ID, kind error, err error) Outcome {
	if err == nil {
		return Outcome{Kind: Failed, Schema: id, Reason: kind.Error(), Err: kind}
	}
	return Outcome{Kind: Failed, Schema: id, Reason: kind.Error(), Err: fmt.Errorf("%w: %w", kind, err)}
}
