// Package dispatcher classifies inbound trigger events and routes them to the processor.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/myselamat/selamat-importer/internal/constants"
	"github.com/myselamat/selamat-importer/internal/ingest/processor"
	"github.com/myselamat/selamat-importer/internal/ingest/schema"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrUnknownEvent is returned for events matching none of the accepted shapes.
var ErrUnknownEvent = errors.New("unknown event format")

const unknownEventBody = "Unknown event format"

// Event shapes, used as metric labels.
const (
	shapeRecords = "records"
	shapeBus     = "bus"
	shapeBatch   = "batch"
	shapeUnknown = "unknown"
)

var successBodies = map[schema.ID]string{
	schema.Unknown: "Success",
	schema.SOS:     "SOS import completed successfully",
	schema.Report:  "Report import completed successfully",
}

type ingester interface {
	Ingest(ctx context.Context, bucket, key string) processor.Outcome
	ImportAll(ctx context.Context, bucket, prefix string) (int, error)
	Pinned() schema.ID
	DefaultPrefix() string
}

// Response is the result of handling an event.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Dispatcher handles trigger events.
type Dispatcher struct {
	proc ingester
	log  *slog.Logger

	eventsTotal *prometheus.CounterVec
}

type options struct {
	logger *slog.Logger
}

// Options represents an optional function to override Dispatcher default values.
type Options func(*options)

// WithLogger sets the logger of the dispatcher.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// New creates a dispatcher feeding proc. Its metrics are registered against reg.
func New(proc ingester, reg prometheus.Registerer, args ...Options) (*Dispatcher, error) {
	opts := options{logger: slog.Default()}
	for _, opt := range args {
		opt(&opts)
	}

	eventsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "importer_events_total",
		Help: "Total number of trigger events handled, by shape and status code.",
	}, []string{"shape", "status"})
	if err := reg.Register(eventsTotal); err != nil {
		return nil, fmt.Errorf("failed to register events counter: %v", err)
	}

	return &Dispatcher{
		proc:        proc,
		log:         opts.logger,
		eventsTotal: eventsTotal,
	}, nil
}

// Handle classifies the event and ingests the objects it designates.
//
// Accepted shapes, in order: a list of S3 change notification records, an S3 event bus envelope and
// an explicit {"bucket", "prefix"} batch request. Anything else is answered with 400 without touching
// any store. Per object failures do not change the status code: errors outside of them answer 500.
func (d Dispatcher) Handle(ctx context.Context, event json.RawMessage) (resp Response) {
	shape := shapeUnknown
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Panic while handling event", "shape", shape, "panic", r)
			resp = failure(fmt.Errorf("%v", r))
		}
		d.eventsTotal.WithLabelValues(shape, strconv.Itoa(resp.StatusCode)).Inc()
	}()

	d.log.Debug("Event received", "event", string(event))

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(event, &fields); err != nil {
		d.log.Error("Unknown event format", "err", err)
		return Response{StatusCode: 400, Body: unknownEventBody}
	}

	var err error
	switch {
	case fields["Records"] != nil:
		shape = shapeRecords
		err = d.handleRecords(ctx, fields["Records"])
	case isBusEnvelope(fields):
		shape = shapeBus
		err = d.handleBusEnvelope(ctx, fields["detail"])
	case fields["bucket"] != nil:
		shape = shapeBatch
		err = d.handleBatch(ctx, fields["bucket"], fields["prefix"])
	default:
		d.log.Error("Unknown event format", "err", ErrUnknownEvent)
		return Response{StatusCode: 400, Body: unknownEventBody}
	}

	if err != nil {
		d.log.Error("Failed to handle event", "shape", shape, "err", err)
		return failure(err)
	}
	return Response{StatusCode: 200, Body: successBodies[d.proc.Pinned()]}
}

func failure(err error) Response {
	return Response{StatusCode: 500, Body: fmt.Sprintf("Error: %v", err)}
}

func isBusEnvelope(fields map[string]json.RawMessage) bool {
	var source string
	if err := json.Unmarshal(fields["source"], &source); err != nil {
		return false
	}
	return source == constants.S3BusSource
}

// handleRecords ingests the objects of S3 change notification records.
// Records from other event sources are ignored whatever their content.
func (d Dispatcher) handleRecords(ctx context.Context, raw json.RawMessage) error {
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("invalid records: %v", err)
	}
	if records == nil {
		return errors.New("records is not a list")
	}

	for i, rawRecord := range records {
		var source struct {
			EventSource string `json:"eventSource"`
		}
		if err := json.Unmarshal(rawRecord, &source); err != nil {
			return fmt.Errorf("record %d is not an object: %v", i, err)
		}
		if source.EventSource != constants.S3EventSource {
			d.log.Debug("Ignoring record from another source", "index", i, "source", source.EventSource)
			continue
		}

		var r events.S3EventRecord
		if err := json.Unmarshal(rawRecord, &r); err != nil {
			return fmt.Errorf("invalid record %d: %v", i, err)
		}
		if r.S3.Bucket.Name == "" || r.S3.Object.Key == "" {
			return fmt.Errorf("record %d has no bucket name or object key", i)
		}
		d.proc.Ingest(ctx, r.S3.Bucket.Name, r.S3.Object.URLDecodedKey)
	}
	return nil
}

type busDetail struct {
	Bucket events.S3Bucket `json:"bucket"`
	Object struct {
		Key string `json:"key"`
	} `json:"object"`
}

// handleBusEnvelope ingests the object designated by an S3 event bus envelope.
func (d Dispatcher) handleBusEnvelope(ctx context.Context, raw json.RawMessage) error {
	if raw == nil {
		return errors.New("envelope has no detail")
	}
	var detail busDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return fmt.Errorf("invalid envelope detail: %v", err)
	}
	if detail.Bucket.Name == "" || detail.Object.Key == "" {
		return errors.New("envelope detail has no bucket name or object key")
	}

	d.proc.Ingest(ctx, detail.Bucket.Name, detail.Object.Key)
	return nil
}

// handleBatch imports every document under the requested prefix.
// A listing failure aborts the batch but is not an error of the event.
func (d Dispatcher) handleBatch(ctx context.Context, rawBucket, rawPrefix json.RawMessage) error {
	var bucket string
	if err := json.Unmarshal(rawBucket, &bucket); err != nil {
		return fmt.Errorf("bucket is not a string: %v", err)
	}
	if bucket == "" {
		return errors.New("empty bucket name")
	}

	prefix := d.proc.DefaultPrefix()
	if rawPrefix != nil {
		var p *string
		if err := json.Unmarshal(rawPrefix, &p); err != nil {
			return fmt.Errorf("prefix is not a string: %v", err)
		}
		if p != nil && *p != "" {
			prefix = *p
		}
	}

	n, err := d.proc.ImportAll(ctx, bucket, prefix)
	if err != nil {
		d.log.Warn("Batch import ended early", "bucket", bucket, "prefix", prefix, "attempted", n, "err", err)
		return nil
	}
	d.log.Debug("Batch import done", "bucket", bucket, "prefix", prefix, "attempted", n)
	return nil
}
