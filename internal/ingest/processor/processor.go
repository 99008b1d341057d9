// Package processor ingests the JSON documents of an object store into their destination tables.
//
// A single object is ingested with Ingest, which never fails: it reports an Outcome.
// Every document under a prefix is ingested, one after the other, with ImportAll.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/myselamat/selamat-importer/internal/constants"
	"github.com/myselamat/selamat-importer/internal/ingest/objectstore"
	"github.com/myselamat/selamat-importer/internal/ingest/schema"
	"github.com/prometheus/client_golang/prometheus"
)

type objectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	ListPage(ctx context.Context, bucket, prefix, token string) (objectstore.Page, error)
}

type tableStore interface {
	Describe(ctx context.Context, table string) error
	Put(ctx context.Context, table string, r schema.Record) error
}

// Processor ingests objects into tables.
type Processor struct {
	objects objectStore
	tables  tableStore
	targets map[schema.ID]string
	pinned  schema.ID
	log     *slog.Logger

	itemsTotal   *prometheus.CounterVec
	itemDuration *prometheus.HistogramVec
	batchesTotal *prometheus.CounterVec
	batchItems   prometheus.Counter
}

type options struct {
	pinned  schema.ID
	targets map[schema.ID]string
	logger  *slog.Logger
}

// Options represents an optional function to override Processor default values.
type Options func(*options)

// WithPinnedSchema restricts the processor to the documents of a single schema.
func WithPinnedSchema(id schema.ID) Options {
	return func(o *options) {
		o.pinned = id
	}
}

// WithTables overrides the destination table of some schemas.
func WithTables(targets map[schema.ID]string) Options {
	return func(o *options) {
		for id, table := range targets {
			o.targets[id] = table
		}
	}
}

// WithLogger sets the logger used to report outcomes.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// New creates a processor reading from objects and writing to tables.
// Its metrics are registered against reg.
func New(objects objectStore, tables tableStore, reg prometheus.Registerer, args ...Options) (*Processor, error) {
	opts := options{
		targets: map[schema.ID]string{
			schema.SOS:    constants.DefaultSOSTable,
			schema.Report: constants.DefaultReportTable,
		},
		logger: slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	if opts.pinned != schema.Unknown && opts.pinned.Prefix() == "" {
		return nil, fmt.Errorf("cannot pin unknown schema %q", string(opts.pinned))
	}
	for _, id := range schema.IDs() {
		if opts.targets[id] == "" {
			return nil, fmt.Errorf("no destination table for schema %q", id)
		}
	}

	itemsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "importer_items_total",
		Help: "Total number of objects handled, by schema and result.",
	}, []string{"schema", "result"})
	itemDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "importer_item_duration_seconds",
		Help:    "Time spent ingesting a single object.",
		Buckets: prometheus.DefBuckets,
	}, []string{"schema"})
	batchesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "importer_batches_total",
		Help: "Total number of batch imports, by result.",
	}, []string{"result"})
	batchItems := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "importer_batch_items_total",
		Help: "Total number of objects attempted by batch imports.",
	})

	for _, c := range []prometheus.Collector{itemsTotal, itemDuration, batchesTotal, batchItems} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register processor metrics: %v", err)
		}
	}

	return &Processor{
		objects:      objects,
		tables:       tables,
		targets:      opts.targets,
		pinned:       opts.pinned,
		log:          opts.logger,
		itemsTotal:   itemsTotal,
		itemDuration: itemDuration,
		batchesTotal: batchesTotal,
		batchItems:   batchItems,
	}, nil
}

// Pinned returns the schema the processor is restricted to, or Unknown.
func (p Processor) Pinned() schema.ID {
	return p.pinned
}

// DefaultPrefix is the prefix listed by a batch when the caller gives none.
func (p Processor) DefaultPrefix() string {
	return p.pinned.Prefix()
}

// Ingest imports the object stored at key in bucket into the table of its schema.
//
// Problems are reported through the returned Outcome and logged. They are never returned as errors.
func (p Processor) Ingest(ctx context.Context, bucket, key string) Outcome {
	start := time.Now()
	o := p.ingest(ctx, bucket, key)

	p.itemsTotal.WithLabelValues(o.Schema.String(), o.Kind.String()).Inc()
	if o.Schema != schema.Unknown {
		p.itemDuration.WithLabelValues(o.Schema.String()).Observe(time.Since(start).Seconds())
	}

	switch o.Kind {
	case Imported:
		p.log.Info("Imported document", "bucket", bucket, "key", key, "schema", o.Schema, "table", p.targets[o.Schema])
	case Skipped:
		p.log.Info("Skipped document", "bucket", bucket, "key", key, "reason", o.Reason)
	default:
		p.log.Error("Failed to import document", "bucket", bucket, "key", key, "schema", o.Schema, "err", o.Err)
	}
	return o
}

func (p Processor) ingest(ctx context.Context, bucket, key string) Outcome {
	if p.pinned != schema.Unknown && !strings.HasPrefix(key, p.pinned.Prefix()) {
		return skipped(schema.Unknown, "outside pinned prefix")
	}

	id, ok := schema.Route(key)
	if !ok {
		return skipped(schema.Unknown, ErrRoutingMiss.Error())
	}

	data, err := p.objects.Get(ctx, bucket, key)
	if err != nil {
		return failed(id, ErrFetch, err)
	}
	doc, err := schema.ParseDocument(data)
	if err != nil {
		return failed(id, ErrFetch, err)
	}

	table := p.targets[id]
	if err := p.tables.Describe(ctx, table); err != nil {
		return failed(id, ErrTargetUnavailable, err)
	}

	r, err := schema.Map(doc, key, id)
	if err != nil {
		return failed(id, ErrFetch, err)
	}

	if err := p.tables.Put(ctx, table, r); err != nil {
		return failed(id, ErrWrite, err)
	}
	return imported(id)
}

// ImportAll ingests every JSON document listed under prefix in bucket, sequentially.
//
// An empty prefix lists from DefaultPrefix. When the processor is pinned, the prefix is rooted under the
// pinned schema prefix and listed keys outside of it are ignored.
// It returns the number of documents attempted, whatever their outcome. A listing failure aborts the batch
// and returns an error wrapping ErrListing, along with the number of documents attempted so far.
func (p Processor) ImportAll(ctx context.Context, bucket, prefix string) (n int, err error) {
	prefix = p.batchPrefix(prefix)
	root := p.pinned.Prefix()

	p.log.Info("Starting batch import", "bucket", bucket, "prefix", prefix)
	defer func() {
		result := "completed"
		if err != nil {
			result = "failed"
			p.log.Error("Batch import aborted", "bucket", bucket, "prefix", prefix, "attempted", n, "err", err)
		} else {
			p.log.Info("Batch import completed", "bucket", bucket, "prefix", prefix, "attempted", n)
		}
		p.batchesTotal.WithLabelValues(result).Inc()
	}()

	var token string
	for {
		page, err := p.objects.ListPage(ctx, bucket, prefix, token)
		if err != nil {
			return n, fmt.Errorf("%w: %w", ErrListing, err)
		}

		for _, key := range page.Keys {
			if !strings.HasSuffix(key, constants.DocumentExtension) || !strings.HasPrefix(key, root) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return n, err
			}
			p.Ingest(ctx, bucket, key)
			p.batchItems.Inc()
			n++
		}

		if page.NextToken == "" {
			return n, nil
		}
		token = page.NextToken
	}
}

func (p Processor) batchPrefix(prefix string) string {
	root := p.pinned.Prefix()
	if prefix == "" {
		return root
	}
	if root == "" || strings.HasPrefix(prefix, root) {
		return prefix
	}
	return root + strings.TrimLeft(prefix, "/")
}
