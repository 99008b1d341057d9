// Package constants is responsible for defining the constants used in the application.
package constants

import (
	"log/slog"
)

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// CmdName is the name of the importer command.
	CmdName = "selamat-importer"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelWarn
)

// Object layout constants.
const (
	// SOSPrefix is the storage key prefix under which SOS documents are dropped.
	SOSPrefix = "sos/"

	// ReportPrefix is the storage key prefix under which disaster reports are dropped.
	ReportPrefix = "reports/"

	// DocumentExtension is the suffix of the documents considered by batch imports.
	DocumentExtension = ".json"

	// S3EventSource is the event source marker carried by object-store change records.
	S3EventSource = "aws:s3"

	// S3BusSource is the source of object-store change envelopes on the event bus.
	S3BusSource = "aws.s3"
)

// Default table names, per schema.
const (
	// DefaultSOSTable is the default destination table of SOS records.
	DefaultSOSTable = "sos"

	// DefaultReportTable is the default destination table of report records.
	DefaultReportTable = "report"
)

// Service defaults.
const (
	// DefaultListenPort is the default port of the event HTTP server.
	DefaultListenPort = 8080

	// DefaultMetricsPort is the default port of the metrics HTTP server.
	DefaultMetricsPort = 2113

	// DefaultMaxEventBytes is the default size limit of an event posted to the HTTP server.
	DefaultMaxEventBytes = 1 << 20
)
