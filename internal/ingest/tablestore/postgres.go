package tablestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/myselamat/selamat-importer/internal/ingest/schema"
)

// PostgresConfig holds the configuration for connecting to the PostgreSQL database.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Postgres writes records to PostgreSQL tables of (id, s3_key, imported_at, record JSONB) rows.
type Postgres struct {
	dbpool dbPool
}

type pgOptions struct {
	newPool func(ctx context.Context, dsn string) (dbPool, error)
}

// PostgresOptions represents an optional function to override Postgres default values.
type PostgresOptions func(*pgOptions)

// NewPostgres creates a table store with a PostgreSQL connection pool using the provided configuration.
// Note: The connection is validated with a ping, but it is not maintained.
func NewPostgres(ctx context.Context, cfg PostgresConfig, args ...PostgresOptions) (*Postgres, error) {
	opts := pgOptions{
		newPool: func(ctx context.Context, dsn string) (dbPool, error) {
			return pgxpool.New(ctx, dsn)
		},
	}

	for _, opt := range args {
		opt(&opts)
	}

	dbpool, err := opts.newPool(ctx, cfg.URI("postgres"))
	if err != nil {
		return nil, fmt.Errorf("unable to create database connection pool: %w", err)
	}

	slog.Debug("Testing database connection", "host", cfg.Host, "port", cfg.Port)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to ping database: %v", err)
	}

	slog.Info("Successfully pinged PostgreSQL database", "host", cfg.Host, "port", cfg.Port)
	return &Postgres{dbpool: dbpool}, nil
}

// Describe checks that the table exists.
// It returns ErrTableNotFound if the table does not exist.
func (db *Postgres) Describe(ctx context.Context, table string) error {
	if db.dbpool == nil {
		return fmt.Errorf("database not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var oid *string
	if err := db.dbpool.QueryRow(ctx, `SELECT to_regclass($1)::text`, pgx.Identifier{table}.Sanitize()).Scan(&oid); err != nil {
		return fmt.Errorf("could not describe table %q: %v", table, err)
	}
	if oid == nil {
		return fmt.Errorf("could not describe table %q: %w", table, ErrTableNotFound)
	}
	return nil
}

// Put inserts the record as a new row of the table.
func (db *Postgres) Put(ctx context.Context, table string, r schema.Record) error {
	if db.dbpool == nil {
		return fmt.Errorf("database not initialized")
	}

	importedAt, err := time.Parse(time.RFC3339Nano, r.ImportedAt())
	if err != nil {
		return fmt.Errorf("invalid import time for record %q: %v", r.ID(), err)
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (
			id,
			s3_key,
			imported_at,
			record
		) VALUES ($1, $2, $3, $4)`,
		pgx.Identifier{table}.Sanitize(),
	)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err = db.dbpool.Exec(ctx, query,
		r.ID(),            // id
		r.SourceKey(),     // s3_key
		importedAt,        // imported_at
		map[string]any(r), // record
	)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("insert canceled: %v", err)
		}
		return fmt.Errorf("failed to insert record %q in table %q: %v", r.ID(), table, err)
	}
	return nil
}

// Close closes the database connection.
//
// If the connection is already closed, it does nothing.
// If the connection does not close within 10 seconds, it returns an error.
func (db *Postgres) Close() error {
	if db.dbpool == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		db.dbpool.Close()
	}()

	select {
	case <-done:
		db.dbpool = nil
		return nil
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timeout while closing database, connection may still be open")
	}
}

// URI returns a connection URI for PostgreSQL with the given scheme.
// It does not check the validity of the configuration values.
//
// Security warning: the returned string may include credentials.
func (c PostgresConfig) URI(scheme string) string {
	host := c.Host
	if c.Port != 0 {
		host = fmt.Sprintf("%s:%d", c.Host, c.Port)
	}

	user := url.User(c.User)
	if c.Password != "" {
		user = url.UserPassword(c.User, c.Password)
	}

	u := &url.URL{
		Scheme: scheme,
		User:   user,
		Host:   host,
		Path:   c.DBName,
	}

	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
