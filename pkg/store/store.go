// Package store executes read queries against the relational store that backs
// the mindmap (nodes and edges), normalizing rows into plain Go values.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

const defaultQueryTimeout = 30 * time.Second

// ErrUnsupported is returned by operations a backend does not implement.
var ErrUnsupported = errors.New("operation not supported by this store")

// Record is a single result row keyed by column name.
type Record = map[string]any

// Result holds the rows returned by a query.
type Result struct {
	Columns []string `json:"columns"`
	Rows    []Record `json:"rows"`
}

// Count returns the number of rows in the result.
func (r Result) Count() int {
	return len(r.Rows)
}

// Store is a structured store the pipeline can query.
type Store interface {
	// Execute runs a query and returns its rows.
	Execute(ctx context.Context, query string) (Result, error)
	// Migrate creates the mindmap tables if they do not exist.
	Migrate(ctx context.Context) error
	// DescribeSchema returns a human-readable description of tables and columns.
	DescribeSchema(ctx context.Context) (string, error)
	// Close releases the underlying connections.
	Close() error
}

// Options tunes store behavior.
type Options struct {
	// QueryTimeout bounds a single Execute call. Defaults to 30s.
	QueryTimeout time.Duration
}

func (o *Options) validate() {
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = defaultQueryTimeout
	}
}

// Open connects to the store identified by rawURL. Supported schemes are
// postgres://, postgresql://, duckdb://<path> and clickhouse://.
func Open(ctx context.Context, log *slog.Logger, rawURL string, opts Options) (Store, error) {
	opts.validate()

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse store URL: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return NewPostgres(ctx, log, rawURL, opts)
	case "duckdb":
		path := strings.TrimPrefix(rawURL, u.Scheme+"://")
		return NewSQL(ctx, log, DialectDuckDB, path, opts)
	case "clickhouse":
		return NewSQL(ctx, log, DialectClickHouse, rawURL, opts)
	default:
		return nil, fmt.Errorf("unsupported store URL scheme %q (expected postgres://, duckdb:// or clickhouse://)", u.Scheme)
	}
}

// RedactedURL returns rawURL with any password replaced, for logging.
func RedactedURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid>"
	}
	return u.Redacted()
}
