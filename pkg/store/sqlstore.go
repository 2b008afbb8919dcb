package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/duckdb/duckdb-go/v2"
)

// Dialect names a database/sql driver supported by SQLStore.
type Dialect string

const (
	DialectDuckDB     Dialect = "duckdb"
	DialectClickHouse Dialect = "clickhouse"
)

const duckDBMigrationSQL = `
CREATE SEQUENCE IF NOT EXISTS nodes_id_seq;
CREATE SEQUENCE IF NOT EXISTS edges_id_seq;

CREATE TABLE IF NOT EXISTS nodes (
	id INTEGER PRIMARY KEY DEFAULT nextval('nodes_id_seq'),
	label TEXT NOT NULL,
	mindmap_id TEXT NOT NULL,
	chunk_id TEXT,
	index_id TEXT
);

CREATE TABLE IF NOT EXISTS edges (
	id INTEGER PRIMARY KEY DEFAULT nextval('edges_id_seq'),
	source INTEGER REFERENCES nodes(id),
	target INTEGER REFERENCES nodes(id),
	mindmap_id TEXT NOT NULL,
	index_id TEXT
);
`

// SQLStore executes queries through database/sql against DuckDB or ClickHouse.
type SQLStore struct {
	log     *slog.Logger
	db      *sql.DB
	dialect Dialect
	opts    Options
}

// NewSQL opens dsn with the driver for dialect. An empty DuckDB dsn opens an
// in-memory database.
func NewSQL(ctx context.Context, log *slog.Logger, dialect Dialect, dsn string, opts Options) (*SQLStore, error) {
	opts.validate()

	switch dialect {
	case DialectDuckDB, DialectClickHouse:
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", dialect, err)
	}

	log.Info("store: connected", "dialect", dialect)

	return &SQLStore{
		log:     log,
		db:      db,
		dialect: dialect,
		opts:    opts,
	}, nil
}

// DB returns the underlying handle.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Execute runs a single statement. DuckDB queries are prepared first so the
// engine itself refuses multi-statement input.
func (s *SQLStore) Execute(ctx context.Context, query string) (Result, error) {
	if err := CheckSingleStatement(query); err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	var rows *sql.Rows
	if s.dialect == DialectDuckDB {
		stmt, err := conn.PrepareContext(ctx, query)
		if err != nil {
			return Result{}, fmt.Errorf("failed to prepare query: %w", err)
		}
		defer stmt.Close()
		rows, err = stmt.QueryContext(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("failed to execute query: %w", err)
		}
	} else {
		rows, err = conn.QueryContext(ctx, query)
		if err != nil {
			return Result{}, fmt.Errorf("failed to execute query: %w", err)
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("failed to get columns: %w", err)
	}

	resultRows := make([]Record, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return Result{}, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(Record, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, row)
	}

	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("error iterating rows: %w", err)
	}

	return Result{
		Columns: columns,
		Rows:    resultRows,
	}, nil
}

// Migrate creates the mindmap tables. Only DuckDB is supported; ClickHouse
// deployments manage their own tables.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if s.dialect != DialectDuckDB {
		return fmt.Errorf("migrate %s: %w", s.dialect, ErrUnsupported)
	}
	if _, err := s.db.ExecContext(ctx, duckDBMigrationSQL); err != nil {
		return fmt.Errorf("failed to create mindmap tables: %w", err)
	}
	s.log.Info("store: duckdb migrations completed")
	return nil
}

func (s *SQLStore) DescribeSchema(ctx context.Context) (string, error) {
	rows, err := s.db.QueryContext(ctx, describeColumnsSQL)
	if err != nil {
		return "", fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []columnInfo
	for rows.Next() {
		var col columnInfo
		if err := rows.Scan(&col.Schema, &col.Table, &col.Name, &col.Type); err != nil {
			return "", fmt.Errorf("failed to scan column row: %w", err)
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("error iterating columns: %w", err)
	}

	engine := "DuckDB"
	if s.dialect == DialectClickHouse {
		engine = "ClickHouse"
	}
	return formatSchema(columns, engine), nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
