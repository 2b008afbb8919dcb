package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresMigrationSQL = `
CREATE TABLE IF NOT EXISTS nodes (
	id SERIAL PRIMARY KEY,
	label TEXT NOT NULL,
	mindmap_id TEXT NOT NULL,
	chunk_id TEXT,
	index_id TEXT
);

CREATE TABLE IF NOT EXISTS edges (
	id SERIAL PRIMARY KEY,
	source INT REFERENCES nodes(id) ON DELETE CASCADE,
	target INT REFERENCES nodes(id) ON DELETE CASCADE,
	mindmap_id TEXT NOT NULL,
	index_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_nodes_mindmap_id ON nodes (mindmap_id);
CREATE INDEX IF NOT EXISTS idx_edges_mindmap_id ON edges (mindmap_id);
`

// PostgresStore executes queries against PostgreSQL through a pgx pool.
// Every query runs in a read-only transaction.
type PostgresStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
	opts Options
}

// NewPostgres creates a pool for connString and verifies connectivity.
func NewPostgres(ctx context.Context, log *slog.Logger, connString string, opts Options) (*PostgresStore, error) {
	opts.validate()

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	log.Info("store: connected to postgres",
		"host", poolConfig.ConnConfig.Host,
		"database", poolConfig.ConnConfig.Database,
		"user", poolConfig.ConnConfig.User)

	return &PostgresStore{
		log:  log,
		pool: pool,
		opts: opts,
	}, nil
}

// Execute runs query in a read-only transaction and returns the normalized rows.
func (s *PostgresStore) Execute(ctx context.Context, query string) (Result, error) {
	if err := CheckSingleStatement(query); err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return Result{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	resultRows := make([]Record, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
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

	s.log.Debug("store: query executed", "rows", len(resultRows))

	return Result{
		Columns: columns,
		Rows:    resultRows,
	}, nil
}

// Migrate creates the nodes and edges tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	s.log.Info("store: running postgres migrations")
	if _, err := s.pool.Exec(ctx, postgresMigrationSQL); err != nil {
		return fmt.Errorf("failed to create mindmap tables: %w", err)
	}
	s.log.Info("store: postgres migrations completed")
	return nil
}

// DescribeSchema introspects information_schema for user tables.
func (s *PostgresStore) DescribeSchema(ctx context.Context) (string, error) {
	rows, err := s.pool.Query(ctx, describeColumnsSQL)
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

	return formatSchema(columns, "PostgreSQL"), nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
