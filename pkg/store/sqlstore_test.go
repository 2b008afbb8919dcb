package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newDuckStore(t *testing.T) *SQLStore {
	t.Helper()

	s, err := NewSQL(context.Background(), newTestLogger(), DialectDuckDB, "", Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedMindmap(t *testing.T, s *SQLStore) {
	t.Helper()

	ctx := context.Background()
	_, err := s.DB().ExecContext(ctx, `INSERT INTO nodes (label, mindmap_id) VALUES
		('root', 'm1'), ('child a', 'm1'), ('child b', 'm1'), ('leaf', 'm1'), ('other', 'm2')`)
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `INSERT INTO edges (source, target, mindmap_id) VALUES
		(1, 2, 'm1'), (1, 3, 'm1'), (2, 4, 'm1')`)
	require.NoError(t, err)
}

func TestStore_SQLStore_Execute(t *testing.T) {
	t.Parallel()

	s := newDuckStore(t)
	seedMindmap(t, s)
	ctx := context.Background()

	t.Run("count", func(t *testing.T) {
		res, err := s.Execute(ctx, `SELECT COUNT(*) AS count FROM nodes`)
		require.NoError(t, err)
		require.Equal(t, []string{"count"}, res.Columns)
		require.Equal(t, 1, res.Count())
		require.EqualValues(t, 5, res.Rows[0]["count"])
	})

	t.Run("edges", func(t *testing.T) {
		res, err := s.Execute(ctx, `SELECT source, target FROM edges WHERE mindmap_id = 'm1' ORDER BY id`)
		require.NoError(t, err)
		require.Equal(t, []string{"source", "target"}, res.Columns)
		require.Len(t, res.Rows, 3)
		require.EqualValues(t, 1, res.Rows[0]["source"])
		require.EqualValues(t, 2, res.Rows[0]["target"])
	})

	t.Run("empty result is non-nil", func(t *testing.T) {
		res, err := s.Execute(ctx, `SELECT label FROM nodes WHERE mindmap_id = 'missing'`)
		require.NoError(t, err)
		require.NotNil(t, res.Rows)
		require.Equal(t, 0, res.Count())
	})

	t.Run("missing relation", func(t *testing.T) {
		_, err := s.Execute(ctx, `SELECT * FROM no_such_table`)
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to prepare query")
	})

	t.Run("second statement is refused", func(t *testing.T) {
		_, err := s.Execute(ctx, `SELECT 1; DROP TABLE edges;`)
		require.ErrorIs(t, err, ErrMultipleStatements)

		res, err := s.Execute(ctx, `SELECT COUNT(*) AS count FROM edges`)
		require.NoError(t, err)
		require.EqualValues(t, 3, res.Rows[0]["count"])
	})

	t.Run("trailing semicolon", func(t *testing.T) {
		res, err := s.Execute(ctx, `SELECT label FROM nodes WHERE label = 'a;b';`)
		require.NoError(t, err)
		require.Equal(t, 0, res.Count())
	})
}

func TestStore_SQLStore_MigrateIdempotent(t *testing.T) {
	t.Parallel()

	s := newDuckStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestStore_SQLStore_DescribeSchema(t *testing.T) {
	t.Parallel()

	s := newDuckStore(t)
	desc, err := s.DescribeSchema(context.Background())
	require.NoError(t, err)
	require.Contains(t, desc, "This is a DuckDB database.")
	require.Contains(t, desc, `"main"."nodes":`)
	require.Contains(t, desc, `"main"."edges":`)
	require.Contains(t, desc, `"mindmap_id"`)
}

func TestStore_SQLStore_UnsupportedDialect(t *testing.T) {
	t.Parallel()

	_, err := NewSQL(context.Background(), newTestLogger(), Dialect("sqlite"), "", Options{})
	require.Error(t, err)
	require.Contains(t, err.Error(), `unsupported dialect "sqlite"`)
}

func TestStore_SQLStore_MigrateClickHouseUnsupported(t *testing.T) {
	t.Parallel()

	s := &SQLStore{log: newTestLogger(), dialect: DialectClickHouse}
	err := s.Migrate(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnsupported))
}
