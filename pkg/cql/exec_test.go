package cql

import (
	"testing"

	"github.com/cuemby/ringdb/pkg/clock"
	"github.com/cuemby/ringdb/pkg/metadata"
	"github.com/cuemby/ringdb/pkg/storage"
	"github.com/cuemby/ringdb/pkg/wire"
	"github.com/stretchr/testify/require"
)

func newTestCtx(t *testing.T) *ExecContext {
	t.Helper()
	st, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	md, err := metadata.Open(t.TempDir())
	require.NoError(t, err)
	return &ExecContext{Storage: st, Metadata: md, Clock: clock.New(1)}
}

func run(t *testing.T, ctx *ExecContext, query string) *Result {
	t.Helper()
	q, err := Parse(query, "ks")
	require.NoError(t, err, "parse: %s", query)
	res, err := q.RunLocal(ctx)
	require.NoError(t, err, "run: %s", query)
	return res
}

func setupTable(t *testing.T, ctx *ExecContext, cols string, pk string) {
	t.Helper()
	run(t, ctx, "CREATE KEYSPACE ks WITH REPLICATION = { 'class':'SimpleStrategy', 'replication_factor':3 }")
	run(t, ctx, "CREATE TABLE ks.t ("+cols+", PRIMARY KEY ("+pk+"))")
}

// S1: insert then select round-trips a single row.
func TestScenarioInsertThenSelect(t *testing.T) {
	ctx := newTestCtx(t)
	setupTable(t, ctx, "id int, name text", "id")

	res := run(t, ctx, "INSERT INTO ks.t (id,name) VALUES (1,'A')")
	require.Equal(t, wire.ResultVoid, res.Kind)

	res = run(t, ctx, "SELECT * FROM ks.t WHERE id = 1")
	require.Equal(t, wire.ResultRows, res.Kind)
	require.Len(t, res.Rows.Values, 1)
}

// S2: upsert keeps only the most recent write's value.
func TestScenarioUpsert(t *testing.T) {
	ctx := newTestCtx(t)
	setupTable(t, ctx, "id int, name text", "id")

	run(t, ctx, "INSERT INTO ks.t (id,name) VALUES (3,'X')")
	run(t, ctx, "INSERT INTO ks.t (id,name) VALUES (3,'Y')")

	res := run(t, ctx, "SELECT * FROM ks.t WHERE id = 3")
	require.Len(t, res.Rows.Values, 1)
	nameIdx := colIndex(res.Rows.Columns, "name")
	require.Equal(t, "Y", res.Rows.Values[0][nameIdx])
}

func colIndex(cols []wire.ColumnSpec, name string) int {
	for i, c := range cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// S3: arithmetic SET assignment.
func TestScenarioArithmeticUpdate(t *testing.T) {
	ctx := newTestCtx(t)
	setupTable(t, ctx, "id int, name text, age int, score int", "id")

	run(t, ctx, "INSERT INTO ks.t (id,name,age,score) VALUES (14,'M',43,23)")
	res := run(t, ctx, "UPDATE ks.t SET age = age + 7 WHERE id = 14")
	require.Equal(t, wire.ResultVoid, res.Kind)

	sel := run(t, ctx, "SELECT * FROM ks.t WHERE id = 14")
	ageIdx := colIndex(sel.Rows.Columns, "age")
	require.Equal(t, "50", sel.Rows.Values[0][ageIdx])
}

// S4: IF EXISTS delete on a missing row fails with Invalid, state unchanged.
func TestScenarioIfExistsDeleteMissing(t *testing.T) {
	ctx := newTestCtx(t)
	setupTable(t, ctx, "id int, name text", "id")

	q, err := Parse("DELETE FROM ks.t WHERE id = 99 IF EXISTS", "ks")
	require.NoError(t, err)
	_, err = q.RunLocal(ctx)
	require.Error(t, err)
}

// S5: missing column list and keyspace is a SyntaxError at parse time.
func TestScenarioSyntaxFailure(t *testing.T) {
	_, err := Parse("INSERT INTO t VALUES (1)", "")
	require.Error(t, err)
}

// S6: SELECT without a partition-key equality in WHERE is rejected.
func TestScenarioPartitionKeyRequired(t *testing.T) {
	ctx := newTestCtx(t)
	setupTable(t, ctx, "id int, name text", "id")
	run(t, ctx, "INSERT INTO ks.t (id,name) VALUES (1,'A')")

	q, err := Parse("SELECT * FROM ks.t WHERE name = 'A'", "ks")
	require.NoError(t, err)
	_, err = q.RunLocal(ctx)
	require.Error(t, err)
}

func TestUseSwitchesKeyspace(t *testing.T) {
	ctx := newTestCtx(t)
	setupTable(t, ctx, "id int, name text", "id")

	q, err := Parse("USE ks", "")
	require.NoError(t, err)
	res, err := q.RunLocal(ctx)
	require.NoError(t, err)
	require.Equal(t, wire.ResultSetKeyspace, res.Kind)
	require.Equal(t, "ks", res.Keyspace)
}

func TestAlterTableAddColumn(t *testing.T) {
	ctx := newTestCtx(t)
	setupTable(t, ctx, "id int, name text", "id")

	q, err := Parse("ALTER TABLE ks.t ADD score int", "ks")
	require.NoError(t, err)
	_, err = q.RunLocal(ctx)
	require.NoError(t, err)

	tbl, ok, err := ctx.Metadata.GetTable("ks", "t")
	require.NoError(t, err)
	require.True(t, ok)
	_, ok = tbl.ColumnType("score")
	require.True(t, ok)
}
