package cql

import (
	"sort"

	"github.com/cuemby/ringdb/pkg/lexer"
	"github.com/cuemby/ringdb/pkg/model"
	"github.com/cuemby/ringdb/pkg/wire"
	"github.com/cuemby/ringdb/pkg/wireerr"
)

// SelectQuery is a parsed `SELECT <cols|*> FROM <ks.t> [WHERE …] [ORDER BY
// col (ASC|DESC)]` statement (spec §6).
type SelectQuery struct {
	KeyspaceName string
	TableName    string
	Columns      []string // nil means "*"
	Where        Expr     // nil means no WHERE clause
	OrderBy      string
	OrderDesc    bool
}

func (q *SelectQuery) Keyspace() string { return q.KeyspaceName }

func (q *SelectQuery) IsRead() bool { return true }

func (q *SelectQuery) Partition(pkCols []string) (map[string]string, bool) {
	if q.Where == nil {
		return nil, false
	}
	return PartitionEquality(q.Where, pkCols)
}

func parseSelect(nodes []lexer.Node, defaultKeyspace string) (*SelectQuery, error) {
	p := &stmtParser{nodes: nodes}
	if err := p.expectWord("select"); err != nil {
		return nil, err
	}

	q := &SelectQuery{}
	isStar := false
	if l, ok := p.peek().(lexer.Leaf); ok && l.Kind == lexer.Symbol && l.Text == "*" {
		p.advance()
		isStar = true
	}
	if !isStar && p.peekWord() != "from" {
		for {
			col, err := p.expectIdentifier()
			if err != nil {
				return nil, err
			}
			q.Columns = append(q.Columns, col)
			if l, ok := p.peek().(lexer.Leaf); ok && l.Kind == lexer.Symbol && l.Text == "," {
				p.advance()
				continue
			}
			break
		}
	}

	if err := p.expectWord("from"); err != nil {
		return nil, err
	}
	tableRef, err := p.expectIdentifier()
	if err != nil {
		return nil, wireerr.New(wireerr.SyntaxError, "expected table reference after FROM")
	}
	q.KeyspaceName, q.TableName = splitTableRef(tableRef, defaultKeyspace)
	if q.KeyspaceName == "" {
		return nil, wireerr.New(wireerr.SyntaxError, "no keyspace specified and no current keyspace")
	}

	if _, ok := p.peek().(*lexer.IterateToken); ok {
		whereNodes, _ := p.expectWhere()
		expr, err := ParseWhere(whereNodes)
		if err != nil {
			return nil, err
		}
		q.Where = expr
	}

	if p.peekWord() == "order" {
		p.advance()
		if err := p.expectWord("by"); err != nil {
			return nil, err
		}
		col, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		q.OrderBy = col
		switch p.peekWord() {
		case "asc":
			p.advance()
		case "desc":
			p.advance()
			q.OrderDesc = true
		}
	}

	if !p.atEnd() {
		return nil, wireerr.New(wireerr.SyntaxError, "unexpected tokens after SELECT statement")
	}
	return q, nil
}

// SelectRows resolves the table and runs the WHERE/ORDER BY against this
// node's local row store, returning raw model.Row values (PrimaryKey and
// all) rather than a wire-shaped Result. The delegator uses this
// directly for the local replica's contribution to read-repair, which
// needs the primary key to line rows up across replicas; RunLocal builds
// on top of it for the plain single-node path.
func (q *SelectQuery) SelectRows(ctx *ExecContext) ([]*model.Row, *model.Table, error) {
	table, ok, err := ctx.Metadata.GetTable(q.KeyspaceName, q.TableName)
	if err != nil {
		return nil, nil, wireerr.Wrap(wireerr.ServerError, "metadata lookup failed", err)
	}
	if !ok {
		return nil, nil, wireerr.Newf(wireerr.Invalid, "table %s.%s does not exist", q.KeyspaceName, q.TableName)
	}

	if _, ok := q.Partition(table.PartitionKey); !ok {
		return nil, nil, wireerr.New(wireerr.Invalid, "partition key required in WHERE")
	}

	pkOrder := table.FullPrimaryKey()
	pred := func(row *model.Row) bool {
		if q.Where == nil {
			return true
		}
		return Eval(q.Where, row)
	}
	rows, err := ctx.Storage.Select(q.KeyspaceName, q.TableName, pkOrder, pred)
	if err != nil {
		return nil, nil, wireerr.Wrap(wireerr.ServerError, "select failed", err)
	}

	if q.OrderBy != "" {
		col := q.OrderBy
		desc := q.OrderDesc
		sort.SliceStable(rows, func(i, j int) bool {
			vi, _ := columnValue(rows[i], col)
			vj, _ := columnValue(rows[j], col)
			if desc {
				return vi > vj
			}
			return vi < vj
		})
	}
	return rows, table, nil
}

// RunLocal executes the SELECT against this node's local row store (spec
// §4.2, §4.4). It rejects a WHERE clause that doesn't pin the table's full
// partition key (spec §4.2, §7, scenario S6).
func (q *SelectQuery) RunLocal(ctx *ExecContext) (*Result, error) {
	rows, table, err := q.SelectRows(ctx)
	if err != nil {
		return nil, err
	}

	names := q.Columns
	if names == nil {
		names = table.ColumnNames()
	}
	cols := make([]wire.ColumnSpec, len(names))
	for i, n := range names {
		dt, _ := table.ColumnType(n)
		if dt == "" {
			for _, pk := range table.PartitionKey {
				if pk == n {
					dt = model.Text
				}
			}
		}
		cols[i] = wire.ColumnSpec{Name: n, Type: dt}
	}

	values := make([][]string, len(rows))
	present := make([][]bool, len(rows))
	for i, row := range rows {
		values[i] = make([]string, len(names))
		present[i] = make([]bool, len(names))
		for j, n := range names {
			v, ok := columnValue(row, n)
			values[i][j] = v
			present[i][j] = ok
		}
	}

	return &Result{Kind: wire.ResultRows, Rows: &wire.RowsResult{
		Keyspace: q.KeyspaceName,
		Table:    q.TableName,
		Columns:  cols,
		Values:   values,
		Present:  present,
	}}, nil
}
