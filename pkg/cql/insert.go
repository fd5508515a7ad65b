package cql

import (
	"github.com/cuemby/ringdb/pkg/lexer"
	"github.com/cuemby/ringdb/pkg/model"
	"github.com/cuemby/ringdb/pkg/wireerr"
)

// InsertQuery is a parsed `INSERT INTO <ks.t> (cols…) VALUES (lits…)`
// statement (spec §6).
type InsertQuery struct {
	KeyspaceName string
	TableName    string
	Columns      []string
	Values       []string // raw, quote-stripped literal text, same order as Columns
}

func (q *InsertQuery) Keyspace() string { return q.KeyspaceName }

func (q *InsertQuery) IsRead() bool { return false }

func (q *InsertQuery) Partition(pkCols []string) (map[string]string, bool) {
	out := make(map[string]string, len(pkCols))
	for _, col := range pkCols {
		found := false
		for i, c := range q.Columns {
			if c == col {
				out[col] = q.Values[i]
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	return out, true
}

func parseInsert(nodes []lexer.Node, defaultKeyspace string) (*InsertQuery, error) {
	p := &stmtParser{nodes: nodes}
	if err := p.expectWord("insert"); err != nil {
		return nil, err
	}
	if err := p.expectWord("into"); err != nil {
		return nil, err
	}
	tableRef, err := p.expectIdentifier()
	if err != nil {
		return nil, wireerr.New(wireerr.SyntaxError, "expected table reference after INTO")
	}
	q := &InsertQuery{}
	q.KeyspaceName, q.TableName = splitTableRef(tableRef, defaultKeyspace)
	if q.KeyspaceName == "" {
		return nil, wireerr.New(wireerr.SyntaxError, "no keyspace specified and no current keyspace")
	}

	colNodes, err := p.expectParen()
	if err != nil {
		return nil, wireerr.New(wireerr.SyntaxError, "expected column list after table reference")
	}
	for _, group := range commaSeparated(colNodes) {
		if len(group) != 1 {
			return nil, wireerr.New(wireerr.SyntaxError, "malformed column list")
		}
		l, ok := group[0].(lexer.Leaf)
		if !ok || l.Kind != lexer.Identifier {
			return nil, wireerr.New(wireerr.SyntaxError, "expected column name")
		}
		q.Columns = append(q.Columns, l.Text)
	}

	if err := p.expectWord("values"); err != nil {
		return nil, err
	}
	valNodes, err := p.expectParen()
	if err != nil {
		return nil, wireerr.New(wireerr.SyntaxError, "expected value list after VALUES")
	}
	for _, group := range commaSeparated(valNodes) {
		if len(group) != 1 {
			return nil, wireerr.New(wireerr.SyntaxError, "malformed value list")
		}
		l, ok := group[0].(lexer.Leaf)
		if !ok || l.Kind != lexer.Term {
			return nil, wireerr.New(wireerr.SyntaxError, "expected literal value")
		}
		q.Values = append(q.Values, StripQuotes(l.Text))
	}

	if len(q.Columns) != len(q.Values) {
		return nil, wireerr.New(wireerr.SyntaxError, "column list and value list length mismatch")
	}
	if !p.atEnd() {
		return nil, wireerr.New(wireerr.SyntaxError, "unexpected tokens after INSERT statement")
	}
	return q, nil
}

// RunLocal appends the row to this node's local store (spec §4.2, §4.4).
// Every partition-key column must be given a literal; any header not
// matching a declared column fails with Invalid.
func (q *InsertQuery) RunLocal(ctx *ExecContext) (*Result, error) {
	table, ok, err := ctx.Metadata.GetTable(q.KeyspaceName, q.TableName)
	if err != nil {
		return nil, wireerr.Wrap(wireerr.ServerError, "metadata lookup failed", err)
	}
	if !ok {
		return nil, wireerr.Newf(wireerr.Invalid, "table %s.%s does not exist", q.KeyspaceName, q.TableName)
	}

	for _, pk := range table.PartitionKey {
		present := false
		for _, c := range q.Columns {
			if c == pk {
				present = true
				break
			}
		}
		if !present {
			return nil, wireerr.Newf(wireerr.Invalid, "missing partition-key column %q", pk)
		}
	}

	row := &model.Row{
		PrimaryKey: make(map[string]model.Literal),
		Columns:    make(map[string]*model.Column),
	}
	ts := ctx.Clock.Next()
	row.Timestamp = ts

	declared := make(map[string]model.DataType, len(table.Columns))
	for _, c := range table.Columns {
		declared[c.Name] = c.Type
	}

	pkSet := make(map[string]bool)
	for _, pk := range table.FullPrimaryKey() {
		pkSet[pk] = true
	}

	for i, name := range q.Columns {
		dt, ok := declared[name]
		if !ok {
			return nil, wireerr.Newf(wireerr.Invalid, "unknown column %q", name)
		}
		lit := model.Literal{Text: q.Values[i], Type: dt}
		if pkSet[name] {
			row.PrimaryKey[name] = lit
		}
		row.Columns[name] = &model.Column{Name: name, Value: lit, Timestamp: ts}
	}

	if err := ctx.Storage.Insert(q.KeyspaceName, q.TableName, row); err != nil {
		return nil, wireerr.Wrap(wireerr.ServerError, "insert failed", err)
	}
	return VoidResult(), nil
}
