package cql

import (
	"github.com/cuemby/ringdb/pkg/lexer"
	"github.com/cuemby/ringdb/pkg/model"
	"github.com/cuemby/ringdb/pkg/wireerr"
)

// DeleteQuery is a parsed `DELETE FROM <ks.t> WHERE … [IF …]` statement
// (spec §6).
type DeleteQuery struct {
	KeyspaceName string
	TableName    string
	Where        Expr
	If           ifClause
}

func (q *DeleteQuery) Keyspace() string { return q.KeyspaceName }

func (q *DeleteQuery) IsRead() bool { return false }

func (q *DeleteQuery) Partition(pkCols []string) (map[string]string, bool) {
	return PartitionEquality(q.Where, pkCols)
}

func parseDelete(nodes []lexer.Node, defaultKeyspace string) (*DeleteQuery, error) {
	p := &stmtParser{nodes: nodes}
	if err := p.expectWord("delete"); err != nil {
		return nil, err
	}
	if err := p.expectWord("from"); err != nil {
		return nil, err
	}
	tableRef, err := p.expectIdentifier()
	if err != nil {
		return nil, wireerr.New(wireerr.SyntaxError, "expected table reference after FROM")
	}
	q := &DeleteQuery{}
	q.KeyspaceName, q.TableName = splitTableRef(tableRef, defaultKeyspace)
	if q.KeyspaceName == "" {
		return nil, wireerr.New(wireerr.SyntaxError, "no keyspace specified and no current keyspace")
	}

	whereNodes, err := p.expectWhere()
	if err != nil {
		return nil, wireerr.New(wireerr.SyntaxError, "expected WHERE clause")
	}
	expr, err := ParseWhere(whereNodes)
	if err != nil {
		return nil, err
	}
	q.Where = expr

	ifc, err := p.parseIfClause()
	if err != nil {
		return nil, err
	}
	q.If = ifc

	if !p.atEnd() {
		return nil, wireerr.New(wireerr.SyntaxError, "unexpected tokens after DELETE statement")
	}
	return q, nil
}

// RunLocal tombstones the matching row (spec §4.2). A plain DELETE (no IF)
// is idempotent and succeeds even if no row matches; DELETE ... IF EXISTS
// fails with Invalid when none does (scenario S4).
func (q *DeleteQuery) RunLocal(ctx *ExecContext) (*Result, error) {
	table, ok, err := ctx.Metadata.GetTable(q.KeyspaceName, q.TableName)
	if err != nil {
		return nil, wireerr.Wrap(wireerr.ServerError, "metadata lookup failed", err)
	}
	if !ok {
		return nil, wireerr.Newf(wireerr.Invalid, "table %s.%s does not exist", q.KeyspaceName, q.TableName)
	}
	if _, ok := q.Partition(table.PartitionKey); !ok {
		return nil, wireerr.New(wireerr.Invalid, "partition key required in WHERE")
	}

	pkOrder := table.FullPrimaryKey()
	declared := make(map[string]model.DataType, len(table.Columns))
	for _, c := range table.Columns {
		declared[c.Name] = c.Type
	}
	pkEq, _ := PartitionEquality(q.Where, table.PartitionKey)

	var condErr *wireerr.Error
	applied, _, _, err := ctx.Storage.ConditionalWrite(
		q.KeyspaceName, q.TableName, pkOrder,
		func(row *model.Row) bool { return Eval(q.Where, row) },
		func(existing *model.Row, found bool) bool {
			if !q.If.Present {
				return true
			}
			if q.If.IfExists {
				if !found {
					condErr = wireerr.New(wireerr.Invalid, "row does not exist")
				}
				return found
			}
			if !found || !Eval(q.If.Expr, existing) {
				condErr = wireerr.New(wireerr.Invalid, "condition not satisfied")
				return false
			}
			return true
		},
		func(existing *model.Row, found bool) *model.Row {
			ts := ctx.Clock.Next()
			row := &model.Row{
				PrimaryKey: make(map[string]model.Literal, len(pkOrder)),
				Deleted:    true,
				Timestamp:  ts,
			}
			if found {
				for k, v := range existing.PrimaryKey {
					row.PrimaryKey[k] = v
				}
			}
			for k, v := range pkEq {
				row.PrimaryKey[k] = model.Literal{Text: v, Type: declared[k]}
			}
			return row
		},
	)
	if err != nil {
		return nil, wireerr.Wrap(wireerr.ServerError, "delete failed", err)
	}
	if !applied {
		if condErr != nil {
			return nil, condErr
		}
		return nil, wireerr.New(wireerr.Invalid, "condition not satisfied")
	}
	return VoidResult(), nil
}
