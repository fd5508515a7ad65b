package cql

import (
	"strconv"

	"github.com/cuemby/ringdb/pkg/lexer"
	"github.com/cuemby/ringdb/pkg/model"
	"github.com/cuemby/ringdb/pkg/wireerr"
)

// AssignKind distinguishes UPDATE SET's three assignment forms (spec
// §4.4).
type AssignKind int

const (
	AssignLiteral AssignKind = iota
	AssignCopy
	AssignArith
)

// Assignment is one `SET` clause entry.
type Assignment struct {
	Column       string
	Kind         AssignKind
	Literal      string // AssignLiteral value, or the arithmetic operand for AssignArith
	SourceColumn string // AssignCopy / AssignArith source column
	ArithOp      byte   // '+', '-', '*', or '/'
}

// UpdateQuery is a parsed `UPDATE <ks.t> SET assignment,… WHERE … [IF …]`
// statement (spec §6).
type UpdateQuery struct {
	KeyspaceName string
	TableName    string
	Assignments  []Assignment
	Where        Expr
	If           ifClause
}

func (q *UpdateQuery) Keyspace() string { return q.KeyspaceName }

func (q *UpdateQuery) IsRead() bool { return false }

func (q *UpdateQuery) Partition(pkCols []string) (map[string]string, bool) {
	return PartitionEquality(q.Where, pkCols)
}

func parseUpdate(nodes []lexer.Node, defaultKeyspace string) (*UpdateQuery, error) {
	p := &stmtParser{nodes: nodes}
	if err := p.expectWord("update"); err != nil {
		return nil, err
	}
	tableRef, err := p.expectIdentifier()
	if err != nil {
		return nil, wireerr.New(wireerr.SyntaxError, "expected table reference after UPDATE")
	}
	q := &UpdateQuery{}
	q.KeyspaceName, q.TableName = splitTableRef(tableRef, defaultKeyspace)
	if q.KeyspaceName == "" {
		return nil, wireerr.New(wireerr.SyntaxError, "no keyspace specified and no current keyspace")
	}

	if err := p.expectWord("set"); err != nil {
		return nil, err
	}
	for {
		a, err := parseAssignment(p)
		if err != nil {
			return nil, err
		}
		q.Assignments = append(q.Assignments, a)
		if l, ok := p.peek().(lexer.Leaf); ok && l.Kind == lexer.Symbol && l.Text == "," {
			p.advance()
			continue
		}
		break
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
		return nil, wireerr.New(wireerr.SyntaxError, "unexpected tokens after UPDATE statement")
	}
	return q, nil
}

func parseAssignment(p *stmtParser) (Assignment, error) {
	col, err := p.expectIdentifier()
	if err != nil {
		return Assignment{}, err
	}
	if err := p.expectSymbol("="); err != nil {
		return Assignment{}, err
	}

	if l, ok := p.peek().(lexer.Leaf); ok && l.Kind == lexer.Term {
		p.advance()
		return Assignment{Column: col, Kind: AssignLiteral, Literal: StripQuotes(l.Text)}, nil
	}

	src, err := p.expectIdentifier()
	if err != nil {
		return Assignment{}, wireerr.New(wireerr.SyntaxError, "expected literal or column in SET assignment")
	}

	if l, ok := p.peek().(lexer.Leaf); ok && l.Kind == lexer.Symbol {
		var op byte
		switch l.Text {
		case "+":
			op = '+'
		case "-":
			op = '-'
		case "*":
			op = '*'
		case "/":
			op = '/'
		}
		if op != 0 {
			p.advance()
			lit, err := p.expectTerm()
			if err != nil {
				return Assignment{}, wireerr.New(wireerr.SyntaxError, "expected numeric literal in arithmetic assignment")
			}
			return Assignment{Column: col, Kind: AssignArith, SourceColumn: src, ArithOp: op, Literal: lit}, nil
		}
	}

	return Assignment{Column: col, Kind: AssignCopy, SourceColumn: src}, nil
}

// RunLocal evaluates the UPDATE against this node's local view: an IF
// clause is checked against the pre-compacted current state, and the
// write (if any) is applied atomically with respect to that snapshot
// (spec §4.2). IF EXISTS fails with Invalid when no matching row exists
// (scenario S4's DELETE counterpart).
func (q *UpdateQuery) RunLocal(ctx *ExecContext) (*Result, error) {
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
				Columns:    make(map[string]*model.Column),
				Timestamp:  ts,
			}
			if found {
				for k, v := range existing.PrimaryKey {
					row.PrimaryKey[k] = v
				}
				for k, v := range existing.Columns {
					c := *v
					row.Columns[k] = &c
				}
			}
			for k, v := range pkEq {
				row.PrimaryKey[k] = model.Literal{Text: v, Type: declared[k]}
			}
			for _, a := range q.Assignments {
				applyAssignment(row, existing, found, a, declared, ts)
			}
			return row
		},
	)
	if err != nil {
		return nil, wireerr.Wrap(wireerr.ServerError, "update failed", err)
	}
	if !applied {
		if condErr != nil {
			return nil, condErr
		}
		return nil, wireerr.New(wireerr.Invalid, "condition not satisfied")
	}
	return VoidResult(), nil
}

func applyAssignment(row, existing *model.Row, found bool, a Assignment, declared map[string]model.DataType, ts int64) {
	dt := declared[a.Column]
	switch a.Kind {
	case AssignLiteral:
		row.Columns[a.Column] = &model.Column{Name: a.Column, Value: model.Literal{Text: a.Literal, Type: dt}, Timestamp: ts}
	case AssignCopy:
		val, _ := sourceValue(existing, found, a.SourceColumn)
		row.Columns[a.Column] = &model.Column{Name: a.Column, Value: model.Literal{Text: val, Type: dt}, Timestamp: ts}
	case AssignArith:
		base := 0.0
		if v, ok := sourceValue(existing, found, a.SourceColumn); ok {
			base, _ = strconv.ParseFloat(v, 64)
		}
		operand, _ := strconv.ParseFloat(a.Literal, 64)
		var result float64
		switch a.ArithOp {
		case '+':
			result = base + operand
		case '-':
			result = base - operand
		case '*':
			result = base * operand
		case '/':
			if operand != 0 {
				result = base / operand
			}
		}
		row.Columns[a.Column] = &model.Column{Name: a.Column, Value: model.Literal{Text: formatNumber(result), Type: dt}, Timestamp: ts}
	}
}

func sourceValue(existing *model.Row, found bool, name string) (string, bool) {
	if !found || existing == nil {
		return "", false
	}
	return columnValue(existing, name)
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
