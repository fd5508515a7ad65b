// Package cql implements the recursive-descent parsers that turn a
// lexer.Node token tree into one of the typed query objects of spec
// §4.3/§4.4/§6, and the query-object contract (Partition/Keyspace/RunLocal)
// those parsers produce.
//
// This file defines the single where_clause value type spec §9 calls for,
// replacing the teacher-language's two parallel implementations.
package cql

import (
	"strconv"
	"strings"

	"github.com/cuemby/ringdb/pkg/lexer"
	"github.com/cuemby/ringdb/pkg/wireerr"
)

// CompareOp is a WHERE-clause comparison operator.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

func (op CompareOp) String() string {
	switch op {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	default:
		return "?"
	}
}

// Expr is a WHERE-clause boolean expression: a comparison, a unary NOT, or
// a binary AND/OR, built so that `a AND b OR c` parses as `(a AND b) OR c`
// (spec §4.3: OR is lower precedence than AND).
type Expr interface {
	isExpr()
}

// Cmp is a leaf comparison: column OP literal-text.
type Cmp struct {
	Column string
	Op     CompareOp
	Value  string // raw literal text (quotes already stripped)
}

func (*Cmp) isExpr() {}

type And struct{ Left, Right Expr }

func (*And) isExpr() {}

type Or struct{ Left, Right Expr }

func (*Or) isExpr() {}

type Not struct{ Inner Expr }

func (*Not) isExpr() {}

// ParseWhere parses the children of an IterateToken or ParenList into a
// WHERE expression tree.
func ParseWhere(nodes []lexer.Node) (Expr, error) {
	p := &whereParser{nodes: nodes}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.nodes) {
		return nil, wireerr.New(wireerr.SyntaxError, "unexpected tokens in WHERE clause")
	}
	return expr, nil
}

type whereParser struct {
	nodes []lexer.Node
	pos   int
}

func (p *whereParser) peek() lexer.Node {
	if p.pos >= len(p.nodes) {
		return nil
	}
	return p.nodes[p.pos]
}

func (p *whereParser) peekWord() string {
	if l, ok := p.peek().(lexer.Leaf); ok {
		return strings.ToLower(l.Text)
	}
	return ""
}

func (p *whereParser) advance() lexer.Node {
	n := p.nodes[p.pos]
	p.pos++
	return n
}

// parseOr: parseAnd (OR parseAnd)*
func (p *whereParser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peekWord() == "or" {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

// parseAnd: parseUnary (AND parseUnary)*
func (p *whereParser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peekWord() == "and" {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

// parseUnary: NOT parseUnary | parsePrimary
func (p *whereParser) parseUnary() (Expr, error) {
	if p.peekWord() == "not" {
		p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Not{Inner: inner}, nil
	}
	return p.parsePrimary()
}

// parsePrimary: ( parseOr ) | column OP term
func (p *whereParser) parsePrimary() (Expr, error) {
	switch n := p.peek().(type) {
	case *lexer.ParenList:
		p.advance()
		sub := &whereParser{nodes: n.Children}
		expr, err := sub.parseOr()
		if err != nil {
			return nil, err
		}
		if sub.pos != len(sub.nodes) {
			return nil, wireerr.New(wireerr.SyntaxError, "unexpected tokens inside parentheses")
		}
		return expr, nil
	case lexer.Leaf:
		if n.Kind != lexer.Identifier {
			return nil, wireerr.Newf(wireerr.SyntaxError, "expected column name in WHERE clause, found %q", n.Text)
		}
		p.advance()
		op, err := p.parseOperator()
		if err != nil {
			return nil, err
		}
		val, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return &Cmp{Column: n.Text, Op: op, Value: val}, nil
	default:
		return nil, wireerr.New(wireerr.SyntaxError, "unexpected end of WHERE clause")
	}
}

func (p *whereParser) parseOperator() (CompareOp, error) {
	l, ok := p.peek().(lexer.Leaf)
	if !ok {
		return 0, wireerr.New(wireerr.SyntaxError, "expected comparison operator")
	}
	var op CompareOp
	switch lexer.Display(l.Text) {
	case "=":
		op = OpEq
	case "!=":
		op = OpNe
	case "<":
		op = OpLt
	case "<=":
		op = OpLe
	case ">":
		op = OpGt
	case ">=":
		op = OpGe
	default:
		return 0, wireerr.Newf(wireerr.SyntaxError, "unknown comparison operator %q", l.Text)
	}
	p.advance()
	return op, nil
}

func (p *whereParser) parseTerm() (string, error) {
	l, ok := p.peek().(lexer.Leaf)
	if !ok || l.Kind != lexer.Term {
		return "", wireerr.New(wireerr.SyntaxError, "expected literal value")
	}
	p.advance()
	return StripQuotes(l.Text), nil
}

// StripQuotes removes a matching pair of leading/trailing quotes from a
// raw term token, if present.
func StripQuotes(text string) string {
	if len(text) >= 2 {
		if (text[0] == '\'' && text[len(text)-1] == '\'') || (text[0] == '"' && text[len(text)-1] == '"') {
			return text[1 : len(text)-1]
		}
	}
	return text
}

// PartitionEquality walks a WHERE expression and collects every top-level
// equality predicate on the given partition-key columns. Spec §4.2/§7:
// SELECT must reject a WHERE clause lacking a partition-key equality.
func PartitionEquality(expr Expr, pkCols []string) (map[string]string, bool) {
	found := make(map[string]string)
	collectEqualities(expr, found)
	for _, col := range pkCols {
		if _, ok := found[col]; !ok {
			return nil, false
		}
	}
	return found, true
}

func collectEqualities(expr Expr, out map[string]string) {
	switch e := expr.(type) {
	case *Cmp:
		if e.Op == OpEq {
			out[e.Column] = e.Value
		}
	case *And:
		collectEqualities(e.Left, out)
		collectEqualities(e.Right, out)
	case *Or:
		// An OR can't guarantee the partition key is pinned on every
		// branch; equalities under OR don't count.
	case *Not:
		// Negation similarly can't guarantee a positive equality.
	}
}

// IsNumeric reports whether a raw literal parses as an integer or decimal.
func IsNumeric(text string) bool {
	_, err := strconv.ParseFloat(text, 64)
	return err == nil
}
