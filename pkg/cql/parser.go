package cql

import (
	"strings"

	"github.com/cuemby/ringdb/pkg/lexer"
	"github.com/cuemby/ringdb/pkg/wireerr"
)

// stmtParser is the shared cursor used by every statement-level parser
// over the flat node list Tokenize produced for one statement.
type stmtParser struct {
	nodes []lexer.Node
	pos   int
}

func (p *stmtParser) peek() lexer.Node {
	if p.pos >= len(p.nodes) {
		return nil
	}
	return p.nodes[p.pos]
}

func (p *stmtParser) peekWord() string {
	if l, ok := p.peek().(lexer.Leaf); ok {
		return strings.ToLower(l.Text)
	}
	return ""
}

func (p *stmtParser) atEnd() bool { return p.pos >= len(p.nodes) }

func (p *stmtParser) advance() lexer.Node {
	n := p.nodes[p.pos]
	p.pos++
	return n
}

// expectWord consumes a Leaf whose lowercased text matches word, or fails.
func (p *stmtParser) expectWord(word string) error {
	if p.peekWord() != word {
		return wireerr.Newf(wireerr.SyntaxError, "expected %q", word)
	}
	p.advance()
	return nil
}

// expectIdentifier consumes and returns an Identifier leaf's raw text.
func (p *stmtParser) expectIdentifier() (string, error) {
	l, ok := p.peek().(lexer.Leaf)
	if !ok || l.Kind != lexer.Identifier {
		return "", wireerr.New(wireerr.SyntaxError, "expected identifier")
	}
	p.advance()
	return l.Text, nil
}

// expectTerm consumes and returns a Term leaf's quote-stripped text.
func (p *stmtParser) expectTerm() (string, error) {
	l, ok := p.peek().(lexer.Leaf)
	if !ok || l.Kind != lexer.Term {
		return "", wireerr.New(wireerr.SyntaxError, "expected literal value")
	}
	p.advance()
	return StripQuotes(l.Text), nil
}

// expectTypeName consumes and returns a declared data-type keyword.
func (p *stmtParser) expectTypeName() (string, error) {
	l, ok := p.peek().(lexer.Leaf)
	if !ok || l.Kind != lexer.TypeName {
		return "", wireerr.New(wireerr.SyntaxError, "expected data type")
	}
	p.advance()
	return strings.ToLower(l.Text), nil
}

// expectSymbol consumes a Symbol leaf matching sym, where sym is the
// original (possibly two-character) spelling.
func (p *stmtParser) expectSymbol(sym string) error {
	l, ok := p.peek().(lexer.Leaf)
	if !ok || l.Kind != lexer.Symbol || lexer.Display(l.Text) != sym {
		return wireerr.Newf(wireerr.SyntaxError, "expected %q", sym)
	}
	p.advance()
	return nil
}

// trySymbol consumes a Symbol leaf matching sym if present, reporting
// whether it did.
func (p *stmtParser) trySymbol(sym string) bool {
	if err := p.expectSymbol(sym); err == nil {
		return true
	}
	return false
}

// expectParen consumes a ParenList node and returns its children.
func (p *stmtParser) expectParen() ([]lexer.Node, error) {
	pl, ok := p.peek().(*lexer.ParenList)
	if !ok {
		return nil, wireerr.New(wireerr.SyntaxError, "expected '('")
	}
	p.advance()
	return pl.Children, nil
}

// expectBrace consumes a BraceList node and returns its children.
func (p *stmtParser) expectBrace() ([]lexer.Node, error) {
	bl, ok := p.peek().(*lexer.BraceList)
	if !ok {
		return nil, wireerr.New(wireerr.SyntaxError, "expected '{'")
	}
	p.advance()
	return bl.Children, nil
}

// expectWhere consumes an IterateToken node and returns its children.
func (p *stmtParser) expectWhere() ([]lexer.Node, error) {
	it, ok := p.peek().(*lexer.IterateToken)
	if !ok {
		return nil, wireerr.New(wireerr.SyntaxError, "expected WHERE clause")
	}
	p.advance()
	return it.Children, nil
}

// commaSeparated splits a flat node list (the contents of a ParenList) on
// top-level comma symbols into groups.
func commaSeparated(nodes []lexer.Node) [][]lexer.Node {
	var groups [][]lexer.Node
	var cur []lexer.Node
	for _, n := range nodes {
		if l, ok := n.(lexer.Leaf); ok && l.Kind == lexer.Symbol && l.Text == "," {
			groups = append(groups, cur)
			cur = nil
			continue
		}
		cur = append(cur, n)
	}
	groups = append(groups, cur)
	return groups
}

// ifClause is the parsed `IF EXISTS` or `IF <expr>` tail of an
// UPDATE/DELETE statement.
type ifClause struct {
	Present  bool
	IfExists bool
	Expr     Expr
}

// parseIfClause consumes an optional IF clause from the remaining
// top-level nodes of an UPDATE/DELETE statement.
func (p *stmtParser) parseIfClause() (ifClause, error) {
	if p.peekWord() != "if" {
		return ifClause{}, nil
	}
	p.advance()
	if p.peekWord() == "exists" {
		p.advance()
		return ifClause{Present: true, IfExists: true}, nil
	}
	expr, err := ParseWhere(p.nodes[p.pos:])
	if err != nil {
		return ifClause{}, err
	}
	p.pos = len(p.nodes)
	return ifClause{Present: true, Expr: expr}, nil
}
