package cql

import (
	"strings"

	"github.com/cuemby/ringdb/pkg/lexer"
	"github.com/cuemby/ringdb/pkg/wireerr"
)

// Parse tokenises and parses a CQL statement into the typed Query object
// it describes (spec §4.3, §4.4, §9: a tagged variant, not a subclass
// registry). defaultKeyspace resolves an unqualified table/keyspace
// reference against the session's current USE keyspace.
func Parse(query string, defaultKeyspace string) (Query, error) {
	nodes, err := lexer.Tokenize(query)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, wireerr.New(wireerr.SyntaxError, "empty query")
	}
	first, ok := nodes[0].(lexer.Leaf)
	if !ok {
		return nil, wireerr.New(wireerr.SyntaxError, "query must start with a keyword")
	}

	switch strings.ToLower(first.Text) {
	case "select":
		return parseSelect(nodes, defaultKeyspace)
	case "insert":
		return parseInsert(nodes, defaultKeyspace)
	case "update":
		return parseUpdate(nodes, defaultKeyspace)
	case "delete":
		return parseDelete(nodes, defaultKeyspace)
	case "use":
		return parseUse(nodes)
	case "create":
		if len(nodes) < 2 {
			return nil, wireerr.New(wireerr.SyntaxError, "incomplete CREATE statement")
		}
		second, ok := nodes[1].(lexer.Leaf)
		if !ok {
			return nil, wireerr.New(wireerr.SyntaxError, "expected KEYSPACE or TABLE after CREATE")
		}
		switch strings.ToLower(second.Text) {
		case "keyspace":
			return parseCreateKeyspace(nodes)
		case "table":
			return parseCreateTable(nodes, defaultKeyspace)
		default:
			return nil, wireerr.New(wireerr.SyntaxError, "expected KEYSPACE or TABLE after CREATE")
		}
	case "drop":
		if len(nodes) < 2 {
			return nil, wireerr.New(wireerr.SyntaxError, "incomplete DROP statement")
		}
		second, ok := nodes[1].(lexer.Leaf)
		if !ok {
			return nil, wireerr.New(wireerr.SyntaxError, "expected KEYSPACE or TABLE after DROP")
		}
		switch strings.ToLower(second.Text) {
		case "keyspace":
			return parseDropKeyspace(nodes)
		case "table":
			return parseDropTable(nodes, defaultKeyspace)
		default:
			return nil, wireerr.New(wireerr.SyntaxError, "expected KEYSPACE or TABLE after DROP")
		}
	case "alter":
		return parseAlterTable(nodes, defaultKeyspace)
	default:
		return nil, wireerr.Newf(wireerr.SyntaxError, "unrecognized statement %q", first.Text)
	}
}
