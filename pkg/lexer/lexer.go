package lexer

import (
	"strings"

	"github.com/cuemby/ringdb/pkg/wireerr"
)

// Words splits standardized text into space-separated words, treating a
// quoted literal (however many interior spaces it has) as one word.
func Words(standardized string) []string {
	var words []string
	var cur strings.Builder
	var quote rune
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range standardized {
		if quote != 0 {
			cur.WriteRune(r)
			if r == quote {
				quote = 0
			}
			continue
		}
		if r == '\'' || r == '"' {
			quote = r
			cur.WriteRune(r)
			continue
		}
		if r == ' ' {
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	return words
}

// terminators bound a WHERE-scoped IterateToken subtree (spec §4.3).
var terminators = map[string]bool{
	"order": true,
	"if":    true,
}

// Tokenize runs the full two-pass lexer (spec §4.3): standardize, split
// into words, classify each, and nest parenthesised and WHERE-scoped
// substrings into ParenList/IterateToken nodes.
func Tokenize(query string) ([]Node, error) {
	std := Standardize(query)
	words := Words(std)
	nodes, rest, err := buildTree(words, false)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, wireerr.New(wireerr.SyntaxError, "unbalanced parentheses")
	}
	return nodes, nil
}

// buildTree consumes words left to right, producing a flat list of nodes
// until it exhausts the input or (if inParen) hits a closing paren. It
// returns the built nodes and whatever words remain unconsumed.
func buildTree(words []string, inParen bool) ([]Node, []string, error) {
	var nodes []Node
	for len(words) > 0 {
		w := words[0]
		if w == ")" {
			if !inParen {
				return nil, nil, wireerr.New(wireerr.SyntaxError, "unexpected ')'")
			}
			return nodes, words[1:], nil
		}
		if w == "}" {
			return nil, nil, wireerr.New(wireerr.SyntaxError, "unexpected '}'")
		}
		if w == "(" {
			children, rest, err := buildTree(words[1:], true)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, &ParenList{Children: children})
			words = rest
			continue
		}
		if w == "{" {
			children, rest, err := buildBraceTree(words[1:])
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, &BraceList{Children: children})
			words = rest
			continue
		}
		if strings.ToLower(w) == "where" {
			children, rest := buildWhereScope(words[1:])
			nodes = append(nodes, &IterateToken{Children: children})
			words = rest
			continue
		}
		nodes = append(nodes, Leaf{Kind: Classify(w), Text: w})
		words = words[1:]
	}
	if inParen {
		return nil, nil, wireerr.New(wireerr.SyntaxError, "unbalanced '('")
	}
	return nodes, nil, nil
}

// buildBraceTree consumes words up to and including the closing '}' of a
// brace-delimited map literal, nesting nothing further inside (the CQL
// subset's only brace literal is a flat replication map).
func buildBraceTree(words []string) ([]Node, []string, error) {
	var nodes []Node
	for len(words) > 0 {
		w := words[0]
		if w == "}" {
			return nodes, words[1:], nil
		}
		if w == "{" {
			return nil, nil, wireerr.New(wireerr.SyntaxError, "nested '{' not supported")
		}
		nodes = append(nodes, Leaf{Kind: Classify(w), Text: w})
		words = words[1:]
	}
	return nil, nil, wireerr.New(wireerr.SyntaxError, "unbalanced '{'")
}

// buildWhereScope consumes words up to (but not including) the next
// reserved terminator (ORDER, IF) or end of input, nesting any
// parenthesised substrings it meets along the way.
func buildWhereScope(words []string) ([]Node, []string) {
	var nodes []Node
	for len(words) > 0 {
		w := words[0]
		if terminators[strings.ToLower(w)] {
			return nodes, words
		}
		if w == "(" {
			children, rest, err := buildTree(words[1:], true)
			if err != nil {
				// Malformed parens inside WHERE surface at the parser
				// layer instead; stop scoping here and let the parser
				// re-walk and report the SyntaxError with full context.
				nodes = append(nodes, Leaf{Kind: Symbol, Text: "("})
				words = words[1:]
				continue
			}
			nodes = append(nodes, &ParenList{Children: children})
			words = rest
			continue
		}
		nodes = append(nodes, Leaf{Kind: Classify(w), Text: w})
		words = words[1:]
	}
	return nodes, nil
}
