package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStandardizeIdempotent(t *testing.T) {
	queries := []string{
		"SELECT * FROM ks.t WHERE id=1 AND age>=21; -- trailing comment",
		"INSERT INTO ks.t (id,name) VALUES (1,'A, B') /* block */",
		"SELECT name FROM ks.t WHERE id != 3",
	}
	for _, q := range queries {
		once := Standardize(q)
		twice := Standardize(once)
		require.Equal(t, once, twice, "standardize not idempotent for %q", q)
	}
}

func TestStandardizePreservesQuotedContent(t *testing.T) {
	out := Standardize("INSERT INTO ks.t (id,name) VALUES (1, 'has a comment -- not really')")
	require.Contains(t, out, "'has a comment -- not really'")
}

func TestStandardizeStripsComments(t *testing.T) {
	out := Standardize("SELECT * FROM ks.t // comment\nWHERE id = 1")
	require.NotContains(t, out, "comment")
}

func TestWordsKeepsQuotedLiteralWhole(t *testing.T) {
	words := Words(Standardize("VALUES ( 'a b c' , 2 )"))
	require.Contains(t, words, "'a b c'")
}

func TestTokenizeNestsParens(t *testing.T) {
	nodes, err := Tokenize("INSERT INTO ks.t (id, name) VALUES (1, 'A')")
	require.NoError(t, err)

	var parens int
	for _, n := range nodes {
		if _, ok := n.(*ParenList); ok {
			parens++
		}
	}
	require.Equal(t, 2, parens)
}

func TestTokenizeScopesWhere(t *testing.T) {
	nodes, err := Tokenize("SELECT * FROM ks.t WHERE id = 1 ORDER BY name ASC")
	require.NoError(t, err)

	var found bool
	for _, n := range nodes {
		if _, ok := n.(*IterateToken); ok {
			found = true
		}
	}
	require.True(t, found)
}

func TestTokenizeRejectsUnbalancedParens(t *testing.T) {
	_, err := Tokenize("INSERT INTO ks.t (id, name VALUES (1, 'A')")
	require.Error(t, err)
}

func TestClassify(t *testing.T) {
	require.Equal(t, Reserved, Classify("select"))
	require.Equal(t, Reserved, Classify("SELECT"))
	require.Equal(t, TypeName, Classify("int"))
	require.Equal(t, Identifier, Classify("my_table"))
	require.Equal(t, Term, Classify("'text'"))
	require.Equal(t, Term, Classify("42"))
	require.Equal(t, Symbol, Classify("("))
}
