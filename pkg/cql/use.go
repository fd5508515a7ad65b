package cql

import (
	"github.com/cuemby/ringdb/pkg/lexer"
	"github.com/cuemby/ringdb/pkg/wire"
	"github.com/cuemby/ringdb/pkg/wireerr"
)

// UseQuery is a parsed `USE <ks>` statement (spec §6).
type UseQuery struct {
	KeyspaceName string
}

func (q *UseQuery) Keyspace() string { return q.KeyspaceName }

func (q *UseQuery) IsRead() bool { return false }

func (q *UseQuery) Partition(pkCols []string) (map[string]string, bool) { return nil, false }

func parseUse(nodes []lexer.Node) (*UseQuery, error) {
	p := &stmtParser{nodes: nodes}
	if err := p.expectWord("use"); err != nil {
		return nil, err
	}
	ks, err := p.expectIdentifier()
	if err != nil {
		return nil, wireerr.New(wireerr.SyntaxError, "expected keyspace name after USE")
	}
	if !p.atEnd() {
		return nil, wireerr.New(wireerr.SyntaxError, "unexpected tokens after USE statement")
	}
	return &UseQuery{KeyspaceName: ks}, nil
}

// RunLocal validates the keyspace exists and reports the SET_KEYSPACE
// result the session FSM uses to update its current keyspace (spec §4.9).
func (q *UseQuery) RunLocal(ctx *ExecContext) (*Result, error) {
	_, ok, err := ctx.Metadata.GetKeyspace(q.KeyspaceName)
	if err != nil {
		return nil, wireerr.Wrap(wireerr.ServerError, "metadata lookup failed", err)
	}
	if !ok {
		return nil, wireerr.Newf(wireerr.Invalid, "keyspace %s does not exist", q.KeyspaceName)
	}
	return &Result{Kind: wire.ResultSetKeyspace, Keyspace: q.KeyspaceName}, nil
}
