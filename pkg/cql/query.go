package cql

import (
	"github.com/cuemby/ringdb/pkg/clock"
	"github.com/cuemby/ringdb/pkg/metadata"
	"github.com/cuemby/ringdb/pkg/storage"
	"github.com/cuemby/ringdb/pkg/wire"
)

// ExecContext carries the node-local handles a query object needs to run
// against this replica (spec §9: a small handle passed into executors
// rather than a process-wide singleton).
type ExecContext struct {
	Storage  *storage.Engine
	Metadata *metadata.Store
	Clock    *clock.Clock

	// Keyspace is the session's current keyspace (from USE), used to
	// resolve an unqualified table reference.
	Keyspace string
}

// Query is the tagged-variant contract every parsed statement satisfies
// (spec §4.4, §9): no runtime subclass registry, just a common interface
// over SELECT/INSERT/UPDATE/DELETE/USE/DDL objects.
type Query interface {
	// Partition reports the bound partition-key column values, given the
	// table's declared partition-key column order, or false if the
	// statement's WHERE/column list doesn't pin every one of them.
	Partition(pkCols []string) (map[string]string, bool)
	// Keyspace returns the keyspace this statement targets.
	Keyspace() string
	// RunLocal executes the statement against this node's own storage and
	// metadata, producing the response to serialize.
	RunLocal(ctx *ExecContext) (*Result, error)
	// IsRead reports whether the delegator should treat this statement as
	// a read (gather-and-repair, ANY==ONE) or a write (ack-count only,
	// spec §4.5).
	IsRead() bool
}

// Result is a query's local outcome, already shaped for wire encoding.
type Result struct {
	Kind     wire.ResultKind
	Rows     *wire.RowsResult
	Keyspace string // set for ResultSetKeyspace and ResultSchemaChange
}

// Encode renders the result into a RESULT frame body (kind-prefixed, spec
// §6).
func (r *Result) Encode() []byte {
	switch r.Kind {
	case wire.ResultRows:
		return wire.EncodeRows(r.Rows)
	case wire.ResultSetKeyspace:
		w := wire.NewWriter()
		w.U32(uint32(wire.ResultSetKeyspace))
		w.String(r.Keyspace)
		return w.Bytes()
	case wire.ResultSchemaChange:
		w := wire.NewWriter()
		w.U32(uint32(wire.ResultSchemaChange))
		w.String(r.Keyspace)
		return w.Bytes()
	default:
		w := wire.NewWriter()
		w.U32(uint32(wire.ResultVoid))
		return w.Bytes()
	}
}

// VoidResult is the shared RunLocal return for statements whose only
// response is an acknowledgement.
func VoidResult() *Result {
	return &Result{Kind: wire.ResultVoid}
}

// splitTableRef splits a lexed "ks.table" identifier into its two parts,
// falling back to defaultKeyspace when the identifier carries no dot.
func splitTableRef(text, defaultKeyspace string) (keyspace, table string) {
	for i := 0; i < len(text); i++ {
		if text[i] == '.' {
			return text[:i], text[i+1:]
		}
	}
	return defaultKeyspace, text
}
