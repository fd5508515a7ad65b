// Package delegate implements the query-delegation layer (spec §4.5): it
// resolves a statement's replica arc, fans the statement out to each
// replica in parallel, collects acknowledgements or rows up to the
// requested consistency level within a deadline, and records a hint for
// any replica it could not reach.
package delegate

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/ringdb/pkg/cql"
	"github.com/cuemby/ringdb/pkg/hints"
	"github.com/cuemby/ringdb/pkg/metadata"
	"github.com/cuemby/ringdb/pkg/model"
	"github.com/cuemby/ringdb/pkg/repair"
	"github.com/cuemby/ringdb/pkg/ring"
	"github.com/cuemby/ringdb/pkg/wire"
	"github.com/cuemby/ringdb/pkg/wireerr"
)

// DefaultTimeout is the TIMEOUT_SECS implementation constant spec §5
// calls for: the deadline a delegated call is allowed before it counts
// as an unreached replica.
const DefaultTimeout = 5 * time.Second

// ReplicaClient executes a parsed statement's original CQL text against
// a remote replica over the query-delegation socket and reports back
// either the rows it read (for a SELECT) or nothing beyond success (for
// a write). The concrete implementation lives in pkg/node, dialing the
// replica's query-delegation listener under TLS; tests substitute a
// fake.
type ReplicaClient interface {
	Execute(ctx context.Context, addr, query, keyspace string) (*ReplicaResponse, error)
}

// ReplicaResponse is what a replica call returns over the wire: the rows
// it read (read-repair needs their per-column timestamps, which the
// client-facing wire.RowsResult does not carry), or nothing for a write.
type ReplicaResponse struct {
	Rows []*model.Row
}

// Delegator is the coordinator-side fan-out for one node. It rebuilds its
// view of the ring from metadata on every call, so it always reflects the
// most recently gossiped membership (spec §4.8).
type Delegator struct {
	Metadata *metadata.Store
	Hints    *hints.Store
	Client   ReplicaClient
	Local    *cql.ExecContext
	Timeout  time.Duration
}

// New builds a Delegator with spec §5's default timeout.
func New(md *metadata.Store, hs *hints.Store, client ReplicaClient, local *cql.ExecContext) *Delegator {
	return &Delegator{Metadata: md, Hints: hs, Client: client, Local: local, Timeout: DefaultTimeout}
}

type replicaOutcome struct {
	node *model.Node
	rows []*model.Row
	err  error
}

// Delegate resolves query's replica arc for the given table and runs it
// against every replica in parallel, returning once consistency's
// acknowledgement threshold is reached (spec §4.5). query must carry a
// bound partition key (pkCols is the table's declared partition-key
// column order); statements without one (USE, DDL) are not routed
// through Delegate — the session layer runs those locally.
func (d *Delegator) Delegate(ctx context.Context, query cql.Query, pkCols []string, rf int, cl wire.Consistency, originalText string) (*cql.Result, error) {
	partition, ok := query.Partition(pkCols)
	if !ok {
		return nil, wireerr.New(wireerr.Invalid, "partition key required")
	}
	pkValue := partitionKeyString(pkCols, partition)

	self, err := d.Metadata.SelfNode()
	if err != nil {
		return nil, wireerr.Wrap(wireerr.ServerError, "read self node", err)
	}
	peers, err := d.Metadata.ListPeers()
	if err != nil {
		return nil, wireerr.Wrap(wireerr.ServerError, "list peers", err)
	}
	nodes := peers
	if self != nil {
		nodes = append(append([]*model.Node{}, peers...), self)
	}
	r := ring.New(nodes)
	replicas := r.ReplicaArc(pkValue, rf)
	if len(replicas) == 0 {
		return nil, wireerr.New(wireerr.UnavailableException, "no replicas available")
	}

	quorum := ring.Quorum(cl, rf)
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan replicaOutcome, len(replicas))
	var wg sync.WaitGroup
	for _, node := range replicas {
		node := node
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- d.callReplica(callCtx, node, self, query, originalText)
		}()
	}
	go func() { wg.Wait(); close(results) }()

	var (
		acked     int
		collected []replicaOutcome
	)
	for acked < quorum {
		select {
		case out, ok := <-results:
			if !ok {
				return nil, timeoutErr(query)
			}
			if out.err != nil {
				d.recordFailure(out.node, query, originalText)
				continue
			}
			acked++
			collected = append(collected, out)
		case <-callCtx.Done():
			return nil, timeoutErr(query)
		}
	}

	if !query.IsRead() {
		return cql.VoidResult(), nil
	}
	return d.reconcileRead(query, pkCols, collected)
}

func (d *Delegator) callReplica(ctx context.Context, node, self *model.Node, query cql.Query, originalText string) replicaOutcome {
	if self != nil && node.Position == self.Position {
		if sel, ok := query.(*cql.SelectQuery); ok {
			rows, _, err := sel.SelectRows(d.Local)
			if err != nil {
				return replicaOutcome{node: node, err: err}
			}
			return replicaOutcome{node: node, rows: rows}
		}
		if _, err := query.RunLocal(d.Local); err != nil {
			return replicaOutcome{node: node, err: err}
		}
		return replicaOutcome{node: node}
	}
	resp, err := d.Client.Execute(ctx, node.Addr(), originalText, query.Keyspace())
	if err != nil {
		return replicaOutcome{node: node, err: err}
	}
	return replicaOutcome{node: node, rows: resp.Rows}
}

// recordFailure stores a hint for the unreached replica and marks it
// Inactive (spec §4.5 point 6).
func (d *Delegator) recordFailure(node *model.Node, query cql.Query, originalText string) {
	if node == nil {
		return
	}
	if !query.IsRead() {
		_, _ = d.Hints.Record(node.IP, originalText, query.Keyspace(), d.Local.Clock.Next())
	}
	cp := *node
	cp.State = model.Inactive
	_ = d.Metadata.UpsertPeer(&cp)
}

func timeoutErr(query cql.Query) error {
	if query.IsRead() {
		return wireerr.New(wireerr.ReadTimeout, "not enough replicas responded before the deadline")
	}
	return wireerr.New(wireerr.WriteTimeout, "not enough replicas responded before the deadline")
}

// partitionKeyString renders a bound partition value map as the string
// ring.Ring hashes, joining columns in the table's declared order so the
// same key always hashes to the same position regardless of map
// iteration order.
func partitionKeyString(pkCols []string, partition map[string]string) string {
	s := ""
	for _, c := range pkCols {
		s += c + "=" + partition[c] + ";"
	}
	return s
}

// reconcileRead merges every collected replica's rows via read-repair
// and serializes the merged view the way the lone-response path would
// have (spec §4.6). Repair deltas are pushed back to diverging replicas
// asynchronously so the client isn't blocked on convergence.
func (d *Delegator) reconcileRead(query cql.Query, pkCols []string, collected []replicaOutcome) (*cql.Result, error) {
	sel, ok := query.(*cql.SelectQuery)
	if !ok {
		return nil, wireerr.New(wireerr.ServerError, "delegated read is not a SELECT")
	}
	if len(collected) == 0 {
		return &cql.Result{Kind: wire.ResultRows, Rows: &wire.RowsResult{
			Keyspace: sel.KeyspaceName, Table: sel.TableName,
		}}, nil
	}

	responses := make(map[string][]*model.Row, len(collected))
	for _, out := range collected {
		responses[out.node.Addr()] = out.rows
	}
	pkOrder := append([]string{}, pkCols...)
	merged, deltas := repair.Merge(pkOrder, responses)
	if len(deltas) > 0 {
		d.pushRepairs(sel, deltas)
	}

	names := sel.Columns
	if names == nil {
		table, ok, err := d.Metadata.GetTable(sel.KeyspaceName, sel.TableName)
		if err != nil {
			return nil, wireerr.Wrap(wireerr.ServerError, "metadata lookup failed", err)
		}
		if !ok {
			return nil, wireerr.Newf(wireerr.Invalid, "table %s.%s does not exist", sel.KeyspaceName, sel.TableName)
		}
		names = table.ColumnNames()
	}
	cols := make([]wire.ColumnSpec, 0, len(names))
	colIndex := make(map[string]int, len(names))
	for _, n := range names {
		colIndex[n] = len(cols)
		cols = append(cols, wire.ColumnSpec{Name: n})
	}
	values := make([][]string, len(merged))
	present := make([][]bool, len(merged))
	for i, row := range merged {
		values[i] = make([]string, len(cols))
		present[i] = make([]bool, len(cols))
		for name, idx := range colIndex {
			if c, ok := row.Columns[name]; ok {
				values[i][idx] = c.Value.Text
				present[i][idx] = true
				if cols[idx].Type == "" {
					cols[idx].Type = c.Value.Type
				}
			}
		}
	}
	return &cql.Result{Kind: wire.ResultRows, Rows: &wire.RowsResult{
		Keyspace: sel.KeyspaceName,
		Table:    sel.TableName,
		Columns:  cols,
		Values:   values,
		Present:  present,
	}}, nil
}

// pushRepairs hands every pending repair delta to applyRepair,
// best-effort and asynchronous, so failures here don't fail the client's
// read. Repair writes carry their original winning timestamp via
// ConditionalWrite-free Write, so replay is idempotent (spec §4.6 point
// 4). Only deltas for this node's own address are written; deltas for
// other replicas are not delivered (see applyRepair).
func (d *Delegator) pushRepairs(sel *cql.SelectQuery, deltas map[string][]repair.Op) {
	for addr, ops := range deltas {
		addr, ops := addr, ops
		go func() {
			for _, op := range ops {
				_ = d.applyRepair(addr, sel.KeyspaceName, sel.TableName, op)
			}
		}()
	}
}

func (d *Delegator) applyRepair(addr, keyspace, table string, op repair.Op) error {
	self, err := d.Metadata.SelfNode()
	if err == nil && self != nil && self.Addr() == addr {
		return d.Local.Storage.Write(keyspace, table, op.Row)
	}
	// A delta for any other replica is not sent anywhere: the call is a
	// no-op and that replica keeps its divergent row.
	return nil
}
