// Package rebalance computes the row movement required when a node
// joins the ring (spec §2 component table "Rebalance", §4.8, §9). A plan
// is built as a typed description of which rows move where rather than
// moved ad hoc as replica arcs shift, the same shape
// node/src/redistribution/builder_message.rs gives the original's
// "builder message".
package rebalance

import (
	"github.com/cuemby/ringdb/pkg/model"
	"github.com/cuemby/ringdb/pkg/ring"
)

// Store is the row-scan surface rebalance needs from a table's storage:
// every non-tombstoned row, reconciled, for one table.
type Store interface {
	AllRows(keyspace, table string, partitionKey []string) ([]*model.Row, error)
}

// RowMove is one row a plan says must be delivered to Target.
type RowMove struct {
	Keyspace string
	Table    string
	Row      *model.Row
}

// Plan is the full set of rows a joining node must receive to become a
// complete replica for the partitions its ring position now owns.
type Plan struct {
	Target *model.Node
	Moves  []RowMove
}

// Build scans every table of every keyspace and collects the rows whose
// replica arc under the ring extended with joiner now includes joiner
// (spec §4.8: "redistribute the affected partitions' rows to the new
// replica set"). joiner holds no data yet, so there is no "old arc"
// comparison to make: any row landing in joiner's arc at all must move.
func Build(store Store, keyspaces []*model.Keyspace, existing []*model.Node, joiner *model.Node, defaultRF int) (*Plan, error) {
	r := ring.New(append(append([]*model.Node{}, existing...), joiner))
	plan := &Plan{Target: joiner}

	for _, ks := range keyspaces {
		rf := ks.ReplicationFactor
		if rf <= 0 {
			rf = defaultRF
		}
		for _, table := range ks.Tables {
			rows, err := store.AllRows(ks.Name, table.Name, table.PartitionKey)
			if err != nil {
				return nil, err
			}
			for _, row := range rows {
				pk := partitionKeyString(table.PartitionKey, row)
				if r.IsReplica(pk, rf, joiner.Position) {
					plan.Moves = append(plan.Moves, RowMove{Keyspace: ks.Name, Table: table.Name, Row: row})
				}
			}
		}
	}
	return plan, nil
}

// partitionKeyString renders a row's partition-key columns the same way
// pkg/delegate does, so the hash placed here matches the hash the
// delegator used to route the original write.
func partitionKeyString(pkCols []string, row *model.Row) string {
	s := ""
	for _, c := range pkCols {
		if lit, ok := row.PrimaryKey[c]; ok {
			s += c + "=" + lit.Text + ";"
		}
	}
	return s
}
