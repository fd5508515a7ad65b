package rebalance

import (
	"testing"

	"github.com/cuemby/ringdb/pkg/model"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	rows map[string][]*model.Row // keyspace.table -> rows
}

func (f *fakeStore) AllRows(keyspace, table string, _ []string) ([]*model.Row, error) {
	return f.rows[keyspace+"."+table], nil
}

func row(id string) *model.Row {
	return &model.Row{PrimaryKey: map[string]model.Literal{"id": {Text: id, Type: model.Int}}}
}

func TestBuildCollectsOnlyRowsLandingInJoinersArc(t *testing.T) {
	existing := []*model.Node{
		{Position: 1, IP: "10.0.0.1", Port: 9100, State: model.Active},
	}
	joiner := &model.Node{Position: 2, IP: "10.0.0.2", Port: 9100, State: model.Booting}

	ks := &model.Keyspace{
		Name:              "ks",
		ReplicationFactor: 2,
		Tables: map[string]*model.Table{
			"t": {Name: "t", PartitionKey: []string{"id"}},
		},
	}
	store := &fakeStore{rows: map[string][]*model.Row{
		"ks.t": {row("1"), row("2"), row("3")},
	}}

	plan, err := Build(store, []*model.Keyspace{ks}, existing, joiner, 2)
	require.NoError(t, err)
	require.Equal(t, joiner, plan.Target)
	require.LessOrEqual(t, len(plan.Moves), 3)
	for _, mv := range plan.Moves {
		require.Equal(t, "ks", mv.Keyspace)
		require.Equal(t, "t", mv.Table)
	}
}

func TestBuildWithRFEqualToClusterSizeMovesEveryRow(t *testing.T) {
	existing := []*model.Node{{Position: 1, IP: "10.0.0.1", Port: 9100}}
	joiner := &model.Node{Position: 2, IP: "10.0.0.2", Port: 9100}

	ks := &model.Keyspace{
		Name: "ks",
		Tables: map[string]*model.Table{
			"t": {Name: "t", PartitionKey: []string{"id"}},
		},
	}
	store := &fakeStore{rows: map[string][]*model.Row{"ks.t": {row("1"), row("2")}}}

	plan, err := Build(store, []*model.Keyspace{ks}, existing, joiner, 2)
	require.NoError(t, err)
	require.Len(t, plan.Moves, 2, "RF==cluster size means every partition replicates to every node including the joiner")
}

func TestBuildSkipsEmptyTables(t *testing.T) {
	existing := []*model.Node{{Position: 1}}
	joiner := &model.Node{Position: 2}
	ks := &model.Keyspace{Name: "ks", Tables: map[string]*model.Table{"t": {Name: "t", PartitionKey: []string{"id"}}}}
	store := &fakeStore{rows: map[string][]*model.Row{}}

	plan, err := Build(store, []*model.Keyspace{ks}, existing, joiner, 1)
	require.NoError(t, err)
	require.Empty(t, plan.Moves)
}
