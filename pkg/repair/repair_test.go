package repair

import (
	"testing"

	"github.com/cuemby/ringdb/pkg/model"
	"github.com/stretchr/testify/require"
)

func row(id string, age int64, ageTS int64) *model.Row {
	return &model.Row{
		PrimaryKey: map[string]model.Literal{"id": {Text: id, Type: model.Text}},
		Timestamp:  ageTS,
		Columns: map[string]*model.Column{
			"age": {Name: "age", Value: model.Literal{Text: "x", Type: model.Int}, Timestamp: ageTS},
		},
	}
}

func TestMergeSingleResponseNeedsNoRepair(t *testing.T) {
	responses := map[string][]*model.Row{
		"a": {row("1", 10, 10)},
	}
	merged, deltas := Merge([]string{"id"}, responses)
	require.Len(t, merged, 1)
	require.Nil(t, deltas)
}

func TestMergePicksNewestTimestampAndRepairsStale(t *testing.T) {
	responses := map[string][]*model.Row{
		"a": {row("1", 10, 10)},
		"b": {row("1", 20, 20)},
	}
	merged, deltas := Merge([]string{"id"}, responses)
	require.Len(t, merged, 1)
	require.Equal(t, int64(20), merged[0].Columns["age"].Timestamp)

	require.Len(t, deltas["a"], 1)
	require.Equal(t, OpUpdate, deltas["a"][0].Kind)
	require.Empty(t, deltas["b"])
}

func TestMergeInsertsMissingRowOnLaggingReplica(t *testing.T) {
	responses := map[string][]*model.Row{
		"a": {row("1", 10, 10)},
		"b": {},
	}
	merged, deltas := Merge([]string{"id"}, responses)
	require.Len(t, merged, 1)
	require.Len(t, deltas["b"], 1)
	require.Equal(t, OpInsert, deltas["b"][0].Kind)
	require.Empty(t, deltas["a"])
}

func TestMergeDeletesOnReplicaMissingTombstone(t *testing.T) {
	tombstoned := row("1", 30, 5)
	tombstoned.Deleted = true
	tombstoned.Timestamp = 30

	responses := map[string][]*model.Row{
		"a": {tombstoned},
		"b": {row("1", 10, 10)},
	}
	merged, deltas := Merge([]string{"id"}, responses)
	require.Empty(t, merged)
	require.Len(t, deltas["b"], 1)
	require.Equal(t, OpDelete, deltas["b"][0].Kind)
}
