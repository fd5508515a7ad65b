package metadata

import (
	"testing"

	"github.com/cuemby/ringdb/pkg/model"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestCreateAndGetKeyspace(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateKeyspace(&model.Keyspace{Name: "ks", ReplicationFactor: 3}, false))

	ks, ok, err := s.GetKeyspace("ks")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, ks.ReplicationFactor)
}

func TestCreateKeyspaceAlreadyExists(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateKeyspace(&model.Keyspace{Name: "ks", ReplicationFactor: 1}, false))
	err := s.CreateKeyspace(&model.Keyspace{Name: "ks", ReplicationFactor: 1}, false)
	require.Error(t, err)

	require.NoError(t, s.CreateKeyspace(&model.Keyspace{Name: "ks", ReplicationFactor: 1}, true))
}

func TestDropKeyspaceIfExists(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.DropKeyspace("missing", true))
	require.Error(t, s.DropKeyspace("missing", false))
}

func TestCreateTableAndAlter(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateKeyspace(&model.Keyspace{Name: "ks", ReplicationFactor: 1}, false))
	tbl := &model.Table{
		Name:         "t",
		PartitionKey: []string{"id"},
		Columns: []model.ColumnDef{
			{Name: "id", Type: model.Int},
			{Name: "name", Type: model.Text},
		},
	}
	require.NoError(t, s.CreateTable("ks", tbl, false))

	err := s.AlterTable("ks", "t", func(t *model.Table) error {
		t.Columns = append(t.Columns, model.ColumnDef{Name: "age", Type: model.Int})
		return nil
	})
	require.NoError(t, err)

	got, ok, err := s.GetTable("ks", "t")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Columns, 3)
}

func TestGossipMergeAdoptsNewerAndReportsMissing(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertPeer(&model.Node{Position: 1, LastTimestamp: 5, State: model.Active}))
	require.NoError(t, s.UpsertPeer(&model.Node{Position: 2, LastTimestamp: 5, State: model.Active}))

	missing, err := s.MergeGossip([]*model.Node{
		{Position: 1, LastTimestamp: 10, State: model.Inactive},
	})
	require.NoError(t, err)
	require.Len(t, missing, 1)
	require.Equal(t, 2, missing[0].Position)

	p1, ok, err := s.GetPeer(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.Inactive, p1.State)

	// Stale incoming timestamp must not overwrite.
	_, err = s.MergeGossip([]*model.Node{
		{Position: 1, LastTimestamp: 1, State: model.Active},
	})
	require.NoError(t, err)
	p1, _, _ = s.GetPeer(1)
	require.Equal(t, model.Inactive, p1.State)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	sess := &model.ClientSession{ID: "conn-1", StartupDone: true}
	require.NoError(t, s.SaveSession(sess))

	got, ok, err := s.LoadSession("conn-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.StartupDone)

	require.NoError(t, s.DeleteSession("conn-1"))
	_, ok, err = s.LoadSession("conn-1")
	require.NoError(t, err)
	require.False(t, ok)
}
