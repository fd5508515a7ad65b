package delegate

import (
	"context"
	"testing"

	"github.com/cuemby/ringdb/pkg/clock"
	"github.com/cuemby/ringdb/pkg/cql"
	"github.com/cuemby/ringdb/pkg/hints"
	"github.com/cuemby/ringdb/pkg/metadata"
	"github.com/cuemby/ringdb/pkg/model"
	"github.com/cuemby/ringdb/pkg/storage"
	"github.com/cuemby/ringdb/pkg/wire"
	"github.com/stretchr/testify/require"
)

// fakeClient answers Execute calls from a table of canned responses
// keyed by peer address, and records every address it was called with.
type fakeClient struct {
	responses map[string]*ReplicaResponse
	errs      map[string]error
	calls     []string
}

func (f *fakeClient) Execute(ctx context.Context, addr, query, keyspace string) (*ReplicaResponse, error) {
	f.calls = append(f.calls, addr)
	if err, ok := f.errs[addr]; ok {
		return nil, err
	}
	if resp, ok := f.responses[addr]; ok {
		return resp, nil
	}
	return &ReplicaResponse{}, nil
}

func newTestDelegator(t *testing.T, client ReplicaClient, self *model.Node, peers []*model.Node) *Delegator {
	t.Helper()
	st, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	md, err := metadata.Open(t.TempDir())
	require.NoError(t, err)
	hs, err := hints.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { hs.Close() })

	require.NoError(t, md.SetSelfNode(self))
	for _, p := range peers {
		require.NoError(t, md.UpsertPeer(p))
	}
	require.NoError(t, md.CreateKeyspace(&model.Keyspace{Name: "ks", ReplicationStrategy: "SimpleStrategy", ReplicationFactor: 2}, false))
	require.NoError(t, md.CreateTable("ks", &model.Table{
		Name:         "t",
		PartitionKey: []string{"id"},
		Columns:      []model.ColumnDef{{Name: "id", Type: model.Int}, {Name: "name", Type: model.Text}},
	}, false))
	require.NoError(t, st.CreateTable("ks", "t"))

	local := &cql.ExecContext{Storage: st, Metadata: md, Clock: clock.New(self.Position)}
	d := New(md, hs, client, local)
	return d
}

func TestDelegateWriteSucceedsAtConsistencyOne(t *testing.T) {
	self := &model.Node{Position: 1, IP: "10.0.0.1", Port: 9100, State: model.Active}
	peer := &model.Node{Position: 2, IP: "10.0.0.2", Port: 9100, State: model.Active}
	client := &fakeClient{responses: map[string]*ReplicaResponse{}}
	d := newTestDelegator(t, client, self, []*model.Node{peer})

	q, err := cql.Parse("INSERT INTO ks.t (id,name) VALUES (1,'A')", "ks")
	require.NoError(t, err)

	res, err := d.Delegate(context.Background(), q, []string{"id"}, 2, wire.One, "INSERT INTO ks.t (id,name) VALUES (1,'A')")
	require.NoError(t, err)
	require.Equal(t, wire.ResultVoid, res.Kind)
}

func TestDelegateWriteFailsWhenQuorumUnreachable(t *testing.T) {
	self := &model.Node{Position: 1, IP: "10.0.0.1", Port: 9100, State: model.Active}
	peer := &model.Node{Position: 2, IP: "10.0.0.2", Port: 9100, State: model.Active}
	client := &fakeClient{errs: map[string]error{peer.Addr(): context.DeadlineExceeded}}
	d := newTestDelegator(t, client, self, []*model.Node{peer})
	d.Timeout = 0 // use DefaultTimeout, but the peer always errors immediately

	q, err := cql.Parse("INSERT INTO ks.t (id,name) VALUES (1,'A')", "ks")
	require.NoError(t, err)

	_, err = d.Delegate(context.Background(), q, []string{"id"}, 2, wire.All, "INSERT INTO ks.t (id,name) VALUES (1,'A')")
	require.Error(t, err)

	// the unreachable peer should have a hint recorded and be marked Inactive.
	pending, perr := d.Hints.Pending(peer.IP)
	require.NoError(t, perr)
	require.Len(t, pending, 1)

	updated, ok, gerr := d.Metadata.GetPeer(peer.Position)
	require.NoError(t, gerr)
	require.True(t, ok)
	require.Equal(t, model.Inactive, updated.State)
}

func TestDelegateReadMergesReplicaResponses(t *testing.T) {
	self := &model.Node{Position: 1, IP: "10.0.0.1", Port: 9100, State: model.Active}
	peer := &model.Node{Position: 2, IP: "10.0.0.2", Port: 9100, State: model.Active}

	peerRow := &model.Row{
		PrimaryKey: map[string]model.Literal{"id": {Text: "1", Type: model.Int}},
		Timestamp:  100,
		Columns: map[string]*model.Column{
			"id":   {Name: "id", Value: model.Literal{Text: "1", Type: model.Int}, Timestamp: 100},
			"name": {Name: "name", Value: model.Literal{Text: "FROM-PEER", Type: model.Text}, Timestamp: 100},
		},
	}
	client := &fakeClient{responses: map[string]*ReplicaResponse{
		peer.Addr(): {Rows: []*model.Row{peerRow}},
	}}
	d := newTestDelegator(t, client, self, []*model.Node{peer})

	// the local replica has nothing yet: the peer's row should win outright.
	q, err := cql.Parse("SELECT * FROM ks.t WHERE id = 1", "ks")
	require.NoError(t, err)

	res, err := d.Delegate(context.Background(), q, []string{"id"}, 2, wire.Quorum, "SELECT * FROM ks.t WHERE id = 1")
	require.NoError(t, err)
	require.Equal(t, wire.ResultRows, res.Kind)
	require.Len(t, res.Rows.Values, 1)

	nameIdx := -1
	for i, c := range res.Rows.Columns {
		if c.Name == "name" {
			nameIdx = i
		}
	}
	require.NotEqual(t, -1, nameIdx)
	require.Equal(t, "FROM-PEER", res.Rows.Values[0][nameIdx])
}
