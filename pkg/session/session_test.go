package session

import (
	"context"
	"testing"

	"github.com/cuemby/ringdb/pkg/auth"
	"github.com/cuemby/ringdb/pkg/clock"
	"github.com/cuemby/ringdb/pkg/cql"
	"github.com/cuemby/ringdb/pkg/metadata"
	"github.com/cuemby/ringdb/pkg/model"
	"github.com/cuemby/ringdb/pkg/storage"
	"github.com/cuemby/ringdb/pkg/wire"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	st, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	md, err := metadata.Open(t.TempDir())
	require.NoError(t, err)
	creds, err := auth.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, creds.SetPassword("alice", "secret"))

	exec := &cql.ExecContext{Storage: st, Metadata: md, Clock: clock.New(1)}
	s, err := New(md, creds, nil, exec)
	require.NoError(t, err)
	return s
}

func startupFrame() *wire.Frame {
	body := wire.NewWriter().StringMap(map[string]string{"CQL_VERSION": "3.0.0"}).Bytes()
	return &wire.Frame{Version: wire.ProtocolVersion, Stream: 1, Opcode: wire.OpStartup, Body: body}
}

func authFrame(userPass string) *wire.Frame {
	body := wire.NewWriter().LongString(userPass).Bytes()
	return &wire.Frame{Version: wire.ProtocolVersion, Stream: 1, Opcode: wire.OpAuthResponse, Body: body}
}

func queryFrame(text string, cl wire.Consistency) *wire.Frame {
	body := wire.NewWriter().LongString(text).Consistency(cl).Bytes()
	return &wire.Frame{Version: wire.ProtocolVersion, Stream: 2, Opcode: wire.OpQuery, Body: body}
}

func decodeError(t *testing.T, f *wire.Frame) (code uint16, msg string) {
	t.Helper()
	require.Equal(t, wire.OpError, f.Opcode)
	cur := wire.NewCursor(f.Body)
	c, err := cur.Short()
	require.NoError(t, err)
	m, err := cur.String()
	require.NoError(t, err)
	return uint16(c), m
}

func TestQueryBeforeStartupIsRejected(t *testing.T) {
	s := newTestSession(t)
	resp := s.Handle(context.Background(), queryFrame("SELECT * FROM ks.t", wire.One))
	require.Equal(t, wire.OpError, resp.Opcode)
	require.Equal(t, Handshake, s.State())
}

func TestStartupThenAuthThenQueryAdvancesState(t *testing.T) {
	s := newTestSession(t)

	resp := s.Handle(context.Background(), startupFrame())
	require.Equal(t, wire.OpAuthenticate, resp.Opcode)
	require.Equal(t, Authenticating, s.State())

	resp = s.Handle(context.Background(), authFrame("alice:secret"))
	require.Equal(t, wire.OpAuthSuccess, resp.Opcode)
	require.Equal(t, Authorized, s.State())
}

func TestAuthResponseWithWrongPasswordLeavesSessionUnchanged(t *testing.T) {
	s := newTestSession(t)
	s.Handle(context.Background(), startupFrame())

	resp := s.Handle(context.Background(), authFrame("alice:wrong"))
	code, _ := decodeError(t, resp)
	require.Equal(t, uint16(0x0100), code) // BadCredentials
	require.Equal(t, Authenticating, s.State())
}

func TestUseUpdatesCurrentKeyspace(t *testing.T) {
	s := newTestSession(t)
	s.Handle(context.Background(), startupFrame())
	s.Handle(context.Background(), authFrame("alice:secret"))

	require.NoError(t, s.Metadata.CreateKeyspace(&model.Keyspace{Name: "ks", ReplicationStrategy: "SimpleStrategy", ReplicationFactor: 1}, false))

	resp := s.Handle(context.Background(), queryFrame("USE ks", wire.One))
	require.Equal(t, wire.OpResult, resp.Opcode)
	require.Equal(t, UsingKeyspace, s.State())
	require.Equal(t, "ks", s.sess.CurrentKeyspace)
}

func TestQueryRunsLocallyWithoutDelegator(t *testing.T) {
	s := newTestSession(t)
	s.Handle(context.Background(), startupFrame())
	s.Handle(context.Background(), authFrame("alice:secret"))

	require.NoError(t, s.Metadata.CreateKeyspace(&model.Keyspace{Name: "ks", ReplicationStrategy: "SimpleStrategy", ReplicationFactor: 1}, false))
	require.NoError(t, s.Metadata.CreateTable("ks", &model.Table{
		Name:         "t",
		PartitionKey: []string{"id"},
		Columns:      []model.ColumnDef{{Name: "id", Type: model.Int}, {Name: "name", Type: model.Text}},
	}, false))
	require.NoError(t, s.Exec.Storage.CreateTable("ks", "t"))

	resp := s.Handle(context.Background(), queryFrame("INSERT INTO ks.t (id,name) VALUES (1,'A')", wire.One))
	require.Equal(t, wire.OpResult, resp.Opcode)

	resp = s.Handle(context.Background(), queryFrame("SELECT * FROM ks.t WHERE id = 1", wire.One))
	require.Equal(t, wire.OpResult, resp.Opcode)
}

func TestPrepareIsUnimplemented(t *testing.T) {
	s := newTestSession(t)
	s.Handle(context.Background(), startupFrame())
	s.Handle(context.Background(), authFrame("alice:secret"))

	resp := s.Handle(context.Background(), &wire.Frame{Stream: 3, Opcode: wire.OpPrepare})
	code, _ := decodeError(t, resp)
	require.Equal(t, uint16(0x2500), code) // Unprepared
}
