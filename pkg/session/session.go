// Package session implements the per-connection client session FSM
// (spec §4.9): Handshake -> Authenticating -> Authorized -> (Authorized
// | UsingKeyspace), with opcode gating enforced on every frame and the
// session record persisted through pkg/metadata for the life of the
// connection.
package session

import (
	"context"
	"errors"

	"github.com/cuemby/ringdb/pkg/auth"
	"github.com/cuemby/ringdb/pkg/cql"
	"github.com/cuemby/ringdb/pkg/delegate"
	"github.com/cuemby/ringdb/pkg/log"
	"github.com/cuemby/ringdb/pkg/metadata"
	"github.com/cuemby/ringdb/pkg/model"
	"github.com/cuemby/ringdb/pkg/wire"
	"github.com/cuemby/ringdb/pkg/wireerr"
	"github.com/google/uuid"
)

// State is the session's position in the spec §4.9 FSM, derived from the
// persisted model.ClientSession rather than tracked separately so a
// restarted handler can recover it from disk.
type State int

const (
	Handshake State = iota
	Authenticating
	Authorized
	UsingKeyspace
)

func (s State) String() string {
	switch s {
	case Handshake:
		return "Handshake"
	case Authenticating:
		return "Authenticating"
	case Authorized:
		return "Authorized"
	case UsingKeyspace:
		return "UsingKeyspace"
	default:
		return "Unknown"
	}
}

func stateOf(sess *model.ClientSession) State {
	switch {
	case !sess.StartupDone:
		return Handshake
	case !sess.Authorized:
		return Authenticating
	case sess.CurrentKeyspace != "":
		return UsingKeyspace
	default:
		return Authorized
	}
}

// Session is a single client connection's handler: opcode dispatch plus
// the node-local handles needed to run or delegate a parsed statement.
type Session struct {
	Metadata  *metadata.Store
	Creds     *auth.Store
	Delegator *delegate.Delegator // nil runs every statement locally (single-node/tests)
	Exec      *cql.ExecContext

	// OnSchemaChange, if set, is invoked with a DDL statement's original
	// text and target keyspace after it runs locally on this node (spec
	// §4.4: schema is cluster-wide metadata). pkg/node wires this to
	// broadcast the statement to every peer's metadata-RPC listener;
	// nil leaves schema changes local, which is what single-node tests
	// and standalone deployments want.
	OnSchemaChange func(text, keyspace string)

	sess *model.ClientSession
}

// New starts a session record for a freshly accepted connection (spec
// §3: "One per accepted TLS connection").
func New(md *metadata.Store, creds *auth.Store, delegator *delegate.Delegator, exec *cql.ExecContext) (*Session, error) {
	sess := &model.ClientSession{ID: uuid.NewString()}
	if err := md.SaveSession(sess); err != nil {
		return nil, err
	}
	return &Session{Metadata: md, Creds: creds, Delegator: delegator, Exec: exec, sess: sess}, nil
}

// ID returns the session's persisted identifier.
func (s *Session) ID() string { return s.sess.ID }

// State reports the session's current FSM state.
func (s *Session) State() State { return stateOf(s.sess) }

// Close removes the session's persisted record (spec §4.9: "On TCP close
// the session record is removed").
func (s *Session) Close() error {
	return s.Metadata.DeleteSession(s.sess.ID)
}

// allowedOpcodes gates which opcodes a frame may carry in each state
// (spec point 7, §4.9). Opcodes absent from the current state's set are
// answered with Unprepared or Invalid and the session is left unchanged.
var allowedOpcodes = map[State]map[wire.Opcode]bool{
	Handshake: {
		wire.OpStartup: true,
	},
	Authenticating: {
		wire.OpStartup:      true,
		wire.OpAuthResponse: true,
	},
	Authorized: {
		wire.OpOptions:  true,
		wire.OpQuery:    true,
		wire.OpPrepare:  true,
		wire.OpExecute:  true,
		wire.OpRegister: true,
		wire.OpBatch:    true,
	},
}

func init() {
	allowedOpcodes[UsingKeyspace] = allowedOpcodes[Authorized]
}

// Handle dispatches one request frame and returns the response frame to
// write back, always echoing the request's stream id (spec §5).
func (s *Session) Handle(ctx context.Context, f *wire.Frame) *wire.Frame {
	body, err := s.dispatch(ctx, f)
	if err != nil {
		werr := asWireErr(err)
		if werr.Code.Disposition()&wireerr.Logged != 0 {
			log.Logger.Error().Err(werr).Str("session", s.sess.ID).Msg("query failed")
		}
		return wire.NewErrorFrame(f.Stream, werr)
	}
	return body
}

func asWireErr(err error) *wireerr.Error {
	var werr *wireerr.Error
	if errors.As(err, &werr) {
		return werr
	}
	return wireerr.Wrap(wireerr.ServerError, "internal error", err)
}

func (s *Session) dispatch(ctx context.Context, f *wire.Frame) (*wire.Frame, error) {
	state := s.State()
	if !allowedOpcodes[state][f.Opcode] {
		return nil, wireerr.Newf(wireerr.Unprepared, "opcode 0x%02X not allowed in state %s", f.Opcode, state)
	}

	switch f.Opcode {
	case wire.OpStartup:
		return s.handleStartup(f)
	case wire.OpAuthResponse:
		return s.handleAuthResponse(f)
	case wire.OpOptions:
		return wire.NewResponse(f.Stream, wire.OpSupported, wire.NewWriter().StringMap(nil).Bytes()), nil
	case wire.OpQuery:
		return s.handleQuery(ctx, f)
	case wire.OpPrepare, wire.OpExecute, wire.OpRegister, wire.OpBatch:
		return nil, wireerr.New(wireerr.Unprepared, "not implemented")
	default:
		return nil, wireerr.Newf(wireerr.ProtocolError, "unknown opcode 0x%02X", f.Opcode)
	}
}

func (s *Session) handleStartup(f *wire.Frame) (*wire.Frame, error) {
	cur := wire.NewCursor(f.Body)
	options, err := cur.StringMap()
	if err != nil {
		return nil, err
	}
	if err := cql.ValidateStartup(options); err != nil {
		return nil, err
	}
	s.sess.StartupDone = true
	if err := s.Metadata.SaveSession(s.sess); err != nil {
		return nil, wireerr.Wrap(wireerr.ServerError, "persist session", err)
	}
	// Every STARTUP is followed by AUTH_RESPONSE: spec §6 mandates
	// validating against the (user, argon2-hash) store unconditionally.
	return wire.NewResponse(f.Stream, wire.OpAuthenticate, nil), nil
}

func (s *Session) handleAuthResponse(f *wire.Frame) (*wire.Frame, error) {
	cur := wire.NewCursor(f.Body)
	body, err := cur.LongString()
	if err != nil {
		return nil, err
	}
	if _, err := auth.VerifyResponse(s.Creds, body); err != nil {
		return nil, err
	}
	s.sess.Authorized = true
	if err := s.Metadata.SaveSession(s.sess); err != nil {
		return nil, wireerr.Wrap(wireerr.ServerError, "persist session", err)
	}
	return wire.NewResponse(f.Stream, wire.OpAuthSuccess, nil), nil
}

func (s *Session) handleQuery(ctx context.Context, f *wire.Frame) (*wire.Frame, error) {
	cur := wire.NewCursor(f.Body)
	text, err := cur.LongString()
	if err != nil {
		return nil, err
	}
	cl, err := cur.Consistency()
	if err != nil {
		return nil, err
	}

	query, err := cql.Parse(text, s.sess.CurrentKeyspace)
	if err != nil {
		return nil, err
	}

	s.Exec.Keyspace = s.sess.CurrentKeyspace
	result, err := s.run(ctx, query, cl, text)
	if err != nil {
		return nil, err
	}

	if result.Kind == wire.ResultSetKeyspace {
		s.sess.CurrentKeyspace = result.Keyspace
		if err := s.Metadata.SaveSession(s.sess); err != nil {
			return nil, wireerr.Wrap(wireerr.ServerError, "persist session", err)
		}
	}
	if result.Kind == wire.ResultSchemaChange && s.OnSchemaChange != nil {
		s.OnSchemaChange(text, result.Keyspace)
	}
	return wire.NewResponse(f.Stream, wire.OpResult, result.Encode()), nil
}

// run executes query either locally (USE, DDL, or a standalone node with
// no delegator wired) or through the delegator for partition-bearing DML
// (spec §4.5).
func (s *Session) run(ctx context.Context, query cql.Query, cl wire.Consistency, text string) (*cql.Result, error) {
	pkCols, rf, delegable := s.replicationInfo(query)
	if !delegable || s.Delegator == nil {
		return query.RunLocal(s.Exec)
	}
	return s.Delegator.Delegate(ctx, query, pkCols, rf, cl, text)
}

// replicationInfo reports the table's partition-key order and the
// keyspace's replication factor for a statement that carries one, so
// only SELECT/INSERT/UPDATE/DELETE against an existing table are routed
// through the delegator; USE and every DDL statement run locally.
func (s *Session) replicationInfo(query cql.Query) (pkCols []string, rf int, ok bool) {
	keyspace, table, isTabled := tableRef(query)
	if !isTabled {
		return nil, 0, false
	}
	t, found, err := s.Metadata.GetTable(keyspace, table)
	if err != nil || !found {
		return nil, 0, false
	}
	ks, found, err := s.Metadata.GetKeyspace(keyspace)
	if err != nil || !found {
		return nil, 0, false
	}
	return t.PartitionKey, ks.ReplicationFactor, true
}

// tableRef extracts the keyspace/table a DML statement targets. DDL and
// USE statements aren't partition-bearing and report false.
func tableRef(query cql.Query) (keyspace, table string, ok bool) {
	switch q := query.(type) {
	case *cql.SelectQuery:
		return q.KeyspaceName, q.TableName, true
	case *cql.InsertQuery:
		return q.KeyspaceName, q.TableName, true
	case *cql.UpdateQuery:
		return q.KeyspaceName, q.TableName, true
	case *cql.DeleteQuery:
		return q.KeyspaceName, q.TableName, true
	default:
		return "", "", false
	}
}
