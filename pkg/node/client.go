package node

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"

	"github.com/cuemby/ringdb/pkg/log"
	"github.com/cuemby/ringdb/pkg/metrics"
	"github.com/cuemby/ringdb/pkg/session"
	"github.com/cuemby/ringdb/pkg/wire"
	"github.com/cuemby/ringdb/pkg/wireerr"
)

// handleClientConn runs one client session's request/response loop for
// the lifetime of its TCP connection (spec §3: "Client sessions exist
// for the TCP lifetime"; §5: "every accepted TLS connection is handled
// by a dedicated worker").
func (n *Node) handleClientConn(conn net.Conn) {
	sess, err := session.New(n.Metadata, n.Creds, n.Delegator, n.execContext(""))
	if err != nil {
		log.Logger.Error().Err(err).Msg("create client session")
		return
	}
	sess.OnSchemaChange = n.broadcastSchemaChange

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()
	defer func() {
		if err := sess.Close(); err != nil {
			log.Logger.Warn().Err(err).Str("session", sess.ID()).Msg("close session record")
		}
	}()

	ctx := context.Background()
	for {
		f, err := wire.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Logger.Debug().Err(err).Str("session", sess.ID()).Msg("client connection closed")
			}
			return
		}

		resp := sess.Handle(ctx, f)
		if err := wire.WriteFrame(conn, resp); err != nil {
			log.Logger.Warn().Err(err).Str("session", sess.ID()).Msg("write response")
			return
		}
		if resp.Opcode == wire.OpError && len(resp.Body) >= 2 {
			code := wireerr.Code(binary.BigEndian.Uint16(resp.Body[:2]))
			if code.Disposition()&wireerr.ConnectionClosed != 0 {
				return
			}
		}
	}
}
