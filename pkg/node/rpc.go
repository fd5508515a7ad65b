package node

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/cuemby/ringdb/pkg/model"
)

// withOffset rewrites a node's base address ("host:port") to the address
// of one of its other six listeners ("host:port+offset"), per spec §6's
// fixed port layout. Every internal RPC dial needs this: pkg/model.Node
// only ever records the base (client) port.
func withOffset(baseAddr string, offset int) string {
	host, portStr, err := net.SplitHostPort(baseAddr)
	if err != nil {
		return baseAddr
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return baseAddr
	}
	return fmt.Sprintf("%s:%d", host, port+offset)
}

// The internal listener roles (query-delegation, data-access-RPC,
// metadata-RPC, seed, gossip, hint-receiver) never speak the client wire
// protocol (spec §6 only defines that for the client socket); they speak
// a small length-prefixed JSON envelope instead, the same JSON encoding
// pkg/hints (bbolt values) and pkg/metadata (JSON files) already use for
// their own on-disk records. Internal-only, so there's nothing for an
// external driver to be compatible with.
type envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func writeEnvelope(w io.Writer, kind string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env, err := json.Marshal(envelope{Kind: kind, Payload: body})
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(env)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(env)
	return err
}

func readEnvelope(r io.Reader) (*envelope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > 64<<20 {
		return nil, fmt.Errorf("rpc envelope too large: %d bytes", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// dial opens a short-lived mutual-TLS connection to addr, writes req
// under kind, and decodes the single reply envelope's payload into resp.
func dial(ctx context.Context, tlsCfg *tls.Config, addr string, timeout time.Duration, kind string, req, resp any) error {
	d := &net.Dialer{Timeout: timeout}
	rawConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer rawConn.Close()

	conn := tls.Client(rawConn, tlsCfg)
	conn.SetDeadline(time.Now().Add(timeout))

	if err := writeEnvelope(conn, kind, req); err != nil {
		return fmt.Errorf("write request to %s: %w", addr, err)
	}
	env, err := readEnvelope(bufio.NewReader(conn))
	if err != nil {
		return fmt.Errorf("read response from %s: %w", addr, err)
	}
	if env.Kind == "error" {
		var msg string
		_ = json.Unmarshal(env.Payload, &msg)
		return fmt.Errorf("%s: %s", addr, msg)
	}
	if resp != nil {
		return json.Unmarshal(env.Payload, resp)
	}
	return nil
}

// executeRequest is the query-delegation (P+1) and metadata-RPC (P+3)
// request shape: run originalText against this replica's own storage.
type executeRequest struct {
	Query    string `json:"query"`
	Keyspace string `json:"keyspace"`
}

type executeResponse struct {
	Rows []*model.Row `json:"rows"`
}

// gossipRequest/gossipResponse carry a membership view (spec §4.8).
type gossipRequest struct {
	View []*model.Node `json:"view"`
}

type gossipResponse struct {
	View []*model.Node `json:"view"`
}

// hintReplayRequest carries one replayed write; the receiver applies it
// idempotently and acknowledges.
type hintReplayRequest struct {
	Query     string `json:"query"`
	Keyspace  string `json:"keyspace"`
	Timestamp int64  `json:"timestamp"`
}

type hintReplayResponse struct {
	Applied bool `json:"applied"`
}

// rebalanceRowRequest carries one row a rebalance plan is delivering to
// its target; unlike executeRequest/hintReplayRequest it has no CQL text
// because a moved row was never itself the subject of a client statement.
type rebalanceRowRequest struct {
	Keyspace string     `json:"keyspace"`
	Table    string     `json:"table"`
	Row      *model.Row `json:"row"`
}

type rebalanceRowResponse struct {
	Applied bool `json:"applied"`
}
