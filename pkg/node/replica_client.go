package node

import (
	"context"

	"github.com/cuemby/ringdb/pkg/delegate"
)

// replicaClient is pkg/delegate.ReplicaClient's concrete implementation:
// it dials a replica's query-delegation socket (P+1) under mutual TLS
// and runs the statement there.
type replicaClient struct {
	n *Node
}

func (c *replicaClient) Execute(ctx context.Context, addr, query, keyspace string) (*delegate.ReplicaResponse, error) {
	req := executeRequest{Query: query, Keyspace: keyspace}
	var resp executeResponse
	delegationAddr := withOffset(addr, offsetDelegation)
	if err := dial(ctx, c.n.dialTLS, delegationAddr, c.n.dialTimeout(), "execute", req, &resp); err != nil {
		return nil, err
	}
	return &delegate.ReplicaResponse{Rows: resp.Rows}, nil
}
