package client

import (
	"context"
	"encoding/json"

	"github.com/maxsync/max/pkg/lifecycle"
	"github.com/maxsync/max/pkg/rpc"
	"github.com/maxsync/max/pkg/types"
)

// SupervisedClient proxies the lifecycle surface of a remote node over a
// transport. Transport failures degrade to the conservative outcomes:
// unreachable health, errored start and stop.
type SupervisedClient struct {
	t rpc.Transport
}

// NewSupervisedClient creates a lifecycle proxy over a transport
func NewSupervisedClient(t rpc.Transport) *SupervisedClient {
	return &SupervisedClient{t: t}
}

// Health probes the remote node. Probe failures never propagate; they
// report as unhealthy.
func (c *SupervisedClient) Health(ctx context.Context) types.HealthStatus {
	status, err := rpc.Call[types.HealthStatus](ctx, c.t, "", "health")
	if err != nil {
		return types.UnhealthyStatus("unreachable")
	}
	return status
}

// Start starts the remote node
func (c *SupervisedClient) Start(ctx context.Context) types.StartResult {
	result, err := rpc.Call[types.StartResult](ctx, c.t, "", "start")
	if err != nil {
		return types.StartError(err)
	}
	return result
}

// Stop stops the remote node
func (c *SupervisedClient) Stop(ctx context.Context) types.StopResult {
	result, err := rpc.Call[types.StopResult](ctx, c.t, "", "stop")
	if err != nil {
		return types.StopError(err)
	}
	return result
}

// SupervisedTable builds the dispatch table for a node's lifecycle
// surface, mounted on the root target.
func SupervisedTable(node lifecycle.Supervised) rpc.MethodTable {
	return rpc.MethodTable{
		"health": func(ctx context.Context, args []json.RawMessage) (any, error) {
			return node.Health(ctx), nil
		},
		"start": func(ctx context.Context, args []json.RawMessage) (any, error) {
			return node.Start(ctx), nil
		},
		"stop": func(ctx context.Context, args []json.RawMessage) (any, error) {
			return node.Stop(ctx), nil
		},
	}
}
