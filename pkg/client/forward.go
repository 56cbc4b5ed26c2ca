package client

import (
	"context"

	"github.com/maxsync/max/pkg/rpc"
)

// NewForwardingDispatcher wraps a transport as a dispatcher: every request
// is relayed to the remote node unchanged. Parents use it to route scoped
// requests down to children they only hold a proxy for.
func NewForwardingDispatcher(t rpc.Transport) *rpc.Dispatcher {
	d := rpc.NewDispatcher()
	d.SetDelegate(func(ctx context.Context, req rpc.Request) (rpc.Response, bool) {
		raw, err := t.Send(ctx, req)
		if err != nil {
			return rpc.Failure(req.ID, err), true
		}
		return rpc.Success(req.ID, raw), true
	})
	return d
}
