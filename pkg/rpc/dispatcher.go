package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/log"
	"github.com/maxsync/max/pkg/metrics"
)

// HandlerFunc answers one method call with a result value or an error
type HandlerFunc func(ctx context.Context, args []json.RawMessage) (any, error)

// MethodTable maps method names to handlers for one target
type MethodTable map[string]HandlerFunc

// Delegate intercepts requests before target dispatch. It returns the
// response and true when it handled the request; scope routing at the
// workspace and global dispatchers is implemented this way.
type Delegate func(ctx context.Context, req Request) (Response, bool)

// Dispatcher routes (target, method) to handlers. It never returns an
// error to its transport: every failure, including a panicking handler,
// becomes a structured failure response.
type Dispatcher struct {
	targets  map[string]MethodTable
	delegate Delegate
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{targets: make(map[string]MethodTable)}
}

// Register adds a single method handler under a target
func (d *Dispatcher) Register(target, method string, h HandlerFunc) {
	table, ok := d.targets[target]
	if !ok {
		table = make(MethodTable)
		d.targets[target] = table
	}
	table[method] = h
}

// RegisterTarget merges a whole method table under a target
func (d *Dispatcher) RegisterTarget(target string, table MethodTable) {
	for method, h := range table {
		d.Register(target, method, h)
	}
}

// SetDelegate installs the scope-routing delegate
func (d *Dispatcher) SetDelegate(delegate Delegate) {
	d.delegate = delegate
}

// Dispatch routes one request
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (resp Response) {
	timer := metrics.NewTimer()
	defer func() {
		if r := recover(); r != nil {
			log.WithComponent("rpc").Error().
				Str("target", req.Target).
				Str("method", req.Method).
				Interface("panic", r).
				Msg("handler panicked")
			resp = Failure(req.ID, &errdefs.Error{
				Code:    "platform.internal",
				Message: fmt.Sprintf("handler panic: %v", r),
				Facets:  []errdefs.Facet{errdefs.InvariantViolated},
			})
		}
		metrics.RPCRequestsTotal.WithLabelValues(req.Target, req.Method, strconv.FormatBool(resp.OK)).Inc()
		timer.ObserveDuration(metrics.RPCRequestDuration.WithLabelValues(req.Target, req.Method))
	}()

	if d.delegate != nil {
		if delegated, handled := d.delegate(ctx, req); handled {
			return delegated
		}
	}

	table, ok := d.targets[req.Target]
	if !ok {
		return Failure(req.ID, errdefs.ErrUnknownTarget.New(errdefs.Props{"target": req.Target}))
	}
	handler, ok := table[req.Method]
	if !ok {
		return Failure(req.ID, errdefs.ErrUnknownMethod.New(errdefs.Props{
			"target": req.Target,
			"method": req.Method,
		}))
	}

	result, err := handler(ctx, req.Args)
	if err != nil {
		return Failure(req.ID, err)
	}
	return Success(req.ID, result)
}
