package rpc

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/maxsync/max/pkg/errdefs"
)

// Transport is the only mechanism nodes use to speak to peers. Send
// delivers one request and returns the raw result value; dispatch errors
// from the receiver arrive as reconstituted structured errors, wire
// failures as the platform.transport family. A transport never fabricates
// errors of its own beyond that family.
type Transport interface {
	Send(ctx context.Context, req Request) (json.RawMessage, error)
	Close() error
}

// Dispatch is the receiving half of a transport: a function that answers
// one request. Dispatchers never return transport errors; every failure is
// a structured response.
type Dispatch func(ctx context.Context, req Request) Response

// Loopback is the in-process transport: Send calls a dispatch function
// directly.
type Loopback struct {
	dispatch Dispatch
	closed   atomic.Bool
}

// NewLoopback creates a loopback transport over a dispatch function
func NewLoopback(dispatch Dispatch) *Loopback {
	return &Loopback{dispatch: dispatch}
}

// Send dispatches in-memory
func (l *Loopback) Send(ctx context.Context, req Request) (json.RawMessage, error) {
	if l.closed.Load() {
		return nil, errdefs.ErrTransportClosed.New(nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, errdefs.ErrTransportFailed.New(errdefs.Props{"detail": err.Error()})
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	resp := l.dispatch(ctx, req)
	if !resp.OK {
		return nil, resp.Err()
	}
	return resp.Result, nil
}

// Close marks the loopback closed; subsequent sends fail
func (l *Loopback) Close() error {
	l.closed.Store(true)
	return nil
}

// ScopedTransport wraps an inner transport and stamps scope routing fields
// on outgoing requests. Fields already present on a request win; the stamp
// only fills gaps. This lets a workspace client hand out installation
// clients whose requests automatically carry the installation id.
type ScopedTransport struct {
	inner Transport
	scope RouteScope
}

// WithScope wraps a transport with a routing scope stamp
func WithScope(inner Transport, scope RouteScope) *ScopedTransport {
	return &ScopedTransport{inner: inner, scope: scope}
}

// Send stamps the scope and forwards
func (s *ScopedTransport) Send(ctx context.Context, req Request) (json.RawMessage, error) {
	stamped := s.scope
	if req.Scope != nil {
		if req.Scope.WorkspaceID != "" {
			stamped.WorkspaceID = req.Scope.WorkspaceID
		}
		if req.Scope.InstallationID != "" {
			stamped.InstallationID = req.Scope.InstallationID
		}
	}
	if !stamped.Empty() {
		req.Scope = &stamped
	}
	return s.inner.Send(ctx, req)
}

// Close closes the inner transport
func (s *ScopedTransport) Close() error {
	return s.inner.Close()
}

// Call sends a request built from target/method/args and decodes the result
// into T. It is the shared helper behind every proxy method.
func Call[T any](ctx context.Context, t Transport, target, method string, args ...any) (T, error) {
	var zero T
	req, err := NewRequest(target, method, args...)
	if err != nil {
		return zero, err
	}
	raw, err := t.Send(ctx, req)
	if err != nil {
		return zero, err
	}
	return DecodeResult[T](raw)
}
