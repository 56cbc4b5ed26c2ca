package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/types"
)

// RouteScope is the optional scope routing carried by a request. The
// top-level dispatcher reads it to decide whether to handle the request
// itself or delegate downward.
type RouteScope struct {
	WorkspaceID    types.WorkspaceID    `json:"workspaceId,omitempty"`
	InstallationID types.InstallationID `json:"installationId,omitempty"`
}

// Empty reports whether no routing fields are set
func (s RouteScope) Empty() bool {
	return s.WorkspaceID == "" && s.InstallationID == ""
}

// Request is one RPC call: target node facet, method name, positional args
type Request struct {
	ID     string            `json:"id"`
	Target string            `json:"target"`
	Method string            `json:"method"`
	Args   []json.RawMessage `json:"args,omitempty"`
	Scope  *RouteScope       `json:"scope,omitempty"`
}

// NewRequest builds a request, marshalling each arg
func NewRequest(target, method string, args ...any) (Request, error) {
	raw := make([]json.RawMessage, 0, len(args))
	for i, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			return Request{}, fmt.Errorf("failed to marshal arg %d of %s.%s: %w", i, target, method, err)
		}
		raw = append(raw, data)
	}
	return Request{Target: target, Method: method, Args: raw}, nil
}

// Response is the answer to one request: either a result or a structured
// error, never both.
type Response struct {
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// Success builds an ok response with a marshalled result
func Success(id string, result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return Failure(id, fmt.Errorf("failed to marshal result: %w", err))
	}
	return Response{ID: id, OK: true, Result: data}
}

// Failure builds a failed response carrying the serialized error envelope
func Failure(id string, err error) Response {
	return Response{ID: id, OK: false, Error: errdefs.Serialize(err)}
}

// Err reconstitutes the structured error of a failed response
func (r Response) Err() error {
	if r.OK {
		return nil
	}
	e, err := errdefs.Reconstitute(r.Error)
	if err != nil {
		return errdefs.ErrTransportFailed.New(errdefs.Props{"detail": err.Error()})
	}
	return e
}

// DecodeArg decodes the i-th positional argument into T
func DecodeArg[T any](args []json.RawMessage, i int) (T, error) {
	var v T
	if i >= len(args) {
		return v, errdefs.ErrBadArguments.New(errdefs.Props{
			"target": "", "method": "",
			"detail": fmt.Sprintf("missing argument %d", i),
		})
	}
	if err := json.Unmarshal(args[i], &v); err != nil {
		return v, errdefs.ErrBadArguments.New(errdefs.Props{
			"target": "", "method": "",
			"detail": fmt.Sprintf("argument %d: %v", i, err),
		})
	}
	return v, nil
}

// DecodeOptionalArg decodes the i-th argument if present, else returns the
// zero value.
func DecodeOptionalArg[T any](args []json.RawMessage, i int) (T, error) {
	var v T
	if i >= len(args) || len(args[i]) == 0 || string(args[i]) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(args[i], &v); err != nil {
		return v, errdefs.ErrBadArguments.New(errdefs.Props{
			"target": "", "method": "",
			"detail": fmt.Sprintf("argument %d: %v", i, err),
		})
	}
	return v, nil
}

// DecodeResult decodes a raw RPC result into T
func DecodeResult[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, errdefs.ErrTransportFailed.New(errdefs.Props{
			"detail": fmt.Sprintf("malformed result: %v", err),
		})
	}
	return v, nil
}

// Prompt is the platform input-prompt exchange frame used by stream
// transports: daemon -> client {"kind":"prompt"}, client -> daemon
// {"kind":"input"}.
type Prompt struct {
	Kind  string `json:"kind"`
	Text  string `json:"text,omitempty"`
	Value string `json:"value,omitempty"`
}
