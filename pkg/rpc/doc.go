/*
Package rpc implements Max's uniform request/response plane: the wire
types, the transport abstraction, and the dispatcher.

Every caller talks to every node the same way: build a Request with a
target facet ("" for the node itself, "engine" for its data plane), a
method name and positional JSON args, then Send it through a Transport.
Responses are {ok, result} or {ok:false, error} with the error envelope
crossing the wire unchanged.

# Transports

Three flavours share the contract:

  - Loopback calls a dispatch function in-memory (same-process nodes and
    the dispatcher roundtrip tests).
  - SocketServer/SocketClient speak framed JSON lines over a unix domain
    socket. Each connection is bidirectional; concurrent in-flight requests
    multiplex by request id and responses may arrive out of order.
  - HTTPServer/HTTPTransport carry one request per POST /rpc, with
    /healthz and /metrics alongside.

ScopedTransport wraps any of them and stamps scope routing fields on
outgoing requests, which is how a workspace client hands out installation
clients whose calls automatically carry the installation id.

# Dispatch

A Dispatcher owns method tables per target and never returns an error to
its transport: unknown targets and methods, handler errors and even handler
panics all become structured failure responses. A Delegate hook runs before
table lookup; workspace and global dispatchers use it for scope routing.
*/
package rpc
