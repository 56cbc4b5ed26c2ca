/*
Package client pairs every node interface that crosses a process boundary
with a caller-side proxy and a receiver-side dispatch table.

Proxies (SupervisedClient, EngineClient, InstallationClient,
WorkspaceClient, GlobalClient) implement the node APIs by forwarding over
an rpc.Transport; the matching tables (SupervisedTable, EngineTable) and
dispatcher builders (NewInstallationDispatcher, NewWorkspaceDispatcher,
NewGlobalDispatcher) mount the real implementations. A caller holding any
transport to a node gets the identical surface whether the node is in
process, a subprocess behind a socket, or remote over HTTP.

Scope routing composes the hierarchy: WorkspaceClient.Installation and
GlobalClient.Workspace return child proxies over a ScopedTransport, and
the workspace and global dispatchers delegate scope-stamped requests to
the addressed child dispatcher, stripping their own routing field.
*/
package client
