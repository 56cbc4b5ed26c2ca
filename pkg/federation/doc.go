/*
Package federation implements the three node levels: InstallationMax (a
connector installation with its engine and sync executor), WorkspaceMax
(supervisor of installations plus the persistent installation registry)
and GlobalMax (supervisor of workspaces plus the global manifest).

Each node implements its client API interface directly, so the same
object serves in-process callers and its rpc dispatcher. Parents cache
child dispatchers per id and route scope-stamped requests downward,
forwarding over the child's transport when the child is only a proxy.
*/
package federation
