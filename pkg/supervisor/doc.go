/*
Package supervisor implements the in-memory registry of live child node
handles used at every level of the Max federation.

A Supervisor owns its children's handles exclusively: the workspace node
supervises installation handles, the global node supervises workspace
handles. Handles pair a child's supervised client with the deployer kind and
locator that materialised it; ids are stamped on registration by an injected
generator when the deployer did not provide one.

Aggregate health follows fixed rules: healthy iff every child is healthy (or
there are none), unhealthy iff every child is unhealthy, degraded otherwise.
A child whose probe panics counts as unhealthy("unreachable") and never
takes the supervisor down with it.

StartAll walks registration order and logs failures without propagating
them; StopAll walks the exact reverse.
*/
package supervisor
