/*
Package deploy materialises federation nodes. A Deployer knows one way of
bringing a node to life (inline and in-process for nodes sharing the
parent's process, subprocess for socket-served daemons, remote for HTTP
nodes, docker as a registered placeholder); a Registry routes deployment
configs to deployers by their strategy field.

Deployers return unlabelled supervisor handles. The parent registers the
handle with its supervisor, which stamps the id, and persists the locator
so Connect can reattach after a restart.

The package also owns the yaml installation manifest used by the CLI.
*/
package deploy
