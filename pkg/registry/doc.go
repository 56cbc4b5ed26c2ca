/*
Package registry persists the federation's knowledge of its children.

A workspace's installations live in <projectRoot>/.max/max.json; the
global node's workspaces live in ~/.max/workspaces.json. Both files are
plain JSON, written atomically via rename, and hold enough (spec,
deployment, locator) to rebuild live nodes after a restart.
*/
package registry
