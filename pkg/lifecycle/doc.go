/*
Package lifecycle implements ordered start/stop for Max nodes and their
internal dependencies.

A Lifecycle is an ordered list of step pairs. Start walks forward exactly
once (a second call reports already_running); stop walks the started prefix
in reverse and may run repeatedly. A failed start step unwinds the already
started prefix before reporting the failure.

Auto composes a lifecycle from supervised dependencies:

	lc := lifecycle.Auto(
		lifecycle.Dep("installation", inst),
		lifecycle.Concurrent(
			lifecycle.Dep("engine", engine),
			lifecycle.Dep("executor", executor),
		),
	)

Entries run sequentially; nested groups run concurrently. Stop order is the
exact reverse of start order, with groups still parallel.

The package also declares Supervised, the health/start/stop contract every
federation node exposes upward.
*/
package lifecycle
