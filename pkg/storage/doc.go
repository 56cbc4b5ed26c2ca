/*
Package storage provides the BoltDB-backed task graph behind the sync
executor.

Tasks are stored as JSON under monotonically increasing sequence keys in
a single tasks bucket, with an id index bucket mapping task IDs back to
sequence keys. Sequence order is claim order: Claim scans oldest-first
for a pending task whose notBefore has passed and whose blockers have
all completed, and flips it to running in the same transaction, so
concurrent workers never claim the same task twice.

Settlement cascades inside one transaction as well. Complete walks the
parent chain and completes any awaiting parent whose children have all
completed; Fail settles the ancestor chain as failed and cancels the
sync's remaining queued tasks, leaving already running tasks to finish.
*/
package storage
