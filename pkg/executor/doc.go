/*
Package executor drains the persistent task graph that drives syncs.

A sync starts as a plan seeded by the installation's connector. ExpandPlan
turns the plan into a sync-group root plus one sync-step task per step,
chained so steps run strictly in order. Workers claim the oldest runnable
task, run it through the Runner and settle it; sync-step tasks fan out
into load-fields and load-collection tasks, and collection loads chain a
continuation task per further page. Completion and failure cascade through
the graph inside the store: a failing task fails its ancestors and cancels
the sync's queue, while a completing leaf completes any awaiting ancestor
whose children have all finished.

Field loads are the only writes that record sync metadata. Collection
loads store child identities and parent membership but leave freshness
untouched, so staleness queries reflect exactly which fields were fetched.

Handles steer a sync (pause, resume, cancel) and observe it; they derive
everything from the persisted graph, so a handle keeps working across
executor restarts.
*/
package executor
