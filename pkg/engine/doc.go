/*
Package engine implements an installation's data plane: the queryable
local store that sync results land in.

The Engine interface exposes entity reads (Load, LoadField,
LoadCollection), idempotent upserts (Store), paged listings (LoadPage) and
filtered queries (Query). BoltEngine is the BoltDB-backed implementation:
entities are JSON field maps keyed <type>/<id> in the entities bucket,
with collection fields holding ordered ref key lists that merge as unions
so paged collection loads accumulate and replays stay idempotent.

Field reads follow the schema: a projected field that no loader ever
stored comes back as the field's zero value, while an explicit LoadField
of a never-stored field fails with core.field_not_loaded.

Sync metadata (when each (ref, field) pair was last synced) lives in a
separate bucket behind the SyncMeta interface, joinable for freshness
queries and driving StaleFields/InvalidateFields.
*/
package engine
