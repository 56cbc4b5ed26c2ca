/*
Package types defines the core data structures used throughout Max.

This package contains all fundamental types that represent Max's domain
model: typed identifiers, scopes and entity refs, connector schemas, sync
plans, persistent tasks, engine read/write shapes, supervised lifecycle
results, and persisted registry records. These types are used by all other
packages for state management, RPC communication, and sync orchestration.

# Identifier space

Every identifier is a string with a distinct type tag (EntityID, EntityType,
InstallationID, WorkspaceID, LoaderName, TaskID, SyncID). Equality is string
equality; the tags exist so the compiler rejects an installation id where a
sync id is expected.

# Refs and scope

A Ref is a value (type, id, scope) with no owner. Its canonical string form
is the RefKey; ParseRefKey and Ref.Key are exact inverses. A ref's scope may
only widen (installation -> workspace -> global) as data crosses a boundary
upward; Ref.Upgrade rejects narrowing.

# Tasks

Task is the persistent unit of work inside a sync. States form a DAG

	new -> pending -> running -> {completed | failed | awaiting_children}

with awaiting_children settling once every child is terminal, an explicit
paused -> pending resume edge, and cancellation from any non-terminal state.
*/
package types
