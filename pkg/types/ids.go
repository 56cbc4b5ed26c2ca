package types

import "time"

// Identifier types. Every identifier in Max is a string with a distinct
// type tag; equality is string equality. IDs cross the wire as plain
// strings and are never constructed from untrusted input without a parse
// step.

// EntityID identifies an entity within its type
type EntityID string

// EntityType names an entity definition within a schema
type EntityType string

// InstallationID identifies an installation within a workspace
type InstallationID string

// WorkspaceID identifies a workspace within the global node
type WorkspaceID string

// LoaderName names a loader exposed by a connector's resolver
type LoaderName string

// TaskID identifies a persistent task within a sync
type TaskID string

// SyncID identifies one execution of a sync plan
type SyncID string

// DurationMS is a duration in whole milliseconds, stable across the wire
type DurationMS int64

// DurationOf converts a time.Duration to DurationMS
func DurationOf(d time.Duration) DurationMS {
	return DurationMS(d.Milliseconds())
}

// Duration converts back to a time.Duration
func (d DurationMS) Duration() time.Duration {
	return time.Duration(d) * time.Millisecond
}
