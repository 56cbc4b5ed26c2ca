/*
Package connector defines the boundary contract between Max and the plugins
that know how to talk to third-party SaaS APIs.

A Connector describes one integration: its entity schema, its onboarding
flow, and how to materialise a live Installation from a persisted spec. An
Installation supplies the seeder that produces the initial sync plan and
the resolver that maps entity fields to the loaders fetching them.

Loaders come in two shapes: FieldLoader fetches a batch of entities'
scalar/ref fields, CollectionLoader fetches one page of a parent's
collection. The sync executor partitions a step's field list by loader
through Resolver.Partition and calls loaders with ref batches.

The Registry is per-workspace; connector construction is lazy with a
write-once cache per name.
*/
package connector
