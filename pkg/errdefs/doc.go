/*
Package errdefs implements the structured error envelope used across every
boundary in Max.

Every failure that crosses a proxy/handler boundary is represented as an
Error with a namespaced code, a human-readable message templated from props,
a typed prop bag, and a set of facets. Facet tests drive recovery decisions
(a NotFound is retryable against alternative routes, an InvariantViolated is
a bug); string codes drive presentation.

# Boundaries

Each boundary owns a code namespace and declares its error shapes as
Definitions in defs.go: core, rpc, platform (transports), execution,
storage, federation, connector, and query.

# Wire behavior

Serialize renders an error as the flat object {code, message, props, facets}
which crosses the wire unchanged; Reconstitute reassembles it on the
receiving side. Intermediate nodes never rewrap errors; they may annotate by
creating a new error carrying the original as a "cause" prop (Annotate).

	err := errdefs.ErrUnknownLoader.New(errdefs.Props{"loader": "users"})
	errdefs.Has(err, errdefs.NotFound)      // true
	errdefs.Has(err, errdefs.HasLoaderName) // true
*/
package errdefs
