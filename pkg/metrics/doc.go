/*
Package metrics exposes Prometheus collectors for Max's RPC plane, sync
executor and engine.

Collectors are registered at init time on the default registry and the
scrape endpoint is served by the HTTP transport at /metrics. The Timer
helper pairs with histogram collectors for measuring dispatch and sync
durations.
*/
package metrics
