/*
Package events provides the in-memory event broker for federation
lifecycle notifications.

Nodes publish events when installations are created, connected or
removed and when syncs start, settle or are cancelled. Delivery is
best-effort fan-out over buffered channels: publishing never blocks,
and a subscriber that falls behind misses events rather than stalling
the publisher. Subscribers that need durability should persist events
themselves.
*/
package events
