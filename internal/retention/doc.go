// Package retention persists topic metadata and bounded per-topic value
// history for MQTT Vault.
//
// Every topic carries a retention cap (max_values): after each insert the
// store trims the topic's history to its cap, oldest first, so the stored
// row count for a topic is always min(cap, inserts made). Values arriving
// for unregistered topics are dropped with a warning rather than stored -
// the wildcard subscription sees all broker traffic and unbounded growth
// from unregistered topics must be impossible.
//
// The store wraps the single long-lived database connection; it is the only
// ingestion path into the topic_values table. Per-event reopening of the
// database file is deliberately unsupported.
package retention
