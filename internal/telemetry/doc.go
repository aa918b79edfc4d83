// Package telemetry publishes operational telemetry to the service topics.
//
// Payloads have fixed JSON shapes (log, status, progress, analytics) so
// external dashboards can consume them without schema negotiation. Delivery
// is best-effort through the publish gateway.
package telemetry
