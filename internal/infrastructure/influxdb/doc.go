// Package influxdb provides the optional time-series mirror for MQTT Vault.
//
// When enabled, every topic value accepted by the retention store is also
// written to InfluxDB as a batched non-blocking point. SQLite remains the
// source of truth; the mirror exists for dashboards and long-range queries
// and its failures never affect ingestion.
package influxdb
