// Package mqtt provides broker connectivity for MQTT Vault.
//
// A Manager owns one broker connection and drives its reconnect state
// machine: exponential backoff between attempts, a fresh client identity
// per attempt, and subscriptions re-established synchronously on every
// reconnect. Inbound traffic flows through a Dispatcher, which fans events
// out to isolated handler goroutines so a slow or failing handler can never
// stall the connection.
//
// Outbound delivery is best-effort: Manager.Publish retries a bounded
// number of times and then drops the message, trading delivery guarantees
// for pipeline liveness.
package mqtt
