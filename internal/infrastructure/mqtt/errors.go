package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectionFailed is returned when a connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrNotConnected is returned when attempting operations with no live client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrRetriesExhausted is returned by Manager.Run when the configured
	// retry budget is spent. The broker must be treated as permanently
	// unreachable until the process restarts.
	ErrRetriesExhausted = errors.New("mqtt: maximum reconnect attempts reached")

	// ErrTLSConfig is returned for fatal TLS configuration problems,
	// such as an unreadable certificate file. Never retried.
	ErrTLSConfig = errors.New("mqtt: invalid TLS configuration")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
