package retention

import "errors"

// Domain-specific errors for retention operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrTopicNotFound is returned when a topic is not registered.
	ErrTopicNotFound = errors.New("retention: topic not found")

	// ErrInvalidTopic is returned when an empty topic string is provided.
	ErrInvalidTopic = errors.New("retention: topic cannot be empty")

	// ErrInvalidMaxValues is returned when a retention cap below 1 is provided.
	ErrInvalidMaxValues = errors.New("retention: max_values must be at least 1")
)
