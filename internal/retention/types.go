package retention

import "time"

// Broker holds the identity and retry policy of one MQTT broker.
//
// Brokers are created and updated via upsert keyed on Name; they are never
// implicitly deleted.
type Broker struct {
	ID                   int64
	Name                 string
	Host                 string
	Port                 int
	Username             string
	Password             string
	TLSEnabled           bool
	CertFile             string
	MaxReconnectAttempts int
	ReconnectIntervalMS  int
}

// Topic holds retention metadata for one MQTT topic.
//
// ParentTopic is optional; children are removed when the parent is removed.
// MaxValues is the retention cap (at least 1).
type Topic struct {
	ID               int64
	Topic            string
	ParentTopic      string
	MaxValues        int
	QueryFrequencyMS int
}

// Value is one retained payload for a topic.
//
// Timestamp is the ingestion time recorded by this process, independent of
// any broker clock.
type Value struct {
	Payload   string
	Timestamp time.Time
}
