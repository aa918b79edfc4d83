package mqtt

import (
	"context"
	"time"
)

const (
	// publishMaxAttempts is the number of delivery attempts per message.
	publishMaxAttempts = 5

	// defaultPublishRetryWait is the pause between attempts.
	defaultPublishRetryWait = time.Second
)

// Publish delivers one message best-effort.
//
// Delivery is attempted up to five times with a one-second pause between
// attempts. An attempt with no live connection counts as a failure. After
// the final failure the message is logged and dropped; Publish never
// returns an error, so telemetry emitters cannot stall the pipeline behind
// a dead broker.
//
// Parameters:
//   - ctx: Cancels the retry loop between attempts
//   - topic: Destination topic
//   - qos: Delivery quality of service (0, 1, or 2)
//   - retained: Broker retains the message for new subscribers
//   - payload: Message body
func (m *Manager) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) {
	var lastErr error

	for attempt := 1; attempt <= publishMaxAttempts; attempt++ {
		client := m.currentClient()
		if client == nil {
			lastErr = ErrNotConnected
		} else {
			lastErr = client.Publish(topic, qos, retained, payload)
			if lastErr == nil {
				return
			}
		}

		m.logger.Debug("publish attempt failed",
			"topic", topic,
			"attempt", attempt,
			"error", lastErr,
		)

		if attempt == publishMaxAttempts {
			break
		}
		if !m.sleep(ctx, m.publishRetryWait) {
			m.logger.Warn("publish abandoned on shutdown", "topic", topic, "attempts", attempt)
			return
		}
	}

	m.logger.Error("message dropped after repeated publish failures",
		"topic", topic,
		"attempts", publishMaxAttempts,
		"error", lastErr,
	)
}
