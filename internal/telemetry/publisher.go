package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mqttvault/core/internal/infrastructure/mqtt"
)

// Gateway is the outbound publish surface the publisher writes through.
// Delivery is best-effort; the gateway never reports failure to callers.
type Gateway interface {
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte)
}

// logPayload is the wire shape of a log telemetry message.
type logPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// statusPayload is the wire shape of a status telemetry message.
type statusPayload struct {
	Status  string `json:"status"`
	Details string `json:"details"`
}

// progressPayload is the wire shape of a progress telemetry message.
type progressPayload struct {
	Progress   int64   `json:"progress"`
	Total      int64   `json:"total"`
	Percentage float64 `json:"percentage"`
}

// analyticsPayload is the wire shape of an analytics telemetry message.
type analyticsPayload struct {
	Event   string `json:"event"`
	Details string `json:"details"`
}

// Publisher emits fixed-shape telemetry messages on the service topics.
//
// All publishes are retained so late subscribers see the latest state
// without waiting for the next emission.
type Publisher struct {
	gateway Gateway
	topics  mqtt.Topics
	qos     byte
	logger  mqtt.Logger
}

// NewPublisher creates a telemetry publisher rooted at the given topic set.
// qos is the delivery quality for every telemetry publish.
func NewPublisher(gateway Gateway, topics mqtt.Topics, qos byte, logger mqtt.Logger) *Publisher {
	return &Publisher{gateway: gateway, topics: topics, qos: qos, logger: logger}
}

// PublishLog emits a log message on the logs topic.
func (p *Publisher) PublishLog(ctx context.Context, level, message string) {
	p.emit(ctx, p.topics.Logs(), logPayload{Level: level, Message: message})
}

// PublishStatus emits a status message on the status topic.
func (p *Publisher) PublishStatus(ctx context.Context, status, details string) {
	p.emit(ctx, p.topics.Status(), statusPayload{Status: status, Details: details})
}

// PublishProgress emits a progress message on the progress topic.
// Percentage is supplied by the caller so it matches the tracker's snapshot.
func (p *Publisher) PublishProgress(ctx context.Context, uploaded, total int64, percentage float64) {
	p.emit(ctx, p.topics.Progress(), progressPayload{
		Progress:   uploaded,
		Total:      total,
		Percentage: percentage,
	})
}

// PublishAnalytics emits an analytics event on the analytics topic.
func (p *Publisher) PublishAnalytics(ctx context.Context, event, details string) {
	p.emit(ctx, p.topics.Analytics(), analyticsPayload{Event: event, Details: details})
}

// RunStatusLoop publishes a periodic running heartbeat until the context is
// cancelled. The final shutdown status is the caller's responsibility.
func (p *Publisher) RunStatusLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PublishStatus(ctx, "running", "service operational")
		}
	}
}

// emit marshals and publishes one telemetry payload.
func (p *Publisher) emit(ctx context.Context, topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("marshaling telemetry payload", "topic", topic, "error", err)
		}
		return
	}
	p.gateway.Publish(ctx, topic, p.qos, true, data)
}
