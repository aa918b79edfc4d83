package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTopicValue mirrors one ingested topic value.
//
// Numeric payloads are written as a float field so they can be graphed;
// everything else is stored as a raw string field. The write is
// non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - topic: Source MQTT topic, used as the series tag
//   - payload: The published value
//   - timestamp: Ingestion time recorded by the retention store
func (c *Client) WriteTopicValue(topic, payload string, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{}
	if v, err := strconv.ParseFloat(payload, 64); err == nil {
		fields["value"] = v
	} else {
		fields["raw"] = payload
	}

	point := write.NewPoint(
		"topic_values",
		map[string]string{"topic": topic},
		fields,
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}
