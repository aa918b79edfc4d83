package mqtt

import "strings"

// TopicWildcardAll matches every topic on the broker. The monitor
// connection subscribes to it at QoS 0 to observe all traffic.
const TopicWildcardAll = "#"

// Topics builds the telemetry and control topic names under a configured
// root topic. Using these helpers ensures consistent topic naming across
// the codebase.
//
//	topics := mqtt.NewTopics("image_uploader")
//	topics.Status() // "image_uploader/status"
type Topics struct {
	root string
}

// NewTopics creates a topic builder for the given root topic.
// Trailing slashes on the root are ignored.
func NewTopics(root string) Topics {
	return Topics{root: strings.TrimRight(root, "/")}
}

// Logs returns the topic for log telemetry.
func (t Topics) Logs() string {
	return t.root + "/logs"
}

// Status returns the topic for status telemetry.
func (t Topics) Status() string {
	return t.root + "/status"
}

// Commands returns the control topic on which external commands arrive.
func (t Topics) Commands() string {
	return t.root + "/commands"
}

// Progress returns the topic for progress telemetry.
func (t Topics) Progress() string {
	return t.root + "/progress"
}

// Analytics returns the topic for analytics events.
func (t Topics) Analytics() string {
	return t.root + "/analytics"
}
