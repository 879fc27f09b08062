package stats

import "time"

// TopicInfo describes an MQTT topic observed on the wildcard subscription,
// with metadata about the last message and activity counters.
type TopicInfo struct {
	Topic        string
	MessageCount int64
	LastPayload  string
	LastQoS      byte
	LastRetained bool
	FirstSeen    time.Time
	LastSeen     time.Time
}

// Record updates the topic info with a new message.
func (t *TopicInfo) Record(payload string, qos byte, retained bool) {
	t.MessageCount++
	t.LastPayload = payload
	t.LastQoS = qos
	t.LastRetained = retained
	t.LastSeen = time.Now().UTC()
}

// Document returns the full topic document.
func (t *TopicInfo) Document() map[string]any {
	return map[string]any{
		"topic":         t.Topic,
		"message_count": t.MessageCount,
		"last_payload":  t.LastPayload,
		"last_qos":      t.LastQoS,
		"last_retained": t.LastRetained,
		"first_seen":    rfc3339(t.FirstSeen),
		"last_seen":     rfc3339(t.LastSeen),
	}
}

// Summary returns the lightweight topic document used by list endpoints.
func (t *TopicInfo) Summary() map[string]any {
	return map[string]any{
		"topic":         t.Topic,
		"message_count": t.MessageCount,
		"last_seen":     rfc3339(t.LastSeen),
	}
}
