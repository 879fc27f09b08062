package ws

import (
	"time"

	"github.com/hollyvale/mqttdash/stats"
)

// Channels the dashboard can subscribe to. Each channel pushes an
// "<channel>_update" event on the push interval and immediately after
// subscribing.
const (
	ChannelBrokerStats   = "broker_stats"
	ChannelBrokerSummary = "broker_summary"
	ChannelClients       = "clients"
	ChannelMessages      = "messages"
	ChannelBytes         = "bytes"
	ChannelLoad          = "load"
)

// Channels lists every channel available for subscription.
func Channels() []string {
	return []string{
		ChannelBrokerStats,
		ChannelBrokerSummary,
		ChannelClients,
		ChannelMessages,
		ChannelBytes,
		ChannelLoad,
	}
}

func validChannel(name string) bool {
	switch name {
	case ChannelBrokerStats, ChannelBrokerSummary, ChannelClients,
		ChannelMessages, ChannelBytes, ChannelLoad:
		return true
	}

	return false
}

// channelData builds the payload pushed on a channel from the current
// broker statistics.
func (h *Hub) channelData(channel string) any {
	switch channel {
	case ChannelClients:
		return h.clients.List()
	}

	s := h.sys.Snapshot()

	switch channel {
	case ChannelBrokerStats:
		return s.Document()
	case ChannelBrokerSummary:
		return s.Summary()
	case ChannelMessages:
		return messagesData(&s)
	case ChannelBytes:
		return bytesData(&s)
	case ChannelLoad:
		return s.Document()["load"]
	}

	return nil
}

func messagesData(s *stats.Stats) map[string]any {
	doc := s.Document()

	return map[string]any{
		"messages":     doc["messages"],
		"publish":      doc["publish"],
		"last_updated": timestamp(s.LastUpdated),
	}
}

func bytesData(s *stats.Stats) map[string]any {
	doc := s.Document()

	return map[string]any{
		"bytes":        doc["bytes"],
		"last_updated": timestamp(s.LastUpdated),
	}
}

func timestamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t.Format(time.RFC3339Nano)
}
