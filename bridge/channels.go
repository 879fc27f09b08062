// Package bridge relays broker statistics and messages between MQTT and
// Redis pub/sub, so the dashboard can run decoupled from the broker
// connection. One side runs the Bridge as a standalone process, the
// other consumes its channels with a RedisSubscriber.
package bridge

// Redis pub/sub channels shared by the bridge and the dashboard.
const (
	ChannelBrokerStats  = "mqtt:broker:stats"
	ChannelBrokerStatus = "mqtt:broker:status"
	ChannelClients      = "mqtt:clients"
	ChannelTopics       = "mqtt:topics"
	ChannelMessages     = "mqtt:messages"
	ChannelCommands     = "mqtt:commands"
)

// Message types carried in the envelope.
const (
	TypeStatsUpdate     = "stats_update"
	TypeStatusChange    = "status_change"
	TypeClientsUpdate   = "clients_update"
	TypeTopicsUpdate    = "topics_update"
	TypeMessageReceived = "message_received"
)

// Commands accepted on the command channel.
const (
	CommandPublish     = "publish"
	CommandSubscribe   = "subscribe"
	CommandUnsubscribe = "unsubscribe"
)

// Envelope is the wire format on the stats, clients and topics channels.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// StatusMessage is the wire format on the status channel.
type StatusMessage struct {
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
	Timestamp string `json:"timestamp"`
}

// RelayedMessage is the wire format for MQTT messages forwarded on the
// messages channel.
type RelayedMessage struct {
	Type      string `json:"type"`
	Topic     string `json:"topic"`
	Payload   string `json:"payload"`
	Timestamp string `json:"timestamp"`
}

// Command is the wire format on the command channel.
type Command struct {
	Type    string `json:"type"`
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
	QoS     int    `json:"qos"`
	Retain  bool   `json:"retain"`
}
