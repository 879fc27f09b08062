package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hollyvale/mqttdash/config"
	"github.com/hollyvale/mqttdash/log"
	"github.com/hollyvale/mqttdash/monitor"
	"github.com/hollyvale/mqttdash/mqtt"
)

// PubSub is the Redis access the bridge needs.
type PubSub interface {
	Publisher
	Subscriber
}

const commandTimeout = 10 * time.Second

// Bridge connects an MQTT broker to Redis pub/sub. Broker statistics,
// client counts and tracked topics are published on their channels at a
// fixed cadence, and commands received from Redis are executed against
// the broker.
type Bridge struct {
	client mqtt.Client
	redis  PubSub

	sys     *monitor.SysMonitor
	clients *monitor.ClientMonitor
	tracker *monitor.TopicTracker

	statsInterval time.Duration

	mu      sync.Mutex
	relayed map[string]struct{}
}

// New returns a Bridge between client and redis, configured by cfg.
func New(client mqtt.Client, redis PubSub, cfg *config.Config) *Bridge {
	sys := monitor.NewSysMonitor(client)

	statsInterval := cfg.Bridge.StatsInterval
	if statsInterval <= 0 {
		statsInterval = 5 * time.Second
	}

	return &Bridge{
		client:        client,
		redis:         redis,
		sys:           sys,
		clients:       monitor.NewClientMonitor(sys),
		tracker:       monitor.NewTopicTracker(client, cfg.Tracker),
		statsInterval: statsInterval,
		relayed:       make(map[string]struct{}),
	}
}

// Run starts the bridge and blocks until ctx is canceled. A final
// disconnected status is published on the way out.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.sys.Subscribe(ctx); err != nil {
		return err
	}

	if err := b.tracker.Subscribe(ctx); err != nil {
		return err
	}

	if err := b.redis.Subscribe(ctx, b.onCommand, ChannelCommands); err != nil {
		return err
	}

	b.publishStatus(ctx, true)

	log.Info("Bridge running", "stats_interval", b.statsInterval)

	statsTicker := time.NewTicker(b.statsInterval)
	defer statsTicker.Stop()

	// Client and topic listings change slower than the counters.
	listTicker := time.NewTicker(2 * b.statsInterval)
	defer listTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.shutdown()
			return ctx.Err()

		case <-statsTicker.C:
			b.publishStats(ctx)

		case <-listTicker.C:
			b.publishClients(ctx)
			b.publishTopics(ctx)
		}
	}
}

func (b *Bridge) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	b.publishStatus(ctx, false)

	b.mu.Lock()
	topics := make([]string, 0, len(b.relayed))

	for topic := range b.relayed {
		topics = append(topics, topic)
	}

	b.relayed = make(map[string]struct{})
	b.mu.Unlock()

	for _, topic := range topics {
		if err := b.client.Unsubscribe(ctx, topic); err != nil {
			log.WarnError("Unable to unsubscribe relayed topic", err, "topic", topic)
		}
	}

	log.Info("Bridge stopped")
}

func (b *Bridge) publish(ctx context.Context, channel string, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error("Unable to encode bridge message", err, "channel", channel)
		return
	}

	if err := b.redis.Publish(ctx, channel, payload); err != nil {
		log.WarnError("Unable to publish to Redis", err, "channel", channel)
	}
}

func (b *Bridge) publishStats(ctx context.Context) {
	snapshot := b.sys.Snapshot()

	b.publish(ctx, ChannelBrokerStats, Envelope{
		Type: TypeStatsUpdate,
		Data: snapshot.Document(),
	})
}

func (b *Bridge) publishClients(ctx context.Context) {
	b.publish(ctx, ChannelClients, Envelope{
		Type: TypeClientsUpdate,
		Data: b.clients.List(),
	})
}

func (b *Bridge) publishTopics(ctx context.Context) {
	topics := b.tracker.Topics(false)

	docs := make([]map[string]any, 0, len(topics))
	for _, t := range topics {
		docs = append(docs, t.Summary())
	}

	b.publish(ctx, ChannelTopics, Envelope{
		Type: TypeTopicsUpdate,
		Data: map[string]any{"topics": docs, "total": len(topics)},
	})
}

func (b *Bridge) publishStatus(ctx context.Context, connected bool) {
	b.publish(ctx, ChannelBrokerStatus, StatusMessage{
		Type:      TypeStatusChange,
		Connected: connected,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// onCommand executes one command from the command channel. Invalid
// commands are logged and dropped, the loop never stops.
func (b *Bridge) onCommand(_ string, payload []byte) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		log.WarnError("Discarding malformed command", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch cmd.Type {
	case CommandPublish:
		b.execPublish(ctx, cmd)
	case CommandSubscribe:
		b.execSubscribe(ctx, cmd)
	case CommandUnsubscribe:
		b.execUnsubscribe(ctx, cmd)
	default:
		log.Warn("Discarding unknown command", "type", cmd.Type)
	}
}

func (b *Bridge) execPublish(ctx context.Context, cmd Command) {
	if cmd.Topic == "" {
		log.Warn("Publish command missing topic")
		return
	}

	if cmd.QoS < 0 || cmd.QoS > 2 {
		log.Warn("Publish command has invalid QoS", "qos", cmd.QoS)
		return
	}

	if err := b.client.Publish(ctx, cmd.Topic, cmd.Payload, byte(cmd.QoS), cmd.Retain); err != nil {
		log.Error("Unable to publish command message", err, "topic", cmd.Topic)
		return
	}

	log.Info("Published command message", "topic", cmd.Topic)
}

func (b *Bridge) execSubscribe(ctx context.Context, cmd Command) {
	if cmd.Topic == "" {
		log.Warn("Subscribe command missing topic")
		return
	}

	if cmd.QoS < 0 || cmd.QoS > 2 {
		log.Warn("Subscribe command has invalid QoS", "qos", cmd.QoS)
		return
	}

	b.mu.Lock()
	if _, ok := b.relayed[cmd.Topic]; ok {
		b.mu.Unlock()
		log.Warn("Already relaying topic", "topic", cmd.Topic)

		return
	}

	b.relayed[cmd.Topic] = struct{}{}
	b.mu.Unlock()

	err := b.client.Subscribe(ctx, cmd.Topic, byte(cmd.QoS), b.relay)
	if err != nil {
		b.mu.Lock()
		delete(b.relayed, cmd.Topic)
		b.mu.Unlock()

		log.Error("Unable to subscribe to topic", err, "topic", cmd.Topic)

		return
	}

	log.Info("Relaying topic", "topic", cmd.Topic)
}

func (b *Bridge) execUnsubscribe(ctx context.Context, cmd Command) {
	if cmd.Topic == "" {
		log.Warn("Unsubscribe command missing topic")
		return
	}

	b.mu.Lock()
	delete(b.relayed, cmd.Topic)
	b.mu.Unlock()

	if err := b.client.Unsubscribe(ctx, cmd.Topic); err != nil {
		log.Error("Unable to unsubscribe from topic", err, "topic", cmd.Topic)
		return
	}

	log.Info("Stopped relaying topic", "topic", cmd.Topic)
}

// relay forwards a dynamically subscribed MQTT message to Redis.
func (b *Bridge) relay(msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	b.publish(ctx, ChannelMessages, RelayedMessage{
		Type:      TypeMessageReceived,
		Topic:     msg.Topic,
		Payload:   msg.Payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}
