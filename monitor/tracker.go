package monitor

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hollyvale/mqttdash/config"
	"github.com/hollyvale/mqttdash/log"
	"github.com/hollyvale/mqttdash/mqtt"
	"github.com/hollyvale/mqttdash/stats"
)

// trackerFilter captures all topic activity at every level.
const trackerFilter = "#"

// A TopicFunc is notified whenever a tracked topic receives a message.
type TopicFunc func(stats.TopicInfo)

// TopicTracker tracks active MQTT topics by monitoring message traffic on
// a wildcard subscription.
type TopicTracker struct {
	client mqtt.Client

	inactiveTimeout time.Duration
	maxPayloadSize  int
	trackSys        bool

	mu         sync.Mutex
	topics     map[string]*stats.TopicInfo
	subscribed bool
	callbacks  []TopicFunc
}

// NewTopicTracker returns a TopicTracker configured by cfg. The tracker
// does nothing until [TopicTracker.Subscribe] is called.
func NewTopicTracker(client mqtt.Client, cfg config.TrackerConfig) *TopicTracker {
	return &TopicTracker{
		client:          client,
		inactiveTimeout: cfg.InactiveTimeout,
		maxPayloadSize:  cfg.MaxPayloadSize,
		trackSys:        cfg.TrackSysTopics,
		topics:          make(map[string]*stats.TopicInfo),
	}
}

// Subscribe starts tracking topic activity.
func (t *TopicTracker) Subscribe(ctx context.Context) error {
	t.mu.Lock()
	if t.subscribed {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := t.client.Subscribe(ctx, trackerFilter, 0, t.onMessage); err != nil {
		return err
	}

	t.mu.Lock()
	t.subscribed = true
	t.mu.Unlock()

	log.Info("Subscribed to # for topic tracking")

	return nil
}

// Unsubscribe stops tracking topic activity.
func (t *TopicTracker) Unsubscribe(ctx context.Context) error {
	t.mu.Lock()
	if !t.subscribed {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := t.client.Unsubscribe(ctx, trackerFilter); err != nil {
		return err
	}

	t.mu.Lock()
	t.subscribed = false
	t.mu.Unlock()

	return nil
}

// Subscribed reports whether the tracker is active.
func (t *TopicTracker) Subscribed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.subscribed
}

// OnUpdate registers fn to be called after every tracked message.
func (t *TopicTracker) OnUpdate(fn TopicFunc) {
	t.mu.Lock()
	t.callbacks = append(t.callbacks, fn)
	t.mu.Unlock()
}

// Topics returns tracked topics sorted most-recently-seen first. Unless
// includeInactive is set, topics idle beyond the inactive timeout are
// pruned first.
func (t *TopicTracker) Topics(includeInactive bool) []stats.TopicInfo {
	t.mu.Lock()

	if !includeInactive {
		t.prune()
	}

	out := make([]stats.TopicInfo, 0, len(t.topics))
	for _, info := range t.topics {
		out = append(out, *info)
	}

	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})

	return out
}

// Topic returns the info for a single topic name.
func (t *TopicTracker) Topic(name string) (stats.TopicInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.topics[name]
	if !ok {
		return stats.TopicInfo{}, false
	}

	return *info, true
}

// Count returns the number of active tracked topics.
func (t *TopicTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.prune()

	return len(t.topics)
}

// Clear drops all tracked topics.
func (t *TopicTracker) Clear() {
	t.mu.Lock()
	t.topics = make(map[string]*stats.TopicInfo)
	t.mu.Unlock()

	log.Info("Cleared all tracked topics")
}

func (t *TopicTracker) onMessage(msg mqtt.Message) {
	if !t.trackSys && strings.HasPrefix(msg.Topic, "$SYS/") {
		return
	}

	payload := msg.Payload
	if t.maxPayloadSize > 0 && len(payload) > t.maxPayloadSize {
		payload = payload[:t.maxPayloadSize] + "..."
	}

	t.mu.Lock()

	info, ok := t.topics[msg.Topic]
	if !ok {
		info = &stats.TopicInfo{
			Topic:     msg.Topic,
			FirstSeen: time.Now().UTC(),
		}
		t.topics[msg.Topic] = info
	}

	info.Record(payload, msg.QoS, msg.Retained)

	snapshot := *info
	callbacks := make([]TopicFunc, len(t.callbacks))
	copy(callbacks, t.callbacks)

	t.mu.Unlock()

	for _, fn := range callbacks {
		fn(snapshot)
	}
}

// prune removes topics idle beyond the inactive timeout. Callers must
// hold t.mu.
func (t *TopicTracker) prune() {
	if t.inactiveTimeout <= 0 {
		return
	}

	cutoff := time.Now().UTC().Add(-t.inactiveTimeout)
	pruned := 0

	for name, info := range t.topics {
		if info.LastSeen.Before(cutoff) {
			delete(t.topics, name)
			pruned++
		}
	}

	if pruned > 0 {
		log.Debug("Pruned inactive topics", "count", pruned)
	}
}
