// Package monitor provides the dashboard services built on top of the
// MQTT client: the $SYS statistics monitor, the topic tracker, the client
// monitor, and the per-WebSocket-client subscription manager.
package monitor

import (
	"context"
	"sync"

	"github.com/hollyvale/mqttdash/log"
	"github.com/hollyvale/mqttdash/mqtt"
	"github.com/hollyvale/mqttdash/stats"
)

// SysFilter is the subscription filter covering the broker's statistics
// namespace.
const SysFilter = "$SYS/#"

// A StatsFunc is notified with a snapshot whenever the statistics change.
type StatsFunc func(stats.Stats)

// SysMonitor subscribes to $SYS/# and maintains an up-to-date cache of
// broker statistics.
type SysMonitor struct {
	client mqtt.Client

	mu         sync.Mutex
	stats      stats.Stats
	subscribed bool
	callbacks  []StatsFunc
}

// NewSysMonitor returns a SysMonitor reading from client. The monitor
// does nothing until [SysMonitor.Subscribe] is called.
func NewSysMonitor(client mqtt.Client) *SysMonitor {
	return &SysMonitor{client: client}
}

// Subscribe starts collecting broker statistics.
func (m *SysMonitor) Subscribe(ctx context.Context) error {
	m.mu.Lock()
	if m.subscribed {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.client.Subscribe(ctx, SysFilter, 0, m.onMessage); err != nil {
		return err
	}

	m.mu.Lock()
	m.subscribed = true
	m.mu.Unlock()

	log.Info("Subscribed to $SYS topics for broker monitoring")

	return nil
}

// Unsubscribe stops collecting broker statistics.
func (m *SysMonitor) Unsubscribe(ctx context.Context) error {
	m.mu.Lock()
	if !m.subscribed {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.client.Unsubscribe(ctx, SysFilter); err != nil {
		return err
	}

	m.mu.Lock()
	m.subscribed = false
	m.mu.Unlock()

	return nil
}

// Subscribed reports whether the monitor is collecting statistics.
func (m *SysMonitor) Subscribed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.subscribed
}

// Snapshot returns a copy of the current statistics.
func (m *SysMonitor) Snapshot() stats.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stats
}

// OnUpdate registers fn to be called with a snapshot after every change.
func (m *SysMonitor) OnUpdate(fn StatsFunc) {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, fn)
	m.mu.Unlock()
}

func (m *SysMonitor) onMessage(msg mqtt.Message) {
	m.mu.Lock()

	if !m.stats.Apply(msg.Topic, msg.Payload) {
		m.mu.Unlock()
		return
	}

	snapshot := m.stats
	callbacks := make([]StatsFunc, len(m.callbacks))
	copy(callbacks, m.callbacks)

	m.mu.Unlock()

	// Callbacks run outside the lock so a slow consumer cannot stall
	// message dispatch.
	for _, fn := range callbacks {
		fn(snapshot)
	}
}
