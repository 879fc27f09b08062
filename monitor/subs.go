package monitor

import (
	"context"
	"sync"

	"github.com/hollyvale/mqttdash/log"
	"github.com/hollyvale/mqttdash/mqtt"
)

// A ForwardFunc delivers an MQTT message to a single WebSocket session.
type ForwardFunc func(sessionID, topic, payload string)

// SubscriptionManager manages per-session MQTT topic subscriptions and
// forwards received messages to WebSocket sessions in real time.
//
// One MQTT subscription is held per topic filter regardless of how many
// sessions follow it: the first session in triggers the broker subscribe,
// the last session out triggers the unsubscribe.
type SubscriptionManager struct {
	client  mqtt.Client
	forward ForwardFunc

	mu sync.Mutex
	// sessions maps a session ID to its subscribed filters.
	sessions map[string]map[string]struct{}
	// followers maps a filter to the sessions subscribed to it.
	followers map[string]map[string]struct{}
}

// NewSubscriptionManager returns a SubscriptionManager forwarding matched
// messages through fn.
func NewSubscriptionManager(client mqtt.Client, fn ForwardFunc) *SubscriptionManager {
	return &SubscriptionManager{
		client:    client,
		forward:   fn,
		sessions:  make(map[string]map[string]struct{}),
		followers: make(map[string]map[string]struct{}),
	}
}

// Subscribe adds a session to a topic filter, establishing the broker
// subscription if this is the filter's first follower. Bookkeeping is
// rolled back if the broker subscribe fails.
func (m *SubscriptionManager) Subscribe(ctx context.Context, sessionID, filter string) error {
	m.mu.Lock()

	first := len(m.followers[filter]) == 0

	if m.followers[filter] == nil {
		m.followers[filter] = make(map[string]struct{})
	}

	m.followers[filter][sessionID] = struct{}{}

	if m.sessions[sessionID] == nil {
		m.sessions[sessionID] = make(map[string]struct{})
	}

	m.sessions[sessionID][filter] = struct{}{}

	m.mu.Unlock()

	if !first {
		return nil
	}

	err := m.client.Subscribe(ctx, filter, 0, m.handler(filter))
	if err != nil {
		m.mu.Lock()

		delete(m.followers[filter], sessionID)
		if len(m.followers[filter]) == 0 {
			delete(m.followers, filter)
		}

		delete(m.sessions[sessionID], filter)
		if len(m.sessions[sessionID]) == 0 {
			delete(m.sessions, sessionID)
		}

		m.mu.Unlock()

		return err
	}

	log.Info("Session subscribed to topic", "session", sessionID, "filter", filter)

	return nil
}

// Unsubscribe removes a session from a topic filter, dropping the broker
// subscription when the last follower leaves.
func (m *SubscriptionManager) Unsubscribe(ctx context.Context, sessionID, filter string) error {
	m.mu.Lock()

	if followers, ok := m.followers[filter]; ok {
		delete(followers, sessionID)
	}

	if subs, ok := m.sessions[sessionID]; ok {
		delete(subs, filter)

		if len(subs) == 0 {
			delete(m.sessions, sessionID)
		}
	}

	last := len(m.followers[filter]) == 0
	if last {
		delete(m.followers, filter)
	}

	m.mu.Unlock()

	if !last {
		return nil
	}

	return m.client.Unsubscribe(ctx, filter)
}

// Drop removes every subscription held by a session, typically on
// WebSocket disconnect.
func (m *SubscriptionManager) Drop(ctx context.Context, sessionID string) {
	m.mu.Lock()
	filters := make([]string, 0, len(m.sessions[sessionID]))

	for filter := range m.sessions[sessionID] {
		filters = append(filters, filter)
	}
	m.mu.Unlock()

	for _, filter := range filters {
		if err := m.Unsubscribe(ctx, sessionID, filter); err != nil {
			log.WarnError("Unable to drop subscription", err, "session", sessionID, "filter", filter)
		}
	}
}

// Filters returns the filters a session is subscribed to.
func (m *SubscriptionManager) Filters(sessionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.sessions[sessionID]))
	for filter := range m.sessions[sessionID] {
		out = append(out, filter)
	}

	return out
}

func (m *SubscriptionManager) handler(filter string) mqtt.Handler {
	return func(msg mqtt.Message) {
		m.mu.Lock()
		sessions := make([]string, 0, len(m.followers[filter]))

		for id := range m.followers[filter] {
			sessions = append(sessions, id)
		}
		m.mu.Unlock()

		for _, id := range sessions {
			m.forward(id, msg.Topic, msg.Payload)
		}
	}
}
