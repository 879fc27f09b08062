package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hollyvale/mqttdash/log"
)

// RedisSubscriber is the dashboard side of the bridge. It consumes the
// stats, status and message channels and hands decoded payloads to
// callbacks, keeping the last stats document cached for late joiners.
type RedisSubscriber struct {
	sub Subscriber

	mu        sync.Mutex
	lastStats map[string]any
	connected bool

	onStats   func(map[string]any)
	onStatus  func(StatusMessage)
	onMessage func(RelayedMessage)
}

// NewRedisSubscriber returns a RedisSubscriber reading from sub.
func NewRedisSubscriber(sub Subscriber) *RedisSubscriber {
	return &RedisSubscriber{sub: sub}
}

// OnStats registers the callback for stats_update documents.
func (s *RedisSubscriber) OnStats(fn func(map[string]any)) { s.onStats = fn }

// OnStatus registers the callback for status_change messages.
func (s *RedisSubscriber) OnStatus(fn func(StatusMessage)) { s.onStatus = fn }

// OnMessage registers the callback for relayed MQTT messages.
func (s *RedisSubscriber) OnMessage(fn func(RelayedMessage)) { s.onMessage = fn }

// Start subscribes to the bridge channels. Callbacks must be registered
// before calling Start.
func (s *RedisSubscriber) Start(ctx context.Context) error {
	err := s.sub.Subscribe(ctx, s.dispatch,
		ChannelBrokerStats, ChannelBrokerStatus, ChannelMessages)
	if err != nil {
		return err
	}

	log.Info("Subscribed to bridge channels")

	return nil
}

// Stats returns the last stats document received, or nil.
func (s *RedisSubscriber) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastStats
}

// Connected reports the last broker status received from the bridge.
func (s *RedisSubscriber) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.connected
}

func (s *RedisSubscriber) dispatch(channel string, payload []byte) {
	switch channel {
	case ChannelBrokerStats:
		s.handleStats(payload)
	case ChannelBrokerStatus:
		s.handleStatus(payload)
	case ChannelMessages:
		s.handleMessage(payload)
	}
}

func (s *RedisSubscriber) handleStats(payload []byte) {
	var env struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}

	if err := json.Unmarshal(payload, &env); err != nil || env.Type != TypeStatsUpdate {
		log.Warn("Discarding malformed stats message")
		return
	}

	s.mu.Lock()
	s.lastStats = env.Data
	s.mu.Unlock()

	if s.onStats != nil {
		s.onStats(env.Data)
	}
}

func (s *RedisSubscriber) handleStatus(payload []byte) {
	var msg StatusMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Type != TypeStatusChange {
		log.Warn("Discarding malformed status message")
		return
	}

	s.mu.Lock()
	s.connected = msg.Connected
	s.mu.Unlock()

	if s.onStatus != nil {
		s.onStatus(msg)
	}
}

func (s *RedisSubscriber) handleMessage(payload []byte) {
	var msg RelayedMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Type != TypeMessageReceived {
		log.Warn("Discarding malformed relayed message")
		return
	}

	if s.onMessage != nil {
		s.onMessage(msg)
	}
}
