// Package ws implements the dashboard's WebSocket layer. Connected
// sessions subscribe to named channels and receive periodic
// "<channel>_update" pushes built from the live broker statistics, and
// may additionally follow raw MQTT topics which are forwarded as
// "topic_message" events.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hollyvale/mqttdash/log"
	"github.com/hollyvale/mqttdash/monitor"
	"github.com/hollyvale/mqttdash/mqtt"
)

const defaultPushInterval = 5 * time.Second

// Hub maintains the set of connected sessions, pushes channel updates on
// the push interval, and owns the shared MQTT topic subscriptions its
// sessions follow.
type Hub struct {
	client   mqtt.Client
	sys      *monitor.SysMonitor
	clients  *monitor.ClientMonitor
	subs     *monitor.SubscriptionManager
	upgrader websocket.Upgrader

	pushInterval time.Duration

	register   chan *Session
	unregister chan *Session

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewHub returns a Hub serving statistics from sys and clients, with
// topic subscriptions handled over client. A pushInterval of zero means
// the 5 second default.
func NewHub(client mqtt.Client, sys *monitor.SysMonitor, clients *monitor.ClientMonitor, pushInterval time.Duration) *Hub {
	if pushInterval <= 0 {
		pushInterval = defaultPushInterval
	}

	h := &Hub{
		client:  client,
		sys:     sys,
		clients: clients,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		pushInterval: pushInterval,
		register:     make(chan *Session),
		unregister:   make(chan *Session),
		sessions:     make(map[string]*Session),
	}

	h.subs = monitor.NewSubscriptionManager(client, h.forwardTopic)

	return h
}

// Run owns session registration and the push ticker. It blocks until
// ctx is canceled, at which point every open session is closed.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, s := range h.sessions {
				s.close()
			}

			h.sessions = make(map[string]*Session)
			h.mu.Unlock()

			return ctx.Err()

		case s := <-h.register:
			h.mu.Lock()
			h.sessions[s.id] = s
			total := len(h.sessions)
			h.mu.Unlock()

			log.Info("WebSocket session connected", "session", s.id, "total", total)

		case s := <-h.unregister:
			h.mu.Lock()
			delete(h.sessions, s.id)
			total := len(h.sessions)
			h.mu.Unlock()

			s.close()
			h.subs.Drop(context.Background(), s.id)

			log.Info("WebSocket session disconnected", "session", s.id, "total", total)

		case <-ticker.C:
			h.push()
		}
	}
}

// ServeHTTP upgrades the request and starts the session pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WarnError("WebSocket upgrade failed", err)
		return
	}

	s := newSession(h, conn, uuid.NewString())

	h.register <- s

	go s.writePump()
	go s.readPump()

	s.sendEvent(eventConnected, map[string]any{
		"session_id":    s.id,
		"channels":      Channels(),
		"push_interval": h.pushInterval.Seconds(),
	})
}

// Count returns the number of connected sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.sessions)
}

// Broadcast sends an event to every connected session regardless of
// channel subscriptions.
func (h *Hub) Broadcast(event string, data any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.sessions {
		s.sendEvent(event, data)
	}
}

// push builds each subscribed channel's payload once and fans it out.
func (h *Hub) push() {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))

	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	payloads := make(map[string]any)

	for _, s := range sessions {
		for _, channel := range s.channels() {
			data, ok := payloads[channel]
			if !ok {
				data = h.channelData(channel)
				payloads[channel] = data
			}

			s.sendEvent(channel+"_update", data)
		}
	}
}

// forwardTopic delivers a followed topic's message to its session.
func (h *Hub) forwardTopic(sessionID, topic, payload string) {
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()

	if !ok {
		return
	}

	s.sendEvent(eventTopicMessage, map[string]any{
		"topic":     topic,
		"payload":   payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}
