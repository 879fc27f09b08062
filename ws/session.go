package ws

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hollyvale/mqttdash/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	sendBuffer = 256

	dispatchTimeout = 10 * time.Second
)

// Events sent to the dashboard.
const (
	eventConnected         = "connected"
	eventSubscribed        = "subscribed"
	eventUnsubscribed      = "unsubscribed"
	eventChannels          = "channels"
	eventBrokerStatus      = "broker_status"
	eventTopicSubscribed   = "topic_subscribed"
	eventTopicUnsubscribed = "topic_unsubscribed"
	eventTopicMessage      = "topic_message"
	eventError             = "error"
)

// Events received from the dashboard.
const (
	eventSubscribe        = "subscribe"
	eventUnsubscribe      = "unsubscribe"
	eventGetChannels      = "get_channels"
	eventPingBroker       = "ping_broker"
	eventSubscribeTopic   = "subscribe_topic"
	eventUnsubscribeTopic = "unsubscribe_topic"
)

// frame is the wire format in both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// event is an outbound message queued for the write pump.
type event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Session is a single WebSocket connection with its channel
// subscriptions. The read pump dispatches inbound events, the write pump
// serializes everything queued on send.
type Session struct {
	id   string
	hub  *Hub
	conn *websocket.Conn

	send chan event
	done chan struct{}
	once sync.Once

	mu   sync.Mutex
	subs map[string]struct{}
}

func newSession(h *Hub, conn *websocket.Conn, id string) *Session {
	return &Session{
		id:   id,
		hub:  h,
		conn: conn,
		send: make(chan event, sendBuffer),
		done: make(chan struct{}),
		subs: make(map[string]struct{}),
	}
}

// close releases the session. Safe to call multiple times.
func (s *Session) close() {
	s.once.Do(func() {
		close(s.done)
	})
}

// sendEvent queues an event for the write pump, dropping it if the
// session is closed or its buffer is full.
func (s *Session) sendEvent(name string, data any) {
	select {
	case <-s.done:
	case s.send <- event{Event: name, Data: data}:
	default:
		log.Debug("Dropping event for slow session", "session", s.id, "event", name)
	}
}

// channels returns the channels the session is subscribed to.
func (s *Session) channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.subs))
	for name := range s.subs {
		out = append(out, name)
	}

	return out
}

func (s *Session) readPump() {
	defer func() {
		s.hub.unregister <- s
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.WarnError("Unable to set read deadline", err, "session", s.id)
		return
	}

	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.WarnError("WebSocket read failed", err, "session", s.id)
			}

			return
		}

		s.dispatch(f)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

			return

		case ev := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}

			if err := s.conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}

			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch handles one inbound event.
func (s *Session) dispatch(f frame) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	switch f.Event {
	case eventSubscribe:
		s.handleSubscribe(f.Data)

	case eventUnsubscribe:
		s.handleUnsubscribe(f.Data)

	case eventGetChannels:
		s.sendEvent(eventChannels, map[string]any{
			"channels":   Channels(),
			"subscribed": s.channels(),
		})

	case eventPingBroker:
		s.sendEvent(eventBrokerStatus, map[string]any{
			"connected": s.hub.client.IsConnected(),
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})

	case eventSubscribeTopic:
		s.handleSubscribeTopic(ctx, f.Data)

	case eventUnsubscribeTopic:
		s.handleUnsubscribeTopic(ctx, f.Data)

	default:
		s.sendError("unknown event: " + f.Event)
	}
}

// channelRequest accepts both a single channel and a list.
type channelRequest struct {
	Channel  string   `json:"channel"`
	Channels []string `json:"channels"`
}

func (r *channelRequest) all() []string {
	if r.Channel != "" {
		return append([]string{r.Channel}, r.Channels...)
	}

	return r.Channels
}

type topicRequest struct {
	Topic string `json:"topic"`
}

func (s *Session) handleSubscribe(data json.RawMessage) {
	var req channelRequest
	if err := json.Unmarshal(data, &req); err != nil || len(req.all()) == 0 {
		s.sendError("subscribe requires at least one channel")
		return
	}

	var valid, invalid []string

	for _, name := range req.all() {
		if validChannel(name) {
			valid = append(valid, name)
		} else {
			invalid = append(invalid, name)
		}
	}

	if len(valid) == 0 {
		s.sendError("unknown channel: " + strings.Join(invalid, ", "))
		return
	}

	s.mu.Lock()
	for _, name := range valid {
		s.subs[name] = struct{}{}
	}
	s.mu.Unlock()

	ack := map[string]any{"channels": valid}
	if len(invalid) > 0 {
		ack["invalid"] = invalid
	}

	s.sendEvent(eventSubscribed, ack)

	// Immediate push so the dashboard renders without waiting a full
	// interval.
	for _, name := range valid {
		s.sendEvent(name+"_update", s.hub.channelData(name))
	}
}

func (s *Session) handleUnsubscribe(data json.RawMessage) {
	var req channelRequest
	if err := json.Unmarshal(data, &req); err != nil || len(req.all()) == 0 {
		s.sendError("unsubscribe requires at least one channel")
		return
	}

	s.mu.Lock()
	for _, name := range req.all() {
		delete(s.subs, name)
	}
	s.mu.Unlock()

	s.sendEvent(eventUnsubscribed, map[string]any{"channels": req.all()})
}

func (s *Session) handleSubscribeTopic(ctx context.Context, data json.RawMessage) {
	var req topicRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Topic == "" {
		s.sendError("subscribe_topic requires a topic")
		return
	}

	if err := s.hub.subs.Subscribe(ctx, s.id, req.Topic); err != nil {
		s.sendError("unable to subscribe to " + req.Topic + ": " + err.Error())
		return
	}

	s.sendEvent(eventTopicSubscribed, map[string]any{"topic": req.Topic})
}

func (s *Session) handleUnsubscribeTopic(ctx context.Context, data json.RawMessage) {
	var req topicRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Topic == "" {
		s.sendError("unsubscribe_topic requires a topic")
		return
	}

	if err := s.hub.subs.Unsubscribe(ctx, s.id, req.Topic); err != nil {
		s.sendError("unable to unsubscribe from " + req.Topic + ": " + err.Error())
		return
	}

	s.sendEvent(eventTopicUnsubscribed, map[string]any{"topic": req.Topic})
}

func (s *Session) sendError(msg string) {
	s.sendEvent(eventError, map[string]any{"message": msg})
}
