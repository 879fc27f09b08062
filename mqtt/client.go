// Package mqtt wraps the paho client with context-aware operations, a
// subscription registry that survives reconnects, and the narrow Client
// interface the dashboard services consume.
package mqtt

import (
	"context"
	"errors"
	"sync"
	"unicode/utf8"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/hollyvale/mqttdash/config"
	"github.com/hollyvale/mqttdash/log"
)

// ErrNotConnected is returned by operations that require an open broker
// connection.
var ErrNotConnected = errors.New("mqtt: not connected to broker")

// Message is a received MQTT message.
type Message struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

// Handler handles a received message.
type Handler func(msg Message)

// Client is the broker interface consumed by the dashboard services and
// the Redis bridge. *Conn implements it against a live broker; the mock
// package implements it for tests.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	Publish(ctx context.Context, topic, payload string, qos byte, retain bool) error
	Subscribe(ctx context.Context, filter string, qos byte, h Handler) error
	Unsubscribe(ctx context.Context, filter string) error
}

type subscription struct {
	qos     byte
	handler Handler
}

// Conn is an MQTT client connection backed by paho.
type Conn struct {
	client paho.Client

	mu   sync.Mutex
	subs map[string]subscription
}

// New returns a new Conn for the given config. The connection is not
// opened until [Conn.Connect] is called.
func New(cfg *config.MQTTConfig) *Conn {
	if cfg.LogLevel <= log.LevelError {
		paho.ERROR = log.ErrorLogger()
		paho.CRITICAL = log.ErrorLogger()
	}

	if cfg.LogLevel <= log.LevelWarn {
		paho.WARN = log.WarnLogger()
	}

	if cfg.LogLevel <= log.LevelDebug {
		paho.DEBUG = log.DebugLogger()
	}

	c := &Conn{subs: make(map[string]subscription)}

	opts := cfg.ClientOptions()
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.WarnError("Connection to broker lost", err)
	})

	c.client = paho.NewClient(opts)

	return c
}

// NewWithClient returns a Conn backed by the given paho client. It is
// used by tests to substitute a mock client.
func NewWithClient(client paho.Client) *Conn {
	return &Conn{
		client: client,
		subs:   make(map[string]subscription),
	}
}

// waitToken waits for the first of ctx.Done() or t.Done() and returns
// t.Error(), or ctx.Err() if the context finished first.
func waitToken(ctx context.Context, t paho.Token) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Done():
	}

	return t.Error()
}

// Connect opens the connection to the broker.
func (c *Conn) Connect(ctx context.Context) error {
	return waitToken(ctx, c.client.Connect())
}

// Disconnect closes the connection, allowing in-flight work to finish.
func (c *Conn) Disconnect() {
	if c.client.IsConnected() {
		c.client.Disconnect(500)
	}
}

// IsConnected reports whether the client currently has an open connection.
func (c *Conn) IsConnected() bool {
	return c.client.IsConnected()
}

// Publish sends payload to topic with the given QoS and retain flag.
func (c *Conn) Publish(ctx context.Context, topic, payload string, qos byte, retain bool) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	return waitToken(ctx, c.client.Publish(topic, qos, retain, payload))
}

// Subscribe registers h for messages matching filter. The subscription is
// remembered and re-established after a reconnect.
func (c *Conn) Subscribe(ctx context.Context, filter string, qos byte, h Handler) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	cb := callback(h)

	if err := waitToken(ctx, c.client.Subscribe(filter, qos, cb)); err != nil {
		return err
	}

	c.mu.Lock()
	c.subs[filter] = subscription{qos: qos, handler: h}
	c.mu.Unlock()

	return nil
}

// Unsubscribe removes the subscription for filter.
func (c *Conn) Unsubscribe(ctx context.Context, filter string) error {
	c.mu.Lock()
	delete(c.subs, filter)
	c.mu.Unlock()

	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	return waitToken(ctx, c.client.Unsubscribe(filter))
}

// onConnect re-establishes the remembered subscriptions after the paho
// client reconnects.
func (c *Conn) onConnect(client paho.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for filter, sub := range c.subs {
		subs[filter] = sub
	}
	c.mu.Unlock()

	for filter, sub := range subs {
		if t := client.Subscribe(filter, sub.qos, callback(sub.handler)); t.Wait() && t.Error() != nil {
			log.Error("Unable to restore subscription", t.Error(), "filter", filter)
		}
	}
}

// callback adapts a Handler to a paho message callback. Binary payloads
// that are not valid UTF-8 are hex-encoded, matching the dashboard's
// display behavior.
func callback(h Handler) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		h(Message{
			Topic:    msg.Topic(),
			Payload:  decodePayload(msg.Payload()),
			QoS:      msg.Qos(),
			Retained: msg.Retained(),
		})
	}
}

const hexdigits = "0123456789abcdef"

func decodePayload(p []byte) string {
	if utf8.Valid(p) {
		return string(p)
	}

	b := make([]byte, 0, len(p)*2)
	for _, c := range p {
		b = append(b, hexdigits[c>>4], hexdigits[c&0xf])
	}

	return string(b)
}
