// Package mock provides an in-memory implementation of [mqtt.Client]
// for tests. Published messages are recorded and can be injected back to
// subscribers with [Client.Deliver].
package mock

import (
	"context"
	"sync"

	"github.com/hollyvale/mqttdash/mqtt"
)

// Publication records a single call to Publish.
type Publication struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

// Client is a mock [mqtt.Client].
type Client struct {
	mu         sync.Mutex
	connected  bool
	subs       map[string]mqtt.Handler
	published  []Publication
	PublishErr error
	SubErr     error
}

// NewClient returns a connected mock client.
func NewClient() *Client {
	return &Client{
		connected: true,
		subs:      make(map[string]mqtt.Handler),
	}
}

func (c *Client) Connect(_ context.Context) error {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	return nil
}

func (c *Client) Disconnect() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

// SetConnected overrides the connection state reported to callers.
func (c *Client) SetConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connected
}

func (c *Client) Publish(_ context.Context, topic, payload string, qos byte, retain bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return mqtt.ErrNotConnected
	}

	if c.PublishErr != nil {
		return c.PublishErr
	}

	c.published = append(c.published, Publication{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retain,
	})

	return nil
}

func (c *Client) Subscribe(_ context.Context, filter string, _ byte, h mqtt.Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return mqtt.ErrNotConnected
	}

	if c.SubErr != nil {
		return c.SubErr
	}

	c.subs[filter] = h

	return nil
}

func (c *Client) Unsubscribe(_ context.Context, filter string) error {
	c.mu.Lock()
	delete(c.subs, filter)
	c.mu.Unlock()

	return nil
}

// Deliver routes a message to every registered handler whose filter
// matches the topic.
func (c *Client) Deliver(topic, payload string, qos byte, retained bool) {
	c.mu.Lock()
	handlers := make([]mqtt.Handler, 0, len(c.subs))

	for filter, h := range c.subs {
		if mqtt.Match(filter, topic) {
			handlers = append(handlers, h)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(mqtt.Message{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	}
}

// Published returns a copy of the recorded publications.
func (c *Client) Published() []Publication {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Publication, len(c.published))
	copy(out, c.published)

	return out
}

// Subscribed reports whether a subscription exists for filter.
func (c *Client) Subscribed(filter string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.subs[filter]

	return ok
}
