// Package fakebus provides an in-memory message bus implementing the
// Transport port: a tiny broker with Last Will and connection-loss
// simulation, so agent and client can be tested end to end without a real
// broker.
//
// Topics match exactly; there is no wildcard support. Delivery is
// synchronous: Publish invokes matching handlers before it returns.
package fakebus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/acmattson3/mqtt-shell/internal/ports"
)

// Bus is the in-memory broker shared by its clients.
type Bus struct {
	mu      sync.Mutex
	clients []*Client
	log     map[string][][]byte
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{log: make(map[string][][]byte)}
}

// Client returns a new unconnected client attached to this bus.
func (b *Bus) Client() *Client {
	c := &Client{
		bus:  b,
		subs: make(map[string]subscription),
	}
	b.mu.Lock()
	b.clients = append(b.clients, c)
	b.mu.Unlock()
	return c
}

// Messages returns every payload published to topic, in order.
func (b *Bus) Messages(topic string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	msgs := b.log[topic]
	out := make([][]byte, len(msgs))
	for i, m := range msgs {
		out[i] = append([]byte(nil), m...)
	}
	return out
}

// Drop severs a client's connection the unclean way: its lost handler
// fires and its Last Will is published to the survivors.
func (b *Bus) Drop(c *Client) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	lost := c.lost
	will := c.will
	c.mu.Unlock()

	if will != nil {
		b.dispatch(will.topic, will.payload)
	}
	if lost != nil {
		lost(errors.New("connection lost"))
	}
}

// dispatch records the message and delivers it to every subscribed,
// connected client. No locks are held while handlers run, so handlers may
// publish in turn.
func (b *Bus) dispatch(topic string, payload []byte) {
	b.mu.Lock()
	b.log[topic] = append(b.log[topic], append([]byte(nil), payload...))

	var handlers []ports.MessageHandler
	for _, c := range b.clients {
		c.mu.Lock()
		if c.connected {
			if sub, ok := c.subs[topic]; ok {
				handlers = append(handlers, sub.handler)
			}
		}
		c.mu.Unlock()
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(topic, append([]byte(nil), payload...))
	}
}

type subscription struct {
	qos     byte
	handler ports.MessageHandler
}

type will struct {
	topic   string
	payload []byte
	qos     byte
}

// Client implements ports.Transport against a Bus.
type Client struct {
	bus *Bus

	mu         sync.Mutex
	connected  bool
	subs       map[string]subscription
	will       *will
	lost       func(error)
	connectErr error
}

// FailConnect makes the next Connect return err.
func (c *Client) FailConnect(err error) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectErr = err
	return c
}

// SetWill stores the Last Will published if the connection drops.
func (c *Client) SetWill(topic string, payload []byte, qos byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.will = &will{topic: topic, payload: append([]byte(nil), payload...), qos: qos}
}

// SetLostHandler registers the unexpected-disconnect callback.
func (c *Client) SetLostHandler(handler func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lost = handler
}

// Connect marks the client connected.
func (c *Client) Connect(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connectErr != nil {
		return c.connectErr
	}
	c.connected = true
	return nil
}

// Subscribe registers handler for exact-match topic.
func (c *Client) Subscribe(topic string, qos byte, handler ports.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return fmt.Errorf("subscribe %s: not connected", topic)
	}
	c.subs[topic] = subscription{qos: qos, handler: handler}
	return nil
}

// Publish delivers payload to every subscriber of topic before returning.
func (c *Client) Publish(topic string, qos byte, payload []byte) error {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return fmt.Errorf("publish %s: not connected", topic)
	}
	c.bus.dispatch(topic, payload)
	return nil
}

// Disconnect marks the client disconnected. A clean disconnect does not
// publish the Last Will.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

// --- Test inspection methods ---

// IsConnected reports the connection state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Subscriptions returns the topics this client is subscribed to.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	topics := make([]string, 0, len(c.subs))
	for t := range c.subs {
		topics = append(topics, t)
	}
	return topics
}

// Will returns the registered Last Will topic and payload, or "", nil.
func (c *Client) Will() (string, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.will == nil {
		return "", nil
	}
	return c.will.topic, append([]byte(nil), c.will.payload...)
}

// Ensure Client implements ports.Transport.
var _ ports.Transport = (*Client)(nil)
