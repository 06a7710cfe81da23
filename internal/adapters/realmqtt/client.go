// Package realmqtt adapts the Eclipse Paho MQTT client to the Transport
// port.
package realmqtt

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/acmattson3/mqtt-shell/internal/ports"
)

// DefaultKeepAlive is the MQTT keepalive interval. The broker declares the
// connection dead (and publishes the Last Will) after 1.5x this without a
// ping.
const DefaultKeepAlive = 60 * time.Second

// publishTimeout bounds the wait for a QoS 1 ack so a dying connection
// cannot wedge the caller.
const publishTimeout = 10 * time.Second

// Options configures the broker connection.
type Options struct {
	BrokerURL string // tcp://host:port
	ClientID  string
	Username  string
	Password  string
	KeepAlive time.Duration // 0 = DefaultKeepAlive
}

// Client implements ports.Transport on a Paho connection. SetWill and
// SetLostHandler configure the pending connection and must be called
// before Connect.
type Client struct {
	opts   *mqtt.ClientOptions
	client mqtt.Client
}

// New creates an unconnected client.
func New(opts Options) *Client {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}

	co := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetKeepAlive(opts.KeepAlive).
		SetCleanSession(true).
		// Reconnecting silently would leave the two sides with different
		// ideas of the session state; connection loss is surfaced through
		// the lost handler instead.
		SetAutoReconnect(false).
		// Callbacks fire in publish order; stdin chunks must not be
		// reordered.
		SetOrderMatters(true)

	return &Client{opts: co}
}

// SetWill arranges for the broker to publish payload on topic if the
// connection dies without a clean Disconnect.
func (c *Client) SetWill(topic string, payload []byte, qos byte) {
	c.opts.SetBinaryWill(topic, payload, qos, false)
}

// SetLostHandler registers a callback for unexpected disconnects.
func (c *Client) SetLostHandler(handler func(error)) {
	c.opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		handler(err)
	})
}

// Connect dials the broker, waiting at most timeout.
func (c *Client) Connect(timeout time.Duration) error {
	c.client = mqtt.NewClient(c.opts)

	token := c.client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("connect to broker: timeout after %s", timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

// Subscribe registers handler for messages on topic.
func (c *Client) Subscribe(topic string, qos byte, handler ports.MessageHandler) error {
	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Publish sends payload to topic. QoS 0 publishes are fire-and-forget;
// QoS 1 publishes wait for the broker's ack.
func (c *Client) Publish(topic string, qos byte, payload []byte) error {
	token := c.client.Publish(topic, qos, false, payload)
	if qos == 0 {
		return nil
	}
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: ack timeout after %s", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Disconnect closes the connection after a short drain of in-flight
// messages. A clean disconnect does not trigger the Last Will.
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

// Ensure Client implements ports.Transport.
var _ ports.Transport = (*Client)(nil)
