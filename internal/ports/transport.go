// Package ports defines interfaces for external dependencies (Ports and Adapters pattern).
package ports

import "time"

// MessageHandler receives one message delivered on a subscribed topic.
// Handlers run on the transport's delivery goroutine and must hand the
// payload off quickly; the backing array may be reused after return.
type MessageHandler func(topic string, payload []byte)

// Transport abstracts a publish/subscribe connection to the message bus.
type Transport interface {
	// SetWill registers a message the broker publishes on the connection's
	// behalf if it dies without a clean disconnect. Must precede Connect.
	SetWill(topic string, payload []byte, qos byte)

	// SetLostHandler registers a callback fired when an established
	// connection is lost. Must precede Connect.
	SetLostHandler(func(error))

	// Connect establishes the connection, waiting up to timeout for the
	// broker's acknowledgement.
	Connect(timeout time.Duration) error

	// Subscribe registers a handler for one topic at the given QoS.
	Subscribe(topic string, qos byte, handler MessageHandler) error

	// Publish sends a payload to a topic at the given QoS.
	Publish(topic string, qos byte, payload []byte) error

	// Disconnect flushes in-flight messages and closes the connection
	// cleanly. A clean disconnect suppresses the will message.
	Disconnect()
}
