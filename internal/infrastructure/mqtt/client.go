package mqtt

import (
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ergotech/suta-bridge/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for one bridge session.
//
// A Client is connected for its whole lifetime: Connect returns an
// established connection, and once the connection drops the client is
// finished — the drop error is delivered on Lost() and the owner is
// expected to Close() and build a fresh session. This matches the bridge's
// supervisor model, where session tasks never outlive their connection.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	// lost delivers exactly one error when the connection drops.
	lost chan error

	// subscriptions tracks active topics, for introspection in tests and
	// for bulk unsubscribe on Close.
	subscriptions map[string]struct{}
	subMu         sync.Mutex

	// logger for handler error/panic logging (optional).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the minimal logging interface the client needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Message is one inbound bus message as seen by a subscription handler.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked on paho's router goroutine; they should hand work
// off quickly (typically into a channel) rather than block.
type MessageHandler func(msg Message)

// Connect establishes a connection to the MQTT broker.
//
// The optional will is registered before connecting so the broker
// publishes it if the session dies without a clean disconnect.
func Connect(cfg config.MQTTConfig, will *Will) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		lost:          make(chan error, 1),
		subscriptions: make(map[string]struct{}),
	}

	opts := buildClientOptions(cfg, will)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		select {
		case c.lost <- fmt.Errorf("%w: %w", ErrConnectionLost, err):
		default:
		}
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return c, nil
}

// Lost returns a channel that delivers the transport error when the
// connection drops. At most one error is ever delivered.
func (c *Client) Lost() <-chan error {
	return c.lost
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// Close disconnects from the broker, allowing a short quiesce period for
// pending operations. Safe to call on an already-dropped connection.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// SetLogger sets a logger for handler error and panic logging.
// If not set, handler errors are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery.
// A panicking device handler must not take the paho router down with it.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		handler(Message{
			Topic:    msg.Topic(),
			Payload:  msg.Payload(),
			Retained: msg.Retained(),
		})
	}
}
