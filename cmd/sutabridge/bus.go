package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/ergotech/suta-bridge/internal/bridge"
	"github.com/ergotech/suta-bridge/internal/infrastructure/config"
	"github.com/ergotech/suta-bridge/internal/infrastructure/logging"
	"github.com/ergotech/suta-bridge/internal/infrastructure/mqtt"
)

// busDialer adapts the MQTT client to the bridge engine's bus interface.
// Each session gets a fresh client carrying the bridge availability
// topic as its will, so the hub sees the bridge drop if the process
// dies uncleanly.
type busDialer struct {
	cfg    config.MQTTConfig
	logger *logging.Logger
}

var _ bridge.Dialer = (*busDialer)(nil)

func (d *busDialer) Dial(ctx context.Context) (bridge.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := mqtt.Connect(d.cfg, &mqtt.Will{
		Topic:    bridge.AvailabilityTopic,
		Payload:  []byte(bridge.PayloadOffline),
		Retained: true,
	})
	if err != nil {
		return nil, markTransport(err)
	}
	client.SetLogger(d.logger)

	conn := &busConn{
		client: client,
		lost:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go conn.watchLost()
	return conn, nil
}

// busConn translates between the engine's message shape and the MQTT
// client's, marking transport failures so the supervisor restarts the
// session on them.
type busConn struct {
	client    *mqtt.Client
	lost      chan error
	done      chan struct{}
	closeOnce sync.Once
}

var _ bridge.Conn = (*busConn)(nil)

func (c *busConn) Publish(topic string, payload []byte, retain bool) error {
	return markTransport(c.client.Publish(topic, payload, retain))
}

func (c *busConn) Subscribe(topic string, handler func(msg bridge.Message)) error {
	return markTransport(c.client.Subscribe(topic, func(msg mqtt.Message) {
		handler(bridge.Message{
			Topic:    msg.Topic,
			Payload:  msg.Payload,
			Retained: msg.Retained,
		})
	}))
}

func (c *busConn) Unsubscribe(topic string) error {
	return markTransport(c.client.Unsubscribe(topic))
}

func (c *busConn) Lost() <-chan error { return c.lost }

func (c *busConn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
	_ = c.client.Close()
}

func (c *busConn) watchLost() {
	select {
	case err := <-c.client.Lost():
		c.lost <- markTransport(err)
	case <-c.done:
	}
}

// markTransport wraps MQTT transport failures with the engine's
// transport sentinel. Non-transport errors pass through unchanged.
func markTransport(err error) error {
	if err == nil {
		return nil
	}
	if mqtt.IsTransport(err) {
		return fmt.Errorf("%w: %w", bridge.ErrTransport, err)
	}
	return err
}
