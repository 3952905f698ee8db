// Package mqtt provides the bus client for one SUTA bridge session.
//
// This package manages:
//   - Connection to the broker with Last Will and Testament registration
//   - Message publishing with retain control
//   - Topic subscriptions with wildcard support
//   - Delivery of the transport error that ended the session
//
// # Session model
//
// Unlike a long-lived client with auto-reconnect, a Client here lives
// exactly as long as one broker connection. The bridge's connection
// supervisor must observe every drop so it can publish offline state for
// its devices and restart the session tasks as a unit, so auto-reconnect
// is disabled and the terminal transport error is surfaced on Lost().
//
// # Error taxonomy
//
// All failures wrap sentinel errors (ErrConnectionFailed, ErrPublishFailed,
// ...). IsTransport distinguishes recoverable transport failures from
// caller mistakes like an empty topic.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, &mqtt.Will{
//	    Topic:    "suta/bridge/state",
//	    Payload:  []byte(`{"availability":"offline"}`),
//	    Retained: true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("homeassistant/#", func(msg mqtt.Message) {
//	    inbound <- msg
//	})
package mqtt
