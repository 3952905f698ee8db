package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ergotech/suta-bridge/internal/device"
)

// publication records one Publish call.
type publication struct {
	topic   string
	payload string
	retain  bool
}

// mockConn is an in-memory Conn recording every bus interaction.
type mockConn struct {
	mu     sync.Mutex
	pubs   []publication
	subs   map[string]func(Message)
	unsubs []string

	pubErr error
	subErr error

	lost chan error
}

var _ Conn = (*mockConn)(nil)

func newMockConn() *mockConn {
	return &mockConn{
		subs: make(map[string]func(Message)),
		lost: make(chan error, 1),
	}
}

func (c *mockConn) Publish(topic string, payload []byte, retain bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pubErr != nil {
		return c.pubErr
	}
	c.pubs = append(c.pubs, publication{topic: topic, payload: string(payload), retain: retain})
	return nil
}

func (c *mockConn) Subscribe(topic string, handler func(Message)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subErr != nil {
		return c.subErr
	}
	c.subs[topic] = handler
	return nil
}

func (c *mockConn) Unsubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, topic)
	c.unsubs = append(c.unsubs, topic)
	return nil
}

func (c *mockConn) Lost() <-chan error { return c.lost }
func (c *mockConn) Close()             {}

// deliver routes a message to every matching subscription, the way a
// broker would.
func (c *mockConn) deliver(topic string, payload []byte, retained bool) {
	c.mu.Lock()
	var handlers []func(Message)
	for filter, handler := range c.subs {
		if topicMatches(filter, topic) {
			handlers = append(handlers, handler)
		}
	}
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(Message{Topic: topic, Payload: payload, Retained: retained})
	}
}

func (c *mockConn) publications() []publication {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]publication(nil), c.pubs...)
}

func (c *mockConn) published(topic string) []publication {
	var matches []publication
	for _, p := range c.publications() {
		if p.topic == topic {
			matches = append(matches, p)
		}
	}
	return matches
}

func (c *mockConn) hasSubscription(filter string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[filter]
	return ok
}

// topicMatches implements broker-side filter matching with + and #.
func topicMatches(filter, topic string) bool {
	ff := strings.Split(filter, "/")
	tt := strings.Split(topic, "/")
	for i, f := range ff {
		if f == "#" {
			return true
		}
		if i >= len(tt) {
			return false
		}
		if f != "+" && f != tt[i] {
			return false
		}
	}
	return len(ff) == len(tt)
}

// mockDialer hands out a fixed sequence of connections.
type mockDialer struct {
	mu    sync.Mutex
	conns []*mockConn
	err   error
	dials int
}

func (d *mockDialer) Dial(context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	if d.dials >= len(d.conns) {
		return nil, fmt.Errorf("%w: no more test connections", ErrTransport)
	}
	conn := d.conns[d.dials]
	d.dials++
	return conn, nil
}

func (d *mockDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// fakeDevice is a scriptable device.Device.
type fakeDevice struct {
	address string
	name    string
	root    string // overrides the derived topic root when set

	mu        sync.Mutex
	handled   []string
	handleErr error
	running   bool
	pairOnCmd bool // pairing command stages unpaired-remove + tracked-add
}

var _ device.Device = (*fakeDevice)(nil)

func newFakeDevice(address string) *fakeDevice {
	return &fakeDevice{address: address, name: "Test Bed"}
}

func (f *fakeDevice) Address() string { return f.address }
func (f *fakeDevice) Name() string    { return f.name }

func (f *fakeDevice) TopicRoot() string {
	if f.root != "" {
		return f.root
	}
	return device.TopicRoot(f.address)
}

func (f *fakeDevice) UnpairedEntities(prefix string) []device.Message {
	return []device.Message{{
		Topic:   prefix + "/button/" + device.SanitizeID(f.address) + "/pairing_button/config",
		Payload: []byte(`{"name":"Pair With Device"}`),
		Retain:  false,
	}}
}

func (f *fakeDevice) DiscoveryEntities(prefix string) []device.Message {
	id := device.SanitizeID(f.address)
	return []device.Message{
		{
			Topic:   prefix + "/button/" + id + "/raise_head_button/config",
			Payload: []byte(`{"name":"Raise head"}`),
			Retain:  true,
		},
		{
			Topic:   prefix + "/number/" + id + "/head_position/config",
			Payload: []byte(`{"name":"Head position"}`),
			Retain:  true,
		},
	}
}

func (f *fakeDevice) HandleCommand(ctx context.Context, reg device.Registrar, topic, payload string) error {
	f.mu.Lock()
	f.handled = append(f.handled, topic+"="+payload)
	err := f.handleErr
	pair := f.pairOnCmd && strings.HasSuffix(topic, "/pairing_button/set")
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if pair {
		if err := reg.StageUnpairedRemove(ctx, f); err != nil {
			return err
		}
		return reg.StageTrackedAdd(ctx, f)
	}
	return nil
}

func (f *fakeDevice) StateUpdate(online bool) (device.Message, error) {
	availability := "offline"
	if online {
		availability = "online"
	}
	return device.Message{
		Topic:   device.StateTopic(f.address),
		Payload: []byte(`{"availability":"` + availability + `"}`),
		Retain:  true,
	}, nil
}

func (f *fakeDevice) Run(ctx context.Context) error {
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()

	<-ctx.Done()

	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	return ctx.Err()
}

func (f *fakeDevice) isRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeDevice) handledCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.handled...)
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
