package bridge

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ergotech/suta-bridge/internal/device"
)

func newTestLifecycle(conn *mockConn) (*lifecycle, *Registry, *publisher) {
	reg := NewRegistry()
	pub := newPublisher(conn, noopLogger{})
	rt := newRouter(reg, noopLogger{})
	lc := newLifecycle(reg, conn, "homeassistant", pub, rt.handle, noopLogger{})
	return lc, reg, pub
}

// First sight of a device: pairing offered, no state topic yet.
func TestDrainUnpairedAdd(t *testing.T) {
	conn := newMockConn()
	lc, reg, pub := newTestLifecycle(conn)
	d := newFakeDevice("AA:BB:CC:DD:EE:FF")

	if err := reg.StageUnpairedAdd(context.Background(), d); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := lc.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if !conn.hasSubscription("suta/AA_BB_CC_DD_EE_FF/+/set") {
		t.Error("command topics not subscribed")
	}

	offers := conn.published("homeassistant/button/AA_BB_CC_DD_EE_FF/pairing_button/config")
	if len(offers) != 1 {
		t.Fatalf("pairing offers published = %d, want 1", len(offers))
	}
	if offers[0].retain {
		t.Error("pairing offer retained")
	}

	if got := conn.published(device.StateTopic(d.Address())); len(got) != 0 {
		t.Errorf("state published for unpaired device: %v", got)
	}
	if len(pub.queue) != 0 {
		t.Error("state update queued for unpaired device")
	}

	if len(reg.Unpaired()) != 1 {
		t.Error("device not committed to unpaired set")
	}
}

// Pairing promotion: unpaired offer retracted, ready entities announced
// retained, online state queued, convergence task started.
func TestDrainPromotion(t *testing.T) {
	conn := newMockConn()
	lc, reg, pub := newTestLifecycle(conn)
	d := newFakeDevice("AA:BB:CC:DD:EE:FF")
	reg.commitUnpairedAdd(d)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.StageUnpairedRemove(ctx, d); err != nil {
		t.Fatalf("stage unpaired remove: %v", err)
	}
	if err := reg.StageTrackedAdd(ctx, d); err != nil {
		t.Fatalf("stage tracked add: %v", err)
	}
	if err := lc.drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if len(reg.Unpaired()) != 0 {
		t.Error("device still in unpaired set")
	}
	if len(reg.Tracked()) != 1 {
		t.Error("device not committed to tracked set")
	}

	for _, msg := range d.DiscoveryEntities("homeassistant") {
		configs := conn.published(msg.Topic)
		if len(configs) != 1 {
			t.Fatalf("configs at %s = %d, want 1", msg.Topic, len(configs))
		}
		if !configs[0].retain {
			t.Errorf("ready config %s not retained", msg.Topic)
		}
	}

	// Pairing offer retracted with an empty payload.
	offerTopic := "homeassistant/button/AA_BB_CC_DD_EE_FF/pairing_button/config"
	var retracted bool
	for _, p := range conn.published(offerTopic) {
		if p.payload == "" {
			retracted = true
		}
	}
	if !retracted {
		t.Error("pairing offer not retracted")
	}

	select {
	case msg := <-pub.queue:
		if !strings.Contains(msg.Topic, "/state") || !strings.Contains(string(msg.Payload), "online") {
			t.Errorf("queued update = %s %s", msg.Topic, msg.Payload)
		}
	default:
		t.Fatal("online state update not queued")
	}

	waitFor(t, time.Second, "convergence task start", d.isRunning)
}

func TestDrainTrackedRemove(t *testing.T) {
	conn := newMockConn()
	lc, reg, pub := newTestLifecycle(conn)
	d := newFakeDevice("AA:BB:CC:DD:EE:FF")
	reg.commitTrackedAdd(d)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lc.startTask(ctx, d)
	waitFor(t, time.Second, "task start", d.isRunning)

	if err := reg.StageTrackedRemove(ctx, d); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := lc.drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if len(reg.Tracked()) != 0 {
		t.Error("device still tracked")
	}

	// Offline and retractions are queued; drain them onto the bus.
	go pub.run(ctx)
	waitFor(t, time.Second, "queue drained", func() bool {
		return len(conn.publications()) >= 3
	})

	// Offline must precede the discovery retraction.
	var offlineAt, retractAt = -1, -1
	for i, p := range conn.publications() {
		if p.topic == device.StateTopic(d.Address()) && strings.Contains(p.payload, "offline") {
			offlineAt = i
		}
		if strings.HasSuffix(p.topic, "/config") && p.payload == "" && retractAt == -1 {
			retractAt = i
		}
	}
	if offlineAt == -1 {
		t.Fatal("offline state never published")
	}
	if retractAt == -1 {
		t.Fatal("discovery never retracted")
	}
	if offlineAt > retractAt {
		t.Error("offline published after retraction")
	}

	waitFor(t, time.Second, "task stop", func() bool { return !d.isRunning() })
}

// A removal must not let a still-queued online update win the retained
// state topic. Both updates flow through the same queue, so the offline
// one always lands last.
func TestDrainRemoveOrdersOfflineAfterQueuedOnline(t *testing.T) {
	conn := newMockConn()
	lc, reg, pub := newTestLifecycle(conn)
	d := newFakeDevice("AA:BB:CC:DD:EE:FF")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Promote and remove before the publisher runs, so the online
	// update is still queued when the removal lands.
	if err := reg.StageTrackedAdd(ctx, d); err != nil {
		t.Fatalf("stage add: %v", err)
	}
	if err := lc.drain(ctx); err != nil {
		t.Fatalf("drain add: %v", err)
	}
	if err := reg.StageTrackedRemove(ctx, d); err != nil {
		t.Fatalf("stage remove: %v", err)
	}
	if err := lc.drain(ctx); err != nil {
		t.Fatalf("drain remove: %v", err)
	}

	go pub.run(ctx)

	stateTopic := device.StateTopic(d.Address())
	waitFor(t, time.Second, "state updates published", func() bool {
		return len(conn.published(stateTopic)) == 2
	})

	states := conn.published(stateTopic)
	if !strings.Contains(states[0].payload, "online") {
		t.Errorf("first state = %s, want online", states[0].payload)
	}
	if !strings.Contains(states[1].payload, "offline") {
		t.Errorf("final retained state = %s, want offline", states[1].payload)
	}
}

func TestDrainAppliesFixedOrder(t *testing.T) {
	conn := newMockConn()
	lc, reg, _ := newTestLifecycle(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	joining := newFakeDevice("AA:00")
	leaving := newFakeDevice("BB:00")
	reg.commitTrackedAdd(leaving)

	if err := reg.StageUnpairedAdd(ctx, joining); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := reg.StageTrackedRemove(ctx, leaving); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := lc.drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	pubs := conn.publications()
	if len(pubs) == 0 {
		t.Fatal("nothing published")
	}
	// Unpaired adds run before tracked removes.
	if !strings.Contains(pubs[0].topic, "pairing_button/config") {
		t.Errorf("first publication = %s, want pairing offer", pubs[0].topic)
	}
}

func TestDrainTransportErrorReleasesGate(t *testing.T) {
	conn := newMockConn()
	conn.pubErr = fmt.Errorf("%w: broker gone", ErrTransport)
	lc, reg, _ := newTestLifecycle(conn)

	ctx := context.Background()
	if err := reg.StageUnpairedAdd(ctx, newFakeDevice("AA:00")); err != nil {
		t.Fatalf("stage: %v", err)
	}

	if err := lc.drain(ctx); !IsTransport(err) {
		t.Fatalf("drain error = %v, want transport", err)
	}

	// The gate must reopen even when a pass aborts, or producers would
	// deadlock across the session restart.
	done := make(chan error, 1)
	go func() { done <- reg.StageUnpairedAdd(ctx, newFakeDevice("BB:00")) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("staging after aborted pass: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("staging blocked after aborted pass")
	}
}

func TestDrainRecordsAvailability(t *testing.T) {
	conn := newMockConn()
	lc, reg, _ := newTestLifecycle(conn)

	type record struct {
		address string
		online  bool
	}
	var records []record
	lc.recordAvailability = func(address, _ string, online bool) {
		records = append(records, record{address, online})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := newFakeDevice("AA:00")
	if err := reg.StageTrackedAdd(ctx, d); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := lc.drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if err := reg.StageTrackedRemove(ctx, d); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := lc.drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if len(records) != 2 || !records[0].online || records[1].online {
		t.Errorf("availability records = %v, want online then offline", records)
	}
}
