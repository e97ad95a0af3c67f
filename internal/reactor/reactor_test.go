package reactor

import (
	"context"
	"testing"
	"time"

	"go.lab.dev/cand/internal/canaddr"
	"go.lab.dev/cand/internal/canbus"
)

type testPeer struct {
	read chan canbus.Message
	sink chan canbus.Message
	done chan struct{}
}

func newTestPeer() *testPeer {
	return &testPeer{
		read: make(chan canbus.Message, 16),
		sink: make(chan canbus.Message, 16),
		done: make(chan struct{}),
	}
}

func mustRecv(t *testing.T, ch <-chan canbus.Message, timeout time.Duration) canbus.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(timeout):
		t.Fatal("timed out waiting for message")
		return canbus.Message{}
	}
}

func assertNoMessage(t *testing.T, ch <-chan canbus.Message, wait time.Duration) {
	t.Helper()
	select {
	case m := <-ch:
		t.Fatalf("expected no message, got %+v", m)
	case <-time.After(wait):
	}
}

// TestFanOutUplinkToClients is scenario S2: a frame from the uplink
// reaches every client exactly once, and the uplink does not see its own
// emission reflected back.
func TestFanOutUplinkToClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(nil)
	go r.Run(ctx)

	uplink := newTestPeer()
	c1 := newTestPeer()
	c2 := newTestPeer()

	r.RegisterUplink(uplink.read, uplink.sink, uplink.done)
	r.RegisterClient(c1.read, c1.sink, c1.done)
	r.RegisterClient(c2.read, c2.sink, c2.done)

	pkt, err := canaddr.NewPacket(
		canaddr.Endpoint{Addr: 0x01, Port: 0x02},
		canaddr.Endpoint{Addr: 0x03, Port: 0x04},
		[]byte{0xAA},
	)
	if err != nil {
		t.Fatal(err)
	}
	uplink.read <- canbus.NewFrame(pkt)

	got1 := mustRecv(t, c1.sink, time.Second)
	got2 := mustRecv(t, c2.sink, time.Second)

	if got1.Kind != canbus.KindFrame || !got1.Frame.Equal(pkt) {
		t.Fatalf("c1 got %+v", got1)
	}
	if got2.Kind != canbus.KindFrame || !got2.Frame.Equal(pkt) {
		t.Fatalf("c2 got %+v", got2)
	}
	assertNoMessage(t, uplink.sink, 100*time.Millisecond)
}

// TestBackFanClientToUplinkOnly is scenario S3: a frame from a client
// reaches the uplink, but not any other client.
func TestBackFanClientToUplinkOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(nil)
	go r.Run(ctx)

	uplink := newTestPeer()
	c1 := newTestPeer()
	c2 := newTestPeer()

	r.RegisterUplink(uplink.read, uplink.sink, uplink.done)
	r.RegisterClient(c1.read, c1.sink, c1.done)
	r.RegisterClient(c2.read, c2.sink, c2.done)

	pkt, err := canaddr.NewPacket(
		canaddr.Endpoint{Addr: 0x05, Port: 0x06},
		canaddr.Endpoint{Addr: 0x07, Port: 0x08},
		[]byte{0xBB},
	)
	if err != nil {
		t.Fatal(err)
	}
	c1.read <- canbus.NewFrame(pkt)

	got := mustRecv(t, uplink.sink, time.Second)
	if got.Kind != canbus.KindFrame || !got.Frame.Equal(pkt) {
		t.Fatalf("uplink got %+v", got)
	}
	assertNoMessage(t, c2.sink, 100*time.Millisecond)
	assertNoMessage(t, c1.sink, 100*time.Millisecond)
}

// TestPeerRemovedWhenReadCloses checks that closing a peer's read channel
// removes it from the arena: subsequent fan-out no longer reaches it.
func TestPeerRemovedWhenReadCloses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(nil)
	go r.Run(ctx)

	uplink := newTestPeer()
	c1 := newTestPeer()

	r.RegisterUplink(uplink.read, uplink.sink, uplink.done)
	r.RegisterClient(c1.read, c1.sink, c1.done)

	close(c1.read)
	time.Sleep(50 * time.Millisecond) // let the reactor process the removal

	pkt, err := canaddr.NewPacket(canaddr.Endpoint{}, canaddr.Endpoint{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	uplink.read <- canbus.NewFrame(pkt)
	assertNoMessage(t, c1.sink, 200*time.Millisecond)
}
