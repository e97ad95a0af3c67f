package hook

import (
	"context"
	"testing"
	"time"

	"go.lab.dev/cand/internal/canaddr"
	"go.lab.dev/cand/internal/canbus"
)

func u8(v uint8) *uint8 { return &v }

func TestRuleMatchesConjunctivePredicates(t *testing.T) {
	frame, err := canaddr.NewPacket(
		canaddr.Endpoint{Addr: 0x01, Port: 0x02},
		canaddr.Endpoint{Addr: 0x03, Port: 0x04},
		[]byte{0xAA, 0xBB},
	)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		rule Rule
		want bool
	}{
		{"all nil matches anything", Rule{}, true},
		{"matching src addr", Rule{SrcAddr: u8(0x01)}, true},
		{"mismatching src addr", Rule{SrcAddr: u8(0x99)}, false},
		{"matching every field", Rule{SrcAddr: u8(0x01), SrcPort: u8(0x02), DstAddr: u8(0x03), DstPort: u8(0x04), Payload: []byte{0xAA, 0xBB}}, true},
		{"one mismatching field fails the conjunction", Rule{SrcAddr: u8(0x01), DstPort: u8(0x05)}, false},
		{"mismatching payload", Rule{Payload: []byte{0xAA}}, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.rule.matches(frame); got != c.want {
				t.Fatalf("matches() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestParseControlLineSendCommand(t *testing.T) {
	frame, err := parseControlLine("send 01:02 aabb")
	if err != nil {
		t.Fatal(err)
	}
	if frame == nil {
		t.Fatal("expected a frame, got nil")
	}
	if frame.Dst.Addr != 0x01 || frame.Dst.Port != 0x02 {
		t.Fatalf("dst = %+v", frame.Dst)
	}
	if frame.Src != (canaddr.Endpoint{}) {
		t.Fatalf("expected zero source, got %+v", frame.Src)
	}
	if string(frame.Payload) != "\xaa\xbb" {
		t.Fatalf("payload = % x", frame.Payload)
	}
}

func TestParseControlLineWithExplicitSource(t *testing.T) {
	frame, err := parseControlLine("send -s 05:06 01:02 aabb")
	if err != nil {
		t.Fatal(err)
	}
	if frame.Src.Addr != 0x05 || frame.Src.Port != 0x06 {
		t.Fatalf("src = %+v", frame.Src)
	}
}

func TestParseControlLineIgnoresUnrecognizedCommand(t *testing.T) {
	frame, err := parseControlLine("echo not a command")
	if err != nil {
		t.Fatal(err)
	}
	if frame != nil {
		t.Fatalf("expected nil frame for unrecognized line, got %+v", frame)
	}
}

func TestParseControlLineRejectsMalformedArgs(t *testing.T) {
	for _, line := range []string{
		"send",
		"send 01:02",
		"send 01:02 zz",
		"send -s notanendpoint 01:02 aabb",
	} {
		if _, err := parseControlLine(line); err == nil {
			t.Fatalf("parseControlLine(%q): expected error", line)
		}
	}
}

// TestCooldownSuppressesRepeatFiring is scenario S4: a second activation
// within the cooldown window is suppressed, and a later one past the
// window succeeds.
func TestCooldownSuppressesRepeatFiring(t *testing.T) {
	e := New(nil, []Rule{{CooldownMS: 50}})

	if !e.takeCooldown(0, e.rules[0]) {
		t.Fatal("first activation should succeed")
	}
	if e.takeCooldown(0, e.rules[0]) {
		t.Fatal("second activation inside the cooldown window should be suppressed")
	}

	time.Sleep(60 * time.Millisecond)
	if !e.takeCooldown(0, e.rules[0]) {
		t.Fatal("activation after the cooldown window elapsed should succeed")
	}
}

func TestCooldownZeroNeverSuppresses(t *testing.T) {
	e := New(nil, []Rule{{}})
	for i := 0; i < 3; i++ {
		if !e.takeCooldown(0, e.rules[0]) {
			t.Fatalf("activation %d: a zero cooldown should never suppress", i)
		}
	}
}

// TestSpawnInjectsControlLine is scenario S5: a hook child's "send" stdout
// line results in a frame delivered to the engine's sink.
func TestSpawnInjectsControlLine(t *testing.T) {
	rule := Rule{Run: []string{"/bin/sh", "-c", "echo send 01:02 aabb"}}
	out := make(chan canbus.Message, 4)
	e := New(nil, []Rule{rule})
	e.sink = out
	trigger, err := canaddr.NewPacket(canaddr.Endpoint{Addr: 9, Port: 9}, canaddr.Endpoint{Addr: 9, Port: 9}, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.spawn(ctx, rule, trigger)

	select {
	case msg := <-out:
		if msg.Kind != canbus.KindFrame {
			t.Fatalf("expected a frame message, got %+v", msg)
		}
		if msg.Frame.Dst.Addr != 0x01 || msg.Frame.Dst.Port != 0x02 {
			t.Fatalf("dst = %+v", msg.Frame.Dst)
		}
		if string(msg.Frame.Payload) != "\xaa\xbb" {
			t.Fatalf("payload = % x", msg.Frame.Payload)
		}
	default:
		t.Fatal("expected the spawned hook's control line to inject a frame")
	}
}
