package lcpserver

import (
	"context"
	"testing"
	"time"

	"go.lab.dev/cand/internal/lcpwire"
)

func mustRecvOut(t *testing.T, ch <-chan outboundMsg, timeout time.Duration) outboundMsg {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(timeout):
		t.Fatal("timed out waiting for dispatch reply")
		return outboundMsg{}
	}
}

// TestDispatchGetDevicesWithRoomButNoDevices is scenario S6: a topology with
// one room and no devices still answers GetDevices, echoing the room back
// with an empty device list rather than erroring.
func TestDispatchGetDevicesWithRoomButNoDevices(t *testing.T) {
	rooms := []lcpwire.RoomDescriptor{{ID: lcpwire.ID("living"), DisplayName: "Living Room"}}
	core := NewCore(nil, rooms, nil, nil)

	out := make(chan outboundMsg, 1)
	req := lcpwire.Message[lcpwire.ToServerPayload]{RequestID: 7, Payload: lcpwire.GetDevicesRequest()}

	core.dispatch(context.Background(), req, out)

	got := mustRecvOut(t, out, time.Second)
	if got.requestID != 7 {
		t.Fatalf("request id = %d, want 7", got.requestID)
	}
	if len(got.payload.Rooms) != 1 || string(got.payload.Rooms[0].ID) != "living" {
		t.Fatalf("rooms = %+v", got.payload.Rooms)
	}
	if len(got.payload.Devices) != 0 {
		t.Fatalf("devices = %+v, want none", got.payload.Devices)
	}
}

// TestDispatchSetChannelNonexistentDevice is scenario S7: SetChannel
// against a device/channel pair with no bound driver returns
// Err{NoSuchChannel} carrying the request's own ID, and dispatch returns
// without blocking the caller (the connection stays usable).
func TestDispatchSetChannelNonexistentDevice(t *testing.T) {
	core := NewCore(nil, nil, nil, nil)

	out := make(chan outboundMsg, 1)
	req := lcpwire.Message[lcpwire.ToServerPayload]{
		RequestID: 42,
		Payload:   lcpwire.SetChannelRequest(lcpwire.ID("ghost"), lcpwire.ID("room"), lcpwire.ID("chan"), lcpwire.NewValue(true)),
	}

	done := make(chan struct{})
	go func() {
		core.dispatch(context.Background(), req, out)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch blocked on an unresolved device/channel")
	}

	got := mustRecvOut(t, out, time.Second)
	if got.requestID != 42 {
		t.Fatalf("request id = %d, want 42", got.requestID)
	}
	if !got.payload.IsErr() {
		t.Fatalf("expected an Err payload, got %+v", got.payload)
	}
	if got.payload.ErrCode != lcpwire.ErrNoSuchChannel {
		t.Fatalf("err code = %v, want ErrNoSuchChannel", got.payload.ErrCode)
	}
}
