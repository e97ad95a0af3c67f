package lcpwire

import (
	"bytes"
	"testing"
)

func TestHandshakeWireBytes(t *testing.T) {
	// S1: {request_id:1, Hello} encodes to the exact bytes spec.md gives.
	got, err := EncodeRequest(1, Hello())
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("Hello encoding = % x, want % x", got, want)
	}

	got, err = EncodeResponse(1, Welcome())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Welcome encoding = % x, want % x", got, want)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	// A request's whole payload sits in one varlen window capped at
	// MaxVarlen bytes, so the long ID leaves room for the other
	// SetChannel fields while still needing a two-byte varlen prefix.
	longID := make(ID, 0x3f00)
	for i := range longID {
		longID[i] = byte(i)
	}

	cases := []ToServerPayload{
		Hello(),
		GetDevicesRequest(),
		SetChannelRequest(ID("dev"), ID("room"), ID("chan"), NewValue(true)),
		SetChannelRequest(longID, ID("room"), ID("chan"), NewValue(uint64(42))),
		GetChannelRequest(ID("dev"), ID("room"), ID("chan")),
		SubscribeChannelRequest(ID("dev"), ID("room"), ID("chan")),
	}

	for i, want := range cases {
		buf, err := EncodeRequest(uint64(i+1), want)
		if err != nil {
			t.Fatalf("case %d: encode: %v", i, err)
		}
		msg, err := ReadRequest(bytes.NewReader(buf))
		if err != nil {
			t.Fatalf("case %d: decode: %v", i, err)
		}
		if msg.RequestID != uint64(i+1) {
			t.Fatalf("case %d: request id = %d", i, msg.RequestID)
		}
		if msg.Payload.kind != want.kind {
			t.Fatalf("case %d: kind = %d, want %d", i, msg.Payload.kind, want.kind)
		}
	}
}

func TestResponseRoundTrip(t *testing.T) {
	devices := []DeviceDescriptor{
		{
			ID:          ID("dev1"),
			DisplayName: "Device One",
			WikiURL:     "https://example.com/dev1",
			Channels: []ChannelDescriptor{
				{
					Flags:       FlagReadable | FlagWritable,
					Room:        ID("living"),
					DisplayName: "Lamp",
					ValueType:   Boolean(),
					Kind:        KindActorLamp,
				},
				{
					Flags:       FlagReadable | FlagSubscribable,
					Room:        ID("living"),
					DisplayName: "Mode",
					ValueType:   Enum(EnumValue{ID: ID("a"), DisplayName: "A"}, EnumValue{ID: ID("b"), DisplayName: "B"}),
					Kind:        KindOther,
				},
			},
		},
	}
	rooms := []RoomDescriptor{{ID: ID("living"), DisplayName: "Living Room"}}

	cases := []ToClientPayload{
		Welcome(),
		DevicesResponse(rooms, devices),
		ChannelValueResponse(FlagReadable, NewValue(uint64(7))),
		OkResponse(),
		ErrResponse(ErrNoSuchChannel, "Could not find Device, Room or Channel"),
	}

	for i, want := range cases {
		buf, err := EncodeResponse(uint64(i+1), want)
		if err != nil {
			t.Fatalf("case %d: encode: %v", i, err)
		}
		msg, err := ReadResponse(bytes.NewReader(buf))
		if err != nil {
			t.Fatalf("case %d: decode: %v", i, err)
		}
		if msg.RequestID != uint64(i+1) {
			t.Fatalf("case %d: request id = %d", i, msg.RequestID)
		}
		if msg.Payload.kind != want.kind {
			t.Fatalf("case %d: kind = %d, want %d", i, msg.Payload.kind, want.kind)
		}
	}

	// Spot-check the Devices payload content survived the round trip.
	buf, err := EncodeResponse(9, DevicesResponse(rooms, devices))
	if err != nil {
		t.Fatal(err)
	}
	msg, err := ReadResponse(bytes.NewReader(buf))
	if err != nil {
		t.Fatal(err)
	}
	if len(msg.Payload.Rooms) != 1 || string(msg.Payload.Rooms[0].ID) != "living" {
		t.Fatalf("rooms did not round-trip: %+v", msg.Payload.Rooms)
	}
	if len(msg.Payload.Devices) != 1 || len(msg.Payload.Devices[0].Channels) != 2 {
		t.Fatalf("devices did not round-trip: %+v", msg.Payload.Devices)
	}
	if msg.Payload.Devices[0].Channels[1].ValueType.Kind != ValueEnum ||
		len(msg.Payload.Devices[0].Channels[1].ValueType.Values) != 2 {
		t.Fatalf("enum value type did not round-trip: %+v", msg.Payload.Devices[0].Channels[1].ValueType)
	}
}

func TestInvalidOpcodeIsDecodeErrorNotPanic(t *testing.T) {
	// opcode 5 is not a valid ToServerPayload opcode (0..4 only).
	buf := []byte{0x05, 0, 0, 0, 0, 0, 0, 0, 1, 0}
	if _, err := ReadRequest(bytes.NewReader(buf)); err == nil {
		t.Fatal("expected decode error for invalid opcode, got nil")
	}

	buf = []byte{0x05, 0, 0, 0, 0, 0, 0, 0, 1, 0}
	if _, err := ReadResponse(bytes.NewReader(buf)); err == nil {
		t.Fatal("expected decode error for invalid opcode, got nil")
	}
}

func TestErrMessageNonUTF8IsDecodeError(t *testing.T) {
	// Hand-build an Err{code, message} response whose message field is
	// invalid UTF-8, inside an otherwise well-formed envelope + window.
	var win WriteWindow
	win.Write([]byte{byte(ErrNoSuchChannel)})
	_ = WriteVarlen(&win, 1)
	win.Write([]byte{0xff}) // invalid UTF-8 byte

	var buf bytes.Buffer
	buf.WriteByte(4) // clientErr opcode
	idBuf := make([]byte, 8)
	idBuf[7] = 1
	buf.Write(idBuf)
	if err := win.Finish(&buf); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadResponse(bytes.NewReader(buf.Bytes())); err == nil {
		t.Fatal("expected decode error for non-UTF-8 string field, got nil")
	}
}
