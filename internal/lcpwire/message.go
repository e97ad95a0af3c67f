package lcpwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Message is the envelope every LCP frame is wrapped in: an opcode (taken
// from the payload), a request ID correlating a response to its request,
// and the payload itself framed in a window so a peer running a newer
// protocol revision can append fields this reader will skip.
type Message[T any] struct {
	RequestID uint64
	Payload   T
}

// payloadCodec is implemented by ToServerPayload and ToClientPayload: the
// opcode-tagged union types carried inside a Message.
type payloadCodec interface {
	opcode() uint8
	serialize(w io.Writer) error
}

func writeMessage(w io.Writer, requestID uint64, p payloadCodec) error {
	if _, err := w.Write([]byte{p.opcode()}); err != nil {
		return err
	}
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], requestID)
	if _, err := w.Write(idBuf[:]); err != nil {
		return err
	}
	var win WriteWindow
	if err := p.serialize(&win); err != nil {
		return err
	}
	return win.Finish(w)
}

func readMessageHeader(r io.Reader) (opcode uint8, requestID uint64, win *ReadWindow, err error) {
	var head [9]byte
	if _, err = io.ReadFull(r, head[:]); err != nil {
		return 0, 0, nil, err
	}
	opcode = head[0]
	requestID = binary.BigEndian.Uint64(head[1:9])
	win, err = NewReadWindow(r)
	return opcode, requestID, win, err
}

// ToServerPayload is the sum type of every request a client can send.
type ToServerPayload struct {
	kind serverKind

	// SetChannel / GetChannel / SubscribeChannel fields.
	Device  ID
	Room    ID
	Channel ID
	Value   Value // SetChannel only
}

type serverKind uint8

const (
	serverHello serverKind = iota
	serverGetDevices
	serverSetChannel
	serverGetChannel
	serverSubscribeChannel
)

// Hello is the first message a client sends on connecting.
func Hello() ToServerPayload { return ToServerPayload{kind: serverHello} }

// GetDevicesRequest asks the server for the full room/device/channel
// topology.
func GetDevicesRequest() ToServerPayload { return ToServerPayload{kind: serverGetDevices} }

// SetChannelRequest asks the server to write value to a channel.
func SetChannelRequest(device, room, channel ID, value Value) ToServerPayload {
	return ToServerPayload{kind: serverSetChannel, Device: device, Room: room, Channel: channel, Value: value}
}

// GetChannelRequest asks the server for a channel's current value.
func GetChannelRequest(device, room, channel ID) ToServerPayload {
	return ToServerPayload{kind: serverGetChannel, Device: device, Room: room, Channel: channel}
}

// SubscribeChannelRequest asks the server to stream every future value of
// a channel back to the client.
func SubscribeChannelRequest(device, room, channel ID) ToServerPayload {
	return ToServerPayload{kind: serverSubscribeChannel, Device: device, Room: room, Channel: channel}
}

// IsHello, IsGetDevices, IsSetChannel, IsGetChannel and IsSubscribeChannel
// report which variant a ToServerPayload holds.
func (p ToServerPayload) IsHello() bool            { return p.kind == serverHello }
func (p ToServerPayload) IsGetDevices() bool       { return p.kind == serverGetDevices }
func (p ToServerPayload) IsSetChannel() bool       { return p.kind == serverSetChannel }
func (p ToServerPayload) IsGetChannel() bool       { return p.kind == serverGetChannel }
func (p ToServerPayload) IsSubscribeChannel() bool { return p.kind == serverSubscribeChannel }

func (p ToServerPayload) opcode() uint8 { return uint8(p.kind) }

func (p ToServerPayload) serialize(w io.Writer) error {
	switch p.kind {
	case serverHello, serverGetDevices:
		return nil
	case serverSetChannel:
		if err := WriteID(w, p.Device); err != nil {
			return err
		}
		if err := WriteID(w, p.Room); err != nil {
			return err
		}
		if err := WriteID(w, p.Channel); err != nil {
			return err
		}
		return WriteValue(w, p.Value)
	case serverGetChannel, serverSubscribeChannel:
		if err := WriteID(w, p.Device); err != nil {
			return err
		}
		if err := WriteID(w, p.Room); err != nil {
			return err
		}
		return WriteID(w, p.Channel)
	default:
		return fmt.Errorf("lcpwire: unknown ToServerPayload kind %d", p.kind)
	}
}

func deserializeToServerPayload(opcode uint8, r io.Reader) (ToServerPayload, error) {
	switch serverKind(opcode) {
	case serverHello:
		return ToServerPayload{kind: serverHello}, nil
	case serverGetDevices:
		return ToServerPayload{kind: serverGetDevices}, nil
	case serverSetChannel:
		device, err := ReadID(r)
		if err != nil {
			return ToServerPayload{}, err
		}
		room, err := ReadID(r)
		if err != nil {
			return ToServerPayload{}, err
		}
		channel, err := ReadID(r)
		if err != nil {
			return ToServerPayload{}, err
		}
		value, err := ReadValue(r)
		if err != nil {
			return ToServerPayload{}, err
		}
		return ToServerPayload{kind: serverSetChannel, Device: device, Room: room, Channel: channel, Value: value}, nil
	case serverGetChannel, serverSubscribeChannel:
		device, err := ReadID(r)
		if err != nil {
			return ToServerPayload{}, err
		}
		room, err := ReadID(r)
		if err != nil {
			return ToServerPayload{}, err
		}
		channel, err := ReadID(r)
		if err != nil {
			return ToServerPayload{}, err
		}
		return ToServerPayload{kind: serverKind(opcode), Device: device, Room: room, Channel: channel}, nil
	default:
		return ToServerPayload{}, fmtInvalidID(opcode)
	}
}

// WriteRequest writes a full Message[ToServerPayload] frame to w.
func WriteRequest(w io.Writer, requestID uint64, p ToServerPayload) error {
	return writeMessage(w, requestID, p)
}

// ReadRequest reads a full Message[ToServerPayload] frame from r.
func ReadRequest(r io.Reader) (Message[ToServerPayload], error) {
	opcode, requestID, win, err := readMessageHeader(r)
	if err != nil {
		return Message[ToServerPayload]{}, err
	}
	payload, err := deserializeToServerPayload(opcode, win)
	if err != nil {
		return Message[ToServerPayload]{}, err
	}
	if err := win.SkipToEnd(); err != nil {
		return Message[ToServerPayload]{}, err
	}
	return Message[ToServerPayload]{RequestID: requestID, Payload: payload}, nil
}

// ToClientPayload is the sum type of every response/push a server can
// send.
type ToClientPayload struct {
	kind clientKind

	Rooms   []RoomDescriptor
	Devices []DeviceDescriptor

	ChannelFlags ChannelFlags
	Value        Value

	ErrCode ErrorCode
	ErrMsg  string
}

type clientKind uint8

const (
	clientWelcome clientKind = iota
	clientDevices
	clientChannelValue
	clientOk
	clientErr
)

// Welcome answers a client's Hello.
func Welcome() ToClientPayload { return ToClientPayload{kind: clientWelcome} }

// DevicesResponse answers GetDevices with the full topology snapshot.
func DevicesResponse(rooms []RoomDescriptor, devices []DeviceDescriptor) ToClientPayload {
	return ToClientPayload{kind: clientDevices, Rooms: rooms, Devices: devices}
}

// ChannelValueResponse answers GetChannel, or is pushed for each update of
// a subscribed channel.
func ChannelValueResponse(flags ChannelFlags, value Value) ToClientPayload {
	return ToClientPayload{kind: clientChannelValue, ChannelFlags: flags, Value: value}
}

// OkResponse answers SetChannel on success.
func OkResponse() ToClientPayload { return ToClientPayload{kind: clientOk} }

// ErrResponse answers any request that could not be fulfilled.
func ErrResponse(code ErrorCode, message string) ToClientPayload {
	return ToClientPayload{kind: clientErr, ErrCode: code, ErrMsg: message}
}

// IsWelcome, IsDevices, IsChannelValue, IsOk and IsErr report which
// variant a ToClientPayload holds.
func (p ToClientPayload) IsWelcome() bool      { return p.kind == clientWelcome }
func (p ToClientPayload) IsDevices() bool      { return p.kind == clientDevices }
func (p ToClientPayload) IsChannelValue() bool { return p.kind == clientChannelValue }
func (p ToClientPayload) IsOk() bool           { return p.kind == clientOk }
func (p ToClientPayload) IsErr() bool          { return p.kind == clientErr }

func (p ToClientPayload) opcode() uint8 { return uint8(p.kind) }

func (p ToClientPayload) serialize(w io.Writer) error {
	switch p.kind {
	case clientWelcome, clientOk:
		return nil
	case clientDevices:
		if err := WriteVarlen(w, len(p.Rooms)); err != nil {
			return err
		}
		for _, room := range p.Rooms {
			if err := room.serialize(w); err != nil {
				return err
			}
		}
		if err := WriteVarlen(w, len(p.Devices)); err != nil {
			return err
		}
		for _, dev := range p.Devices {
			if err := dev.serialize(w); err != nil {
				return err
			}
		}
		return nil
	case clientChannelValue:
		if _, err := w.Write([]byte{byte(p.ChannelFlags)}); err != nil {
			return err
		}
		return WriteValue(w, p.Value)
	case clientErr:
		if err := writeErrorCode(w, p.ErrCode); err != nil {
			return err
		}
		return WriteString(w, p.ErrMsg)
	default:
		return fmt.Errorf("lcpwire: unknown ToClientPayload kind %d", p.kind)
	}
}

func deserializeToClientPayload(opcode uint8, r io.Reader) (ToClientPayload, error) {
	switch clientKind(opcode) {
	case clientWelcome:
		return ToClientPayload{kind: clientWelcome}, nil
	case clientDevices:
		roomCount, err := ReadVarlen(r)
		if err != nil {
			return ToClientPayload{}, err
		}
		rooms := make([]RoomDescriptor, 0, roomCount)
		for i := 0; i < roomCount; i++ {
			room, err := deserializeRoomDescriptor(r)
			if err != nil {
				return ToClientPayload{}, err
			}
			rooms = append(rooms, room)
		}
		deviceCount, err := ReadVarlen(r)
		if err != nil {
			return ToClientPayload{}, err
		}
		devices := make([]DeviceDescriptor, 0, deviceCount)
		for i := 0; i < deviceCount; i++ {
			dev, err := deserializeDeviceDescriptor(r)
			if err != nil {
				return ToClientPayload{}, err
			}
			devices = append(devices, dev)
		}
		return ToClientPayload{kind: clientDevices, Rooms: rooms, Devices: devices}, nil
	case clientChannelValue:
		var flagsByte [1]byte
		if _, err := io.ReadFull(r, flagsByte[:]); err != nil {
			return ToClientPayload{}, err
		}
		value, err := ReadValue(r)
		if err != nil {
			return ToClientPayload{}, err
		}
		return ToClientPayload{kind: clientChannelValue, ChannelFlags: ChannelFlags(flagsByte[0]), Value: value}, nil
	case clientOk:
		return ToClientPayload{kind: clientOk}, nil
	case clientErr:
		code, err := readErrorCode(r)
		if err != nil {
			return ToClientPayload{}, err
		}
		msg, err := ReadString(r)
		if err != nil {
			return ToClientPayload{}, err
		}
		return ToClientPayload{kind: clientErr, ErrCode: code, ErrMsg: msg}, nil
	default:
		return ToClientPayload{}, fmtInvalidID(opcode)
	}
}

// WriteResponse writes a full Message[ToClientPayload] frame to w.
func WriteResponse(w io.Writer, requestID uint64, p ToClientPayload) error {
	return writeMessage(w, requestID, p)
}

// ReadResponse reads a full Message[ToClientPayload] frame from r.
func ReadResponse(r io.Reader) (Message[ToClientPayload], error) {
	opcode, requestID, win, err := readMessageHeader(r)
	if err != nil {
		return Message[ToClientPayload]{}, err
	}
	payload, err := deserializeToClientPayload(opcode, win)
	if err != nil {
		return Message[ToClientPayload]{}, err
	}
	if err := win.SkipToEnd(); err != nil {
		return Message[ToClientPayload]{}, err
	}
	return Message[ToClientPayload]{RequestID: requestID, Payload: payload}, nil
}

// EncodeRequest renders a request Message to its wire bytes, for callers
// that need the buffer rather than a streaming write (e.g. tests).
func EncodeRequest(requestID uint64, p ToServerPayload) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteRequest(&buf, requestID, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeResponse renders a response Message to its wire bytes.
func EncodeResponse(requestID uint64, p ToClientPayload) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteResponse(&buf, requestID, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
