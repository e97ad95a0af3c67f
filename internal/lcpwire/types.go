package lcpwire

import (
	"fmt"
	"io"
)

// ErrorCode classifies a server-side rejection of a request.
type ErrorCode uint8

const (
	ErrNoSuchDevice             ErrorCode = 0
	ErrNoSuchRoom               ErrorCode = 1
	ErrNoSuchChannel            ErrorCode = 2
	ErrInvalidRequestForChannel ErrorCode = 3
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNoSuchDevice:
		return "no such device"
	case ErrNoSuchRoom:
		return "no such room"
	case ErrNoSuchChannel:
		return "no such channel"
	case ErrInvalidRequestForChannel:
		return "invalid request for channel"
	default:
		return fmt.Sprintf("unknown error %#x", uint8(c))
	}
}

func writeErrorCode(w io.Writer, c ErrorCode) error {
	_, err := w.Write([]byte{byte(c)})
	return err
}

func readErrorCode(r io.Reader) (ErrorCode, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return ErrorCode(b[0]), nil
}

// EnumValue names one member of an Enum-typed channel's value space.
type EnumValue struct {
	ID          ID
	DisplayName string
}

func writeEnumValue(w io.Writer, v EnumValue) error {
	if err := WriteID(w, v.ID); err != nil {
		return err
	}
	return WriteString(w, v.DisplayName)
}

func readEnumValue(r io.Reader) (EnumValue, error) {
	id, err := ReadID(r)
	if err != nil {
		return EnumValue{}, err
	}
	name, err := ReadString(r)
	if err != nil {
		return EnumValue{}, err
	}
	return EnumValue{ID: id, DisplayName: name}, nil
}

// ValueType describes the shape of values a channel carries.
type ValueType struct {
	Kind ValueKind
	// Values holds the member set when Kind == ValueEnum.
	Values []EnumValue
}

// ValueKind is the discriminant of a ValueType.
type ValueKind uint8

const (
	ValueBoolean ValueKind = 0
	ValueU8      ValueKind = 1
	ValueU32     ValueKind = 2
	ValueF32     ValueKind = 3
	ValueRGB     ValueKind = 4
	ValueEvent   ValueKind = 5
	ValueEnum    ValueKind = 6
	ValueString  ValueKind = 7
	ValueBinary  ValueKind = 8
	ValueObject  ValueKind = 9
)

// Boolean, U8, U32, F32, RGB, Event, String, Binary and Object are the
// non-parametric ValueType constructors.
func Boolean() ValueType { return ValueType{Kind: ValueBoolean} }
func U8() ValueType      { return ValueType{Kind: ValueU8} }
func U32() ValueType     { return ValueType{Kind: ValueU32} }
func F32() ValueType     { return ValueType{Kind: ValueF32} }
func RGB() ValueType     { return ValueType{Kind: ValueRGB} }
func Event() ValueType   { return ValueType{Kind: ValueEvent} }
func Str() ValueType     { return ValueType{Kind: ValueString} }
func Binary() ValueType  { return ValueType{Kind: ValueBinary} }
func Object() ValueType  { return ValueType{Kind: ValueObject} }

// Enum constructs an Enum-kind ValueType over the given members.
func Enum(values ...EnumValue) ValueType {
	return ValueType{Kind: ValueEnum, Values: values}
}

func writeValueType(w io.Writer, t ValueType) error {
	if _, err := w.Write([]byte{byte(t.Kind)}); err != nil {
		return err
	}
	if t.Kind != ValueEnum {
		return nil
	}
	if err := WriteVarlen(w, len(t.Values)); err != nil {
		return err
	}
	for _, v := range t.Values {
		if err := WriteID(w, v.ID); err != nil {
			return err
		}
		if err := WriteString(w, v.DisplayName); err != nil {
			return err
		}
	}
	return nil
}

func readValueType(r io.Reader) (ValueType, error) {
	n, err := ReadVarlen(r)
	if err != nil {
		return ValueType{}, err
	}
	kind := ValueKind(n)
	if kind != ValueEnum {
		return ValueType{Kind: kind}, nil
	}
	count, err := ReadVarlen(r)
	if err != nil {
		return ValueType{}, err
	}
	values := make([]EnumValue, 0, count)
	for i := 0; i < count; i++ {
		id, err := ReadID(r)
		if err != nil {
			return ValueType{}, err
		}
		name, err := ReadString(r)
		if err != nil {
			return ValueType{}, err
		}
		values = append(values, EnumValue{ID: id, DisplayName: name})
	}
	return ValueType{Kind: ValueEnum, Values: values}, nil
}

// ChannelKind classifies what real-world role a channel plays, primarily
// for client-side presentation (icon choice, grouping).
type ChannelKind uint8

const (
	KindOther             ChannelKind = 0
	KindActorLamp         ChannelKind = 1
	KindActorWallSocket   ChannelKind = 2
	KindActorRelay        ChannelKind = 3
	KindSensorTemperature ChannelKind = 4
	KindSensorButton      ChannelKind = 5
	KindVolume            ChannelKind = 6
	KindDeviceBorg        ChannelKind = 7
)

func writeChannelKind(w io.Writer, k ChannelKind) error {
	_, err := w.Write([]byte{byte(k)})
	return err
}

func readChannelKind(r io.Reader) (ChannelKind, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return ChannelKind(b[0]), nil
}

// ChannelFlags is a bitset of channel capabilities: readable, writable,
// subscribable, in whatever combination the driver supports.
type ChannelFlags uint8

const (
	FlagReadable     ChannelFlags = 1 << 0
	FlagWritable     ChannelFlags = 1 << 1
	FlagSubscribable ChannelFlags = 1 << 2
)

// RoomDescriptor names one room in the device topology.
type RoomDescriptor struct {
	ID          ID
	DisplayName string
}

func (d RoomDescriptor) serialize(w io.Writer) error {
	var win WriteWindow
	if err := WriteID(&win, d.ID); err != nil {
		return err
	}
	if err := WriteString(&win, d.DisplayName); err != nil {
		return err
	}
	return win.Finish(w)
}

func deserializeRoomDescriptor(r io.Reader) (RoomDescriptor, error) {
	win, err := NewReadWindow(r)
	if err != nil {
		return RoomDescriptor{}, err
	}
	id, err := ReadID(win)
	if err != nil {
		return RoomDescriptor{}, err
	}
	name, err := ReadString(win)
	if err != nil {
		return RoomDescriptor{}, err
	}
	return RoomDescriptor{ID: id, DisplayName: name}, win.SkipToEnd()
}

// ChannelDescriptor describes one controllable/observable value exposed by
// a device.
type ChannelDescriptor struct {
	Flags       ChannelFlags
	Room        ID
	DisplayName string
	ValueType   ValueType
	Kind        ChannelKind
}

func (d ChannelDescriptor) serialize(w io.Writer) error {
	var win WriteWindow
	if _, err := win.Write([]byte{byte(d.Flags)}); err != nil {
		return err
	}
	if err := WriteID(&win, d.Room); err != nil {
		return err
	}
	if err := WriteString(&win, d.DisplayName); err != nil {
		return err
	}
	if err := writeValueType(&win, d.ValueType); err != nil {
		return err
	}
	if err := writeChannelKind(&win, d.Kind); err != nil {
		return err
	}
	return win.Finish(w)
}

func deserializeChannelDescriptor(r io.Reader) (ChannelDescriptor, error) {
	win, err := NewReadWindow(r)
	if err != nil {
		return ChannelDescriptor{}, err
	}
	var flagsByte [1]byte
	if _, err := io.ReadFull(win, flagsByte[:]); err != nil {
		return ChannelDescriptor{}, err
	}
	room, err := ReadID(win)
	if err != nil {
		return ChannelDescriptor{}, err
	}
	name, err := ReadString(win)
	if err != nil {
		return ChannelDescriptor{}, err
	}
	vt, err := readValueType(win)
	if err != nil {
		return ChannelDescriptor{}, err
	}
	kind, err := readChannelKind(win)
	if err != nil {
		return ChannelDescriptor{}, err
	}
	return ChannelDescriptor{
		Flags:       ChannelFlags(flagsByte[0]),
		Room:        room,
		DisplayName: name,
		ValueType:   vt,
		Kind:        kind,
	}, win.SkipToEnd()
}

// DeviceDescriptor describes one addressable device and all of its
// channels.
type DeviceDescriptor struct {
	ID          ID
	DisplayName string
	WikiURL     string
	Channels    []ChannelDescriptor
}

func (d DeviceDescriptor) serialize(w io.Writer) error {
	var win WriteWindow
	if err := WriteID(&win, d.ID); err != nil {
		return err
	}
	if err := WriteString(&win, d.DisplayName); err != nil {
		return err
	}
	if err := WriteString(&win, d.WikiURL); err != nil {
		return err
	}
	if err := WriteVarlen(&win, len(d.Channels)); err != nil {
		return err
	}
	for _, ch := range d.Channels {
		if err := ch.serialize(&win); err != nil {
			return err
		}
	}
	return win.Finish(w)
}

func deserializeDeviceDescriptor(r io.Reader) (DeviceDescriptor, error) {
	win, err := NewReadWindow(r)
	if err != nil {
		return DeviceDescriptor{}, err
	}
	id, err := ReadID(win)
	if err != nil {
		return DeviceDescriptor{}, err
	}
	name, err := ReadString(win)
	if err != nil {
		return DeviceDescriptor{}, err
	}
	wiki, err := ReadString(win)
	if err != nil {
		return DeviceDescriptor{}, err
	}
	count, err := ReadVarlen(win)
	if err != nil {
		return DeviceDescriptor{}, err
	}
	channels := make([]ChannelDescriptor, 0, count)
	for i := 0; i < count; i++ {
		ch, err := deserializeChannelDescriptor(win)
		if err != nil {
			return DeviceDescriptor{}, err
		}
		channels = append(channels, ch)
	}
	return DeviceDescriptor{ID: id, DisplayName: name, WikiURL: wiki, Channels: channels}, win.SkipToEnd()
}
