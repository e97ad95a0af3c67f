// Package canbus defines the envelope carried on the reactor bus: CAN data
// frames plus the small set of control messages a backend answers locally
// (Ping, VersionRequest, FirmwareIdRequest) or passes through (Resync,
// Reset, Unknown).
package canbus

import "go.lab.dev/cand/internal/canaddr"

// Kind tags which variant a Message holds.
type Kind int

const (
	KindFrame Kind = iota
	KindPing
	KindResync
	KindReset
	KindVersionRequest
	KindVersionReply
	KindFirmwareIDRequest
	KindFirmwareIDResponse
	KindUnknown
)

// Message is the tagged union flowing through the reactor. Only the fields
// relevant to Kind are populated.
type Message struct {
	Kind Kind

	Frame canaddr.Packet // KindFrame

	ResetCause byte // KindReset

	VersionMajor uint8 // KindVersionReply
	VersionMinor uint8 // KindVersionReply

	FirmwareID string // KindFirmwareIDResponse

	UnknownTag byte   // KindUnknown
	UnknownRaw []byte // KindUnknown
}

// Clone returns a deep copy safe for independent delivery to multiple
// peers: CAN frames carry a payload slice that must not be aliased across
// fan-out targets.
func (m Message) Clone() Message {
	out := m
	if m.Kind == KindFrame {
		out.Frame = m.Frame.Clone()
	}
	if m.Kind == KindUnknown && m.UnknownRaw != nil {
		out.UnknownRaw = append([]byte(nil), m.UnknownRaw...)
	}
	return out
}

// NewFrame wraps a CAN packet as a bus message.
func NewFrame(p canaddr.Packet) Message { return Message{Kind: KindFrame, Frame: p} }

// Ping returns a Ping control message.
func Ping() Message { return Message{Kind: KindPing} }

// Resync returns a Resync control message.
func Resync() Message { return Message{Kind: KindResync} }

// Reset returns a Reset control message carrying the given cause byte.
func Reset(cause byte) Message { return Message{Kind: KindReset, ResetCause: cause} }

// VersionRequest returns a VersionRequest control message.
func VersionRequest() Message { return Message{Kind: KindVersionRequest} }

// VersionReply returns a VersionReply carrying major/minor version bytes.
func VersionReply(major, minor uint8) Message {
	return Message{Kind: KindVersionReply, VersionMajor: major, VersionMinor: minor}
}

// FirmwareIDRequest returns a FirmwareIdRequest control message.
func FirmwareIDRequest() Message { return Message{Kind: KindFirmwareIDRequest} }

// FirmwareIDResponse returns a FirmwareIdResponse carrying the given text.
func FirmwareIDResponse(text string) Message {
	return Message{Kind: KindFirmwareIDResponse, FirmwareID: text}
}

// Unknown returns an Unknown control message for an unrecognized tag.
func Unknown(tag byte, raw []byte) Message {
	return Message{Kind: KindUnknown, UnknownTag: tag, UnknownRaw: raw}
}
