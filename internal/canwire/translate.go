package canwire

import (
	"encoding/binary"
	"fmt"

	"go.lab.dev/cand/internal/canaddr"
	"go.lab.dev/cand/internal/canbus"
)

// idFieldLength is the size, in bytes, of the packed CAN identifier that
// prefixes every CmdPkt payload; the remaining bytes (0..=8) are the frame
// data.
const idFieldLength = 4

// ToMessage translates one legacy gateway Packet into the bus envelope it
// represents. Commands with no bus-level meaning are carried through as
// canbus.Unknown so a future revision can still observe them on the wire.
func ToMessage(p Packet) (canbus.Message, error) {
	switch p.Cmd {
	case CmdPkt:
		if len(p.Data) < idFieldLength {
			return canbus.Message{}, fmt.Errorf("canwire: CmdPkt payload shorter than id field")
		}
		id := binary.BigEndian.Uint32(p.Data[:idFieldLength])
		src, dst := canaddr.UnpackID(id & 0x1fffffff)
		pkt, err := canaddr.NewPacket(src, dst, p.Data[idFieldLength:])
		if err != nil {
			return canbus.Message{}, err
		}
		return canbus.NewFrame(pkt), nil

	case CmdPingGateway:
		return canbus.Ping(), nil

	case CmdResync:
		return canbus.Resync(), nil

	case CmdNotifyReset, CmdGetResetCause:
		var cause byte
		if len(p.Data) > 0 {
			cause = p.Data[0]
		}
		return canbus.Reset(cause), nil

	case CmdVersion:
		if len(p.Data) >= 2 {
			return canbus.VersionReply(p.Data[0], p.Data[1]), nil
		}
		return canbus.VersionRequest(), nil

	case CmdIDString:
		if len(p.Data) > 0 {
			return canbus.FirmwareIDResponse(string(p.Data)), nil
		}
		return canbus.FirmwareIDRequest(), nil

	default:
		return canbus.Unknown(byte(p.Cmd), p.Data), nil
	}
}

// FromMessage is the inverse of ToMessage: it renders a bus envelope as the
// legacy gateway packet that carries it on the wire. Unknown messages are
// re-emitted with their original tag and payload.
func FromMessage(m canbus.Message) (Packet, error) {
	switch m.Kind {
	case canbus.KindFrame:
		id := canaddr.PackID(m.Frame.Src, m.Frame.Dst)
		data := make([]byte, idFieldLength, idFieldLength+len(m.Frame.Payload))
		binary.BigEndian.PutUint32(data, id)
		data = append(data, m.Frame.Payload...)
		return Packet{Cmd: CmdPkt, Data: data}, nil

	case canbus.KindPing:
		return Packet{Cmd: CmdPingGateway}, nil

	case canbus.KindResync:
		return Packet{Cmd: CmdResync}, nil

	case canbus.KindReset:
		return Packet{Cmd: CmdNotifyReset, Data: []byte{m.ResetCause}}, nil

	case canbus.KindVersionRequest:
		return Packet{Cmd: CmdVersion}, nil

	case canbus.KindVersionReply:
		return Packet{Cmd: CmdVersion, Data: []byte{m.VersionMajor, m.VersionMinor}}, nil

	case canbus.KindFirmwareIDRequest:
		return Packet{Cmd: CmdIDString}, nil

	case canbus.KindFirmwareIDResponse:
		return Packet{Cmd: CmdIDString, Data: []byte(m.FirmwareID)}, nil

	case canbus.KindUnknown:
		return Packet{Cmd: Cmd(m.UnknownTag), Data: m.UnknownRaw}, nil

	default:
		return Packet{}, fmt.Errorf("canwire: unhandled message kind %d", m.Kind)
	}
}
