// Package canwire implements the legacy RS232-over-TCP gateway codec: a
// byte-oriented framing of `u8 len | u8 cmd | len bytes payload`, with
// len capped at 18 and cmd restricted to a fixed set of named commands.
//
// The codec is stream-oriented: Decode reports ErrShortBuffer when the
// supplied buffer does not yet hold a complete frame, so callers typically
// drive it from a bufio.Reader loop (see Conn).
package canwire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Cmd identifies the kind of a legacy frame.
type Cmd uint8

const (
	CmdReset          Cmd = 0x00
	CmdSetFilter      Cmd = 0x10
	CmdPkt            Cmd = 0x11
	CmdSetMode        Cmd = 0x12
	CmdError          Cmd = 0x13
	CmdNotifyReset    Cmd = 0x14
	CmdPingGateway    Cmd = 0x15
	CmdResync         Cmd = 0x16
	CmdVersion        Cmd = 0x17
	CmdIDString       Cmd = 0x18
	CmdPacketCounters Cmd = 0x19
	CmdErrorCounters  Cmd = 0x1A
	CmdPowerDraw      Cmd = 0x1B
	CmdReadCtrlReg    Cmd = 0x1C
	CmdWriteCtrlReg   Cmd = 0x1D
	CmdGetResetCause  Cmd = 0x1E
	CmdNotifyTXOvf    Cmd = 0x1F
)

func (c Cmd) valid() bool {
	switch c {
	case CmdReset, CmdSetFilter, CmdPkt, CmdSetMode, CmdError, CmdNotifyReset,
		CmdPingGateway, CmdResync, CmdVersion, CmdIDString, CmdPacketCounters,
		CmdErrorCounters, CmdPowerDraw, CmdReadCtrlReg, CmdWriteCtrlReg,
		CmdGetResetCause, CmdNotifyTXOvf:
		return true
	default:
		return false
	}
}

const (
	headerLength     = 2
	maxPayloadLength = 18
)

// ErrShortBuffer is returned by Decode when buf does not yet contain a
// complete frame; the caller should read more bytes and retry.
var ErrShortBuffer = errors.New("canwire: need more bytes")

// Packet is one legacy gateway frame.
type Packet struct {
	Cmd  Cmd
	Data []byte
}

// Encode appends the wire encoding of p to dst and returns the result.
func Encode(dst []byte, p Packet) ([]byte, error) {
	if len(p.Data) > maxPayloadLength {
		return nil, fmt.Errorf("canwire: payload length %d exceeds %d", len(p.Data), maxPayloadLength)
	}
	dst = append(dst, byte(len(p.Data)), byte(p.Cmd))
	dst = append(dst, p.Data...)
	return dst, nil
}

// Decode attempts to parse one Packet from the front of buf. It returns the
// packet, the number of bytes consumed, and an error. ErrShortBuffer means
// "call again once more bytes are available"; any other error is a
// protocol-decode error and the connection should be torn down.
func Decode(buf []byte) (Packet, int, error) {
	if len(buf) == 0 {
		return Packet{}, 0, ErrShortBuffer
	}
	payloadLen := int(buf[0])
	if len(buf) < headerLength+payloadLen {
		return Packet{}, 0, ErrShortBuffer
	}
	if payloadLen > maxPayloadLength {
		return Packet{}, 0, fmt.Errorf("canwire: invalid length field %d", payloadLen)
	}
	if len(buf) < headerLength {
		return Packet{}, 0, ErrShortBuffer
	}
	cmd := Cmd(buf[1])
	if !cmd.valid() {
		return Packet{}, 0, fmt.Errorf("canwire: invalid command %#x", buf[1])
	}
	data := make([]byte, payloadLen)
	copy(data, buf[headerLength:headerLength+payloadLen])
	return Packet{Cmd: cmd, Data: data}, headerLength + payloadLen, nil
}

// Conn wraps an io.Reader/io.Writer pair with buffered frame-at-a-time
// reads and writes, mirroring the lcpwire Conn's shape for a second,
// simpler wire format.
type Conn struct {
	w  io.Writer
	br *bufio.Reader
}

// New wraps rw for framed legacy packet I/O.
func New(r io.Reader, w io.Writer) *Conn {
	return &Conn{w: w, br: bufio.NewReaderSize(r, 4096)}
}

// WritePacket writes one frame.
func (c *Conn) WritePacket(p Packet) error {
	buf, err := Encode(nil, p)
	if err != nil {
		return err
	}
	_, err = c.w.Write(buf)
	return err
}

// ReadPacket reads exactly one frame, blocking until the header and full
// payload are available.
func (c *Conn) ReadPacket() (Packet, error) {
	head, err := c.br.Peek(1)
	if err != nil {
		return Packet{}, err
	}
	payloadLen := int(head[0])
	if payloadLen > maxPayloadLength {
		return Packet{}, fmt.Errorf("canwire: invalid length field %d", payloadLen)
	}
	full, err := c.br.Peek(headerLength + payloadLen)
	if err != nil {
		return Packet{}, err
	}
	pkt, n, err := Decode(full)
	if err != nil {
		return Packet{}, err
	}
	if _, err := c.br.Discard(n); err != nil {
		return Packet{}, err
	}
	return pkt, nil
}
