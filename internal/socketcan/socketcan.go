//go:build linux

// Package socketcan implements the "socketcan" backend kind: a raw
// AF_CAN/SOCK_RAW kernel socket bound to a named CAN interface. Unlike the
// legacy gateway codec, the kernel socket carries only raw CAN frames —
// there is no Ping/VersionRequest/FirmwareId control channel at this
// layer, so those envelopes are logged and dropped rather than answered.
package socketcan

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"

	"go.lab.dev/cand/internal/canaddr"
	"go.lab.dev/cand/internal/canbus"
)

// frameSize is sizeof(struct can_frame) on Linux: 4-byte id, 1-byte dlc,
// 3 bytes padding, 8 bytes data.
const frameSize = 16

const queueCapacity = 16

// Uplink is an open AF_CAN socket bound to one interface, ready to be
// wired into a reactor as the uplink peer.
type Uplink struct {
	log *slog.Logger
	fd  int

	read chan canbus.Message
	sink chan canbus.Message
	done chan struct{}
}

// Open binds an AF_CAN raw socket to the named interface (e.g. "can0").
func Open(ifname string, log *slog.Logger) (*Uplink, error) {
	if log == nil {
		log = slog.Default()
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socketcan: socket: %w", err)
	}
	idx, err := unix.IfNameIndex()
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socketcan: if_nameindex: %w", err)
	}
	var ifIndex int
	for _, e := range idx {
		if e.Name == ifname {
			ifIndex = int(e.Index)
			break
		}
	}
	if ifIndex == 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("socketcan: no such interface %q", ifname)
	}
	addr := &unix.SockaddrCAN{Ifindex: ifIndex}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socketcan: bind %s: %w", ifname, err)
	}
	return &Uplink{
		log:  log,
		fd:   fd,
		read: make(chan canbus.Message, queueCapacity),
		sink: make(chan canbus.Message, queueCapacity),
		done: make(chan struct{}),
	}, nil
}

// Read returns the channel of envelopes sourced from this backend.
func (u *Uplink) Read() <-chan canbus.Message { return u.read }

// Sink returns the channel the reactor should post outbound envelopes on.
func (u *Uplink) Sink() chan<- canbus.Message { return u.sink }

// Done returns the channel that closes when the uplink has stopped.
func (u *Uplink) Done() <-chan struct{} { return u.done }

// Run drives the read and write loops until ctx is cancelled.
func (u *Uplink) Run(ctx context.Context) {
	defer close(u.done)
	defer unix.Close(u.fd)
	defer close(u.read)

	errCh := make(chan error, 1)
	go func() { errCh <- u.readLoop(ctx) }()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				u.log.Warn("socketcan uplink read loop stopped", "error", err)
			}
			return
		case msg := <-u.sink:
			if msg.Kind != canbus.KindFrame {
				u.log.Debug("socketcan: dropping non-frame control message", "kind", msg.Kind)
				continue
			}
			if err := u.writeFrame(msg.Frame); err != nil {
				u.log.Warn("socketcan: write failed", "error", err)
			}
		}
	}
}

func (u *Uplink) readLoop(ctx context.Context) error {
	buf := make([]byte, frameSize)
	for {
		n, err := unix.Read(u.fd, buf)
		if err != nil {
			return err
		}
		if n != frameSize {
			continue
		}
		pkt, err := decodeFrame(buf)
		if err != nil {
			u.log.Warn("socketcan: undecodable frame", "error", err)
			continue
		}
		select {
		case u.read <- canbus.NewFrame(pkt):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func decodeFrame(buf []byte) (canaddr.Packet, error) {
	id := binary.LittleEndian.Uint32(buf[0:4]) & unix.CAN_EFF_MASK
	dlc := int(buf[4])
	if dlc > canaddr.MaxPayload {
		dlc = canaddr.MaxPayload
	}
	return canaddr.FromID(id, buf[8:8+dlc])
}

func (u *Uplink) writeFrame(p canaddr.Packet) error {
	var buf [frameSize]byte
	id := p.ID() | unix.CAN_EFF_FLAG
	binary.LittleEndian.PutUint32(buf[0:4], id)
	buf[4] = byte(len(p.Payload))
	copy(buf[8:8+len(p.Payload)], p.Payload)
	_, err := unix.Write(u.fd, buf[:])
	return err
}
