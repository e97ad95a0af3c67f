// Package legacycan implements the "net" backend kind: an uplink reached
// by dialing a legacy RS232-over-TCP CAN gateway and speaking the canwire
// framing (component H) over the connection. It owns the policy canwire
// itself does not: answering Ping, VersionRequest and FirmwareIdRequest
// locally instead of putting them on the wire, and logging (without
// acting on) Resync and Reset.
package legacycan

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"

	"go.lab.dev/cand/internal/canbus"
	"go.lab.dev/cand/internal/canwire"
)

// VersionMajor and VersionMinor are this daemon's own semantic version,
// reported in answer to a VersionRequest. They are a fixed constant pair,
// not sourced from a build-time environment variable.
const (
	VersionMajor uint8 = 1
	VersionMinor uint8 = 0
)

// FirmwareID is reported in answer to a FirmwareIdRequest.
const FirmwareID = "cand"

const queueCapacity = 16

// Uplink is a connected legacy-gateway backend, ready to be wired into a
// reactor as the uplink peer.
type Uplink struct {
	log  *slog.Logger
	conn net.Conn
	wire *canwire.Conn

	read chan canbus.Message // envelopes this backend emits onto the bus
	sink chan canbus.Message // envelopes the reactor delivers to this backend
	done chan struct{}
}

// Dial connects to a legacy gateway at addr (host:port) and returns an
// Uplink ready to drive. Call Run in a goroutine to start the I/O loops.
func Dial(ctx context.Context, log *slog.Logger, addr string) (*Uplink, error) {
	if log == nil {
		log = slog.Default()
	}
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Uplink{
		log:  log,
		conn: conn,
		wire: canwire.New(conn, conn),
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

// Run drives the read and write loops until ctx is cancelled or the
// connection fails. It closes Done and the underlying connection on
// return.
func (u *Uplink) Run(ctx context.Context) {
	defer close(u.done)
	defer u.conn.Close()
	defer close(u.read)

	errCh := make(chan error, 2)
	go func() { errCh <- u.readLoop(ctx) }()
	go func() { errCh <- u.writeLoop(ctx) }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
			u.log.Warn("legacycan uplink error", "error", err)
		}
	case <-ctx.Done():
	}
}

func (u *Uplink) readLoop(ctx context.Context) error {
	for {
		pkt, err := u.wire.ReadPacket()
		if err != nil {
			return err
		}
		msg, err := canwire.ToMessage(pkt)
		if err != nil {
			u.log.Warn("legacycan: dropping undecodable packet", "error", err)
			continue
		}
		select {
		case u.read <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (u *Uplink) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-u.sink:
			if reply, ok := u.answerLocally(msg); ok {
				select {
				case u.read <- reply:
				case <-ctx.Done():
					return ctx.Err()
				}
				continue
			}
			pkt, err := canwire.FromMessage(msg)
			if err != nil {
				u.log.Warn("legacycan: cannot encode message", "error", err)
				continue
			}
			if err := u.wire.WritePacket(pkt); err != nil {
				return err
			}
		}
	}
}

// answerLocally handles the control variants the uplink resolves itself
// rather than forwarding to the wire, mirroring the original gateway
// firmware's NO-OP treatment of Resync/Reset and its direct answers to
// Ping/VersionRequest/FirmwareIdRequest.
func (u *Uplink) answerLocally(msg canbus.Message) (canbus.Message, bool) {
	switch msg.Kind {
	case canbus.KindPing:
		return canbus.Ping(), true
	case canbus.KindVersionRequest:
		return canbus.VersionReply(VersionMajor, VersionMinor), true
	case canbus.KindFirmwareIDRequest:
		return canbus.FirmwareIDResponse(FirmwareID), true
	case canbus.KindResync:
		u.log.Debug("legacycan: resync received, no-op")
		return canbus.Message{}, false
	case canbus.KindReset:
		u.log.Info("legacycan: reset notified", "cause", msg.ResetCause)
		return canbus.Message{}, false
	default:
		return canbus.Message{}, false
	}
}
