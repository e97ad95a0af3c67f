// Package canclient implements the TCP "listen" stanza: each accepted
// connection speaks the same canwire framing as the legacy uplink
// (component H) and is registered with the reactor as an ordinary
// non-uplink client peer — a remote peer observing or injecting CAN
// frames, not a second bus.
package canclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"

	"go.lab.dev/cand/internal/canbus"
	"go.lab.dev/cand/internal/canwire"
	"go.lab.dev/cand/internal/reactor"
)

const queueCapacity = 16

// ListenAndServe accepts connections on ln until ctx is cancelled,
// registering each one as a reactor client peer.
func ListenAndServe(ctx context.Context, log *slog.Logger, r *reactor.Reactor, ln net.Listener) error {
	if log == nil {
		log = slog.Default()
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go serve(ctx, log, r, conn)
	}
}

func serve(ctx context.Context, log *slog.Logger, r *reactor.Reactor, conn net.Conn) {
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wire := canwire.New(conn, conn)
	read := make(chan canbus.Message, queueCapacity)
	sink := make(chan canbus.Message, queueCapacity)
	done := make(chan struct{})

	r.RegisterClient(read, sink, done)

	errCh := make(chan error, 2)
	go func() { errCh <- readLoop(connCtx, wire, read) }()
	go func() { errCh <- writeLoop(connCtx, wire, sink) }()

	err := <-errCh
	close(done)
	cancel()
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		log.Debug("can client connection closed", "error", err, "remote", conn.RemoteAddr())
	}
}

func readLoop(ctx context.Context, wire *canwire.Conn, read chan<- canbus.Message) error {
	defer close(read)
	for {
		pkt, err := wire.ReadPacket()
		if err != nil {
			return err
		}
		msg, err := canwire.ToMessage(pkt)
		if err != nil {
			continue
		}
		select {
		case read <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeLoop(ctx context.Context, wire *canwire.Conn, sink <-chan canbus.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-sink:
			pkt, err := canwire.FromMessage(msg)
			if err != nil {
				continue
			}
			if err := wire.WritePacket(pkt); err != nil {
				return err
			}
		}
	}
}
