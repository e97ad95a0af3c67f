package lcpserver

import (
	"context"
	"errors"
	"io"
	"net"

	"go.lab.dev/cand/internal/driver"
	"go.lab.dev/cand/internal/lcpwire"
)

type outboundMsg struct {
	requestID uint64
	payload   lcpwire.ToClientPayload
}

// handleConn runs one client connection's read and write loops until
// either fails or ctx is cancelled, then tears the connection down.
func (c *Core) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wire := lcpwire.NewConn(conn)
	out := make(chan outboundMsg, 16)

	errCh := make(chan error, 2)

	go func() {
		errCh <- c.writeLoop(connCtx, wire, out)
	}()
	go func() {
		errCh <- c.readLoop(connCtx, wire, out)
	}()

	if err := <-errCh; err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		c.log.Debug("lcp connection closed", "error", err, "remote", conn.RemoteAddr())
	}
	cancel()
}

func (c *Core) writeLoop(ctx context.Context, wire *lcpwire.Conn, out <-chan outboundMsg) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-out:
			if err := wire.WriteResponse(msg.requestID, msg.payload); err != nil {
				return err
			}
		}
	}
}

func (c *Core) readLoop(ctx context.Context, wire *lcpwire.Conn, out chan<- outboundMsg) error {
	for {
		req, err := wire.ReadRequest()
		if err != nil {
			return err
		}
		c.dispatch(ctx, req, out)
	}
}

func (c *Core) dispatch(ctx context.Context, req lcpwire.Message[lcpwire.ToServerPayload], out chan<- outboundMsg) {
	p := req.Payload
	reply := func(payload lcpwire.ToClientPayload) {
		select {
		case out <- outboundMsg{requestID: req.RequestID, payload: payload}:
		case <-ctx.Done():
		}
	}

	switch {
	case p.IsHello():
		reply(lcpwire.Welcome())

	case p.IsGetDevices():
		reply(lcpwire.DevicesResponse(c.Rooms, c.Devices))

	case p.IsSetChannel():
		cmds, _, errPayload := c.resolve(p.Device, p.Room, p.Channel)
		if errPayload != nil {
			reply(*errPayload)
			return
		}
		// Spawned so a slow driver ack never stalls the read loop for
		// other requests on this connection.
		go func() {
			done := make(chan struct{})
			select {
			case cmds <- driver.SetValue{Value: p.Value, Reply: done}:
			case <-ctx.Done():
				return
			}
			select {
			case <-done:
				reply(lcpwire.OkResponse())
			case <-ctx.Done():
			}
		}()

	case p.IsGetChannel():
		cmds, flags, errPayload := c.resolve(p.Device, p.Room, p.Channel)
		if errPayload != nil {
			reply(*errPayload)
			return
		}
		go func() {
			valCh := make(chan lcpwire.Value, 1)
			select {
			case cmds <- driver.GetValue{Reply: valCh}:
			case <-ctx.Done():
				return
			}
			select {
			case v := <-valCh:
				reply(lcpwire.ChannelValueResponse(flags, v))
			case <-ctx.Done():
			}
		}()

	case p.IsSubscribeChannel():
		cmds, flags, errPayload := c.resolve(p.Device, p.Room, p.Channel)
		if errPayload != nil {
			reply(*errPayload)
			return
		}
		go func() {
			stream := make(chan lcpwire.Value, 4)
			select {
			case cmds <- driver.Subscribe{Reply: stream}:
			case <-ctx.Done():
				return
			}
			for {
				select {
				case <-ctx.Done():
					return
				case v := <-stream:
					reply(lcpwire.ChannelValueResponse(flags, v))
				}
			}
		}()
	}
}

// resolve looks up the driver instance serving the (device, room, channel)
// triple, returning a ready-to-send error payload instead when no such
// device, room or channel exists. Every lookup failure collapses to the
// same NoSuchChannel code: a client can't distinguish a bad device ID from
// a bad room or channel ID from the response alone.
func (c *Core) resolve(device, room, channel lcpwire.ID) (chan<- driver.Command, lcpwire.ChannelFlags, *lcpwire.ToClientPayload) {
	cmds, flags, ok := c.findDriver(device, room, channel)
	if !ok {
		err := lcpwire.ErrResponse(lcpwire.ErrNoSuchChannel, "Could not find Device, Room or Channel")
		return nil, 0, &err
	}
	return cmds, flags, nil
}
