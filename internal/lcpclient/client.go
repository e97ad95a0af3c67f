// Package lcpclient implements an LCP client: the initial Hello handshake
// with a bounded timeout, and a request/response correlator keyed by
// request ID so a caller's GetDevices doesn't have to wait behind another
// caller's SubscribeChannel on the same connection.
package lcpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"go.lab.dev/cand/internal/lcpwire"
)

const handshakeTimeout = 5 * time.Second

// helloRequestID is reserved for the connection handshake; all
// subsequent requests are allocated starting at 2.
const helloRequestID = 1

// Client is a connected LCP session. Use Connect to construct one.
type Client struct {
	conn *lcpwire.Conn
	raw  net.Conn

	corr *correlator
}

// Connect dials addr, performs the Hello/Welcome handshake (failing if no
// Welcome arrives within 5 seconds), and starts the background read loop
// that feeds the request correlator.
func Connect(ctx context.Context, network, addr string) (*Client, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return handshake(ctx, conn)
}

// ConnectTLS is Connect over a TLS-wrapped TCP connection, for servers
// configured with a [tls] stanza (see internal/tlsconf).
func ConnectTLS(ctx context.Context, addr string, tlsCfg *tls.Config) (*Client, error) {
	d := tls.Dialer{Config: tlsCfg}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return handshake(ctx, conn)
}

func handshake(ctx context.Context, conn net.Conn) (*Client, error) {
	wire := lcpwire.NewConn(conn)
	if err := wire.WriteRequest(helloRequestID, lcpwire.Hello()); err != nil {
		conn.Close()
		return nil, err
	}

	type result struct {
		msg lcpwire.Message[lcpwire.ToClientPayload]
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		msg, err := wire.ReadResponse()
		resultCh <- result{msg, err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			conn.Close()
			return nil, res.err
		}
		if res.msg.RequestID != helloRequestID {
			conn.Close()
			return nil, fmt.Errorf("lcpclient: handshake response has request id %d, want %d", res.msg.RequestID, helloRequestID)
		}
		if !res.msg.Payload.IsWelcome() {
			conn.Close()
			return nil, fmt.Errorf("lcpclient: handshake: unexpected response type")
		}
	case <-time.After(handshakeTimeout):
		conn.Close()
		return nil, fmt.Errorf("lcpclient: timed out waiting for handshake response")
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	}

	c := &Client{conn: wire, raw: conn, corr: newCorrelator()}
	go c.corr.readLoop(wire)

	return c, nil
}

// Close tears down the underlying connection and fails every pending
// request.
func (c *Client) Close() error {
	c.corr.close()
	return c.raw.Close()
}

// ListDevices requests the full room/device/channel topology.
func (c *Client) ListDevices(ctx context.Context) ([]lcpwire.RoomDescriptor, []lcpwire.DeviceDescriptor, error) {
	resp, err := c.singleRequest(ctx, lcpwire.GetDevicesRequest())
	if err != nil {
		return nil, nil, err
	}
	if resp.IsErr() {
		return nil, nil, &ServerError{Code: resp.ErrCode, Message: resp.ErrMsg}
	}
	if !resp.IsDevices() {
		return nil, nil, fmt.Errorf("lcpclient: unexpected response type to GetDevices")
	}
	return resp.Rooms, resp.Devices, nil
}

// SetChannel writes value to a channel and waits for acknowledgement.
func (c *Client) SetChannel(ctx context.Context, device, room, channel lcpwire.ID, value lcpwire.Value) error {
	resp, err := c.singleRequest(ctx, lcpwire.SetChannelRequest(device, room, channel, value))
	if err != nil {
		return err
	}
	if resp.IsErr() {
		return &ServerError{Code: resp.ErrCode, Message: resp.ErrMsg}
	}
	if !resp.IsOk() {
		return fmt.Errorf("lcpclient: unexpected response type to SetChannel")
	}
	return nil
}

// GetChannel fetches a channel's current flags and value.
func (c *Client) GetChannel(ctx context.Context, device, room, channel lcpwire.ID) (lcpwire.ChannelFlags, lcpwire.Value, error) {
	resp, err := c.singleRequest(ctx, lcpwire.GetChannelRequest(device, room, channel))
	if err != nil {
		return 0, lcpwire.Value{}, err
	}
	if resp.IsErr() {
		return 0, lcpwire.Value{}, &ServerError{Code: resp.ErrCode, Message: resp.ErrMsg}
	}
	if !resp.IsChannelValue() {
		return 0, lcpwire.Value{}, fmt.Errorf("lcpclient: unexpected response type to GetChannel")
	}
	return resp.ChannelFlags, resp.Value, nil
}

// Subscription is a live SubscribeChannel stream. Close stops delivery and
// frees the request ID.
type Subscription struct {
	Values <-chan lcpwire.ToClientPayload
	cancel func()
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() { s.cancel() }

// SubscribeChannel asks the server to stream every future value of a
// channel. The initial acknowledgement, if any, arrives on the same
// stream as later pushes.
func (c *Client) SubscribeChannel(ctx context.Context, device, room, channel lcpwire.ID) (*Subscription, error) {
	reqID, ch, err := c.corr.register(ctx, c.conn, lcpwire.SubscribeChannelRequest(device, room, channel), true)
	if err != nil {
		return nil, err
	}
	return &Subscription{
		Values: ch,
		cancel: func() { c.corr.unregister(reqID) },
	}, nil
}

// singleRequest sends payload, waits for exactly one response, and
// unregisters the subscription whether or not the wait succeeds.
func (c *Client) singleRequest(ctx context.Context, payload lcpwire.ToServerPayload) (lcpwire.ToClientPayload, error) {
	reqID, ch, err := c.corr.register(ctx, c.conn, payload, false)
	if err != nil {
		return lcpwire.ToClientPayload{}, err
	}
	defer c.corr.unregister(reqID)

	select {
	case resp, ok := <-ch:
		if !ok {
			return lcpwire.ToClientPayload{}, fmt.Errorf("lcpclient: connection closed while awaiting response")
		}
		return resp, nil
	case <-ctx.Done():
		return lcpwire.ToClientPayload{}, ctx.Err()
	}
}

// ServerError wraps an Err response from the server.
type ServerError struct {
	Code    lcpwire.ErrorCode
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("lcpclient: server error: %s: %s", e.Code, e.Message)
}
