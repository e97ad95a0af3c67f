package lcpclient

import (
	"context"
	"log/slog"
	"sync"

	"go.lab.dev/cand/internal/lcpwire"
)

type subscription struct {
	ch    chan lcpwire.ToClientPayload
	multi bool
}

// correlator owns request-ID allocation and the map from in-flight
// request ID to the channel its response should be delivered on. Unlike
// the original's single actor loop serializing all of this through one
// channel, the Go port protects the map with a mutex directly: there is no
// further fan-out decision to make here, so an actor would just be a
// mutex with extra steps.
type correlator struct {
	mu        sync.Mutex
	nextReqID uint64
	subs      map[uint64]subscription
	closed    bool
}

func newCorrelator() *correlator {
	return &correlator{
		nextReqID: helloRequestID + 1,
		subs:      make(map[uint64]subscription),
	}
}

// register allocates a request ID, records a subscription for it, and
// writes the request frame. The returned channel receives every response
// carrying that request ID; for multi, that continues until unregister is
// called.
func (c *correlator) register(ctx context.Context, conn *lcpwire.Conn, payload lcpwire.ToServerPayload, multi bool) (uint64, <-chan lcpwire.ToClientPayload, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, nil, errClosed
	}
	reqID := c.nextReqID
	c.nextReqID++
	ch := make(chan lcpwire.ToClientPayload, 16)
	c.subs[reqID] = subscription{ch: ch, multi: multi}
	c.mu.Unlock()

	if err := conn.WriteRequest(reqID, payload); err != nil {
		c.unregister(reqID)
		return 0, nil, err
	}

	return reqID, ch, nil
}

func (c *correlator) unregister(reqID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, reqID)
}

func (c *correlator) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for id, sub := range c.subs {
		close(sub.ch)
		delete(c.subs, id)
	}
	return nil
}

// readLoop reads every response frame from conn and delivers it to the
// matching subscription, if any; responses with no registered subscriber
// are logged and dropped. A single-response subscription is automatically
// removed once its answer is delivered.
func (c *correlator) readLoop(conn *lcpwire.Conn) {
	for {
		msg, err := conn.ReadResponse()
		if err != nil {
			c.close()
			return
		}

		c.mu.Lock()
		sub, ok := c.subs[msg.RequestID]
		if ok && !sub.multi {
			delete(c.subs, msg.RequestID)
		}
		c.mu.Unlock()

		if !ok {
			slog.Debug("lcpclient: dropping response with unknown request id", "request_id", msg.RequestID)
			continue
		}

		select {
		case sub.ch <- msg.Payload:
		default:
		}
	}
}

var errClosed = connectionClosedError{}

type connectionClosedError struct{}

func (connectionClosedError) Error() string { return "lcpclient: connection closed" }
