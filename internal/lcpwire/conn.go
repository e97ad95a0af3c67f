package lcpwire

import (
	"bufio"
	"io"
	"sync"
)

// Conn is a framed LCP connection: ReadRequest/WriteRequest and
// ReadResponse/WriteResponse read and write one Message at a time. Writes
// are serialized with a mutex since a server's read and write loops run
// concurrently but share one underlying connection.
type Conn struct {
	r  *bufio.Reader
	w  io.Writer
	mu sync.Mutex
}

// NewConn wraps rw for framed LCP message I/O.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{r: bufio.NewReaderSize(rw, 4096), w: rw}
}

// ReadRequest reads one request frame.
func (c *Conn) ReadRequest() (Message[ToServerPayload], error) {
	return ReadRequest(c.r)
}

// ReadResponse reads one response frame.
func (c *Conn) ReadResponse() (Message[ToClientPayload], error) {
	return ReadResponse(c.r)
}

// WriteRequest writes one request frame.
func (c *Conn) WriteRequest(requestID uint64, p ToServerPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return WriteRequest(c.w, requestID, p)
}

// WriteResponse writes one response frame.
func (c *Conn) WriteResponse(requestID uint64, p ToClientPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return WriteResponse(c.w, requestID, p)
}
