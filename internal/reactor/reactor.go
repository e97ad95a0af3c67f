// Package reactor implements the fan-out reactor: it owns the set of
// registered peers (the uplink and any number of clients/hook engines),
// copies every inbound message to every peer on the opposite side of the
// uplink/non-uplink boundary, and supervises per-peer lifecycle.
//
// The reactor is single-threaded cooperative: exactly one goroutine (Run)
// owns the peer arena and processes commands from a single internal
// channel. Peers themselves are driven by the caller; the reactor only
// spawns a reader goroutine (forwarding the peer's inbound channel into
// reactor commands) and a supervisor goroutine (waiting for the peer's
// done signal) per registered peer.
package reactor

import (
	"context"
	"log/slog"

	"go.lab.dev/cand/internal/canbus"
)

const commandQueueCapacity = 16

type peerData struct {
	uplink bool
	sink   chan<- canbus.Message
	cancel context.CancelFunc
}

type registerCmd struct {
	uplink bool
	read   <-chan canbus.Message
	sink   chan<- canbus.Message
	done   <-chan struct{}
	reply  chan Key
}

type taskDiedCmd struct {
	key Key
}

type messageCmd struct {
	source Key
	uplink bool // whether source was uplink at send time; source may already be gone
	payload canbus.Message
}

// Reactor owns the peer registry and the fan-out loop. Zero value is not
// usable; construct with New.
type Reactor struct {
	cmdCh chan any
	log   *slog.Logger
}

// New constructs a Reactor. Call Run in a goroutine to start the command
// loop before registering any peers.
func New(log *slog.Logger) *Reactor {
	if log == nil {
		log = slog.Default()
	}
	return &Reactor{cmdCh: make(chan any, commandQueueCapacity), log: log}
}

// RegisterClient declares a non-uplink peer and returns its handle. read is
// a channel of inbound envelopes from the peer (closing it signals peer
// death); sink is the channel the reactor posts outbound envelopes to;
// done signals completion of the peer's own supervising task.
func (r *Reactor) RegisterClient(read <-chan canbus.Message, sink chan<- canbus.Message, done <-chan struct{}) Key {
	return r.register(false, read, sink, done)
}

// RegisterUplink is RegisterClient but marks the peer as the uplink. At
// most one active uplink is expected; extras are permitted but are not
// respawned on death.
func (r *Reactor) RegisterUplink(read <-chan canbus.Message, sink chan<- canbus.Message, done <-chan struct{}) Key {
	return r.register(true, read, sink, done)
}

func (r *Reactor) register(uplink bool, read <-chan canbus.Message, sink chan<- canbus.Message, done <-chan struct{}) Key {
	reply := make(chan Key, 1)
	r.cmdCh <- registerCmd{uplink: uplink, read: read, sink: sink, done: done, reply: reply}
	return <-reply
}

// Run executes the command loop until ctx is cancelled. It must be called
// exactly once, typically in its own goroutine.
func (r *Reactor) Run(ctx context.Context) {
	peers := newArena[peerData]()

	for {
		select {
		case <-ctx.Done():
			r.log.Warn("reactor exiting", "reason", ctx.Err())
			return
		case cmd := <-r.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				key := r.handleRegister(ctx, peers, c)
				c.reply <- key

			case taskDiedCmd:
				if data, ok := peers.Get(c.key); ok {
					if data.uplink {
						r.log.Warn("uplink peer died; respawn not implemented, removing")
					}
					data.cancel()
					peers.Remove(c.key)
					r.log.Info("peer removed", "peers_remaining", peers.Len())
				}

			case messageCmd:
				if _, ok := peers.Get(c.source); !ok {
					continue // source died before this message was processed; drop it
				}
				peers.Each(func(key Key, data *peerData) {
					if key == c.source {
						return
					}
					if data.uplink == c.uplink {
						return // fan-out only crosses the uplink/non-uplink boundary
					}
					trySend(r.log, data.sink, c.payload.Clone())
				})
			}
		}
	}
}

func (r *Reactor) handleRegister(ctx context.Context, peers *arena[peerData], c registerCmd) Key {
	peerCtx, cancel := context.WithCancel(ctx)
	key := peers.Insert(peerData{uplink: c.uplink, sink: c.sink, cancel: cancel})

	go r.readTask(peerCtx, key, c.uplink, c.read)
	go r.superviseTask(peerCtx, key, c.done)

	return key
}

// readTask forwards every message read from the peer's inbound channel
// into the reactor's command channel, tagged with its source key. It exits
// when read closes or ctx is cancelled.
func (r *Reactor) readTask(ctx context.Context, key Key, uplink bool, read <-chan canbus.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-read:
			if !ok {
				r.cmdCh <- taskDiedCmd{key: key}
				return
			}
			r.cmdCh <- messageCmd{source: key, uplink: uplink, payload: msg}
		}
	}
}

// superviseTask waits for the peer's done signal (or ctx cancellation) and
// reports the peer as dead to the reactor.
func (r *Reactor) superviseTask(ctx context.Context, key Key, done <-chan struct{}) {
	select {
	case <-ctx.Done():
		return
	case <-done:
		r.cmdCh <- taskDiedCmd{key: key}
	}
}

// trySend is a non-blocking enqueue: a full queue results in the message
// being dropped for that peer only, so no peer blocks delivery to the
// others.
func trySend(log *slog.Logger, sink chan<- canbus.Message, msg canbus.Message) {
	select {
	case sink <- msg:
	default:
		log.Warn("peer outbound queue full, dropping message")
	}
}
