// Package driver defines the channel driver contract and a name-keyed
// registry of driver factories. A driver owns the live state behind one
// channel and answers a small command set (Subscribe/GetValue/SetValue)
// delivered over a channel, exactly mirroring how the reactor and hook
// engine are driven: no locks shared across goroutines, only message
// passing.
package driver

import (
	"context"
	"fmt"

	"go.lab.dev/cand/internal/lcpwire"
)

// ChannelConfig is the static configuration of one channel, as declared in
// the LCP server's device topology config.
type ChannelConfig struct {
	ID            string
	DisplayName   string
	Room          string
	Kind          lcpwire.ChannelKind
	DriverName    string
	DriverOptions map[string]lcpwire.Value
}

// Subscribe asks a driver instance to stream every future value onto
// Reply. Reply is never closed by the driver; the subscriber should stop
// reading once it no longer cares.
type Subscribe struct {
	Reply chan<- lcpwire.Value
}

// GetValue asks a driver instance for its current value.
type GetValue struct {
	Reply chan<- lcpwire.Value
}

// SetValue asks a driver instance to adopt a new value. Reply is closed
// once the write has taken effect.
type SetValue struct {
	Value lcpwire.Value
	Reply chan<- struct{}
}

// Command is the sealed set of messages a driver instance accepts:
// Subscribe, GetValue or SetValue.
type Command interface {
	isDriverCommand()
}

func (Subscribe) isDriverCommand() {}
func (GetValue) isDriverCommand()  {}
func (SetValue) isDriverCommand()  {}

// Driver is a channel implementation factory. CreateInstance spawns
// whatever background goroutine the driver needs to own its state,
// wiring it to commands, and returns the ChannelDescriptor to advertise to
// LCP clients.
type Driver interface {
	CreateInstance(ctx context.Context, ch ChannelConfig, commands <-chan Command) (lcpwire.ChannelDescriptor, error)
}

// Registry maps a driver name (as named in a channel's config) to its
// factory.
type Registry struct {
	drivers map[string]Driver
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Driver)}
}

// Register adds a driver factory under name, overwriting any existing
// registration.
func (r *Registry) Register(name string, d Driver) {
	r.drivers[name] = d
}

// CreateInstance looks up ch's driver by name and instantiates it.
func (r *Registry) CreateInstance(ctx context.Context, ch ChannelConfig, commands <-chan Command) (lcpwire.ChannelDescriptor, error) {
	d, ok := r.drivers[ch.DriverName]
	if !ok {
		return lcpwire.ChannelDescriptor{}, fmt.Errorf("driver: no such driver %q", ch.DriverName)
	}
	return d.CreateInstance(ctx, ch, commands)
}

// Len reports how many driver factories are registered.
func (r *Registry) Len() int { return len(r.drivers) }
