// Package lcpserver implements the LCP server's per-connection dispatcher:
// a split read/write task pair per client, joined fail-fast, routing each
// request against a shared Core registry of rooms, devices and running
// driver instances.
package lcpserver

import (
	"context"
	"log/slog"
	"net"

	"go.lab.dev/cand/internal/driver"
	"go.lab.dev/cand/internal/lcpwire"
)

// loadedDriver binds a running driver instance's command channel to the
// device/room/channel triple it answers for.
type loadedDriver struct {
	device  lcpwire.ID
	room    lcpwire.ID
	channel lcpwire.ID
	cmds    chan<- driver.Command
	flags   lcpwire.ChannelFlags
}

// Core holds the LCP server's topology snapshot and the set of running
// driver instances serving it. It is built once at startup and is
// read-only thereafter, so it needs no locking.
type Core struct {
	log *slog.Logger

	Rooms   []lcpwire.RoomDescriptor
	Devices []lcpwire.DeviceDescriptor

	drivers []loadedDriver
}

// NewCore constructs a Core with the given topology and driver bindings.
func NewCore(log *slog.Logger, rooms []lcpwire.RoomDescriptor, devices []lcpwire.DeviceDescriptor, drivers []loadedDriver) *Core {
	if log == nil {
		log = slog.Default()
	}
	return &Core{log: log, Rooms: rooms, Devices: devices, drivers: drivers}
}

// Builder assembles a Core from device configs, instantiating one driver
// per channel via reg.
type Builder struct {
	reg *driver.Registry
	log *slog.Logger
}

// NewBuilder constructs a Builder backed by reg.
func NewBuilder(log *slog.Logger, reg *driver.Registry) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{reg: reg, log: log}
}

// RoomConfig and DeviceConfig mirror the on-disk device topology: rooms
// are flat name/display-name pairs, and devices own an ordered list of
// channel configs.
type RoomConfig struct {
	ID          string
	DisplayName string
}

// DeviceConfig is one device's static configuration.
type DeviceConfig struct {
	ID          string
	DisplayName string
	WikiURL     string
	Channels    []driver.ChannelConfig
}

// Build instantiates every configured channel's driver and returns the
// assembled Core.
func (b *Builder) Build(ctx context.Context, rooms []RoomConfig, devices []DeviceConfig) (*Core, error) {
	roomDescs := make([]lcpwire.RoomDescriptor, 0, len(rooms))
	for _, r := range rooms {
		roomDescs = append(roomDescs, lcpwire.RoomDescriptor{ID: lcpwire.ID(r.ID), DisplayName: r.DisplayName})
	}

	deviceDescs := make([]lcpwire.DeviceDescriptor, 0, len(devices))
	var loaded []loadedDriver

	for _, dev := range devices {
		channelDescs := make([]lcpwire.ChannelDescriptor, 0, len(dev.Channels))
		for _, ch := range dev.Channels {
			cmds := make(chan driver.Command, 4)
			desc, err := b.reg.CreateInstance(ctx, ch, cmds)
			if err != nil {
				return nil, err
			}
			channelDescs = append(channelDescs, desc)
			loaded = append(loaded, loadedDriver{
				device:  lcpwire.ID(dev.ID),
				room:    lcpwire.ID(ch.Room),
				channel: lcpwire.ID(ch.ID),
				cmds:    cmds,
				flags:   desc.Flags,
			})
		}
		deviceDescs = append(deviceDescs, lcpwire.DeviceDescriptor{
			ID:          lcpwire.ID(dev.ID),
			DisplayName: dev.DisplayName,
			WikiURL:     dev.WikiURL,
			Channels:    channelDescs,
		})
	}

	return NewCore(b.log, roomDescs, deviceDescs, loaded), nil
}

func idEqual(a, b lcpwire.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// findDriver looks up the running driver instance serving the
// (device, room, channel) triple, along with the flags it was advertised
// with.
func (c *Core) findDriver(device, room, channel lcpwire.ID) (cmds chan<- driver.Command, flags lcpwire.ChannelFlags, ok bool) {
	for _, ld := range c.drivers {
		if idEqual(ld.device, device) && idEqual(ld.room, room) && idEqual(ld.channel, channel) {
			return ld.cmds, ld.flags, true
		}
	}
	return nil, 0, false
}

// ListenAndServe accepts connections on ln until ctx is cancelled,
// dispatching each to its own goroutine.
func (c *Core) ListenAndServe(ctx context.Context, ln net.Listener) error {
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
		go c.handleConn(ctx, conn)
	}
}
