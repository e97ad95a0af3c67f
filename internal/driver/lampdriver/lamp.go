// Package lampdriver implements the "lamp" channel driver: a single
// read-write u8 value (typically 0/1, but any byte is accepted) with no
// persistence beyond the process lifetime.
package lampdriver

import (
	"context"

	"go.lab.dev/cand/internal/driver"
	"go.lab.dev/cand/internal/lcpwire"
)

// Lamp is stateless: every channel gets its own goroutine and value cell
// via CreateInstance.
type Lamp struct{}

// CreateInstance starts the lamp's background loop and returns its
// descriptor. The channel is readable, writable and subscribable.
func (Lamp) CreateInstance(ctx context.Context, ch driver.ChannelConfig, commands <-chan driver.Command) (lcpwire.ChannelDescriptor, error) {
	go run(ctx, commands)

	return lcpwire.ChannelDescriptor{
		Flags:       lcpwire.FlagReadable | lcpwire.FlagWritable | lcpwire.FlagSubscribable,
		Room:        lcpwire.ID(ch.Room),
		DisplayName: ch.DisplayName,
		ValueType:   lcpwire.U8(),
		Kind:        ch.Kind,
	}, nil
}

func run(ctx context.Context, commands <-chan driver.Command) {
	var value uint8
	var subscribers []chan<- lcpwire.Value

	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			switch c := cmd.(type) {
			case driver.Subscribe:
				subscribers = append(subscribers, c.Reply)
				select {
				case c.Reply <- lcpwire.NewValue(value):
				default:
				}
			case driver.GetValue:
				c.Reply <- lcpwire.NewValue(value)
			case driver.SetValue:
				if v, ok := coerceU8(c.Value); ok {
					value = v
					notify(subscribers, value)
				}
				close(c.Reply)
			}
		}
	}
}

func notify(subscribers []chan<- lcpwire.Value, value uint8) {
	for _, sub := range subscribers {
		select {
		case sub <- lcpwire.NewValue(value):
		default:
		}
	}
}

// coerceU8 accepts an integer value that fits in a byte: fxamacker/cbor
// decodes unsigned integers as uint64 and negative ones as int64, while
// uint8 and uint32 cover values built in-process with NewValue.
func coerceU8(v lcpwire.Value) (uint8, bool) {
	switch n := v.Interface().(type) {
	case uint8:
		return n, true
	case uint64:
		return uint8(n), n <= 0xff
	case uint32:
		return uint8(n), n <= 0xff
	case int64:
		return uint8(n), n >= 0 && n <= 0xff
	default:
		return 0, false
	}
}
