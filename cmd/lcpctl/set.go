package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"go.lab.dev/cand/internal/lcpwire"
)

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <device> <room> <channel> <value>",
		Short: "Write a value to a channel",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(cmd, args[0], args[1], args[2], args[3])
		},
	}
	addServerFlag(cmd)
	addTLSFlag(cmd)
	return cmd
}

func runSet(cmd *cobra.Command, device, room, channel, raw string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	client, err := dial(ctx, cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	deviceID := lcpwire.ID(device)
	roomID := lcpwire.ID(room)
	channelID := lcpwire.ID(channel)

	valueType, err := lookupValueType(ctx, client, deviceID, channelID)
	if err != nil {
		return err
	}

	value, err := parseValue(valueType, raw)
	if err != nil {
		return fmt.Errorf("parsing value %q: %w", raw, err)
	}

	return client.SetChannel(ctx, deviceID, roomID, channelID, value)
}

// lookupValueType fetches the topology snapshot to learn the declared type
// of device/channel, so the raw command-line string can be parsed into the
// right CBOR shape instead of always being sent as a string.
func lookupValueType(ctx context.Context, client interface {
	ListDevices(ctx context.Context) ([]lcpwire.RoomDescriptor, []lcpwire.DeviceDescriptor, error)
}, device, channel lcpwire.ID) (lcpwire.ValueType, error) {
	_, devices, err := client.ListDevices(ctx)
	if err != nil {
		return lcpwire.ValueType{}, err
	}
	for _, dev := range devices {
		if string(dev.ID) != string(device) {
			continue
		}
		for _, ch := range dev.Channels {
			if string(ch.DisplayName) == string(channel) {
				return ch.ValueType, nil
			}
		}
	}
	// Fall through to a permissive default: let the server reject an
	// unknown device/channel rather than failing client-side on a type we
	// couldn't resolve.
	return lcpwire.Str(), nil
}

func parseValue(t lcpwire.ValueType, raw string) (lcpwire.Value, error) {
	switch t.Kind {
	case lcpwire.ValueBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return lcpwire.Value{}, err
		}
		return lcpwire.NewValue(b), nil
	case lcpwire.ValueU8, lcpwire.ValueU32:
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return lcpwire.Value{}, err
		}
		return lcpwire.NewValue(uint64(n)), nil
	case lcpwire.ValueF32:
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return lcpwire.Value{}, err
		}
		return lcpwire.NewValue(f), nil
	default:
		return lcpwire.NewValue(raw), nil
	}
}
