package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"go.lab.dev/cand/internal/lcpwire"
)

const requestTimeout = 10 * time.Second

func newShowChannelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show-channels",
		Short: "List every channel of every device, across all rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, "", "")
		},
	}
	addServerFlag(cmd)
	addTLSFlag(cmd)
	return cmd
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [device] [room]",
		Short: "List devices and channels, optionally filtered by device or room",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var device, room string
			if len(args) > 0 {
				device = args[0]
			}
			if len(args) > 1 {
				room = args[1]
			}
			return runList(cmd, device, room)
		},
	}
	addServerFlag(cmd)
	addTLSFlag(cmd)
	return cmd
}

func runList(cmd *cobra.Command, deviceFilter, roomFilter string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	client, err := dial(ctx, cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	rooms, devices, err := client.ListDevices(ctx)
	if err != nil {
		return err
	}

	roomName := make(map[string]string, len(rooms))
	for _, r := range rooms {
		roomName[string(r.ID)] = r.DisplayName
	}

	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	type row struct{ device, room, channel, kind, flags string }
	var rows []row
	deviceWidth, roomWidth, channelWidth := len("DEVICE"), len("ROOM"), len("CHANNEL")

	for _, dev := range devices {
		if deviceFilter != "" && string(dev.ID) != deviceFilter {
			continue
		}
		for _, ch := range dev.Channels {
			rn := roomName[string(ch.Room)]
			if rn == "" {
				rn = string(ch.Room)
			}
			if roomFilter != "" && string(ch.Room) != roomFilter && rn != roomFilter {
				continue
			}
			r := row{device: string(dev.ID), room: rn, channel: ch.DisplayName,
				kind: channelKindName(ch.Kind), flags: flagString(ch.Flags)}
			rows = append(rows, r)
			deviceWidth = max(deviceWidth, runewidth.StringWidth(r.device))
			roomWidth = max(roomWidth, runewidth.StringWidth(r.room))
			channelWidth = max(channelWidth, runewidth.StringWidth(r.channel))
		}
	}

	if len(rows) == 0 {
		fmt.Println(dim("no matching channels"))
		return nil
	}

	printRow := func(device, room, channel, kind, flags string) {
		fmt.Printf("%s  %s  %s  %-18s  %s\n",
			padColumn(device, deviceWidth), padColumn(room, roomWidth), padColumn(channel, channelWidth), kind, flags)
	}
	printRow(bold("DEVICE"), bold("ROOM"), bold("CHANNEL"), bold("KIND"), bold("FLAGS"))
	for _, r := range rows {
		printRow(r.device, r.room, r.channel, r.kind, r.flags)
	}
	return nil
}

// padColumn right-pads s to width display columns, measuring width with
// runewidth so multi-byte device/room/channel names still line up.
func padColumn(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return s
	}
	return s + fmt.Sprintf("%*s", width-w, "")
}

func flagString(f lcpwire.ChannelFlags) string {
	out := ""
	if f&lcpwire.FlagReadable != 0 {
		out += "r"
	}
	if f&lcpwire.FlagWritable != 0 {
		out += "w"
	}
	if f&lcpwire.FlagSubscribable != 0 {
		out += "s"
	}
	if out == "" {
		return "-"
	}
	return out
}

func channelKindName(k lcpwire.ChannelKind) string {
	switch k {
	case lcpwire.KindActorLamp:
		return "actor-lamp"
	case lcpwire.KindActorWallSocket:
		return "actor-wall-socket"
	case lcpwire.KindActorRelay:
		return "actor-relay"
	case lcpwire.KindSensorTemperature:
		return "sensor-temperature"
	case lcpwire.KindSensorButton:
		return "sensor-button"
	case lcpwire.KindVolume:
		return "volume"
	case lcpwire.KindDeviceBorg:
		return "device-borg"
	default:
		return "other"
	}
}
