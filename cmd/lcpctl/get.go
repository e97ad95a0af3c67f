package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"go.lab.dev/cand/internal/lcpwire"
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <device> <room> <channel>",
		Short: "Fetch a channel's current value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, args[0], args[1], args[2])
		},
	}
	addServerFlag(cmd)
	addTLSFlag(cmd)
	return cmd
}

func runGet(cmd *cobra.Command, device, room, channel string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	client, err := dial(ctx, cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	_, value, err := client.GetChannel(ctx, lcpwire.ID(device), lcpwire.ID(room), lcpwire.ID(channel))
	if err != nil {
		return err
	}
	fmt.Println(formatValue(value))
	return nil
}

func formatValue(v lcpwire.Value) string {
	return fmt.Sprintf("%v", v.Interface())
}
