// lcpctl: command-line client for the LCP control protocol.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "lcpctl",
		Short: "LCP control protocol client",
		Long: `lcpctl talks the LCP wire protocol to a running lcpd, listing
rooms/devices/channels and getting or setting channel values.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newShowChannelsCmd(),
		newListCmd(),
		newSetCmd(),
		newGetCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lcpctl:", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("lcpctl %s\n", Version)
		},
	}
}

func addServerFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("server", "s", "cand:2342", "lcpd address, host:port")
}
