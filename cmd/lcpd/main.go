// lcpd: LCP server — exposes rooms, devices and channels over the LCP
// wire protocol, backed by pluggable channel drivers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.lab.dev/cand/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "lcpd",
		Short: "LCP home-automation control-plane server",
		Long: `lcpd exposes a typed "channel" control protocol over TCP:
clients list rooms/devices/channels and get/set/subscribe to their values.
Channel backends are implemented by pluggable drivers that ultimately
speak to devices through the CAN gateway (cand).`,
		SilenceUsage: true,
	}

	root.AddCommand(newRunCmd(), newVersionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("lcpd %s\n", Version)
		},
	}
}

func resolveLogging(interactive bool, formatStr, levelStr string) {
	format := logging.ParseFormat(formatStr)
	level := logging.ParseLevel(levelStr)
	if levelStr == "" {
		if interactive {
			level = logging.ParseLevel("debug")
		} else {
			level = logging.ParseLevel("info")
		}
	}
	logging.Setup(format, level)
}
