// cand: CAN bus gateway daemon.
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
		Use:   "cand",
		Short: "CAN bus gateway daemon",
		Long: `cand bridges a local CAN segment — reached through a kernel CAN
interface or a legacy RS232-over-TCP uplink — to any number of remote
clients that observe or inject CAN frames, and to locally configured hook
programs triggered by frame-matching rules.`,
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
			fmt.Printf("cand %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
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
