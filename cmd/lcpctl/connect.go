package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"go.lab.dev/cand/internal/lcpclient"
	"go.lab.dev/cand/internal/tlsconf"
)

func addTLSFlag(cmd *cobra.Command) {
	cmd.Flags().String("tls-token", "", "enable TLS with this shared token (matches lcpd's [tls] stanza)")
}

// dial connects to the server named by the --server flag, showing a
// "connecting…" spinner while the handshake is in flight if stdout is a
// terminal. The spinner is purely cosmetic: dialing and the handshake run
// identically whether or not it is shown.
func dial(ctx context.Context, cmd *cobra.Command) (*lcpclient.Client, error) {
	addr, err := cmd.Flags().GetString("server")
	if err != nil {
		return nil, err
	}
	token, _ := cmd.Flags().GetString("tls-token")

	var spin *spinner.Spinner
	if isatty.IsTerminal(os.Stdout.Fd()) {
		spin = spinner.New(spinner.CharSets[11], 80*time.Millisecond)
		spin.Suffix = fmt.Sprintf(" connecting to %s", addr)
		spin.Start()
		defer spin.Stop()
	}

	if token == "" {
		client, err := lcpclient.Connect(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", addr, err)
		}
		return client, nil
	}

	tlsCfg, err := tlsconf.ClientConfig(token)
	if err != nil {
		return nil, fmt.Errorf("tls: %w", err)
	}
	client, err := lcpclient.ConnectTLS(ctx, addr, tlsCfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return client, nil
}
