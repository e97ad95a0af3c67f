package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.lab.dev/cand/internal/canclient"
	"go.lab.dev/cand/internal/config"
	"go.lab.dev/cand/internal/hook"
	"go.lab.dev/cand/internal/legacycan"
	"go.lab.dev/cand/internal/reactor"
	"go.lab.dev/cand/internal/socketcan"
	"go.lab.dev/cand/internal/tlsconf"
)

func newRunCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the CAN gateway daemon",
		Long: `Starts cand: connects to the configured uplink, opens every
configured client listener, registers the configured hooks, and fans CAN
traffic between them.

Flags, environment variables, and config-file keys
  Flag        Env var        Config key
  ──────────────────────────────────────
  --log-level CAND_LOG_LEVEL log-level    (debug|info|warn|error)
  --log-format CAND_LOG_FORMAT log-format (auto|text|json)
  --config    (flag only)

Config file search order (first found wins)
  /etc/cand/cand.toml
  $HOME/.config/cand/cand.toml
A path supplied via --config replaces this search.

Precedence: defaults → config file → CAND_* env vars → CLI flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runDaemon(v) },
	}

	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runDaemon(v *viper.Viper) error {
	setupLogging(v)
	log := slog.Default()

	cfg, err := config.LoadDaemonConfig(v)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r := reactor.New(log)
	go r.Run(ctx)

	if err := startUplink(ctx, log, r, cfg.Backend); err != nil {
		return fmt.Errorf("uplink: %w", err)
	}

	if len(cfg.Hook) > 0 {
		engine := hook.New(log, cfg.Hook)
		engine.Start(ctx, r)
		log.Info("hooks registered", "count", len(cfg.Hook))
	}

	for _, ln := range cfg.Listen {
		if err := startListener(ctx, log, r, ln); err != nil {
			return fmt.Errorf("listen %s: %w", ln.Bind, err)
		}
	}

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func startUplink(ctx context.Context, log *slog.Logger, r *reactor.Reactor, backend config.BackendConfig) error {
	switch backend.Kind {
	case "socketcan":
		up, err := socketcan.Open(backend.Interface, log)
		if err != nil {
			return err
		}
		go up.Run(ctx)
		r.RegisterUplink(up.Read(), up.Sink(), up.Done())
		log.Info("uplink connected", "kind", "socketcan", "interface", backend.Interface)
		return nil

	case "net":
		up, err := legacycan.Dial(ctx, log, backend.Connect)
		if err != nil {
			return err
		}
		go up.Run(ctx)
		r.RegisterUplink(up.Read(), up.Sink(), up.Done())
		log.Info("uplink connected", "kind", "net", "connect", backend.Connect)
		return nil

	default:
		return fmt.Errorf("unknown backend kind %q", backend.Kind)
	}
}

func startListener(ctx context.Context, log *slog.Logger, r *reactor.Reactor, ln config.ListenConfig) error {
	if ln.Kind != "tcp" {
		return fmt.Errorf("unknown listen kind %q", ln.Kind)
	}

	tcpLn, err := net.Listen("tcp", ln.Bind)
	if err != nil {
		return err
	}

	var netLn net.Listener = tcpLn
	if ln.TLS != nil {
		token := ln.TLS.Token
		if token == "" {
			token = tlsconf.DefaultToken
		}
		serverCfg, _, err := tlsconf.ServerConfig(token)
		if err != nil {
			tcpLn.Close()
			return fmt.Errorf("tls: %w", err)
		}
		netLn = tls.NewListener(tcpLn, serverCfg)
	}

	log.Info("client listener open", "bind", ln.Bind, "tls", ln.TLS != nil)
	go func() {
		if err := canclient.ListenAndServe(ctx, log, r, netLn); err != nil {
			log.Error("client listener stopped", "bind", ln.Bind, "error", err)
		}
	}()
	return nil
}
