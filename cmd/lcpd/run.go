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

	"go.lab.dev/cand/internal/config"
	"go.lab.dev/cand/internal/driver"
	"go.lab.dev/cand/internal/driver/lampdriver"
	"go.lab.dev/cand/internal/lcpserver"
	"go.lab.dev/cand/internal/lcpwire"
	"go.lab.dev/cand/internal/tlsconf"
)

func newRunCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the LCP server",
		Long: `Starts lcpd: loads the room/device/channel topology, instantiates
a driver per configured channel, and serves the LCP wire protocol on the
configured listener.

Flags, environment variables, and config-file keys
  Flag         Env var          Config key
  ─────────────────────────────────────────
  --listen     LCPD_LISTEN      listen      (default "0.0.0.0:2342")
  --log-level  LCPD_LOG_LEVEL   log-level   (debug|info|warn|error)
  --log-format LCPD_LOG_FORMAT  log-format  (auto|text|json)
  --config     (flag only)

Config file search order (first found wins)
  /etc/lcpd/lcpd.toml
  $HOME/.config/lcpd/lcpd.toml
A path supplied via --config replaces this search.

Precedence: defaults → config file → LCPD_* env vars → CLI flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runServer(v) },
	}

	cmd.Flags().String("listen", "0.0.0.0:2342", "LCP listen address")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runServer(v *viper.Viper) error {
	setupLogging(v)
	log := slog.Default()

	cfg, err := config.LoadLCPConfig(v)
	if err != nil {
		return err
	}
	listen := v.GetString("listen")
	if cfg.Listen != "" {
		listen = cfg.Listen
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := driver.NewRegistry()
	reg.Register("lamp", lampdriver.Lamp{})

	builder := lcpserver.NewBuilder(log, reg)
	core, err := builder.Build(ctx, convertRooms(cfg.Rooms), convertDevices(cfg.Devices))
	if err != nil {
		return fmt.Errorf("building core: %w", err)
	}
	log.Info("topology loaded", "rooms", len(cfg.Rooms), "devices", len(cfg.Devices))

	tcpLn, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", listen, err)
	}

	var netLn net.Listener = tcpLn
	if cfg.TLS != nil {
		token := cfg.TLS.Token
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

	log.Info("lcpd listening", "addr", listen, "tls", cfg.TLS != nil)
	return core.ListenAndServe(ctx, netLn)
}

func convertRooms(rooms []config.RoomConfig) []lcpserver.RoomConfig {
	out := make([]lcpserver.RoomConfig, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, lcpserver.RoomConfig{ID: r.ID, DisplayName: r.DisplayName})
	}
	return out
}

func convertDevices(devices []config.DeviceConfig) []lcpserver.DeviceConfig {
	out := make([]lcpserver.DeviceConfig, 0, len(devices))
	for _, d := range devices {
		channels := make([]driver.ChannelConfig, 0, len(d.Channels))
		for _, ch := range d.Channels {
			opts := make(map[string]lcpwire.Value, len(ch.DriverOptions))
			for k, v := range ch.DriverOptions {
				opts[k] = lcpwire.NewValue(v)
			}
			channels = append(channels, driver.ChannelConfig{
				ID:            ch.ID,
				DisplayName:   ch.DisplayName,
				Room:          ch.Room,
				Kind:          channelKind(ch.Kind),
				DriverName:    ch.Driver,
				DriverOptions: opts,
			})
		}
		out = append(out, lcpserver.DeviceConfig{
			ID:          d.ID,
			DisplayName: d.DisplayName,
			WikiURL:     d.WikiURL,
			Channels:    channels,
		})
	}
	return out
}

func channelKind(s string) lcpwire.ChannelKind {
	switch s {
	case "actor-lamp":
		return lcpwire.KindActorLamp
	case "actor-wall-socket":
		return lcpwire.KindActorWallSocket
	case "actor-relay":
		return lcpwire.KindActorRelay
	case "sensor-temperature":
		return lcpwire.KindSensorTemperature
	case "sensor-button":
		return lcpwire.KindSensorButton
	case "volume":
		return lcpwire.KindVolume
	case "device-borg":
		return lcpwire.KindDeviceBorg
	default:
		return lcpwire.KindOther
	}
}
