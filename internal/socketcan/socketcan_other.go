//go:build !linux

package socketcan

import (
	"context"
	"fmt"
	"log/slog"

	"go.lab.dev/cand/internal/canbus"
)

// Uplink is a stub on non-Linux platforms: AF_CAN is a Linux-only address
// family, so the socketcan backend kind is unavailable there.
type Uplink struct{}

// Open always fails on platforms without AF_CAN.
func Open(ifname string, log *slog.Logger) (*Uplink, error) {
	return nil, fmt.Errorf("socketcan: unsupported on this platform")
}

func (u *Uplink) Read() <-chan canbus.Message { return nil }
func (u *Uplink) Sink() chan<- canbus.Message { return nil }
func (u *Uplink) Done() <-chan struct{}       { return nil }
func (u *Uplink) Run(ctx context.Context)     {}
