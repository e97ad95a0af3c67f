// Package hook implements the hook engine: a list of conjunctive-predicate
// rules matched against every CAN frame passing through the bus, each
// spawning a child process on match (after an optional delay and subject
// to a per-rule cooldown), with the child's stdout read as a small control
// grammar that can inject further frames back onto the bus.
package hook

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.lab.dev/cand/internal/canaddr"
	"go.lab.dev/cand/internal/canbus"
	"go.lab.dev/cand/internal/reactor"
)

// Rule is one hook declaration. Every non-nil predicate field must match
// for the rule to fire; a nil field matches anything.
type Rule struct {
	SrcAddr *uint8 `mapstructure:"src-addr"`
	SrcPort *uint8 `mapstructure:"src-port"`
	DstAddr *uint8 `mapstructure:"dst-addr"`
	DstPort *uint8 `mapstructure:"dst-port"`
	Payload []byte `mapstructure:"payload"`

	Run []string `mapstructure:"run"`

	CooldownMS uint64 `mapstructure:"cooldown"`
	DelayMS    uint64 `mapstructure:"delay"`
}

func (r Rule) matches(p canaddr.Packet) bool {
	if r.SrcAddr != nil && *r.SrcAddr != uint8(p.Src.Addr) {
		return false
	}
	if r.DstAddr != nil && *r.DstAddr != uint8(p.Dst.Addr) {
		return false
	}
	if r.SrcPort != nil && *r.SrcPort != uint8(p.Src.Port) {
		return false
	}
	if r.DstPort != nil && *r.DstPort != uint8(p.Dst.Port) {
		return false
	}
	if r.Payload != nil && !bytes.Equal(r.Payload, p.Payload) {
		return false
	}
	return true
}

// Engine owns the rule list and the per-rule cooldown state. It registers
// itself with a reactor as an ordinary non-uplink client: it reads every
// fanned-out frame and, on match, eventually writes frames of its own back
// onto the bus via spawned children's stdout.
type Engine struct {
	log *slog.Logger

	rules []Rule

	mu            sync.Mutex
	lastActivated []time.Time // zero Time means "never"

	sink chan<- canbus.Message
}

// New constructs an Engine for the given rule set. Start registers it with
// a reactor; New alone does nothing.
func New(log *slog.Logger, rules []Rule) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{log: log, rules: rules, lastActivated: make([]time.Time, len(rules))}
}

// Start registers the engine with r as a client peer and returns its
// reactor handle. Cancelling ctx stops the engine and all hooks it has in
// flight.
func (e *Engine) Start(ctx context.Context, r *reactor.Reactor) reactor.Key {
	in := make(chan canbus.Message, 16)
	out := make(chan canbus.Message, 16)
	done := make(chan struct{})
	e.sink = out

	go func() {
		defer close(done)
		e.run(ctx, in)
	}()

	return r.RegisterClient(in, out, done)
}

func (e *Engine) run(ctx context.Context, in <-chan canbus.Message) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			if msg.Kind != canbus.KindFrame {
				continue
			}
			for i, rule := range e.rules {
				if !rule.matches(msg.Frame) {
					continue
				}
				wg.Add(1)
				go func(i int, rule Rule, frame canaddr.Packet) {
					defer wg.Done()
					e.fire(ctx, i, rule, frame)
				}(i, rule, msg.Frame.Clone())
			}
		}
	}
}

func (e *Engine) fire(ctx context.Context, ruleIdx int, rule Rule, frame canaddr.Packet) {
	if rule.DelayMS > 0 {
		e.log.Info("hook execution pending", "delay_ms", rule.DelayMS)
		select {
		case <-time.After(time.Duration(rule.DelayMS) * time.Millisecond):
		case <-ctx.Done():
			return
		}
	}

	if !e.takeCooldown(ruleIdx, rule) {
		e.log.Debug("hook cooldown still pending", "rule", ruleIdx)
		return
	}

	e.spawn(ctx, rule, frame)
}

// takeCooldown reports whether the rule may fire now, and if so records the
// activation time. The lock is held only across the compare-and-update, not
// across process spawn, so a slow child never blocks other hooks.
func (e *Engine) takeCooldown(ruleIdx int, rule Rule) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if last := e.lastActivated[ruleIdx]; !last.IsZero() && rule.CooldownMS > 0 {
		if time.Since(last) < time.Duration(rule.CooldownMS)*time.Millisecond {
			return false
		}
	}
	e.lastActivated[ruleIdx] = time.Now()
	return true
}

func (e *Engine) spawn(ctx context.Context, rule Rule, frame canaddr.Packet) {
	if len(rule.Run) == 0 {
		return
	}
	e.log.Info("hook run", "cmd", rule.Run)

	cmd := exec.CommandContext(ctx, rule.Run[0], rule.Run[1:]...)
	cmd.Env = append(cmd.Environ(),
		fmt.Sprintf("CAN_SRC_ADDR=%x", uint8(frame.Src.Addr)),
		fmt.Sprintf("CAN_DST_ADDR=%x", uint8(frame.Dst.Addr)),
		fmt.Sprintf("CAN_SRC_PORT=%x", uint8(frame.Src.Port)),
		fmt.Sprintf("CAN_DST_PORT=%x", uint8(frame.Dst.Port)),
		fmt.Sprintf("CAN_PAYLOAD=%s", hexPayload(frame.Payload)),
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		e.log.Error("failed to run hook command", "error", err)
		return
	}
	if err := cmd.Start(); err != nil {
		e.log.Error("failed to run hook command", "error", err)
		return
	}

	e.readControl(stdout)

	if err := cmd.Wait(); err != nil {
		e.log.Warn("hook command exited with error", "error", err)
	}
}

func hexPayload(payload []byte) string {
	var sb strings.Builder
	for _, b := range payload {
		fmt.Fprintf(&sb, "%x", b)
	}
	return sb.String()
}

// readControl reads the control grammar from a hook child's stdout, one
// command per line, and injects any resulting frames into the bus.
func (e *Engine) readControl(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		frame, err := parseControlLine(line)
		if err != nil {
			e.log.Warn("hook script control error", "error", err, "line", line)
			continue
		}
		if frame == nil {
			continue
		}
		select {
		case e.sink <- canbus.NewFrame(*frame):
		default:
			e.log.Warn("hook outbound queue full, dropping frame")
		}
	}
}

// parseControlLine parses one line of the hook control grammar:
//
//	send [-s|--source SRC] DEST PAYLOAD
//
// SRC and DEST are "addr:port" hex pairs (SRC defaults to 00:00), and
// PAYLOAD is a hex string. A line that isn't a recognized command returns
// (nil, nil) and is silently ignored.
func parseControlLine(line string) (*canaddr.Packet, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	if fields[0] != "send" {
		return nil, nil
	}
	fields = fields[1:]

	src := canaddr.Endpoint{}
	for len(fields) > 0 && (fields[0] == "-s" || fields[0] == "--source") {
		if len(fields) < 2 {
			return nil, errors.New("send: -s/--source requires a value")
		}
		ep, err := canaddr.ParseEndpoint(fields[1])
		if err != nil {
			return nil, fmt.Errorf("send: %w", err)
		}
		src = ep
		fields = fields[2:]
	}

	if len(fields) != 2 {
		return nil, fmt.Errorf("send: expected DESTINATION and PAYLOAD, got %d args", len(fields))
	}

	dst, err := canaddr.ParseEndpoint(fields[0])
	if err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	payload, err := hex.DecodeString(fields[1])
	if err != nil {
		return nil, fmt.Errorf("send: invalid payload hex: %w", err)
	}

	pkt, err := canaddr.NewPacket(src, dst, payload)
	if err != nil {
		return nil, err
	}
	return &pkt, nil
}
