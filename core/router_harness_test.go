package core

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"net/netip"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/encodeous/rpld/protocol"
	"github.com/encodeous/rpld/state"
	gocmp "github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

type outMsg struct {
	dst netip.Addr
	msg protocol.Message
}

// RouterHarness implements Router with a manual clock and records every side effect
type RouterHarness struct {
	now     time.Time
	actions []HarnessEvent
	timers  map[state.TimerKey]time.Time
	metrics map[netip.Addr]float64
	kernel  map[netip.Prefix]netip.Addr
	outbox  []outMsg
}

func NewHarness() *RouterHarness {
	return &RouterHarness{
		now:     time.Unix(1_700_000_000, 0),
		timers:  make(map[state.TimerKey]time.Time),
		metrics: make(map[netip.Addr]float64),
		kernel:  make(map[netip.Prefix]netip.Addr),
	}
}

func (h *RouterHarness) Send(dst netip.Addr, msg protocol.Message) {
	h.actions = append(h.actions, MakeEvent("SEND", dst, msg))
	h.outbox = append(h.outbox, outMsg{dst: dst, msg: msg})
}

func (h *RouterHarness) Schedule(key state.TimerKey, at time.Time) {
	h.timers[key] = at
}

func (h *RouterHarness) Cancel(key state.TimerKey) {
	delete(h.timers, key)
}

func (h *RouterHarness) Now() time.Time {
	return h.now
}

func (h *RouterHarness) LinkMetric(addr netip.Addr) float64 {
	return h.metrics[addr]
}

func (h *RouterHarness) TableInsertRoute(target netip.Prefix, nextHop netip.Addr) {
	h.kernel[target] = nextHop
	h.actions = append(h.actions, MakeEvent("INSTALL", target, nextHop))
}

func (h *RouterHarness) TableDeleteRoute(target netip.Prefix) {
	delete(h.kernel, target)
	h.actions = append(h.actions, MakeEvent("UNINSTALL", target))
}

func (h *RouterHarness) Log(event RouterEvent, desc string, args ...any) {
	x := make([]any, 0)
	x = append(x, event)
	x = append(x, desc)
	x = append(x, args...)
	h.actions = append(h.actions, MakeEvent("LOG", x...))
}

// Timer returns the deadline of a pending timer
func (h *RouterHarness) Timer(key state.TimerKey) (time.Time, bool) {
	at, ok := h.timers[key]
	return at, ok
}

func (h *RouterHarness) nextTimer() (state.TimerKey, time.Time, bool) {
	keys := make([]state.TimerKey, 0, len(h.timers))
	for k := range h.timers {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return state.TimerKey{}, time.Time{}, false
	}
	slices.SortFunc(keys, func(a, b state.TimerKey) int {
		if c := h.timers[a].Compare(h.timers[b]); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Instance, b.Instance); c != 0 {
			return c
		}
		return cmp.Compare(a.Kind, b.Kind)
	})
	return keys[0], h.timers[keys[0]], true
}

// Advance moves the clock forward, firing due timers in deadline order
func (h *RouterHarness) Advance(s *state.RouterState, d time.Duration) []error {
	end := h.now.Add(d)
	var errs []error
	for {
		key, at, ok := h.nextTimer()
		if !ok || at.After(end) {
			break
		}
		delete(h.timers, key)
		if at.After(h.now) {
			h.now = at
		}
		if err := HandleTimer(s, h, key); err != nil {
			errs = append(errs, err)
		}
	}
	h.now = end
	return errs
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

// GetActions returns and clears the recorded side effects, excluding logs
func (h *RouterHarness) GetActions() HarnessEvents {
	x := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message != "LOG" {
			x = append(x, action)
		}
	}

	h.actions = make([]HarnessEvent, 0)
	h.outbox = nil
	return x
}

// GetLogs returns and clears the recorded router events
func (h *RouterHarness) GetLogs() HarnessEvents {
	x := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message == "LOG" {
			x = append(x, action)
		}
	}
	h.actions = make([]HarnessEvent, 0)
	h.outbox = nil
	return x
}

// Sent returns the messages of the given code recorded since the last GetActions
func (h *RouterHarness) Sent(code protocol.Code) []outMsg {
	var out []outMsg
	for _, m := range h.outbox {
		if m.msg.Code() == code {
			out = append(out, m)
		}
	}
	return out
}

var harnessCmpOpts = []gocmp.Option{
	cmpopts.EquateComparable(netip.Prefix{}, netip.Addr{}),
	cmpopts.EquateEmpty(),
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message == msg {
			if len(event.Args) >= len(args) {
				match := true
				for i, arg := range args {
					if !gocmp.Equal(event.Args[i], arg, harnessCmpOpts...) {
						match = false
						break
					}
				}
				if match {
					return true
				}
			}
		}
	}
	return false
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in ", e)
	}
}

func addr(s string) netip.Addr {
	return netip.MustParseAddr(s)
}

var testPrefix = netip.MustParsePrefix("2001:db8::/64")

// NewNode creates the router state of a node that accepts any instance
func NewNode(address string) *state.RouterState {
	cfg := &state.LocalCfg{
		Id:      address,
		Address: addr(address),
	}
	return state.NewRouterState(address, addr(address), cfg, rand.New(rand.NewPCG(1, 2)))
}

func rootCfg() *state.InstanceCfg {
	return &state.InstanceCfg{
		InstanceId: 1,
		Root:       true,
		Prefix:     testPrefix,
		Grounded:   true,
	}
}

// NewRoot creates a node that is root of instance 1, advertising testPrefix
func NewRoot(t *testing.T, h *RouterHarness, address string) *state.RouterState {
	t.Helper()
	s := NewNode(address)
	s.Cfg.Instances = []state.InstanceCfg{*rootCfg()}
	if err := InitRoot(s, h, rootCfg()); err != nil {
		t.Fatal(err)
	}
	h.GetActions()
	return s
}

// MakeDIO builds a DIO of instance 1 in storing mode with OF0 and the default configuration
func MakeDIO(version uint8, rank state.Rank, dodag string) *protocol.DIO {
	return &protocol.DIO{
		InstanceId: 1,
		Version:    version,
		Rank:       uint16(rank),
		Grounded:   true,
		Mop:        protocol.MopStoringNoMcast,
		Dtsn:       state.SequenceInit,
		DodagId:    addr(dodag),
		Options: protocol.Options{
			dodagConfigOption(state.DefaultDodagConfig()),
			&protocol.PrefixInfoOption{
				PrefixLength:      64,
				Flags:             0x40,
				ValidLifetime:     0xFFFFFFFF,
				PreferredLifetime: 0xFFFFFFFF,
				Prefix:            testPrefix.Addr(),
			},
		},
	}
}

func MakeDAO(seq uint8, ack bool, lifetime uint8, targets ...string) *protocol.DAO {
	opts := protocol.Options{}
	for _, t := range targets {
		p := netip.MustParsePrefix(t)
		opts = append(opts, &protocol.TargetOption{PrefixLength: uint8(p.Bits()), Target: p.Addr()})
	}
	opts = append(opts, &protocol.TransitOption{PathSequence: seq, PathLifetime: lifetime})
	return &protocol.DAO{
		InstanceId: 1,
		Ack:        ack,
		Sequence:   seq,
		Options:    opts,
	}
}
