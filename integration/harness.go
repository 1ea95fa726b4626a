//go:build integration

package integration

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"runtime/pprof"
	"slices"
	"time"

	"github.com/encodeous/rpld/core"
	"github.com/encodeous/rpld/state"
)

type Signal chan bool

func NewSignal() Signal {
	return make(chan bool)
}
func (s Signal) Trigger() {
	select {
	case <-s:
	default:
		close(s)
	}
}
func (s Signal) Triggered() bool {
	select {
	case <-s:
		return true
	default:
		return false
	}
}
func (s Signal) Wait() {
	<-s
}

const HarnessInstance = 1

var HarnessPrefix = netip.MustParsePrefix("2001:db8::/64")

// VirtualHarness runs complete rpld nodes on top of a core.VirtualNetwork
type VirtualHarness struct {
	Local  []state.LocalCfg
	Net    *core.VirtualNetwork
	States []*state.State
}

func (v *VirtualHarness) IndexOf(id string) int {
	return slices.IndexFunc(v.Local, func(cfg state.LocalCfg) bool {
		return cfg.Id == id
	})
}

func (v *VirtualHarness) Addr(id string) netip.Addr {
	return v.Local[v.IndexOf(id)].Address
}

// NewNode adds a node that joins any instance it hears about
func (v *VirtualHarness) NewNode(id string, addr string) {
	v.Local = append(v.Local, state.LocalCfg{
		Id:             id,
		Address:        netip.MustParseAddr(addr),
		NoNetConfigure: true,
	})
}

// NewRoot adds the root of HarnessInstance
func (v *VirtualHarness) NewRoot(id string, addr string) {
	v.Local = append(v.Local, state.LocalCfg{
		Id:             id,
		Address:        netip.MustParseAddr(addr),
		NoNetConfigure: true,
		Instances: []state.InstanceCfg{
			{
				InstanceId:        HarnessInstance,
				Root:              true,
				Prefix:            HarnessPrefix,
				PrefixFlags:       0x40,
				ValidLifetime:     0xFFFFFFFF,
				PreferredLifetime: 0xFFFFFFFF,
				Grounded:          true,
			},
		},
	})
}

// Connect links two nodes in both directions
func (v *VirtualHarness) Connect(a, b string) (*core.VirtualLink, *core.VirtualLink) {
	return v.Net.Connect(v.Addr(a), v.Addr(b))
}

func (v *VirtualHarness) Disconnect(a, b string) {
	v.Net.Disconnect(v.Addr(a), v.Addr(b))
}

// Router returns the router module of a running node
func (v *VirtualHarness) Router(id string) *core.RplRouter {
	return core.Get[*core.RplRouter](v.States[v.IndexOf(id)])
}

// Prepare creates the virtual network, links may be added before Start
func (v *VirtualHarness) Prepare() {
	if v.Net == nil {
		v.Net = core.NewVirtualNetwork()
	}
}

func (v *VirtualHarness) Start() chan error {
	v.Prepare()
	v.States = make([]*state.State, len(v.Local))
	errChan := make(chan error, 128)

	for idx, cfg := range v.Local {
		err := state.NodeConfigValidator(&cfg)
		if err != nil {
			errChan <- fmt.Errorf("node %s: %w", cfg.Id, err)
			return errChan
		}
		transport := v.Net.Attach(cfg.Address)
		go func() {
			labels := pprof.Labels("rpld node", cfg.Id)
			pprof.Do(context.Background(), labels, func(_ context.Context) {
				cErr := core.Start(cfg, slog.LevelDebug, map[string]any{
					"transport": transport,
				}, &v.States[idx])
				if cErr != nil {
					errChan <- cErr
				}
			})
		}()
		// wait for the node to start before the next one, so that States is never read while being written
		for v.States[idx] == nil || !v.States[idx].Started.Load() {
			select {
			case err := <-errChan:
				errChan <- err
				return errChan
			case <-time.After(time.Millisecond * 10):
			}
		}
	}
	return errChan
}

func (v *VirtualHarness) Stop() {
	for _, s := range v.States {
		if s != nil {
			core.Stop(s)
		}
	}
	// wait for every main loop to finish cleaning up
	for _, s := range v.States {
		if s != nil {
			<-s.Context.Done()
		}
	}
	if v.Net != nil {
		v.Net.Stop()
	}
}

// Eventually polls cond until it holds or the timeout elapses
func Eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return cond()
}
