//go:build e2e

package e2e

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/encodeous/rpld/state"
	"github.com/goccy/go-yaml"
)

const RplInstance = 1

type networkAllocator struct {
	mu   sync.Mutex
	next int
}

// GlobalNetworkAllocator hands out a distinct ULA /64 to every test so they can run in parallel
var GlobalNetworkAllocator = &networkAllocator{next: 1}

func (a *networkAllocator) Allocate() (subnet string, gateway string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.next
	a.next++
	return fmt.Sprintf("fd00:e2e:%x::/64", n), fmt.Sprintf("fd00:e2e:%x::1", n)
}

// GetIP returns the host with index idx inside subnet
func GetIP(subnet string, idx int) string {
	p := netip.MustParsePrefix(subnet)
	b := p.Addr().As16()
	b[14] = byte(idx >> 8)
	b[15] = byte(idx)
	return netip.AddrFrom16(b).String()
}

func findRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	rootDir := wd
	for {
		if _, err := os.Stat(filepath.Join(rootDir, "go.mod")); err == nil {
			return rootDir, nil
		}
		parent := filepath.Dir(rootDir)
		if parent == rootDir {
			return "", fmt.Errorf("could not find project root")
		}
		rootDir = parent
	}
}

// SetupTestDir creates a directory for the current test run
func (h *Harness) SetupTestDir() string {
	dir := filepath.Join(h.RootDir, "e2e", "runs", h.t.Name())
	os.RemoveAll(dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		h.t.Fatal(err)
	}
	return dir
}

// WriteConfig marshals the config to YAML and writes it to the specified directory with the given filename
func (h *Harness) WriteConfig(dir, filename string, cfg any) string {
	path := filepath.Join(dir, filename)
	data, err := yaml.Marshal(cfg)
	if err != nil {
		h.t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		h.t.Fatal(err)
	}
	return path
}

// LinkLocal returns the link-local address of eth0 inside a node, the source of its RPL messages
func (h *Harness) LinkLocal(nodeName string) string {
	stdout, _, err := h.Exec(nodeName, []string{"ip", "-6", "-o", "addr", "show", "dev", "eth0", "scope", "link"})
	if err != nil {
		h.t.Fatal(err)
	}
	fields := strings.Fields(stdout)
	for i, f := range fields {
		if f == "inet6" && i+1 < len(fields) {
			p, err := netip.ParsePrefix(fields[i+1])
			if err != nil {
				h.t.Fatal(err)
			}
			return p.Addr().String()
		}
	}
	h.t.Fatalf("no link-local address on %s: %s", nodeName, stdout)
	return ""
}

// Isolate drops all traffic between two nodes that share the bridge
func (h *Harness) Isolate(a, b string) {
	llA, llB := h.LinkLocal(a), h.LinkLocal(b)
	for _, rule := range [][]string{
		{a, llB},
		{b, llA},
	} {
		_, _, err := h.Exec(rule[0], []string{"ip6tables", "-A", "INPUT", "-s", rule[1], "-j", "DROP"})
		if err != nil {
			h.t.Fatal(err)
		}
	}
}

// SimpleLocal creates a node config that joins any instance
func SimpleLocal(id string, addr string) state.LocalCfg {
	return state.LocalCfg{
		Id:            id,
		Address:       netip.MustParseAddr(addr),
		InterfaceName: "eth0",
		CtlPath:       "/run/rpld.sock",
	}
}

// SimpleRoot creates a node config that is the root of RplInstance
func SimpleRoot(id string, addr string, prefix string) state.LocalCfg {
	cfg := SimpleLocal(id, addr)
	cfg.Instances = []state.InstanceCfg{
		{
			InstanceId:        RplInstance,
			Root:              true,
			Prefix:            netip.MustParsePrefix(prefix),
			PrefixFlags:       0x40,
			ValidLifetime:     0xFFFFFFFF,
			PreferredLifetime: 0xFFFFFFFF,
			Grounded:          true,
		},
	}
	return cfg
}
