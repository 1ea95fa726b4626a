//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/testcontainers/testcontainers-go"
	tcnetwork "github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	ImageName   = "rpld-debug:latest"
	WaitTimeout = 2 * time.Minute
)

type Harness struct {
	t          *testing.T
	mu         sync.Mutex
	ctx        context.Context
	Network    *testcontainers.DockerNetwork
	Nodes      map[string]testcontainers.Container
	LogManager *LogManager
	RootDir    string
	Subnet     string
	Gateway    string
}

// NewHarness creates a test harness on its own IPv6 bridge network
func NewHarness(t *testing.T) *Harness {
	ctx := context.Background()
	rootDir, err := findRoot()
	if err != nil {
		t.Fatal(err)
	}

	subnet, gateway := GlobalNetworkAllocator.Allocate()
	t.Logf("Allocated subnet: %s, gateway: %s", subnet, gateway)

	newNetwork, err := tcnetwork.New(ctx,
		tcnetwork.WithAttachable(),
		tcnetwork.WithDriver("bridge"),
		tcnetwork.WithEnableIPv6(),
		tcnetwork.WithIPAM(&network.IPAM{
			Driver: "default",
			Config: []network.IPAMConfig{
				{
					Subnet:  subnet,
					Gateway: gateway,
				},
			},
		}))
	if err != nil {
		t.Fatal(err)
	}
	h := &Harness{
		t:          t,
		ctx:        ctx,
		Network:    newNetwork,
		Nodes:      make(map[string]testcontainers.Container),
		LogManager: NewLogManager(),
		RootDir:    rootDir,
		Subnet:     subnet,
		Gateway:    gateway,
	}
	t.Cleanup(func() {
		h.Cleanup()
	})
	return h
}

type NodeSpec struct {
	Name           string
	IP             string
	NodeConfigPath string
}

func (h *Harness) StartNodes(specs ...NodeSpec) {
	var wg sync.WaitGroup
	wg.Add(len(specs))
	for _, spec := range specs {
		go func(s NodeSpec) {
			defer wg.Done()
			h.StartNode(s.Name, s.IP, s.NodeConfigPath)
		}(spec)
	}
	wg.Wait()
}

func (h *Harness) StartNode(name string, ip string, nodeConfigPath string) testcontainers.Container {
	h.t.Logf("Starting node %s at %s", name, ip)
	req := testcontainers.ContainerRequest{
		Image:    ImageName,
		Networks: []string{h.Network.Name},
		NetworkAliases: map[string][]string{
			h.Network.Name: {name},
		},
		Files: []testcontainers.ContainerFile{
			{
				HostFilePath:      nodeConfigPath,
				ContainerFilePath: "/app/config/node.yaml",
				FileMode:          0644,
			},
		},
		WaitingFor: wait.ForLog("rpld has been initialized").WithStartupTimeout(30 * time.Second),
		HostConfigModifier: func(hostConfig *container.HostConfig) {
			hostConfig.Privileged = true
			hostConfig.CapAdd = []string{"NET_ADMIN", "NET_RAW"}
			hostConfig.Sysctls = map[string]string{
				"net.ipv6.conf.all.disable_ipv6": "0",
				"net.ipv6.conf.all.forwarding":   "1",
			}
		},
		EndpointSettingsModifier: func(m map[string]*network.EndpointSettings) {
			if ip != "" {
				if s, ok := m[h.Network.Name]; ok {
					s.IPAMConfig = &network.EndpointIPAMConfig{
						IPv6Address: ip,
					}
				}
			}
		},
		LogConsumerCfg: &testcontainers.LogConsumerConfig{
			Consumers: []testcontainers.LogConsumer{
				&UnifiedLogConsumer{Node: name, Manager: h.LogManager},
			},
		},
		Name: h.t.Name() + "-" + name,
	}
	cont, err := testcontainers.GenericContainer(h.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		h.t.Fatalf("failed to start container %s: %v", name, err)
	}
	h.mu.Lock()
	h.Nodes[name] = cont
	h.mu.Unlock()
	return cont
}

func (h *Harness) WaitForLog(nodeName string, pattern string) {
	h.waitFor(nodeName, pattern, func(s string) bool {
		return strings.Contains(s, pattern)
	})
}

func (h *Harness) WaitForMatch(nodeName string, pattern string) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		h.t.Fatalf("invalid pattern %q: %v", pattern, err)
	}
	h.waitFor(nodeName, pattern, re.MatchString)
}

func (h *Harness) waitFor(nodeName string, pattern string, match func(string) bool) {
	timeout := time.After(WaitTimeout)
	for {
		ok, changed := h.LogManager.Match(nodeName, match)
		if ok {
			return
		}
		select {
		case <-changed:
		case <-timeout:
			h.t.Fatalf("timed out waiting for pattern %q in node %s", pattern, nodeName)
		case <-h.ctx.Done():
			h.t.Fatal("context canceled")
		}
	}
}

// Eventually runs cmd on a node until check accepts its output
func (h *Harness) Eventually(nodeName string, cmd []string, check func(stdout string) bool) string {
	deadline := time.Now().Add(WaitTimeout)
	var last string
	for time.Now().Before(deadline) {
		stdout, _, err := h.Exec(nodeName, cmd)
		last = stdout
		if err == nil && check(stdout) {
			return stdout
		}
		time.Sleep(time.Second)
	}
	h.t.Fatalf("%v on %s never satisfied the check, last output:\n%s", cmd, nodeName, last)
	return ""
}

func (h *Harness) Cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, c := range h.Nodes {
		if err := c.Terminate(h.ctx); err != nil {
			h.t.Logf("failed to terminate container %s: %v", name, err)
		}
	}
	if err := h.Network.Remove(context.Background()); err != nil {
		h.t.Logf("failed to remove network: %v", err)
	}
}

func (h *Harness) Exec(nodeName string, cmd []string) (string, string, error) {
	h.mu.Lock()
	c, ok := h.Nodes[nodeName]
	h.mu.Unlock()

	if !ok {
		return "", "", fmt.Errorf("node %s not found", nodeName)
	}

	code, r, err := c.Exec(h.ctx, cmd)
	if err != nil {
		return "", "", err
	}

	stdoutBuf := new(bytes.Buffer)
	stderrBuf := new(bytes.Buffer)

	// the exec stream multiplexes stdout and stderr
	_, err = stdcopy.StdCopy(stdoutBuf, stderrBuf, r)
	if err != nil {
		return "", "", fmt.Errorf("failed to copy output: %w", err)
	}

	stdout := StripAnsi(stdoutBuf.String())
	stderr := StripAnsi(stderrBuf.String())

	if code != 0 {
		return stdout, stderr, fmt.Errorf("command exited with code %d: %s\nStderr: %s", code, stdout, stderr)
	}

	return stdout, stderr, nil
}

func (h *Harness) PrintLogs(nodeName string) {
	h.mu.Lock()
	c, ok := h.Nodes[nodeName]
	h.mu.Unlock()
	if !ok {
		h.t.Logf("node %s not found for logging", nodeName)
		return
	}
	r, err := c.Logs(h.ctx)
	if err != nil {
		h.t.Logf("failed to get logs for %s: %v", nodeName, err)
		return
	}
	buf := new(bytes.Buffer)
	_, _ = io.Copy(buf, r)
	h.t.Logf("Logs for %s:\n%s", nodeName, buf.String())
}
