//go:build e2e

package e2e

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/testcontainers/testcontainers-go"
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func StripAnsi(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// LogManager collects the output of every container so tests can wait for a line to appear
type LogManager struct {
	mu      sync.Mutex
	history map[string]*strings.Builder
	// changed is closed and replaced whenever new output arrives
	changed chan struct{}
}

func NewLogManager() *LogManager {
	return &LogManager{
		history: make(map[string]*strings.Builder),
		changed: make(chan struct{}),
	}
}

func (m *LogManager) Accept(node string, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.history[node]
	if !ok {
		b = &strings.Builder{}
		m.history[node] = b
	}
	b.WriteString(content)
	close(m.changed)
	m.changed = make(chan struct{})
}

// Match reports whether the output of node matched, and returns a channel that is closed on the next write
func (m *LogManager) Match(node string, match func(string) bool) (bool, <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.history[node]; ok && match(b.String()) {
		return true, nil
	}
	return false, m.changed
}

func (m *LogManager) History(node string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.history[node]; ok {
		return b.String()
	}
	return ""
}

type UnifiedLogConsumer struct {
	Node    string
	Manager *LogManager
}

func (c *UnifiedLogConsumer) Accept(l testcontainers.Log) {
	content := StripAnsi(string(l.Content))
	fmt.Printf("[%s:%s] %s", c.Node, l.LogType, content)
	c.Manager.Accept(c.Node, content)
}
