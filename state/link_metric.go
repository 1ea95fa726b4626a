package state

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/digineo/go-ping"
)

// LinkMetrics provides an ETX-like metric for each neighbour. 1 is a perfect link, 0 means unknown.
type LinkMetrics interface {
	MetricFor(addr netip.Addr) float64 // MetricFor does not block
	Track(addr netip.Addr)             // Track adds a neighbour to be measured
	Start(log *slog.Logger)            // Start begins any background measurement
	Stop()
}

// StaticLinkMetrics reports fixed metrics, configured per neighbour
type StaticLinkMetrics struct {
	Default    float64                `yaml:"default,omitempty"`
	Neighbours map[netip.Addr]float64 `yaml:"neighbours,omitempty"`
}

func (s *StaticLinkMetrics) MetricFor(addr netip.Addr) float64 {
	if m, ok := s.Neighbours[addr]; ok {
		return m
	}
	return s.Default
}

func (s *StaticLinkMetrics) Track(addr netip.Addr) {
	// do nothing
}

func (s *StaticLinkMetrics) Start(log *slog.Logger) {
	// do nothing
}

func (s *StaticLinkMetrics) Stop() {
	// do nothing
}

// PingLinkMetrics measures the round trip time to every tracked neighbour with ICMP echo
type PingLinkMetrics struct {
	BindIf      string         `yaml:"bind_if,omitempty"`      // local interface to bind to
	MaxFailures *int           `yaml:"max_failures,omitempty"` // number of attempts per probe
	Delay       *time.Duration `yaml:"delay,omitempty"`        // delay between probes
	// RttUnit is the round trip time that counts as one extra expected transmission
	RttUnit *time.Duration `yaml:"rtt_unit,omitempty"`

	mu      sync.Mutex
	metrics map[netip.Addr]float64
	running atomic.Bool
}

func (p *PingLinkMetrics) MetricFor(addr netip.Addr) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics[addr]
}

func (p *PingLinkMetrics) Track(addr netip.Addr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.metrics == nil {
		p.metrics = make(map[netip.Addr]float64)
	}
	if _, ok := p.metrics[addr]; !ok {
		p.metrics[addr] = 0
	}
}

func (p *PingLinkMetrics) tracked() []netip.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]netip.Addr, 0, len(p.metrics))
	for addr := range p.metrics {
		out = append(out, addr)
	}
	slices.SortFunc(out, netip.Addr.Compare)
	return out
}

func (p *PingLinkMetrics) set(addr netip.Addr, metric float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics[addr] = metric
}

func (p *PingLinkMetrics) Stop() {
	p.running.Swap(false)
}

// RttToMetric maps a round trip time onto the ETX scale
func RttToMetric(rtt, unit time.Duration) float64 {
	if unit <= 0 {
		unit = RttMetricUnit
	}
	return min(MaxLinkMetric, 1+float64(rtt)/float64(unit))
}

func GetIfIP(itf string, is6 bool) (string, error) {
	ifp, err := net.InterfaceByName(itf)
	if err != nil {
		return "", err
	}

	addrs, err := ifp.Addrs()
	if err != nil {
		return "", err
	}

	for _, address := range addrs {
		addr := netip.MustParsePrefix(address.String()).Addr()
		if addr.Is6() && is6 {
			return addr.String(), nil
		}
		if addr.Is4() && !is6 {
			return addr.String(), nil
		}
	}
	return "", fmt.Errorf("no address found for interface %s", itf)
}

func (p *PingLinkMetrics) Start(log *slog.Logger) {
	p.running.Swap(true)
	if p.Delay == nil {
		p.Delay = &LinkProbeDelay
	}
	if p.MaxFailures == nil {
		p.MaxFailures = &LinkProbeMaxFailures
	}
	if p.RttUnit == nil {
		p.RttUnit = &RttMetricUnit
	}
	go func() {
		ticker := time.NewTicker(*p.Delay)
		defer ticker.Stop()
		for p.running.Load() {
			bind6 := "::"
			var err error
			if p.BindIf != "" {
				bind6, err = GetIfIP(p.BindIf, true)
			}
			if err != nil {
				log.Error("failed to get bind address", "error", err)
				<-ticker.C
				continue
			}
			pinger, err := ping.New("", bind6)
			if err != nil {
				log.Error("failed to start pinger", "error", err)
				<-ticker.C
				continue
			}
			for p.running.Load() {
				<-ticker.C
				failed := false
				for _, neigh := range p.tracked() {
					addr := &net.IPAddr{IP: net.IP(neigh.AsSlice()), Zone: neigh.Zone()}
					rtt, err := pinger.PingAttempts(addr, time.Duration(int64(*p.Delay)/int64(*p.MaxFailures)), *p.MaxFailures)
					if err != nil {
						p.set(neigh, MaxLinkMetric)
						log.Debug("link probe failed", "neigh", neigh, "error", err)
						failed = true
						continue
					}
					p.set(neigh, RttToMetric(rtt, *p.RttUnit))
				}
				if failed {
					pinger.Close()
					break // recreate pinger
				}
			}
		}
	}()
}

type LinkMetricsWrapper struct {
	LinkMetrics
}

func (w LinkMetricsWrapper) MarshalYAML() (interface{}, error) {
	switch v := w.LinkMetrics.(type) {
	case *StaticLinkMetrics:
		return struct {
			Type               string `yaml:"type"`
			*StaticLinkMetrics `yaml:",inline"`
		}{
			Type:              "static",
			StaticLinkMetrics: v,
		}, nil
	case *PingLinkMetrics:
		return struct {
			Type             string `yaml:"type"`
			*PingLinkMetrics `yaml:",inline"`
		}{
			Type:            "ping",
			PingLinkMetrics: v,
		}, nil
	default:
		return nil, nil
	}
}

func (w *LinkMetricsWrapper) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw struct {
		Type string `yaml:"type"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}

	switch raw.Type {
	case "static":
		var sm StaticLinkMetrics
		if err := unmarshal(&sm); err != nil {
			return err
		}
		w.LinkMetrics = &sm
	case "ping":
		var pm PingLinkMetrics
		if err := unmarshal(&pm); err != nil {
			return err
		}
		w.LinkMetrics = &pm
	default:
		return fmt.Errorf("unknown link metric type %q", raw.Type)
	}
	return nil
}
