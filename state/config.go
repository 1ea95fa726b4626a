package state

import (
	"net/netip"
	"slices"

	"github.com/encodeous/rpld/protocol"
)

// InstanceCfg configures an RPL instance. Roots create the DODAG, other nodes only use it to restrict which instances they join.
type InstanceCfg struct {
	InstanceId        uint8        `yaml:"instance_id"`
	Root              bool         `yaml:"root,omitempty"`
	DodagId           netip.Addr   `yaml:"dodag_id"`                     // defaults to the node address
	Prefix            netip.Prefix `yaml:"prefix"`                       // prefix advertised in the Prefix Information option
	PrefixFlags       uint8        `yaml:"prefix_flags,omitempty"`       // L|A|R flags of the Prefix Information option
	ValidLifetime     uint32       `yaml:"valid_lifetime,omitempty"`     // seconds, 0xFFFFFFFF is infinite
	PreferredLifetime uint32       `yaml:"preferred_lifetime,omitempty"` // seconds, 0xFFFFFFFF is infinite
	OCP               uint16       `yaml:"ocp,omitempty"`                // objective code point, 0 = OF0, 1 = MRHOF
	Mop               *uint8       `yaml:"mop,omitempty"`                // mode of operation, defaults to storing mode without multicast (2)
	Preference        uint8        `yaml:"preference,omitempty"`         // DODAG preference, 0 (least) to 7
	Grounded          bool         `yaml:"grounded,omitempty"`

	DioIntervalMin       *uint8  `yaml:"dio_interval_min,omitempty"`
	DioIntervalDoublings *uint8  `yaml:"dio_interval_doublings,omitempty"`
	DioRedundancy        *uint8  `yaml:"dio_redundancy,omitempty"`
	MinHopRankIncrease   *uint16 `yaml:"min_hop_rank_increase,omitempty"`
	MaxRankIncrease      *uint16 `yaml:"max_rank_increase,omitempty"`
	DefaultLifetime      *uint8  `yaml:"default_lifetime,omitempty"`
	LifetimeUnit         *uint16 `yaml:"lifetime_unit,omitempty"`
}

// DodagConfig applies the configured overrides on top of the defaults
func (c *InstanceCfg) DodagConfig() DodagConfig {
	cfg := DefaultDodagConfig()
	cfg.OCP = c.OCP
	if c.DioIntervalMin != nil {
		cfg.IntervalMin = *c.DioIntervalMin
	}
	if c.DioIntervalDoublings != nil {
		cfg.IntervalDoublings = *c.DioIntervalDoublings
	}
	if c.DioRedundancy != nil {
		cfg.Redundancy = *c.DioRedundancy
	}
	if c.MinHopRankIncrease != nil {
		cfg.MinHopRankIncrease = *c.MinHopRankIncrease
	}
	if c.MaxRankIncrease != nil {
		cfg.MaxRankIncrease = *c.MaxRankIncrease
	}
	if c.DefaultLifetime != nil {
		cfg.DefaultLifetime = *c.DefaultLifetime
	}
	if c.LifetimeUnit != nil {
		cfg.LifetimeUnit = *c.LifetimeUnit
	}
	return cfg
}

func (c *InstanceCfg) GetMop() uint8 {
	if c.Mop == nil {
		return protocol.MopStoringNoMcast
	}
	return *c.Mop
}

// LocalCfg represents local node-level configuration
type LocalCfg struct {
	Id             string              `yaml:"id"`                         // unique id for this node, used as the log prefix
	Address        netip.Addr          `yaml:"address"`                    // the IPv6 address this node announces in DAOs
	InterfaceName  string              `yaml:"interface,omitempty"`        // the interface RPL messages are sent and received on
	LogPath        string              `yaml:"log_path,omitempty"`         // if not empty, rpld will write to this file
	CtlPath        string              `yaml:"ctl_path,omitempty"`         // unix socket used by inspect and repair
	Instances      []InstanceCfg       `yaml:"instances,omitempty"`        // instances this node is root of, or is allowed to join
	LinkMetric     *LinkMetricsWrapper `yaml:"link_metric,omitempty"`      // defaults to a static metric of 1
	PostUp         []string            `yaml:"post_up,omitempty"`          // a list of commands executed in order after rpld has started
	PreDown        []string            `yaml:"pre_down,omitempty"`         // a list of commands executed in order before rpld stops
	NoNetConfigure bool                `yaml:"no_net_configure,omitempty"` // do not configure the interface or install routes into the system table
	Multicast      netip.Addr          `yaml:"multicast"`                  // defaults to ff02::1a
	DisableDis     bool                `yaml:"disable_dis,omitempty"`      // never solicit DIOs
	DaoAckRequest  *bool               `yaml:"dao_ack_request,omitempty"`  // request DAO-ACKs, default true
}

func (c *LocalCfg) GetInstance(id uint8) *InstanceCfg {
	idx := slices.IndexFunc(c.Instances, func(cfg InstanceCfg) bool {
		return cfg.InstanceId == id
	})
	if idx == -1 {
		return nil
	}
	return &c.Instances[idx]
}

// AcceptsInstance reports whether this node may join the instance. When no non-root instance is configured, any instance is accepted.
func (c *LocalCfg) AcceptsInstance(id uint8) bool {
	restricted := false
	for _, inst := range c.Instances {
		if inst.Root {
			continue
		}
		restricted = true
		if inst.InstanceId == id {
			return true
		}
	}
	return !restricted
}

func (c *LocalCfg) RootInstances() []InstanceCfg {
	out := make([]InstanceCfg, 0)
	for _, inst := range c.Instances {
		if inst.Root {
			out = append(out, inst)
		}
	}
	return out
}

func (c *LocalCfg) RequestDaoAck() bool {
	return c.DaoAckRequest == nil || *c.DaoAckRequest
}

func (c *LocalCfg) GetLinkMetrics() LinkMetrics {
	if c.LinkMetric == nil || c.LinkMetric.LinkMetrics == nil {
		return &StaticLinkMetrics{Default: 1}
	}
	return c.LinkMetric.LinkMetrics
}
