package state

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/encodeous/rpld/trickle"
)

type Rank uint16

const (
	InfiniteRank = Rank(0xFFFF)
	// RootRank is the rank of a DODAG root given the default MinHopRankIncrease
	RootRank = Rank(DefaultMinHopRankIncrease)
)

func (r Rank) String() string {
	if r == InfiniteRank {
		return "inf"
	}
	return fmt.Sprintf("%d", uint16(r))
}

// AddRank adds a rank increase, saturating at InfiniteRank
func AddRank(base Rank, inc uint32) Rank {
	if base == InfiniteRank {
		return InfiniteRank
	}
	return Rank(min(uint32(InfiniteRank), uint32(base)+inc))
}

type DodagStatus int

const (
	StatusUnused DodagStatus = iota
	StatusUnjoined
	StatusJoining
	StatusJoined
	StatusPoisoning
)

func (s DodagStatus) String() string {
	switch s {
	case StatusUnused:
		return "unused"
	case StatusUnjoined:
		return "unjoined"
	case StatusJoining:
		return "joining"
	case StatusJoined:
		return "joined"
	case StatusPoisoning:
		return "poisoning"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

type Role int

const (
	RoleRouter Role = iota
	RoleRoot
)

func (r Role) String() string {
	if r == RoleRoot {
		return "root"
	}
	return "router"
}

// DodagConfig holds the parameters distributed in the DODAG Configuration option
type DodagConfig struct {
	IntervalDoublings  uint8
	IntervalMin        uint8
	Redundancy         uint8
	MaxRankIncrease    uint16
	MinHopRankIncrease uint16
	OCP                uint16
	DefaultLifetime    uint8
	LifetimeUnit       uint16
	AuthEnabled        bool
	PCS                uint8
}

// DefaultDodagConfig returns the RFC 6550 section 17 defaults
func DefaultDodagConfig() DodagConfig {
	return DodagConfig{
		IntervalDoublings:  DefaultDIOIntervalDoublings,
		IntervalMin:        DefaultDIOIntervalMin,
		Redundancy:         DefaultDIORedundancy,
		MaxRankIncrease:    DefaultMaxRankIncrease,
		MinHopRankIncrease: DefaultMinHopRankIncrease,
		OCP:                0,
		DefaultLifetime:    DefaultRouteLifetime,
		LifetimeUnit:       DefaultLifetimeUnit,
		PCS:                DefaultPathControlSize,
	}
}

// MaxIntervalExponent bounds IntervalMin + IntervalDoublings, 2^40 ms is roughly 35 years
const MaxIntervalExponent = 40

// Imin is the minimum Trickle interval, 2^IntervalMin milliseconds, saturating at 2^MaxIntervalExponent
func (c DodagConfig) Imin() time.Duration {
	return time.Millisecond << min(c.IntervalMin, MaxIntervalExponent)
}

// Validate rejects configurations a DODAG cannot operate with, whether configured locally or
// learned from a DIO
func (c DodagConfig) Validate() error {
	if c.MinHopRankIncrease == 0 {
		return fmt.Errorf("min_hop_rank_increase must not be 0: %w", ErrInvalidDodagConfig)
	}
	if c.LifetimeUnit == 0 || c.DefaultLifetime == 0 {
		return fmt.Errorf("route lifetime must not be 0: %w", ErrInvalidDodagConfig)
	}
	if int(c.IntervalMin)+int(c.IntervalDoublings) > MaxIntervalExponent {
		return fmt.Errorf("dio_interval_min %d + dio_interval_doublings %d exceeds %d: %w",
			c.IntervalMin, c.IntervalDoublings, MaxIntervalExponent, ErrInvalidDodagConfig)
	}
	return nil
}

// RouteLifetime is the lifetime of a downward route announced with DefaultLifetime
func (c DodagConfig) RouteLifetime() time.Duration {
	return time.Duration(c.DefaultLifetime) * time.Duration(c.LifetimeUnit) * LifetimeUnitDuration
}

// LifetimeOf converts a Transit option path lifetime into a duration
func (c DodagConfig) LifetimeOf(pathLifetime uint8) time.Duration {
	if pathLifetime == 0xFF {
		return time.Duration(1<<63 - 1)
	}
	return time.Duration(pathLifetime) * time.Duration(c.LifetimeUnit) * LifetimeUnitDuration
}

type Parent struct {
	Addr       netip.Addr
	Rank       Rank
	Dtsn       uint8
	LinkMetric float64 // ETX-like link metric, 0 when unknown
	ExpireAt   time.Time
	Used       bool
}

func (p *Parent) String() string {
	return fmt.Sprintf("(addr: %s, rank: %s, dtsn: %d, metric: %.2f)", p.Addr, p.Rank, p.Dtsn, p.LinkMetric)
}

// DaoState tracks the DAO transmissions towards the preferred parent
type DaoState struct {
	// Sequence is the last DAO sequence number used
	Sequence uint8
	// AckSequence is the sequence number of the DAO awaiting a DAO-ACK
	AckSequence uint8
	Outstanding bool
	// Pending is set when a new DAO is due at the next TimerDao firing
	Pending bool
	Retries int
	// PathSequence is carried in the Transit option and incremented on every new DAO
	PathSequence uint8
}

type Dodag struct {
	InstanceId uint8
	Id         netip.Addr
	Used       bool
	Mop        uint8
	Dtsn       uint8
	Prf        uint8
	Config     DodagConfig
	Version    uint8
	Grounded   bool
	Rank       Rank
	MinRank    Rank
	Role       Role
	Status     DodagStatus
	// Preferred is the address of the preferred parent, a key into Parents
	Preferred netip.Addr
	OF        ObjectiveFunction
	Trickle   *trickle.Timer
	Parents   *ParentTable
	Dao       DaoState

	Prefix                  netip.Prefix
	PrefixFlags             uint8
	PrefixValidLifetime     uint32
	PrefixPreferredLifetime uint32

	PoisonUntil time.Time
}

func (d *Dodag) IsRoot() bool {
	return d.Role == RoleRoot
}

// PreferredParent resolves the preferred parent, nil if there is none
func (d *Dodag) PreferredParent() *Parent {
	if !d.Preferred.IsValid() || d.Parents == nil {
		return nil
	}
	return d.Parents.Get(d.Preferred)
}

func (d *Dodag) String() string {
	return fmt.Sprintf("(instance: %d, dodag: %s, version: %d, rank: %s, status: %s, role: %s)",
		d.InstanceId, d.Id, d.Version, d.Rank, d.Status, d.Role)
}

type Instance struct {
	Id     uint8
	Used   bool
	Joined bool
	Dodag  *Dodag
	Routes *RoutingTable
}
