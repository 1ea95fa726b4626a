package of

// This file makes references to RFC 6719:
// https://datatracker.ietf.org/doc/html/rfc6719

import (
	"github.com/encodeous/rpld/state"
)

const OCPMRHOF = uint16(1)

// 6.1.  Objective Function 1 Constants
const (
	// MaxLinkMetric is the largest ETX of a usable link
	MaxLinkMetric = 4.0
	etxDivisor    = 128
	// etxAlpha weighs a new transmission sample in the moving average
	etxAlpha = 0.1
)

// MRHOF is the Minimum Rank with Hysteresis Objective Function using the ETX metric
type MRHOF struct {
	cfg state.DodagConfig
}

func NewMRHOF(cfg state.DodagConfig) state.ObjectiveFunction {
	return &MRHOF{cfg: cfg}
}

func (m *MRHOF) OCP() uint16 {
	return OCPMRHOF
}

func (m *MRHOF) Init() {}

// OwnsLinkMetric is true, the ETX average is folded from DAO transmission results
func (m *MRHOF) OwnsLinkMetric() bool {
	return true
}

func (m *MRHOF) CalcRank(p *state.Parent, base state.Rank) state.Rank {
	if p != nil {
		base = p.Rank
	}
	if base == state.InfiniteRank {
		return state.InfiniteRank
	}
	etx := 1.0
	if p != nil && p.LinkMetric > 0 {
		etx = p.LinkMetric
	}
	// links above MaxLinkMetric are excluded from parent selection
	if etx > MaxLinkMetric {
		return state.InfiniteRank
	}
	inc := max(uint32(m.cfg.MinHopRankIncrease), uint32(etx*etxDivisor))
	return state.AddRank(base, inc)
}

func (m *MRHOF) WhichParent(a, b *state.Parent) *state.Parent {
	return compareParent(m, a, b)
}

func (m *MRHOF) WhichDodag(a, b *state.Dodag) *state.Dodag {
	return compareDodag(a, b)
}

func (m *MRHOF) Reset(d *state.Dodag) {
	m.cfg = d.Config
}

// ParentStateCallback folds transmission outcomes into the parent's ETX as an exponentially weighted moving average.
// code is the number of transmissions used.
func (m *MRHOF) ParentStateCallback(p *state.Parent, ev state.ParentEvent, code int) {
	var sample float64
	switch ev {
	case state.ParentTxOk:
		sample = float64(max(code, 1))
	case state.ParentTxFailed:
		sample = state.MaxLinkMetric
	default:
		return
	}
	if p.LinkMetric <= 0 {
		p.LinkMetric = sample
		return
	}
	p.LinkMetric = (1-etxAlpha)*p.LinkMetric + etxAlpha*sample
}
