package of

// This file makes references to RFC 6552:
// https://datatracker.ietf.org/doc/html/rfc6552

import (
	"math"

	"github.com/encodeous/rpld/state"
)

const OCPZero = uint16(0)

// 6.3.  Recommended Values
const (
	of0DefaultStepOfRank = 3
	of0MinStepOfRank     = 1
	of0MaxStepOfRank     = 9
	of0RankFactor        = 1
	of0StretchOfRank     = 0
)

// OF0 is Objective Function Zero, it selects the parent providing the lowest rank
type OF0 struct {
	cfg state.DodagConfig
}

func NewOF0(cfg state.DodagConfig) state.ObjectiveFunction {
	return &OF0{cfg: cfg}
}

func (o *OF0) OCP() uint16 {
	return OCPZero
}

func (o *OF0) Init() {}

// step maps an ETX-like link metric onto step_of_rank, 3*ETX - 2 bounded to [1, 9]
func (o *OF0) step(p *state.Parent) uint32 {
	if p == nil || p.LinkMetric <= 0 || math.IsNaN(p.LinkMetric) {
		return of0DefaultStepOfRank
	}
	s := math.Round(3*p.LinkMetric - 2)
	return uint32(min(max(s, of0MinStepOfRank), of0MaxStepOfRank))
}

func (o *OF0) CalcRank(p *state.Parent, base state.Rank) state.Rank {
	// 4.1.  Computing Rank
	//
	//	R(N) = R(P) + rank_increase where:
	//
	//	rank_increase = (Rf*Sp + Sr) * MinHopRankIncrease
	if p != nil {
		base = p.Rank
	}
	if base == state.InfiniteRank {
		return state.InfiniteRank
	}
	inc := (of0RankFactor*o.step(p) + of0StretchOfRank) * uint32(o.cfg.MinHopRankIncrease)
	return state.AddRank(base, inc)
}

func (o *OF0) WhichParent(a, b *state.Parent) *state.Parent {
	return compareParent(o, a, b)
}

func (o *OF0) WhichDodag(a, b *state.Dodag) *state.Dodag {
	return compareDodag(a, b)
}

func (o *OF0) Reset(d *state.Dodag) {
	o.cfg = d.Config
}

func (o *OF0) ParentStateCallback(p *state.Parent, ev state.ParentEvent, code int) {}
