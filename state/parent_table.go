package state

import (
	"fmt"
	"net/netip"
	"slices"
	"time"
)

// ParentTable is the bounded set of candidate parents for a DODAG
type ParentTable struct {
	max     int
	parents map[netip.Addr]*Parent
	// OnRemove is called for every parent leaving the table, whichever path removed it
	OnRemove func(p *Parent)
}

func NewParentTable(max int) *ParentTable {
	return &ParentTable{
		max:     max,
		parents: make(map[netip.Addr]*Parent),
	}
}

// Upsert creates or refreshes a parent entry. The returned bool is true when the entry was created.
// metric seeds LinkMetric of a new entry and replaces it on an existing one unless keepMetric is set.
func (t *ParentTable) Upsert(addr netip.Addr, rank Rank, dtsn uint8, metric float64, keepMetric bool, expireAt time.Time) (*Parent, bool, error) {
	if p, ok := t.parents[addr]; ok {
		p.Rank = rank
		p.Dtsn = dtsn
		if !keepMetric || p.LinkMetric <= 0 {
			p.LinkMetric = metric
		}
		p.ExpireAt = expireAt
		return p, false, nil
	}
	if len(t.parents) >= t.max {
		worst := t.worst()
		if worst == nil || worst.Rank <= rank {
			return nil, false, fmt.Errorf("parent table full (%d entries): %w", t.max, ErrResourceExhausted)
		}
		t.remove(worst)
	}
	p := &Parent{
		Addr:       addr,
		Rank:       rank,
		Dtsn:       dtsn,
		LinkMetric: metric,
		ExpireAt:   expireAt,
		Used:       true,
	}
	t.parents[addr] = p
	return p, true, nil
}

func (t *ParentTable) worst() *Parent {
	var worst *Parent
	for _, p := range t.parents {
		if worst == nil || p.Rank > worst.Rank || (p.Rank == worst.Rank && p.Addr.Compare(worst.Addr) > 0) {
			worst = p
		}
	}
	return worst
}

func (t *ParentTable) Get(addr netip.Addr) *Parent {
	return t.parents[addr]
}

func (t *ParentTable) Remove(addr netip.Addr) bool {
	p, ok := t.parents[addr]
	if !ok {
		return false
	}
	t.remove(p)
	return true
}

func (t *ParentTable) remove(p *Parent) {
	delete(t.parents, p.Addr)
	if t.OnRemove != nil {
		t.OnRemove(p)
	}
}

// ExpireStale removes every parent whose lifetime has elapsed and returns their addresses
func (t *ParentTable) ExpireStale(now time.Time) []netip.Addr {
	removed := make([]netip.Addr, 0)
	for _, p := range t.All() {
		if now.After(p.ExpireAt) {
			t.remove(p)
			removed = append(removed, p.Addr)
		}
	}
	return removed
}

// SelectPreferred picks the best eligible parent. Only parents with a rank strictly below ownRank are eligible.
func (t *ParentTable) SelectPreferred(of ObjectiveFunction, ownRank Rank) *Parent {
	var best *Parent
	for _, p := range t.All() {
		if p.Rank == InfiniteRank || p.Rank >= ownRank {
			continue
		}
		if of.CalcRank(p, 0) == InfiniteRank {
			continue
		}
		if best == nil {
			best = p
		} else {
			best = of.WhichParent(best, p)
		}
	}
	return best
}

// All returns the parents ordered by address
func (t *ParentTable) All() []*Parent {
	out := make([]*Parent, 0, len(t.parents))
	for _, p := range t.parents {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *Parent) int {
		return a.Addr.Compare(b.Addr)
	})
	return out
}

func (t *ParentTable) Clear() {
	for _, p := range t.All() {
		t.remove(p)
	}
}

func (t *ParentTable) Len() int {
	return len(t.parents)
}
