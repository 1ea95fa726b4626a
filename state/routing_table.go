package state

import (
	"fmt"
	"net/netip"
	"slices"
	"time"

	"github.com/gaissmai/bart"
)

// RouteEntry is a downward route learned from a DAO
type RouteEntry struct {
	Target       netip.Prefix
	NextHop      netip.Addr
	ExpireAt     time.Time
	PathSequence uint8
	Used         bool
}

func (e RouteEntry) String() string {
	return fmt.Sprintf("%s via %s", e.Target, e.NextHop)
}

// RoutingTable holds the downward routes of an instance. Lookups are longest-prefix match.
type RoutingTable struct {
	max     int
	entries map[netip.Prefix]*RouteEntry
	lpm     bart.Table[netip.Addr]
}

func NewRoutingTable(max int) *RoutingTable {
	return &RoutingTable{
		max:     max,
		entries: make(map[netip.Prefix]*RouteEntry),
	}
}

// InsertOrRefresh installs target via nextHop, or refreshes the existing entry's next hop and lifetime
func (t *RoutingTable) InsertOrRefresh(target netip.Prefix, nextHop netip.Addr, pathSeq uint8, lifetime time.Duration, now time.Time) (bool, error) {
	target = target.Masked()
	expireAt := now.Add(lifetime)
	if e, ok := t.entries[target]; ok {
		if e.NextHop != nextHop {
			t.lpm.Insert(target, nextHop)
		}
		e.NextHop = nextHop
		e.ExpireAt = expireAt
		e.PathSequence = pathSeq
		return false, nil
	}
	if len(t.entries) >= t.max {
		return false, fmt.Errorf("routing table full (%d entries), refused %s: %w", t.max, target, ErrResourceExhausted)
	}
	t.entries[target] = &RouteEntry{
		Target:       target,
		NextHop:      nextHop,
		ExpireAt:     expireAt,
		PathSequence: pathSeq,
		Used:         true,
	}
	t.lpm.Insert(target, nextHop)
	return true, nil
}

// Lookup returns the next hop for dst, it does not modify the table
func (t *RoutingTable) Lookup(dst netip.Addr) (netip.Addr, bool) {
	return t.lpm.Lookup(dst)
}

func (t *RoutingTable) Get(target netip.Prefix) (RouteEntry, bool) {
	e, ok := t.entries[target.Masked()]
	if !ok {
		return RouteEntry{}, false
	}
	return *e, true
}

func (t *RoutingTable) Remove(target netip.Prefix) bool {
	target = target.Masked()
	if _, ok := t.entries[target]; !ok {
		return false
	}
	delete(t.entries, target)
	t.lpm.Delete(target)
	return true
}

// RemoveVia removes every route whose next hop is nextHop
func (t *RoutingTable) RemoveVia(nextHop netip.Addr) []netip.Prefix {
	removed := make([]netip.Prefix, 0)
	for target, e := range t.entries {
		if e.NextHop == nextHop {
			removed = append(removed, target)
		}
	}
	for _, target := range removed {
		t.Remove(target)
	}
	slices.SortFunc(removed, comparePrefix)
	return removed
}

// Expire removes every route whose lifetime has elapsed
func (t *RoutingTable) Expire(now time.Time) []netip.Prefix {
	removed := make([]netip.Prefix, 0)
	for target, e := range t.entries {
		if now.After(e.ExpireAt) {
			removed = append(removed, target)
		}
	}
	for _, target := range removed {
		t.Remove(target)
	}
	slices.SortFunc(removed, comparePrefix)
	return removed
}

// All returns a copy of every route, ordered by target
func (t *RoutingTable) All() []RouteEntry {
	out := make([]RouteEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b RouteEntry) int {
		return comparePrefix(a.Target, b.Target)
	})
	return out
}

func (t *RoutingTable) Len() int {
	return len(t.entries)
}

func comparePrefix(a, b netip.Prefix) int {
	if c := a.Addr().Compare(b.Addr()); c != 0 {
		return c
	}
	return a.Bits() - b.Bits()
}
