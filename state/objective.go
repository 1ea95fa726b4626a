package state

type ParentEvent int

const (
	ParentAdded ParentEvent = iota
	ParentUpdated
	ParentRemoved
	ParentTxOk
	ParentTxFailed
)

func (e ParentEvent) String() string {
	switch e {
	case ParentAdded:
		return "added"
	case ParentUpdated:
		return "updated"
	case ParentRemoved:
		return "removed"
	case ParentTxOk:
		return "tx-ok"
	case ParentTxFailed:
		return "tx-failed"
	default:
		return "unknown"
	}
}

// ObjectiveFunction computes ranks and selects parents and DODAGs. It is identified by its Objective Code Point.
type ObjectiveFunction interface {
	OCP() uint16
	// CalcRank returns the rank we would have through p. When p is nil, base is used as the parent rank.
	CalcRank(p *Parent, base Rank) Rank
	// WhichParent returns the preferred of two candidate parents
	WhichParent(a, b *Parent) *Parent
	// WhichDodag returns the preferred of two DODAGs
	WhichDodag(a, b *Dodag) *Dodag
	// Reset is called when the DODAG is (re)joined or repaired
	Reset(d *Dodag)
	// Init is called once for each OCP before first use
	Init()
	ParentStateCallback(p *Parent, ev ParentEvent, code int)
}

// MetricOwner is implemented by objective functions that maintain Parent.LinkMetric from ParentStateCallback.
// The link metric provider then only seeds the metric of new parents.
type MetricOwner interface {
	OwnsLinkMetric() bool
}

// OwnsLinkMetric reports whether f maintains the link metric of its parents
func OwnsLinkMetric(f ObjectiveFunction) bool {
	o, ok := f.(MetricOwner)
	return ok && o.OwnsLinkMetric()
}
