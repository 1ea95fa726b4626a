package of

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/encodeous/rpld/state"
)

var ErrUnsupportedObjectiveFunction = errors.New("unsupported objective function")

// Constructor creates an objective function bound to the DODAG configuration
type Constructor func(cfg state.DodagConfig) state.ObjectiveFunction

type entry struct {
	ctor Constructor
	once sync.Once
}

var (
	mu       sync.Mutex
	registry = make(map[uint16]*entry)
)

// Register makes an objective function available under its Objective Code Point, replacing any previous registration
func Register(ocp uint16, ctor Constructor) {
	mu.Lock()
	defer mu.Unlock()
	registry[ocp] = &entry{ctor: ctor}
}

// New returns the objective function identified by ocp. Init is called the first time an OCP is used.
func New(ocp uint16, cfg state.DodagConfig) (state.ObjectiveFunction, error) {
	mu.Lock()
	e, ok := registry[ocp]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("ocp %d: %w", ocp, ErrUnsupportedObjectiveFunction)
	}
	f := e.ctor(cfg)
	e.once.Do(f.Init)
	return f, nil
}

func Supported() []uint16 {
	mu.Lock()
	defer mu.Unlock()
	out := make([]uint16, 0, len(registry))
	for ocp := range registry {
		out = append(out, ocp)
	}
	slices.Sort(out)
	return out
}

func init() {
	Register(OCPZero, NewOF0)
	Register(OCPMRHOF, NewMRHOF)
}

// compareDodag orders two DODAGs of the same instance, returning the preferred one.
//
// RFC 6550 section 8.2.2.2 and RFC 6552 section 4.2.1
func compareDodag(a, b *state.Dodag) *state.Dodag {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	//	prefer a grounded DODAG
	if a.Grounded != b.Grounded {
		if a.Grounded {
			return a
		}
		return b
	}
	//	prefer the DODAG with the highest administrative preference
	if a.Prf != b.Prf {
		if a.Prf > b.Prf {
			return a
		}
		return b
	}
	if a.Id == b.Id && a.Version != b.Version {
		//	prefer the more recent version of the same DODAG
		if state.SeqnoGt(a.Version, b.Version) {
			return a
		}
		return b
	}
	if a.Rank != b.Rank {
		if a.Rank < b.Rank {
			return a
		}
		return b
	}
	if b.Id.Less(a.Id) {
		return b
	}
	return a
}

// compareParent prefers the lower resulting rank, then the lower link metric, then the lower address
func compareParent(f state.ObjectiveFunction, a, b *state.Parent) *state.Parent {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	ra, rb := f.CalcRank(a, 0), f.CalcRank(b, 0)
	if ra != rb {
		if ra < rb {
			return a
		}
		return b
	}
	if a.LinkMetric != b.LinkMetric {
		if a.LinkMetric < b.LinkMetric {
			return a
		}
		return b
	}
	if b.Addr.Less(a.Addr) {
		return b
	}
	return a
}
