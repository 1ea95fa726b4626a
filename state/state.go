package state

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/netip"
	"sync/atomic"

	"github.com/encodeous/rpld/protocol"
	"github.com/jellydator/ttlcache/v3"
)

type NyModule interface {
	Init(s *State) error
	Cleanup(s *State) error
}

// State access must be done only on a single Goroutine
type State struct {
	*Env
	*RouterState
	Modules map[string]NyModule
}

// Env can be read from any Goroutine
type Env struct {
	DispatchChannel chan<- func(s *State) error
	LocalCfg
	Context context.Context
	Cancel  context.CancelCauseFunc
	Log     *slog.Logger
	Metrics LinkMetrics
	// AuxConfig carries values injected by the host, such as a Transport in tests
	AuxConfig map[string]any
	Started   atomic.Bool
	Stopping  atomic.Bool
}

// DaoKey identifies a DAO for duplicate suppression
type DaoKey struct {
	From     netip.Addr
	Instance uint8
	Sequence uint8
}

// RouterState is the protocol state of this node, owned by the dispatch goroutine
type RouterState struct {
	Id        string
	Address   netip.Addr
	Multicast netip.Addr
	Cfg       *LocalCfg
	Instances *Registry
	Rand      *rand.Rand
	// DaoDedup remembers the DAO-ACK status of recently processed DAOs
	DaoDedup *ttlcache.Cache[DaoKey, uint8]
}

func NewRouterState(id string, addr netip.Addr, cfg *LocalCfg, rng *rand.Rand) *RouterState {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	mcast := cfg.Multicast
	if !mcast.IsValid() {
		mcast = protocol.AllRPLNodes
	}
	return &RouterState{
		Id:        id,
		Address:   addr,
		Multicast: mcast,
		Cfg:       cfg,
		Instances: NewRegistry(MaxInstances),
		Rand:      rng,
		DaoDedup: ttlcache.New[DaoKey, uint8](
			ttlcache.WithTTL[DaoKey, uint8](DaoDedupTTL),
			ttlcache.WithDisableTouchOnHit[DaoKey, uint8](),
		),
	}
}

// Dodag returns the DODAG of an instance, nil if the instance has none in use
func (r *RouterState) Dodag(instance uint8) *Dodag {
	inst := r.Instances.Get(instance)
	if inst == nil || inst.Dodag == nil || !inst.Dodag.Used {
		return nil
	}
	return inst.Dodag
}
