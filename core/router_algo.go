package core

// This file makes references to RFC 6550:
// https://datatracker.ietf.org/doc/html/rfc6550

import (
	"errors"
	"fmt"
	"math"
	"net/netip"
	"time"

	"github.com/encodeous/rpld/of"
	"github.com/encodeous/rpld/protocol"
	"github.com/encodeous/rpld/state"
	"github.com/encodeous/rpld/trickle"
)

type RouterEvent int

// trace events

const (
	DodagCreated RouterEvent = iota
	DodagJoined
	DodagLeft
	DodagRepaired
	ParentAdded
	ParentRemoved
	ParentChanged
	RankChanged
	TrickleReset
	DioSent
	DisSent
	DaoSent
	DaoAckSent
	DaoAcked
	RouteAdded
	RouteRemoved
	StaleParentDropped
	StaleRouteDropped
)

// warn events

const (
	InconsistentState RouterEvent = iota + 1000
	LoopAvoidance
	ResourceExhausted
	UnsupportedObjective
	DodagPoisoned
	DaoRejected
	InvalidMessage
)

var eventNames = map[RouterEvent]string{
	DodagCreated:         "DodagCreated",
	DodagJoined:          "DodagJoined",
	DodagLeft:            "DodagLeft",
	DodagRepaired:        "DodagRepaired",
	ParentAdded:          "ParentAdded",
	ParentRemoved:        "ParentRemoved",
	ParentChanged:        "ParentChanged",
	RankChanged:          "RankChanged",
	TrickleReset:         "TrickleReset",
	DioSent:              "DioSent",
	DisSent:              "DisSent",
	DaoSent:              "DaoSent",
	DaoAckSent:           "DaoAckSent",
	DaoAcked:             "DaoAcked",
	RouteAdded:           "RouteAdded",
	RouteRemoved:         "RouteRemoved",
	StaleParentDropped:   "StaleParentDropped",
	StaleRouteDropped:    "StaleRouteDropped",
	InconsistentState:    "InconsistentState",
	LoopAvoidance:        "LoopAvoidance",
	ResourceExhausted:    "ResourceExhausted",
	UnsupportedObjective: "UnsupportedObjective",
	DodagPoisoned:        "DodagPoisoned",
	DaoRejected:          "DaoRejected",
	InvalidMessage:       "InvalidMessage",
}

func (e RouterEvent) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("RouterEvent(%d)", int(e))
}

// IsWarning reports whether the event should be surfaced above debug level
func (e RouterEvent) IsWarning() bool {
	return e >= 1000
}

var (
	ErrRetransmissionExhausted = errors.New("dao retransmission exhausted")
	ErrInvalidMessage          = errors.New("invalid message")
	ErrNotRoot                 = errors.New("not the dodag root")
	ErrUnknownInstance         = errors.New("unknown instance")
)

// Router is an interface that defines the underlying router operations
type Router interface {
	// Send transmits a control message to a neighbour or multicast group
	Send(dst netip.Addr, msg protocol.Message)
	// Schedule arms the timer identified by key, replacing any previous deadline
	Schedule(key state.TimerKey, at time.Time)
	// Cancel disarms a timer. Cancelling a timer that is not armed is a no-op.
	Cancel(key state.TimerKey)
	Now() time.Time
	// LinkMetric returns the metric of the link towards a neighbour, 0 if unknown
	LinkMetric(addr netip.Addr) float64
	TableInsertRoute(target netip.Prefix, nextHop netip.Addr)
	TableDeleteRoute(target netip.Prefix)
	Log(event RouterEvent, desc string, args ...any)
}

func timerKey(d *state.Dodag, kind state.TimerKind) state.TimerKey {
	return state.TimerKey{Instance: d.InstanceId, Kind: kind}
}

func resetTrickle(r Router, d *state.Dodag) {
	d.Trickle.Reset(r.Now())
	r.Schedule(timerKey(d, state.TimerTrickle), d.Trickle.Deadline())
}

// HandleDIO processes a DIO received from a neighbour
func HandleDIO(s *state.RouterState, r Router, from netip.Addr, dio *protocol.DIO) error {
	if from == s.Address {
		return nil
	}
	if !from.IsValid() || !dio.DodagId.Is6() {
		return fmt.Errorf("dio from %s with dodag id %s: %w", from, dio.DodagId, ErrInvalidMessage)
	}
	if dio.Mop != protocol.MopStoringNoMcast && dio.Mop != protocol.MopStoringWithMcast {
		r.Log(InvalidMessage, "ignoring dio with unsupported mode of operation", "from", from, "mop", dio.Mop)
		return nil
	}
	if !s.Cfg.AcceptsInstance(dio.InstanceId) {
		return nil
	}
	if opt := dio.Options.DodagConfig(); opt != nil {
		if err := dodagConfigFrom(opt).Validate(); err != nil {
			r.Log(InvalidMessage, "ignoring dio with unusable dodag configuration", "from", from, "err", err)
			return nil
		}
	}

	d := s.Dodag(dio.InstanceId)
	if d == nil {
		return joinDodag(s, r, from, dio)
	}
	if d.Id != dio.DodagId {
		return handleForeignDio(s, r, d, from, dio)
	}
	if d.IsRoot() {
		return handleRootDio(s, r, d, dio)
	}
	return processDio(s, r, d, from, dio)
}

func dodagConfigFrom(opt *protocol.DodagConfigOption) state.DodagConfig {
	if opt == nil {
		return state.DefaultDodagConfig()
	}
	return state.DodagConfig{
		IntervalDoublings:  opt.IntervalDoublings,
		IntervalMin:        opt.IntervalMin,
		Redundancy:         opt.Redundancy,
		MaxRankIncrease:    opt.MaxRankIncrease,
		MinHopRankIncrease: opt.MinHopRankIncrease,
		OCP:                opt.OCP,
		DefaultLifetime:    opt.DefaultLifetime,
		LifetimeUnit:       opt.LifetimeUnit,
		AuthEnabled:        opt.AuthEnabled,
		PCS:                opt.PCS,
	}
}

func dodagConfigOption(cfg state.DodagConfig) *protocol.DodagConfigOption {
	return &protocol.DodagConfigOption{
		AuthEnabled:        cfg.AuthEnabled,
		PCS:                cfg.PCS,
		IntervalDoublings:  cfg.IntervalDoublings,
		IntervalMin:        cfg.IntervalMin,
		Redundancy:         cfg.Redundancy,
		MaxRankIncrease:    cfg.MaxRankIncrease,
		MinHopRankIncrease: cfg.MinHopRankIncrease,
		OCP:                cfg.OCP,
		DefaultLifetime:    cfg.DefaultLifetime,
		LifetimeUnit:       cfg.LifetimeUnit,
	}
}

func newDodag(s *state.RouterState, instance uint8, id netip.Addr, cfg state.DodagConfig, f state.ObjectiveFunction) *state.Dodag {
	d := &state.Dodag{
		InstanceId: instance,
		Id:         id,
		Used:       true,
		Mop:        protocol.MopStoringNoMcast,
		Dtsn:       state.SequenceInit,
		Config:     cfg,
		Version:    state.SequenceInit,
		Rank:       state.InfiniteRank,
		MinRank:    state.InfiniteRank,
		Role:       state.RoleRouter,
		Status:     state.StatusUnjoined,
		OF:         f,
		Trickle:    trickle.New(cfg.Imin(), cfg.IntervalDoublings, cfg.Redundancy, s.Rand),
		Parents:    state.NewParentTable(state.MaxParents),
		Dao: state.DaoState{
			Sequence:     state.SequenceInit,
			PathSequence: state.SequenceInit,
		},
	}
	d.Parents.OnRemove = func(p *state.Parent) {
		d.OF.ParentStateCallback(p, state.ParentRemoved, 0)
	}
	return d
}

func adoptPrefix(d *state.Dodag, pio *protocol.PrefixInfoOption) {
	if pio == nil {
		return
	}
	prefix := pio.AsPrefix()
	if !prefix.IsValid() {
		return
	}
	d.Prefix = prefix
	d.PrefixFlags = pio.Flags
	d.PrefixValidLifetime = pio.ValidLifetime
	d.PrefixPreferredLifetime = pio.PreferredLifetime
}

// joinDodag creates the local DODAG state from the first acceptable DIO of an instance
func joinDodag(s *state.RouterState, r Router, from netip.Addr, dio *protocol.DIO) error {
	if state.Rank(dio.Rank) == state.InfiniteRank {
		// a poisoning node cannot offer us a path
		return nil
	}
	cfg := dodagConfigFrom(dio.Options.DodagConfig())
	f, err := of.New(cfg.OCP, cfg)
	if err != nil {
		r.Log(UnsupportedObjective, "cannot join dodag", "from", from, "dodag", dio.DodagId, "err", err)
		return err
	}
	inst := s.Instances.Get(dio.InstanceId)
	if inst == nil {
		inst, err = s.Instances.Create(dio.InstanceId)
		if err != nil {
			r.Log(ResourceExhausted, "cannot join dodag", "instance", dio.InstanceId, "err", err)
			return err
		}
	}
	d := newDodag(s, dio.InstanceId, dio.DodagId, cfg, f)
	d.Version = dio.Version
	d.Mop = dio.Mop
	d.Prf = dio.Prf
	d.Grounded = dio.Grounded
	d.Status = state.StatusJoining
	adoptPrefix(d, dio.Options.PrefixInfo())
	inst.Dodag = d
	inst.Joined = false

	r.Cancel(state.TimerKey{Instance: dio.InstanceId, Kind: state.TimerDis})
	f.Reset(d)
	r.Log(DodagJoined, "joining dodag", "dodag", d.Id, "instance", d.InstanceId, "version", d.Version, "ocp", cfg.OCP)
	err = processDio(s, r, d, from, dio)
	if !d.Preferred.IsValid() {
		// the sender is not a usable parent
		leaveDodag(s, r, d, true)
	}
	return err
}

// handleForeignDio considers moving to another DODAG of the same instance.
//
// 8.2.2.2.  DODAG Selection
//
//	The DODAG selection is implementation and OF dependent.  In order to
//	limit erratic movements, and all metrics being equal, nodes SHOULD
//	keep their previous selection.
func handleForeignDio(s *state.RouterState, r Router, d *state.Dodag, from netip.Addr, dio *protocol.DIO) error {
	if d.IsRoot() || state.Rank(dio.Rank) == state.InfiniteRank {
		return nil
	}
	candidate := &state.Dodag{
		InstanceId: dio.InstanceId,
		Id:         dio.DodagId,
		Version:    dio.Version,
		Grounded:   dio.Grounded,
		Prf:        dio.Prf,
		Rank: d.OF.CalcRank(&state.Parent{
			Addr:       from,
			Rank:       state.Rank(dio.Rank),
			LinkMetric: r.LinkMetric(from),
		}, 0),
	}
	if candidate.Rank == state.InfiniteRank || d.OF.WhichDodag(d, candidate) != candidate {
		return nil
	}
	r.Log(DodagLeft, "moving to a preferred dodag", "from", d.Id, "to", dio.DodagId)
	leaveDodag(s, r, d, false)
	return joinDodag(s, r, from, dio)
}

func handleRootDio(s *state.RouterState, r Router, d *state.Dodag, dio *protocol.DIO) error {
	switch {
	case dio.Version == d.Version:
		d.Trickle.IncrementConsistency()
	case state.SeqnoGt(dio.Version, d.Version):
		// someone advertises a version we never issued, reclaim the dodag with a newer one
		d.Version = state.SeqnoInc(dio.Version)
		r.Log(InconsistentState, "root saw newer dodag version", "version", dio.Version, "now", d.Version)
		resetTrickle(r, d)
	default:
		resetTrickle(r, d)
	}
	return nil
}

// localGlobalRepair follows the root into a new DODAG version.
//
// 8.2.2.1.  DODAG Version
//
//	When the DODAG root increments the DODAG Version Number, a node
//	MUST NOT advertise an up-to-date DODAG Version Number until it has
//	joined the new DODAG Version.
func localGlobalRepair(s *state.RouterState, r Router, d *state.Dodag, version uint8) {
	d.Parents.Clear()
	d.Version = version
	d.Preferred = netip.Addr{}
	d.Rank = state.InfiniteRank
	d.MinRank = state.InfiniteRank
	d.Dtsn = state.SeqnoInc(d.Dtsn)
	d.Status = state.StatusJoining
	if inst := s.Instances.Get(d.InstanceId); inst != nil {
		inst.Joined = false
	}
	d.OF.Reset(d)
	r.Cancel(timerKey(d, state.TimerPoison))
	resetTrickle(r, d)
	r.Log(DodagRepaired, "following global repair", "dodag", d.Id, "version", version)
}

func parentLifetime(d *state.Dodag) time.Duration {
	const maxLifetime = time.Duration(math.MaxInt64)
	imax := d.Trickle.Imax()
	if imax > maxLifetime/state.DioParentLifetimeFactor {
		return maxLifetime
	}
	return imax * state.DioParentLifetimeFactor
}

func processDio(s *state.RouterState, r Router, d *state.Dodag, from netip.Addr, dio *protocol.DIO) error {
	now := r.Now()
	if dio.Version != d.Version {
		if state.SeqnoGt(dio.Version, d.Version) {
			localGlobalRepair(s, r, d, dio.Version)
		} else {
			// the sender is still on an old version, it is not a usable parent
			if removeParent(r, d, from) {
				updatePreferredParent(s, r, d)
			}
			resetTrickle(r, d)
			return nil
		}
	}

	rank := state.Rank(dio.Rank)
	existing := d.Parents.Get(from)
	isPreferred := from == d.Preferred
	var prevRank state.Rank
	var prevDtsn uint8
	if existing != nil {
		prevRank = existing.Rank
		prevDtsn = existing.Dtsn
	}

	// 8.3.  DIO Transmission
	//
	//	The following packets and events MUST be considered
	//	inconsistencies with respect to the Trickle timer:
	//     o  when a node detects an inconsistency when forwarding a packet
	//     o  when a node receives a multicast DIS message without a Solicited
	//        Information option
	//     o  when a node joins a new DODAG Version
	//
	// We also treat a change of rank of our preferred parent, or a poisoned
	// parent, as inconsistent.
	consistent := true
	if existing != nil && isPreferred && prevRank != rank {
		consistent = false
	}
	if existing != nil && rank == state.InfiniteRank {
		consistent = false
	}

	if rank == state.InfiniteRank {
		removeParent(r, d, from)
	} else {
		metric := r.LinkMetric(from)
		keep := state.OwnsLinkMetric(d.OF)
		if metric <= 0 && existing != nil {
			keep = true
		}
		p, created, err := d.Parents.Upsert(from, rank, dio.Dtsn, metric, keep, now.Add(parentLifetime(d)))
		if err != nil {
			r.Log(ResourceExhausted, "cannot track candidate parent", "from", from, "rank", rank, "err", err)
		} else {
			if created {
				d.OF.ParentStateCallback(p, state.ParentAdded, 0)
				r.Log(ParentAdded, "new candidate parent", "parent", p)
			} else {
				d.OF.ParentStateCallback(p, state.ParentUpdated, 0)
			}
			if isPreferred {
				adoptParentAttributes(r, d, dio)
				// 9.6.  Triggering DAO Messages
				//
				//	A node that receives a DIO from a parent with an incremented
				//	DTSN SHOULD schedule a DAO transmission.
				if existing != nil && state.SeqnoGt(dio.Dtsn, prevDtsn) {
					scheduleDao(s, r, d)
				}
			}
		}
	}

	if d.Status != state.StatusPoisoning {
		updatePreferredParent(s, r, d)
	}

	if consistent {
		d.Trickle.IncrementConsistency()
	} else {
		resetTrickle(r, d)
		r.Log(TrickleReset, "inconsistent dio", "from", from, "rank", rank)
	}

	if rank != state.InfiniteRank && d.Rank != state.InfiniteRank && rank >= d.Rank && from != d.Preferred {
		return fmt.Errorf("dio from %s advertises rank %s, own rank %s: %w", from, rank, d.Rank, state.ErrLoopAvoidance)
	}
	return nil
}

// adoptParentAttributes copies the DODAG wide parameters from our preferred parent
func adoptParentAttributes(r Router, d *state.Dodag, dio *protocol.DIO) {
	d.Grounded = dio.Grounded
	d.Prf = dio.Prf
	d.Mop = dio.Mop
	adoptPrefix(d, dio.Options.PrefixInfo())
	opt := dio.Options.DodagConfig()
	if opt == nil {
		return
	}
	cfg := dodagConfigFrom(opt)
	if cfg.OCP != d.Config.OCP {
		// the objective function is fixed for the lifetime of the dodag
		r.Log(InconsistentState, "preferred parent advertises a different ocp", "ocp", cfg.OCP, "current", d.Config.OCP)
		cfg.OCP = d.Config.OCP
	}
	if cfg != d.Config {
		d.Config = cfg
		d.Trickle.Imin = cfg.Imin()
		d.Trickle.Doublings = cfg.IntervalDoublings
		d.Trickle.K = cfg.Redundancy
		d.OF.Reset(d)
	}
}

// removeParent drops a candidate parent, returning true if it was present
func removeParent(r Router, d *state.Dodag, addr netip.Addr) bool {
	p := d.Parents.Get(addr)
	if p == nil {
		return false
	}
	d.Parents.Remove(addr)
	r.Log(ParentRemoved, "removed candidate parent", "parent", addr)
	return true
}

// updatePreferredParent recomputes the preferred parent and our rank
func updatePreferredParent(s *state.RouterState, r Router, d *state.Dodag) {
	if d.IsRoot() || d.Status == state.StatusPoisoning {
		return
	}
	prev := d.Preferred
	prevRank := d.Rank
	best := d.Parents.SelectPreferred(d.OF, d.Rank)
	if cur := d.PreferredParent(); cur != nil && cur.Rank != state.InfiniteRank && d.OF.CalcRank(cur, 0) != state.InfiniteRank {
		// our rank follows the current preferred parent, it stays eligible when its rank grows.
		//
		// RFC 6552 4.2.1: If the current preferred parent is still a feasible
		// successor and no other candidate offers a lower rank, keep it.
		if w := d.OF.WhichParent(best, cur); w == cur || d.OF.CalcRank(w, 0) >= d.OF.CalcRank(cur, 0) {
			best = cur
		} else {
			best = w
		}
	}
	rank := state.InfiniteRank
	if best != nil {
		rank = d.OF.CalcRank(best, 0)
	}

	// 8.2.2.4.  Rank and Movement within a DODAG Version
	//
	//	A node MUST NOT advertise a Rank greater than L + DAGMaxRankIncrease,
	//	where L is the lowest Rank the node has advertised within the
	//	current DODAG Version.
	if best != nil && d.Config.MaxRankIncrease != 0 && d.MinRank != state.InfiniteRank &&
		uint32(rank) > uint32(d.MinRank)+uint32(d.Config.MaxRankIncrease) {
		r.Log(LoopAvoidance, "rank would exceed the allowed increase", "rank", rank, "min", d.MinRank)
		best = nil
		rank = state.InfiniteRank
	}

	if best == nil {
		if prev.IsValid() || d.Status == state.StatusJoined {
			poison(s, r, d)
		}
		return
	}

	d.Preferred = best.Addr
	d.Rank = rank
	if rank < d.MinRank {
		d.MinRank = rank
	}

	if prev != best.Addr {
		r.Log(ParentChanged, "preferred parent changed", "from", prev, "to", best.Addr, "rank", rank)
		if prev.IsValid() && d.Status == state.StatusJoined && d.Parents.Get(prev) == nil {
			// the previous preferred parent is gone, re-finalize our rank before advertising as joined
			d.Status = state.StatusJoining
			if inst := s.Instances.Get(d.InstanceId); inst != nil {
				inst.Joined = false
			}
		}
		scheduleDao(s, r, d)
		if prev.IsValid() && d.Parents.Get(prev) != nil {
			sendNoPath(s, r, d, prev, daoTargets(s, d))
		}
	}
	if rank != prevRank {
		r.Log(RankChanged, "rank changed", "from", prevRank, "to", rank)
		resetTrickle(r, d)
	} else if !d.Trickle.Running() {
		resetTrickle(r, d)
	}
}

// poison advertises an infinite rank for PoisonWindow before leaving the DODAG.
//
// 8.2.2.5.  Detaching
//
//	A node unable to stay connected to a DODAG within a given DODAG
//	Version MAY detach from this DODAG Version.  A node that detaches
//	becomes root of its own floating DODAG and SHOULD immediately
//	advertise this new situation in a DIO as an alternate to poisoning.
func poison(s *state.RouterState, r Router, d *state.Dodag) {
	now := r.Now()
	d.Preferred = netip.Addr{}
	d.Rank = state.InfiniteRank
	d.Status = state.StatusPoisoning
	d.PoisonUntil = now.Add(state.PoisonWindow)
	if inst := s.Instances.Get(d.InstanceId); inst != nil {
		inst.Joined = false
	}
	d.Dao.Pending = false
	d.Dao.Outstanding = false
	r.Cancel(timerKey(d, state.TimerDao))
	r.Cancel(timerKey(d, state.TimerDaoRefresh))
	resetTrickle(r, d)
	r.Schedule(timerKey(d, state.TimerPoison), d.PoisonUntil)
	r.Log(DodagPoisoned, "no usable parent, poisoning", "dodag", d.Id, "until", d.PoisonUntil)
}

// leaveDodag tears down all state of the DODAG, optionally soliciting for a new one
func leaveDodag(s *state.RouterState, r Router, d *state.Dodag, solicit bool) {
	for _, kind := range []state.TimerKind{state.TimerTrickle, state.TimerDao, state.TimerDaoRefresh, state.TimerPoison} {
		r.Cancel(timerKey(d, kind))
	}
	d.Trickle.Stop()
	d.Used = false
	d.Status = state.StatusUnused
	d.Preferred = netip.Addr{}
	d.Parents.Clear()
	if inst := s.Instances.Get(d.InstanceId); inst != nil {
		for _, e := range inst.Routes.All() {
			r.TableDeleteRoute(e.Target)
		}
		s.Instances.Remove(d.InstanceId)
	}
	r.Log(DodagLeft, "left dodag", "dodag", d.Id, "instance", d.InstanceId)
	if solicit {
		StartSolicitation(s, r, d.InstanceId)
	}
}

// HandleDIS resets the Trickle timer of every DODAG matching the solicitation
func HandleDIS(s *state.RouterState, r Router, from netip.Addr, dis *protocol.DIS) error {
	info := dis.Options.SolicitedInfo()
	for _, inst := range s.Instances.Active() {
		d := inst.Dodag
		if d == nil || !d.Used || !d.Trickle.Running() {
			continue
		}
		if info != nil && !info.Matches(d.InstanceId, d.Id, d.Version) {
			continue
		}
		// a node that has not yet finalized its rank does not answer solicitations
		if d.Rank == state.InfiniteRank && d.Status != state.StatusPoisoning {
			continue
		}
		resetTrickle(r, d)
		r.Log(TrickleReset, "dis received", "from", from, "dodag", d.Id)
	}
	return nil
}

func sendDio(r Router, d *state.Dodag, dst netip.Addr) {
	opts := protocol.Options{dodagConfigOption(d.Config)}
	if d.Prefix.IsValid() {
		opts = append(opts, &protocol.PrefixInfoOption{
			PrefixLength:      uint8(d.Prefix.Bits()),
			Flags:             d.PrefixFlags,
			ValidLifetime:     d.PrefixValidLifetime,
			PreferredLifetime: d.PrefixPreferredLifetime,
			Prefix:            d.Prefix.Addr(),
		})
	}
	r.Send(dst, &protocol.DIO{
		InstanceId: d.InstanceId,
		Version:    d.Version,
		Rank:       uint16(d.Rank),
		Grounded:   d.Grounded,
		Mop:        d.Mop,
		Prf:        d.Prf,
		Dtsn:       d.Dtsn,
		DodagId:    d.Id,
		Options:    opts,
	})
	r.Log(DioSent, "sent dio", "dodag", d.Id, "rank", d.Rank, "version", d.Version)
}

// HandleTimer runs the action of an expired timer
func HandleTimer(s *state.RouterState, r Router, key state.TimerKey) error {
	if key.Kind == state.TimerDis {
		return handleDisTimer(s, r, key.Instance)
	}
	d := s.Dodag(key.Instance)
	if d == nil {
		return nil
	}
	switch key.Kind {
	case state.TimerTrickle:
		return handleTrickleTimer(s, r, d)
	case state.TimerDao:
		return handleDaoTimer(s, r, d)
	case state.TimerDaoRefresh:
		scheduleDao(s, r, d)
	case state.TimerPoison:
		if d.Status == state.StatusPoisoning {
			leaveDodag(s, r, d, true)
		}
	}
	return nil
}

func handleTrickleTimer(s *state.RouterState, r Router, d *state.Dodag) error {
	if !d.Trickle.Running() {
		return nil
	}
	now := r.Now()
	if d.Status == state.StatusJoining && d.Rank != state.InfiniteRank && d.PreferredParent() != nil {
		d.Status = state.StatusJoined
		if inst := s.Instances.Get(d.InstanceId); inst != nil {
			inst.Joined = true
		}
		r.Log(DodagJoined, "rank finalized", "dodag", d.Id, "rank", d.Rank, "parent", d.Preferred)
	}
	if d.Trickle.OnTimeout(now) {
		// 8.3.  DIO Transmission
		//
		//	RPL nodes transmit DIOs using a Trickle timer
		sendDio(r, d, s.Multicast)
	}
	r.Schedule(timerKey(d, state.TimerTrickle), d.Trickle.Deadline())
	return nil
}

// StartSolicitation begins periodic DIS transmission until a DODAG is joined
func StartSolicitation(s *state.RouterState, r Router, instance uint8) {
	if s.Cfg.DisableDis {
		return
	}
	r.Schedule(state.TimerKey{Instance: instance, Kind: state.TimerDis}, r.Now())
}

func handleDisTimer(s *state.RouterState, r Router, instance uint8) error {
	for _, inst := range s.Instances.Active() {
		if inst.Dodag != nil && inst.Dodag.Used {
			return nil
		}
	}
	// 8.3.  DIO Transmission
	//
	//	A node may solicit a DIO by sending a DIS message.
	r.Send(s.Multicast, &protocol.DIS{})
	r.Log(DisSent, "soliciting dodag information")
	r.Schedule(state.TimerKey{Instance: instance, Kind: state.TimerDis}, r.Now().Add(state.DisInterval))
	return nil
}

// InitRoot creates a DODAG rooted at this node
func InitRoot(s *state.RouterState, r Router, cfg *state.InstanceCfg) error {
	dc := cfg.DodagConfig()
	f, err := of.New(dc.OCP, dc)
	if err != nil {
		return err
	}
	inst := s.Instances.Get(cfg.InstanceId)
	if inst == nil {
		inst, err = s.Instances.Create(cfg.InstanceId)
		if err != nil {
			return err
		}
	} else if inst.Dodag != nil && inst.Dodag.Used {
		return fmt.Errorf("instance %d already has dodag %s: %w", cfg.InstanceId, inst.Dodag.Id, state.ErrInstanceConflict)
	}
	id := cfg.DodagId
	if !id.IsValid() {
		id = s.Address
	}
	d := newDodag(s, cfg.InstanceId, id, dc, f)
	d.Role = state.RoleRoot
	d.Status = state.StatusJoined
	d.Rank = state.Rank(dc.MinHopRankIncrease)
	d.MinRank = d.Rank
	d.Grounded = cfg.Grounded
	d.Prf = cfg.Preference
	d.Mop = cfg.GetMop()
	if cfg.Prefix.IsValid() {
		d.Prefix = cfg.Prefix.Masked()
		d.PrefixFlags = cfg.PrefixFlags
		d.PrefixValidLifetime = cfg.ValidLifetime
		d.PrefixPreferredLifetime = cfg.PreferredLifetime
		if d.PrefixValidLifetime == 0 {
			d.PrefixValidLifetime = 0xFFFFFFFF
		}
		if d.PrefixPreferredLifetime == 0 {
			d.PrefixPreferredLifetime = 0xFFFFFFFF
		}
	}
	inst.Dodag = d
	inst.Joined = true
	f.Reset(d)
	r.Cancel(state.TimerKey{Instance: cfg.InstanceId, Kind: state.TimerDis})
	resetTrickle(r, d)
	r.Log(DodagCreated, "dodag root started", "dodag", d.Id, "instance", d.InstanceId, "prefix", d.Prefix)
	return nil
}

// GlobalRepair increments the DODAG version, forcing the whole DODAG to rebuild
func GlobalRepair(s *state.RouterState, r Router, instance uint8) error {
	d := s.Dodag(instance)
	if d == nil {
		return fmt.Errorf("instance %d: %w", instance, ErrUnknownInstance)
	}
	if !d.IsRoot() {
		return fmt.Errorf("instance %d: %w", instance, ErrNotRoot)
	}
	d.Version = state.SeqnoInc(d.Version)
	d.Dtsn = state.SeqnoInc(d.Dtsn)
	resetTrickle(r, d)
	r.Log(DodagRepaired, "global repair", "dodag", d.Id, "version", d.Version)
	return nil
}

// RunGC drops expired parents, routes and DAO duplicate records
func RunGC(s *state.RouterState, r Router) {
	now := r.Now()
	for _, inst := range s.Instances.Active() {
		d := inst.Dodag
		if d != nil && d.Used && !d.IsRoot() {
			stale := d.Parents.ExpireStale(now)
			for _, addr := range stale {
				r.Log(StaleParentDropped, "parent expired", "parent", addr)
			}
			if len(stale) > 0 {
				updatePreferredParent(s, r, d)
			}
		}
		for _, target := range inst.Routes.Expire(now) {
			r.TableDeleteRoute(target)
			r.Log(StaleRouteDropped, "route expired", "target", target)
		}
	}
	s.DaoDedup.DeleteExpired()
}
