package core

// This file makes references to RFC 6550:
// https://datatracker.ietf.org/doc/html/rfc6550

import (
	"fmt"
	"net/netip"

	"github.com/encodeous/rpld/protocol"
	"github.com/encodeous/rpld/state"
	"github.com/jellydator/ttlcache/v3"
)

// scheduleDao arranges for a new DAO to be sent to the preferred parent after DaoDelay
func scheduleDao(s *state.RouterState, r Router, d *state.Dodag) {
	if d.IsRoot() || !d.Preferred.IsValid() || d.Mop == protocol.MopNoDownward {
		return
	}
	// 9.5.  DAO Transmission Scheduling
	//
	//	Because DAOs flow upwards, receiving a unicast DAO can trigger
	//	sending a unicast DAO to a parent.  A node SHOULD delay sending a
	//	DAO message in order to aggregate DAO information from other nodes
	//	for which it is a DAO parent.
	d.Dao.Pending = true
	r.Schedule(timerKey(d, state.TimerDao), r.Now().Add(state.DaoDelay))
}

// advertisedTarget is a destination announced in a DAO, with the path sequence set by its owner
type advertisedTarget struct {
	Prefix       netip.Prefix
	PathSequence uint8
}

// daoTargets are the destinations reachable through this node: its own address and every stored route
func daoTargets(s *state.RouterState, d *state.Dodag) []advertisedTarget {
	var targets []advertisedTarget
	if s.Address.Is6() {
		targets = append(targets, advertisedTarget{AddrToPrefix(s.Address), d.Dao.PathSequence})
	}
	if inst := s.Instances.Get(d.InstanceId); inst != nil {
		for _, e := range inst.Routes.All() {
			targets = append(targets, advertisedTarget{e.Target, e.PathSequence})
		}
	}
	return targets
}

// targetOptions groups targets sharing a path sequence under one Transit option
func targetOptions(targets []advertisedTarget, lifetime uint8) protocol.Options {
	var order []uint8
	groups := make(map[uint8][]netip.Prefix)
	for _, t := range targets {
		if _, ok := groups[t.PathSequence]; !ok {
			order = append(order, t.PathSequence)
		}
		groups[t.PathSequence] = append(groups[t.PathSequence], t.Prefix)
	}
	opts := make(protocol.Options, 0, len(targets)+len(order))
	for _, seq := range order {
		for _, p := range groups[seq] {
			opts = append(opts, &protocol.TargetOption{
				PrefixLength: uint8(p.Bits()),
				Target:       p.Addr(),
			})
		}
		opts = append(opts, &protocol.TransitOption{
			PathSequence: seq,
			PathLifetime: lifetime,
		})
	}
	return opts
}

func sendDao(s *state.RouterState, r Router, d *state.Dodag, to netip.Addr, seq uint8) {
	targets := daoTargets(s, d)
	r.Send(to, &protocol.DAO{
		InstanceId: d.InstanceId,
		Ack:        d.Dao.Outstanding,
		Sequence:   seq,
		DodagId:    d.Id,
		Options:    targetOptions(targets, d.Config.DefaultLifetime),
	})
	r.Log(DaoSent, "sent dao", "parent", to, "seq", seq, "targets", len(targets), "retry", d.Dao.Retries)
}

// sendNoPath withdraws targets from a neighbour with a Transit path lifetime of zero
func sendNoPath(s *state.RouterState, r Router, d *state.Dodag, to netip.Addr, targets []advertisedTarget) {
	if len(targets) == 0 || d.Mop == protocol.MopNoDownward {
		return
	}
	d.Dao.Sequence = state.SeqnoInc(d.Dao.Sequence)
	r.Send(to, &protocol.DAO{
		InstanceId: d.InstanceId,
		Sequence:   d.Dao.Sequence,
		DodagId:    d.Id,
		Options:    targetOptions(targets, 0),
	})
	r.Log(DaoSent, "sent no-path dao", "to", to, "seq", d.Dao.Sequence, "targets", len(targets))
}

func handleDaoTimer(s *state.RouterState, r Router, d *state.Dodag) error {
	p := d.PreferredParent()
	if p == nil || d.IsRoot() {
		d.Dao.Pending = false
		d.Dao.Outstanding = false
		return nil
	}
	now := r.Now()
	switch {
	case d.Dao.Pending:
		d.Dao.Pending = false
		d.Dao.Sequence = state.SeqnoInc(d.Dao.Sequence)
		d.Dao.PathSequence = state.SeqnoInc(d.Dao.PathSequence)
		d.Dao.AckSequence = d.Dao.Sequence
		d.Dao.Retries = 0
		d.Dao.Outstanding = s.Cfg.RequestDaoAck()
		sendDao(s, r, d, p.Addr, d.Dao.AckSequence)
		r.Schedule(timerKey(d, state.TimerDaoRefresh), now.Add(d.Config.RouteLifetime()/2))
	case d.Dao.Outstanding:
		if d.Dao.Retries >= state.DaoMaxRetries {
			// downward routes are best effort, our membership is unaffected
			d.Dao.Outstanding = false
			d.OF.ParentStateCallback(p, state.ParentTxFailed, d.Dao.Retries+1)
			return fmt.Errorf("dao seq %d to %s after %d attempts: %w", d.Dao.AckSequence, p.Addr, d.Dao.Retries+1, ErrRetransmissionExhausted)
		}
		d.Dao.Retries++
		sendDao(s, r, d, p.Addr, d.Dao.AckSequence)
	default:
		return nil
	}
	if d.Dao.Outstanding {
		r.Schedule(timerKey(d, state.TimerDao), now.Add(state.DaoAckTimeout<<d.Dao.Retries))
	}
	return nil
}

// daoTarget validates a Target option against the DODAG prefix
func daoTarget(d *state.Dodag, opt *protocol.TargetOption) (netip.Prefix, bool) {
	target := opt.Prefix()
	if !target.IsValid() || target.Bits() == 0 {
		return netip.Prefix{}, false
	}
	if d.Prefix.IsValid() && (target.Bits() < d.Prefix.Bits() || !d.Prefix.Contains(target.Addr())) {
		return netip.Prefix{}, false
	}
	return target, true
}

// HandleDAO installs downward routes advertised by a child and acknowledges them
func HandleDAO(s *state.RouterState, r Router, from netip.Addr, dao *protocol.DAO) error {
	d := s.Dodag(dao.InstanceId)
	if d == nil {
		return fmt.Errorf("dao from %s for instance %d: %w", from, dao.InstanceId, ErrUnknownInstance)
	}
	if dao.DodagId.IsValid() && dao.DodagId != d.Id {
		return fmt.Errorf("dao from %s for dodag %s, member of %s: %w", from, dao.DodagId, d.Id, ErrInvalidMessage)
	}
	ack := func(status uint8) {
		if !dao.Ack {
			return
		}
		reply := &protocol.DAOAck{
			InstanceId: dao.InstanceId,
			Sequence:   dao.Sequence,
			Status:     status,
		}
		if dao.DodagId.IsValid() {
			reply.DodagId = d.Id
		}
		r.Send(from, reply)
		r.Log(DaoAckSent, "sent dao-ack", "to", from, "seq", dao.Sequence, "status", status)
	}

	key := state.DaoKey{From: from, Instance: dao.InstanceId, Sequence: dao.Sequence}
	if prev := s.DaoDedup.Get(key); prev != nil {
		// a retransmission, our previous ack was probably lost
		ack(prev.Value())
		return nil
	}
	if from == d.Preferred {
		r.Log(LoopAvoidance, "dao received from preferred parent", "from", from, "seq", dao.Sequence)
		ack(protocol.StatusLoopDetected)
		return nil
	}
	inst := s.Instances.Get(d.InstanceId)

	now := r.Now()
	status := protocol.StatusAccepted
	changed := false
	var removed []advertisedTarget

	for _, g := range dao.Options.TargetGroups() {
		lifetime := d.Config.DefaultLifetime
		pathSeq, hasSeq := uint8(0), false
		if g.Transit != nil {
			lifetime = g.Transit.PathLifetime
			pathSeq, hasSeq = g.Transit.PathSequence, true
		}
		for _, opt := range g.Targets {
			target, ok := daoTarget(d, opt)
			if !ok {
				status = protocol.StatusInvalidTarget
				r.Log(InvalidMessage, "dao target outside of dodag prefix", "from", from, "target", opt.Target, "len", opt.PrefixLength)
				continue
			}
			existing, has := inst.Routes.Get(target)
			seq := pathSeq
			if has && !hasSeq {
				seq = existing.PathSequence
			}
			if has && hasSeq && existing.NextHop != from && state.SeqnoGt(existing.PathSequence, pathSeq) {
				// the owner of the target has since announced a newer path through another neighbour
				continue
			}
			// 9.4.3.  Transit Information Option
			//
			//	A DAO with a Path Lifetime of 0x00 is a No-Path DAO
			if lifetime == 0 {
				if has && existing.NextHop == from {
					inst.Routes.Remove(target)
					r.TableDeleteRoute(target)
					removed = append(removed, advertisedTarget{target, seq})
					r.Log(RouteRemoved, "no-path dao", "target", target, "via", from)
				}
				continue
			}
			created, err := inst.Routes.InsertOrRefresh(target, from, seq, d.Config.LifetimeOf(lifetime), now)
			if err != nil {
				if status == protocol.StatusAccepted {
					status = protocol.StatusNoRoutingEntry
				}
				r.Log(ResourceExhausted, "cannot store dao target", "target", target, "err", err)
				continue
			}
			if created || existing.NextHop != from {
				r.TableInsertRoute(target, from)
				r.Log(RouteAdded, "installed downward route", "target", target, "via", from)
				changed = true
			} else if existing.PathSequence != seq {
				// ancestors need the newer path sequence
				changed = true
			}
		}
	}
	s.DaoDedup.Set(key, status, ttlcache.DefaultTTL)
	ack(status)

	if !d.IsRoot() {
		if changed {
			scheduleDao(s, r, d)
		}
		if len(removed) > 0 && d.Preferred.IsValid() {
			sendNoPath(s, r, d, d.Preferred, removed)
		}
	}
	return nil
}

// HandleDAOAck completes an outstanding DAO transmission
func HandleDAOAck(s *state.RouterState, r Router, from netip.Addr, ack *protocol.DAOAck) error {
	d := s.Dodag(ack.InstanceId)
	if d == nil {
		return fmt.Errorf("dao-ack from %s for instance %d: %w", from, ack.InstanceId, ErrUnknownInstance)
	}
	if from != d.Preferred || !d.Dao.Outstanding || ack.Sequence != d.Dao.AckSequence {
		// late or duplicate acknowledgement
		return nil
	}
	d.Dao.Outstanding = false
	if !d.Dao.Pending {
		r.Cancel(timerKey(d, state.TimerDao))
	}
	p := d.PreferredParent()
	if ack.Rejected() {
		r.Log(DaoRejected, "parent rejected dao", "parent", from, "seq", ack.Sequence, "status", ack.Status)
		if p != nil {
			d.OF.ParentStateCallback(p, state.ParentTxFailed, d.Dao.Retries+1)
		}
		if ack.Status == protocol.StatusLoopDetected && removeParent(r, d, from) {
			// our parent routes through us
			updatePreferredParent(s, r, d)
		}
		return nil
	}
	if p != nil {
		d.OF.ParentStateCallback(p, state.ParentTxOk, d.Dao.Retries+1)
	}
	r.Log(DaoAcked, "dao acknowledged", "parent", from, "seq", ack.Sequence)
	return nil
}
