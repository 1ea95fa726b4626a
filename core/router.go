package core

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/encodeous/rpld/perf"
	"github.com/encodeous/rpld/protocol"
	"github.com/encodeous/rpld/state"
)

// RplRouter binds the protocol algorithm to the dispatch loop, the system clock and a Transport
type RplRouter struct {
	*state.State
	Transport Transport
	timers    map[state.TimerKey]*pendingTimer
	gen       uint64
}

type pendingTimer struct {
	gen   uint64
	at    time.Time
	timer *time.Timer
}

func (r *RplRouter) Send(dst netip.Addr, msg protocol.Message) {
	b := protocol.Marshal(msg)
	if err := r.Transport.Send(dst, b); err != nil {
		r.Env.Log.Warn("failed to send control message", "dst", dst, "code", msg.Code(), "err", err)
		return
	}
	perf.SentPacketPerSecond.Add(1)
	perf.SentBytesPerSecond.Add(float64(len(b)))
	switch msg.Code() {
	case protocol.CodeDIO:
		perf.DioSent.Add(1)
	case protocol.CodeDIS:
		perf.DisSent.Add(1)
	case protocol.CodeDAO:
		perf.DaoSent.Add(1)
	case protocol.CodeDAOAck:
		perf.DaoAckSent.Add(1)
	}
}

// Schedule arms a timer on the dispatch loop. Only the latest schedule of a key can fire.
func (r *RplRouter) Schedule(key state.TimerKey, at time.Time) {
	if old, ok := r.timers[key]; ok {
		old.timer.Stop()
	}
	r.gen++
	gen := r.gen
	pt := &pendingTimer{gen: gen, at: at}
	pt.timer = r.ScheduleTask(func(s *state.State) error {
		cur, ok := r.timers[key]
		if !ok || cur.gen != gen {
			// cancelled or rescheduled after this fire was queued
			return nil
		}
		delete(r.timers, key)
		r.fire(s, key)
		return nil
	}, time.Until(at))
	r.timers[key] = pt
}

func (r *RplRouter) Cancel(key state.TimerKey) {
	if pt, ok := r.timers[key]; ok {
		pt.timer.Stop()
		delete(r.timers, key)
	}
}

func (r *RplRouter) fire(s *state.State, key state.TimerKey) {
	err := HandleTimer(s.RouterState, r, key)
	if err == nil {
		return
	}
	if errors.Is(err, ErrRetransmissionExhausted) {
		perf.DaoExhausted.Add(1)
	}
	s.Log.Warn("timer action failed", "timer", key, "err", err)
}

func (r *RplRouter) Now() time.Time {
	return time.Now()
}

func (r *RplRouter) LinkMetric(addr netip.Addr) float64 {
	if r.Metrics == nil {
		return 0
	}
	r.Metrics.Track(addr)
	return r.Metrics.MetricFor(addr)
}

func (r *RplRouter) Log(event RouterEvent, desc string, args ...any) {
	switch event {
	case TrickleReset:
		perf.TrickleResets.Add(1)
	case ResourceExhausted:
		perf.ResourceExhausted.Add(1)
	}
	if event.IsWarning() {
		r.Env.Log.Warn(fmt.Sprintf("%s %s", event.String(), desc), args...)
	} else {
		r.Env.Log.Debug(fmt.Sprintf("%s %s", event.String(), desc), args...)
	}
}

func (r *RplRouter) TableInsertRoute(target netip.Prefix, nextHop netip.Addr) {
	if r.NoNetConfigure {
		return
	}
	if err := ConfigureRoute(r.Env.Log, r.InterfaceName, target, nextHop); err != nil {
		r.Env.Log.Error("failed to install route", "target", target, "via", nextHop, "err", err)
	}
}

func (r *RplRouter) TableDeleteRoute(target netip.Prefix) {
	if r.NoNetConfigure {
		return
	}
	if err := RemoveRoute(r.Env.Log, r.InterfaceName, target); err != nil {
		r.Env.Log.Error("failed to remove route", "target", target, "err", err)
	}
}

// LookupRoute returns the downward next hop towards dst. Safe to call from any goroutine.
func (r *RplRouter) LookupRoute(dst netip.Addr) (netip.Addr, bool) {
	res, err := r.Env.DispatchWait(func(s *state.State) (any, error) {
		for _, inst := range s.Instances.Active() {
			if nh, ok := inst.Routes.Lookup(dst); ok {
				return nh, nil
			}
		}
		return nil, nil
	})
	if err != nil || res == nil {
		return netip.Addr{}, false
	}
	return res.(netip.Addr), true
}

// Rank returns our rank in an instance, InfiniteRank when not joined. Safe to call from any goroutine.
func (r *RplRouter) Rank(instance uint8) state.Rank {
	res, err := r.Env.DispatchWait(func(s *state.State) (any, error) {
		d := s.Dodag(instance)
		if d == nil {
			return state.InfiniteRank, nil
		}
		return d.Rank, nil
	})
	if err != nil {
		return state.InfiniteRank
	}
	return res.(state.Rank)
}

// Preferred returns our preferred parent in an instance. Safe to call from any goroutine.
func (r *RplRouter) Preferred(instance uint8) (netip.Addr, bool) {
	res, err := r.Env.DispatchWait(func(s *state.State) (any, error) {
		d := s.Dodag(instance)
		if d == nil {
			return netip.Addr{}, nil
		}
		return d.Preferred, nil
	})
	if err != nil {
		return netip.Addr{}, false
	}
	addr := res.(netip.Addr)
	return addr, addr.IsValid()
}

// Repair starts a global repair of a DODAG we are root of. Safe to call from any goroutine.
func (r *RplRouter) Repair(instance uint8) error {
	_, err := r.Env.DispatchWait(func(s *state.State) (any, error) {
		return nil, GlobalRepair(s.RouterState, r, instance)
	})
	return err
}

func (r *RplRouter) Init(s *state.State) error {
	s.Log.Debug("init router")
	r.State = s
	r.timers = make(map[state.TimerKey]*pendingTimer)
	s.RouterState = state.NewRouterState(s.LocalCfg.Id, s.LocalCfg.Address, &s.Env.LocalCfg, nil)

	s.Metrics = s.GetLinkMetrics()
	s.Metrics.Start(s.Log)

	for _, icfg := range s.RootInstances() {
		if err := InitRoot(s.RouterState, r, &icfg); err != nil {
			return fmt.Errorf("failed to start root of instance %d: %w", icfg.InstanceId, err)
		}
	}
	if len(s.RootInstances()) == 0 {
		StartSolicitation(s.RouterState, r, 0)
	}

	s.Log.Debug("schedule router tasks")
	s.Env.RepeatTask(func(s *state.State) error {
		RunGC(s.RouterState, r)
		return nil
	}, state.GcDelay)
	return nil
}

func (r *RplRouter) Cleanup(s *state.State) error {
	for key := range r.timers {
		r.Cancel(key)
	}
	if s.Metrics != nil {
		s.Metrics.Stop()
	}
	if s.RouterState != nil {
		for _, inst := range s.Instances.Active() {
			for _, e := range inst.Routes.All() {
				r.TableDeleteRoute(e.Target)
			}
		}
		s.DaoDedup.DeleteAll()
	}
	return nil
}
