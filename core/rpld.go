package core

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/encodeous/rpld/state"
)

// Rpld owns the host facing side of the daemon: the network interface, the transport and the control socket
type Rpld struct {
	Transport Transport
	ctl       net.Listener
	done      chan struct{}
}

func openTransport(s *state.State) (Transport, error) {
	if x, ok := s.AuxConfig["transport"]; ok {
		t, ok := x.(Transport)
		if !ok {
			return nil, fmt.Errorf("aux config \"transport\" is a %T, not a Transport", x)
		}
		return t, nil
	}
	if s.InterfaceName == "" {
		return nil, errors.New("no interface configured")
	}
	return NewIcmpTransport(s.InterfaceName, s.RouterState.Multicast)
}

func (n *Rpld) Init(s *state.State) error {
	s.Log.Debug("init rpld")
	n.done = make(chan struct{})

	if _, injected := s.AuxConfig["transport"]; !injected {
		if err := CheckPrivileges(!s.NoNetConfigure); err != nil {
			return err
		}
	}

	if !s.NoNetConfigure {
		if err := InitInterface(s.Log, s.InterfaceName); err != nil {
			return err
		}
		if err := ConfigureAlias(s.Log, s.InterfaceName, s.LocalCfg.Address); err != nil {
			s.Log.Warn("failed to configure address", "addr", s.LocalCfg.Address, "err", err)
		}
	}

	t, err := openTransport(s)
	if err != nil {
		return fmt.Errorf("failed to open transport: %w", err)
	}
	n.Transport = t
	Get[*RplRouter](s).Transport = t

	go func() {
		defer close(n.done)
		err := t.Run(s.Context, func(src netip.Addr, b []byte) {
			s.Dispatch(func(s *state.State) error {
				return handlePacket(s, src, b)
			})
		})
		if err != nil {
			s.Cancel(fmt.Errorf("transport failed: %w", err))
		}
	}()

	if s.CtlPath != "" {
		n.ctl, err = ListenIPC(s.Env, s.CtlPath)
		if err != nil {
			return err
		}
	}

	if !s.NoNetConfigure {
		for _, cmd := range s.PostUp {
			err = ExecSplit(s.Log, cmd)
			if err != nil {
				s.Log.Error("failed to run post-up command", "err", err)
			}
		}
	}
	return nil
}

func (n *Rpld) Cleanup(s *state.State) error {
	if !s.NoNetConfigure {
		for _, cmd := range s.PreDown {
			err := ExecSplit(s.Log, cmd)
			if err != nil {
				s.Log.Error("failed to run pre-down command", "err", err)
			}
		}
	}
	if n.ctl != nil {
		_ = n.ctl.Close()
	}
	if n.Transport != nil {
		err := n.Transport.Close()
		<-n.done
		return err
	}
	return nil
}
