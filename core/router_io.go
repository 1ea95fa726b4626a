package core

import (
	"errors"
	"net/netip"

	"github.com/encodeous/rpld/perf"
	"github.com/encodeous/rpld/protocol"
	"github.com/encodeous/rpld/state"
)

// handlePacket decodes an inbound control message and runs its handler.
// Faults caused by network input are logged and never stop the main loop.
func handlePacket(s *state.State, src netip.Addr, b []byte) error {
	r := Get[*RplRouter](s)
	msg, err := protocol.Unmarshal(b)
	if err != nil {
		perf.DecodeErrors.Add(1)
		s.Log.Debug("dropped undecodable packet", "from", src, "len", len(b), "err", err)
		return nil
	}
	err = dispatchMessage(s.RouterState, r, src, msg)
	if err != nil {
		logPacketError(s, src, msg, err)
	}
	return nil
}

func dispatchMessage(s *state.RouterState, r Router, src netip.Addr, msg protocol.Message) error {
	switch m := msg.(type) {
	case *protocol.DIO:
		return HandleDIO(s, r, src, m)
	case *protocol.DIS:
		return HandleDIS(s, r, src, m)
	case *protocol.DAO:
		return HandleDAO(s, r, src, m)
	case *protocol.DAOAck:
		return HandleDAOAck(s, r, src, m)
	}
	return nil
}

func logPacketError(s *state.State, src netip.Addr, msg protocol.Message, err error) {
	switch {
	case errors.Is(err, state.ErrLoopAvoidance), errors.Is(err, ErrUnknownInstance):
		// expected while the dodag converges
		s.Log.Debug("ignored control message", "from", src, "code", msg.Code(), "err", err)
	default:
		s.Log.Warn("failed to handle control message", "from", src, "code", msg.Code(), "err", err)
	}
}
