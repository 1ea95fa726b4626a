package state

import "fmt"

type TimerKind int

const (
	// TimerTrickle fires at the Trickle transmission point or interval end
	TimerTrickle TimerKind = iota
	// TimerDao sends a pending DAO or retransmits an unacknowledged one
	TimerDao
	// TimerDaoRefresh re-announces downward routes before they expire
	TimerDaoRefresh
	// TimerDis solicits DIOs while the node has not joined
	TimerDis
	// TimerPoison ends the poisoning window
	TimerPoison
)

func (k TimerKind) String() string {
	switch k {
	case TimerTrickle:
		return "trickle"
	case TimerDao:
		return "dao"
	case TimerDaoRefresh:
		return "dao-refresh"
	case TimerDis:
		return "dis"
	case TimerPoison:
		return "poison"
	default:
		return fmt.Sprintf("timer(%d)", int(k))
	}
}

// TimerKey identifies a pending timer. Scheduling a key replaces its pending fire.
type TimerKey struct {
	Instance uint8
	Kind     TimerKind
}

func (k TimerKey) String() string {
	return fmt.Sprintf("%s/%d", k.Kind, k.Instance)
}
