package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/encodeous/rpld/state"
)

// IPCGet sends one command to a running daemon and returns its reply
func IPCGet(ctlPath, command string) (string, error) {
	conn, err := net.DialTimeout("unix", ctlPath, time.Second*5)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	_, err = rw.WriteString(command + "\n")
	if err != nil {
		return "", err
	}
	err = rw.Flush()
	if err != nil {
		return "", err
	}

	res, err := rw.ReadString(0)
	if err != nil && err != io.EOF {
		return "", err
	}
	res = strings.TrimSuffix(res, "\x00")
	if msg, ok := strings.CutPrefix(res, "error: "); ok {
		return "", errors.New(strings.TrimSpace(msg))
	}
	return res, nil
}

// ListenIPC serves control commands on a unix socket until the listener is closed
func ListenIPC(e *state.Env, ctlPath string) (net.Listener, error) {
	_ = os.Remove(ctlPath)
	l, err := net.Listen("unix", ctlPath)
	if err != nil {
		return nil, err
	}
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					e.Log.Warn("failed to accept control connection", "err", err)
				}
				return
			}
			go func() {
				defer conn.Close()
				rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
				if err := HandleIPC(e, rw); err != nil {
					e.Log.Debug("control command failed", "err", err)
				}
			}()
		}
	}()
	return l, nil
}

func HandleIPC(e *state.Env, rw *bufio.ReadWriter) error {
	cmd, err := rw.ReadString('\n')
	if err != nil {
		return err
	}
	fields := strings.Fields(cmd)
	var reply string
	switch {
	case len(fields) == 1 && fields[0] == "inspect":
		res, err := e.DispatchWait(func(s *state.State) (any, error) {
			return InspectReport(s), nil
		})
		if err != nil {
			reply = "error: " + err.Error()
		} else {
			reply = res.(string)
		}
	case len(fields) == 2 && fields[0] == "repair":
		id, perr := strconv.ParseUint(fields[1], 10, 8)
		if perr != nil {
			reply = fmt.Sprintf("error: invalid instance %q", fields[1])
			break
		}
		_, err = e.DispatchWait(func(s *state.State) (any, error) {
			return nil, GlobalRepair(s.RouterState, Get[*RplRouter](s), uint8(id))
		})
		if err != nil {
			reply = "error: " + err.Error()
		} else {
			reply = fmt.Sprintf("started global repair of instance %d\n", id)
		}
	default:
		reply = fmt.Sprintf("error: unknown command %q", strings.TrimSpace(cmd))
	}
	_, err = rw.WriteString(reply)
	if err != nil {
		return err
	}
	err = rw.WriteByte(0)
	if err != nil {
		return err
	}
	return rw.Flush()
}

// InspectReport renders the protocol state of this node
func InspectReport(s *state.State) string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("Node %s (%s)\n", s.Id, s.Address))
	insts := s.Instances.Active()
	if len(insts) == 0 {
		sb.WriteString("\nNo active instance\n")
	}
	now := time.Now()
	for _, inst := range insts {
		sb.WriteString(fmt.Sprintf("\nInstance %d:\n", inst.Id))
		d := inst.Dodag
		if d == nil || !d.Used {
			sb.WriteString(" (no dodag)\n")
			continue
		}
		sb.WriteString(fmt.Sprintf(" DODAG:     %s\n", d.Id))
		sb.WriteString(fmt.Sprintf(" Role:      %s\n", d.Role))
		sb.WriteString(fmt.Sprintf(" Status:    %s\n", d.Status))
		sb.WriteString(fmt.Sprintf(" Version:   %d\n", d.Version))
		sb.WriteString(fmt.Sprintf(" Rank:      %s\n", d.Rank))
		sb.WriteString(fmt.Sprintf(" OCP:       %d\n", d.Config.OCP))
		if d.Prefix.IsValid() {
			sb.WriteString(fmt.Sprintf(" Prefix:    %s\n", d.Prefix))
		}
		if d.Preferred.IsValid() {
			sb.WriteString(fmt.Sprintf(" Preferred: %s\n", d.Preferred))
		}
		if d.Trickle.Running() {
			sb.WriteString(fmt.Sprintf(" Trickle:   I=%s c=%d\n", d.Trickle.I, d.Trickle.C))
		}

		sb.WriteString("\n Parents:\n")
		parents := d.Parents.All()
		if len(parents) == 0 {
			sb.WriteString("  (none)\n")
		}
		for _, p := range parents {
			mark := " "
			if p.Addr == d.Preferred {
				mark = "*"
			}
			sb.WriteString(fmt.Sprintf(" %s %s expires %.2fs\n", mark, p, p.ExpireAt.Sub(now).Seconds()))
		}

		sb.WriteString("\n Routes:\n")
		routes := inst.Routes.All()
		if len(routes) == 0 {
			sb.WriteString("  (none)\n")
		}
		for _, e := range routes {
			sb.WriteString(fmt.Sprintf("  - %s\n", e))
		}
	}
	return sb.String()
}
