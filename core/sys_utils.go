package core

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os/exec"
	"strings"
)

// ExecSplit runs a post_up or pre_down command line
func ExecSplit(logger *slog.Logger, command string) error {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil
	}
	return Exec(logger, parts[0], parts[1:]...)
}

func Exec(logger *slog.Logger, name string, arg ...string) error {
	out, err := exec.Command(name, arg...).CombinedOutput()
	logger.Debug("exec command", "cmd", name, "arg", arg, "out", string(out))
	if err != nil {
		return fmt.Errorf("%s %s failed: %w, output: %s", name, strings.Join(arg, " "), err, out)
	}
	return nil
}

// HasAddress reports whether addr is already assigned to the interface
func HasAddress(ifName string, addr netip.Addr) bool {
	itf, err := net.InterfaceByName(ifName)
	if err != nil {
		return false
	}
	addrs, err := itf.Addrs()
	if err != nil {
		return false
	}
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if cur, ok := netip.AddrFromSlice(ipn.IP); ok && cur.Unmap() == addr {
			return true
		}
	}
	return false
}
