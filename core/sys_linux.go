package core

import (
	"fmt"
	"log/slog"
	"net/netip"

	"golang.org/x/sys/unix"
)

// CheckPrivileges fails when the process cannot open a raw ICMPv6 socket, or cannot change routes when netAdmin is set
func CheckPrivileges(netAdmin bool) error {
	if unix.Geteuid() == 0 {
		return nil
	}
	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData
	if err := unix.Capget(&hdr, &data[0]); err != nil {
		return fmt.Errorf("capget: %w", err)
	}
	need := map[int]string{unix.CAP_NET_RAW: "CAP_NET_RAW"}
	if netAdmin {
		need[unix.CAP_NET_ADMIN] = "CAP_NET_ADMIN"
	}
	for c, name := range need {
		if data[c/32].Effective&(1<<(uint(c)%32)) == 0 {
			return fmt.Errorf("missing %s, run as root or grant the capability", name)
		}
	}
	return nil
}

func InitInterface(logger *slog.Logger, ifName string) error {
	return Exec(logger, "ip", "link", "set", ifName, "up")
}

func ConfigureAlias(logger *slog.Logger, ifName string, addr netip.Addr) error {
	if HasAddress(ifName, addr) {
		return nil
	}
	return Exec(logger, "ip", "-6", "addr", "add", AddrToPrefix(addr).String(), "dev", ifName)
}

func ConfigureRoute(logger *slog.Logger, itfName string, route netip.Prefix, via netip.Addr) error {
	return Exec(logger, "ip", "-6", "route", "replace", route.String(), "via", via.String(), "dev", itfName, "proto", "static")
}

func RemoveRoute(logger *slog.Logger, itfName string, route netip.Prefix) error {
	return Exec(logger, "ip", "-6", "route", "del", route.String(), "dev", itfName)
}
