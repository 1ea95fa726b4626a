package core

import (
	"errors"
	"log/slog"
	"net/netip"

	"golang.org/x/sys/unix"
)

// CheckPrivileges fails when the process cannot open a raw ICMPv6 socket
func CheckPrivileges(netAdmin bool) error {
	if unix.Geteuid() != 0 {
		return errors.New("rpld must run as root")
	}
	return nil
}

func InitInterface(logger *slog.Logger, ifName string) error {
	return nil
}

func ConfigureAlias(logger *slog.Logger, ifName string, addr netip.Addr) error {
	return Exec(logger, "/sbin/ifconfig", ifName, "inet6", addr.String(), "prefixlen", "128", "alias")
}

func ConfigureRoute(logger *slog.Logger, itfName string, route netip.Prefix, via netip.Addr) error {
	gw := via.String()
	if via.IsLinkLocalUnicast() {
		gw = via.WithZone(itfName).String()
	}
	return Exec(logger, "/sbin/route", "-n", "add", "-inet6", route.String(), gw)
}

func RemoveRoute(logger *slog.Logger, itfName string, route netip.Prefix) error {
	return Exec(logger, "/sbin/route", "-n", "delete", "-inet6", route.String())
}
