package core

import (
	"log/slog"
	"net/netip"
)

func CheckPrivileges(netAdmin bool) error {
	return nil
}

func InitInterface(logger *slog.Logger, ifName string) error {
	return nil
}

func ConfigureAlias(logger *slog.Logger, ifName string, addr netip.Addr) error {
	return Exec(logger, "netsh", "interface", "ipv6", "add", "address", ifName, addr.String())
}

func ConfigureRoute(logger *slog.Logger, itfName string, route netip.Prefix, via netip.Addr) error {
	return Exec(logger, "netsh", "interface", "ipv6", "add", "route", route.String(), itfName, via.WithZone("").String())
}

func RemoveRoute(logger *slog.Logger, itfName string, route netip.Prefix) error {
	return Exec(logger, "netsh", "interface", "ipv6", "delete", "route", route.String(), itfName)
}
