//go:build !linux && !darwin && !windows

package core

import (
	"errors"
	"log/slog"
	"net/netip"
)

var errUnsupportedPlatform = errors.New("system network configuration is not supported on this platform, set no_net_configure")

func CheckPrivileges(netAdmin bool) error {
	return nil
}

func InitInterface(logger *slog.Logger, ifName string) error {
	return errUnsupportedPlatform
}

func ConfigureAlias(logger *slog.Logger, ifName string, addr netip.Addr) error {
	return errUnsupportedPlatform
}

func ConfigureRoute(logger *slog.Logger, itfName string, route netip.Prefix, via netip.Addr) error {
	return errUnsupportedPlatform
}

func RemoveRoute(logger *slog.Logger, itfName string, route netip.Prefix) error {
	return errUnsupportedPlatform
}
