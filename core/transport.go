package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/encodeous/rpld/perf"
	"github.com/encodeous/rpld/protocol"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv6"
)

// Transport carries encoded ICMPv6 RPL messages to and from neighbours
type Transport interface {
	Send(dst netip.Addr, b []byte) error
	// Run delivers inbound messages until ctx is cancelled or the transport is closed
	Run(ctx context.Context, deliver func(src netip.Addr, b []byte)) error
	Close() error
}

// IcmpTransport sends and receives RPL messages on a raw ICMPv6 socket bound to one interface
type IcmpTransport struct {
	itf   *net.Interface
	conn  *icmp.PacketConn
	group netip.Addr
}

func NewIcmpTransport(itfName string, group netip.Addr) (*IcmpTransport, error) {
	itf, err := net.InterfaceByName(itfName)
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", itfName, err)
	}
	conn, err := icmp.ListenPacket("ip6:ipv6-icmp", "::")
	if err != nil {
		return nil, err
	}
	t := &IcmpTransport{
		itf:   itf,
		conn:  conn,
		group: group,
	}
	if err = t.configure(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return t, nil
}

func (t *IcmpTransport) configure() error {
	pc := t.conn.IPv6PacketConn()
	var filter ipv6.ICMPFilter
	filter.SetAll(true)
	filter.Accept(ipv6.ICMPType(protocol.ICMPv6TypeRPL))
	if err := pc.SetICMPFilter(&filter); err != nil {
		return fmt.Errorf("set icmp filter: %w", err)
	}
	if err := pc.JoinGroup(t.itf, &net.IPAddr{IP: t.group.AsSlice()}); err != nil {
		return fmt.Errorf("join %s on %s: %w", t.group, t.itf.Name, err)
	}
	if err := pc.SetMulticastInterface(t.itf); err != nil {
		return err
	}
	if err := pc.SetMulticastLoopback(false); err != nil {
		return err
	}
	return pc.SetMulticastHopLimit(255)
}

func (t *IcmpTransport) Send(dst netip.Addr, b []byte) error {
	addr := &net.IPAddr{IP: dst.AsSlice()}
	if dst.IsLinkLocalUnicast() || dst.IsLinkLocalMulticast() || dst.IsInterfaceLocalMulticast() {
		addr.Zone = t.itf.Name
	}
	_, err := t.conn.WriteTo(b, addr)
	return err
}

func (t *IcmpTransport) Run(ctx context.Context, deliver func(src netip.Addr, b []byte)) error {
	go func() {
		<-ctx.Done()
		_ = t.conn.Close()
	}()
	buf := make([]byte, 1500)
	for {
		n, src, err := t.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		ipAddr, ok := src.(*net.IPAddr)
		if !ok {
			continue
		}
		addr, ok := netip.AddrFromSlice(ipAddr.IP)
		if !ok {
			continue
		}
		perf.RecvPacketPerSecond.Add(1)
		perf.RecvBytesPerSecond.Add(float64(n))
		deliver(addr.Unmap(), append([]byte(nil), buf[:n]...))
	}
}

func (t *IcmpTransport) Close() error {
	return t.conn.Close()
}
