package core

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/netip"
	"sync"
	"time"

	"github.com/encodeous/rpld/state"
)

type VirtualLink struct {
	From       netip.Addr
	To         netip.Addr
	Latency    time.Duration
	Jitter     time.Duration
	PacketLoss float64
}

func (v *VirtualLink) WithLatency(lat, jitter time.Duration) *VirtualLink {
	v.Latency = lat
	v.Jitter = jitter
	return v
}

func (v *VirtualLink) WithPacketLoss(loss float64) *VirtualLink {
	v.PacketLoss = loss
	return v
}

type virtualPacket struct {
	src netip.Addr
	b   []byte
}

// VirtualNetwork is an in-memory link layer connecting Transports. Links are directional.
type VirtualNetwork struct {
	sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	ports  map[netip.Addr]*virtualPort
	links  map[state.Pair[netip.Addr, netip.Addr]]*VirtualLink
	// Filter is called for every packet before it is delivered. Return true to drop the packet.
	Filter func(src, dst netip.Addr, b []byte) bool
}

var errVirtualClosed = errors.New("virtual port closed")

func NewVirtualNetwork() *VirtualNetwork {
	ctx, cancel := context.WithCancel(context.Background())
	return &VirtualNetwork{
		ctx:    ctx,
		cancel: cancel,
		ports:  make(map[netip.Addr]*virtualPort),
		links:  make(map[state.Pair[netip.Addr, netip.Addr]]*VirtualLink),
	}
}

// Attach creates the transport of the node with address addr
func (n *VirtualNetwork) Attach(addr netip.Addr) Transport {
	n.Lock()
	defer n.Unlock()
	p := &virtualPort{
		net:     n,
		addr:    addr,
		inbound: make(chan virtualPacket, 256),
		closed:  make(chan struct{}),
	}
	n.ports[addr] = p
	return p
}

func (n *VirtualNetwork) AddLink(from, to netip.Addr) *VirtualLink {
	n.Lock()
	defer n.Unlock()
	link := &VirtualLink{From: from, To: to}
	n.links[state.Pair[netip.Addr, netip.Addr]{V1: from, V2: to}] = link
	return link
}

// Connect adds links in both directions
func (n *VirtualNetwork) Connect(a, b netip.Addr) (*VirtualLink, *VirtualLink) {
	return n.AddLink(a, b), n.AddLink(b, a)
}

func (n *VirtualNetwork) RemoveLink(from, to netip.Addr) {
	n.Lock()
	defer n.Unlock()
	delete(n.links, state.Pair[netip.Addr, netip.Addr]{V1: from, V2: to})
}

// Disconnect removes the links in both directions
func (n *VirtualNetwork) Disconnect(a, b netip.Addr) {
	n.RemoveLink(a, b)
	n.RemoveLink(b, a)
}

// Stop drops all in-flight packets and waits for delayed deliveries to finish
func (n *VirtualNetwork) Stop() {
	n.cancel()
	n.wg.Wait()
}

func (n *VirtualNetwork) send(src, dst netip.Addr, b []byte) {
	n.Lock()
	var targets []*VirtualLink
	if dst.IsMulticast() {
		for k, link := range n.links {
			if k.V1 == src {
				targets = append(targets, link)
			}
		}
	} else if link, ok := n.links[state.Pair[netip.Addr, netip.Addr]{V1: src, V2: dst}]; ok {
		targets = append(targets, link)
	}
	filter := n.Filter
	n.Unlock()

	for _, link := range targets {
		if filter != nil && filter(src, link.To, b) {
			continue
		}
		n.simulate(link, virtualPacket{src: src, b: append([]byte(nil), b...)})
	}
}

func (n *VirtualNetwork) simulate(link *VirtualLink, pkt virtualPacket) {
	if link.PacketLoss > 0 && rand.Float64() < link.PacketLoss {
		return
	}
	if link.Latency == 0 {
		n.deliver(link.To, pkt)
		return
	}
	lat := link.Latency + time.Duration(rand.Float64()*float64(link.Jitter))
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		select {
		case <-n.ctx.Done():
		case <-time.After(lat):
			n.deliver(link.To, pkt)
		}
	}()
}

func (n *VirtualNetwork) deliver(to netip.Addr, pkt virtualPacket) {
	n.Lock()
	p, ok := n.ports[to]
	n.Unlock()
	if !ok {
		return
	}
	select {
	case p.inbound <- pkt:
	case <-p.closed:
	default:
		// queue full, the link drops the packet
	}
}

type virtualPort struct {
	net     *VirtualNetwork
	addr    netip.Addr
	inbound chan virtualPacket
	closed  chan struct{}
	once    sync.Once
}

func (p *virtualPort) Send(dst netip.Addr, b []byte) error {
	select {
	case <-p.closed:
		return errVirtualClosed
	default:
	}
	p.net.send(p.addr, dst, b)
	return nil
}

func (p *virtualPort) Run(ctx context.Context, deliver func(src netip.Addr, b []byte)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.closed:
			return nil
		case pkt := <-p.inbound:
			deliver(pkt.src, pkt.b)
		}
	}
}

func (p *virtualPort) Close() error {
	p.once.Do(func() {
		close(p.closed)
		p.net.Lock()
		if p.net.ports[p.addr] == p {
			delete(p.net.ports, p.addr)
		}
		p.net.Unlock()
	})
	return nil
}
