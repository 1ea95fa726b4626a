//go:build integration

package integration

import (
	"net/netip"
	"testing"
	"time"

	"github.com/encodeous/rpld/protocol"
	"github.com/encodeous/rpld/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	vh := &VirtualHarness{}
	vh.NewRoot("root", "2001:db8::1")
	vh.NewNode("node1", "2001:db8::2")
	vh.NewNode("node2", "2001:db8::3")
	errs := vh.Start()
	select {
	case <-time.After(500 * time.Millisecond):
	case err := <-errs:
		t.Error(err)
	}
	// no links, nobody can join
	assert.Equal(t, state.InfiniteRank, vh.Router("node1").Rank(HarnessInstance))
	assert.Equal(t, state.Rank(256), vh.Router("root").Rank(HarnessInstance))
	vh.Stop()
}

func TestChainConvergence(t *testing.T) {
	defer goleak.VerifyNone(t)
	vh := &VirtualHarness{}
	vh.NewRoot("r", "2001:db8::1")
	vh.NewNode("a", "2001:db8::2")
	vh.NewNode("b", "2001:db8::3")
	vh.Prepare()
	// r <-> a <-> b
	vh.Connect("r", "a")
	vh.Connect("a", "b")

	errs := vh.Start()
	defer vh.Stop()

	ok := Eventually(10*time.Second, func() bool {
		return vh.Router("b").Rank(HarnessInstance) == 768
	})
	require.True(t, ok, "b did not join")
	assert.Equal(t, state.Rank(512), vh.Router("a").Rank(HarnessInstance))

	pref, ok := vh.Router("b").Preferred(HarnessInstance)
	require.True(t, ok)
	assert.Equal(t, vh.Addr("a"), pref)

	// downward routes are learned from storing mode DAOs
	ok = Eventually(10*time.Second, func() bool {
		nh, ok := vh.Router("r").LookupRoute(vh.Addr("b"))
		return ok && nh == vh.Addr("a")
	})
	require.True(t, ok, "root has no route to b")
	nh, ok := vh.Router("a").LookupRoute(vh.Addr("b"))
	require.True(t, ok)
	assert.Equal(t, vh.Addr("b"), nh)

	select {
	case err := <-errs:
		t.Error(err)
	default:
	}
}

func TestOptimalConvergence(t *testing.T) {
	defer goleak.VerifyNone(t)
	vh := &VirtualHarness{}
	vh.NewRoot("r", "2001:db8::1")
	vh.NewNode("a", "2001:db8::2")
	vh.NewNode("b", "2001:db8::3")
	vh.NewNode("c", "2001:db8::4")
	vh.Prepare()
	// r <-> a <-> b <-> c
	vh.Connect("r", "a")
	vh.Connect("a", "b")
	vh.Connect("b", "c")

	_ = vh.Start()
	defer vh.Stop()

	ok := Eventually(10*time.Second, func() bool {
		return vh.Router("c").Rank(HarnessInstance) == 1024
	})
	require.True(t, ok, "c did not join")

	// r <-> c
	vh.Connect("r", "c")
	require.NoError(t, vh.Router("r").Repair(HarnessInstance))

	ok = Eventually(10*time.Second, func() bool {
		pref, ok := vh.Router("c").Preferred(HarnessInstance)
		return ok && pref == vh.Addr("r")
	})
	require.True(t, ok, "c did not move to the root")
	assert.Equal(t, state.Rank(512), vh.Router("c").Rank(HarnessInstance))

	ok = Eventually(10*time.Second, func() bool {
		nh, ok := vh.Router("r").LookupRoute(vh.Addr("c"))
		return ok && nh == vh.Addr("c")
	})
	assert.True(t, ok, "root still routes to c through the chain")
}

func TestDaoReachesRoot(t *testing.T) {
	defer goleak.VerifyNone(t)
	vh := &VirtualHarness{}
	vh.NewRoot("r", "2001:db8::1")
	vh.NewNode("a", "2001:db8::2")
	vh.Prepare()
	vh.Connect("r", "a")

	root := vh.Addr("r")
	arrived := NewSignal()
	vh.Net.Filter = func(src, dst netip.Addr, b []byte) bool {
		if dst != root {
			return false
		}
		msg, err := protocol.Unmarshal(b)
		if err == nil && msg.Code() == protocol.CodeDAO {
			arrived.Trigger()
		}
		return false
	}

	_ = vh.Start()
	defer vh.Stop()

	select {
	case <-arrived:
	case <-time.After(10 * time.Second):
		t.Fatal("no DAO reached the root")
	}
	ok := Eventually(5*time.Second, func() bool {
		nh, ok := vh.Router("r").LookupRoute(vh.Addr("a"))
		return ok && nh == vh.Addr("a")
	})
	assert.True(t, ok)
}

func TestLossyConvergence(t *testing.T) {
	defer goleak.VerifyNone(t)
	vh := &VirtualHarness{}
	vh.NewRoot("r", "2001:db8::1")
	vh.NewNode("a", "2001:db8::2")
	vh.NewNode("b", "2001:db8::3")
	vh.Prepare()
	for _, l := range []string{"a", "b"} {
		ab, ba := vh.Connect("r", l)
		ab.WithLatency(5*time.Millisecond, 5*time.Millisecond).WithPacketLoss(0.2)
		ba.WithLatency(5*time.Millisecond, 5*time.Millisecond).WithPacketLoss(0.2)
	}

	_ = vh.Start()
	defer vh.Stop()

	// trickle and DAO retransmissions recover from the lost packets
	ok := Eventually(20*time.Second, func() bool {
		_, okA := vh.Router("r").LookupRoute(vh.Addr("a"))
		_, okB := vh.Router("r").LookupRoute(vh.Addr("b"))
		return okA && okB
	})
	assert.True(t, ok, "root did not learn both routes")
}
