package state

import (
	"net/netip"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleNodeCfg = `id: root-1
address: 2001:db8::1
interface: wpan0
instances:
  - instance_id: 1
    root: true
    prefix: 2001:db8::/64
    prefix_flags: 64
    valid_lifetime: 86400
    preferred_lifetime: 14400
    ocp: 1
    grounded: true
    dio_interval_min: 4
    dio_redundancy: 5
link_metric:
  type: static
  default: 1.5
post_up:
  - echo up
`

func TestLocalCfgParse(t *testing.T) {
	var cfg LocalCfg
	require.NoError(t, yaml.Unmarshal([]byte(sampleNodeCfg), &cfg))

	assert.Equal(t, "root-1", cfg.Id)
	assert.Equal(t, netip.MustParseAddr("2001:db8::1"), cfg.Address)
	assert.Equal(t, "wpan0", cfg.InterfaceName)
	require.Len(t, cfg.Instances, 1)
	inst := cfg.Instances[0]
	assert.True(t, inst.Root)
	assert.Equal(t, netip.MustParsePrefix("2001:db8::/64"), inst.Prefix)
	assert.Equal(t, uint16(1), inst.OCP)
	assert.Equal(t, []string{"echo up"}, cfg.PostUp)

	dc := inst.DodagConfig()
	assert.Equal(t, uint8(4), dc.IntervalMin)
	assert.Equal(t, uint8(5), dc.Redundancy)
	assert.Equal(t, uint8(DefaultDIOIntervalDoublings), dc.IntervalDoublings)
	assert.Equal(t, uint16(DefaultMinHopRankIncrease), dc.MinHopRankIncrease)
	assert.Equal(t, uint16(1), dc.OCP)

	lm := cfg.GetLinkMetrics()
	require.IsType(t, &StaticLinkMetrics{}, lm)
	assert.Equal(t, 1.5, lm.MetricFor(netip.MustParseAddr("fe80::2")))

	assert.NoError(t, NodeConfigValidator(&cfg))
}

func TestLocalCfgRoundTrip(t *testing.T) {
	var cfg LocalCfg
	require.NoError(t, yaml.Unmarshal([]byte(sampleNodeCfg), &cfg))
	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	var again LocalCfg
	require.NoError(t, yaml.Unmarshal(out, &again))
	assert.Equal(t, cfg.Instances, again.Instances)
	assert.Equal(t, cfg.GetLinkMetrics(), again.GetLinkMetrics())
	assert.Contains(t, string(out), "prefix:")
	assert.Contains(t, string(out), "2001:db8::/64")
}

func TestLocalCfgKeepsAddresses(t *testing.T) {
	cfg := LocalCfg{
		Id:        "root-1",
		Address:   netip.MustParseAddr("2001:db8::1"),
		Multicast: netip.MustParseAddr("ff02::1a"),
		Instances: []InstanceCfg{{
			InstanceId: 1,
			Root:       true,
			DodagId:    netip.MustParseAddr("2001:db8::100"),
			Prefix:     netip.MustParsePrefix("2001:db8::/64"),
		}, {
			InstanceId: 2,
		}},
	}
	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	var again LocalCfg
	require.NoError(t, yaml.Unmarshal(out, &again))
	assert.Equal(t, cfg.Address, again.Address)
	assert.Equal(t, cfg.Multicast, again.Multicast)
	assert.Equal(t, cfg.Instances, again.Instances)
	assert.NoError(t, NodeConfigValidator(&again))
}

func TestDefaultLinkMetrics(t *testing.T) {
	cfg := LocalCfg{Id: "a"}
	assert.Equal(t, 1.0, cfg.GetLinkMetrics().MetricFor(netip.MustParseAddr("fe80::1")))
}

func TestAcceptsInstance(t *testing.T) {
	cfg := LocalCfg{}
	assert.True(t, cfg.AcceptsInstance(3))

	cfg.Instances = []InstanceCfg{{InstanceId: 1, Root: true, Prefix: netip.MustParsePrefix("2001:db8::/64")}}
	assert.True(t, cfg.AcceptsInstance(3))

	cfg.Instances = append(cfg.Instances, InstanceCfg{InstanceId: 2})
	assert.True(t, cfg.AcceptsInstance(2))
	assert.False(t, cfg.AcceptsInstance(3))
}

func TestNodeConfigValidator(t *testing.T) {
	valid := func() *LocalCfg {
		return &LocalCfg{
			Id:      "node-a",
			Address: netip.MustParseAddr("2001:db8::1"),
			Instances: []InstanceCfg{{
				InstanceId: 1,
				Root:       true,
				Prefix:     netip.MustParsePrefix("2001:db8::/64"),
			}},
		}
	}
	assert.NoError(t, NodeConfigValidator(valid()))

	tests := []struct {
		name   string
		mutate func(cfg *LocalCfg)
		is     error
	}{
		{"bad name", func(cfg *LocalCfg) { cfg.Id = "Node A" }, nil},
		{"ipv4 address", func(cfg *LocalCfg) { cfg.Address = netip.MustParseAddr("10.0.0.1") }, nil},
		{"missing prefix", func(cfg *LocalCfg) { cfg.Instances[0].Prefix = netip.Prefix{} }, nil},
		{"ipv4 prefix", func(cfg *LocalCfg) { cfg.Instances[0].Prefix = netip.MustParsePrefix("10.0.0.0/8") }, nil},
		{"zero length prefix", func(cfg *LocalCfg) { cfg.Instances[0].Prefix = netip.MustParsePrefix("::/0") }, nil},
		{"preference", func(cfg *LocalCfg) { cfg.Instances[0].Preference = 8 }, nil},
		{"non storing", func(cfg *LocalCfg) {
			mop := uint8(1)
			cfg.Instances[0].Mop = &mop
		}, nil},
		{"zero min hop", func(cfg *LocalCfg) {
			z := uint16(0)
			cfg.Instances[0].MinHopRankIncrease = &z
		}, ErrInvalidDodagConfig},
		{"interval overflow", func(cfg *LocalCfg) {
			imin, doublings := uint8(20), uint8(30)
			cfg.Instances[0].DioIntervalMin = &imin
			cfg.Instances[0].DioIntervalDoublings = &doublings
		}, ErrInvalidDodagConfig},
		{"duplicate instance", func(cfg *LocalCfg) {
			cfg.Instances = append(cfg.Instances, InstanceCfg{InstanceId: 1})
		}, ErrInstanceConflict},
		{"too many roots", func(cfg *LocalCfg) {
			cfg.Instances = append(cfg.Instances, InstanceCfg{InstanceId: 2, Root: true, Prefix: netip.MustParsePrefix("2001:db9::/64")})
		}, ErrResourceExhausted},
		{"multicast", func(cfg *LocalCfg) { cfg.Multicast = netip.MustParseAddr("2001:db8::2") }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := NodeConfigValidator(cfg)
			assert.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestNameValidator(t *testing.T) {
	assert.NoError(t, NameValidator("1"))
	assert.NoError(t, NameValidator("ab_cd"))
	assert.NoError(t, NameValidator("root-1.mesh"))
	assert.Error(t, NameValidator("1A"))
	assert.Error(t, NameValidator(""))
	assert.Error(t, NameValidator("node name"))
}
