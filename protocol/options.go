package protocol

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// 6.7.1.  RPL Control Message Option Generic Format
//
//	 0                   1                   2
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+- - - - - - - -
//	|  Option Type  | Option Length | Option Data
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+- - - - - - - -
//
// Option Length excludes the type and length fields. Pad1 is the only option
// without a length byte.
type OptionType uint8

const (
	OptPad1          OptionType = 0x00
	OptPadN          OptionType = 0x01
	OptDagMetric     OptionType = 0x02
	OptRouteInfo     OptionType = 0x03
	OptDodagConfig   OptionType = 0x04
	OptTarget        OptionType = 0x05
	OptTransit       OptionType = 0x06
	OptSolicitedInfo OptionType = 0x07
	OptPrefixInfo    OptionType = 0x08
)

func (t OptionType) String() string {
	switch t {
	case OptPad1:
		return "Pad1"
	case OptPadN:
		return "PadN"
	case OptDagMetric:
		return "DAGMetricContainer"
	case OptRouteInfo:
		return "RouteInformation"
	case OptDodagConfig:
		return "DODAGConfiguration"
	case OptTarget:
		return "Target"
	case OptTransit:
		return "Transit"
	case OptSolicitedInfo:
		return "SolicitedInformation"
	case OptPrefixInfo:
		return "PrefixInformation"
	default:
		return fmt.Sprintf("Option(%#02x)", uint8(t))
	}
}

type Option interface {
	Type() OptionType
	// payload appends the option data, without the type and length fields
	payload(b []byte) []byte
}

type Options []Option

func (o Options) appendTo(b []byte) []byte {
	for _, opt := range o {
		start := len(b)
		b = append(b, byte(opt.Type()), 0)
		b = opt.payload(b)
		b[start+1] = byte(len(b) - start - 2)
	}
	return b
}

func decodeOptions(b []byte) (Options, error) {
	var opts Options
	for len(b) > 0 {
		t := OptionType(b[0])
		if t == OptPad1 {
			b = b[1:]
			continue
		}
		if len(b) < 2 {
			return nil, fmt.Errorf("%w: %s is missing its length", ErrTruncatedOption, t)
		}
		l := int(b[1])
		if len(b)-2 < l {
			return nil, fmt.Errorf("%w: %s declares %d bytes, %d remain", ErrTruncatedOption, t, l, len(b)-2)
		}
		data := b[2 : 2+l]
		b = b[2+l:]

		var opt Option
		var err error
		switch t {
		case OptDodagConfig:
			opt, err = decodeDodagConfig(data)
		case OptTarget:
			opt, err = decodeTarget(data)
		case OptTransit:
			opt, err = decodeTransit(data)
		case OptSolicitedInfo:
			opt, err = decodeSolicitedInfo(data)
		case OptPrefixInfo:
			opt, err = decodePrefixInfo(data)
		default:
			// PadN, and anything we do not understand, is skipped
			continue
		}
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}
	return opts, nil
}

func malformed(t OptionType, l int) error {
	return fmt.Errorf("%w: %s with length %d", ErrMalformedOption, t, l)
}

func (o Options) DodagConfig() *DodagConfigOption {
	for _, opt := range o {
		if c, ok := opt.(*DodagConfigOption); ok {
			return c
		}
	}
	return nil
}

func (o Options) PrefixInfo() *PrefixInfoOption {
	for _, opt := range o {
		if c, ok := opt.(*PrefixInfoOption); ok {
			return c
		}
	}
	return nil
}

func (o Options) SolicitedInfo() *SolicitedInfoOption {
	for _, opt := range o {
		if c, ok := opt.(*SolicitedInfoOption); ok {
			return c
		}
	}
	return nil
}

// Transit returns the first Transit option, which applies to the Target options preceding it
func (o Options) Transit() *TransitOption {
	for _, opt := range o {
		if c, ok := opt.(*TransitOption); ok {
			return c
		}
	}
	return nil
}

func (o Options) Targets() []*TargetOption {
	var targets []*TargetOption
	for _, opt := range o {
		if c, ok := opt.(*TargetOption); ok {
			targets = append(targets, c)
		}
	}
	return targets
}

// TargetGroup is a run of Target options and the Transit option describing them
type TargetGroup struct {
	Targets []*TargetOption
	Transit *TransitOption // nil when the targets are not followed by a Transit option
}

// TargetGroups splits the options of a DAO into target groups.
//
// 9.4.  DAO Base Rules
//
//	A set of one or more Transit Information options MAY be placed in
//	the DAO message immediately following a set of one or more Target
//	options, and the Transit Information options then apply to all of
//	the preceding Target options.
func (o Options) TargetGroups() []TargetGroup {
	var groups []TargetGroup
	var cur TargetGroup
	for _, opt := range o {
		switch c := opt.(type) {
		case *TargetOption:
			if cur.Transit != nil {
				groups = append(groups, cur)
				cur = TargetGroup{}
			}
			cur.Targets = append(cur.Targets, c)
		case *TransitOption:
			if len(cur.Targets) > 0 && cur.Transit == nil {
				cur.Transit = c
			}
		}
	}
	if len(cur.Targets) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

// 6.7.6.  DODAG Configuration
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|   Type = 0x04 |Opt Length = 14| Flags |A| PCS | DIOIntDoubl.  |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|  DIOIntMin.   |   DIORedun.   |        MaxRankIncrease        |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|      MinHopRankIncrease       |              OCP              |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|   Reserved    | Def. Lifetime |      Lifetime Unit            |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
const dodagConfigLen = 14

const (
	dodagConfigAuth    = 0x08
	dodagConfigPcsMask = 0x07
)

type DodagConfigOption struct {
	AuthEnabled        bool
	PCS                uint8
	IntervalDoublings  uint8
	IntervalMin        uint8
	Redundancy         uint8
	MaxRankIncrease    uint16
	MinHopRankIncrease uint16
	OCP                uint16
	DefaultLifetime    uint8
	LifetimeUnit       uint16
}

func (c *DodagConfigOption) Type() OptionType {
	return OptDodagConfig
}

func (c *DodagConfigOption) payload(b []byte) []byte {
	flags := c.PCS & dodagConfigPcsMask
	if c.AuthEnabled {
		flags |= dodagConfigAuth
	}
	b = append(b, flags, c.IntervalDoublings, c.IntervalMin, c.Redundancy)
	b = appendUint16(b, c.MaxRankIncrease)
	b = appendUint16(b, c.MinHopRankIncrease)
	b = appendUint16(b, c.OCP)
	b = append(b, 0, c.DefaultLifetime)
	return appendUint16(b, c.LifetimeUnit)
}

func decodeDodagConfig(b []byte) (*DodagConfigOption, error) {
	if len(b) != dodagConfigLen {
		return nil, malformed(OptDodagConfig, len(b))
	}
	return &DodagConfigOption{
		AuthEnabled:        b[0]&dodagConfigAuth != 0,
		PCS:                b[0] & dodagConfigPcsMask,
		IntervalDoublings:  b[1],
		IntervalMin:        b[2],
		Redundancy:         b[3],
		MaxRankIncrease:    binary.BigEndian.Uint16(b[4:6]),
		MinHopRankIncrease: binary.BigEndian.Uint16(b[6:8]),
		OCP:                binary.BigEndian.Uint16(b[8:10]),
		DefaultLifetime:    b[11],
		LifetimeUnit:       binary.BigEndian.Uint16(b[12:14]),
	}, nil
}

// 6.7.7.  RPL Target
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|   Type = 0x05 | Option Length |     Flags     | Prefix Length |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                Target Prefix (Variable Length)                |
//
// The target is always written as a full 16 byte address. Shorter encodings
// (at least ceil(prefix length / 8) bytes) are accepted on decode.
type TargetOption struct {
	Flags        uint8
	PrefixLength uint8
	Target       netip.Addr
}

func (t *TargetOption) Type() OptionType {
	return OptTarget
}

func (t *TargetOption) payload(b []byte) []byte {
	b = append(b, t.Flags, t.PrefixLength)
	return appendAddr(b, t.Target)
}

// Prefix returns the advertised target as a masked prefix, or an invalid
// prefix if the prefix length is out of range.
func (t *TargetOption) Prefix() netip.Prefix {
	if t.PrefixLength > 128 || !t.Target.Is6() {
		return netip.Prefix{}
	}
	return netip.PrefixFrom(t.Target, int(t.PrefixLength)).Masked()
}

func decodeTarget(b []byte) (*TargetOption, error) {
	if len(b) < 2 || len(b) > 18 {
		return nil, malformed(OptTarget, len(b))
	}
	plen := b[1]
	if plen > 128 || len(b)-2 < (int(plen)+7)/8 {
		return nil, malformed(OptTarget, len(b))
	}
	var a16 [16]byte
	copy(a16[:], b[2:])
	return &TargetOption{
		Flags:        b[0],
		PrefixLength: plen,
		Target:       netip.AddrFrom16(a16),
	}, nil
}

// 6.7.8.  Transit Information
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|   Type = 0x06 | Option Length |E|    Flags    | Path Control  |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	| Path Sequence | Path Lifetime |                               |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+                               +
//	|                   Parent Address* (optional)                  |
//
// Storing mode omits the parent address.
const (
	transitLen           = 4
	transitLenWithParent = 20
	transitExternal      = 0x80
)

// PathLifetimeInfinite marks a route that never expires; 0 is a No-Path advertisement
const PathLifetimeInfinite = 0xFF

type TransitOption struct {
	External     bool
	PathControl  uint8
	PathSequence uint8
	PathLifetime uint8
	Parent       netip.Addr
}

func (t *TransitOption) Type() OptionType {
	return OptTransit
}

func (t *TransitOption) payload(b []byte) []byte {
	var flags uint8
	if t.External {
		flags |= transitExternal
	}
	b = append(b, flags, t.PathControl, t.PathSequence, t.PathLifetime)
	if t.Parent.IsValid() {
		b = appendAddr(b, t.Parent)
	}
	return b
}

func decodeTransit(b []byte) (*TransitOption, error) {
	if len(b) != transitLen && len(b) != transitLenWithParent {
		return nil, malformed(OptTransit, len(b))
	}
	t := &TransitOption{
		External:     b[0]&transitExternal != 0,
		PathControl:  b[1],
		PathSequence: b[2],
		PathLifetime: b[3],
	}
	if len(b) == transitLenWithParent {
		t.Parent = readAddr(b[4:])
	}
	return t, nil
}

// 6.7.9.  Solicited Information
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|   Type = 0x07 |Opt Length = 19| RPLInstanceID |V|I|D|  Flags  |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                            DODAGID                            |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|Version Number |
const (
	solicitedInfoLen  = 19
	solicitedVersion  = 0x80
	solicitedInstance = 0x40
	solicitedDodag    = 0x20
)

type SolicitedInfoOption struct {
	InstanceId    uint8
	MatchVersion  bool
	MatchInstance bool
	MatchDodag    bool
	DodagId       netip.Addr
	Version       uint8
}

func (s *SolicitedInfoOption) Type() OptionType {
	return OptSolicitedInfo
}

func (s *SolicitedInfoOption) payload(b []byte) []byte {
	var flags uint8
	if s.MatchVersion {
		flags |= solicitedVersion
	}
	if s.MatchInstance {
		flags |= solicitedInstance
	}
	if s.MatchDodag {
		flags |= solicitedDodag
	}
	b = append(b, s.InstanceId, flags)
	b = appendAddr(b, s.DodagId)
	return append(b, s.Version)
}

// Matches evaluates the predicates against a DODAG. Predicates that are not
// flagged always match.
func (s *SolicitedInfoOption) Matches(instance uint8, dodag netip.Addr, version uint8) bool {
	if s.MatchInstance && s.InstanceId != instance {
		return false
	}
	if s.MatchDodag && s.DodagId != dodag {
		return false
	}
	if s.MatchVersion && s.Version != version {
		return false
	}
	return true
}

func decodeSolicitedInfo(b []byte) (*SolicitedInfoOption, error) {
	if len(b) != solicitedInfoLen {
		return nil, malformed(OptSolicitedInfo, len(b))
	}
	return &SolicitedInfoOption{
		InstanceId:    b[0],
		MatchVersion:  b[1]&solicitedVersion != 0,
		MatchInstance: b[1]&solicitedInstance != 0,
		MatchDodag:    b[1]&solicitedDodag != 0,
		DodagId:       readAddr(b[2:18]),
		Version:       b[18],
	}, nil
}

// 6.7.10.  Prefix Information
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|   Type = 0x08 |Opt Length = 30| Prefix Length |L|A|R|Reserved1|
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                         Valid Lifetime                        |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                       Preferred Lifetime                      |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                           Reserved2                           |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                            Prefix                             |
const prefixInfoLen = 30

const (
	PrefixFlagOnLink        uint8 = 1 << 7
	PrefixFlagAutoAddrConf  uint8 = 1 << 6
	PrefixFlagRouterAddress uint8 = 1 << 5
)

type PrefixInfoOption struct {
	PrefixLength      uint8
	Flags             uint8
	ValidLifetime     uint32
	PreferredLifetime uint32
	Prefix            netip.Addr
}

func (p *PrefixInfoOption) Type() OptionType {
	return OptPrefixInfo
}

func (p *PrefixInfoOption) payload(b []byte) []byte {
	b = append(b, p.PrefixLength, p.Flags)
	b = appendUint32(b, p.ValidLifetime)
	b = appendUint32(b, p.PreferredLifetime)
	b = appendUint32(b, 0)
	return appendAddr(b, p.Prefix)
}

// AsPrefix returns the advertised prefix, or an invalid prefix if the length is out of range
func (p *PrefixInfoOption) AsPrefix() netip.Prefix {
	if p.PrefixLength > 128 || !p.Prefix.Is6() {
		return netip.Prefix{}
	}
	return netip.PrefixFrom(p.Prefix, int(p.PrefixLength)).Masked()
}

func decodePrefixInfo(b []byte) (*PrefixInfoOption, error) {
	if len(b) != prefixInfoLen {
		return nil, malformed(OptPrefixInfo, len(b))
	}
	return &PrefixInfoOption{
		PrefixLength:      b[0],
		Flags:             b[1],
		ValidLifetime:     binary.BigEndian.Uint32(b[2:6]),
		PreferredLifetime: binary.BigEndian.Uint32(b[6:10]),
		Prefix:            readAddr(b[14:30]),
	}, nil
}
