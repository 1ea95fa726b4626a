package protocol

// This file makes references to RFC 6550:
// https://datatracker.ietf.org/doc/html/rfc6550

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// ICMPv6TypeRPL is the ICMPv6 type assigned to RPL control messages (6. ICMPv6 RPL Control Message)
const ICMPv6TypeRPL = 155

const icmpHeaderLen = 4

// AllRPLNodes is the link-local scope multicast address used for DIO and DIS
var AllRPLNodes = netip.MustParseAddr("ff02::1a")

type Code uint8

const (
	CodeDIS    Code = 0x00
	CodeDIO    Code = 0x01
	CodeDAO    Code = 0x02
	CodeDAOAck Code = 0x03
)

func (c Code) String() string {
	switch c {
	case CodeDIS:
		return "DIS"
	case CodeDIO:
		return "DIO"
	case CodeDAO:
		return "DAO"
	case CodeDAOAck:
		return "DAO-ACK"
	default:
		return fmt.Sprintf("Code(%#02x)", uint8(c))
	}
}

// Message is a decoded RPL control message base object together with its options
type Message interface {
	Code() Code
	appendBody(b []byte) []byte
}

// Marshal encodes m as a complete ICMPv6 message. The checksum is left as zero,
// raw ICMPv6 sockets have it filled in by the kernel.
func Marshal(m Message) []byte {
	b := make([]byte, icmpHeaderLen, 128)
	b[0] = ICMPv6TypeRPL
	b[1] = byte(m.Code())
	return m.appendBody(b)
}

// Unmarshal decodes a complete ICMPv6 RPL message. The buffer length is the
// message length: options are parsed up to the end of b and never beyond it.
func Unmarshal(b []byte) (Message, error) {
	if len(b) < icmpHeaderLen {
		return nil, fmt.Errorf("%w: icmpv6 header needs %d bytes, got %d", ErrTruncated, icmpHeaderLen, len(b))
	}
	if b[0] != ICMPv6TypeRPL {
		return nil, fmt.Errorf("%w: icmpv6 type %d", ErrNotRPL, b[0])
	}
	body := b[icmpHeaderLen:]
	switch Code(b[1]) {
	case CodeDIS:
		return decodeDIS(body)
	case CodeDIO:
		return decodeDIO(body)
	case CodeDAO:
		return decodeDAO(body)
	case CodeDAOAck:
		return decodeDAOAck(body)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCode, Code(b[1]))
	}
}

func readAddr(b []byte) netip.Addr {
	return netip.AddrFrom16([16]byte(b[:16]))
}

func appendAddr(b []byte, a netip.Addr) []byte {
	if !a.IsValid() {
		var zero [16]byte
		return append(b, zero[:]...)
	}
	a16 := a.As16()
	return append(b, a16[:]...)
}

func appendUint16(b []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(b, v)
}

func appendUint32(b []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(b, v)
}

func need(b []byte, n int, what string) error {
	if len(b) < n {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrTruncated, what, n, len(b))
	}
	return nil
}
