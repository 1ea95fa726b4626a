package protocol

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// 6.3.1.  Format of the DIO Base Object
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	| RPLInstanceID |Version Number |             Rank              |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|G|0| MOP | Prf |     DTSN      |     Flags     |   Reserved    |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                            DODAGID                            |
const dioLen = 24

const (
	dioGrounded = 0x80
	dioMopMask  = 0x38
	dioMopShift = 3
	dioPrfMask  = 0x07
)

// Modes of operation
const (
	MopNoDownward       uint8 = 0
	MopNonStoring       uint8 = 1
	MopStoringNoMcast   uint8 = 2
	MopStoringWithMcast uint8 = 3
)

type DIO struct {
	InstanceId uint8
	Version    uint8
	Rank       uint16
	Grounded   bool
	Mop        uint8
	Prf        uint8
	Dtsn       uint8
	Flags      uint8
	DodagId    netip.Addr
	Options    Options
}

func (d *DIO) Code() Code {
	return CodeDIO
}

func (d *DIO) appendBody(b []byte) []byte {
	gmp := (d.Mop<<dioMopShift)&dioMopMask | d.Prf&dioPrfMask
	if d.Grounded {
		gmp |= dioGrounded
	}
	b = append(b, d.InstanceId, d.Version)
	b = appendUint16(b, d.Rank)
	b = append(b, gmp, d.Dtsn, d.Flags, 0)
	b = appendAddr(b, d.DodagId)
	return d.Options.appendTo(b)
}

func decodeDIO(b []byte) (*DIO, error) {
	if err := need(b, dioLen, "dio base object"); err != nil {
		return nil, err
	}
	opts, err := decodeOptions(b[dioLen:])
	if err != nil {
		return nil, err
	}
	return &DIO{
		InstanceId: b[0],
		Version:    b[1],
		Rank:       binary.BigEndian.Uint16(b[2:4]),
		Grounded:   b[4]&dioGrounded != 0,
		Mop:        (b[4] & dioMopMask) >> dioMopShift,
		Prf:        b[4] & dioPrfMask,
		Dtsn:       b[5],
		Flags:      b[6],
		DodagId:    readAddr(b[8:24]),
		Options:    opts,
	}, nil
}

// 6.2.1.  Format of the DIS Base Object
const disLen = 2

type DIS struct {
	Flags   uint8
	Options Options
}

func (d *DIS) Code() Code {
	return CodeDIS
}

func (d *DIS) appendBody(b []byte) []byte {
	b = append(b, d.Flags, 0)
	return d.Options.appendTo(b)
}

func decodeDIS(b []byte) (*DIS, error) {
	if err := need(b, disLen, "dis base object"); err != nil {
		return nil, err
	}
	opts, err := decodeOptions(b[disLen:])
	if err != nil {
		return nil, err
	}
	return &DIS{Flags: b[0], Options: opts}, nil
}

// 6.4.1.  Format of the DAO Base Object
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	| RPLInstanceID |K|D|   Flags   |   Reserved    | DAOSequence   |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                      DODAGID (optional)                       |
const daoLen = 4

const (
	daoAckRequested = 0x80
	daoDodagPresent = 0x40
)

type DAO struct {
	InstanceId uint8
	// Ack is the K flag, the recipient is expected to reply with a DAO-ACK
	Ack      bool
	Sequence uint8
	// DodagId is only carried on the wire when valid (D flag)
	DodagId netip.Addr
	Options Options
}

func (d *DAO) Code() Code {
	return CodeDAO
}

func (d *DAO) appendBody(b []byte) []byte {
	var flags uint8
	if d.Ack {
		flags |= daoAckRequested
	}
	if d.DodagId.IsValid() {
		flags |= daoDodagPresent
	}
	b = append(b, d.InstanceId, flags, 0, d.Sequence)
	if d.DodagId.IsValid() {
		b = appendAddr(b, d.DodagId)
	}
	return d.Options.appendTo(b)
}

func decodeDAO(b []byte) (*DAO, error) {
	if err := need(b, daoLen, "dao base object"); err != nil {
		return nil, err
	}
	dao := &DAO{
		InstanceId: b[0],
		Ack:        b[1]&daoAckRequested != 0,
		Sequence:   b[3],
	}
	rest := b[daoLen:]
	if b[1]&daoDodagPresent != 0 {
		if err := need(rest, 16, "dao dodagid"); err != nil {
			return nil, err
		}
		dao.DodagId = readAddr(rest)
		rest = rest[16:]
	}
	opts, err := decodeOptions(rest)
	if err != nil {
		return nil, err
	}
	dao.Options = opts
	return dao, nil
}

// 6.5.1.  Format of the DAO-ACK Base Object
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	| RPLInstanceID |D|  Reserved   |  DAOSequence  |    Status     |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                      DODAGID (optional)                       |
const daoAckLen = 4

const daoAckDodagPresent = 0x80

// DAO-ACK status values. 0 is unqualified acceptance, 128 and above are rejections.
const (
	StatusAccepted        uint8 = 0
	StatusInvalidTarget   uint8 = 128
	StatusNoRoutingEntry  uint8 = 129
	StatusLoopDetected    uint8 = 130
	statusRejectThreshold uint8 = 128
)

type DAOAck struct {
	InstanceId uint8
	Sequence   uint8
	Status     uint8
	DodagId    netip.Addr
	Options    Options
}

func (d *DAOAck) Code() Code {
	return CodeDAOAck
}

// Rejected reports whether the parent refused the advertised targets
func (d *DAOAck) Rejected() bool {
	return d.Status >= statusRejectThreshold
}

func (d *DAOAck) appendBody(b []byte) []byte {
	var flags uint8
	if d.DodagId.IsValid() {
		flags |= daoAckDodagPresent
	}
	b = append(b, d.InstanceId, flags, d.Sequence, d.Status)
	if d.DodagId.IsValid() {
		b = appendAddr(b, d.DodagId)
	}
	return d.Options.appendTo(b)
}

func decodeDAOAck(b []byte) (*DAOAck, error) {
	if err := need(b, daoAckLen, "dao-ack base object"); err != nil {
		return nil, err
	}
	ack := &DAOAck{
		InstanceId: b[0],
		Sequence:   b[2],
		Status:     b[3],
	}
	rest := b[daoAckLen:]
	if b[1]&daoAckDodagPresent != 0 {
		if err := need(rest, 16, "dao-ack dodagid"); err != nil {
			return nil, err
		}
		ack.DodagId = readAddr(rest)
		rest = rest[16:]
	}
	opts, err := decodeOptions(rest)
	if err != nil {
		return nil, err
	}
	ack.Options = opts
	return ack, nil
}

func (d *DIO) String() string {
	return fmt.Sprintf("DIO(instance: %d, dodag: %s, version: %d, rank: %d, dtsn: %d)", d.InstanceId, d.DodagId, d.Version, d.Rank, d.Dtsn)
}

func (d *DAO) String() string {
	return fmt.Sprintf("DAO(instance: %d, seq: %d, ack: %t, targets: %d)", d.InstanceId, d.Sequence, d.Ack, len(d.Options.Targets()))
}

func (d *DAOAck) String() string {
	return fmt.Sprintf("DAO-ACK(instance: %d, seq: %d, status: %d)", d.InstanceId, d.Sequence, d.Status)
}
