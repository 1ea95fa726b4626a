package state

// This file makes references to RFC 6550:
// https://datatracker.ietf.org/doc/html/rfc6550

// 7.2.  Sequence Counter Operation
//
//	RPL sequence counters are subdivided in a 'lollipop' fashion ([Perlman83]),
//	where the values from 128 and greater are used as a linear sequence to
//	indicate a restart and bootstrap the counter, and the values less than or
//	equal to 127 are used as a circular sequence number space of size 128 as
//	in [RFC1982].

const (
	SequenceInit     = uint8(240)
	SequenceWindow   = 16
	lollipopCircular = uint8(127)
)

func SeqnoInc(v uint8) uint8 {
	if v == lollipopCircular || v == 255 {
		return 0
	}
	return v + 1
}

// SeqnoGt reports whether a is more recent than b
func SeqnoGt(a, b uint8) bool {
	switch {
	case a == b:
		return false
	case a > lollipopCircular && b <= lollipopCircular:
		//	If A is in the interval [128..255] and B is in [0..127], then if
		//	(256 + B - A) is less than or equal to SEQUENCE_WINDOW, B is greater
		//	than A; otherwise A is greater than B.
		return 256+int(b)-int(a) > SequenceWindow
	case a <= lollipopCircular && b > lollipopCircular:
		return 256+int(a)-int(b) <= SequenceWindow
	case a > lollipopCircular:
		// both in the linear region
		return a > b
	default:
		// both in the circular region, serial number arithmetic with SERIAL_BITS = 7
		d := (int(a) - int(b) + 128) % 128
		return d > 0 && d < 64
	}
}

func SeqnoLt(a, b uint8) bool {
	return SeqnoGt(b, a)
}
