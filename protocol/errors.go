package protocol

import (
	"errors"
	"fmt"
)

// ErrDecode is wrapped by every error returned from Unmarshal. Callers drop the
// message without touching any state.
var ErrDecode = errors.New("rpl decode")

var (
	ErrTruncated       = fmt.Errorf("%w: truncated message", ErrDecode)
	ErrTruncatedOption = fmt.Errorf("%w: truncated option", ErrDecode)
	ErrMalformedOption = fmt.Errorf("%w: malformed option", ErrDecode)
	ErrUnknownCode     = fmt.Errorf("%w: unknown rpl code", ErrDecode)
	ErrNotRPL          = fmt.Errorf("%w: not an rpl control message", ErrDecode)
)
