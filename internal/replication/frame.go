// Package replication serializes the mirror's per-cycle changes into framed
// messages on the master and applies them to a replica's mirror.
package replication

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic starts every frame.
const Magic = "HSYN"

// Protocol version carried in every header. Replicas reject another major.
const (
	ProtocolMajor = 1
	ProtocolMinor = 0
)

// Version is the protocol version as a semantic version string.
var Version = fmt.Sprintf("%d.%d.0", ProtocolMajor, ProtocolMinor)

// HeaderSize is the encoded header length.
const HeaderSize = 16

// FlagFull marks a frame that carries the whole scene.
const FlagFull uint16 = 1 << 0

var (
	ErrBadMagic       = errors.New("replication: bad magic")
	ErrTruncated      = errors.New("replication: truncated frame")
	ErrLengthMismatch = errors.New("replication: payload length mismatch")
	ErrStaleSequence  = errors.New("replication: stale sequence")
	ErrVersionSkew    = errors.New("replication: protocol version skew")
	// ErrSequenceGap means a frame was missed; a full frame is needed.
	ErrSequenceGap = errors.New("replication: sequence gap")
	ErrCorrupt     = errors.New("replication: corrupt payload")
)

// Header precedes every payload.
type Header struct {
	Major, Minor uint8
	Flags        uint16
	Seq          uint32
	Length       uint32
}

// Full reports whether the frame carries the whole scene.
func (h Header) Full() bool { return h.Flags&FlagFull != 0 }

func (h Header) put(b []byte) {
	copy(b, Magic)
	b[4] = h.Major
	b[5] = h.Minor
	binary.LittleEndian.PutUint16(b[6:], h.Flags)
	binary.LittleEndian.PutUint32(b[8:], h.Seq)
	binary.LittleEndian.PutUint32(b[12:], h.Length)
}

// ParseHeader validates the frame envelope and returns its header.
func ParseHeader(frame []byte) (Header, error) {
	if len(frame) < HeaderSize {
		return Header{}, ErrTruncated
	}
	if string(frame[:4]) != Magic {
		return Header{}, ErrBadMagic
	}
	h := Header{
		Major:  frame[4],
		Minor:  frame[5],
		Flags:  binary.LittleEndian.Uint16(frame[6:]),
		Seq:    binary.LittleEndian.Uint32(frame[8:]),
		Length: binary.LittleEndian.Uint32(frame[12:]),
	}
	if h.Major != ProtocolMajor {
		return h, fmt.Errorf("%w: frame is %d.%d, replica speaks %s", ErrVersionSkew, h.Major, h.Minor, Version)
	}
	if int64(h.Length) != int64(len(frame)-HeaderSize) {
		return h, fmt.Errorf("%w: header says %d bytes, frame has %d", ErrLengthMismatch, h.Length, len(frame)-HeaderSize)
	}
	return h, nil
}
