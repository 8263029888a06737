// Package packets defines the control packets of the cluster channel.
// Frames travel as raw replication frames; everything else is one of these
// fixed-size little-endian packets.
package packets

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Packet IDs
const (
	// Replica -> Master
	RM_HELLO  uint16 = 0x0101 // Protocol version and replica name
	RM_ACK    uint16 = 0x0102 // Frame applied
	RM_RESYNC uint16 = 0x0103 // Request a full frame

	// Master -> Replica
	MR_WELCOME uint16 = 0x0201 // Handshake accepted
	MR_REFUSE  uint16 = 0x0202 // Handshake refused
)

// Refuse reasons
const (
	RefuseVersion  uint8 = 1 // Incompatible protocol version
	RefuseBadHello uint8 = 2 // First packet was not a hello
)

// ID returns the packet ID of an encoded packet.
func ID(buf []byte) (uint16, error) {
	if len(buf) < 2 {
		return 0, fmt.Errorf("packet too short: %d bytes", len(buf))
	}
	return binary.LittleEndian.Uint16(buf), nil
}

func check(buf []byte, id uint16, size int) error {
	got, err := ID(buf)
	if err != nil {
		return err
	}
	if got != id {
		return fmt.Errorf("expected packet 0x%04X, got 0x%04X", id, got)
	}
	if len(buf) != size {
		return fmt.Errorf("packet 0x%04X: expected %d bytes, got %d", id, size, len(buf))
	}
	return nil
}

// cstring returns the bytes of a zero-padded field up to the first zero.
func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// Hello (RM_HELLO 0x0101)
type Hello struct {
	PacketID uint16   // 0x0101
	Version  [16]byte // Semantic version of the replication protocol
	Name     [24]byte // Replica name, for logs
}

// NewHello builds a hello. Longer strings are truncated.
func NewHello(version, name string) *Hello {
	p := &Hello{PacketID: RM_HELLO}
	copy(p.Version[:], version)
	copy(p.Name[:], name)
	return p
}

// Size returns packet size.
func (p *Hello) Size() int { return 42 }

// Encode encodes the packet to bytes.
func (p *Hello) Encode() []byte {
	buf := make([]byte, p.Size())
	binary.LittleEndian.PutUint16(buf[0:], p.PacketID)
	copy(buf[2:18], p.Version[:])
	copy(buf[18:42], p.Name[:])
	return buf
}

// Decode decodes the packet from bytes.
func (p *Hello) Decode(buf []byte) error {
	if err := check(buf, RM_HELLO, p.Size()); err != nil {
		return err
	}
	p.PacketID = RM_HELLO
	copy(p.Version[:], buf[2:18])
	copy(p.Name[:], buf[18:42])
	return nil
}

// VersionString returns the version without padding.
func (p *Hello) VersionString() string { return cstring(p.Version[:]) }

// NameString returns the name without padding.
func (p *Hello) NameString() string { return cstring(p.Name[:]) }

// Welcome (MR_WELCOME 0x0201)
type Welcome struct {
	PacketID  uint16 // 0x0201
	ReplicaID uint32
}

// Size returns packet size.
func (p *Welcome) Size() int { return 6 }

// Encode encodes the packet to bytes.
func (p *Welcome) Encode() []byte {
	buf := make([]byte, p.Size())
	binary.LittleEndian.PutUint16(buf[0:], MR_WELCOME)
	binary.LittleEndian.PutUint32(buf[2:], p.ReplicaID)
	return buf
}

// Decode decodes the packet from bytes.
func (p *Welcome) Decode(buf []byte) error {
	if err := check(buf, MR_WELCOME, p.Size()); err != nil {
		return err
	}
	p.PacketID = MR_WELCOME
	p.ReplicaID = binary.LittleEndian.Uint32(buf[2:])
	return nil
}

// Refuse (MR_REFUSE 0x0202)
type Refuse struct {
	PacketID uint16 // 0x0202
	Reason   uint8
}

// Size returns packet size.
func (p *Refuse) Size() int { return 3 }

// Encode encodes the packet to bytes.
func (p *Refuse) Encode() []byte {
	buf := make([]byte, p.Size())
	binary.LittleEndian.PutUint16(buf[0:], MR_REFUSE)
	buf[2] = p.Reason
	return buf
}

// Decode decodes the packet from bytes.
func (p *Refuse) Decode(buf []byte) error {
	if err := check(buf, MR_REFUSE, p.Size()); err != nil {
		return err
	}
	p.PacketID = MR_REFUSE
	p.Reason = buf[2]
	return nil
}

// Ack (RM_ACK 0x0102)
type Ack struct {
	PacketID uint16 // 0x0102
	Seq      uint32 // Sequence number of the handled frame
}

// Size returns packet size.
func (p *Ack) Size() int { return 6 }

// Encode encodes the packet to bytes.
func (p *Ack) Encode() []byte {
	buf := make([]byte, p.Size())
	binary.LittleEndian.PutUint16(buf[0:], RM_ACK)
	binary.LittleEndian.PutUint32(buf[2:], p.Seq)
	return buf
}

// Decode decodes the packet from bytes.
func (p *Ack) Decode(buf []byte) error {
	if err := check(buf, RM_ACK, p.Size()); err != nil {
		return err
	}
	p.PacketID = RM_ACK
	p.Seq = binary.LittleEndian.Uint32(buf[2:])
	return nil
}

// Resync (RM_RESYNC 0x0103)
type Resync struct {
	PacketID uint16 // 0x0103
	LastSeq  uint32 // Last frame the replica applied
}

// Size returns packet size.
func (p *Resync) Size() int { return 6 }

// Encode encodes the packet to bytes.
func (p *Resync) Encode() []byte {
	buf := make([]byte, p.Size())
	binary.LittleEndian.PutUint16(buf[0:], RM_RESYNC)
	binary.LittleEndian.PutUint32(buf[2:], p.LastSeq)
	return buf
}

// Decode decodes the packet from bytes.
func (p *Resync) Decode(buf []byte) error {
	if err := check(buf, RM_RESYNC, p.Size()); err != nil {
		return err
	}
	p.PacketID = RM_RESYNC
	p.LastSeq = binary.LittleEndian.Uint32(buf[2:])
	return nil
}
