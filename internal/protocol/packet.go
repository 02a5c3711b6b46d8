package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ActionID names an action definition for the lifetime of a session.
// Ids are assigned by the catalog registry at startup.
type ActionID int32

func (id ActionID) String() string { return fmt.Sprintf("ActionID(%d)", int32(id)) }

// Vec3 is a world position. The zero vector doubles as "no position" on the wire.
type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

func (v Vec3) IsZero() bool { return v == Vec3{} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

func (v Vec3) Len() float64 {
	return math.Sqrt(float64(v.X)*float64(v.X) + float64(v.Y)*float64(v.Y) + float64(v.Z)*float64(v.Z))
}

// ActionRequest describes one action invocation. It is what a client sends when it plays an
// action and what the server broadcasts back as confirmation.
//
// TargetIDs nil means untargeted; a non-nil empty slice is "present but empty" and survives
// a round trip as such. Whoever receives a request owns its TargetIDs slice.
type ActionRequest struct {
	ID        ActionID
	Position  Vec3
	TargetIDs []uint64
}

// Packet flag bits. Bits 2..7 are reserved and ignored on read.
const (
	FlagHasPosition  uint8 = 1 << 0
	FlagHasTargetIDs uint8 = 1 << 1
)

const (
	packetHeaderSize = 4 + 1
	positionSize     = 3 * 4
	targetCountSize  = 2

	MaxTargets = 1024
)

var (
	ErrShortPacket    = errors.New("protocol: short action packet")
	ErrTooManyTargets = errors.New("protocol: too many targets")
)

// Flags returns the flag byte the encoder writes for r.
func (r ActionRequest) Flags() uint8 {
	var f uint8
	if !r.Position.IsZero() {
		f |= FlagHasPosition
	}
	if r.TargetIDs != nil {
		f |= FlagHasTargetIDs
	}
	return f
}

// EncodedLen is the exact number of bytes AppendBinary adds for r.
func (r ActionRequest) EncodedLen() int {
	n := packetHeaderSize
	f := r.Flags()
	if f&FlagHasPosition != 0 {
		n += positionSize
	}
	if f&FlagHasTargetIDs != 0 {
		n += targetCountSize + 8*len(r.TargetIDs)
	}
	return n
}

// AppendBinary appends the little-endian wire form of r to b.
func (r ActionRequest) AppendBinary(b []byte) ([]byte, error) {
	if len(r.TargetIDs) > MaxTargets {
		return b, fmt.Errorf("%w: %d > %d", ErrTooManyTargets, len(r.TargetIDs), MaxTargets)
	}
	f := r.Flags()
	b = binary.LittleEndian.AppendUint32(b, uint32(r.ID))
	b = append(b, f)
	if f&FlagHasPosition != 0 {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(r.Position.X))
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(r.Position.Y))
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(r.Position.Z))
	}
	if f&FlagHasTargetIDs != 0 {
		b = binary.LittleEndian.AppendUint16(b, uint16(len(r.TargetIDs)))
		for _, id := range r.TargetIDs {
			b = binary.LittleEndian.AppendUint64(b, id)
		}
	}
	return b, nil
}

func (r ActionRequest) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, r.EncodedLen()))
}

func (r *ActionRequest) UnmarshalBinary(b []byte) error {
	_, err := r.decode(b)
	return err
}

// DecodeActionRequest decodes one packet from the front of b and reports how many bytes it used.
func DecodeActionRequest(b []byte) (ActionRequest, int, error) {
	var r ActionRequest
	n, err := r.decode(b)
	if err != nil {
		return ActionRequest{}, 0, err
	}
	return r, n, nil
}

func (r *ActionRequest) decode(b []byte) (int, error) {
	if len(b) < packetHeaderSize {
		return 0, ErrShortPacket
	}
	*r = ActionRequest{ID: ActionID(int32(binary.LittleEndian.Uint32(b)))}
	f := b[4]
	off := packetHeaderSize

	if f&FlagHasPosition != 0 {
		if len(b) < off+positionSize {
			return 0, ErrShortPacket
		}
		r.Position = Vec3{
			X: math.Float32frombits(binary.LittleEndian.Uint32(b[off:])),
			Y: math.Float32frombits(binary.LittleEndian.Uint32(b[off+4:])),
			Z: math.Float32frombits(binary.LittleEndian.Uint32(b[off+8:])),
		}
		off += positionSize
	}
	if f&FlagHasTargetIDs != 0 {
		if len(b) < off+targetCountSize {
			return 0, ErrShortPacket
		}
		count := int(binary.LittleEndian.Uint16(b[off:]))
		off += targetCountSize
		if len(b) < off+8*count {
			return 0, ErrShortPacket
		}
		r.TargetIDs = make([]uint64, count)
		for i := range r.TargetIDs {
			r.TargetIDs[i] = binary.LittleEndian.Uint64(b[off:])
			off += 8
		}
	}
	return off, nil
}
