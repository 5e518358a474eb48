// Package protocol implements the TP25 thermometer wire protocol: the
// link-level frame, packed-decimal temperatures, notification decoding and
// command encoding.
//
// Frame layout:
//
//	type(1) | length(1) | payload(length) | checksum(1) | trailing(0..)
//
// The checksum is the 8-bit wraparound sum of type, length and payload.
package protocol

import (
	"errors"
	"fmt"
)

const (
	// MinFrameSize is the type, length and checksum envelope.
	MinFrameSize = 3
	// MaxFrameSize is the largest frame carried in one BLE notification.
	MaxFrameSize = 20
	// MaxPayloadSize is the largest payload the length byte may declare.
	MaxPayloadSize = MaxFrameSize - MinFrameSize
)

var (
	ErrTooShort       = errors.New("frame shorter than 3 bytes")
	ErrTooLong        = errors.New("frame longer than 20 bytes")
	ErrPayloadTooLong = errors.New("declared payload longer than 17 bytes")
	ErrLengthMismatch = errors.New("declared payload longer than frame")
)

// Checksum is the checksum byte carried in a frame and whether it matched
// the value recomputed over type, length and payload.
type Checksum struct {
	Value byte
	Valid bool
}

// Frame is one decoded link-level frame. Frames are not modified after
// construction.
type Frame struct {
	Type     byte
	Length   byte
	Payload  []byte
	Checksum Checksum
	Trailing []byte // bytes after the checksum; normally empty
}

// CalcChecksum returns the 8-bit wraparound sum of b.
//
// An additive checksum cannot detect every corruption: any two changes whose
// byte deltas cancel out modulo 256 leave the sum unchanged.
func CalcChecksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// NewFrame builds a frame with a correct checksum. It returns
// ErrPayloadTooLong if payload does not fit in a single frame.
func NewFrame(typ byte, payload []byte) (Frame, error) {
	if len(payload) > MaxPayloadSize {
		return Frame{}, fmt.Errorf("protocol: new frame 0x%02x: %w", typ, ErrPayloadTooLong)
	}
	f := Frame{
		Type:    typ,
		Length:  byte(len(payload)),
		Payload: clone(payload),
	}
	f.Checksum = Checksum{Value: f.computeChecksum(), Valid: true}
	return f, nil
}

// DecodeFrame parses a raw frame. An invalid checksum does not fail decoding;
// it is reported through Frame.Checksum.Valid so callers can choose a policy.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < MinFrameSize {
		return Frame{}, fmt.Errorf("protocol: decode frame: %w (got %d)", ErrTooShort, len(data))
	}
	if len(data) > MaxFrameSize {
		return Frame{}, fmt.Errorf("protocol: decode frame: %w (got %d)", ErrTooLong, len(data))
	}

	length := int(data[1])
	if length > MaxPayloadSize {
		return Frame{}, fmt.Errorf("protocol: decode frame: %w (length %d)", ErrPayloadTooLong, length)
	}
	if length > len(data)-MinFrameSize {
		return Frame{}, fmt.Errorf("protocol: decode frame: %w (length %d, have %d)",
			ErrLengthMismatch, length, len(data)-MinFrameSize)
	}

	sum := CalcChecksum(data[:2+length])
	f := Frame{
		Type:     data[0],
		Length:   data[1],
		Payload:  clone(data[2 : 2+length]),
		Checksum: Checksum{Value: data[2+length], Valid: data[2+length] == sum},
		Trailing: clone(data[3+length:]),
	}
	return f, nil
}

// Bytes encodes the frame: type, length, payload, checksum byte, trailing.
// The stored checksum byte is written as is, valid or not.
func (f Frame) Bytes() []byte {
	buf := make([]byte, 0, MinFrameSize+len(f.Payload)+len(f.Trailing))
	buf = append(buf, f.Type, f.Length)
	buf = append(buf, f.Payload...)
	buf = append(buf, f.Checksum.Value)
	buf = append(buf, f.Trailing...)
	return buf
}

func (f Frame) computeChecksum() byte {
	return f.Type + f.Length + CalcChecksum(f.Payload)
}

func (f Frame) String() string {
	return fmt.Sprintf("%x", f.Bytes())
}

// clone copies b, returning nil for empty input.
func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
