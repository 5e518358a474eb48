package protocol

import (
	"errors"
	"fmt"
)

// ErrNotPackedDecimal is returned when a temperature field has a nibble above 9.
var ErrNotPackedDecimal = errors.New("value is not packed decimal")

// absentBytes is the sentinel the device sends for "no reading".
var absentBytes = [2]byte{0xff, 0xff}

// DecodeTemperature reads two packed-decimal bytes, most significant digit
// first, as tenths of a degree. 0xFFFF decodes to Absent.
func DecodeTemperature(b [2]byte) (Reading, error) {
	if b == absentBytes {
		return Absent, nil
	}
	var v uint16
	for _, octet := range b {
		hi, lo := octet>>4, octet&0x0f
		if hi > 9 || lo > 9 {
			return Absent, fmt.Errorf("protocol: decode temperature %02x%02x: %w", b[0], b[1], ErrNotPackedDecimal)
		}
		v = v*100 + uint16(hi)*10 + uint16(lo)
	}
	return Present(Temperature(v)), nil
}

// EncodeTemperature packs r into two bytes. Absent encodes to 0xFFFF. Only the
// four low-order decimal digits of the value are kept.
func EncodeTemperature(r Reading) [2]byte {
	if !r.Valid {
		return absentBytes
	}
	v := uint16(r.Value)
	d0 := byte(v / 1000 % 10)
	d1 := byte(v / 100 % 10)
	d2 := byte(v / 10 % 10)
	d3 := byte(v % 10)
	return [2]byte{d0<<4 | d1, d2<<4 | d3}
}
