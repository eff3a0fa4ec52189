package quant

import (
	"encoding/binary"

	"github.com/x448/float16"
)

// Scales are stored as little-endian IEEE half floats.

func putScale(dst []byte, d float32) {
	binary.LittleEndian.PutUint16(dst, float16.Fromfloat32(d).Bits())
}

func scaleAt(src []byte) float32 {
	return float16.Frombits(binary.LittleEndian.Uint16(src)).Float32()
}

// RoundFP16 returns v rounded to the nearest half-precision value.
func RoundFP16(v float32) float32 {
	return float16.Fromfloat32(v).Float32()
}

// FP16ToF32 decodes one little-endian half from b.
func FP16ToF32(b []byte) float32 {
	return scaleAt(b)
}
