package simd

import (
	"encoding/binary"
	"unsafe"

	"github.com/x448/float16"
)

// fp16Table maps every possible FP16 bit-pattern to float32.
var fp16Table = func() [1 << 16]float32 {
	var tbl [1 << 16]float32
	for i := range tbl {
		tbl[i] = float16.Frombits(uint16(i)).Float32()
	}
	return tbl
}()

// scaleAt decodes the little-endian fp16 value at b[0:2].
func scaleAt(b []byte) float32 {
	return fp16Table[binary.LittleEndian.Uint16(b)]
}

// int8s views raw code bytes as signed values.
func int8s(b []byte) []int8 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*int8)(unsafe.Pointer(&b[0])), len(b))
}
