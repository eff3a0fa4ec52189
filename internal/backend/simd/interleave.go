package simd

import "github.com/samcharles93/qkern/pkg/quant"

// maxInterleave is the largest number of weight rows in one group.
const maxInterleave = 8

// decodeGroup expands the interleaved nibbles of one Q4_0xR group into
// per-row codes. Byte k*ncols*bl + j*bl + i holds row j's values
// k*bl+i (low nibble) and k*bl+i+16 (high nibble), stored XOR 0x88 so the
// sign-extended nibble is the code.
func decodeGroup(qs []byte, ncols, bl int, codes *[maxInterleave][quant.QK]int8) {
	for k := 0; k < quant.QK/(2*bl); k++ {
		for j := 0; j < ncols; j++ {
			src := qs[k*ncols*bl+j*bl:]
			dst := codes[j][k*bl:]
			for i := 0; i < bl; i++ {
				b := src[i]
				dst[i] = int8(b<<4) >> 4
				dst[i+quant.QK/2] = int8(b&0xF0) >> 4
			}
		}
	}
}

// decodeQ8x4 splits the interleaved codes of one Q8_0x4 block back into
// its four rows.
func decodeQ8x4(qs []byte, bl int, act *[4][quant.QK]int8) {
	const half = 4 * quant.QK / 2
	for k := 0; k < quant.QK/(2*bl); k++ {
		for m := 0; m < 4; m++ {
			off := k*4*bl + m*bl
			dst := act[m][k*bl:]
			for i := 0; i < bl; i++ {
				dst[i] = int8(qs[off+i])
				dst[i+quant.QK/2] = int8(qs[half+off+i])
			}
		}
	}
}
