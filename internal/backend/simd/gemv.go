package simd

import "github.com/samcharles93/qkern/pkg/quant"

// GemvQ4_0_4x4Q8_0 multiplies nc interleaved Q4_0x4 weight rows (chunk
// width 4) by one plain Q8_0 activation row of n values. s receives nc
// results; bs and nr are accepted for signature parity with the gemm
// kernels and ignored.
func GemvQ4_0_4x4Q8_0(n int, s []float32, bs int, vx, vy []byte, nr, nc int) {
	gemvQ4_0(n, s, vx, vy, nc, 4, 4)
}

// GemvQ4_0_4x8Q8_0 is GemvQ4_0_4x4Q8_0 for chunk width 8.
func GemvQ4_0_4x8Q8_0(n int, s []float32, bs int, vx, vy []byte, nr, nc int) {
	gemvQ4_0(n, s, vx, vy, nc, 4, 8)
}

// GemvQ4_0_8x8Q8_0 multiplies Q4_0x8 groups (eight rows, chunk width 8).
func GemvQ4_0_8x8Q8_0(n int, s []float32, bs int, vx, vy []byte, nr, nc int) {
	gemvQ4_0(n, s, vx, vy, nc, 8, 8)
}

func gemvQ4_0(n int, s []float32, vx, vy []byte, nc, ncols, bl int) {
	nb := n / quant.QK
	groupBytes := ncols * quant.BlockQ4_0Size

	var codes [maxInterleave][quant.QK]int8
	var sumf [maxInterleave]float32
	for x := 0; x < nc/ncols; x++ {
		clear(sumf[:ncols])
		for l := 0; l < nb; l++ {
			g := vx[(x*nb+l)*groupBytes:]
			a := vy[l*quant.BlockQ8_0Size:]
			da := scaleAt(a)
			aq := int8s(a[2 : 2+quant.QK])

			decodeGroup(g[2*ncols:], ncols, bl, &codes)
			for j := 0; j < ncols; j++ {
				sumi := dotI8(codes[j][:], aq)
				sumf[j] += float32(sumi) * scaleAt(g[2*j:]) * da
			}
		}
		copy(s[x*ncols:x*ncols+ncols], sumf[:ncols])
	}
}
