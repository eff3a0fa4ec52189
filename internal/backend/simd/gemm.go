package simd

import "github.com/samcharles93/qkern/pkg/quant"

// GemmQ4_0_4x4Q8_0 multiplies nc interleaved Q4_0x4 weight rows by nr
// activation rows stored as nr/4 runs of Q8_0x4 blocks (chunk width 4).
// Result (activation row r, weight row c) lands at s[r*bs + c].
func GemmQ4_0_4x4Q8_0(n int, s []float32, bs int, vx, vy []byte, nr, nc int) {
	gemmQ4_0(n, s, bs, vx, vy, nr, nc, 4, 4)
}

// GemmQ4_0_4x8Q8_0 is GemmQ4_0_4x4Q8_0 with chunk width 8 on both sides.
func GemmQ4_0_4x8Q8_0(n int, s []float32, bs int, vx, vy []byte, nr, nc int) {
	gemmQ4_0(n, s, bs, vx, vy, nr, nc, 4, 8)
}

// GemmQ4_0_8x8Q8_0 multiplies Q4_0x8 groups against width-8 Q8_0x4
// activations.
func GemmQ4_0_8x8Q8_0(n int, s []float32, bs int, vx, vy []byte, nr, nc int) {
	gemmQ4_0(n, s, bs, vx, vy, nr, nc, 8, 8)
}

func gemmQ4_0(n int, s []float32, bs int, vx, vy []byte, nr, nc, ncols, bl int) {
	nb := n / quant.QK
	groupBytes := ncols * quant.BlockQ4_0Size

	var codes [maxInterleave][quant.QK]int8
	var act [4][quant.QK]int8
	var sumf [4][maxInterleave]float32
	for y := 0; y < nr/4; y++ {
		for x := 0; x < nc/ncols; x++ {
			sumf = [4][maxInterleave]float32{}
			for l := 0; l < nb; l++ {
				g := vx[(x*nb+l)*groupBytes:]
				a := vy[(y*nb+l)*quant.BlockQ8_0x4Size:]

				decodeGroup(g[2*ncols:], ncols, bl, &codes)
				decodeQ8x4(a[8:], bl, &act)
				for m := 0; m < 4; m++ {
					da := scaleAt(a[2*m:])
					for j := 0; j < ncols; j++ {
						sumi := dotI8(codes[j][:], act[m][:])
						sumf[m][j] += float32(sumi) * scaleAt(g[2*j:]) * da
					}
				}
			}
			for m := 0; m < 4; m++ {
				out := s[(y*4+m)*bs+x*ncols:]
				copy(out[:ncols], sumf[m][:ncols])
			}
		}
	}
}
