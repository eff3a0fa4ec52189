package simd

import "github.com/samcharles93/qkern/pkg/quant"

// dotI8 returns the integer dot product of two equal-length code slices.
func dotI8(a, b []int8) int32 {
	if features.SIMDDot {
		return dotI8SIMD(a, b)
	}
	return dotI8Scalar(a, b)
}

func dotI8Scalar(a, b []int8) int32 {
	var sum int32
	for i := range a {
		sum += int32(a[i]) * int32(b[i])
	}
	return sum
}

// decodeQ4_0 expands the 16 nibble bytes of a plain Q4_0 block into 32
// signed codes.
func decodeQ4_0(qs []byte, codes *[quant.QK]int8) {
	for j := 0; j < quant.QK/2; j++ {
		codes[j] = int8(qs[j]&0x0F) - 8
		codes[j+quant.QK/2] = int8(qs[j]>>4) - 8
	}
}

// VecDotQ4_0Q8_0 returns the dot product of a plain Q4_0 row and a plain
// Q8_0 row, both holding n values.
func VecDotQ4_0Q8_0(n int, x, y []byte) float32 {
	nb := n / quant.QK
	var codes [quant.QK]int8
	var sumf float32
	for b := 0; b < nb; b++ {
		xb := x[b*quant.BlockQ4_0Size:]
		yb := y[b*quant.BlockQ8_0Size:]
		decodeQ4_0(xb[2:2+quant.QK/2], &codes)
		sumi := dotI8(codes[:], int8s(yb[2:2+quant.QK]))
		sumf += float32(sumi) * scaleAt(xb) * scaleAt(yb)
	}
	return sumf
}

// VecDotQ8_0Q8_0 returns the dot product of two plain Q8_0 rows.
func VecDotQ8_0Q8_0(n int, x, y []byte) float32 {
	nb := n / quant.QK
	var sumf float32
	for b := 0; b < nb; b++ {
		xb := x[b*quant.BlockQ8_0Size:]
		yb := y[b*quant.BlockQ8_0Size:]
		sumi := dotI8(int8s(xb[2:2+quant.QK]), int8s(yb[2:2+quant.QK]))
		sumf += float32(sumi) * scaleAt(xb) * scaleAt(yb)
	}
	return sumf
}
