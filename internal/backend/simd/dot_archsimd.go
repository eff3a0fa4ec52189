//go:build amd64 && goexperiment.simd

package simd

import "simd/archsimd"

const archsimdBuilt = true

// dotI8SIMD sums a[i]*b[i] sixteen lanes at a time. Both slices hold a
// multiple of 16 values.
func dotI8SIMD(a, b []int8) int32 {
	var acc archsimd.Int32x8
	i := 0
	for ; i+16 <= len(a); i += 16 {
		va := archsimd.LoadInt8x16Slice(a[i:]).ExtendToInt16()
		vb := archsimd.LoadInt8x16Slice(b[i:]).ExtendToInt16()
		acc = acc.Add(va.DotProductPairs(vb))
	}

	var tmp [8]int32
	acc.Store(&tmp)
	sum := tmp[0] + tmp[1] + tmp[2] + tmp[3] + tmp[4] + tmp[5] + tmp[6] + tmp[7]
	for ; i < len(a); i++ {
		sum += int32(a[i]) * int32(b[i])
	}
	return sum
}
