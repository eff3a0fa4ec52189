//go:build !(amd64 && goexperiment.simd)

package simd

const archsimdBuilt = false

func dotI8SIMD(a, b []int8) int32 {
	return dotI8Scalar(a, b)
}
