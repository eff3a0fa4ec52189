package simd

import (
	"github.com/ajroetker/go-highway/hwy"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// DotF32 returns the dot product of the first len(a) values of a and b.
func DotF32(a, b []float32) float32 {
	n := len(a)
	acc := hwy.Zero[float32]()
	lanes := acc.NumLanes()
	i := 0
	for ; i+lanes <= n; i += lanes {
		acc = hwy.Add(acc, hwy.Mul(hwy.Load(a[i:]), hwy.Load(b[i:])))
	}
	sum := hwy.ReduceSum(acc)
	for ; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// gemmF32 writes c = b * aᵀ, where a holds rows of k values with the
// given stride and b holds cols dense rows of k values. c is cols x rows,
// row-major, which is the column-major layout of the rows x cols result.
func gemmF32(c, a []float32, rows, aStride int, b []float32, cols, k int) {
	A := blas32.General{Rows: rows, Cols: k, Stride: aStride, Data: a}
	B := blas32.General{Rows: cols, Cols: k, Stride: k, Data: b}
	C := blas32.General{Rows: cols, Cols: rows, Stride: rows, Data: c}
	blas32.Gemm(blas.NoTrans, blas.Trans, 1, B, A, 0, C)
}
