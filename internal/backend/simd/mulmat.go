package simd

import (
	"context"
	"fmt"

	"github.com/samcharles93/qkern/internal/logger"
	"github.com/samcharles93/qkern/internal/tensor"
	"github.com/samcharles93/qkern/pkg/quant"
)

type kernel func(n int, s []float32, bs int, vx, vy []byte, nr, nc int)

type kernelPair struct {
	gemv, gemm kernel
}

var interleavedKernels = map[quant.DType]kernelPair{
	quant.DTypeQ4_0x4x4: {GemvQ4_0_4x4Q8_0, GemmQ4_0_4x4Q8_0},
	quant.DTypeQ4_0x4x8: {GemvQ4_0_4x8Q8_0, GemmQ4_0_4x8Q8_0},
	quant.DTypeQ4_0x8x8: {GemvQ4_0_8x8Q8_0, GemmQ4_0_8x8Q8_0},
}

// Backend runs matrix products on the host CPU.
type Backend struct {
	pool *Pool
	own  bool
}

// New returns a CPU backend. threads <= 0 shares the process-wide pool.
func New(threads int) *Backend {
	if threads <= 0 {
		return &Backend{pool: DefaultPool()}
	}
	return &Backend{pool: NewPool(threads), own: true}
}

func (b *Backend) Name() string {
	return "cpu"
}

// Device describes the worker pool.
func (b *Backend) Device() string {
	return fmt.Sprintf("%d threads", b.pool.Size())
}

// Close releases a pool created by New.
func (b *Backend) Close() error {
	if b.own {
		b.pool.Close()
	}
	return nil
}

// MulMatQ computes rows [rowLow, rowHigh) of src0 times batchCols columns of
// src1 into dstF (column-major, rowHigh-rowLow rows). Inputs are assumed
// validated. The CPU has no queues, so queue is ignored.
func (b *Backend) MulMatQ(ctx context.Context, src0, src1, dst *tensor.View, src0Raw, src1Q []byte, src1F, dstF []float32, rowLow, rowHigh, batchCols, paddedRowSize int64, queue any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := mulMat{
		b:      b,
		src0:   src0,
		raw:    src0Raw,
		src1Q:  src1Q,
		src1F:  src1F,
		dst:    dstF,
		k:      int(src0.Ne[0]),
		rows:   int(rowHigh - rowLow),
		cols:   int(batchCols),
		padded: int(paddedRowSize),
	}
	logger.FromContext(ctx).Debug("mulmat", "backend", "cpu", "type", src0.Type.String(), "rows", m.rows, "cols", m.cols, "path", features.Path())

	switch src0.Type {
	case quant.DTypeF32:
		m.f32()
	case quant.DTypeF16:
		m.f16()
	case quant.DTypeQ4_0, quant.DTypeQ8_0:
		m.plain()
	case quant.DTypeQ4_0x4x4, quant.DTypeQ4_0x4x8, quant.DTypeQ4_0x8x8:
		m.interleaved()
	default:
		return fmt.Errorf("cpu: %w: unsupported src0 type %s", tensor.ErrPrecondition, src0.Type)
	}
	return nil
}

type mulMat struct {
	b     *Backend
	src0  *tensor.View
	raw   []byte
	src1Q []byte
	src1F []float32
	dst   []float32

	k, rows, cols, padded int
}

// q8Rows returns the activations as plain Q8_0 rows and their byte stride.
// Caller-quantized rows are used as is; otherwise src1F is quantized here.
func (m *mulMat) q8Rows() ([]byte, int) {
	if m.src1Q != nil {
		return m.src1Q, m.padded / quant.QK * quant.BlockQ8_0Size
	}
	stride := m.k / quant.QK * quant.BlockQ8_0Size
	q8 := make([]byte, m.cols*stride)
	m.b.pool.Run(m.cols, func(lo, hi int) {
		for c := lo; c < hi; c++ {
			quant.QuantizeRowQ8_0(m.src1F[c*m.k:(c+1)*m.k], q8[c*stride:])
		}
	})
	return q8, stride
}

// interleaved follows the aarch64 forward_mul_mat driver: gemm over
// activation rows in groups of four, gemv for the rest. Weight groups are
// split between workers.
func (m *mulMat) interleaved() {
	kern := interleavedKernels[m.src0.Type]
	r, bl := m.src0.Type.Interleave()
	nb := m.k / quant.QK
	groupBytes := r * quant.BlockQ4_0Size

	q8, stride := m.q8Rows()
	full := m.cols - m.cols%4
	var packed []byte
	if full > 0 {
		packed = make([]byte, full/4*nb*quant.BlockQ8_0x4Size)
		quant.PackRowsQ8_0x4(packed, q8, full, m.k, stride, bl)
	}

	m.b.pool.Run(m.rows/r, func(lo, hi int) {
		vx := m.raw[lo*nb*groupBytes:]
		nc := (hi - lo) * r
		if full > 0 {
			kern.gemm(m.k, m.dst[lo*r:], m.rows, vx, packed, full, nc)
		}
		for c := full; c < m.cols; c++ {
			kern.gemv(m.k, m.dst[c*m.rows+lo*r:], m.rows, vx, q8[c*stride:], 1, nc)
		}
	})
}

func (m *mulMat) plain() {
	q8, stride := m.q8Rows()
	rowStride := int(m.src0.Nb[1])
	dot := VecDotQ4_0Q8_0
	if m.src0.Type == quant.DTypeQ8_0 {
		dot = VecDotQ8_0Q8_0
	}
	m.b.pool.Run(m.rows, func(lo, hi int) {
		for r := lo; r < hi; r++ {
			w := m.raw[r*rowStride:]
			for c := 0; c < m.cols; c++ {
				m.dst[c*m.rows+r] = dot(m.k, w, q8[c*stride:])
			}
		}
	})
}

func (m *mulMat) f32() {
	stride := int(m.src0.Nb[1] / 4)
	a := tensor.BytesFloat32(m.raw)
	gemmF32(m.dst, a[:(m.rows-1)*stride+m.k], m.rows, stride, m.src1F[:m.cols*m.k], m.cols, m.k)
}

func (m *mulMat) f16() {
	rowStride := int(m.src0.Nb[1])
	m.b.pool.Run(m.rows, func(lo, hi int) {
		w := make([]float32, m.k)
		for r := lo; r < hi; r++ {
			row := m.raw[r*rowStride:]
			for i := range w {
				w[i] = scaleAt(row[2*i:])
			}
			for c := 0; c < m.cols; c++ {
				m.dst[c*m.rows+r] = DotF32(w, m.src1F[c*m.k:(c+1)*m.k])
			}
		}
	})
}
