package backend

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/samcharles93/qkern/internal/logger"
	"github.com/samcharles93/qkern/internal/tensor"
	"github.com/samcharles93/qkern/pkg/quant"
)

// MulMatArgs carries one MulMatQ call. Src0Raw starts at row RowLow; DstF
// receives (RowHigh-RowLow) x BatchCols floats in column-major order.
type MulMatArgs struct {
	Src0, Src1, Dst *tensor.View

	Src0Raw []byte
	Src1Q   []byte
	Src1F   []float32
	DstF    []float32

	RowLow, RowHigh int64
	BatchCols       int64
	PaddedRowSize   int64
	Queue           Queue
}

// Rows is the number of output rows the call produces.
func (a *MulMatArgs) Rows() int64 {
	return a.RowHigh - a.RowLow
}

// Validate checks the descriptors and buffers. Every failure wraps
// tensor.ErrPrecondition.
func (a *MulMatArgs) Validate() error {
	if a.Src0 == nil || a.Src1 == nil || a.Dst == nil {
		return preconditionf("mulmat: src0, src1 and dst are required")
	}
	for _, v := range []struct {
		name string
		view *tensor.View
	}{{"src0", a.Src0}, {"src1", a.Src1}, {"dst", a.Dst}} {
		if err := v.view.Validate(); err != nil {
			return fmt.Errorf("mulmat: %s: %w", v.name, err)
		}
	}
	src0, src1, dst := a.Src0, a.Src1, a.Dst
	if src0.Ne[2] != 1 || src0.Ne[3] != 1 {
		return preconditionf("mulmat: src0 must be 2D, got extents %v", src0.Ne)
	}
	if src1.Type != quant.DTypeF32 || dst.Type != quant.DTypeF32 {
		return preconditionf("mulmat: src1 and dst must be f32, got %s and %s", src1.Type, dst.Type)
	}
	k := src0.Ne[0]
	if src1.Ne[0] != k {
		return preconditionf("mulmat: src1 row length %d, want %d", src1.Ne[0], k)
	}
	if dst.Ne[0] != src0.Ne[1] || dst.Ne[1] != src1.Ne[1] {
		return preconditionf("mulmat: dst extents %dx%d, want %dx%d", dst.Ne[0], dst.Ne[1], src0.Ne[1], src1.Ne[1])
	}
	if src0.Type.IsQuantized() && k%quant.QK != 0 {
		return preconditionf("mulmat: row length %d is not a multiple of %d", k, quant.QK)
	}
	if a.RowLow < 0 || a.RowLow >= a.RowHigh || a.RowHigh > src0.Ne[1] {
		return preconditionf("mulmat: row range [%d, %d) outside [0, %d)", a.RowLow, a.RowHigh, src0.Ne[1])
	}
	if a.BatchCols <= 0 || a.BatchCols > src1.Ne[1] {
		return preconditionf("mulmat: batch of %d columns outside (0, %d]", a.BatchCols, src1.Ne[1])
	}
	if r, _ := src0.Type.Interleave(); r > 1 && (a.RowLow%int64(r) != 0 || a.RowHigh%int64(r) != 0) {
		return preconditionf("mulmat: row range [%d, %d) is not aligned to %s groups of %d", a.RowLow, a.RowHigh, src0.Type, r)
	}

	rows := a.Rows()
	need, ok := rawBytes(src0, rows)
	if !ok {
		return preconditionf("mulmat: %d rows of stride %d overflow", rows, src0.Nb[1])
	}
	if uint64(len(a.Src0Raw)) < need {
		return preconditionf("mulmat: src0 data has %d bytes, need %d", len(a.Src0Raw), need)
	}
	if need := a.BatchCols * k; int64(len(a.Src1F)) < need {
		return preconditionf("mulmat: src1 floats %d, need %d", len(a.Src1F), need)
	}
	if need := rows * a.BatchCols; int64(len(a.DstF)) < need {
		return preconditionf("mulmat: dst floats %d, need %d", len(a.DstF), need)
	}
	if a.Src1Q != nil {
		if a.PaddedRowSize < k || a.PaddedRowSize%quant.QK != 0 {
			return preconditionf("mulmat: padded row size %d must be a multiple of %d and at least %d", a.PaddedRowSize, quant.QK, k)
		}
		need := a.BatchCols * (a.PaddedRowSize / quant.QK * quant.BlockQ8_0Size)
		if int64(len(a.Src1Q)) < need {
			return preconditionf("mulmat: quantized src1 has %d bytes, need %d", len(a.Src1Q), need)
		}
	}
	return nil
}

// rawBytes is how many bytes of src0 data rows consecutive rows span,
// reporting false on overflow. Interleaved groups are packed back to back.
func rawBytes(src0 *tensor.View, rows int64) (uint64, bool) {
	stride, n := src0.Nb[1], uint64(rows-1)
	if src0.Type.IsInterleaved() {
		stride, n = src0.RowSize(), uint64(rows)
	}
	hi, lo := bits.Mul64(stride, n)
	if hi != 0 {
		return 0, false
	}
	if src0.Type.IsInterleaved() {
		return lo, true
	}
	sum, carry := bits.Add64(lo, src0.RowSize(), 0)
	return sum, carry == 0
}

// MulMat validates args and runs them on b.
func MulMat(ctx context.Context, b Backend, args MulMatArgs) error {
	if err := args.Validate(); err != nil {
		return err
	}
	logger.FromContext(ctx).Debug("dispatch", "backend", b.Name(), "rows", args.Rows(), "cols", args.BatchCols)
	return b.MulMatQ(ctx, args.Src0, args.Src1, args.Dst, args.Src0Raw, args.Src1Q, args.Src1F, args.DstF,
		args.RowLow, args.RowHigh, args.BatchCols, args.PaddedRowSize, args.Queue)
}

// Split cuts args at row k into [RowLow, k) and [k, RowHigh). Each half
// gets its own output buffer; Join writes them back into args.DstF.
func Split(args MulMatArgs, k int64) (lo, hi MulMatArgs, err error) {
	if args.Src0 == nil {
		return lo, hi, preconditionf("split: src0 is required")
	}
	if k <= args.RowLow || k >= args.RowHigh {
		return lo, hi, preconditionf("split: row %d outside (%d, %d)", k, args.RowLow, args.RowHigh)
	}
	if r, _ := args.Src0.Type.Interleave(); r > 1 && k%int64(r) != 0 {
		return lo, hi, preconditionf("split: row %d is not aligned to %s groups of %d", k, args.Src0.Type, r)
	}
	// Interleaved views are contiguous, so row k still starts at k*nb1.
	off := args.Src0.Nb[1] * uint64(k-args.RowLow)
	if off > uint64(len(args.Src0Raw)) {
		return lo, hi, preconditionf("split: src0 data has %d bytes, need %d", len(args.Src0Raw), off)
	}

	lo, hi = args, args
	lo.RowHigh = k
	lo.DstF = make([]float32, lo.Rows()*args.BatchCols)
	hi.RowLow = k
	hi.Src0Raw = args.Src0Raw[off:]
	hi.DstF = make([]float32, hi.Rows()*args.BatchCols)
	return lo, hi, nil
}

// Join copies the outputs of parts produced by Split into args.DstF.
func Join(args MulMatArgs, parts ...MulMatArgs) {
	rows := args.Rows()
	for _, p := range parts {
		pr := p.Rows()
		for c := int64(0); c < args.BatchCols; c++ {
			copy(args.DstF[c*rows+p.RowLow-args.RowLow:], p.DstF[c*pr:(c+1)*pr])
		}
	}
}

func preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", tensor.ErrPrecondition, fmt.Sprintf(format, args...))
}
