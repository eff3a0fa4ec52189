package tensor

import (
	"fmt"
	"math"
	"math/bits"
	"unsafe"

	"github.com/samcharles93/qkern/pkg/quant"
)

// ErrPrecondition is returned by every descriptor check in this module.
var ErrPrecondition = quant.ErrPrecondition

// View describes a tensor of up to four dimensions laid over caller-owned
// bytes. Ne holds element counts (Ne[0] innermost) and Nb byte strides;
// Nb[0] is the size of one element (or one block for quantized types).
//
// A View never owns Data: kernels read and write through it but never
// allocate or free it.
type View struct {
	Ne   [4]int64
	Nb   [4]uint64
	Type quant.DType
	Data []byte
}

// NewView returns a contiguous view over data with the given extents.
// Missing trailing extents default to 1.
func NewView(dt quant.DType, data []byte, ne ...int64) (View, error) {
	if len(ne) == 0 || len(ne) > 4 {
		return View{}, preconditionf("view: need 1 to 4 extents, got %d", len(ne))
	}
	v := View{Type: dt, Data: data}
	for i := range v.Ne {
		v.Ne[i] = 1
		if i < len(ne) {
			v.Ne[i] = ne[i]
		}
	}
	row, err := quant.RowSize(dt, v.Ne[0])
	if err != nil {
		return View{}, fmt.Errorf("%w: view: %v", ErrPrecondition, err)
	}
	v.Nb[0] = elemStride(dt)
	v.Nb[1] = row
	v.Nb[2] = v.Nb[1] * uint64(v.Ne[1])
	v.Nb[3] = v.Nb[2] * uint64(v.Ne[2])
	if err := v.Validate(); err != nil {
		return View{}, err
	}
	return v, nil
}

// F32View wraps a float32 slice without copying.
func F32View(data []float32, ne ...int64) (View, error) {
	return NewView(quant.DTypeF32, Float32Bytes(data), ne...)
}

func elemStride(dt quant.DType) uint64 {
	switch dt {
	case quant.DTypeF32, quant.DTypeF16:
		return uint64(dt.ElemSize())
	case quant.DTypeQ8_0:
		return quant.BlockQ8_0Size
	}
	return quant.BlockQ4_0Size
}

// Rows is the number of Ne[0]-long rows (Ne[1]*Ne[2]*Ne[3]).
func (v *View) Rows() int64 {
	return v.Ne[1] * v.Ne[2] * v.Ne[3]
}

// RowSize is the packed byte size of one row.
func (v *View) RowSize() uint64 {
	n, _ := quant.RowSize(v.Type, v.Ne[0])
	return n
}

// SplitRow partitions a flat row index into its outer indices.
func (v *View) SplitRow(flat int64) (i1, i2, i3 int64) {
	plane := v.Ne[1] * v.Ne[2]
	i3 = flat / plane
	rem := flat - i3*plane
	i2 = rem / v.Ne[1]
	i1 = rem - i2*v.Ne[1]
	return i1, i2, i3
}

// RowOffset is the byte offset of row (i1, i2, i3). It does not check for
// overflow; Validate guarantees every in-range row of a valid view has an
// offset below NBytes.
func (v *View) RowOffset(i1, i2, i3 int64) uint64 {
	return v.Nb[1]*uint64(i1) + v.Nb[2]*uint64(i2) + v.Nb[3]*uint64(i3)
}

// Row returns the bytes of the flat-indexed row. Quantized and f16/f32 rows
// must have a dense inner dimension (Nb[0] equal to the element stride).
func (v *View) Row(flat int64) []byte {
	off := v.RowOffset(v.SplitRow(flat))
	return v.Data[off : off+v.RowSize()]
}

// IsContiguous reports whether rows are packed back to back.
func (v *View) IsContiguous() bool {
	if v.Nb[0] != elemStride(v.Type) {
		return false
	}
	if v.Nb[1] != v.RowSize() {
		return false
	}
	return v.Nb[2] == v.Nb[1]*uint64(v.Ne[1]) && v.Nb[3] == v.Nb[2]*uint64(v.Ne[2])
}

// NBytes is one past the last byte the view can address, or MaxUint64
// when that does not fit in 64 bits.
func (v *View) NBytes() uint64 {
	n, ok := v.span()
	if !ok {
		return math.MaxUint64
	}
	return n
}

// span sums Nb[i]*(Ne[i]-1) over the outer dimensions plus the row size,
// reporting false if any step overflows.
func (v *View) span() (uint64, bool) {
	if v.Ne[0] == 0 || v.Ne[1] <= 0 || v.Ne[2] <= 0 || v.Ne[3] <= 0 {
		return 0, true
	}
	total := v.RowSize()
	for i := 1; i < 4; i++ {
		hi, lo := bits.Mul64(v.Nb[i], uint64(v.Ne[i]-1))
		if hi != 0 {
			return 0, false
		}
		var carry uint64
		total, carry = bits.Add64(total, lo, 0)
		if carry != 0 {
			return 0, false
		}
	}
	return total, true
}

// rowCount is Ne[1]*Ne[2]*Ne[3], reporting false past MaxInt64.
func (v *View) rowCount() (int64, bool) {
	n := uint64(1)
	for _, e := range v.Ne[1:] {
		hi, lo := bits.Mul64(n, uint64(e))
		if hi != 0 || lo > math.MaxInt64 {
			return 0, false
		}
		n = lo
	}
	return int64(n), true
}

// Validate checks extents, strides and the backing length.
func (v *View) Validate() error {
	for i, n := range v.Ne {
		if n < 0 || (i > 0 && n == 0) {
			return preconditionf("view: extent %d is %d", i, n)
		}
	}
	if _, err := quant.RowSize(v.Type, v.Ne[0]); err != nil {
		return fmt.Errorf("%w: view: %v", ErrPrecondition, err)
	}
	if v.Nb[0] != elemStride(v.Type) {
		return preconditionf("view: inner stride %d, want %d for %s", v.Nb[0], elemStride(v.Type), v.Type)
	}
	if v.Nb[1] < v.RowSize() {
		return preconditionf("view: row stride %d shorter than row size %d", v.Nb[1], v.RowSize())
	}
	if r, _ := v.Type.Interleave(); r > 1 {
		if !v.IsContiguous() {
			return preconditionf("view: %s tensors must be contiguous", v.Type)
		}
		if v.Ne[1]%int64(r) != 0 {
			return preconditionf("view: %d rows are not divisible by the %s group size %d", v.Ne[1], v.Type, r)
		}
	}
	if _, ok := v.rowCount(); !ok {
		return preconditionf("view: row count of extents %v overflows", v.Ne)
	}
	need, ok := v.span()
	if !ok {
		return preconditionf("view: strides %v over extents %v overflow", v.Nb, v.Ne)
	}
	if uint64(len(v.Data)) < need {
		return preconditionf("view: backing store has %d bytes, need %d", len(v.Data), need)
	}
	return nil
}

// Float32Bytes reinterprets f as its little-endian bytes without copying.
func Float32Bytes(f []float32) []byte {
	if len(f) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&f[0])), len(f)*4)
}

// BytesFloat32 reinterprets b (len a multiple of 4, 4-byte aligned) as float32s.
func BytesFloat32(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

func preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}
