package tile

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/samcharles93/qkern/internal/tensor"
	"github.com/samcharles93/qkern/pkg/quant"
)

// Element is a storage type the row-copy kernel can read or write.
type Element interface {
	float16.Float16 | float32
}

func dtypeOf[T Element]() quant.DType {
	var zero T
	if _, ok := any(zero).(float32); ok {
		return quant.DTypeF32
	}
	return quant.DTypeF16
}

// KernelName is the name a DupRows[S, D] launch reports.
func KernelName[S, D Element]() string {
	s, d := dtypeOf[S](), dtypeOf[D]()
	if s == d {
		return "dup_" + s.String()
	}
	return "dup_" + s.String() + "_to_" + d.String()
}

// DupRows copies every row of src into the contiguous dst, converting
// elements from S to D. Each row runs as its own instance; src may be
// strided in its outer dimensions, dst is written densely in row order.
func DupRows[S, D Element](ctx context.Context, e *Engine, src, dst *tensor.View) error {
	kernel := KernelName[S, D]()
	if err := checkDup(kernel, dtypeOf[S](), dtypeOf[D](), src, dst); err != nil {
		return err
	}
	ne0 := int(src.Ne[0])
	inBytes := ne0 * dtypeOf[S]().ElemSize()
	outBytes := ne0 * dtypeOf[D]().ElemSize()
	convert := converter[S, D]()

	return e.Launch(ctx, kernel, src.Rows(), func(_ context.Context, inst *Instance) error {
		off := src.RowOffset(src.SplitRow(inst.Index))
		dstOff := int(inst.Index) * outBytes

		if err := inst.Init(inBytes, outBytes); err != nil {
			return err
		}
		if err := inst.CopyIn(src.Data[off : off+uint64(inBytes)]); err != nil {
			return err
		}
		if err := inst.Transform(convert); err != nil {
			return err
		}
		if err := inst.CopyOut(dst.Data[dstOff : dstOff+outBytes]); err != nil {
			return err
		}
		return inst.Done()
	})
}

// DupF16 is the f16 to f16 row copy (dup_f16).
func DupF16(ctx context.Context, e *Engine, src, dst *tensor.View) error {
	return DupRows[float16.Float16, float16.Float16](ctx, e, src, dst)
}

// DupF32 is the f32 to f32 row copy (dup_f32).
func DupF32(ctx context.Context, e *Engine, src, dst *tensor.View) error {
	return DupRows[float32, float32](ctx, e, src, dst)
}

// DupF32ToF16 narrows f32 rows to f16 (dup_f32_to_f16).
func DupF32ToF16(ctx context.Context, e *Engine, src, dst *tensor.View) error {
	return DupRows[float32, float16.Float16](ctx, e, src, dst)
}

// DupF16ToF32 widens f16 rows to f32 (dup_f16_to_f32).
func DupF16ToF32(ctx context.Context, e *Engine, src, dst *tensor.View) error {
	return DupRows[float16.Float16, float32](ctx, e, src, dst)
}

// Dup picks the variant matching the view types.
func Dup(ctx context.Context, e *Engine, src, dst *tensor.View) error {
	switch {
	case src.Type == quant.DTypeF16 && dst.Type == quant.DTypeF16:
		return DupF16(ctx, e, src, dst)
	case src.Type == quant.DTypeF32 && dst.Type == quant.DTypeF32:
		return DupF32(ctx, e, src, dst)
	case src.Type == quant.DTypeF32 && dst.Type == quant.DTypeF16:
		return DupF32ToF16(ctx, e, src, dst)
	case src.Type == quant.DTypeF16 && dst.Type == quant.DTypeF32:
		return DupF16ToF32(ctx, e, src, dst)
	}
	return fmt.Errorf("%w: dup: no kernel for %s to %s", tensor.ErrPrecondition, src.Type, dst.Type)
}

func checkDup(kernel string, st, dt quant.DType, src, dst *tensor.View) error {
	if src.Type != st || dst.Type != dt {
		return fmt.Errorf("%w: %s: got %s to %s", tensor.ErrPrecondition, kernel, src.Type, dst.Type)
	}
	if err := src.Validate(); err != nil {
		return fmt.Errorf("%s: src: %w", kernel, err)
	}
	if err := dst.Validate(); err != nil {
		return fmt.Errorf("%s: dst: %w", kernel, err)
	}
	if !dst.IsContiguous() {
		return fmt.Errorf("%w: %s: destination must be contiguous", tensor.ErrPrecondition, kernel)
	}
	if src.Ne[0] != dst.Ne[0] || src.Rows() != dst.Rows() {
		return fmt.Errorf("%w: %s: %v rows do not match %v", tensor.ErrPrecondition, kernel, src.Ne, dst.Ne)
	}
	return nil
}

func converter[S, D Element]() func(dst, src []byte) error {
	s, d := dtypeOf[S](), dtypeOf[D]()
	switch {
	case s == d:
		return copyRow
	case s == quant.DTypeF32:
		return castF32ToF16
	default:
		return castF16ToF32
	}
}

func copyRow(dst, src []byte) error {
	copy(dst, src)
	return nil
}

func castF32ToF16(dst, src []byte) error {
	for i := 0; i < len(dst)/2; i++ {
		v := math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
		binary.LittleEndian.PutUint16(dst[2*i:], float16.Fromfloat32(v).Bits())
	}
	return nil
}

func castF16ToF32(dst, src []byte) error {
	for i := 0; i < len(dst)/4; i++ {
		v := float16.Frombits(binary.LittleEndian.Uint16(src[2*i:])).Float32()
		binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(v))
	}
	return nil
}
