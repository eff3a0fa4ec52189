package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/samcharles93/qkern/internal/tensor"
	"github.com/samcharles93/qkern/pkg/quant"
)

type fixture struct {
	src0, src1, dst tensor.View
	act, out        []float32
}

func newFixture(t *testing.T, dt quant.DType, rows, k, cols int64) *fixture {
	t.Helper()
	w := make([]float32, rows*k)
	tensor.FillRand(w, 11, 2)
	var data []byte
	switch {
	case dt == quant.DTypeF32:
		data = tensor.Float32Bytes(w)
	case dt.IsInterleaved():
		r, bl := dt.Interleave()
		plain, err := quant.QuantizeMatrix(quant.DTypeQ4_0, w, int(rows), int(k), nil)
		if err != nil {
			t.Fatalf("QuantizeMatrix: %v", err)
		}
		if data, err = quant.RepackQ4_0(plain, int(rows), int(k), r, bl); err != nil {
			t.Fatalf("RepackQ4_0: %v", err)
		}
	default:
		var err error
		if data, err = quant.QuantizeMatrix(dt, w, int(rows), int(k), nil); err != nil {
			t.Fatalf("QuantizeMatrix: %v", err)
		}
	}
	f := &fixture{act: make([]float32, cols*k), out: make([]float32, rows*cols)}
	tensor.FillRand(f.act, 12, 2)
	var err error
	if f.src0, err = tensor.NewView(dt, data, k, rows); err != nil {
		t.Fatalf("src0 view: %v", err)
	}
	if f.src1, err = tensor.F32View(f.act, k, cols); err != nil {
		t.Fatalf("src1 view: %v", err)
	}
	if f.dst, err = tensor.F32View(f.out, rows, cols); err != nil {
		t.Fatalf("dst view: %v", err)
	}
	return f
}

func (f *fixture) args() MulMatArgs {
	return MulMatArgs{
		Src0:          &f.src0,
		Src1:          &f.src1,
		Dst:           &f.dst,
		Src0Raw:       f.src0.Data,
		Src1F:         f.act,
		DstF:          f.out,
		RowLow:        0,
		RowHigh:       f.src0.Ne[1],
		BatchCols:     f.src1.Ne[1],
		PaddedRowSize: f.src0.Ne[0],
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *MulMatArgs)
	}{
		{"missing dst", func(a *MulMatArgs) { a.Dst = nil }},
		{"empty row range", func(a *MulMatArgs) { a.RowHigh = a.RowLow }},
		{"rows past end", func(a *MulMatArgs) { a.RowHigh++ }},
		{"unaligned group", func(a *MulMatArgs) { a.RowLow = 2 }},
		{"zero columns", func(a *MulMatArgs) { a.BatchCols = 0 }},
		{"short weights", func(a *MulMatArgs) { a.Src0Raw = a.Src0Raw[:len(a.Src0Raw)-1] }},
		{"short activations", func(a *MulMatArgs) { a.Src1F = a.Src1F[:10] }},
		{"short output", func(a *MulMatArgs) { a.DstF = a.DstF[:3] }},
		{"padding below row length", func(a *MulMatArgs) {
			a.Src1Q = make([]byte, 1024)
			a.PaddedRowSize = 32
		}},
		{"short quantized activations", func(a *MulMatArgs) {
			a.Src1Q = make([]byte, 10)
			a.PaddedRowSize = 64
		}},
		{"wrapping activation strides", func(a *MulMatArgs) {
			v := *a.Src1
			v.Ne[2], v.Ne[3] = 2, 2
			v.Nb[2], v.Nb[3] = 1<<63, 1<<63
			a.Src1 = &v
		}},
		{"mismatched inner extent", func(a *MulMatArgs) {
			v := *a.Src1
			v.Ne[0] = 32
			v.Nb[1] = 128
			a.Src1 = &v
		}},
	}
	f := newFixture(t, quant.DTypeQ4_0x4x8, 8, 64, 3)
	for _, tt := range tests {
		a := f.args()
		tt.mutate(&a)
		if err := a.Validate(); !errors.Is(err, tensor.ErrPrecondition) {
			t.Fatalf("%s: expected ErrPrecondition, got %v", tt.name, err)
		}
	}
	ok := f.args()
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid args rejected: %v", err)
	}
}

func TestMulMatRejectsBeforeDispatch(t *testing.T) {
	f := newFixture(t, quant.DTypeQ4_0, 4, 64, 2)
	a := f.args()
	a.RowHigh = 9
	b, err := New(CPU, Options{Threads: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer Close(b)
	if err := MulMat(context.Background(), b, a); !errors.Is(err, tensor.ErrPrecondition) {
		t.Fatalf("expected ErrPrecondition, got %v", err)
	}
}

func TestSplitJoinMatchesSingleCall(t *testing.T) {
	const rows, k, cols = 16, 64, 5
	types := []quant.DType{quant.DTypeF32, quant.DTypeQ4_0, quant.DTypeQ8_0, quant.DTypeQ4_0x4x4, quant.DTypeQ4_0x8x8}
	for _, name := range []string{CPU, Tile} {
		b, err := New(name, Options{Threads: 3})
		if err != nil {
			t.Fatalf("New(%s): %v", name, err)
		}
		for _, dt := range types {
			f := newFixture(t, dt, rows, k, cols)
			whole := f.args()
			if err := MulMat(context.Background(), b, whole); err != nil {
				t.Fatalf("%s %s: MulMat: %v", name, dt, err)
			}
			want := append([]float32(nil), whole.DstF...)

			split := f.args()
			split.DstF = make([]float32, len(want))
			lo, hi, err := Split(split, 8)
			if err != nil {
				t.Fatalf("%s %s: Split: %v", name, dt, err)
			}
			for _, part := range []MulMatArgs{lo, hi} {
				if err := MulMat(context.Background(), b, part); err != nil {
					t.Fatalf("%s %s: part [%d,%d): %v", name, dt, part.RowLow, part.RowHigh, err)
				}
			}
			Join(split, lo, hi)
			for i := range want {
				if split.DstF[i] != want[i] {
					t.Fatalf("%s %s: idx %d got %v want %v", name, dt, i, split.DstF[i], want[i])
				}
			}
		}
		Close(b)
	}
}

func TestSplitRejectsUnalignedCut(t *testing.T) {
	f := newFixture(t, quant.DTypeQ4_0x8x8, 16, 32, 1)
	if _, _, err := Split(f.args(), 4); !errors.Is(err, tensor.ErrPrecondition) {
		t.Fatalf("expected ErrPrecondition, got %v", err)
	}
	if _, _, err := Split(f.args(), 16); !errors.Is(err, tensor.ErrPrecondition) {
		t.Fatalf("expected ErrPrecondition at the range end, got %v", err)
	}
}

func TestMulMatPaddedActivations(t *testing.T) {
	const rows, k, cols, padded = 8, 64, 3, 96
	f := newFixture(t, quant.DTypeQ4_0x4x8, rows, k, cols)
	b, err := New(CPU, Options{Threads: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer Close(b)

	plain := f.args()
	if err := MulMat(context.Background(), b, plain); err != nil {
		t.Fatalf("MulMat: %v", err)
	}
	want := append([]float32(nil), plain.DstF...)

	stride := padded / quant.QK * quant.BlockQ8_0Size
	q8 := make([]byte, cols*stride)
	row := make([]float32, padded)
	for c := 0; c < cols; c++ {
		copy(row, f.act[c*k:(c+1)*k])
		quant.QuantizeRowQ8_0(row, q8[c*stride:])
	}
	a := f.args()
	a.Src1Q = q8
	a.PaddedRowSize = padded
	a.DstF = make([]float32, len(want))
	if err := MulMat(context.Background(), b, a); err != nil {
		t.Fatalf("MulMat padded: %v", err)
	}
	for i := range want {
		if a.DstF[i] != want[i] {
			t.Fatalf("idx %d: got %v want %v", i, a.DstF[i], want[i])
		}
	}
}

func TestRawBytesReportsOverflow(t *testing.T) {
	v := tensor.View{
		Ne:   [4]int64{32, 3, 1, 1},
		Nb:   [4]uint64{4, 1 << 63, 1 << 63, 1 << 63},
		Type: quant.DTypeF32,
	}
	if _, ok := rawBytes(&v, 3); ok {
		t.Fatalf("expected overflow for 3 rows of stride 1<<63")
	}
	v.Nb[1] = 256
	if n, ok := rawBytes(&v, 3); !ok || n != 2*256+128 {
		t.Fatalf("rawBytes = (%d, %v), want (640, true)", n, ok)
	}
}
