//go:build cuda

package cuda

import (
	"context"
	"math"
	"testing"

	"github.com/samcharles93/qkern/internal/backend/cuda/native"
	"github.com/samcharles93/qkern/internal/tensor"
	"github.com/samcharles93/qkern/pkg/quant"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	if n, err := native.DeviceCount(); err != nil || n < 1 {
		t.Skip("no cuda device available")
	}
	b, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestMulMatQMatchesHostProduct(t *testing.T) {
	b := newBackend(t)
	const rows, k, cols = 8, 64, 3
	w := make([]float32, rows*k)
	x := make([]float32, cols*k)
	tensor.FillRand(w, 1, 2)
	tensor.FillRand(x, 2, 2)

	plain, err := quant.QuantizeMatrix(quant.DTypeQ4_0, w, rows, k, nil)
	if err != nil {
		t.Fatalf("QuantizeMatrix: %v", err)
	}
	packed, err := quant.RepackQ4_0(plain, rows, k, 4, 8)
	if err != nil {
		t.Fatalf("RepackQ4_0: %v", err)
	}
	stored, _ := quant.Dequantize(quant.DTypeQ4_0, plain, rows*k)

	src0, err := tensor.NewView(quant.DTypeQ4_0x4x8, packed, k, rows)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	src1, _ := tensor.F32View(x, k, cols)
	out := make([]float32, rows*cols)
	dst, _ := tensor.F32View(out, rows, cols)

	stream, err := native.NewStream()
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	defer stream.Destroy()

	if err := b.MulMatQ(context.Background(), &src0, &src1, &dst, packed, nil, x, out, 0, rows, cols, k, stream); err != nil {
		t.Fatalf("MulMatQ: %v", err)
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			var want float64
			for i := 0; i < k; i++ {
				want += float64(stored[r*k+i]) * float64(x[c*k+i])
			}
			// Activations are rounded to f16 on the way to the device.
			if diff := math.Abs(float64(out[c*rows+r]) - want); diff > 2e-2 {
				t.Fatalf("(%d,%d): got %v want %v", r, c, out[c*rows+r], want)
			}
		}
	}
}

func TestMulMatQRejectsForeignQueue(t *testing.T) {
	b := newBackend(t)
	src0, _ := tensor.F32View(make([]float32, 32), 32, 1)
	err := b.MulMatQ(context.Background(), &src0, &src0, &src0, src0.Data, nil, make([]float32, 32), make([]float32, 1), 0, 1, 1, 32, 42)
	if err == nil {
		t.Fatalf("expected error for int queue")
	}
}
