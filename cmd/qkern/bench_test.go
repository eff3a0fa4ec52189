package main

import (
	"context"
	"testing"

	"github.com/samcharles93/qkern/internal/backend"
	"github.com/samcharles93/qkern/pkg/quant"
)

func TestBenchProblemOnInProcessBackends(t *testing.T) {
	p, err := newBenchProblem(quant.DTypeQ4_0x4x4, 8, 64, 5, 7)
	if err != nil {
		t.Fatalf("newBenchProblem: %v", err)
	}
	for _, name := range []string{backend.CPU, backend.Tile} {
		res := p.run(context.Background(), name, 0, 2)
		if res.Error != "" {
			t.Fatalf("%s: %s", name, res.Error)
		}
		if res.Device == "" {
			t.Fatalf("%s: no device description", name)
		}
		if res.Runs != 2 || res.MeanMS < 0 {
			t.Fatalf("%s: unexpected timing %+v", name, res)
		}
		// The cpu path quantizes activations to Q8_0.
		if res.MaxErr > 0.25 {
			t.Fatalf("%s: max error %v", name, res.MaxErr)
		}
	}
}

func TestBenchProblemRejectsEmptyShapes(t *testing.T) {
	if _, err := newBenchProblem(quant.DTypeQ4_0, 0, 32, 1, 1); err == nil {
		t.Fatalf("expected error for zero rows")
	}
}

func TestErrorStats(t *testing.T) {
	rmse, maxAbs := errorStats([]float32{1, 2, 3, 4}, []float32{1, 2, 3, 6})
	if maxAbs != 2 || rmse != 1 {
		t.Fatalf("errorStats = (%v, %v), want (1, 2)", rmse, maxAbs)
	}
	if rmse, maxAbs := errorStats(nil, nil); rmse != 0 || maxAbs != 0 {
		t.Fatalf("empty errorStats = (%v, %v)", rmse, maxAbs)
	}
}
