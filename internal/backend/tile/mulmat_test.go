package tile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samcharles93/qkern/internal/tensor"
	"github.com/samcharles93/qkern/pkg/quant"
)

func weightsFor(t *testing.T, dt quant.DType, w []float32, rows, k int) []byte {
	t.Helper()
	base := dt
	if dt.IsInterleaved() {
		base = quant.DTypeQ4_0
	}
	data, err := quant.QuantizeMatrix(base, w, rows, k, nil)
	require.NoError(t, err)
	if dt.IsInterleaved() {
		r, bl := dt.Interleave()
		data, err = quant.RepackQ4_0(data, rows, k, r, bl)
		require.NoError(t, err)
	}
	return data
}

func runTile(t *testing.T, b *Backend, src0 tensor.View, x []float32, lo, hi int64, queue any) []float32 {
	t.Helper()
	k := src0.Ne[0]
	cols := int64(len(x)) / k
	src1 := f32View(t, x, k, cols)
	out := make([]float32, (hi-lo)*cols)
	dst := f32View(t, out, hi-lo, cols)
	raw := src0.Data[uint64(lo)*src0.Nb[1]:]
	require.NoError(t, b.MulMatQ(context.Background(), &src0, &src1, &dst, raw, nil, x, out, lo, hi, cols, k, queue))
	return out
}

func TestTileMulMatMatchesDequantizedProduct(t *testing.T) {
	const rows, k, cols = 16, 64, 5
	w := make([]float32, rows*k)
	x := make([]float32, cols*k)
	tensor.FillRand(w, 1, 2)
	tensor.FillRand(x, 2, 2)
	b := New(Config{Lanes: 4})

	types := []quant.DType{
		quant.DTypeF32, quant.DTypeF16, quant.DTypeQ4_0, quant.DTypeQ8_0,
		quant.DTypeQ4_0x4x4, quant.DTypeQ4_0x4x8, quant.DTypeQ4_0x8x8,
	}
	for _, dt := range types {
		data := weightsFor(t, dt, w, rows, k)
		src0, err := tensor.NewView(dt, data, k, rows)
		require.NoError(t, err)

		base := dt
		if dt.IsInterleaved() {
			base = quant.DTypeQ4_0
			plain, err := quant.QuantizeMatrix(base, w, rows, k, nil)
			require.NoError(t, err)
			data = plain
		}
		stored, err := quant.Dequantize(base, data, rows*k)
		require.NoError(t, err)

		got := runTile(t, b, src0, x, 0, rows, nil)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				var want float64
				for i := 0; i < k; i++ {
					want += float64(stored[r*k+i]) * float64(x[c*k+i])
				}
				require.InDelta(t, want, float64(got[c*rows+r]), 1e-4, "%s (%d,%d)", dt, r, c)
			}
		}
	}
}

func TestTileMulMatPartitionIndependence(t *testing.T) {
	const rows, k, cols = 16, 32, 3
	w := make([]float32, rows*k)
	x := make([]float32, cols*k)
	tensor.FillRand(w, 3, 2)
	tensor.FillRand(x, 4, 2)
	b := New(Config{Lanes: 2})

	for _, dt := range []quant.DType{quant.DTypeQ8_0, quant.DTypeQ4_0x8x8} {
		src0, err := tensor.NewView(dt, weightsFor(t, dt, w, rows, k), k, rows)
		require.NoError(t, err)
		full := runTile(t, b, src0, x, 0, rows, nil)
		top := runTile(t, b, src0, x, 0, 8, nil)
		bottom := runTile(t, b, src0, x, 8, rows, NewEngine(Config{Lanes: 1}))
		for c := 0; c < cols; c++ {
			require.Equal(t, full[c*rows:c*rows+8], top[c*8:(c+1)*8], "%s column %d", dt, c)
			require.Equal(t, full[c*rows+8:(c+1)*rows], bottom[c*8:(c+1)*8], "%s column %d", dt, c)
		}
	}
}

func TestTileMulMatRejectsForeignQueue(t *testing.T) {
	b := New(Config{Lanes: 1})
	src0, err := tensor.F32View(make([]float32, 32), 32, 1)
	require.NoError(t, err)
	err = b.MulMatQ(context.Background(), &src0, &src0, &src0, src0.Data, nil, make([]float32, 32), make([]float32, 1), 0, 1, 1, 32, "stream")
	require.ErrorIs(t, err, tensor.ErrPrecondition)
}

func referenceProduct(stored, x []float32, rows, k, cols int) []float64 {
	want := make([]float64, rows*cols)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			var sum float64
			for i := 0; i < k; i++ {
				sum += float64(stored[r*k+i]) * float64(x[c*k+i])
			}
			want[c*rows+r] = sum
		}
	}
	return want
}

func TestTileMulMatTilesColumnsToFitStaging(t *testing.T) {
	const rows, k, cols = 8, 64, 40
	w := make([]float32, rows*k)
	x := make([]float32, cols*k)
	tensor.FillRand(w, 5, 2)
	tensor.FillRand(x, 6, 2)

	src0, err := tensor.NewView(quant.DTypeQ4_0x8x8, weightsFor(t, quant.DTypeQ4_0x8x8, w, rows, k), k, rows)
	require.NoError(t, err)

	// 288 staged weight bytes leave room for 7 of the 40 output columns.
	small := New(Config{Lanes: 2, StagingBytes: 1024})
	p, err := planMulMat(quant.DTypeQ4_0x8x8, rows, k, cols, small.Engine().SlotBytes())
	require.NoError(t, err)
	require.Equal(t, 7, p.colTile)
	require.Equal(t, 6, p.colTiles)
	require.Equal(t, 1, p.kTiles)

	got := runTile(t, small, src0, x, 0, rows, nil)
	want := runTile(t, New(Config{Lanes: 2}), src0, x, 0, rows, nil)
	require.Equal(t, want, got)
}

func TestTileMulMatTilesLongRows(t *testing.T) {
	const rows, k, cols = 4, 512, 3
	w := make([]float32, rows*k)
	x := make([]float32, cols*k)
	tensor.FillRand(w, 7, 2)
	tensor.FillRand(x, 8, 2)

	src0, err := tensor.F32View(w, k, rows)
	require.NoError(t, err)
	b := New(Config{Lanes: 3, StagingBytes: 1024})
	p, err := planMulMat(quant.DTypeF32, rows, k, cols, b.Engine().SlotBytes())
	require.NoError(t, err)
	require.Equal(t, 120, p.kUnits)
	require.Equal(t, 5, p.kTiles)

	got := runTile(t, b, src0, x, 0, rows, nil)
	want := referenceProduct(w, x, rows, k, cols)
	for i := range want {
		require.InDelta(t, want[i], float64(got[i]), 1e-3, "idx %d", i)
	}
}

func TestTileMulMatFaultsWhenOneBlockCannotBeStaged(t *testing.T) {
	w := make([]float32, 32)
	data := weightsFor(t, quant.DTypeQ8_0, w, 1, 32)
	src0, err := tensor.NewView(quant.DTypeQ8_0, data, 32, 1)
	require.NoError(t, err)
	x := make([]float32, 32)
	src1 := f32View(t, x, 32, 1)
	out := make([]float32, 1)
	dst := f32View(t, out, 1, 1)

	b := New(Config{Lanes: 1, StagingBytes: 64})
	err = b.MulMatQ(context.Background(), &src0, &src1, &dst, data, nil, x, out, 0, 1, 1, 32, nil)
	require.ErrorIs(t, err, ErrStagingExhausted)
	var fault *DeviceFault
	require.ErrorAs(t, err, &fault)
	require.Equal(t, "plan", fault.Op)
}
