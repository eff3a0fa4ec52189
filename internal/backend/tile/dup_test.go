package tile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/samcharles93/qkern/internal/tensor"
	"github.com/samcharles93/qkern/pkg/quant"
)

func f32View(t *testing.T, data []float32, ne ...int64) tensor.View {
	t.Helper()
	v, err := tensor.F32View(data, ne...)
	require.NoError(t, err)
	return v
}

func TestKernelNames(t *testing.T) {
	require.Equal(t, "dup_f16", KernelName[float16.Float16, float16.Float16]())
	require.Equal(t, "dup_f32", KernelName[float32, float32]())
	require.Equal(t, "dup_f32_to_f16", KernelName[float32, float16.Float16]())
	require.Equal(t, "dup_f16_to_f32", KernelName[float16.Float16, float32]())
}

func TestDupF32IsBitExact(t *testing.T) {
	src := make([]float32, 37*3*2)
	tensor.FillRand(src, 1, 100)
	dst := make([]float32, len(src))
	sv := f32View(t, src, 37, 3, 2)
	dv := f32View(t, dst, 37, 3, 2)

	require.NoError(t, DupF32(context.Background(), NewEngine(Config{Lanes: 4}), &sv, &dv))
	require.Equal(t, sv.Data, dv.Data)
}

func TestDupF32FromStridedSource(t *testing.T) {
	// Three rows of four values with a row stride of six values.
	backing := []float32{
		1, 2, 3, 4, -1, -1,
		5, 6, 7, 8, -1, -1,
		9, 10, 11, 12, -1, -1,
	}
	src := tensor.View{
		Ne:   [4]int64{4, 3, 1, 1},
		Nb:   [4]uint64{4, 24, 72, 72},
		Type: quant.DTypeF32,
		Data: tensor.Float32Bytes(backing),
	}
	dst := make([]float32, 12)
	dv := f32View(t, dst, 4, 3)

	require.NoError(t, DupF32(context.Background(), NewEngine(Config{Lanes: 2}), &src, &dv))
	require.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, dst)
}

func TestDupCastRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(Config{Lanes: 3})
	src := make([]float32, 64*5)
	tensor.FillRand(src, 2, 8)
	sv := f32View(t, src, 64, 5)

	half := make([]byte, len(src)*2)
	hv, err := tensor.NewView(quant.DTypeF16, half, 64, 5)
	require.NoError(t, err)
	require.NoError(t, DupF32ToF16(ctx, e, &sv, &hv))

	for i, v := range src {
		want := float16.Fromfloat32(v).Bits()
		got := uint16(half[2*i]) | uint16(half[2*i+1])<<8
		require.Equal(t, want, got, "element %d", i)
	}

	back := make([]float32, len(src))
	bv := f32View(t, back, 64, 5)
	require.NoError(t, DupF16ToF32(ctx, e, &hv, &bv))
	for i, v := range src {
		require.Equal(t, quant.RoundFP16(v), back[i], "element %d", i)
	}

	copied := make([]byte, len(half))
	cv, err := tensor.NewView(quant.DTypeF16, copied, 64, 5)
	require.NoError(t, err)
	require.NoError(t, Dup(ctx, e, &hv, &cv))
	require.Equal(t, half, copied)
}

func TestDupRejectsMismatchedViews(t *testing.T) {
	e := NewEngine(Config{Lanes: 1})
	sv := f32View(t, make([]float32, 8), 4, 2)
	dv := f32View(t, make([]float32, 12), 4, 3)
	require.ErrorIs(t, DupF32(context.Background(), e, &sv, &dv), tensor.ErrPrecondition)

	hv, err := tensor.NewView(quant.DTypeF16, make([]byte, 16), 4, 2)
	require.NoError(t, err)
	require.ErrorIs(t, DupF32(context.Background(), e, &sv, &hv), tensor.ErrPrecondition)
}

func TestDupRowTooLargeIsDeviceFault(t *testing.T) {
	e := NewEngine(Config{Lanes: 2, StagingBytes: 256})
	sv := f32View(t, make([]float32, 64*2), 64, 2)
	dv := f32View(t, make([]float32, 64*2), 64, 2)

	err := DupF32(context.Background(), e, &sv, &dv)
	var fault *DeviceFault
	require.ErrorAs(t, err, &fault)
	require.Equal(t, "dup_f32", fault.Kernel)
	require.ErrorIs(t, err, ErrStagingExhausted)
}

func TestDupRejectsWrappingStrides(t *testing.T) {
	src := tensor.View{
		Ne:   [4]int64{8, 1, 2, 2},
		Nb:   [4]uint64{4, 32, 1 << 63, 1 << 63},
		Type: quant.DTypeF32,
		Data: make([]byte, 32),
	}
	dst := f32View(t, make([]float32, 32), 8, 1, 2, 2)
	err := DupF32(context.Background(), NewEngine(Config{Lanes: 2}), &src, &dst)
	require.ErrorIs(t, err, tensor.ErrPrecondition)
}
