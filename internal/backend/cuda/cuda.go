//go:build cuda

package cuda

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/samcharles93/qkern/internal/backend/cuda/native"
	"github.com/samcharles93/qkern/internal/logger"
	"github.com/samcharles93/qkern/internal/tensor"
	"github.com/samcharles93/qkern/pkg/quant"
)

// Backend multiplies on a CUDA device through cuBLAS. Weights are
// dequantized on the host to f16 and multiplied with f16 activations,
// accumulating in f32.
type Backend struct {
	mu     sync.Mutex
	stream native.Stream
	blas   native.BlasHandle
	ws     workspace
}

func New() (*Backend, error) {
	count, err := native.DeviceCount()
	if err != nil {
		return nil, fmt.Errorf("cuda device query failed: %w", err)
	}
	if count < 1 {
		return nil, fmt.Errorf("no cuda devices detected")
	}
	stream, err := native.NewStream()
	if err != nil {
		return nil, fmt.Errorf("cuda stream create failed: %w", err)
	}
	blas, err := native.NewBlasHandle(stream)
	if err != nil {
		_ = stream.Destroy()
		return nil, fmt.Errorf("cublas init failed: %w", err)
	}
	return &Backend{stream: stream, blas: blas}, nil
}

func (b *Backend) Name() string {
	return "cuda"
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.ws.close()
	if e := b.blas.Destroy(); e != nil && err == nil {
		err = e
	}
	if e := b.stream.Destroy(); e != nil && err == nil {
		err = e
	}
	return err
}

// streamFor resolves the caller's queue: nil for the backend's own stream,
// a native.Stream, or a raw cudaStream_t as unsafe.Pointer.
func (b *Backend) streamFor(queue any) (native.Stream, error) {
	switch q := queue.(type) {
	case nil:
		return b.stream, nil
	case native.Stream:
		return q, nil
	case unsafe.Pointer:
		return native.StreamFromPointer(q), nil
	}
	return native.Stream{}, fmt.Errorf("%w: cuda: unsupported queue type %T", tensor.ErrPrecondition, queue)
}

// MulMatQ computes rows [rowLow, rowHigh) of src0 x src1 into the
// column-major dstF on the caller's stream. The call returns once the
// result has been copied back.
func (b *Backend) MulMatQ(ctx context.Context, src0, src1, dst *tensor.View, src0Raw, src1Q []byte, src1F, dstF []float32, rowLow, rowHigh, batchCols, paddedRowSize int64, queue any) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	stream, err := b.streamFor(queue)
	if err != nil {
		return err
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = cudaExecutionError(rec)
		}
	}()

	rows := int(rowHigh - rowLow)
	cols := int(batchCols)
	k := int(src0.Ne[0])
	w, err := quant.DequantizeRows(src0.Type, src0Raw, int(src0.Nb[1]), rows, k)
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Debug("mulmat", "backend", "cuda", "type", src0.Type.String(), "rows", rows, "cols", cols)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.blas.SetStream(stream); err != nil {
		return err
	}
	defer func() { _ = b.blas.SetStream(b.stream) }()

	if src0.Type == quant.DTypeF32 && cols == 1 {
		return b.gemv(stream, w, src1F[:k], dstF[:rows], rows, k)
	}
	return b.gemm(stream, w, src1F[:cols*k], dstF[:rows*cols], rows, cols, k)
}

// gemm multiplies in f16. Row-major weights are a column-major k x rows
// matrix, so the product is wᵀ·x with ld k on both inputs and ld rows on
// the output, which is exactly the dstF layout.
func (b *Backend) gemm(stream native.Stream, w, x, out []float32, rows, cols, k int) error {
	wBytes, xBytes, yBytes := int64(rows*k*2), int64(cols*k*2), int64(rows*cols*4)
	if err := b.ws.w.ensure(wBytes); err != nil {
		return err
	}
	if err := b.ws.x.ensure(xBytes); err != nil {
		return err
	}
	if err := b.ws.y.ensure(yBytes); err != nil {
		return err
	}
	fillF16(b.ws.w.f16(rows*k), w)
	fillF16(b.ws.x.f16(cols*k), x)
	if err := b.ws.w.upload(wBytes, stream); err != nil {
		return err
	}
	if err := b.ws.x.upload(xBytes, stream); err != nil {
		return err
	}
	if err := native.GemmEx(
		b.blas,
		native.BlasOpT, native.BlasOpN,
		rows, cols, k,
		1, b.ws.w.dev, native.BlasF16, k,
		b.ws.x.dev, native.BlasF16, k,
		0, b.ws.y.dev, native.BlasF32, rows,
		native.BlasComputeF32, native.BlasGemmDefault,
	); err != nil {
		return err
	}
	return b.finish(stream, out, yBytes)
}

// gemv keeps f32 weights in f32 for single-column products.
func (b *Backend) gemv(stream native.Stream, w, x, out []float32, rows, k int) error {
	wBytes, xBytes, yBytes := int64(rows*k*4), int64(k*4), int64(rows*4)
	if err := b.ws.w.ensure(wBytes); err != nil {
		return err
	}
	if err := b.ws.x.ensure(xBytes); err != nil {
		return err
	}
	if err := b.ws.y.ensure(yBytes); err != nil {
		return err
	}
	copy(b.ws.w.f32(rows*k), w)
	copy(b.ws.x.f32(k), x)
	if err := b.ws.w.upload(wBytes, stream); err != nil {
		return err
	}
	if err := b.ws.x.upload(xBytes, stream); err != nil {
		return err
	}
	if err := native.GemvF32(b.blas, native.BlasOpT, k, rows, 1, b.ws.w.dev, k, b.ws.x.dev, 1, 0, b.ws.y.dev, 1); err != nil {
		return err
	}
	return b.finish(stream, out, yBytes)
}

func (b *Backend) finish(stream native.Stream, out []float32, yBytes int64) error {
	if err := b.ws.y.download(yBytes, stream); err != nil {
		return err
	}
	if err := stream.Synchronize(); err != nil {
		return err
	}
	copy(out, b.ws.y.f32(len(out)))
	return nil
}
