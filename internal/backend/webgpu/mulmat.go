//go:build webgpu

package webgpu

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openfluke/webgpu/wgpu"

	"github.com/samcharles93/qkern/internal/logger"
	"github.com/samcharles93/qkern/internal/tensor"
	"github.com/samcharles93/qkern/pkg/quant"
)

// readbackTimeout bounds how long MulMatQ waits for the result to map.
const readbackTimeout = 5 * time.Second

// Backend runs matrix products as WGSL compute passes. Weights are
// dequantized on the host; the shader works in f32.
type Backend struct {
	dev      *device
	mu       sync.Mutex
	layout   *wgpu.BindGroupLayout
	pipeline *wgpu.ComputePipeline
}

func New() (*Backend, error) {
	d, err := acquire()
	if err != nil {
		return nil, err
	}
	b := &Backend{dev: d}
	if err := b.compile(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) Name() string {
	return "webgpu"
}

// Device names the adapter the backend runs on.
func (b *Backend) Device() string {
	if b.dev.vendor == "" {
		return b.dev.name
	}
	return b.dev.name + " (" + b.dev.vendor + ")"
}

// Queue is the shared device queue used when MulMatQ receives no queue.
func (b *Backend) Queue() *wgpu.Queue {
	return b.dev.queue
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pipeline != nil {
		b.pipeline.Release()
		b.pipeline = nil
	}
	if b.layout != nil {
		b.layout.Release()
		b.layout = nil
	}
	return nil
}

func (b *Backend) compile() error {
	d := b.dev.dev
	module, err := d.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "qkern_mulmat",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: mulMatShader},
	})
	if err != nil {
		return fmt.Errorf("webgpu: shader compile: %w", err)
	}
	defer module.Release()

	read := wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}
	b.layout, err = d.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "qkern_mulmat_bgl",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageCompute, Buffer: read},
			{Binding: 1, Visibility: wgpu.ShaderStageCompute, Buffer: read},
			{Binding: 2, Visibility: wgpu.ShaderStageCompute, Buffer: read},
			{Binding: 3, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("webgpu: bind group layout: %w", err)
	}
	pl, err := d.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "qkern_mulmat_layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{b.layout},
	})
	if err != nil {
		return fmt.Errorf("webgpu: pipeline layout: %w", err)
	}
	defer pl.Release()
	b.pipeline, err = d.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  "qkern_mulmat_pipe",
		Layout: pl,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return fmt.Errorf("webgpu: pipeline: %w", err)
	}
	return nil
}

// queueFor resolves the caller's queue. A foreign *wgpu.Queue must belong to
// the shared device.
func (b *Backend) queueFor(queue any) (*wgpu.Queue, error) {
	switch q := queue.(type) {
	case nil:
		return b.dev.queue, nil
	case *wgpu.Queue:
		if q == nil {
			return b.dev.queue, nil
		}
		return q, nil
	}
	return nil, fmt.Errorf("%w: webgpu: unsupported queue type %T", tensor.ErrPrecondition, queue)
}

// MulMatQ computes rows [rowLow, rowHigh) of src0 x src1 into the
// column-major dstF. Work is submitted on the caller's queue and the call
// returns once the result has been read back.
func (b *Backend) MulMatQ(ctx context.Context, src0, src1, dst *tensor.View, src0Raw, src1Q []byte, src1F, dstF []float32, rowLow, rowHigh, batchCols, paddedRowSize int64, queue any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q, err := b.queueFor(queue)
	if err != nil {
		return err
	}
	rows := int(rowHigh - rowLow)
	cols := int(batchCols)
	k := int(src0.Ne[0])
	w, err := quant.DequantizeRows(src0.Type, src0Raw, int(src0.Nb[1]), rows, k)
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Debug("mulmat", "backend", "webgpu", "type", src0.Type.String(), "rows", rows, "cols", cols)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pipeline == nil {
		return fmt.Errorf("webgpu: backend closed")
	}
	out, err := b.run(ctx, q, w, src1F[:cols*k], rows, cols, k)
	if err != nil {
		return err
	}
	copy(dstF[:rows*cols], out)
	return nil
}

func (b *Backend) run(ctx context.Context, q *wgpu.Queue, w, x []float32, rows, cols, k int) ([]float32, error) {
	d := b.dev.dev
	n := rows * cols
	gx, gy := grid(n)
	dims := []uint32{uint32(rows), uint32(cols), uint32(k), gx * workgroupSize}

	var bufs []*wgpu.Buffer
	defer func() {
		for _, buf := range bufs {
			buf.Destroy()
		}
	}()
	upload := func(contents []byte) (*wgpu.Buffer, error) {
		buf, err := d.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Contents: contents,
			Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, fmt.Errorf("webgpu: upload: %w", err)
		}
		bufs = append(bufs, buf)
		return buf, nil
	}
	wBuf, err := upload(wgpu.ToBytes(w))
	if err != nil {
		return nil, err
	}
	xBuf, err := upload(wgpu.ToBytes(x))
	if err != nil {
		return nil, err
	}
	dBuf, err := upload(wgpu.ToBytes(dims))
	if err != nil {
		return nil, err
	}
	size := uint64(n * 4)
	outBuf, err := d.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "qkern_mulmat_out",
		Size:  size,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: output buffer: %w", err)
	}
	bufs = append(bufs, outBuf)
	staging, err := d.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "qkern_mulmat_staging",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: staging buffer: %w", err)
	}
	bufs = append(bufs, staging)

	bg, err := d.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "qkern_mulmat_bind",
		Layout: b.layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: wBuf, Size: wBuf.GetSize()},
			{Binding: 1, Buffer: xBuf, Size: xBuf.GetSize()},
			{Binding: 2, Buffer: dBuf, Size: dBuf.GetSize()},
			{Binding: 3, Buffer: outBuf, Size: outBuf.GetSize()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: bind group: %w", err)
	}
	defer bg.Release()

	enc, err := d.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("webgpu: command encoder: %w", err)
	}
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(b.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroups(gx, gy, 1)
	pass.End()
	enc.CopyBufferToBuffer(outBuf, 0, staging, 0, size)
	cmd, err := enc.Finish(nil)
	enc.Release()
	if err != nil {
		return nil, fmt.Errorf("webgpu: finish: %w", err)
	}
	q.Submit(cmd)
	cmd.Release()

	return b.readback(ctx, staging, n)
}

func (b *Backend) readback(ctx context.Context, staging *wgpu.Buffer, n int) ([]float32, error) {
	size := uint64(n * 4)
	done := make(chan struct{})
	var mapErr error
	err := staging.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("webgpu: map status %v", status)
		}
		close(done)
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: map: %w", err)
	}

	timeout := time.After(readbackTimeout)
wait:
	for {
		b.dev.dev.Poll(false, nil)
		select {
		case <-done:
			break wait
		case <-timeout:
			return nil, fmt.Errorf("webgpu: readback timed out after %s", readbackTimeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			time.Sleep(100 * time.Microsecond)
		}
	}
	if mapErr != nil {
		return nil, mapErr
	}
	data := staging.GetMappedRange(0, uint(size))
	if data == nil {
		return nil, fmt.Errorf("webgpu: mapped range is nil")
	}
	out := make([]float32, n)
	copy(out, wgpu.FromBytes[float32](data))
	staging.Unmap()
	return out, nil
}
