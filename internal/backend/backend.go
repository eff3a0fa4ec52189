package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samcharles93/qkern/internal/backend/simd"
	"github.com/samcharles93/qkern/internal/backend/tile"
	"github.com/samcharles93/qkern/internal/tensor"
)

const (
	Auto   = "auto"
	CPU    = "cpu"
	Tile   = "tile"
	CUDA   = "cuda"
	WebGPU = "webgpu"
)

var ErrUnknownBackend = errors.New("unknown backend")

// Queue is an opaque, backend-specific execution queue handle: a
// *tile.Engine, a CUDA stream or a *wgpu.Queue. nil selects the backend's
// own queue.
type Queue = any

// Backend computes quantized matrix products. Implementations assume their
// arguments were checked by MulMat.
type Backend interface {
	Name() string
	MulMatQ(ctx context.Context, src0, src1, dst *tensor.View, src0Raw, src1Q []byte, src1F, dstF []float32, rowLow, rowHigh, batchCols, paddedRowSize int64, queue Queue) error
}

// Options configures backend construction. Zero values pick defaults.
type Options struct {
	Threads int
	Tile    tile.Config
}

func Normalize(name string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(name))
	if backend == "" {
		return Auto, nil
	}
	switch backend {
	case Auto, CPU, Tile, CUDA, WebGPU:
		return backend, nil
	default:
		return "", fmt.Errorf("%w %q (expected auto, cpu, tile, cuda, or webgpu)", ErrUnknownBackend, backend)
	}
}

// New constructs the named backend. auto resolves to the first compiled
// device backend and falls back to cpu.
func New(name string, opts Options) (Backend, error) {
	n, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	switch n {
	case CPU:
		return simd.New(opts.Threads), nil
	case Tile:
		return tile.New(opts.Tile), nil
	case CUDA:
		return newCUDA()
	case WebGPU:
		return newWebGPU()
	}
	if cudaEnabled {
		if b, err := newCUDA(); err == nil {
			return b, nil
		}
	}
	return simd.New(opts.Threads), nil
}

// Describe names the hardware a backend runs on, or "" when it does not
// say.
func Describe(b Backend) string {
	if d, ok := b.(interface{ Device() string }); ok {
		return d.Device()
	}
	return ""
}

// Close releases backend resources when the backend holds any.
func Close(b Backend) error {
	if c, ok := b.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
