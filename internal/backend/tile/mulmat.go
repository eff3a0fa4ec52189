package tile

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/samcharles93/qkern/internal/backend/simd"
	"github.com/samcharles93/qkern/internal/tensor"
	"github.com/samcharles93/qkern/pkg/quant"
)

// Backend runs matrix products on a tile engine. Each instance stages a
// slice of one weight row (or one interleaved row group), dequantizes it on
// chip and multiplies it against a tile of activation columns.
type Backend struct {
	eng *Engine
}

// New returns a backend over a fresh engine.
func New(cfg Config) *Backend {
	return &Backend{eng: NewEngine(cfg)}
}

func (b *Backend) Name() string {
	return "tile"
}

// Engine is the default engine used when no queue is supplied.
func (b *Backend) Engine() *Engine {
	return b.eng
}

// Device describes the engine's lanes and per-lane staging memory.
func (b *Backend) Device() string {
	return fmt.Sprintf("%d lanes, %d B staging", b.eng.Lanes(), b.eng.StagingBytes())
}

// mulMatPlan splits a product into instances that each fit one staging
// slot. The grid is row group x column tile x k tile, k tile fastest.
type mulMatPlan struct {
	r         int // rows per group
	unitVals  int // values per staging unit (one block, or one element)
	unitBytes int // bytes per unit across the r rows of a group
	units     int // units per row
	kUnits    int // units per k tile
	colTile   int
	groups    int
	colTiles  int
	kTiles    int
}

func (p *mulMatPlan) grid() int64 {
	return int64(p.groups) * int64(p.colTiles) * int64(p.kTiles)
}

// split maps an instance index to its group, column tile and k tile.
func (p *mulMatPlan) split(idx int64) (g, ct, kt int) {
	i := int(idx)
	kt = i % p.kTiles
	i /= p.kTiles
	return i / p.colTiles, i % p.colTiles, kt
}

// planMulMat keeps whole rows in one instance when at least one output
// column fits beside them, and otherwise cuts rows into k tiles computed one
// column at a time. It fails only when a single unit cannot be staged.
func planMulMat(dt quant.DType, rows, k, cols, slot int) (mulMatPlan, error) {
	p := mulMatPlan{r: 1, unitVals: quant.QK}
	switch dt {
	case quant.DTypeF32, quant.DTypeF16:
		p.unitVals = 1
		p.unitBytes = dt.ElemSize()
	case quant.DTypeQ8_0:
		p.unitBytes = quant.BlockQ8_0Size
	default:
		p.r, _ = dt.Interleave()
		p.r = max(p.r, 1)
		p.unitBytes = p.r * quant.BlockQ4_0Size
	}
	p.units = k / p.unitVals
	p.groups = rows / p.r

	outCol := 4 * p.r
	if inBytes := alignUp(p.units * p.unitBytes); inBytes+alignUp(outCol) <= slot {
		p.kUnits = p.units
		p.colTile = 1
		for p.colTile < cols && inBytes+alignUp(outCol*(p.colTile+1)) <= slot {
			p.colTile++
		}
	} else {
		avail := (slot - alignUp(outCol)) &^ (stagingAlign - 1)
		p.kUnits = max(avail, 0) / p.unitBytes
		p.colTile = 1
		if p.kUnits == 0 {
			return p, fmt.Errorf("%w: one %s unit needs %d bytes beside %d output bytes, slot holds %d",
				ErrStagingExhausted, dt, p.unitBytes, outCol, slot)
		}
	}
	p.colTiles = (cols + p.colTile - 1) / p.colTile
	p.kTiles = (p.units + p.kUnits - 1) / p.kUnits
	return p, nil
}

// MulMatQ computes rows [rowLow, rowHigh) of src0 x src1 into dstF,
// column-major. queue may be a *Engine to run on; nil uses the backend's
// own. The activations are read from src1F; src1Q is not needed.
func (b *Backend) MulMatQ(ctx context.Context, src0, src1, dst *tensor.View, src0Raw, src1Q []byte, src1F, dstF []float32, rowLow, rowHigh, batchCols, paddedRowSize int64, queue any) error {
	eng := b.eng
	if queue != nil {
		q, ok := queue.(*Engine)
		if !ok {
			return fmt.Errorf("%w: tile: queue must be *tile.Engine, got %T", tensor.ErrPrecondition, queue)
		}
		eng = q
	}

	dt := src0.Type
	kernel := "mul_mat_" + dt.String()
	k := int(src0.Ne[0])
	rows := int(rowHigh - rowLow)
	cols := int(batchCols)
	p, err := planMulMat(dt, rows, k, cols, eng.SlotBytes())
	if err != nil {
		return &DeviceFault{Kernel: kernel, Instance: -1, Op: "plan", Err: err}
	}
	groupStride := p.r * int(src0.RowSize())
	if p.r == 1 {
		groupStride = int(src0.Nb[1])
	}

	// Instance idx writes r x colTile partial sums at idx*r*colTile.
	tileOut := p.r * p.colTile
	parts := make([]float32, int(p.grid())*tileOut)
	err = eng.Launch(ctx, kernel, p.grid(), func(_ context.Context, inst *Instance) error {
		g, ct, kt := p.split(inst.Index)
		u0 := kt * p.kUnits
		u1 := min(u0+p.kUnits, p.units)
		k0, kw := u0*p.unitVals, (u1-u0)*p.unitVals
		c0 := ct * p.colTile
		cw := min(p.colTile, cols-c0)

		base := g * groupStride
		in := src0Raw[base+u0*p.unitBytes : base+u1*p.unitBytes]
		out := parts[int(inst.Index)*tileOut : int(inst.Index)*tileOut+p.r*cw]

		if err := inst.Init(len(in), 4*len(out)); err != nil {
			return err
		}
		if err := inst.CopyIn(in); err != nil {
			return err
		}
		err := inst.Transform(func(dst, src []byte) error {
			w, err := quant.DequantizeRows(dt, src, len(src), p.r, kw)
			if err != nil {
				return err
			}
			for i := 0; i < p.r; i++ {
				for c := 0; c < cw; c++ {
					x := src1F[(c0+c)*k+k0 : (c0+c)*k+k0+kw]
					v := simd.DotF32(w[i*kw:(i+1)*kw], x)
					binary.LittleEndian.PutUint32(dst[4*(i*cw+c):], math.Float32bits(v))
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if err := inst.CopyOut(tensor.Float32Bytes(out)); err != nil {
			return err
		}
		return inst.Done()
	})
	if err != nil {
		return err
	}

	// k tiles are summed in order so the result does not depend on which
	// instance finished first.
	clear(dstF[:rows*cols])
	for idx := int64(0); idx < p.grid(); idx++ {
		g, ct, _ := p.split(idx)
		c0 := ct * p.colTile
		cw := min(p.colTile, cols-c0)
		part := parts[int(idx)*tileOut:]
		for i := 0; i < p.r; i++ {
			row := g*p.r + i
			for c := 0; c < cw; c++ {
				dstF[(c0+c)*rows+row] += part[i*cw+c]
			}
		}
	}
	return nil
}
