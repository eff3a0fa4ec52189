package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/qkern/internal/backend"
	"github.com/samcharles93/qkern/internal/logger"
	"github.com/samcharles93/qkern/internal/tensor"
)

func (s *Server) handleMatMul(c *echo.Context) error {
	req, err := decodeJSON[MatMulRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	rec, ok := s.store.Get(req.TensorID)
	if !ok {
		return writeNotFound(c, "tensor not found")
	}
	args, err := matMulArgs(rec, &req)
	if err != nil {
		return writeKernelError(c, err)
	}
	b, err := s.backendFor(req.Backend)
	if err != nil {
		return writeKernelError(c, err)
	}

	ctx := logger.WithContext(c.Request().Context(), s.log)
	start := time.Now()
	if err := backend.MulMat(ctx, b, args); err != nil {
		return writeKernelError(c, err)
	}
	elapsed := time.Since(start)
	s.log.Debug("matmul", "backend", b.Name(), "tensor", rec.ID, "rows", args.Rows(), "cols", args.BatchCols, "elapsed", elapsed)

	return writeJSON(c, http.StatusOK, MatMulResponse{
		ID:        newMatMulID(),
		Object:    "matmul",
		Backend:   b.Name(),
		RowLow:    args.RowLow,
		RowHigh:   args.RowHigh,
		Batch:     int(args.BatchCols),
		Output:    args.DstF,
		ElapsedMS: float64(elapsed.Microseconds()) / 1000,
	})
}

// matMulArgs builds the dispatch arguments for a stored tensor. The
// activations are Batch rows of the tensor's row length.
func matMulArgs(rec *tensorRecord, req *MatMulRequest) (backend.MulMatArgs, error) {
	t := rec.Tensor
	rows, k := int64(t.Rows), int64(t.PerRow)
	batch := int64(req.Batch)
	if batch == 0 && k > 0 {
		batch = int64(len(req.Activations)) / k
	}
	if batch <= 0 || int64(len(req.Activations)) != batch*k {
		return backend.MulMatArgs{}, newInvalidRequest("activations have %d values, want batch x %d", len(req.Activations), k)
	}
	lo, hi := int64(0), rows
	if req.RowLow != nil {
		lo = *req.RowLow
	}
	if req.RowHigh != nil {
		hi = *req.RowHigh
	}
	if lo < 0 || lo >= hi || hi > rows {
		return backend.MulMatArgs{}, newInvalidRequest("row range [%d, %d) outside [0, %d)", lo, hi, rows)
	}

	src0, err := tensor.NewView(t.DType, t.Data, k, rows)
	if err != nil {
		return backend.MulMatArgs{}, err
	}
	src1, err := tensor.F32View(req.Activations, k, batch)
	if err != nil {
		return backend.MulMatArgs{}, err
	}
	full := make([]float32, rows*batch)
	dst, err := tensor.F32View(full, rows, batch)
	if err != nil {
		return backend.MulMatArgs{}, err
	}
	return backend.MulMatArgs{
		Src0:          &src0,
		Src1:          &src1,
		Dst:           &dst,
		Src0Raw:       t.Data[uint64(lo)*src0.Nb[1]:],
		Src1F:         req.Activations,
		DstF:          full[:(hi-lo)*batch],
		RowLow:        lo,
		RowHigh:       hi,
		BatchCols:     batch,
		PaddedRowSize: k,
	}, nil
}
