package api

import (
	"encoding/binary"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/x448/float16"

	"github.com/samcharles93/qkern/internal/backend/tile"
	"github.com/samcharles93/qkern/internal/logger"
	"github.com/samcharles93/qkern/internal/tensor"
	"github.com/samcharles93/qkern/pkg/quant"
)

func (s *Server) handleCast(c *echo.Context) error {
	req, err := decodeJSON[CastRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	from, err := castType(req.From)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	to, err := castType(req.To)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Rows <= 0 || req.Cols <= 0 || len(req.Data) != req.Rows*req.Cols {
		return writeBadRequest(c, "data must hold rows x cols values")
	}

	srcBytes, err := quant.Quantize(from, req.Data)
	if err != nil {
		return writeKernelError(c, err)
	}
	src, err := tensor.NewView(from, srcBytes, int64(req.Cols), int64(req.Rows))
	if err != nil {
		return writeKernelError(c, err)
	}
	dstBytes := make([]byte, req.Rows*req.Cols*to.ElemSize())
	dst, err := tensor.NewView(to, dstBytes, int64(req.Cols), int64(req.Rows))
	if err != nil {
		return writeKernelError(c, err)
	}

	ctx := logger.WithContext(c.Request().Context(), s.log)
	if err := tile.Dup(ctx, s.tileEngine(), &src, &dst); err != nil {
		return writeKernelError(c, err)
	}

	resp := CastResponse{
		Kernel: kernelName(from, to),
		Rows:   req.Rows,
		Cols:   req.Cols,
	}
	resp.Data, err = quant.Dequantize(to, dstBytes, req.Rows*req.Cols)
	if err != nil {
		return writeKernelError(c, err)
	}
	if to == quant.DTypeF16 {
		resp.Bits = make([]uint16, req.Rows*req.Cols)
		for i := range resp.Bits {
			resp.Bits[i] = binary.LittleEndian.Uint16(dstBytes[2*i:])
		}
	}
	return writeJSON(c, http.StatusOK, resp)
}

func castType(name string) (quant.DType, error) {
	dt, err := quant.ParseDType(name)
	if err != nil {
		return quant.DTypeUnknown, err
	}
	if dt != quant.DTypeF32 && dt != quant.DTypeF16 {
		return quant.DTypeUnknown, newInvalidRequest("cast supports f32 and f16, got %s", dt)
	}
	return dt, nil
}

func kernelName(from, to quant.DType) string {
	switch {
	case from == quant.DTypeF16 && to == quant.DTypeF16:
		return tile.KernelName[float16.Float16, float16.Float16]()
	case from == quant.DTypeF32 && to == quant.DTypeF32:
		return tile.KernelName[float32, float32]()
	case from == quant.DTypeF32:
		return tile.KernelName[float32, float16.Float16]()
	}
	return tile.KernelName[float16.Float16, float32]()
}
