package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/qkern/pkg/quant"
)

func (s *Server) handleCreateTensor(c *echo.Context) error {
	req, err := decodeJSON[CreateTensorRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	dt, err := quant.ParseDType(req.Type)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Rows <= 0 || req.Cols <= 0 {
		return writeBadRequest(c, fmt.Sprintf("rows and cols must be positive, got %dx%d", req.Rows, req.Cols))
	}
	if len(req.Data) != req.Rows*req.Cols {
		return writeBadRequest(c, fmt.Sprintf("data has %d values, want %d", len(req.Data), req.Rows*req.Cols))
	}
	scheme, err := quant.SchemeFor(dt)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	qt, err := scheme.Quantize(req.Data, req.Rows, req.Cols, req.Importance)
	if err != nil {
		return writeKernelError(c, err)
	}
	rec := s.store.Put(qt, s.clock())
	s.log.Debug("tensor stored", "id", rec.ID, "type", dt.String(), "rows", req.Rows, "cols", req.Cols, "stored", s.store.Len())
	return writeJSON(c, http.StatusOK, rec.info())
}

func (s *Server) handleGetTensor(c *echo.Context) error {
	rec, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "tensor not found")
	}
	return writeJSON(c, http.StatusOK, rec.info())
}

func (s *Server) handleDeleteTensor(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "tensor not found")
	}
	s.log.Debug("tensor deleted", "id", id, "stored", s.store.Len())
	return writeJSON(c, http.StatusOK, DeleteTensorResponse{
		ID:      id,
		Object:  "tensor",
		Deleted: true,
	})
}

func (s *Server) handleDequantize(c *echo.Context) error {
	rec, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "tensor not found")
	}
	t := rec.Tensor
	data, err := quant.DequantizeMatrix(t.DType, t.Data, t.Rows, t.PerRow)
	if err != nil {
		return writeKernelError(c, err)
	}
	return writeJSON(c, http.StatusOK, DequantizeResponse{
		ID:   rec.ID,
		Rows: t.Rows,
		Cols: t.PerRow,
		Data: data,
	})
}
