package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/qkern/internal/backend"
	"github.com/samcharles93/qkern/internal/tensor"
)

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "", "")
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return writeJSON(c, status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

// writeKernelError maps descriptor and request errors to 400 and the rest
// to 500.
func writeKernelError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return writeBadRequest(c, err.Error())
	case errors.Is(err, tensor.ErrPrecondition):
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "", "precondition_failed")
	case errors.Is(err, backend.ErrUnknownBackend):
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "backend", "unknown_backend")
	}
	return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
}

func writeJSON(c *echo.Context, status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Blob(status, echo.MIMEApplicationJSON, b)
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
