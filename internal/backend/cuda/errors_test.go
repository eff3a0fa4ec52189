//go:build cuda

package cuda

import (
	"errors"
	"strings"
	"testing"
)

func TestCudaExecutionErrorWrapsError(t *testing.T) {
	cause := errors.New("boom")
	err := cudaExecutionError(cause)
	if !errors.Is(err, cause) {
		t.Fatalf("cause not wrapped: %v", err)
	}
	if !strings.Contains(err.Error(), "cuda mulmat failed") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestCudaExecutionErrorValue(t *testing.T) {
	err := cudaExecutionError("panic text")
	if !strings.Contains(err.Error(), "panic text") {
		t.Fatalf("unexpected message: %v", err)
	}
}
