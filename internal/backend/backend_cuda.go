//go:build cuda

package backend

import "github.com/samcharles93/qkern/internal/backend/cuda"

const cudaEnabled = true

func newCUDA() (Backend, error) {
	return cuda.New()
}
