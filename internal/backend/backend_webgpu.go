//go:build webgpu

package backend

import "github.com/samcharles93/qkern/internal/backend/webgpu"

const webgpuEnabled = true

func newWebGPU() (Backend, error) {
	return webgpu.New()
}
