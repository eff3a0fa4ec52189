//go:build !webgpu

package backend

import "errors"

const webgpuEnabled = false

var errWebGPUUnavailable = errors.New("webgpu backend is not available in this build")

func newWebGPU() (Backend, error) {
	return nil, errWebGPUUnavailable
}
