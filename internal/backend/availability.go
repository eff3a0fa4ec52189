package backend

import "strings"

// Has reports whether the named backend is compiled into this build.
func Has(name string) bool {
	switch name {
	case CPU, Tile, Auto:
		return true
	case CUDA:
		return cudaEnabled
	case WebGPU:
		return webgpuEnabled
	default:
		return false
	}
}

// Available returns a comma-separated list of available backends.
func Available() string {
	entries := []string{CPU, Tile}
	if Has(CUDA) {
		entries = append(entries, CUDA)
	}
	if Has(WebGPU) {
		entries = append(entries, WebGPU)
	}
	return strings.Join(entries, ",")
}
