//go:build cuda

package cuda

import "fmt"

// cudaExecutionError converts a panic raised while driving the device.
func cudaExecutionError(rec any) error {
	if recErr, ok := rec.(error); ok {
		return fmt.Errorf("cuda mulmat failed: %w", recErr)
	}
	return fmt.Errorf("cuda mulmat failed: %v", rec)
}
