package tile

import (
	"errors"
	"fmt"
)

var (
	// ErrStagingExhausted is the cause of a fault when a row does not fit in
	// on-chip staging.
	ErrStagingExhausted = errors.New("staging capacity exceeded")
	// ErrBadTransition is the cause of a fault when an instance or buffer is
	// driven out of order.
	ErrBadTransition = errors.New("invalid state transition")
)

// DeviceFault is a failure inside one kernel instance. Faults are not
// retried; the launch that observed one returns it unchanged.
type DeviceFault struct {
	Kernel   string
	Instance int64
	Op       string
	Err      error
}

func (e *DeviceFault) Error() string {
	return fmt.Sprintf("tile: %s instance %d: %s: %v", e.Kernel, e.Instance, e.Op, e.Err)
}

func (e *DeviceFault) Unwrap() error {
	return e.Err
}
