package tile

import "fmt"

// State is the lifecycle position of one kernel instance.
type State int

const (
	StateInit State = iota
	StateCopyIn
	StateTransform
	StateCopyOut
	StateDone
)

var stateNames = [...]string{"init", "copy-in", "transform", "copy-out", "done"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Instance is one invocation of a kernel over a slice of the grid. It must
// be driven Init, CopyIn, Transform, CopyOut, Done; anything else faults.
type Instance struct {
	Index int64

	kernel  string
	state   State
	ready   bool
	lane    *lane
	slot    int
	budget  int
	in, out *Buffer
}

func newInstance(kernel string, index int64, ln *lane, budget int) *Instance {
	return &Instance{Index: index, kernel: kernel, lane: ln, budget: budget}
}

// State reports the current lifecycle position.
func (inst *Instance) State() State {
	return inst.state
}

// Lane is the execution lane the instance runs on.
func (inst *Instance) Lane() int {
	return inst.lane.id
}

// Slot is the double-buffer slot the instance was given.
func (inst *Instance) Slot() int {
	return inst.slot
}

func (inst *Instance) fault(op string, err error) error {
	return &DeviceFault{Kernel: inst.kernel, Instance: inst.Index, Op: op, Err: err}
}

func (inst *Instance) advance(op string, to State) error {
	if !inst.ready || to != inst.state+1 {
		return inst.fault(op, fmt.Errorf("%w: %s -> %s", ErrBadTransition, inst.state, to))
	}
	inst.state = to
	return nil
}

// Init claims a staging slot for inBytes of input and outBytes of output.
// Both are padded to 32 bytes and must fit the lane's per-slot budget.
func (inst *Instance) Init(inBytes, outBytes int) error {
	if inst.state != StateInit || inst.ready {
		return inst.fault("init", fmt.Errorf("%w: init from %s", ErrBadTransition, inst.state))
	}
	if need := alignUp(inBytes) + alignUp(outBytes); need > inst.budget {
		return inst.fault("alloc", fmt.Errorf("%w: need %d bytes, slot holds %d", ErrStagingExhausted, need, inst.budget))
	}
	inst.in, inst.out, inst.slot = inst.lane.slot()
	if err := inst.in.reserve(inBytes); err != nil {
		return inst.fault("alloc", err)
	}
	if err := inst.out.reserve(outBytes); err != nil {
		return inst.fault("alloc", err)
	}
	inst.ready = true
	return nil
}

// CopyIn transfers src into the input buffer.
func (inst *Instance) CopyIn(src []byte) error {
	if err := inst.advance("copy-in", StateCopyIn); err != nil {
		return err
	}
	if len(src) < inst.in.n {
		return inst.fault("copy-in", fmt.Errorf("source has %d bytes, want %d", len(src), inst.in.n))
	}
	if err := inst.in.fill(src); err != nil {
		return inst.fault("copy-in", err)
	}
	return nil
}

// Transform runs fn over the staged input, writing the output buffer. An
// error from fn faults the instance.
func (inst *Instance) Transform(fn func(dst, src []byte) error) error {
	if err := inst.advance("transform", StateTransform); err != nil {
		return err
	}
	if err := inst.in.move(BufferFilled, BufferConsumed); err != nil {
		return inst.fault("transform", err)
	}
	clear(inst.out.data)
	if err := fn(inst.out.payload(), inst.in.payload()); err != nil {
		return inst.fault("transform", err)
	}
	if err := inst.out.move(BufferFree, BufferFilled); err != nil {
		return inst.fault("transform", err)
	}
	if err := inst.in.move(BufferConsumed, BufferDrained); err != nil {
		return inst.fault("transform", err)
	}
	return nil
}

// CopyOut transfers the output buffer to dst.
func (inst *Instance) CopyOut(dst []byte) error {
	if err := inst.advance("copy-out", StateCopyOut); err != nil {
		return err
	}
	if len(dst) < inst.out.n {
		return inst.fault("copy-out", fmt.Errorf("destination has %d bytes, want %d", len(dst), inst.out.n))
	}
	if err := inst.out.move(BufferFilled, BufferConsumed); err != nil {
		return inst.fault("copy-out", err)
	}
	copy(dst, inst.out.payload())
	if err := inst.out.move(BufferConsumed, BufferDrained); err != nil {
		return inst.fault("copy-out", err)
	}
	return nil
}

// Done releases the staging slot.
func (inst *Instance) Done() error {
	if err := inst.advance("done", StateDone); err != nil {
		return err
	}
	inst.release()
	return nil
}

// release returns both buffers to the free state. It also runs when an
// instance faults part way so the lane stays usable.
func (inst *Instance) release() {
	if inst.in != nil {
		inst.in.state = BufferFree
	}
	if inst.out != nil {
		inst.out.state = BufferFree
	}
}
