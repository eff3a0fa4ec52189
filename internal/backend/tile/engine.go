package tile

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/qkern/internal/logger"
)

// DefaultStagingBytes is the on-chip memory of one lane.
const DefaultStagingBytes = 192 * 1024

// Config sizes an engine. Zero values pick defaults.
type Config struct {
	Lanes        int
	StagingBytes int
}

// Engine models a tiled accelerator: a fixed number of lanes, each with
// its own double-buffered staging memory. Kernels are launched as a grid
// of independent instances.
type Engine struct {
	lanes    int
	capacity int
	free     chan *lane
}

// NewEngine builds an engine. Lanes defaults to GOMAXPROCS and staging to
// DefaultStagingBytes per lane.
func NewEngine(cfg Config) *Engine {
	if cfg.Lanes <= 0 {
		cfg.Lanes = runtime.GOMAXPROCS(0)
	}
	if cfg.StagingBytes <= 0 {
		cfg.StagingBytes = DefaultStagingBytes
	}
	e := &Engine{
		lanes:    cfg.Lanes,
		capacity: cfg.StagingBytes,
		free:     make(chan *lane, cfg.Lanes),
	}
	for i := 0; i < cfg.Lanes; i++ {
		e.free <- &lane{id: i}
	}
	return e
}

// Lanes is the number of instances that can run at once.
func (e *Engine) Lanes() int {
	return e.lanes
}

// StagingBytes is the on-chip memory of one lane.
func (e *Engine) StagingBytes() int {
	return e.capacity
}

// SlotBytes is the staging budget of one instance: a lane's memory split
// across its BufferNum slots.
func (e *Engine) SlotBytes() int {
	return e.capacity / BufferNum
}

// Launch runs fn once for every index in [0, grid). Instances run
// concurrently with no ordering between them. The first error stops new
// instances from starting and is returned once running ones finish.
// Cancellation is observed between instances only.
func (e *Engine) Launch(ctx context.Context, kernel string, grid int64, fn func(ctx context.Context, inst *Instance) error) error {
	log := logger.FromContext(ctx)
	log.Debug("launch", "kernel", kernel, "grid", grid, "lanes", e.lanes)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.lanes)
	for i := int64(0); i < grid; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			ln := <-e.free
			defer func() { e.free <- ln }()

			inst := newInstance(kernel, i, ln, e.SlotBytes())
			if err := fn(gctx, inst); err != nil {
				inst.release()
				log.Debug("instance fault", "kernel", kernel, "instance", i, "lane", ln.id, "error", err)
				return err
			}
			if inst.state != StateDone {
				inst.release()
				return inst.fault("finish", ErrBadTransition)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
