package vm

import (
	"context"
	"sync"
	"time"
)

// Runner drives a top-level run in timed ticks: each tick executes up to
// StepsPerTick instructions, then waits Delay. It can be paused and
// resumed from another goroutine; the interpreter itself is only touched
// by the goroutine calling Run. Cancellation takes effect between
// instructions.
//
// Unreachable instances are collected between ticks, when no native code
// is running, once the heap has grown past twice its size after the last
// collection, and again when the run ends.
type Runner struct {
	In           *Interpreter
	StepsPerTick int
	Delay        time.Duration

	// OnTick, when set, is called after every tick with the interpreter
	// paused between instructions.
	OnTick func(in *Interpreter)

	mu     sync.Mutex
	paused bool
	resume chan struct{}

	threshold int
}

const minCollectThreshold = 256

// collect runs the collector when the heap has doubled since the last
// collection, or unconditionally when force is set.
func (r *Runner) collect(force bool) {
	if !force && r.In.Heap.Len() < r.threshold {
		return
	}
	stats := r.In.Collect()
	r.threshold = max(2*stats.Live, minCollectThreshold)
}

// NewRunner creates a runner that executes steps instructions per tick.
func NewRunner(in *Interpreter, steps int, delay time.Duration) *Runner {
	if steps <= 0 {
		steps = 1
	}
	return &Runner{In: in, StepsPerTick: steps, Delay: delay}
}

// Pause stops the loop before its next tick.
func (r *Runner) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.paused {
		r.paused = true
		r.resume = make(chan struct{})
	}
}

// Resume continues a paused loop.
func (r *Runner) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused {
		r.paused = false
		close(r.resume)
	}
}

// Paused reports whether the loop is paused.
func (r *Runner) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

func (r *Runner) waitIfPaused(ctx context.Context) error {
	r.mu.Lock()
	ch := r.resume
	paused := r.paused
	r.mu.Unlock()
	if !paused {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts m and drives it to completion, returning its outcome. If ctx
// is cancelled the run is aborted and the outcome carries a cancellation
// fault.
func (r *Runner) Run(ctx context.Context, m *Method, receiver Value, args []Value) (Result, error) {
	if err := r.In.Start(m, receiver, args); err != nil {
		return Result{}, err
	}
	r.threshold = minCollectThreshold
	var timer *time.Timer
	if r.Delay > 0 {
		timer = time.NewTimer(r.Delay)
		defer timer.Stop()
	}
	for {
		if err := ctx.Err(); err != nil {
			return r.abort(err), nil
		}
		if err := r.waitIfPaused(ctx); err != nil {
			return r.abort(err), nil
		}
		done := r.In.Step(r.StepsPerTick)
		r.collect(done)
		if r.OnTick != nil {
			r.OnTick(r.In)
		}
		if done {
			return r.In.Outcome(), nil
		}
		if timer != nil {
			select {
			case <-timer.C:
				timer.Reset(r.Delay)
			case <-ctx.Done():
			}
		}
	}
}

func (r *Runner) abort(cause error) Result {
	r.In.Abort(cause)
	r.collect(true)
	return r.In.Outcome()
}
