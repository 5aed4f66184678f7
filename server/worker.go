package server

import (
	"errors"
	"fmt"
	"sync"
)

// ErrWorkerStopped is returned for requests made after the worker stopped.
var ErrWorkerStopped = errors.New("workspace worker stopped")

// job is one workspace operation and the channel its outcome goes to.
type job struct {
	run   func(*Workspace) any
	reply chan outcome
}

type outcome struct {
	value any
	err   error
}

// Worker owns a Workspace and runs every operation on it, in submission
// order, on one goroutine. glsp calls handlers concurrently, and an
// analysis must not interleave with queries against the same document.
type Worker struct {
	ws       *Workspace
	jobs     chan job
	stop     chan struct{}
	stopOnce sync.Once
}

// NewWorker starts a worker serving ws.
func NewWorker(ws *Workspace) *Worker {
	w := &Worker{
		ws:   ws,
		jobs: make(chan job, 64),
		stop: make(chan struct{}),
	}
	go w.serve()
	return w
}

func (w *Worker) serve() {
	for {
		select {
		case <-w.stop:
			log.Debugf("workspace worker stopped with %d queued job(s)", len(w.jobs))
			return
		case j := <-w.jobs:
			j.reply <- w.safely(j.run)
		}
	}
}

// safely runs one job, turning a panic into its error.
func (w *Worker) safely(run func(*Workspace) any) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("workspace operation panicked: %v", r)
			o = outcome{err: fmt.Errorf("%v", r)}
		}
	}()
	return outcome{value: run(w.ws)}
}

// Do runs fn on the worker goroutine and waits for it. A panic in fn comes
// back as an error. Once the worker is stopped, Do returns
// ErrWorkerStopped without running fn; a call that is waiting when the
// worker stops returns it too.
func (w *Worker) Do(fn func(*Workspace) any) (any, error) {
	select {
	case <-w.stop:
		return nil, ErrWorkerStopped
	default:
	}

	j := job{run: fn, reply: make(chan outcome, 1)}
	select {
	case w.jobs <- j:
	case <-w.stop:
		return nil, ErrWorkerStopped
	}
	select {
	case o := <-j.reply:
		return o.value, o.err
	case <-w.stop:
		return nil, ErrWorkerStopped
	}
}

// query is Do for an fn with a concrete result type.
func query[T any](w *Worker, fn func(*Workspace) T) (T, error) {
	v, err := w.Do(func(ws *Workspace) any { return fn(ws) })
	t, _ := v.(T)
	return t, err
}

// Stop ends the worker goroutine. It may be called more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}
