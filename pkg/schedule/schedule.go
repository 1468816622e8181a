// Package schedule runs layout passes on a single loop goroutine.
//
// Every event source (resize, image load, diagram render, content mutation)
// talks to one [Scheduler]: state changes go through [Scheduler.Dispatch] or
// [Scheduler.Do] and recompute requests through [Scheduler.Request]. Requests
// are coalesced per frame: however many arrive between two frames, at most
// one pass runs, and it sees the union of their reasons. A pass always runs
// to completion before the next one starts.
package schedule

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/marginalia/pkg/errors"
)

// Reason names what triggered a recompute.
type Reason string

const (
	ReasonInitial  Reason = "initial"
	ReasonResize   Reason = "resize"
	ReasonImages   Reason = "images"
	ReasonDiagram  Reason = "diagram"
	ReasonMutation Reason = "mutation"
)

// ErrStopped is returned when work is submitted to a scheduler whose loop
// has exited.
var ErrStopped = errors.New(errors.ErrCodeInternal, "scheduler stopped")

// PassFunc performs one recompute. reasons is sorted and never empty.
type PassFunc func(ctx context.Context, reasons []Reason)

// DefaultQueueSize bounds the number of dispatched tasks waiting for the loop.
const DefaultQueueSize = 256

// Scheduler owns the loop goroutine.
type Scheduler struct {
	frames FrameSource
	pass   PassFunc
	logger *log.Logger

	tasks chan func()
	done  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	pending map[Reason]struct{}

	passes    atomic.Int64
	coalesced atomic.Int64
}

// New creates a scheduler. Call [Scheduler.Run] to start the loop.
func New(frames FrameSource, pass PassFunc, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Scheduler{
		frames:  frames,
		pass:    pass,
		logger:  logger,
		tasks:   make(chan func(), DefaultQueueSize),
		done:    make(chan struct{}),
		pending: map[Reason]struct{}{},
	}
}

// Request asks for a pass on the next frame. It never blocks and is safe to
// call from any goroutine, including the loop itself.
func (s *Scheduler) Request(reason Reason) {
	s.mu.Lock()
	if len(s.pending) > 0 {
		s.coalesced.Add(1)
	}
	s.pending[reason] = struct{}{}
	s.mu.Unlock()
}

// Pending reports whether a pass is waiting for the next frame.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

// Dispatch queues fn to run on the loop. It must not be called from the
// loop goroutine while the queue is full.
func (s *Scheduler) Dispatch(fn func()) error {
	select {
	case <-s.done:
		return ErrStopped
	default:
	}
	select {
	case s.tasks <- fn:
		return nil
	case <-s.done:
		return ErrStopped
	}
}

// Do runs fn on the loop and waits for it to finish. Since the loop runs
// tasks and passes one at a time, Do also acts as a barrier for everything
// queued before it.
func (s *Scheduler) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := s.Dispatch(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
}

// Stats reports how many passes ran and how many requests were folded into
// an already pending pass.
func (s *Scheduler) Stats() (passes, coalesced int64) {
	return s.passes.Load(), s.coalesced.Load()
}

// Run drives the loop until ctx is cancelled. On every frame queued tasks
// are drained first, then a single pass runs if one was requested.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.once.Do(func() {
		close(s.done)
		s.frames.Stop()
	})
	frames := s.frames.Frames()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-s.tasks:
			s.runTask(fn)
		case _, ok := <-frames:
			if !ok {
				return nil
			}
			s.drain()
			s.frame(ctx)
		}
	}
}

func (s *Scheduler) drain() {
	for {
		select {
		case fn := <-s.tasks:
			s.runTask(fn)
		default:
			return
		}
	}
}

func (s *Scheduler) frame(ctx context.Context) {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	reasons := make([]Reason, 0, len(s.pending))
	for r := range s.pending {
		reasons = append(reasons, r)
	}
	s.pending = map[Reason]struct{}{}
	s.mu.Unlock()

	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	s.passes.Add(1)
	s.safely("pass", func() { s.pass(ctx, reasons) })
}

func (s *Scheduler) runTask(fn func()) {
	s.safely("task", fn)
}

func (s *Scheduler) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered from panic", "in", what, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
