package schedule

import (
	"sync"
	"time"
)

// DefaultFrameInterval approximates a 60Hz display.
const DefaultFrameInterval = 16 * time.Millisecond

// FrameSource delivers frame ticks to the loop.
type FrameSource interface {
	Frames() <-chan time.Time
	Stop()
}

// TickerFrames produces frames at a fixed interval.
type TickerFrames struct {
	t *time.Ticker
}

// NewTickerFrames starts a ticker. A non-positive interval uses
// [DefaultFrameInterval].
func NewTickerFrames(interval time.Duration) *TickerFrames {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &TickerFrames{t: time.NewTicker(interval)}
}

func (f *TickerFrames) Frames() <-chan time.Time { return f.t.C }

func (f *TickerFrames) Stop() { f.t.Stop() }

// ManualFrames produces a frame each time Tick is called.
type ManualFrames struct {
	ch   chan time.Time
	once sync.Once
	stop chan struct{}
}

// NewManualFrames creates a frame source driven by [ManualFrames.Tick].
func NewManualFrames() *ManualFrames {
	return &ManualFrames{ch: make(chan time.Time), stop: make(chan struct{})}
}

// Tick delivers one frame and returns once the loop has received it. It
// returns false if the source was stopped.
func (f *ManualFrames) Tick() bool {
	select {
	case f.ch <- time.Now():
		return true
	case <-f.stop:
		return false
	}
}

func (f *ManualFrames) Frames() <-chan time.Time { return f.ch }

func (f *ManualFrames) Stop() { f.once.Do(func() { close(f.stop) }) }
