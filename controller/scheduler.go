package controller

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const DefaultFrameInterval = 16 * time.Millisecond

// Scheduler runs fn once at the next frame boundary. The returned cancel
// stops fn from running if it has not started yet.
type Scheduler interface {
	Schedule(fn func()) (cancel func())
}

type clockScheduler struct {
	clock    clock.Clock
	interval time.Duration
}

func NewScheduler(clk clock.Clock, interval time.Duration) Scheduler {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &clockScheduler{clock: clk, interval: interval}
}

func (s *clockScheduler) Schedule(fn func()) func() {
	timer := s.clock.AfterFunc(s.interval, fn)
	return func() { timer.Stop() }
}

// FPSMeter counts completed passes and publishes a rate once at least a
// second has elapsed since the last reset.
type FPSMeter struct {
	clock clock.Clock

	mu    sync.Mutex
	count int
	start time.Time
	fps   int
}

func NewFPSMeter(clk clock.Clock) *FPSMeter {
	return &FPSMeter{clock: clk, start: clk.Now()}
}

// Tick records one pass and returns the current rate.
func (m *FPSMeter) Tick() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.count++
	now := m.clock.Now()
	elapsed := now.Sub(m.start)
	if elapsed >= time.Second {
		elapsedMs := float64(elapsed) / float64(time.Millisecond)
		m.fps = int(math.Round(float64(m.count) * 1000 / elapsedMs))
		m.count = 0
		m.start = now
	}
	return m.fps
}

// Reset restarts the window and clears the published rate.
func (m *FPSMeter) Reset() {
	m.mu.Lock()
	m.count = 0
	m.fps = 0
	m.start = m.clock.Now()
	m.mu.Unlock()
}

func (m *FPSMeter) FPS() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fps
}
