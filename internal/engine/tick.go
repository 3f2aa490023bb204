// Package engine provides the population engine and the tick loop that
// drives it.
package engine

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultReportEvery is how many ticks pass between report callbacks.
const DefaultReportEvery = 100

// Engine drives a simulation forward one tick at a time.
type Engine struct {
	Tick        uint64        // Current tick counter (monotonic, never resets)
	Interval    time.Duration // Base tick interval; 0 runs as fast as possible
	MaxTicks    uint64        // Stop after this tick; 0 = unlimited
	ReportEvery uint64        // Ticks between OnReport calls

	// OnTick runs every tick. Returning false stops the loop.
	OnTick func(tick uint64) bool
	// OnReport runs every ReportEvery ticks and once more when the loop ends.
	OnReport func(tick uint64)

	mu      sync.Mutex
	speed   float64 // 1.0 = nominal, 0 = paused
	running bool
	stop    chan struct{}
}

// NewEngine creates an engine with default settings.
func NewEngine() *Engine {
	return &Engine{
		ReportEvery: DefaultReportEvery,
		speed:       1.0,
	}
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier. Zero pauses the loop.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()
}

// Running reports whether Run is in progress.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Run starts the loop. Blocks until Stop is called, MaxTicks is reached or
// OnTick returns false.
func (e *Engine) Run() {
	e.mu.Lock()
	e.running = true
	e.stop = make(chan struct{})
	stop := e.stop
	e.mu.Unlock()

	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed(), "max_ticks", e.MaxTicks)

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		if e.OnReport != nil {
			e.OnReport(e.Tick)
		}
		slog.Info("simulation engine stopped", "tick", e.Tick)
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}

		if e.MaxTicks > 0 && e.Tick >= e.MaxTicks {
			slog.Info("max ticks reached", "tick", e.Tick)
			return
		}

		speed := e.Speed()
		if speed <= 0 {
			// Paused; check again shortly.
			select {
			case <-stop:
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		start := time.Now()

		if !e.step() {
			return
		}

		if e.Interval <= 0 {
			continue
		}
		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target {
			select {
			case <-stop:
				return
			case <-time.After(target - elapsed):
			}
		}
	}
}

// Stop halts the loop after the current tick.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running && e.stop != nil {
		select {
		case <-e.stop:
		default:
			close(e.stop)
		}
	}
}

// step advances by one tick. Returns false when the loop should end.
func (e *Engine) step() bool {
	e.Tick++

	if e.OnTick != nil && !e.OnTick(e.Tick) {
		return false
	}

	// The final report is emitted by Run's exit path.
	if e.ReportEvery > 0 && e.Tick%e.ReportEvery == 0 && e.OnReport != nil {
		if e.MaxTicks == 0 || e.Tick < e.MaxTicks {
			e.OnReport(e.Tick)
		}
	}
	return true
}
