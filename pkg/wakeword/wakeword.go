// Package wakeword provides the trigger that arms utterance capture.
//
// The production deployment runs a neural wake-phrase scorer out of
// process; this package ships an energy trigger that fires on sustained
// voice-level audio, which is good enough for push-free operation in a
// quiet room and for development without the scorer service.
package wakeword

import (
	"sync"

	"github.com/teslashibe/go-astro/pkg/audio"
)

// Config holds the energy trigger tunables.
type Config struct {
	// Threshold is the mean absolute amplitude a frame must exceed to
	// count as voice (default 1500).
	Threshold float64

	// Frames is how many consecutive voice frames arm the trigger
	// (default 3, about 200ms of 1024-sample frames at 16 kHz).
	Frames int
}

// DefaultConfig returns the production trigger configuration.
func DefaultConfig() Config {
	return Config{Threshold: 1500, Frames: 3}
}

// Energy fires after a run of consecutive frames above the energy
// threshold. Safe for concurrent use, though the capture pipeline only
// ever calls it from one goroutine.
type Energy struct {
	cfg Config

	mu  sync.Mutex
	run int
}

// NewEnergy creates the energy trigger.
func NewEnergy(cfg Config) *Energy {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if cfg.Frames == 0 {
		cfg.Frames = DefaultConfig().Frames
	}
	return &Energy{cfg: cfg}
}

// Detect reports whether the frame completes a voice run. The run resets
// on detection so the trigger does not refire on the same burst.
func (e *Energy) Detect(frame audio.Frame) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if audio.MeanAbs(frame.Samples) < e.cfg.Threshold {
		e.run = 0
		return false
	}
	e.run++
	if e.run >= e.cfg.Frames {
		e.run = 0
		return true
	}
	return false
}

// Reset clears the accumulated run. Called after playback so residual
// speaker audio cannot complete a run started before it.
func (e *Energy) Reset() {
	e.mu.Lock()
	e.run = 0
	e.mu.Unlock()
}

// Mock implements the detector contract for testing.
type Mock struct {
	// DetectFunc is called for each frame; nil means never detect.
	DetectFunc func(frame audio.Frame) bool

	mu      sync.Mutex
	detects int
	resets  int
}

// Detect implements the detector contract.
func (m *Mock) Detect(frame audio.Frame) bool {
	m.mu.Lock()
	m.detects++
	m.mu.Unlock()
	if m.DetectFunc != nil {
		return m.DetectFunc(frame)
	}
	return false
}

// Reset implements the detector contract.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.resets++
	m.mu.Unlock()
}

// Counts returns how many times Detect and Reset were called.
func (m *Mock) Counts() (detects, resets int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detects, m.resets
}
