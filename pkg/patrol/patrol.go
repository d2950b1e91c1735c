// Package patrol implements the autonomous patrol behavior: a time-bounded
// active window during which the robot is sent to random locations at
// jittered intervals, ending with a return home.
package patrol

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/teslashibe/go-astro/internal/log"
)

// Config holds the patrol tunables.
type Config struct {
	// Duration is the total active window per patrol (default 5m).
	Duration time.Duration

	// MoveInterval is the minimum time between movement commands
	// (default 30s).
	MoveInterval time.Duration

	// MoveJitter is the upper bound of the random extra delay added after
	// each move (default 20s).
	MoveJitter time.Duration

	// Locations is the candidate set of patrol destinations.
	Locations []string

	// HomeCommand ends the patrol (default "Astro, go home").
	HomeCommand string
}

// DefaultConfig returns the production patrol configuration.
func DefaultConfig() Config {
	return Config{
		Duration:     5 * time.Minute,
		MoveInterval: 30 * time.Second,
		MoveJitter:   20 * time.Second,
		Locations:    []string{"front yard", "studio", "lounge", "shotgun position"},
		HomeCommand:  "Astro, go home",
	}
}

// Scheduler emits movement commands while a patrol is active. It holds no
// goroutine of its own: the orchestrator ticks it and decides whether the
// command may be dispatched (commands are dropped, not queued, when busy).
type Scheduler struct {
	cfg    Config
	logger *slog.Logger

	// now and pick are swappable for tests.
	now  func() time.Time
	pick func(n int) int

	mu       sync.Mutex
	active   bool
	started  time.Time
	lastMove time.Time
}

// NewScheduler creates a patrol scheduler.
func NewScheduler(cfg Config) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		logger: log.Component("patrol"),
		now:    time.Now,
		pick:   rand.Intn,
	}
}

// Start begins an active window of the configured duration from now.
// Starting an already-active patrol restarts the window.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	s.started = s.now()
	s.lastMove = time.Time{} // force a move on the next tick
	s.logger.Info("patrol started", "duration", s.cfg.Duration)
}

// Stop deactivates the patrol without issuing a home command.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		s.logger.Info("patrol stopped")
	}
	s.active = false
}

// Active reports whether a patrol window is in progress.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Tick returns the next movement command if one is due. When the active
// window has elapsed it deactivates and returns the home command exactly
// once; otherwise, if the minimum move interval has passed, it picks a
// random location and advances the last-move timestamp with bounded jitter.
func (s *Scheduler) Tick() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return "", false
	}

	now := s.now()
	if now.Sub(s.started) > s.cfg.Duration {
		s.active = false
		s.logger.Info("patrol finished, heading home")
		return s.cfg.HomeCommand, true
	}

	if now.Sub(s.lastMove) > s.cfg.MoveInterval {
		loc := s.cfg.Locations[s.pick(len(s.cfg.Locations))]
		// Jitter pushes the next move out by a random amount so the
		// patrol does not tick like a metronome.
		jitter := time.Duration(0)
		if s.cfg.MoveJitter > 0 {
			jitter = time.Duration(s.pick(int(s.cfg.MoveJitter)))
		}
		s.lastMove = now.Add(jitter)
		s.logger.Info("patrol move", "location", loc, "jitter", jitter)
		return fmt.Sprintf("Astro, go to the %s", loc), true
	}

	return "", false
}
