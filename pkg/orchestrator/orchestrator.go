// Package orchestrator is the control core of go-astro: a four-state machine
// (listening, capturing, thinking, speaking) fed by the capture pipeline,
// the remote command channel, and the patrol scheduler, all of which funnel
// into a single serial dispatch path.
//
// One mutex guards the shared state. The capture callback only mutates
// state and appends frames under that lock; transcription, dialogue
// processing, and playback run on short-lived worker goroutines because
// they block for seconds. The utterance buffer moves out of the shared
// state at the thinking transition, so exactly one goroutine owns it from
// then on.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-astro/internal/log"
	"github.com/teslashibe/go-astro/internal/metrics"
	"github.com/teslashibe/go-astro/pkg/audio"
	"github.com/teslashibe/go-astro/pkg/dialogue"
	"github.com/teslashibe/go-astro/pkg/indicator"
)

var (
	ErrAlreadyRunning = errors.New("orchestrator: already running")
	ErrMissingDep     = errors.New("orchestrator: missing collaborator")
)

// State is the orchestrator's authoritative mode. Boolean checks (busy,
// mid-capture) derive from the state plus timestamps rather than separate
// flags that could drift.
type State int

const (
	// Listening waits for the wake word.
	Listening State = iota

	// Capturing accumulates an utterance after a wake detection.
	Capturing

	// Thinking transcribes and processes the utterance.
	Thinking

	// Speaking plays back a turn's response actions.
	Speaking
)

func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Capturing:
		return "capturing"
	case Thinking:
		return "thinking"
	case Speaking:
		return "speaking"
	}
	return "unknown"
}

// mood maps a state to the hardware indicator expression shown while in it.
func (s State) mood() indicator.Mood {
	switch s {
	case Capturing:
		return indicator.MoodListening
	case Thinking:
		return indicator.MoodThinking
	case Speaking:
		return indicator.MoodSpeaking
	}
	return indicator.MoodIdle
}

// WakeDetector scores frames for the wake phrase. Reset clears its internal
// buffering after playback so residual audio cannot false-trigger.
type WakeDetector interface {
	Detect(frame audio.Frame) bool
	Reset()
}

// CapturePipeline is the slice of the capture pipeline the orchestrator
// drives. *audio.Capture satisfies it.
type CapturePipeline interface {
	Start(consumer audio.Consumer) error
	Stop()
	Healthy() bool
}

// Transcriber converts a captured utterance to text. Empty text with a nil
// error means no recognized speech.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// Speaker speaks text aloud, blocking until playback completes.
type Speaker interface {
	Speak(ctx context.Context, text, language string) error
}

// SoundPlayer plays a named sound effect, blocking when wait is set.
type SoundPlayer interface {
	Play(name string, wait bool) error
}

// PatrolTicker emits autonomous movement commands. *patrol.Scheduler
// satisfies it.
type PatrolTicker interface {
	Tick() (string, bool)
	Active() bool
}

// Config holds the orchestrator tunables.
type Config struct {
	// SilenceThreshold is the mean absolute amplitude below which a frame
	// counts as silence (default 500).
	SilenceThreshold float64

	// SilenceFrames is the silence run length that must be exceeded to
	// end an utterance; with 1024-sample frames at 16 kHz the default of
	// 30 is roughly two seconds (default 30).
	SilenceFrames int

	// Cooldown suppresses wake detection for this long after playback so
	// residual audio cannot self-trigger (default 2s).
	Cooldown time.Duration

	// ActionPause separates successive actions in a multi-action turn
	// (default 500ms).
	ActionPause time.Duration

	// CommandPause separates an action's spoken text from its robot
	// command (default 300ms).
	CommandPause time.Duration

	// PlaybackSettle is the wait between stopping capture and starting
	// playback (default 100ms).
	PlaybackSettle time.Duration

	// ResumeSettle is the wait between the end of playback and the
	// capture restart, avoiding "device busy" on shared hardware
	// (default 1s).
	ResumeSettle time.Duration

	// HeartbeatTicks is how many ticks pass between heartbeat log lines
	// (default 50).
	HeartbeatTicks int

	// Greeting is spoken once at startup, before the mic opens.
	Greeting string

	// Language for synthesized speech (default "en").
	Language string
}

// DefaultConfig returns the production orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		SilenceThreshold: 500,
		SilenceFrames:    30,
		Cooldown:         2 * time.Second,
		ActionPause:      500 * time.Millisecond,
		CommandPause:     300 * time.Millisecond,
		PlaybackSettle:   100 * time.Millisecond,
		ResumeSettle:     time.Second,
		HeartbeatTicks:   50,
		Language:         "en",
	}
}

// Deps are the orchestrator's collaborators. Capture, Wake, Transcriber,
// Engine, and Speaker are required; the rest default to no-ops.
type Deps struct {
	Capture     CapturePipeline
	Wake        WakeDetector
	Transcriber Transcriber
	Engine      dialogue.Engine
	Speaker     Speaker
	Sounds      SoundPlayer
	Indicator   indicator.Indicator
	Patrol      PatrolTicker
}

// Orchestrator is the shared control core. All exported methods are safe
// for concurrent use.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	running       bool
	state         State
	buffer        []audio.Frame
	silenceRun    int
	speaking      bool
	lastSpeechEnd time.Time
	tickCount     int
	lastHeard     string
	lastSaid      string

	// turnMu serializes dispatch turns; dialogue processing is serial
	// per turn no matter which source injected the text.
	turnMu sync.Mutex

	transition func(State)

	// test seams
	now   func() time.Time
	sleep func(time.Duration)
}

// New creates an orchestrator. It does not touch hardware until Start.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Capture == nil || deps.Wake == nil || deps.Transcriber == nil ||
		deps.Engine == nil || deps.Speaker == nil {
		return nil, ErrMissingDep
	}
	if deps.Indicator == nil {
		deps.Indicator = indicator.Noop{}
	}
	if cfg.SilenceThreshold == 0 {
		cfg.SilenceThreshold = DefaultConfig().SilenceThreshold
	}
	if cfg.SilenceFrames == 0 {
		cfg.SilenceFrames = DefaultConfig().SilenceFrames
	}
	if cfg.HeartbeatTicks == 0 {
		cfg.HeartbeatTicks = DefaultConfig().HeartbeatTicks
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: log.Component("orchestrator"),
		ctx:    ctx,
		cancel: cancel,
		state:  Listening,
		now:    time.Now,
		sleep:  time.Sleep,
	}, nil
}

// OnTransition registers a best-effort observer invoked after every state
// transition. Must be called before Start. The observer must not block.
func (o *Orchestrator) OnTransition(fn func(State)) {
	o.transition = fn
}

// Start speaks the greeting, then opens the capture pipeline. The greeting
// plays before the mic opens so it cannot trigger a capture of itself.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.running = true
	o.state = Listening
	o.mu.Unlock()

	o.deps.Indicator.Set(indicator.MoodIdle)
	metrics.SetState(Listening.String())

	if o.cfg.Greeting != "" {
		if err := o.deps.Speaker.Speak(o.ctx, o.cfg.Greeting, o.cfg.Language); err != nil {
			o.logger.Error("greeting failed", "error", err)
		}
		o.deps.Wake.Reset()
		o.mu.Lock()
		o.lastSpeechEnd = o.now()
		o.mu.Unlock()
	}

	if err := o.deps.Capture.Start(o.onFrame); err != nil {
		return fmt.Errorf("orchestrator: starting capture: %w", err)
	}
	o.logger.Info("started", "language", o.cfg.Language)
	return nil
}

// Stop halts capture and cancels in-flight workers. Playback already in
// progress finishes its current action; the poll and tick loops are owned
// by the host and simply stop calling in.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.mu.Unlock()

	o.cancel()
	o.deps.Capture.Stop()
	o.deps.Indicator.Set(indicator.MoodIdle)
	o.logger.Info("stopped")
}

func (o *Orchestrator) isRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// onFrame is the capture consumer: the speech segmenter. It runs on the
// capture goroutine and must never block on network or playback; the
// critical section is gate checks, the detect call, and buffer mutation.
// Transition side effects fire after the lock is released.
func (o *Orchestrator) onFrame(frame audio.Frame) {
	o.mu.Lock()

	switch o.state {
	case Listening:
		if o.speaking || o.now().Sub(o.lastSpeechEnd) < o.cfg.Cooldown {
			o.mu.Unlock()
			return
		}
		if !o.deps.Wake.Detect(frame) {
			o.mu.Unlock()
			return
		}
		metrics.WakeDetections.Inc()
		o.buffer = nil
		o.silenceRun = 0
		o.state = Capturing
		o.mu.Unlock()
		o.announce(Capturing)
		o.logger.Info("wake word detected")

	case Capturing:
		o.buffer = append(o.buffer, frame)
		if audio.MeanAbs(frame.Samples) < o.cfg.SilenceThreshold {
			o.silenceRun++
		} else {
			o.silenceRun = 0
		}
		if o.silenceRun > o.cfg.SilenceFrames {
			// End of utterance. Ownership of the buffer moves to the
			// worker here; nothing touches it under the lock again.
			utterance := o.buffer
			o.buffer = nil
			o.silenceRun = 0
			o.state = Thinking
			o.mu.Unlock()
			o.announce(Thinking)
			go o.processUtterance(utterance)
			return
		}
		o.mu.Unlock()

	default:
		// Thinking/speaking: the device is normally stopped by now,
		// late frames are discarded.
		o.mu.Unlock()
	}
}

// announce fires the side effects of a state transition: metrics, the
// hardware indicator, and the observer. It must be called with o.mu
// released — the observer is allowed to call back into Status, and the
// indicator may be slow; neither may ever stall a lock holder.
func (o *Orchestrator) announce(s State) {
	metrics.SetState(s.String())
	o.deps.Indicator.Set(s.mood())
	if o.transition != nil {
		o.transition(s)
	}
}

// Tick is called by the host on a fixed cadence. It logs a heartbeat and
// drives the patrol scheduler; patrol commands are dropped, not queued,
// when the orchestrator is busy.
func (o *Orchestrator) Tick() {
	o.mu.Lock()
	o.tickCount++
	tick := o.tickCount
	state := o.state
	idle := o.state == Listening && !o.speaking
	o.mu.Unlock()

	if tick%o.cfg.HeartbeatTicks == 0 {
		o.logger.Debug("heartbeat",
			"tick", tick,
			"state", state.String(),
			"capture_healthy", o.deps.Capture.Healthy(),
		)
	}

	if o.deps.Patrol == nil {
		return
	}
	cmd, ok := o.deps.Patrol.Tick()
	if !ok {
		return
	}
	if !idle {
		o.logger.Debug("patrol command dropped, busy", "command", cmd)
		return
	}
	go o.Inject("patrol", cmd)
}

// Status is a point-in-time snapshot for the status server.
type Status struct {
	State          string `json:"state"`
	Speaking       bool   `json:"speaking"`
	CaptureHealthy bool   `json:"capture_healthy"`
	PatrolActive   bool   `json:"patrol_active"`
	LastHeard      string `json:"last_heard,omitempty"`
	LastSaid       string `json:"last_said,omitempty"`
	Ticks          int    `json:"ticks"`
}

// Status reports the current orchestrator state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Status{
		State:          o.state.String(),
		Speaking:       o.speaking,
		CaptureHealthy: o.deps.Capture.Healthy(),
		LastHeard:      o.lastHeard,
		LastSaid:       o.lastSaid,
		Ticks:          o.tickCount,
	}
	if o.deps.Patrol != nil {
		s.PatrolActive = o.deps.Patrol.Active()
	}
	return s
}
