package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-astro/internal/metrics"
	"github.com/teslashibe/go-astro/pkg/audio"
	"github.com/teslashibe/go-astro/pkg/dialogue"
	"github.com/teslashibe/go-astro/pkg/indicator"
)

// transcribeTimeout bounds one speech-to-text round trip.
const transcribeTimeout = 30 * time.Second

// processUtterance runs off the capture goroutine: transcribe the captured
// frames and hand the text to the dispatch path. Empty buffers and
// unrecognized speech return straight to listening with no user-visible
// error.
func (o *Orchestrator) processUtterance(frames []audio.Frame) {
	if len(frames) == 0 {
		o.logger.Warn("empty utterance buffer, back to listening")
		o.backToListening()
		return
	}

	rate := frames[0].Rate
	samples := audio.Normalize(audio.Concat(frames))

	ctx, cancel := context.WithTimeout(o.ctx, transcribeTimeout)
	defer cancel()

	text, err := o.deps.Transcriber.Transcribe(ctx, samples, rate)
	if err != nil {
		o.logger.Error("transcription failed", "error", err)
		o.backToListening()
		return
	}
	if text == "" {
		o.logger.Info("no speech recognized")
		o.backToListening()
		return
	}

	o.mu.Lock()
	o.lastHeard = text
	o.mu.Unlock()
	o.logger.Info("heard", "text", text)

	o.Inject("voice", text)
}

// Inject is the single text entry point shared by transcribed speech,
// remote commands, and patrol. It runs the dialogue engine and dispatches
// the resulting turn; turns are strictly serial across all sources.
func (o *Orchestrator) Inject(source, text string) {
	if text == "" {
		return
	}

	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	o.mu.Lock()
	entered := o.state != Thinking
	if entered {
		// A remote or patrol command can interrupt an in-progress capture;
		// the half-collected utterance is abandoned.
		o.buffer = nil
		o.silenceRun = 0
		o.state = Thinking
	}
	o.mu.Unlock()
	if entered {
		o.announce(Thinking)
	}

	// The engine contract guarantees actions even on internal failure, so
	// there is no error path here; an all-empty reply is the only way to
	// skip the turn.
	actions := o.deps.Engine.Process(o.ctx, text)
	dispatchable := actions[:0:0]
	for _, a := range actions {
		if !a.Empty() {
			dispatchable = append(dispatchable, a)
		}
	}
	if len(dispatchable) == 0 {
		o.logger.Info("turn produced no actions", "source", source)
		o.backToListening()
		return
	}

	turnID := uuid.NewString()
	o.logger.Info("turn started",
		"turn", turnID, "source", source, "actions", len(dispatchable))
	metrics.Turns.WithLabelValues(source).Inc()
	o.dispatch(dispatchable)
	o.logger.Info("turn complete", "turn", turnID)
}

// dispatch plays one turn's actions in order. The capture device is
// exclusive during playback, so capture stops first and only the deferred
// housekeeping brings it back. Per-action failures are logged and the turn
// continues; the housekeeping runs unconditionally so a failed action can
// never strand the machine outside listening.
func (o *Orchestrator) dispatch(actions []dialogue.Action) {
	o.mu.Lock()
	o.speaking = true
	o.state = Speaking
	o.mu.Unlock()
	o.announce(Speaking)

	o.deps.Capture.Stop()
	o.sleep(o.cfg.PlaybackSettle)

	defer func() {
		o.sleep(o.cfg.ResumeSettle)
		// Stop may have raced the turn; a stopped orchestrator must not
		// reopen the mic behind the caller's back.
		if o.isRunning() {
			if err := o.deps.Capture.Start(o.onFrame); err != nil {
				o.logger.Error("capture restart failed", "error", err)
			}
		}
		o.deps.Wake.Reset()

		o.mu.Lock()
		o.lastSpeechEnd = o.now()
		o.speaking = false
		o.buffer = nil
		o.silenceRun = 0
		o.state = Listening
		o.mu.Unlock()
		o.announce(Listening)
	}()

	for i, a := range actions {
		if i > 0 {
			o.sleep(o.cfg.ActionPause)
		}
		o.playAction(a)
	}
}

// playAction executes one response action: sound, then speech, then the
// robot command, each blocking.
func (o *Orchestrator) playAction(a dialogue.Action) {
	if a.Mood != "" {
		o.deps.Indicator.Set(indicator.Mood(a.Mood))
	}

	if a.Sound != "" && o.deps.Sounds != nil {
		if err := o.deps.Sounds.Play(a.Sound, true); err != nil {
			metrics.ActionFailures.Inc()
			o.logger.Error("sound effect failed", "sound", a.Sound, "error", err)
		}
	}

	if a.Say != "" {
		if err := o.deps.Speaker.Speak(o.ctx, a.Say, o.cfg.Language); err != nil {
			metrics.ActionFailures.Inc()
			o.logger.Error("speech failed", "error", err)
		} else {
			o.mu.Lock()
			o.lastSaid = a.Say
			o.mu.Unlock()
		}
	}

	if a.Command != "" {
		// Commands are spoken aloud to the robot after a short pause so
		// they do not blend into the preceding sentence.
		o.sleep(o.cfg.CommandPause)
		if err := o.deps.Speaker.Speak(o.ctx, a.Command, o.cfg.Language); err != nil {
			metrics.ActionFailures.Inc()
			o.logger.Error("command speech failed", "command", a.Command, "error", err)
		}
	}
}

// backToListening recovers from the local edge cases (empty buffer, no
// recognized speech, actionless turn) without touching the capture device,
// which kept running the whole time.
func (o *Orchestrator) backToListening() {
	o.mu.Lock()
	o.buffer = nil
	o.silenceRun = 0
	o.state = Listening
	o.mu.Unlock()
	o.announce(Listening)
}
