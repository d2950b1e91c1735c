// Package metrics defines the Prometheus instrumentation for go-astro.
// Collectors are registered with promauto on the default registry and
// served by the status server at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesCaptured counts audio frames delivered by the capture pipeline.
	FramesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "astro_audio_frames_total",
		Help: "Audio frames delivered to the consumer after resampling.",
	})

	// CaptureErrors counts transient read errors on the capture device.
	CaptureErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "astro_audio_read_errors_total",
		Help: "Transient capture read errors (retried in place).",
	})

	// CaptureRestarts counts full capture session recreations.
	CaptureRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "astro_audio_restarts_total",
		Help: "Capture sessions recreated after persistent errors.",
	})

	// WakeDetections counts accepted wake word detections.
	WakeDetections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "astro_wake_detections_total",
		Help: "Wake word detections that started an utterance capture.",
	})

	// Turns counts dispatch turns by source (voice, remote, patrol).
	Turns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astro_turns_total",
		Help: "Dispatch turns started, by text source.",
	}, []string{"source"})

	// ActionFailures counts response actions that errored during playback.
	ActionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "astro_action_failures_total",
		Help: "Response actions that failed during a dispatch turn.",
	})

	// RemoteCommands counts commands received from the remote channel.
	RemoteCommands = promauto.NewCounter(prometheus.CounterOpts{
		Name: "astro_remote_commands_total",
		Help: "Commands handed off from the remote command channel.",
	})

	// State reports the current orchestrator state as a one-hot gauge.
	State = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "astro_orchestrator_state",
		Help: "Current orchestrator state (1 for the active state).",
	}, []string{"state"})
)

// SetState updates the one-hot state gauge.
func SetState(active string) {
	for _, s := range []string{"listening", "capturing", "thinking", "speaking"} {
		v := 0.0
		if s == active {
			v = 1.0
		}
		State.WithLabelValues(s).Set(v)
	}
}
