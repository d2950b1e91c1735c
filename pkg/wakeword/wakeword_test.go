package wakeword

import (
	"testing"

	"github.com/teslashibe/go-astro/pkg/audio"
)

func frame(amp int16) audio.Frame {
	samples := make([]int16, 64)
	for i := range samples {
		samples[i] = amp
	}
	return audio.Frame{Samples: samples, Rate: 16000}
}

func TestEnergyDetectsSustainedVoice(t *testing.T) {
	e := NewEnergy(Config{Threshold: 1000, Frames: 3})

	if e.Detect(frame(2000)) || e.Detect(frame(2000)) {
		t.Fatal("fired before the run completed")
	}
	if !e.Detect(frame(2000)) {
		t.Fatal("did not fire on the third voice frame")
	}
	// The run resets on detection; the next frame starts a new run.
	if e.Detect(frame(2000)) {
		t.Fatal("refired immediately after detection")
	}
}

func TestEnergySilenceBreaksRun(t *testing.T) {
	e := NewEnergy(Config{Threshold: 1000, Frames: 3})

	e.Detect(frame(2000))
	e.Detect(frame(2000))
	e.Detect(frame(0)) // breaks the run
	if e.Detect(frame(2000)) {
		t.Fatal("fired with a broken run")
	}
}

func TestEnergyReset(t *testing.T) {
	e := NewEnergy(Config{Threshold: 1000, Frames: 2})

	e.Detect(frame(2000))
	e.Reset()
	if e.Detect(frame(2000)) {
		t.Fatal("Reset did not clear the run")
	}
	if !e.Detect(frame(2000)) {
		t.Fatal("run did not restart after Reset")
	}
}

func TestMockRecordsCalls(t *testing.T) {
	m := &Mock{DetectFunc: func(audio.Frame) bool { return true }}
	if !m.Detect(frame(0)) {
		t.Fatal("DetectFunc result not returned")
	}
	m.Reset()
	if detects, resets := m.Counts(); detects != 1 || resets != 1 {
		t.Errorf("Counts = %d/%d, want 1/1", detects, resets)
	}
}
