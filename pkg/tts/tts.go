// Package tts provides speech synthesis for go-astro's spoken responses.
//
// The synthesis engine is a collaborator behind the Provider interface;
// Speaker composes a provider with a blocking local player, which is what
// the orchestrator needs: playback must hold the audio device exclusively
// for its duration, so Speak does not return until the speaker is silent.
package tts

import "context"

// Speaker speaks text aloud, blocking until playback completes.
type Speaker interface {
	Speak(ctx context.Context, text, language string) error
}

// AudioResult is a complete synthesis result.
type AudioResult struct {
	// Audio is raw mono PCM16, little endian.
	Audio []byte

	// SampleRate in Hz.
	SampleRate int
}

// Provider converts text to audio.
type Provider interface {
	// Synthesize returns the complete audio for text in the given
	// language ("en", "es", ...).
	Synthesize(ctx context.Context, text, language string) (*AudioResult, error)

	// Close releases any resources held by the provider.
	Close() error
}

// PCMPlayer plays raw PCM16 audio, blocking until done.
type PCMPlayer interface {
	Play(ctx context.Context, pcm []byte, sampleRate int) error
}

// Local is a Speaker that synthesizes through a provider and plays the
// result on the local output device.
type Local struct {
	provider Provider
	player   PCMPlayer
}

// NewLocal creates a Speaker from a provider and a player.
func NewLocal(provider Provider, player PCMPlayer) *Local {
	return &Local{provider: provider, player: player}
}

// Speak implements Speaker.
func (l *Local) Speak(ctx context.Context, text, language string) error {
	if text == "" {
		return nil
	}
	result, err := l.provider.Synthesize(ctx, text, language)
	if err != nil {
		return err
	}
	return l.player.Play(ctx, result.Audio, result.SampleRate)
}
