package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// ExecPlayer plays PCM16 audio through an external command (aplay by
// default). Playback is blocking: the command exits only once the audio has
// drained, which is exactly the device-exclusivity guarantee the dispatch
// sequencer relies on.
type ExecPlayer struct {
	// Binary is the player executable (default "aplay").
	Binary string
}

// NewExecPlayer creates a player using aplay on the default ALSA device.
func NewExecPlayer() *ExecPlayer {
	return &ExecPlayer{Binary: "aplay"}
}

// Play implements PCMPlayer.
func (p *ExecPlayer) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	if len(pcm) == 0 {
		return nil
	}
	cmd := exec.CommandContext(ctx, p.Binary,
		"-q",
		"-t", "raw",
		"-f", "S16_LE",
		"-c", "1",
		"-r", fmt.Sprint(sampleRate),
	)
	cmd.Stdin = bytes.NewReader(pcm)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tts: playback failed: %w (%s)", err, bytes.TrimSpace(out))
	}
	return nil
}
