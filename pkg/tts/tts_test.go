package tts

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	result *AudioResult
	err    error
	calls  int
	closed bool
}

func (p *fakeProvider) Synthesize(ctx context.Context, text, language string) (*AudioResult, error) {
	p.calls++
	return p.result, p.err
}

func (p *fakeProvider) Close() error {
	p.closed = true
	return nil
}

type fakePlayer struct {
	pcm  []byte
	rate int
	err  error
}

func (p *fakePlayer) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	p.pcm = pcm
	p.rate = sampleRate
	return p.err
}

func TestLocalSpeakPlaysSynthesizedAudio(t *testing.T) {
	provider := &fakeProvider{result: &AudioResult{Audio: []byte{1, 2, 3, 4}, SampleRate: 24000}}
	player := &fakePlayer{}
	speaker := NewLocal(provider, player)

	if err := speaker.Speak(context.Background(), "howdy", "en"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if player.rate != 24000 || len(player.pcm) != 4 {
		t.Errorf("player got %d bytes at %d Hz", len(player.pcm), player.rate)
	}
}

func TestLocalSpeakEmptyTextIsNoop(t *testing.T) {
	provider := &fakeProvider{}
	speaker := NewLocal(provider, &fakePlayer{})

	if err := speaker.Speak(context.Background(), "", "en"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if provider.calls != 0 {
		t.Error("provider called for empty text")
	}
}

func TestChainFallsBack(t *testing.T) {
	primary := &fakeProvider{err: &APIError{Provider: "primary", StatusCode: 503}}
	backup := &fakeProvider{result: &AudioResult{Audio: []byte{9}, SampleRate: 16000}}

	chain, err := NewChain(primary, backup)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	result, err := chain.Synthesize(context.Background(), "howdy", "en")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(result.Audio) != 1 {
		t.Errorf("got %d audio bytes from backup", len(result.Audio))
	}
	if primary.calls != 1 || backup.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.calls, backup.calls)
	}
}

func TestChainAllFail(t *testing.T) {
	boom := errors.New("boom")
	chain, err := NewChain(&fakeProvider{err: boom})
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	if _, err := chain.Synthesize(context.Background(), "howdy", "en"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestChainRequiresProviders(t *testing.T) {
	if _, err := NewChain(); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI(""); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("err = %v, want ErrNoAPIKey", err)
	}
}

func TestAPIErrorRetryable(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{401, false},
	}
	for _, tt := range tests {
		e := &APIError{StatusCode: tt.code}
		if got := e.IsRetryable(); got != tt.want {
			t.Errorf("IsRetryable(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	wrapped := WrapError("openai", inner)
	if !errors.Is(wrapped, inner) {
		t.Error("wrapped error does not unwrap to the inner error")
	}
	if WrapError("openai", nil) != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestMockSpeakerRecordsCalls(t *testing.T) {
	m := &MockSpeaker{}
	if err := m.Speak(context.Background(), "howdy partner", "en"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if texts := m.Texts(); len(texts) != 1 || texts[0] != "howdy partner" {
		t.Errorf("Texts = %v", texts)
	}
}
