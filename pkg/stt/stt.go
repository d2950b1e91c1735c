// Package stt hands captured utterances to a speech-to-text collaborator.
// The model itself is out of process behind a Whisper-style HTTP API; this
// package owns only the narrow contract: normalized samples in, recognized
// text (possibly empty) out.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"

	"github.com/teslashibe/go-astro/internal/httpc"
	"github.com/teslashibe/go-astro/pkg/audio"
)

// Transcriber converts an utterance to text. An empty string with a nil
// error means no speech was recognized; callers return to listening without
// any user-visible error.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// Config holds the HTTP transcriber configuration.
type Config struct {
	// Endpoint of a Whisper-compatible transcription API,
	// e.g. https://api.openai.com/v1/audio/transcriptions.
	Endpoint string

	// APIKey for the endpoint.
	APIKey string

	// Model name (default "whisper-1").
	Model string

	// Language hint (default "en").
	Language string
}

// Client is the HTTP transcriber. Utterances are re-encoded as WAV and
// uploaded as a multipart file, the format Whisper-style endpoints expect.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient creates the HTTP transcriber.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	return &Client{cfg: cfg, client: httpc.Client}
}

// Transcribe implements Transcriber.
func (c *Client) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}

	// Back to PCM16: the capture path normalizes for model input, the
	// wire format wants integer samples.
	pcm := make([]int16, len(samples))
	for i, s := range samples {
		v := s * 32768
		switch {
		case v > 32767:
			pcm[i] = 32767
		case v < -32768:
			pcm[i] = -32768
		default:
			pcm[i] = int16(v)
		}
	}
	wav := audio.EncodeWAV(pcm, sampleRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("stt: building upload: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("stt: building upload: %w", err)
	}
	mw.WriteField("model", c.cfg.Model)
	mw.WriteField("language", c.cfg.Language)
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("stt: building upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("stt: building request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("stt: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("stt: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("stt: API error %d: %s", resp.StatusCode, raw)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("stt: decoding response: %w", err)
	}
	return out.Text, nil
}

// Mock implements Transcriber for testing.
type Mock struct {
	// TranscribeFunc is called when Transcribe is invoked. If nil,
	// Transcribe returns "" (no speech recognized).
	TranscribeFunc func(ctx context.Context, samples []float32, sampleRate int) (string, error)

	mu    sync.Mutex
	calls int
}

// Transcribe implements Transcriber.
func (m *Mock) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, samples, sampleRate)
	}
	return "", nil
}

// Calls returns how many times Transcribe was invoked.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
