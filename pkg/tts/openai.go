package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/teslashibe/go-astro/internal/httpc"
)

const (
	openaiSpeechURL = "https://api.openai.com/v1/audio/speech"

	// The API returns 24kHz mono PCM16 for response_format "pcm".
	openaiPCMRate = 24000
)

// OpenAI synthesizes speech through the OpenAI speech API.
type OpenAI struct {
	apiKey string
	model  string
	voice  string
	client *http.Client
}

// OpenAIOption configures the OpenAI provider.
type OpenAIOption func(*OpenAI)

// WithModel overrides the synthesis model (default "tts-1").
func WithModel(model string) OpenAIOption {
	return func(o *OpenAI) { o.model = model }
}

// WithVoice overrides the voice (default "onyx", the closest to a gravelly
// cowboy drawl the built-in voices get).
func WithVoice(voice string) OpenAIOption {
	return func(o *OpenAI) { o.voice = voice }
}

// NewOpenAI creates the OpenAI synthesis provider.
func NewOpenAI(apiKey string, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	o := &OpenAI{
		apiKey: apiKey,
		model:  "tts-1",
		voice:  "onyx",
		client: httpc.Client,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize implements Provider.
func (o *OpenAI) Synthesize(ctx context.Context, text, language string) (*AudioResult, error) {
	// The speech API infers language from the input text; the language
	// tag exists for providers that need it explicitly.
	body, err := json.Marshal(speechRequest{
		Model:          o.model,
		Input:          text,
		Voice:          o.voice,
		ResponseFormat: "pcm",
	})
	if err != nil {
		return nil, WrapError("openai", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openaiSpeechURL, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError("openai", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, WrapError("openai", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{Provider: "openai", StatusCode: resp.StatusCode, Message: string(msg)}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError("openai", fmt.Errorf("reading audio: %w", err))
	}

	return &AudioResult{Audio: audio, SampleRate: openaiPCMRate}, nil
}

// Close implements Provider.
func (o *OpenAI) Close() error { return nil }
