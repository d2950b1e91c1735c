package tts

import (
	"context"
	"sync"
	"time"
)

// MockSpeaker implements Speaker for testing. Behavior is customizable via
// the function field; every call is recorded for verification.
type MockSpeaker struct {
	// SpeakFunc is called when Speak is invoked. If nil, Speak records
	// the call and returns nil.
	SpeakFunc func(ctx context.Context, text, language string) error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records one Speak invocation.
type MockCall struct {
	Text     string
	Language string
	Time     time.Time
}

// Speak implements Speaker.
func (m *MockSpeaker) Speak(ctx context.Context, text, language string) error {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Text: text, Language: language, Time: time.Now()})
	m.mu.Unlock()

	if m.SpeakFunc != nil {
		return m.SpeakFunc(ctx, text, language)
	}
	return nil
}

// Calls returns a copy of the recorded invocations.
func (m *MockSpeaker) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// Texts returns just the spoken strings, in order.
func (m *MockSpeaker) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.Text
	}
	return out
}
