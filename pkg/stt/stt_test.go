package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientTranscribe(t *testing.T) {
	var gotModel, gotLanguage string
	var gotWAV []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(4 << 20); err != nil {
			t.Fatalf("parsing upload: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")

		f, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer f.Close()
		buf := make([]byte, 64)
		n, _ := f.Read(buf)
		gotWAV = buf[:n]

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"howdy partner"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, APIKey: "k"})
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = 0.25
	}

	text, err := c.Transcribe(context.Background(), samples, 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "howdy partner" {
		t.Errorf("text = %q, want %q", text, "howdy partner")
	}
	if gotModel != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", gotModel)
	}
	if gotLanguage != "en" {
		t.Errorf("language = %q, want en", gotLanguage)
	}
	if len(gotWAV) < 44 || string(gotWAV[:4]) != "RIFF" {
		t.Errorf("upload is not a WAV file: %q", gotWAV)
	}
}

func TestClientTranscribeEmptyInput(t *testing.T) {
	c := NewClient(Config{Endpoint: "http://unused.invalid"})
	text, err := c.Transcribe(context.Background(), nil, 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
}

func TestClientTranscribeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL})
	if _, err := c.Transcribe(context.Background(), []float32{0.1, 0.2}, 16000); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestMockRecordsCalls(t *testing.T) {
	m := &Mock{TranscribeFunc: func(ctx context.Context, samples []float32, rate int) (string, error) {
		return "hello", nil
	}}
	text, err := m.Transcribe(context.Background(), []float32{0}, 16000)
	if err != nil || text != "hello" {
		t.Fatalf("Transcribe = %q, %v", text, err)
	}
	if m.Calls() != 1 {
		t.Errorf("Calls = %d, want 1", m.Calls())
	}
}
