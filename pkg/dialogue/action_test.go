package dialogue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		actions int
		tool    string
	}{
		{
			name:    "final actions",
			raw:     `{"actions":[{"say":"Alright partner"},{"command":"Astro, dance"}]}`,
			actions: 2,
		},
		{
			name: "tool request",
			raw:  `{"tool":{"name":"start_patrol"}}`,
			tool: "start_patrol",
		},
		{
			name: "fenced json",
			raw:  "```json\n{\"actions\":[{\"say\":\"howdy\"}]}\n```",
			actions: 1,
		},
		{
			name:    "empty reply",
			raw:     `{}`,
			wantErr: true,
		},
		{
			name:    "both actions and tool",
			raw:     `{"actions":[{"say":"hi"}],"tool":{"name":"start_patrol"}}`,
			wantErr: true,
		},
		{
			name:    "action with no content",
			raw:     `{"actions":[{"mood":"happy"}]}`,
			wantErr: true,
		},
		{
			name:    "unknown field rejected",
			raw:     `{"actions":[{"say":"hi"}],"confidence":0.9}`,
			wantErr: true,
		},
		{
			name:    "tool without name",
			raw:     `{"tool":{"args":{}}}`,
			wantErr: true,
		},
		{
			name:    "not json",
			raw:     `howdy partner`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseReply([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseReply: %v", err)
			}
			if len(r.Actions) != tt.actions {
				t.Errorf("actions: got %d, want %d", len(r.Actions), tt.actions)
			}
			if tt.tool != "" && (r.Tool == nil || r.Tool.Name != tt.tool) {
				t.Errorf("tool: got %+v, want %q", r.Tool, tt.tool)
			}
		})
	}
}

func TestFallbackNeverEmpty(t *testing.T) {
	for n := 0; n < 5; n++ {
		actions := Fallback(n)
		if len(actions) != 1 || actions[0].Say == "" {
			t.Fatalf("Fallback(%d): got %+v", n, actions)
		}
	}
}

func TestRegistryRun(t *testing.T) {
	r := NewRegistry()
	r.Register(Tool{
		Name:        "start_patrol",
		Description: "begin an autonomous patrol",
		Run: func(args map[string]any) (string, error) {
			return "patrol started", nil
		},
	})

	out, err := r.Run(&ToolRequest{Name: "start_patrol"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "patrol started" {
		t.Errorf("got %q", out)
	}

	if _, err := r.Run(&ToolRequest{Name: "fly"}); err == nil {
		t.Error("expected error for unknown tool")
	}
}

// chatServer fakes an OpenAI-compatible endpoint, returning scripted
// message contents in order.
func chatServer(t *testing.T, contents ...string) *httptest.Server {
	t.Helper()
	i := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if i >= len(contents) {
			t.Error("unexpected extra chat request")
			http.Error(w, "no more replies", http.StatusInternalServerError)
			return
		}
		content := contents[i]
		i++
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}))
}

func TestClientFinalActions(t *testing.T) {
	srv := chatServer(t, `{"actions":[{"say":"Howdy"},{"command":"Astro, dance"}]}`)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Model: "test"}, nil)
	actions := c.Process(context.Background(), "dance")
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(actions))
	}
	if actions[1].Command != "Astro, dance" {
		t.Errorf("command: got %q", actions[1].Command)
	}
}

func TestClientToolRoundTrip(t *testing.T) {
	srv := chatServer(t,
		`{"tool":{"name":"start_patrol"}}`,
		`{"actions":[{"say":"Heading out on patrol"}]}`,
	)
	defer srv.Close()

	reg := NewRegistry()
	ran := false
	reg.Register(Tool{Name: "start_patrol", Run: func(map[string]any) (string, error) {
		ran = true
		return "ok", nil
	}})

	c := NewClient(Config{BaseURL: srv.URL, Model: "test"}, reg)
	actions := c.Process(context.Background(), "go keep watch")
	if !ran {
		t.Error("tool was not run")
	}
	if len(actions) != 1 || actions[0].Say != "Heading out on patrol" {
		t.Errorf("got %+v", actions)
	}
}

func TestClientRefusesSecondToolCall(t *testing.T) {
	srv := chatServer(t,
		`{"tool":{"name":"start_patrol"}}`,
		`{"tool":{"name":"start_patrol"}}`,
	)
	defer srv.Close()

	reg := NewRegistry()
	reg.Register(Tool{Name: "start_patrol", Run: func(map[string]any) (string, error) {
		return "ok", nil
	}})

	c := NewClient(Config{BaseURL: srv.URL, Model: "test"}, reg)
	actions := c.Process(context.Background(), "patrol")

	// The recursion bound kicks in: fallback, not a third query.
	if len(actions) != 1 || actions[0].Say == "" {
		t.Fatalf("expected fallback action, got %+v", actions)
	}
}

func TestClientFallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Model: "test"}, nil)
	actions := c.Process(context.Background(), "hello")
	if len(actions) != 1 || actions[0].Say == "" {
		t.Fatalf("expected fallback action, got %+v", actions)
	}
}

func TestClientFallsBackOnMalformedReply(t *testing.T) {
	srv := chatServer(t, `{"english_response":"hi","astro_command":null}`)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Model: "test"}, nil)
	actions := c.Process(context.Background(), "hello")
	if len(actions) != 1 || actions[0].Say == "" {
		t.Fatalf("expected fallback action, got %+v", actions)
	}
}
