package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/teslashibe/go-astro/internal/httpc"
	"github.com/teslashibe/go-astro/internal/log"
)

// Config holds the HTTP engine configuration.
type Config struct {
	// BaseURL of an OpenAI-compatible chat completions API.
	BaseURL string

	// APIKey for the endpoint.
	APIKey string

	// Model name, e.g. "gpt-4o-mini".
	Model string

	// SystemPrompt overrides the default persona prompt when set.
	SystemPrompt string

	// Sounds lists the effect names the engine may reference in actions.
	Sounds []string

	// MaxTokens limits the response length (default 1024).
	MaxTokens int
}

// Client is the HTTP dialogue engine. It implements Engine over an
// OpenAI-compatible chat completions endpoint and enforces the two-phase
// tool protocol: a reply is a final action list or one tool request, and a
// tool request yields exactly one follow-up query.
type Client struct {
	cfg      Config
	client   *http.Client
	registry *Registry
	logger   *slog.Logger
	failures atomic.Int64
}

// NewClient creates the HTTP dialogue engine.
func NewClient(cfg Config, registry *Registry) *Client {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Client{
		cfg:      cfg,
		client:   httpc.Client,
		registry: registry,
		logger:   log.Component("dialogue"),
	}
}

// Process implements Engine. It never returns an error: any failure along
// the way degrades to an in-character fallback action.
func (c *Client) Process(ctx context.Context, text string) []Action {
	reply, err := c.query(ctx, text, "")
	if err != nil {
		c.logger.Error("engine query failed", "error", err)
		return Fallback(int(c.failures.Add(1)))
	}

	if reply.Tool != nil {
		// Phase two: run the tool, then exactly one follow-up query.
		// A second tool request is a protocol violation and degrades to
		// the fallback rather than recursing.
		result, err := c.registry.Run(reply.Tool)
		if err != nil {
			c.logger.Warn("tool failed", "tool", reply.Tool.Name, "error", err)
			result = fmt.Sprintf("tool %s failed: %v", reply.Tool.Name, err)
		}

		reply, err = c.query(ctx, text, fmt.Sprintf("Tool %s returned: %s. Reply with final actions only.", reply.Tool.Name, result))
		if err != nil {
			c.logger.Error("follow-up query failed", "error", err)
			return Fallback(int(c.failures.Add(1)))
		}
		if reply.Tool != nil {
			c.logger.Warn("engine requested a second tool call, refusing", "tool", reply.Tool.Name)
			return Fallback(int(c.failures.Add(1)))
		}
	}

	return reply.Actions
}

// chat wire types, OpenAI-compatible.
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) query(ctx context.Context, text, toolContext string) (*Reply, error) {
	messages := []chatMessage{
		{Role: "system", Content: c.systemPrompt()},
		{Role: "user", Content: text},
	}
	if toolContext != "" {
		messages = append(messages, chatMessage{Role: "system", Content: toolContext})
	}

	body, err := json.Marshal(chatRequest{
		Model:     c.cfg.Model,
		Messages:  messages,
		MaxTokens: c.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("dialogue: encoding request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dialogue: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dialogue: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("dialogue: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dialogue: API error %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("dialogue: decoding envelope: %w", err)
	}
	if cr.Error != nil {
		return nil, fmt.Errorf("dialogue: API error: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("dialogue: empty choices")
	}

	return ParseReply([]byte(cr.Choices[0].Message.Content))
}

const defaultPersona = `You are the voice of a cowboy robot companion riding on the back of an Astro robot. Stay in character: warm, folksy, short replies. You command the robot by speaking aloud, e.g. "Astro, go to the kitchen".`

func (c *Client) systemPrompt() string {
	var b strings.Builder
	if c.cfg.SystemPrompt != "" {
		b.WriteString(c.cfg.SystemPrompt)
	} else {
		b.WriteString(defaultPersona)
	}

	b.WriteString("\n\nReply with JSON only. Either a final answer:\n")
	b.WriteString(`{"actions":[{"say":"...","command":"Astro, ...","sound":"...","mood":"..."}]}` + "\n")
	b.WriteString("or a single tool request:\n")
	b.WriteString(`{"tool":{"name":"...","args":{}}}` + "\n")
	b.WriteString("Use multiple actions for multi-step commands, in order. Every field is optional but each action needs at least one of say/command/sound.\n")

	if tools := c.registry.Describe(); len(tools) > 0 {
		b.WriteString("\nAvailable tools:\n")
		b.WriteString(strings.Join(tools, "\n"))
		b.WriteString("\n")
	}
	if len(c.cfg.Sounds) > 0 {
		b.WriteString("\nAvailable sound effects: ")
		b.WriteString(strings.Join(c.cfg.Sounds, ", "))
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
