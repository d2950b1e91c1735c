// Package remote polls an external command queue over HTTP and injects the
// commands into the same dispatch path as spoken utterances. Commands carry
// correlation ids; a batch acknowledgment after successful hand-off stops
// the source from redelivering them.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-astro/internal/httpc"
	"github.com/teslashibe/go-astro/internal/log"
	"github.com/teslashibe/go-astro/internal/metrics"
)

// Command is one remote command. ID is the correlation id used for the
// acknowledgment; commands without an id are treated as already consumed by
// the source and need no ack.
type Command struct {
	Text string
	ID   string
}

// Handler receives the payload of each command. A panic-free return hands
// the command off; the id is then included in the next ack batch.
type Handler func(text string)

// Config holds the remote channel configuration.
type Config struct {
	// PollURL is the command queue endpoint. Empty disables the channel.
	PollURL string

	// AckURL receives the acknowledgment batches. Defaults to the poll
	// URL with its last path segment replaced by "ack".
	AckURL string

	// APIKey is sent as X-API-KEY on every request.
	APIKey string

	// Interval is the poll cadence (default 2s). Network failures are
	// naturally paced by it; there is no separate retry loop.
	Interval time.Duration

	// RequestTimeout bounds each poll/ack request (default 5s).
	RequestTimeout time.Duration
}

// ErrDisabled is returned by Start when no poll URL is configured.
var ErrDisabled = errors.New("remote: channel disabled (no poll URL)")

// Channel is the background polling loop.
type Channel struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewChannel creates a remote command channel.
func NewChannel(cfg Config) *Channel {
	if cfg.Interval == 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.AckURL == "" && cfg.PollURL != "" {
		cfg.AckURL = siblingAckURL(cfg.PollURL)
	}
	return &Channel{
		cfg:    cfg,
		client: httpc.NewClient(cfg.RequestTimeout),
		logger: log.Component("remote"),
	}
}

// Start begins polling in the background, handing each command payload to
// handler. Poll and ack failures are logged and the loop keeps going.
func (c *Channel) Start(handler Handler) error {
	if c.cfg.PollURL == "" {
		return ErrDisabled
	}
	if handler == nil {
		return errors.New("remote: nil handler")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("remote: already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.pollLoop(ctx, handler)

	c.logger.Info("remote command polling started", "interval", c.cfg.Interval)
	return nil
}

// Stop terminates the poll loop. It returns once the loop has exited.
func (c *Channel) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.cancel()
	done := c.done
	c.mu.Unlock()

	<-done
	c.logger.Info("remote command polling stopped")
}

func (c *Channel) pollLoop(ctx context.Context, handler Handler) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(ctx, handler)
		}
	}
}

// pollOnce fetches pending commands, hands them off, and acks the ids that
// made it through. Each id reaches the dispatch path at most once: acked
// ids are not redelivered, and an id is only acked after a successful
// hand-off.
func (c *Channel) pollOnce(ctx context.Context, handler Handler) {
	commands, err := c.poll(ctx)
	if err != nil {
		c.logger.Warn("poll failed", "error", err)
		return
	}
	if len(commands) == 0 {
		return
	}
	c.logger.Info("remote commands received", "count", len(commands))

	var ackIDs []string
	for _, cmd := range commands {
		if cmd.Text == "" {
			continue
		}
		handler(cmd.Text)
		metrics.RemoteCommands.Inc()
		if cmd.ID != "" {
			ackIDs = append(ackIDs, cmd.ID)
		}
	}

	if len(ackIDs) > 0 {
		if err := c.ack(ctx, ackIDs); err != nil {
			c.logger.Warn("ack failed", "count", len(ackIDs), "error", err)
		}
	}
}

// pollResponse is the queue wire format. Entries are either structured
// commands or, for the legacy schema, bare strings that the source already
// deleted (no ack needed).
type pollResponse struct {
	Commands []json.RawMessage `json:"commands"`
}

type wireCommand struct {
	Command string `json:"command"`
	ID      string `json:"id"`
}

func (c *Channel) poll(ctx context.Context) ([]Command, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.PollURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, nil
	default:
		return nil, fmt.Errorf("remote: poll status %d", resp.StatusCode)
	}

	var pr pollResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&pr); err != nil {
		return nil, fmt.Errorf("remote: decoding poll response: %w", err)
	}

	out := make([]Command, 0, len(pr.Commands))
	for _, raw := range pr.Commands {
		var legacy string
		if err := json.Unmarshal(raw, &legacy); err == nil {
			out = append(out, Command{Text: legacy})
			continue
		}
		var wc wireCommand
		if err := json.Unmarshal(raw, &wc); err != nil {
			c.logger.Warn("skipping malformed command entry", "raw", truncate(string(raw), 80))
			continue
		}
		out = append(out, Command{Text: wc.Command, ID: wc.ID})
	}
	return out, nil
}

type ackRequest struct {
	CommandIDs []string `json:"command_ids"`
}

func (c *Channel) ack(ctx context.Context, ids []string) error {
	body, err := json.Marshal(ackRequest{CommandIDs: ids})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AckURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("X-API-KEY", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remote: ack status %d", resp.StatusCode)
	}
	c.logger.Info("acked commands", "count", len(ids))
	return nil
}

// siblingAckURL derives the ack endpoint from the poll endpoint:
// .../commands/poll becomes .../commands/ack.
func siblingAckURL(pollURL string) string {
	if i := strings.LastIndex(pollURL, "/"); i > 0 {
		return pollURL[:i] + "/ack"
	}
	return pollURL + "/ack"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
