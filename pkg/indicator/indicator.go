// Package indicator drives the robot's hardware state indicators (eyes and
// LED ring). Updates are fire-and-forget: a dead indicator must never gate
// a state transition.
package indicator

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-astro/internal/httpc"
	"github.com/teslashibe/go-astro/internal/log"
)

// Mood is the coarse expression shown while the orchestrator is in a state.
type Mood string

const (
	MoodIdle      Mood = "idle"
	MoodListening Mood = "listening"
	MoodThinking  Mood = "thinking"
	MoodSpeaking  Mood = "speaking"
)

// Indicator receives mood updates on every orchestrator state transition.
type Indicator interface {
	// Set applies the mood. Implementations must be fast or fully
	// asynchronous; errors are swallowed and at most logged.
	Set(mood Mood)
}

// Noop is an Indicator that does nothing. Used when the robot has no
// indicator hardware attached.
type Noop struct{}

func (Noop) Set(Mood) {}

// HTTP posts moods to the robot head API. Requests use a short dedicated
// timeout so a wedged head process cannot stall callers even briefly.
type HTTP struct {
	baseURL string
	client  *http.Client
}

// NewHTTP creates an indicator against the robot head API,
// e.g. http://127.0.0.1:8000.
func NewHTTP(baseURL string) *HTTP {
	return &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpc.NewClient(2 * time.Second),
	}
}

// Set posts the mood in the background. The caller returns immediately;
// a slow or dead head process costs a goroutine for at most the request
// timeout, never a stalled transition.
func (h *HTTP) Set(mood Mood) {
	url := fmt.Sprintf("%s/expression/%s", h.baseURL, mood)
	go func() {
		resp, err := h.client.Post(url, "application/json", nil)
		if err != nil {
			log.Debug("indicator update failed", "mood", mood, "error", err)
			return
		}
		resp.Body.Close()
	}()
}
