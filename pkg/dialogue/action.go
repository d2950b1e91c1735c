// Package dialogue turns recognized text into an ordered list of response
// actions. The reasoning engine itself is a collaborator behind the Engine
// interface; this package owns the boundary: a strict, tagged reply format
// that rejects malformed payloads instead of leaking missing-key errors
// downstream, and a two-phase tool protocol with an explicit recursion
// bound.
package dialogue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Action is one unit of a dialogue reply. A turn is an ordered sequence of
// actions, which lets a single command fan out into multiple steps
// ("dance, then go to the kitchen"). Every field is optional, but an action
// with no content is rejected at the boundary.
type Action struct {
	// Say is spoken to the user, in character.
	Say string `json:"say,omitempty"`

	// Command is spoken aloud to the robot after Say, e.g. "Astro, dance".
	Command string `json:"command,omitempty"`

	// Sound names a sound effect played before Say.
	Sound string `json:"sound,omitempty"`

	// Mood optionally tags the action for the hardware indicators.
	Mood string `json:"mood,omitempty"`
}

// Empty reports whether the action carries nothing dispatchable.
func (a Action) Empty() bool {
	return a.Say == "" && a.Command == "" && a.Sound == ""
}

// ToolRequest asks the host to run a tool. A reply is either a final action
// list or exactly one tool request; a tool request yields exactly one
// follow-up query, never further tool calls. The bound is enforced
// structurally in the client, not by convention.
type ToolRequest struct {
	// Name identifies the registered tool.
	Name string `json:"name"`

	// Args carries tool parameters as decoded JSON.
	Args map[string]any `json:"args,omitempty"`
}

// Reply is the discriminated union an engine response must decode into.
type Reply struct {
	Actions []Action     `json:"actions,omitempty"`
	Tool    *ToolRequest `json:"tool,omitempty"`
}

// Boundary validation errors.
var (
	ErrEmptyReply     = errors.New("dialogue: reply has neither actions nor tool")
	ErrAmbiguousReply = errors.New("dialogue: reply has both actions and tool")
	ErrEmptyAction    = errors.New("dialogue: action carries no content")
)

// ParseReply decodes and validates a raw engine reply. Unknown fields and
// structural violations are rejected here so nothing downstream has to
// special-case malformed payloads.
func ParseReply(raw []byte) (*Reply, error) {
	raw = stripFences(raw)

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var r Reply
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("dialogue: decoding reply: %w", err)
	}

	switch {
	case r.Tool != nil && len(r.Actions) > 0:
		return nil, ErrAmbiguousReply
	case r.Tool != nil:
		if r.Tool.Name == "" {
			return nil, errors.New("dialogue: tool request without a name")
		}
		return &r, nil
	case len(r.Actions) == 0:
		return nil, ErrEmptyReply
	}

	for i, a := range r.Actions {
		if a.Empty() {
			return nil, fmt.Errorf("action %d: %w", i, ErrEmptyAction)
		}
	}
	return &r, nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON
// in one. Models do this no matter how firmly the prompt says not to.
func stripFences(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return []byte(strings.TrimSpace(s))
}
