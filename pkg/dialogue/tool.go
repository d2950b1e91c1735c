package dialogue

import (
	"fmt"
	"sort"
	"sync"
)

// ToolFunc executes a tool request and returns a short result string that
// is fed back to the engine as the follow-up query context.
type ToolFunc func(args map[string]any) (string, error)

// Tool describes a host capability the engine may request.
type Tool struct {
	// Name is the identifier the engine uses in a ToolRequest.
	Name string

	// Description is surfaced in the system prompt.
	Description string

	// Run executes the tool.
	Run ToolFunc
}

// Registry holds the tools available to the engine for a session.
// Registration happens at wiring time; lookups are concurrent-safe because
// turns run on worker goroutines.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Re-registering a name replaces the previous tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

// Run executes the named tool.
func (r *Registry) Run(req *ToolRequest) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[req.Name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("dialogue: unknown tool %q", req.Name)
	}
	return t.Run(req.Args)
}

// Describe returns one line per tool for the system prompt, in stable order.
func (r *Registry) Describe() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, fmt.Sprintf("- %s: %s", name, r.tools[name].Description))
	}
	return out
}
