package dialogue

import "context"

// Engine produces the response actions for one turn. Implementations never
// return an error to the caller: on any internal failure they must yield a
// single in-character fallback action instead, so the orchestrator has no
// "no response" case to handle.
type Engine interface {
	Process(ctx context.Context, text string) []Action
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, text string) []Action

func (f EngineFunc) Process(ctx context.Context, text string) []Action {
	return f(ctx, text)
}

// fallbackLines rotate through short in-character replies used when the
// engine cannot produce a real one. The user hears something rather than
// silence or a crash.
var fallbackLines = []string{
	"Well shoot, partner. My brain took a tumble there. Say that again?",
	"Hold your horses, I didn't quite catch that one.",
	"Dang, lost my train of thought. Run that by me one more time?",
}

// Fallback returns the in-character action for failed turns. The index
// rotates on the caller's counter so repeated failures do not repeat the
// exact same line.
func Fallback(n int) []Action {
	line := fallbackLines[n%len(fallbackLines)]
	return []Action{{Say: line, Mood: "thinking"}}
}
