package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/scriba-ai/scriba/internal/openai"
)

// Tool is one function the model may invoke mid-turn. Implementations
// must be safe for concurrent use; the registry is populated at startup
// and read-only afterwards.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// Registry maps tool names to handlers. Unknown names are reported by
// lookup, never by panic, so the orchestration loop keeps uniform
// control flow.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions renders the registered tools in Responses API format, in
// registration order.
func (r *Registry) Definitions() []openai.ToolDef {
	defs := make([]openai.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, openai.ToolDef{
			Type:        "function",
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}
