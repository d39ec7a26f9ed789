// Package tools is the canonical catalog of host tools offered to agents.
// Tool names are the command types the host dispatches.
package tools

import "sort"

// Tool describes one host command for agents.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
	// Gate is the host feature flag that must be on, or empty.
	Gate string `json:"gate,omitempty"`
}

// Required lists the schema's required parameters.
func (t Tool) Required() []string {
	req, _ := t.Parameters["required"].([]string)
	return req
}

// Registry manages tool registration and lookup.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register registers a tool, replacing one with the same name.
func (r *Registry) Register(tool Tool) {
	if _, ok := r.tools[tool.Name]; !ok {
		r.order = append(r.order, tool.Name)
	}
	r.tools[tool.Name] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// All returns all registered tools in registration order.
func (r *Registry) All() []Tool {
	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Names returns the tool names, sorted.
func (r *Registry) Names() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// ToLLMTools converts all tools to the OpenAI function-calling format.
func (r *Registry) ToLLMTools() []map[string]any {
	tools := make([]map[string]any, 0, len(r.order))
	for _, tool := range r.All() {
		tools = append(tools, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  tool.Parameters,
			},
		})
	}
	return tools
}
