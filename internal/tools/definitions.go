// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"sort"
)

// =============================================================================
// TOOL DEFINITION
// =============================================================================

// Handler runs one tool. A non-nil error is classified with AsFailure.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// Tool represents an executable tool.
type Tool struct {
	// Name is the tool identifier (e.g., "file.read", "shell.run")
	Name string `json:"name"`

	// Description explains what the tool does
	Description string `json:"description"`

	// Params defines the tool's parameters
	Params []Parameter `json:"params"`

	// Handler does the work
	Handler Handler `json:"-"`
}

// Parameter defines a single tool parameter.
type Parameter struct {
	// Name of the parameter
	Name string `json:"name"`

	// Type is the parameter type ("string", "integer", "number")
	Type string `json:"type"`

	// Required indicates if the parameter must be provided
	Required bool `json:"required"`

	// Default is the value used when the parameter is absent
	Default any `json:"default"`
}

// =============================================================================
// TOOL REGISTRY
// =============================================================================

// Registry holds all available tools. It is filled once at startup and
// read concurrently afterwards.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool *Tool) error {
	if tool.Name == "" || tool.Handler == nil {
		return fmt.Errorf("tool %q: name and handler are required", tool.Name)
	}
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %q already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []*Tool {
	result := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}
