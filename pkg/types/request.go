// Package types defines the unified request and response types exchanged
// between the routing subsystem, its callers, and backend execution engines.
package types

import (
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role/content pair in the conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// RoutingHints carries optional caller constraints on candidate selection.
type RoutingHints struct {
	// RequiredCapabilities restricts candidates to models declaring
	// every listed capability. Empty means any model is eligible.
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`

	// MaxCostPerCall is an advisory cost ceiling in USD. Zero means unset.
	MaxCostPerCall float64 `json:"max_cost_per_call,omitempty"`

	// MaxLatency is an advisory latency ceiling. Zero means unset.
	MaxLatency time.Duration `json:"max_latency,omitempty"`
}

// Request is an immutable generation request. Identity is content-derived:
// two requests with identical model, prompts, history, and settings are the
// same request for caching purposes.
type Request struct {
	Model        string         `json:"model"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	UserPrompt   string         `json:"user_prompt"`
	History      []Message      `json:"history,omitempty"`
	Settings     map[string]any `json:"settings,omitempty"`
	Hints        *RoutingHints  `json:"hints,omitempty"`
}

// Clone returns a deep copy of the request. Callers hold requests immutable;
// Clone exists for the rare path that must adjust a copy (e.g. failover).
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	out := *r
	if len(r.History) > 0 {
		out.History = make([]Message, len(r.History))
		copy(out.History, r.History)
	}
	if len(r.Settings) > 0 {
		out.Settings = make(map[string]any, len(r.Settings))
		for k, v := range r.Settings {
			out.Settings[k] = v
		}
	}
	if r.Hints != nil {
		hints := *r.Hints
		if len(r.Hints.RequiredCapabilities) > 0 {
			hints.RequiredCapabilities = make([]string, len(r.Hints.RequiredCapabilities))
			copy(hints.RequiredCapabilities, r.Hints.RequiredCapabilities)
		}
		out.Hints = &hints
	}
	return &out
}
