package types

// Usage reports token consumption and cost for one backend invocation.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"cost,omitempty"`
}

// Response is the unified result of a routed generation request.
type Response struct {
	Model   string `json:"model"`
	Content string `json:"content"`
	Usage   *Usage `json:"usage,omitempty"`

	// Cached is true when the response was served from the response cache
	// without a backend invocation. Never serialized into the cache itself.
	Cached bool `json:"-"`

	// Created is the unix timestamp of response creation.
	Created int64 `json:"created,omitempty"`
}

// StreamChunk is one partial response from a streaming backend invocation.
type StreamChunk struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`

	// Usage is populated on the final chunk when the backend reports it.
	Usage *Usage `json:"usage,omitempty"`
}
