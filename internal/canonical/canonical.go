// Package canonical defines the provider-agnostic request/response shapes
// that flow through the dispatch pipeline between the dataplane handlers
// and the relay adaptor layer, so internal/router, internal/cache and
// internal/complexity never need to know which wire format a client used.
package canonical

import "github.com/gateway/multiapi/relay/model"

// Request is the dispatch pipeline's internal representation of an
// inbound chat/completion call, built from either an OpenAI-shaped or a
// Claude-shaped request by the dataplane handler that received it.
type Request struct {
	TenantID    string
	TenantKeyId int64

	Model    string
	Messages []model.Message

	MaxTokens   int
	Temperature *float64
	Stream      bool

	// Raw keeps the original decoded request so the relay adaptor can
	// translate it with full fidelity instead of round-tripping through a
	// lossy intermediate shape.
	Raw any

	// Wire distinguishes which adaptor entry point Raw should go through:
	// "openai" for GeneralOpenAIRequest, "claude" for ClaudeRequest.
	Wire string
}

// Result is what the dispatch pipeline hands back to internal/usage once a
// request completes, successfully or not.
type Result struct {
	StatusCode int
	Err        error

	PromptTokens     int64
	CompletionTokens int64
	CachedTokens     int64

	ProviderId    int64
	UpstreamKeyId int64
	ActualModel   string

	CacheHit bool
}
