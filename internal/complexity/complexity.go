// Package complexity is a pure function of a canonical request: it
// estimates input token count with tiktoken-go, infers the task kind from
// prompt shape and declared parameters, flags which capabilities the
// request needs, and flags requests that should bypass the response cache
// because they look time-sensitive. Its output is advisory; internal/router
// may override any of it.
package complexity

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/gateway/multiapi/internal/canonical"
)

// Kind is the inferred category of a request's workload.
type Kind string

const (
	ShortAnswer    Kind = "short-answer"
	Conversation   Kind = "conversation"
	LongGeneration Kind = "long-generation"
	Code           Kind = "code"
	Analysis       Kind = "analysis"
	Creative       Kind = "creative"
	Translation    Kind = "translation"
	Summarization  Kind = "summarization"
)

// Capability is a feature a request needs from whichever provider serves it.
type Capability string

const (
	Vision      Capability = "vision"
	ToolUse     Capability = "tool_use"
	LongContext Capability = "long_context"
)

// Profile is the analyzer's output for one request.
type Profile struct {
	EstimatedInputTokens int
	Kind                 Kind
	Capabilities         []Capability
	Sensitive            bool
}

// sensitiveMarkers are volatile terms that make a response unsafe to cache;
// configurable in principle, hard-coded here to the common defaults.
var sensitiveMarkers = []string{"today", "now", "current time", "currently", "this week", "this month"}

var (
	encodersMu sync.Mutex
	encoders   = map[string]*tiktoken.Tiktoken{}
)

func encoderFor(model string) *tiktoken.Tiktoken {
	encodersMu.Lock()
	defer encodersMu.Unlock()

	if enc, ok := encoders[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			encoders[model] = nil
			return nil
		}
	}
	encoders[model] = enc
	return enc
}

// Analyze produces a Profile for req. It never returns an error: when the
// tiktoken encoder is unavailable it falls back to a byte-length heuristic
// (roughly 4 bytes per token), so the analyzer can never block a request.
func Analyze(req *canonical.Request) *Profile {
	p := &Profile{}

	var text strings.Builder
	for _, m := range req.Messages {
		if s, ok := m.Content.(string); ok {
			text.WriteString(s)
			text.WriteByte('\n')
		}
	}
	prompt := text.String()

	if enc := encoderFor(req.Model); enc != nil {
		p.EstimatedInputTokens = len(enc.Encode(prompt, nil, nil))
	} else {
		p.EstimatedInputTokens = len(prompt)/4 + 1
	}

	p.Kind = inferKind(prompt, req)
	p.Capabilities = inferCapabilities(req)
	p.Sensitive = containsSensitiveMarker(prompt)

	return p
}

func inferKind(prompt string, req *canonical.Request) Kind {
	lower := strings.ToLower(prompt)

	switch {
	case strings.Contains(lower, "```") || strings.Contains(lower, "func ") || strings.Contains(lower, "def "):
		return Code
	case strings.Contains(lower, "translate"):
		return Translation
	case strings.Contains(lower, "summarize") || strings.Contains(lower, "summary"):
		return Summarization
	case strings.Contains(lower, "analyze") || strings.Contains(lower, "analysis"):
		return Analysis
	case strings.Contains(lower, "write a story") || strings.Contains(lower, "poem"):
		return Creative
	case req.MaxTokens > 2000:
		return LongGeneration
	case len(req.Messages) > 4:
		return Conversation
	default:
		return ShortAnswer
	}
}

func inferCapabilities(req *canonical.Request) []Capability {
	var caps []Capability
	for _, m := range req.Messages {
		if parts, ok := m.Content.([]any); ok {
			for range parts {
				caps = append(caps, Vision)
				break
			}
		}
	}
	if len(req.Messages) > 0 {
		last := req.Messages[len(req.Messages)-1]
		if len(last.ToolCalls) > 0 {
			caps = append(caps, ToolUse)
		}
	}
	if req.MaxTokens > 32_000 {
		caps = append(caps, LongContext)
	}
	return caps
}

func containsSensitiveMarker(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
