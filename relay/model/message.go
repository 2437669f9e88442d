package model

import "encoding/json"

// Message is one turn in a chat-completions style conversation. Content is
// either a plain string or a slice of content parts (text/image_url) for
// multimodal requests; ParseContent normalizes both shapes.
type Message struct {
	Role         string `json:"role"`
	Content      any    `json:"content,omitempty"`
	Name         string `json:"name,omitempty"`
	ToolCalls    []Tool `json:"tool_calls,omitempty"`
	ToolCallId   string `json:"tool_call_id,omitempty"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

// ContentPart is one normalized element of a multimodal message: either
// Text is set, or ImageURL is set, never both.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL is an inline or remote image reference with an optional detail
// hint ("low"/"high"/"auto") that affects token billing for vision models.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// ParseContent normalizes Message.Content into a slice of ContentPart
// regardless of whether the client sent a bare string or a structured array.
func (m Message) ParseContent() []ContentPart {
	switch v := m.Content.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []ContentPart{{Type: "text", Text: v}}
	case []any:
		parts := make([]ContentPart, 0, len(v))
		for _, raw := range v {
			part, ok := parseContentPart(raw)
			if ok {
				parts = append(parts, part)
			}
		}
		return parts
	case []ContentPart:
		return v
	default:
		return nil
	}
}

func parseContentPart(raw any) (ContentPart, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return ContentPart{}, false
	}

	partType, _ := m["type"].(string)
	switch partType {
	case "text":
		text, _ := m["text"].(string)
		return ContentPart{Type: "text", Text: text}, true
	case "image_url":
		imgRaw, ok := m["image_url"].(map[string]any)
		if !ok {
			return ContentPart{}, false
		}
		url, _ := imgRaw["url"].(string)
		detail, _ := imgRaw["detail"].(string)
		return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url, Detail: detail}}, true
	default:
		return ContentPart{}, false
	}
}

// GeneralOpenAIRequest is the canonical chat-completions style request body
// every OpenAI-compatible/Anthropic/Gemini adaptor converts to and from.
type GeneralOpenAIRequest struct {
	Model            string          `json:"model"`
	Messages         []Message       `json:"messages"`
	Stream           bool            `json:"stream,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	N                int             `json:"n,omitempty"`
	MaxTokens        int             `json:"max_tokens,omitempty"`
	Stop             any             `json:"stop,omitempty"`
	PresencePenalty  float64         `json:"presence_penalty,omitempty"`
	FrequencyPenalty float64         `json:"frequency_penalty,omitempty"`
	Tools            []Tool          `json:"tools,omitempty"`
	ToolChoice       any             `json:"tool_choice,omitempty"`
	ResponseFormat   json.RawMessage `json:"response_format,omitempty"`
	User             string          `json:"user,omitempty"`
}

// ImageRequest is the canonical images/generations request body.
type ImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
	User           string `json:"user,omitempty"`
}

// ClaudeRequest is the canonical Anthropic /v1/messages request body,
// understood natively by the anthropic adaptor and translated by every
// other family's adaptor that implements ConvertClaudeRequest.
type ClaudeRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	System      any       `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Tools       []Tool    `json:"tools,omitempty"`
	ToolChoice  any       `json:"tool_choice,omitempty"`
}
