package adaptor

import (
	"github.com/gateway/multiapi/relay/adaptor/anthropic"
	"github.com/gateway/multiapi/relay/adaptor/gemini"
	"github.com/gateway/multiapi/relay/adaptor/openaicompat"
	"github.com/gateway/multiapi/relay/channeltype"
)

// ForFamily returns a fresh Adaptor for family. "Other" and any
// unrecognized family fall back to the OpenAI-compatible adaptor, since a
// bespoke passthrough provider is, at the wire level, almost always an
// OpenAI-shaped API.
func ForFamily(family channeltype.Family) Adaptor {
	switch family {
	case channeltype.Anthropic:
		return &anthropic.Adaptor{}
	case channeltype.Gemini:
		return &gemini.Adaptor{}
	default:
		return &openaicompat.Adaptor{}
	}
}
