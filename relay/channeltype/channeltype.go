// Package channeltype classifies upstream providers by wire protocol family.
// Earlier revisions of this gateway kept one numeric "channel type" per
// concrete vendor (dozens of constants, one adaptor each); this gateway
// adapts only the wire-protocol families that actually differ at the byte
// level, and distinguishes vendors by model.Provider.Name + BaseURL instead.
package channeltype

// Family is the wire protocol an upstream provider speaks.
type Family int

const (
	// OpenAICompatible covers OpenAI itself plus any vendor that mirrors its
	// chat-completions/responses JSON shape (Azure OpenAI, most third-party
	// aggregators, local OpenAI-compatible servers).
	OpenAICompatible Family = iota
	// Anthropic is the native /v1/messages wire format.
	Anthropic
	// Gemini is Google's generateContent wire format.
	Gemini
	// Other is a catch-all for bespoke/internal endpoints. adaptor.ForFamily
	// serves it with the OpenAI-compatible adaptor, so its requests and
	// responses are translated like any OpenAI-shaped upstream.
	Other
)

func (f Family) String() string {
	switch f {
	case OpenAICompatible:
		return "openai_compatible"
	case Anthropic:
		return "anthropic"
	case Gemini:
		return "gemini"
	case Other:
		return "other"
	default:
		return "unknown"
	}
}

// ParseFamily maps a stored provider family string back to its Family value,
// defaulting unrecognized values to OpenAICompatible.
func ParseFamily(s string) Family {
	switch s {
	case "anthropic":
		return Anthropic
	case "gemini":
		return Gemini
	case "other":
		return Other
	default:
		return OpenAICompatible
	}
}

// DefaultBaseURLs gives the canonical upstream root for a family when a
// provider record doesn't override BaseURL.
var DefaultBaseURLs = map[Family]string{
	OpenAICompatible: "https://api.openai.com",
	Anthropic:        "https://api.anthropic.com",
	Gemini:           "https://generativelanguage.googleapis.com",
}
