package openaicompat

import "github.com/gateway/multiapi/relay/adaptor"

// perMillion converts a USD-per-million-token price into the adaptor's
// USD-per-token Ratio unit.
func perMillion(usd float64) float64 { return usd / 1_000_000 }

// defaultPricing seeds the handful of well-known OpenAI models; operators
// override or extend it per-provider through the control plane's price
// table (internal/pricing), this is only the boot-time fallback.
var defaultPricing = map[string]adaptor.ModelConfig{
	"gpt-4o": {
		Ratio:            perMillion(2.5),
		CompletionRatio:  4,
		CachedInputRatio: perMillion(1.25),
	},
	"gpt-4o-mini": {
		Ratio:            perMillion(0.15),
		CompletionRatio:  4,
		CachedInputRatio: perMillion(0.075),
	},
	"gpt-4.1": {
		Ratio:            perMillion(2),
		CompletionRatio:  4,
		CachedInputRatio: perMillion(0.5),
	},
	"o1": {
		Ratio:           perMillion(15),
		CompletionRatio: 4,
	},
	"text-embedding-3-small": {
		Ratio: perMillion(0.02),
	},
	"text-embedding-3-large": {
		Ratio: perMillion(0.13),
	},
}

func (a *Adaptor) GetDefaultModelPricing() map[string]adaptor.ModelConfig {
	return defaultPricing
}

func (a *Adaptor) GetModelRatio(modelName string) float64 {
	if cfg, ok := defaultPricing[modelName]; ok {
		return cfg.Ratio
	}
	return a.DefaultPricingMethods.GetModelRatio(modelName)
}

func (a *Adaptor) GetCompletionRatio(modelName string) float64 {
	if cfg, ok := defaultPricing[modelName]; ok && cfg.CompletionRatio > 0 {
		return cfg.CompletionRatio
	}
	return a.DefaultPricingMethods.GetCompletionRatio(modelName)
}
