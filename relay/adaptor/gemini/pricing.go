package gemini

import "github.com/gateway/multiapi/relay/adaptor"

func perMillion(usd float64) float64 { return usd / 1_000_000 }

var defaultPricing = map[string]adaptor.ModelConfig{
	"gemini-2.5-pro": {
		Ratio:            perMillion(1.25),
		CompletionRatio:  8,
		CachedInputRatio: perMillion(0.31),
	},
	"gemini-2.5-flash": {
		Ratio:            perMillion(0.3),
		CompletionRatio:  8.3,
		CachedInputRatio: perMillion(0.075),
	},
	"gemini-2.5-flash-lite": {
		Ratio:           perMillion(0.1),
		CompletionRatio: 4,
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
