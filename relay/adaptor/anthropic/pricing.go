package anthropic

import "github.com/gateway/multiapi/relay/adaptor"

func perMillion(usd float64) float64 { return usd / 1_000_000 }

var defaultPricing = map[string]adaptor.ModelConfig{
	"claude-opus-4-1": {
		Ratio:             perMillion(15),
		CompletionRatio:   5,
		CachedInputRatio:  perMillion(1.5),
		CacheWrite5mRatio: perMillion(18.75),
		CacheWrite1hRatio: perMillion(30),
	},
	"claude-sonnet-4-5": {
		Ratio:             perMillion(3),
		CompletionRatio:   5,
		CachedInputRatio:  perMillion(0.3),
		CacheWrite5mRatio: perMillion(3.75),
		CacheWrite1hRatio: perMillion(6),
	},
	"claude-haiku-4-5": {
		Ratio:             perMillion(1),
		CompletionRatio:   5,
		CachedInputRatio:  perMillion(0.1),
		CacheWrite5mRatio: perMillion(1.25),
		CacheWrite1hRatio: perMillion(2),
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
