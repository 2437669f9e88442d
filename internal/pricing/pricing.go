// Package pricing resolves a model's effective ratio/completion-ratio/
// cache ratios, preferring a database override from model.PriceTable and
// falling back to the serving adaptor's compiled-in defaults. A resolved
// table is a snapshot: it takes effect only for requests whose dispatch
// begins after it was fetched, matching the rest of the config-snapshot
// discipline C1 uses.
package pricing

import (
	"github.com/gateway/multiapi/internal/alert"
	"github.com/gateway/multiapi/model"
	"github.com/gateway/multiapi/relay/adaptor"
)

// Table is the resolved pricing for one model at the moment it was fetched.
type Table struct {
	ModelName         string
	Ratio             float64
	CompletionRatio   float64
	CachedInputRatio  float64
	CacheWrite5mRatio float64
	CacheWrite1hRatio float64
}

// RatioChangeAlertThreshold is how much a ratio must move (relative) before
// UpsertOverride emits an alert.
const RatioChangeAlertThreshold = 0.10

// Resolve returns the effective price table for modelName: a database
// override if one exists, otherwise a's compiled-in default.
func Resolve(a adaptor.Adaptor, modelName string) (Table, error) {
	override, err := model.GetPriceOverride(modelName)
	if err != nil {
		return Table{}, err
	}
	if override != nil {
		return Table{
			ModelName:         modelName,
			Ratio:             override.Ratio,
			CompletionRatio:   override.CompletionRatio,
			CachedInputRatio:  override.CachedInputRatio,
			CacheWrite5mRatio: override.CacheWrite5mRatio,
			CacheWrite1hRatio: override.CacheWrite1hRatio,
		}, nil
	}

	return Table{
		ModelName:       modelName,
		Ratio:           a.GetModelRatio(modelName),
		CompletionRatio: a.GetCompletionRatio(modelName),
	}, nil
}

// UpsertOverride writes a new PriceTable row for modelName and alerts if
// the ratio moved by more than RatioChangeAlertThreshold relative to the
// previous value.
func UpsertOverride(modelName string, next Table) error {
	previous, err := model.GetPriceOverride(modelName)
	if err != nil {
		return err
	}

	row := &model.PriceTable{
		ModelName:         modelName,
		Ratio:             next.Ratio,
		CompletionRatio:   next.CompletionRatio,
		CachedInputRatio:  next.CachedInputRatio,
		CacheWrite5mRatio: next.CacheWrite5mRatio,
		CacheWrite1hRatio: next.CacheWrite1hRatio,
	}
	if err := model.UpsertPriceOverride(row); err != nil {
		return err
	}

	if previous != nil && relativeChange(previous.Ratio, next.Ratio) > RatioChangeAlertThreshold {
		alert.PriceChanged(modelName, next.Ratio)
	}
	return nil
}

func relativeChange(old, next float64) float64 {
	if old == 0 {
		if next == 0 {
			return 0
		}
		return 1
	}
	delta := next - old
	if delta < 0 {
		delta = -delta
	}
	return delta / old
}

// Cost computes the quota cost of one completed request given token
// counts and the resolved table, mirroring the teacher's per-request
// quota computation: prompt tokens at Ratio, completion tokens at
// Ratio*CompletionRatio, cached-input tokens discounted by CachedInputRatio.
func Cost(table Table, promptTokens, completionTokens, cachedTokens int64) int64 {
	billablePrompt := promptTokens - cachedTokens
	if billablePrompt < 0 {
		billablePrompt = 0
	}

	cachedCost := float64(cachedTokens) * table.Ratio * table.CachedInputRatio
	promptCost := float64(billablePrompt) * table.Ratio
	completionCost := float64(completionTokens) * table.Ratio * table.CompletionRatio

	return int64(promptCost + completionCost + cachedCost)
}
