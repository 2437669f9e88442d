package model

import (
	"time"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"
)

// PriceTable overrides an adaptor's compiled-in default pricing for a
// single model, letting an operator correct a rate without a redeploy when
// a vendor changes prices. internal/pricing checks here first and falls
// back to adaptor.DefaultPricingMethods when no row matches.
type PriceTable struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ModelName string `json:"model_name" gorm:"type:varchar(255);uniqueIndex;not null"`

	Ratio            float64 `json:"ratio"`
	CompletionRatio  float64 `json:"completion_ratio"`
	CachedInputRatio float64 `json:"cached_input_ratio"`
	CacheWrite5mRatio float64 `json:"cache_write_5m_ratio"`
	CacheWrite1hRatio float64 `json:"cache_write_1h_ratio"`
}

func (PriceTable) TableName() string { return "price_table" }

// GetPriceOverride returns the override row for modelName, nil if none exists.
func GetPriceOverride(modelName string) (*PriceTable, error) {
	var p PriceTable
	err := DB.Where("model_name = ?", modelName).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get price override")
	}
	return &p, nil
}

// UpsertPriceOverride inserts or updates the override row for a model,
// used by the control-plane pricing endpoint.
func UpsertPriceOverride(p *PriceTable) error {
	return errors.Wrap(
		DB.Where("model_name = ?", p.ModelName).
			Assign(*p).
			FirstOrCreate(p).Error,
		"upsert price override")
}
