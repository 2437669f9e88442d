package model

import (
	"time"

	"github.com/Laisky/errors/v2"
)

// UsageRecord is an append-only row written once per completed request by
// internal/usage. It is the source of truth for billing and for the
// control-plane analytics endpoints; rows are never updated, only inserted.
type UsageRecord struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	TenantID    string `json:"tenant_id" gorm:"type:varchar(255);index"`
	TenantKeyId int64  `json:"tenant_key_id" gorm:"index"`

	ProviderId    int64 `json:"provider_id" gorm:"index"`
	UpstreamKeyId int64 `json:"upstream_key_id"`

	RequestedModel string `json:"requested_model" gorm:"type:varchar(255)"`
	ActualModel    string `json:"actual_model" gorm:"type:varchar(255);index"`

	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	CachedTokens     int64 `json:"cached_tokens"`

	Quota      int64 `json:"quota"`
	LatencyMs  int64 `json:"latency_ms"`
	Success    bool  `json:"success"`
	StatusCode int   `json:"status_code"`

	TraceID string `json:"trace_id" gorm:"type:varchar(64);index"`
}

func (UsageRecord) TableName() string { return "usage_records" }

// InsertUsageRecord writes a single completed request's usage.
func InsertUsageRecord(r *UsageRecord) error {
	return errors.Wrap(DB.Create(r).Error, "insert usage record")
}

// UsageSummary aggregates usage over a time window, backing the
// control-plane analytics endpoints.
type UsageSummary struct {
	TenantID         string `json:"tenant_id"`
	RequestCount     int64  `json:"request_count"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	Quota            int64  `json:"quota"`
}

// SummarizeUsageByTenant aggregates usage records in [since, until) grouped
// by tenant.
func SummarizeUsageByTenant(since, until time.Time) ([]*UsageSummary, error) {
	var rows []*UsageSummary
	err := DB.Model(&UsageRecord{}).
		Select("tenant_id, count(*) as request_count, sum(prompt_tokens) as prompt_tokens, "+
			"sum(completion_tokens) as completion_tokens, sum(quota) as quota").
		Where("created_at >= ? AND created_at < ?", since, until).
		Group("tenant_id").
		Find(&rows).Error
	return rows, errors.Wrap(err, "summarize usage by tenant")
}
