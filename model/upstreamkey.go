package model

import (
	"time"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"
)

// UpstreamKey is one credential a Provider can authenticate with. A
// provider may hold several keys (key rotation, multiple contracts with the
// same vendor); internal/keymanager picks among a provider's enabled keys
// under a configurable strategy and internal/breaker disables individual
// keys that start failing without taking the whole provider down.
type UpstreamKey struct {
	Id        int64          `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	ProviderId int64 `json:"provider_id" gorm:"index;not null"`

	// EncryptedSecret stores the AES-256-GCM sealed output of
	// internal/secret.Box.Seal, never the plaintext key.
	EncryptedSecret string `json:"-" gorm:"type:text;not null"`

	Name   string `json:"name" gorm:"type:varchar(255)"`
	Weight int32  `json:"weight" gorm:"default:1"`
	Status int32  `json:"status" gorm:"default:1;index"`

	// ConsecutiveFailures and LastFailureAt back internal/breaker's
	// per-key trip decision alongside the rolling window kept in memory.
	ConsecutiveFailures int32      `json:"consecutive_failures" gorm:"default:0"`
	LastFailureAt       *time.Time `json:"last_failure_at"`
	LastUsedAt          *time.Time `json:"last_used_at"`

	// RequestsPerMinute, RequestsPerHour and RequestsPerDay feed
	// internal/quota's per-upstream-key track, so a shared credential
	// can't be pushed past what its vendor allows regardless of which
	// tenant is driving the traffic. Zero means no cap at that window.
	RequestsPerMinute int32 `json:"requests_per_minute" gorm:"default:0"`
	RequestsPerHour   int32 `json:"requests_per_hour" gorm:"default:0"`
	RequestsPerDay    int32 `json:"requests_per_day" gorm:"default:0"`
}

const (
	UpstreamKeyStatusEnabled      int32 = 1
	UpstreamKeyStatusDisabled     int32 = 2
	UpstreamKeyStatusAutoDisabled int32 = 3
)

func (UpstreamKey) TableName() string { return "upstream_keys" }

// ListEnabledKeysForProvider returns every enabled key belonging to
// providerId, for internal/keymanager's key selection.
func ListEnabledKeysForProvider(providerId int64) ([]*UpstreamKey, error) {
	var keys []*UpstreamKey
	if err := DB.Where("provider_id = ? AND status = ?", providerId, UpstreamKeyStatusEnabled).
		Find(&keys).Error; err != nil {
		return nil, errors.Wrap(err, "list enabled upstream keys")
	}
	return keys, nil
}

// RecordKeySuccess resets the failure streak and stamps last-used time.
func RecordKeySuccess(id int64) error {
	now := time.Now()
	return errors.Wrap(DB.Model(&UpstreamKey{}).Where("id = ?", id).Updates(map[string]any{
		"consecutive_failures": 0,
		"last_used_at":         &now,
	}).Error, "record key success")
}

// RecordKeyFailure increments the failure streak and stamps the failure time.
func RecordKeyFailure(id int64) error {
	now := time.Now()
	return errors.Wrap(DB.Model(&UpstreamKey{}).Where("id = ?", id).Updates(map[string]any{
		"consecutive_failures": gorm.Expr("consecutive_failures + 1"),
		"last_failure_at":      &now,
	}).Error, "record key failure")
}

// UpdateKeyStatus flips a key's status, used by internal/breaker.
func UpdateKeyStatus(id int64, status int32) error {
	return errors.Wrap(
		DB.Model(&UpstreamKey{}).Where("id = ?", id).Update("status", status).Error,
		"update upstream key status")
}
