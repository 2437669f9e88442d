package model

import (
	"time"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"
)

// TenantKey is a client-facing API key, replacing the teacher's combination
// of User and Token: the gateway has no user accounts of its own, only
// tenants identified by the key they present in the Authorization header.
type TenantKey struct {
	Id        int64          `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	TenantID string `json:"tenant_id" gorm:"type:varchar(255);index;not null"`
	Name     string `json:"name" gorm:"type:varchar(255)"`

	// KeyHash is sha256(plaintext key), never the plaintext itself: lookups
	// hash the presented key and compare against this column.
	KeyHash string `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`

	Status int32 `json:"status" gorm:"default:1;index"`

	// AllowedModels, comma separated, empty means all models allowed.
	AllowedModels string `json:"allowed_models" gorm:"type:text"`

	UnlimitedQuota bool  `json:"unlimited_quota" gorm:"default:false"`
	RemainQuota    int64 `json:"remain_quota" gorm:"default:0"`
	UsedQuota      int64 `json:"used_quota" gorm:"default:0"`

	// RequestsPerMinute and TokensPerMinute feed internal/quota's
	// golang.org/x/time/rate limiters; zero means use the tenant-wide default.
	RequestsPerMinute int32 `json:"requests_per_minute" gorm:"default:0"`
	TokensPerMinute   int32 `json:"tokens_per_minute" gorm:"default:0"`

	// RequestsPerHour and RequestsPerDay back internal/quota's wider
	// rolling-window counters; DailyCostCap bounds the daily cost
	// accumulator in the same unit internal/pricing.Cost reports in. Zero
	// in any of the three means no cap at that window.
	RequestsPerHour int32 `json:"requests_per_hour" gorm:"default:0"`
	RequestsPerDay  int32 `json:"requests_per_day" gorm:"default:0"`
	DailyCostCap    int64 `json:"daily_cost_cap" gorm:"default:0"`

	// AllowedSubnets, comma separated CIDRs, empty means any source IP.
	AllowedSubnets string `json:"allowed_subnets" gorm:"type:text"`

	ExpiresAt *time.Time `json:"expires_at"`
}

const (
	TenantKeyStatusEnabled  int32 = 1
	TenantKeyStatusDisabled int32 = 2
	TenantKeyStatusExpired  int32 = 3
)

func (TenantKey) TableName() string { return "tenant_keys" }

// ModelList splits AllowedModels, empty slice means unrestricted.
func (t *TenantKey) ModelList() []string {
	return splitCSV(t.AllowedModels)
}

// IsModelAllowed reports whether model may be used by this key.
func (t *TenantKey) IsModelAllowed(model string) bool {
	allowed := t.ModelList()
	if len(allowed) == 0 {
		return true
	}
	for _, m := range allowed {
		if m == model {
			return true
		}
	}
	return false
}

// GetTenantKeyByHash loads a key by its sha256 hash, the hot path hit on
// every inbound request.
func GetTenantKeyByHash(hash string) (*TenantKey, error) {
	var k TenantKey
	if err := DB.Where("key_hash = ?", hash).First(&k).Error; err != nil {
		return nil, errors.Wrap(err, "get tenant key by hash")
	}
	return &k, nil
}

// ConsumeQuota deducts amount from RemainQuota and adds it to UsedQuota
// atomically, used after a request's final cost is known. Unlimited keys
// are only tracked for UsedQuota, never decremented.
func ConsumeQuota(id int64, amount int64, unlimited bool) error {
	updates := map[string]any{"used_quota": gorm.Expr("used_quota + ?", amount)}
	if !unlimited {
		updates["remain_quota"] = gorm.Expr("remain_quota - ?", amount)
	}
	return errors.Wrap(
		DB.Model(&TenantKey{}).Where("id = ?", id).Updates(updates).Error,
		"consume quota")
}

// ListTenantKeys returns every tenant key, newest first.
func ListTenantKeys() ([]*TenantKey, error) {
	var keys []*TenantKey
	if err := DB.Order("id desc").Find(&keys).Error; err != nil {
		return nil, errors.Wrap(err, "list tenant keys")
	}
	return keys, nil
}

// SetTenantKeyStatus flips status (enabled/disabled) for a tenant key.
func SetTenantKeyStatus(id int64, status int32) error {
	return errors.Wrap(
		DB.Model(&TenantKey{}).Where("id = ?", id).Update("status", status).Error,
		"set tenant key status")
}

// DeleteTenantKey soft-deletes a tenant key, revoking it immediately since
// GetTenantKeyByHash only ever looks up non-deleted rows.
func DeleteTenantKey(id int64) error {
	return errors.Wrap(
		DB.Delete(&TenantKey{}, id).Error,
		"delete tenant key")
}
