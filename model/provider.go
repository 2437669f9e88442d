package model

import (
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"

	"github.com/gateway/multiapi/relay/channeltype"
)

// Provider is an upstream account the gateway can route requests to: a
// vendor endpoint (OpenAI-compatible, Anthropic, Gemini, or some other
// family), a base URL, the model names it serves, and an optional rename
// table so a tenant-facing model name can differ from what the upstream
// expects.
type Provider struct {
	Id        int64          `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Name    string            `json:"name" gorm:"type:varchar(255);not null"`
	Family  channeltype.Family `json:"family" gorm:"not null"`
	BaseURL string            `json:"base_url" gorm:"type:varchar(255);not null"`

	// Models lists the canonical model names this provider serves, comma
	// separated, as the teacher's Channel.Models did.
	Models string `json:"models" gorm:"type:text"`

	// ModelMapping rewrites a tenant-facing model name to the name this
	// provider's API expects, JSON-encoded as map[string]string.
	ModelMapping string `json:"model_mapping" gorm:"type:text"`

	Priority int32 `json:"priority" gorm:"default:0"`
	Weight   int32 `json:"weight" gorm:"default:1"`

	Status int32 `json:"status" gorm:"default:1;index"`
}

const (
	ProviderStatusEnabled  int32 = 1
	ProviderStatusDisabled int32 = 2
	// ProviderStatusAutoDisabled is set by internal/breaker when a provider's
	// rolling success rate drops below config.MetricSuccessRateThreshold. It
	// is distinguished from ProviderStatusDisabled so an operator can tell a
	// manual disable apart from an automatic one in the control plane UI.
	ProviderStatusAutoDisabled int32 = 3
)

func (Provider) TableName() string { return "providers" }

// ModelList splits Models on commas, trimming empty entries.
func (p *Provider) ModelList() []string {
	return splitCSV(p.Models)
}

// GetProviderById loads a single provider by primary key.
func GetProviderById(id int64) (*Provider, error) {
	var p Provider
	if err := DB.First(&p, "id = ?", id).Error; err != nil {
		return nil, errors.Wrap(err, "get provider by id")
	}
	return &p, nil
}

// ListEnabledProvidersForModel returns every enabled provider that serves
// model, ordered by priority descending so callers can apply weighted
// selection within the top priority tier.
func ListEnabledProvidersForModel(model string) ([]*Provider, error) {
	var providers []*Provider
	if err := DB.Where("status = ?", ProviderStatusEnabled).
		Order("priority desc").
		Find(&providers).Error; err != nil {
		return nil, errors.Wrap(err, "list enabled providers")
	}

	filtered := providers[:0]
	for _, p := range providers {
		for _, m := range p.ModelList() {
			if m == model {
				filtered = append(filtered, p)
				break
			}
		}
	}
	return filtered, nil
}

// UpdateProviderStatus flips a provider's status, used by internal/breaker
// when it trips or resets.
func UpdateProviderStatus(id int64, status int32) error {
	return errors.Wrap(
		DB.Model(&Provider{}).Where("id = ?", id).Update("status", status).Error,
		"update provider status")
}

func splitCSV(s string) []string {
	var out []string
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field != "" {
			out = append(out, field)
		}
	}
	return out
}
