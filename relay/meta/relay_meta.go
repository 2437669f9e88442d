// Package meta carries the per-attempt dispatch context an adaptor needs to
// build and send one upstream request: which provider, which upstream key,
// which model, and whether the client asked for a stream.
package meta

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gateway/multiapi/common/ctxkey"
	"github.com/gateway/multiapi/relay/channeltype"
	"github.com/gateway/multiapi/relay/relaymode"
)

// Meta describes one upstream attempt. The router/dispatch pipeline builds a
// fresh Meta for every candidate it tries, rather than mutating a single
// instance across retries, so a failed attempt can never leak its state into
// the next candidate.
type Meta struct {
	Mode   int
	Family channeltype.Family

	ProviderID     int64
	ProviderName   string
	UpstreamKeyID  int64
	TenantKeyID    int64
	TenantID       string
	ModelMapping   map[string]string

	BaseURL string
	APIKey  string

	IsStream bool

	// OriginModelName is the model name the client asked for.
	OriginModelName string
	// ActualModelName is the model name after provider-side mapping.
	ActualModelName string

	RequestURLPath string
	PromptTokens   int
	StartTime      time.Time
}

// GetMappedModelName applies a provider's model-name mapping table, falling
// back to the original name when no mapping entry exists.
func GetMappedModelName(modelName string, mapping map[string]string) string {
	if mapping == nil {
		return modelName
	}
	if mapped, ok := mapping[modelName]; ok && mapped != "" {
		return mapped
	}
	return modelName
}

// New builds a Meta for one dispatch attempt against a single provider.
func New(c *gin.Context, family channeltype.Family, originModel string, modelMapping map[string]string) *Meta {
	m := &Meta{
		Mode:            relaymode.GetByPath(c.Request.URL.Path),
		Family:          family,
		ModelMapping:    modelMapping,
		OriginModelName: originModel,
		RequestURLPath:  c.Request.URL.String(),
		StartTime:       time.Now(),
	}
	m.EnsureActualModelName(originModel)
	return m
}

// Set2Context stashes the active Meta so downstream dispatch stages in the
// same attempt can retrieve it without re-threading it through every call.
func Set2Context(c *gin.Context, m *Meta) {
	c.Set(ctxkey.Meta, m)
}

// GetByContext retrieves the Meta stashed by Set2Context, or nil if none was set.
func GetByContext(c *gin.Context) *Meta {
	v, ok := c.Get(ctxkey.Meta)
	if !ok {
		return nil
	}
	m, _ := v.(*Meta)
	return m
}

// EnsureActualModelName guarantees ActualModelName and OriginModelName are
// both populated once a request payload's model field becomes known; it
// leaves an already-set ActualModelName unchanged.
func (m *Meta) EnsureActualModelName(fallback string) {
	if m == nil {
		return
	}
	fallback = strings.TrimSpace(fallback)
	if fallback == "" {
		return
	}
	if strings.TrimSpace(m.OriginModelName) == "" {
		m.OriginModelName = fallback
	}
	if strings.TrimSpace(m.ActualModelName) != "" {
		return
	}
	mapped := GetMappedModelName(fallback, m.ModelMapping)
	if strings.TrimSpace(mapped) == "" {
		mapped = fallback
	}
	m.ActualModelName = mapped
}
