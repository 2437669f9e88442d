// Package dispatch wires the full request pipeline together: complexity
// analysis, quota check, cache lookup, routing, provider dispatch with
// circuit-breaker and retry, and usage accounting. The analyze, quota, cache
// and route stages each open an OpenTelemetry span via
// common/tracing.StartStage so the pipeline shows up as one span tree per
// request.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/gateway/multiapi/common/config"
	"github.com/gateway/multiapi/common/helper"
	"github.com/gateway/multiapi/common/tracing"
	"github.com/gateway/multiapi/internal/breaker"
	"github.com/gateway/multiapi/internal/cache"
	"github.com/gateway/multiapi/internal/canonical"
	"github.com/gateway/multiapi/internal/complexity"
	"github.com/gateway/multiapi/internal/configstore"
	"github.com/gateway/multiapi/internal/keymanager"
	"github.com/gateway/multiapi/internal/pricing"
	"github.com/gateway/multiapi/internal/quota"
	"github.com/gateway/multiapi/internal/router"
	"github.com/gateway/multiapi/internal/streaminghub"
	"github.com/gateway/multiapi/internal/usage"
	"github.com/gateway/multiapi/model"
	"github.com/gateway/multiapi/relay/adaptor"
	"github.com/gateway/multiapi/relay/meta"
	relaymodel "github.com/gateway/multiapi/relay/model"
)

// MaxRetryAttempts caps total attempts across candidates for a single request
// when config.RetryMaxAttempts is not positive.
const MaxRetryAttempts = 3

// Response headers every data-plane reply carries, set as early as possible
// so they land on the wire even though the adaptor itself streams the body
// straight to c.Writer.
const (
	HeaderProvider    = "x-ai-provider"
	HeaderModel       = "x-ai-model"
	HeaderCacheStatus = "x-cache-status"
)

const (
	CacheStatusHit    = "HIT"
	CacheStatusMiss   = "MISS"
	CacheStatusBypass = "BYPASS"
)

// Pipeline is the assembled set of collaborators a dispatched request flows through.
type Pipeline struct {
	Config     *configstore.Store
	Quota      *quota.Limiter
	Cache      *cache.Cache
	CacheTheta float64
	Router     *router.Router
	Breaker    *breaker.Breaker
	Keys       *keymanager.Manager
	Usage      *usage.Engine
	// Streams is optional; when set, every streaming request is registered
	// with the hub for the duration of the upstream call so the control
	// plane's stream listing/force-close surface reflects live traffic and
	// the per-tenant concurrent-stream cap is actually enforced.
	Streams *streaminghub.Hub
}

// Outcome is what the HTTP handler needs to write a response.
type Outcome struct {
	StatusCode   int
	Body         []byte
	ContentType  string
	CacheHit     bool
	ProviderName string
	ActualModel  string
	Err          error
}

// Dispatch runs one canonical request through the full pipeline.
func (p *Pipeline) Dispatch(c *gin.Context, tenantKey *model.TenantKey, req *canonical.Request) Outcome {
	ctx := c.Request.Context()
	_, span := tracing.StartStage(ctx, "analyze")
	profile := complexity.Analyze(req)
	span.End()

	_, span = tracing.StartStage(ctx, "quota")
	if err := p.Quota.Allow(tenantKey, profile.EstimatedInputTokens+estimateCompletionAllowance(req)); err != nil {
		span.End()
		return Outcome{StatusCode: 429, Err: err}
	}
	span.End()

	eligible := cache.Eligible(req, temperatureOf(req), p.CacheTheta, profile.Sensitive)
	var fingerprint string
	if eligible && p.Cache != nil {
		fingerprint = cache.Fingerprint(req)
		_, span = tracing.StartStage(ctx, "cache")
		entry, hit, err := p.Cache.Fetch(fingerprint, func() (cache.Entry, error) {
			c.Writer.Header().Set(HeaderCacheStatus, CacheStatusMiss)
			capture := newCaptureWriter(c.Writer)
			c.Writer = capture
			e, err := p.routeAndCall(ctx, c, tenantKey, req, profile)
			if err != nil {
				return cache.Entry{}, err
			}
			e.Body = capture.Bytes()
			e.ContentType = capture.Header().Get("Content-Type")
			e.StatusCode = capture.Status()
			return e, nil
		})
		span.End()
		if err != nil {
			return Outcome{StatusCode: 502, Err: err}
		}
		if hit {
			c.Writer.Header().Set(HeaderCacheStatus, CacheStatusHit)
			c.Writer.Header().Set(HeaderProvider, entry.ProviderName)
			c.Writer.Header().Set(HeaderModel, entry.ActualModel)
			c.Writer.Header().Set("Content-Type", entry.ContentType)
			c.Writer.WriteHeader(entry.StatusCode)
			_, _ = c.Writer.Write(entry.Body)
		}
		return Outcome{
			StatusCode:   entry.StatusCode,
			Body:         entry.Body,
			ContentType:  entry.ContentType,
			CacheHit:     hit,
			ProviderName: entry.ProviderName,
			ActualModel:  entry.ActualModel,
		}
	}

	c.Writer.Header().Set(HeaderCacheStatus, CacheStatusBypass)
	entry, err := p.routeAndCall(ctx, c, tenantKey, req, profile)
	if err != nil {
		return Outcome{StatusCode: 502, Err: err}
	}
	return Outcome{
		StatusCode:   entry.StatusCode,
		Body:         entry.Body,
		ProviderName: entry.ProviderName,
		ActualModel:  entry.ActualModel,
	}
}

func estimateCompletionAllowance(req *canonical.Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return 512
}

func temperatureOf(req *canonical.Request) float64 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	return 0
}

// routeAndCall routes req to an ordered candidate list and tries each in
// turn, retrying on transient failure only (network error, timeout, upstream
// 5xx; an upstream 4xx is returned at once). Attempts are capped by
// config.RetryMaxAttempts (MaxRetryAttempts when that is not positive), and
// no new attempt starts once config.RetryBudgetMs has elapsed since the first.
func (p *Pipeline) routeAndCall(ctx context.Context, c *gin.Context, tenantKey *model.TenantKey, req *canonical.Request, profile *complexity.Profile) (cache.Entry, error) {
	snap := p.Config.Load()

	providers, err := model.ListEnabledProvidersForModel(req.Model)
	if err != nil {
		return cache.Entry{}, errors.Wrap(err, "list providers")
	}

	ctx, span := tracing.StartStage(ctx, "route")
	stats := router.Stats{} // empty: p.Usage aggregates are not passed to the router, so candidates keep the providers' priority order
	candidates := p.Router.Route(providers, req.Model, router.Preferences{}, snap.Strategy, snap.Weights, stats)
	span.End()

	if len(candidates) == 0 {
		return cache.Entry{}, errors.New("no eligible provider for model")
	}

	maxAttempts := config.RetryMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = MaxRetryAttempts
	}
	budgetEnd := time.Now().Add(time.Duration(config.RetryBudgetMs) * time.Millisecond)

	var lastErr error
	attempts := 0
	for _, cand := range candidates {
		if attempts >= maxAttempts || (attempts > 0 && config.RetryBudgetMs > 0 && time.Now().After(budgetEnd)) {
			break
		}
		attempts++

		allowed, _ := p.Breaker.Allow(cand.Provider.Id, req.Model)
		if !allowed {
			continue
		}

		entry, statusCode, callErr := p.callOne(ctx, c, tenantKey, req, cand.Provider, profile, snap.KeyStrategy)
		transient := statusCode >= 500 || (callErr != nil && statusCode < 400)
		var breakerErr error
		if transient {
			breakerErr = boolToErr(transient, callErr)
		}
		p.Breaker.RecordRequest(cand.Provider.Id, req.Model, statusCode, breakerErr)

		if callErr == nil && statusCode < 500 {
			return entry, nil
		}
		lastErr = callErr
		if !transient {
			return cache.Entry{}, callErr
		}
	}

	if lastErr == nil {
		lastErr = errors.New("all candidates exhausted")
	}
	return cache.Entry{}, lastErr
}

func boolToErr(transient bool, err error) error {
	if err != nil {
		return err
	}
	if transient {
		return errors.New("upstream 5xx")
	}
	return nil
}

// callOne performs one attempt against a single provider: selects an
// upstream key under keyStrategy, builds the adaptor, converts the
// request, sends it, and records usage.
func (p *Pipeline) callOne(ctx context.Context, c *gin.Context, tenantKey *model.TenantKey, req *canonical.Request, provider *model.Provider, profile *complexity.Profile, keyStrategy keymanager.Strategy) (cache.Entry, int, error) {
	selected, err := p.Keys.Select(provider.Id, keymanager.Permissions{}, keyStrategy)
	if err != nil {
		return cache.Entry{}, 0, err
	}

	if err := p.Quota.AllowKey(selected.UpstreamKey); err != nil {
		return cache.Entry{}, 0, err
	}

	var stream *streaminghub.Stream
	if req.Stream && p.Streams != nil {
		var streamCtx context.Context
		stream, streamCtx, err = p.Streams.Open(ctx, tenantKey.TenantID)
		if err != nil {
			return cache.Entry{}, 0, err
		}
		defer p.Streams.Close(stream.ID)

		c.Writer = newStreamActivityWriter(c.Writer, stream)
		c.Request = c.Request.WithContext(streamCtx)
	}

	m := meta.New(c, provider.Family, req.Model, parseModelMapping(provider.ModelMapping))
	m.ProviderID = provider.Id
	m.ProviderName = provider.Name
	m.UpstreamKeyID = selected.KeyId
	m.TenantKeyID = tenantKey.Id
	m.TenantID = tenantKey.TenantID
	m.BaseURL = provider.BaseURL
	m.APIKey = selected.Secret.Reveal()
	m.IsStream = req.Stream

	a := adaptor.ForFamily(provider.Family)
	a.Init(m)

	body, err := convertBody(c, a, req, m)
	if err != nil {
		return cache.Entry{}, 0, err
	}

	c.Writer.Header().Set(HeaderProvider, provider.Name)
	c.Writer.Header().Set(HeaderModel, m.ActualModelName)

	start := time.Now()
	resp, err := adaptor.DoRequestHelper(a, c, m, bytes.NewReader(body))
	if err != nil {
		p.Breaker.RecordKeyOutcome(provider.Id, selected.KeyId, provider.Name, false)
		return cache.Entry{}, 0, err
	}
	defer resp.Body.Close()

	respUsage, apiErr := a.DoResponse(c, resp, m)
	latency := helper.CalcElapsedTime(start)

	statusCode := resp.StatusCode
	success := apiErr == nil && statusCode < 400
	p.Breaker.RecordKeyOutcome(provider.Id, selected.KeyId, provider.Name, success)

	table, priceErr := pricing.Resolve(a, m.ActualModelName)
	if priceErr != nil {
		table = pricing.Table{Ratio: a.GetModelRatio(m.ActualModelName), CompletionRatio: a.GetCompletionRatio(m.ActualModelName)}
	}

	var promptTokens, completionTokens, cachedTokens int64
	if respUsage != nil {
		promptTokens = int64(respUsage.PromptTokens)
		completionTokens = int64(respUsage.CompletionTokens)
		if respUsage.PromptTokensDetails != nil {
			cachedTokens = int64(respUsage.PromptTokensDetails.CachedTokens)
		}
	}

	if err := p.Usage.Record(usage.Completion{
		TenantID:         tenantKey.TenantID,
		TenantKeyId:      tenantKey.Id,
		ProviderId:       provider.Id,
		UpstreamKeyId:    selected.KeyId,
		RequestedModel:   req.Model,
		ActualModel:      m.ActualModelName,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		CachedTokens:     cachedTokens,
		LatencyMs:        latency,
		Success:          success,
		StatusCode:       statusCode,
		TraceID:          tracing.GetTraceIDFromContext(ctx),
		PriceTable:       table,
	}); err != nil {
		return cache.Entry{}, statusCode, err
	}

	if !success {
		var apiMsg string
		if apiErr != nil {
			apiMsg = apiErr.Message
		}
		return cache.Entry{}, statusCode, errors.New(apiMsg)
	}

	cost := pricing.Cost(table, promptTokens, completionTokens, cachedTokens)
	if err := model.ConsumeQuota(tenantKey.Id, cost, tenantKey.UnlimitedQuota); err != nil {
		gmw.GetLogger(c).Error("consume quota after successful dispatch, remain/used quota may now understate true spend",
			zap.Int64("tenant_key_id", tenantKey.Id), zap.Int64("cost", cost), zap.Error(err))
	}
	p.Quota.RecordTenantCost(tenantKey.Id, cost)
	p.Quota.RecordKeyCost(selected.KeyId, cost)

	return cache.Entry{
		StatusCode:   statusCode,
		OriginalCost: cost,
		ProviderName: provider.Name,
		ActualModel:  m.ActualModelName,
	}, statusCode, nil
}

func convertBody(c *gin.Context, a adaptor.Adaptor, req *canonical.Request, m *meta.Meta) ([]byte, error) {
	switch req.Wire {
	case "claude":
		claudeReq, _ := req.Raw.(*relaymodel.ClaudeRequest)
		if claudeReq == nil {
			claudeReq = &relaymodel.ClaudeRequest{Model: req.Model, Messages: req.Messages, MaxTokens: req.MaxTokens, Stream: req.Stream}
		}
		converted, err := a.ConvertClaudeRequest(c, claudeReq)
		if err != nil {
			return nil, err
		}
		return json.Marshal(converted)
	default:
		openaiReq, _ := req.Raw.(*relaymodel.GeneralOpenAIRequest)
		if openaiReq == nil {
			openaiReq = &relaymodel.GeneralOpenAIRequest{Model: req.Model, Messages: req.Messages, MaxTokens: req.MaxTokens, Stream: req.Stream, Temperature: req.Temperature}
		}
		converted, err := a.ConvertRequest(c, m.Mode, openaiReq)
		if err != nil {
			return nil, err
		}
		return json.Marshal(converted)
	}
}

func parseModelMapping(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var mapping map[string]string
	if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
		return nil
	}
	return mapping
}
