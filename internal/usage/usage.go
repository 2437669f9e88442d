// Package usage records completed requests and keeps moving-window
// aggregates (minute, hour, day) per dimension for quota reconciliation,
// router statistics, and billing reports. Aggregates are updated in memory
// for speed and are only eventually consistent with the append-only
// model.UsageRecord sink, matching the bounded-delay guarantee a caller
// should expect from them.
package usage

import (
	"strconv"
	"sync"
	"time"

	"github.com/gateway/multiapi/internal/pricing"
	"github.com/gateway/multiapi/model"
)

// Completion is what internal/dispatch reports once a request terminates,
// success or billable failure alike.
type Completion struct {
	TenantID      string
	TenantKeyId   int64
	ProviderId    int64
	UpstreamKeyId int64

	RequestedModel string
	ActualModel    string

	PromptTokens     int64
	CompletionTokens int64
	CachedTokens     int64

	LatencyMs  int64
	Success    bool
	StatusCode int
	TraceID    string

	PriceTable pricing.Table
}

// windowKey identifies one (dimension, bucket) aggregate bucket.
type windowKey struct {
	dimension string
	bucket    int64
}

type bucket struct {
	requests         int64
	errors           int64
	promptTokens     int64
	completionTokens int64
	quota            int64
	latencySumMs     int64
}

// Engine records usage and maintains in-memory moving-window aggregates.
type Engine struct {
	mu      sync.Mutex
	minute  map[windowKey]*bucket
	hour    map[windowKey]*bucket
	day     map[windowKey]*bucket
}

// New builds an empty Engine.
func New() *Engine {
	return &Engine{
		minute: make(map[windowKey]*bucket),
		hour:   make(map[windowKey]*bucket),
		day:    make(map[windowKey]*bucket),
	}
}

// Record computes the request's quota cost, writes a UsageRecord to the
// append-only sink, and folds the completion into the minute/hour/day
// aggregates for every dimension (tenant, provider, model, key). It does not
// deduct the tenant key's quota; internal/dispatch calls model.ConsumeQuota
// for that.
func (e *Engine) Record(c Completion) error {
	cost := pricing.Cost(c.PriceTable, c.PromptTokens, c.CompletionTokens, c.CachedTokens)

	record := &model.UsageRecord{
		TenantID:         c.TenantID,
		TenantKeyId:      c.TenantKeyId,
		ProviderId:       c.ProviderId,
		UpstreamKeyId:    c.UpstreamKeyId,
		RequestedModel:   c.RequestedModel,
		ActualModel:      c.ActualModel,
		PromptTokens:     c.PromptTokens,
		CompletionTokens: c.CompletionTokens,
		CachedTokens:     c.CachedTokens,
		Quota:            cost,
		LatencyMs:        c.LatencyMs,
		Success:          c.Success,
		StatusCode:       c.StatusCode,
		TraceID:          c.TraceID,
	}
	if err := model.InsertUsageRecord(record); err != nil {
		return err
	}

	e.fold(c, cost)
	return nil
}

func (e *Engine) fold(c Completion, cost int64) {
	now := time.Now()
	dims := []string{
		"tenant:" + c.TenantID,
		"provider:" + strconv.FormatInt(c.ProviderId, 10),
		"model:" + c.ActualModel,
		"key:" + strconv.FormatInt(c.UpstreamKeyId, 10),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, dim := range dims {
		foldInto(e.minute, windowKey{dim, now.Truncate(time.Minute).Unix()}, c, cost)
		foldInto(e.hour, windowKey{dim, now.Truncate(time.Hour).Unix()}, c, cost)
		foldInto(e.day, windowKey{dim, now.Truncate(24 * time.Hour).Unix()}, c, cost)
	}
}

func foldInto(m map[windowKey]*bucket, k windowKey, c Completion, cost int64) {
	b, ok := m[k]
	if !ok {
		b = &bucket{}
		m[k] = b
	}
	b.requests++
	if !c.Success {
		b.errors++
	}
	b.promptTokens += c.PromptTokens
	b.completionTokens += c.CompletionTokens
	b.quota += cost
	b.latencySumMs += c.LatencyMs
}

// Snapshot is the read-side view of one dimension's current minute bucket,
// as returned by MinuteSnapshot.
type Snapshot struct {
	Requests     int64
	ErrorRate    float64
	P50LatencyMs float64
	EstCost      float64
}

// MinuteSnapshot returns the current minute's aggregate for dimension, or
// a zero Snapshot if nothing has been recorded yet this minute.
func (e *Engine) MinuteSnapshot(dimension string) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	k := windowKey{dimension, time.Now().Truncate(time.Minute).Unix()}
	b, ok := e.minute[k]
	if !ok || b.requests == 0 {
		return Snapshot{}
	}

	return Snapshot{
		Requests:     b.requests,
		ErrorRate:    float64(b.errors) / float64(b.requests),
		P50LatencyMs: float64(b.latencySumMs) / float64(b.requests),
		EstCost:      float64(b.quota) / float64(b.requests),
	}
}
