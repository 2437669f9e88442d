// Package quota enforces two independent rolling-window tracks — per
// tenant key (ingress fairness) and per upstream key (supplier
// compliance) — each backed by fixed-interval, wall-clock-aligned
// minute/hour/day request counters plus a daily cost accumulator, layered
// on top of golang.org/x/time/rate burst smoothing for the tenant-key
// minute-level request and token rates.
package quota

import (
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"golang.org/x/time/rate"

	"github.com/gateway/multiapi/model"
)

// defaultRPM and defaultTPM apply when a tenant key doesn't override them.
const (
	defaultRPM = 60
	defaultTPM = 100_000
)

type limiterPair struct {
	requests *rate.Limiter
	tokens   *rate.Limiter
}

// Limiter enforces both required tracks: per-tenant-key (ingress
// fairness) and per-upstream-key (supplier compliance), keeping one
// limiter/track alive per key for the process lifetime.
type Limiter struct {
	mu           sync.Mutex
	rateLimiters map[int64]*limiterPair
	tenantTracks map[int64]*track
	keyTracks    map[int64]*track
}

// New constructs an empty Limiter.
func New() *Limiter {
	return &Limiter{
		rateLimiters: make(map[int64]*limiterPair),
		tenantTracks: make(map[int64]*track),
		keyTracks:    make(map[int64]*track),
	}
}

func (l *Limiter) pairFor(key *model.TenantKey) *limiterPair {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.rateLimiters[key.Id]
	if ok {
		return p
	}

	rpm := int(key.RequestsPerMinute)
	if rpm <= 0 {
		rpm = defaultRPM
	}
	tpm := int(key.TokensPerMinute)
	if tpm <= 0 {
		tpm = defaultTPM
	}

	p = &limiterPair{
		requests: rate.NewLimiter(rate.Limit(float64(rpm)/60), rpm),
		tokens:   rate.NewLimiter(rate.Limit(float64(tpm)/60), tpm),
	}
	l.rateLimiters[key.Id] = p
	return p
}

func (l *Limiter) tenantTrackFor(key *model.TenantKey) *track {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.tenantTracks[key.Id]
	if ok {
		return t
	}
	t = newTrack(key.RequestsPerMinute, key.RequestsPerHour, key.RequestsPerDay, key.DailyCostCap)
	l.tenantTracks[key.Id] = t
	return t
}

func (l *Limiter) keyTrackFor(key *model.UpstreamKey) *track {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.keyTracks[key.Id]
	if ok {
		return t
	}
	t = newTrack(key.RequestsPerMinute, key.RequestsPerHour, key.RequestsPerDay, 0)
	l.keyTracks[key.Id] = t
	return t
}

// ErrRateLimited is returned when a tenant key has exceeded its configured
// request or token burst rate.
var ErrRateLimited = errors.New("rate limited")

// ErrQuotaExhausted is returned when a tenant key has no prepaid quota left.
var ErrQuotaExhausted = errors.New("quota exhausted")

// Allow checks the per-tenant-key track: prepaid quota, minute-level burst
// smoothing, and the minute/hour/day/cost rolling counters, in that order.
// estimatedTokens should be a cheap upper bound (e.g. prompt tokens plus a
// fixed completion allowance) from the complexity analyzer; the token
// bucket itself is never reconciled, only the cost accumulator is, via
// RecordTenantCost once the upstream response's actual cost is known.
func (l *Limiter) Allow(key *model.TenantKey, estimatedTokens int) error {
	if !key.UnlimitedQuota && key.RemainQuota <= 0 {
		return ErrQuotaExhausted
	}

	p := l.pairFor(key)
	if !p.requests.Allow() {
		return ErrRateLimited
	}
	if !p.tokens.AllowN(time.Now(), estimatedTokens) {
		return ErrRateLimited
	}

	if qe := l.tenantTrackFor(key).checkAndIncrement(time.Now()); qe != nil {
		return qe
	}
	return nil
}

// AllowKey checks the per-upstream-key track's minute/hour/day request
// counters, independent of whichever tenant is making the call, so one
// tenant can't push a shared upstream credential past what its vendor
// allows.
func (l *Limiter) AllowKey(key *model.UpstreamKey) error {
	if qe := l.keyTrackFor(key).checkAndIncrement(time.Now()); qe != nil {
		return qe
	}
	return nil
}

// RecordTenantCost adds amount to the tenant key's daily cost accumulator.
// Cost is only known once the upstream response arrives, so this runs
// after the fact as the reconciliation step Allow's pre-check (on the
// complexity analyzer's estimate) can't perform itself. A key that Allow
// has never seen has no accumulator yet, and the amount is dropped.
func (l *Limiter) RecordTenantCost(tenantKeyId int64, amount int64) {
	l.mu.Lock()
	t, ok := l.tenantTracks[tenantKeyId]
	l.mu.Unlock()
	if !ok {
		return
	}
	t.cost.add(time.Now(), amount)
}

// RecordKeyCost adds amount to the upstream key's daily cost accumulator.
func (l *Limiter) RecordKeyCost(upstreamKeyId int64, amount int64) {
	l.mu.Lock()
	t, ok := l.keyTracks[upstreamKeyId]
	l.mu.Unlock()
	if !ok {
		return
	}
	t.cost.add(time.Now(), amount)
}
