// Package breaker implements a per-(provider,model) circuit breaker with
// the classic closed/open/half-open state machine, plus a rolling
// success/failure window per upstream key that auto-disables a key (and,
// once every key on a provider is disabled, the provider itself) when its
// success rate drops too low. It replaces the polling-based channel-disable
// logic older revisions of this gateway ran from a cron job with a decision
// made inline on the request's own goroutine.
package breaker

import (
	"strconv"
	"sync"
	"time"

	"github.com/Laisky/zap"

	"github.com/gateway/multiapi/common/config"
	"github.com/gateway/multiapi/common/logger"
	"github.com/gateway/multiapi/internal/alert"
	"github.com/gateway/multiapi/model"
)

// State is one of the three circuit-breaker states for a (provider, model) pair.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Config bounds the breaker's trip/probe behavior.
type Config struct {
	// Window is how far back failure ratio is computed over.
	Window time.Duration
	// FailureRatio trips the breaker once exceeded.
	FailureRatio float64
	// MinSamples is the minimum sample count in Window before a trip is
	// considered, so a single unlucky request can't open the breaker.
	MinSamples int
	// Cooldown is the initial open→half-open wait; it doubles on every
	// failed probe up to CooldownCap.
	Cooldown    time.Duration
	CooldownCap time.Duration
}

// DefaultConfig matches common defaults for this kind of breaker: a 30s
// window, 50% failure ratio, 5 minimum samples, 5s initial cooldown capped at 2m.
var DefaultConfig = Config{
	Window:       30 * time.Second,
	FailureRatio: 0.5,
	MinSamples:   5,
	Cooldown:     5 * time.Second,
	CooldownCap:  2 * time.Minute,
}

type sample struct {
	at      time.Time
	failure bool
}

// circuit is the breaker state for one (provider, model) pair.
type circuit struct {
	mu          sync.Mutex
	state       State
	samples     []sample
	openedAt    time.Time
	nextProbeAt time.Time
	cooldown    time.Duration
	probing     bool
}

// Breaker owns one circuit per (provider, model) pair and one rolling
// outcome window per upstream key.
type Breaker struct {
	cfg Config

	mu       sync.Mutex
	circuits map[string]*circuit

	keyMu sync.Mutex
	keys  map[int64]*keyWindow
}

// New constructs a Breaker using cfg, which should ordinarily be DefaultConfig.
func New(cfg Config) *Breaker {
	return &Breaker{
		cfg:      cfg,
		circuits: make(map[string]*circuit),
		keys:     make(map[int64]*keyWindow),
	}
}

func circuitKey(providerId int64, modelName string) string {
	return modelName + "@" + strconv.FormatInt(providerId, 10)
}

func (b *Breaker) circuitFor(providerId int64, modelName string) *circuit {
	key := circuitKey(providerId, modelName)

	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		c = &circuit{cooldown: b.cfg.Cooldown}
		b.circuits[key] = c
	}
	return c
}

// Allow reports whether a request to (providerId, modelName) may proceed,
// and whether this call is a half-open probe. Only one probe is let
// through per cooldown window; concurrent callers during an open window
// are rejected.
func (b *Breaker) Allow(providerId int64, modelName string) (allowed bool, isProbe bool) {
	c := b.circuitFor(providerId, modelName)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Closed:
		return true, false
	case Open:
		if time.Now().Before(c.nextProbeAt) {
			return false, false
		}
		c.state = HalfOpen
		c.probing = true
		return true, true
	case HalfOpen:
		if c.probing {
			return false, false
		}
		c.probing = true
		return true, true
	default:
		return true, false
	}
}

// isTransientFailure reports whether err/statusCode counts toward the
// breaker's failure ratio: network errors, timeouts, and upstream 5xx.
// Client errors (4xx) never count.
func isTransientFailure(statusCode int, err error) bool {
	if err != nil {
		return true
	}
	return statusCode >= 500
}

// RecordRequest records the outcome of a request made to (providerId,
// modelName). Only transient failures (network error, timeout, upstream
// 5xx) count against the failure ratio; upstream 4xx never trips the breaker.
func (b *Breaker) RecordRequest(providerId int64, modelName string, statusCode int, err error) {
	c := b.circuitFor(providerId, modelName)
	failure := isTransientFailure(statusCode, err)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == HalfOpen {
		c.probing = false
		if failure {
			c.state = Open
			c.cooldown *= 2
			if c.cooldown > b.cfg.CooldownCap {
				c.cooldown = b.cfg.CooldownCap
			}
			c.openedAt = time.Now()
			c.nextProbeAt = c.openedAt.Add(c.cooldown)
			return
		}
		c.state = Closed
		c.cooldown = b.cfg.Cooldown
		c.samples = nil
		return
	}

	now := time.Now()
	c.samples = append(c.samples, sample{at: now, failure: failure})
	c.samples = pruneOlderThan(c.samples, now.Add(-b.cfg.Window))

	if c.state == Open {
		return
	}

	if len(c.samples) < b.cfg.MinSamples {
		return
	}

	var failures int
	for _, s := range c.samples {
		if s.failure {
			failures++
		}
	}
	if float64(failures)/float64(len(c.samples)) > b.cfg.FailureRatio {
		c.state = Open
		c.openedAt = now
		c.nextProbeAt = now.Add(c.cooldown)
	}
}

func pruneOlderThan(samples []sample, cutoff time.Time) []sample {
	i := 0
	for i < len(samples) && samples[i].at.Before(cutoff) {
		i++
	}
	return samples[i:]
}

// StateOf returns the current breaker state for (providerId, modelName),
// for the control-plane inspection endpoint.
func (b *Breaker) StateOf(providerId int64, modelName string) State {
	c := b.circuitFor(providerId, modelName)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// keyWindow is a fixed-size ring buffer of pass/fail outcomes for one
// upstream key, used to auto-disable a key whose success rate degrades
// independent of the per-model circuit above.
type keyWindow struct {
	mu     sync.Mutex
	slots  []bool
	filled bool
	pos    int
}

func newKeyWindow(size int) *keyWindow {
	if size <= 0 {
		size = 10
	}
	return &keyWindow{slots: make([]bool, size)}
}

func (w *keyWindow) record(success bool) (successRate float64, full bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.slots[w.pos] = success
	w.pos = (w.pos + 1) % len(w.slots)
	if w.pos == 0 {
		w.filled = true
	}

	n := len(w.slots)
	if !w.filled {
		n = w.pos
	}
	if n == 0 {
		return 1, false
	}

	var ok int
	for i := 0; i < n; i++ {
		if w.slots[i] {
			ok++
		}
	}
	return float64(ok) / float64(n), w.filled
}

func (b *Breaker) keyWindowFor(keyId int64) *keyWindow {
	b.keyMu.Lock()
	defer b.keyMu.Unlock()

	w, ok := b.keys[keyId]
	if !ok {
		w = newKeyWindow(config.MetricQueueSize)
		b.keys[keyId] = w
	}
	return w
}

// RecordKeyOutcome records the result of one upstream call for keyId and,
// if the rolling success rate has dropped below threshold, disables the
// key and alerts. It logs and swallows any model-layer error: a failed
// status write should never mask the original request error.
func (b *Breaker) RecordKeyOutcome(providerId, keyId int64, providerName string, success bool) {
	w := b.keyWindowFor(keyId)
	rate, full := w.record(success)

	if success {
		if err := model.RecordKeySuccess(keyId); err != nil {
			logger.Logger.Warn("record key success", zap.Error(err))
		}
		return
	}

	if err := model.RecordKeyFailure(keyId); err != nil {
		logger.Logger.Warn("record key failure", zap.Error(err))
	}

	if !full || rate >= config.MetricSuccessRateThreshold {
		return
	}

	if err := model.UpdateKeyStatus(keyId, model.UpstreamKeyStatusAutoDisabled); err != nil {
		logger.Logger.Error("auto-disable upstream key", zap.Int64("key_id", keyId), zap.Error(err))
		return
	}
	logger.Logger.Warn("upstream key auto-disabled",
		zap.Int64("key_id", keyId), zap.Float64("success_rate", rate))
	alert.KeyTripped(providerName, keyId, "rolling success rate below threshold")

	b.maybeDisableProvider(providerId, providerName)
}

func (b *Breaker) maybeDisableProvider(providerId int64, providerName string) {
	keys, err := model.ListEnabledKeysForProvider(providerId)
	if err != nil {
		logger.Logger.Warn("list enabled keys for provider", zap.Error(err))
		return
	}
	if len(keys) > 0 {
		return
	}

	if err := model.UpdateProviderStatus(providerId, model.ProviderStatusAutoDisabled); err != nil {
		logger.Logger.Error("auto-disable provider", zap.Int64("provider_id", providerId), zap.Error(err))
		return
	}
	logger.Logger.Warn("provider auto-disabled, no enabled keys remain", zap.Int64("provider_id", providerId))
	alert.ProviderTripped(providerName, "all upstream keys disabled")
}

// ResetKey re-enables a key's rolling window, used by the control-plane
// recovery endpoint after an operator fixes the underlying issue.
func (b *Breaker) ResetKey(keyId int64) {
	b.keyMu.Lock()
	delete(b.keys, keyId)
	b.keyMu.Unlock()
}
