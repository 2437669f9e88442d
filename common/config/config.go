// Package config exposes package-level configuration derived from the
// process environment at init time, the ambient settings that are true for
// the whole process lifetime (bind addresses, timeouts, secrets root,
// default tuning). The per-tenant/per-provider configuration that can be
// hot-reloaded lives in internal/configstore as a versioned snapshot, not
// here; that store does not poll and rebuilds its snapshot from the
// database only when its Reload method is called.
package config

import (
	"strings"
	"time"

	"github.com/gateway/multiapi/common/env"
)

var (
	// GatewayHost binds the client-facing data-plane HTTP server (§6.1).
	GatewayHost = env.String("GATEWAY_HOST", "0.0.0.0")
	// GatewayPort binds the client-facing data-plane HTTP server (§6.1).
	GatewayPort = env.Int("GATEWAY_PORT", 3000)
	// AdminHost binds the operator-facing control-plane HTTP server (§6.2).
	AdminHost = env.String("ADMIN_HOST", "127.0.0.1")
	// AdminPort binds the operator-facing control-plane HTTP server (§6.2).
	AdminPort = env.Int("ADMIN_PORT", 3001)

	// SecretsKey is a hex-encoded 32-byte AES-256-GCM key used by
	// internal/secret to encrypt upstream provider keys at rest. Empty is
	// only acceptable in local/dev mode; a fresh key only needs to be
	// generated once per deployment and then kept out of version control.
	SecretsKey = env.String("SECRETS_KEY", "")

	// DefaultStrategy names the router strategy activated at boot
	// (cost_first | latency_first | quality_first | balanced).
	DefaultStrategy = env.String("DEFAULT_STRATEGY", "balanced")

	// CacheTTLChat sets the response-cache TTL. CacheTTLEmbed is parsed but not
	// read: serve builds one response cache, with CacheTTLChat, for every
	// cached request.
	CacheTTLChat  = time.Duration(env.Int("CACHE_TTL_CHAT", 300)) * time.Second
	CacheTTLEmbed = time.Duration(env.Int("CACHE_TTL_EMBED", 3600)) * time.Second
	// CacheTemperatureThreshold is the ceiling above which requests are never cached.
	CacheTemperatureThreshold = env.Float64("CACHE_TEMPERATURE_THRESHOLD", 0.1)
	// CacheMaxEntries bounds the response cache's entry count (otter W-TinyLFU eviction).
	CacheMaxEntries = env.Int("CACHE_MAX_ENTRIES", 50_000)
	// CacheSensitiveKeywordsRaw is a comma separated list of volatility markers
	// (e.g. "today,now,current time"). It is parsed but not read by any
	// package: internal/complexity decides cache bypass from its own built-in
	// marker list.
	CacheSensitiveKeywordsRaw = env.String("CACHE_SENSITIVE_KEYWORDS", "today,now,currently,right now,as of today")

	// BreakerWindowSeconds is the rolling window used to evaluate failure ratio.
	BreakerWindowSeconds = env.Int("BREAKER_WINDOW", 60)
	// BreakerFailRatio is the failure ratio over BreakerWindowSeconds that trips the breaker.
	BreakerFailRatio = env.Float64("BREAKER_FAIL_RATIO", 0.5)
	// BreakerSampleMin is the minimum sample count required before a breaker can open.
	BreakerSampleMin = env.Int("BREAKER_SAMPLE_MIN", 5)
	// BreakerCooldownSeconds is the initial open->half-open cooldown; doubles on repeated probe failure.
	BreakerCooldownSeconds = env.Int("BREAKER_COOLDOWN", 30)
	// BreakerMaxCooldownSeconds caps the exponential cooldown growth.
	BreakerMaxCooldownSeconds = env.Int("BREAKER_MAX_COOLDOWN", 600)

	// RetryMaxAttempts caps the number of upstream attempts for one client request.
	RetryMaxAttempts = env.Int("RETRY_MAX_ATTEMPTS", 3)
	// RetryBudgetMs caps the total wall-clock time spent retrying one client request.
	RetryBudgetMs = env.Int("RETRY_BUDGET_MS", 15_000)

	// StreamIdleTimeoutMs is parsed but not applied: no idle timer is set on
	// upstream streams.
	StreamIdleTimeoutMs = env.Int("STREAM_IDLE_TIMEOUT_MS", 30_000)
	// RequestDeadlineMs is parsed but not applied: the dispatch pipeline sets
	// no overall deadline on non-streaming requests.
	RequestDeadlineMs = env.Int("REQUEST_DEADLINE_MS", 120_000)
	// ControlPlaneDeadlineMs is parsed but not applied to control-plane handlers.
	ControlPlaneDeadlineMs = env.Int("CONTROL_PLANE_DEADLINE_MS", 10_000)

	// StreamMaxConcurrentPerTenant caps simultaneous open streams per tenant (C9).
	StreamMaxConcurrentPerTenant = env.Int("STREAM_MAX_CONCURRENT_PER_TENANT", 20)
	// StreamBroadcastQueueSize is parsed but not read by any package.
	StreamBroadcastQueueSize = env.Int("STREAM_BROADCAST_QUEUE_SIZE", 64)

	// RouterCandidateListMax is parsed but not read: internal/router bounds the
	// candidate list with its own DefaultMaxCandidates constant.
	RouterCandidateListMax = env.Int("ROUTER_CANDIDATE_LIST_MAX", 4)
	// RouterDecisionCacheTTLMs is parsed but not read: routing decisions are
	// not cached, and every request is routed afresh.
	RouterDecisionCacheTTLMs = env.Int("ROUTER_DECISION_CACHE_TTL_MS", 2_000)

	// SyncFrequencySeconds is read only by common.InitRedisClient, which
	// leaves Redis disabled when it is zero; internal/configstore does not poll.
	SyncFrequencySeconds = env.Int("SYNC_FREQUENCY", 10*60)

	// RedisConnString, when non-empty, makes serve connect a Redis client at
	// startup; the response cache and quota limiter keep their state in
	// process memory either way.
	RedisConnString = strings.TrimSpace(env.String("REDIS_CONN_STRING", ""))
	// RedisPassword authenticates the optional Redis connection.
	RedisPassword = env.String("REDIS_PASSWORD", "")
	// RedisMasterName selects Redis Sentinel/cluster mode when non-empty.
	RedisMasterName = env.String("REDIS_MASTER_NAME", "")

	// SQLDSN is the primary database DSN; empty means an embedded SQLite file is used.
	SQLDSN = strings.TrimSpace(env.String("SQL_DSN", "gateway.db"))

	// DebugEnabled toggles verbose structured logging.
	DebugEnabled = env.Bool("DEBUG", false)

	// ExportUnmaskSecrets is parsed but not read: the control plane has no
	// /api-keys export route, so upstream secrets are never exported.
	ExportUnmaskSecrets = env.Bool("EXPORT_UNMASK_SECRETS", false)

	// AdminAPIKey authenticates control-plane requests via the x-admin-key header.
	AdminAPIKey = env.String("ADMIN_API_KEY", "")

	// TracingEnabled turns on OpenTelemetry span export for the dispatch pipeline.
	TracingEnabled = env.Bool("TRACING_ENABLED", false)
	// OTLPEndpoint is the OTLP/gRPC collector address used when TracingEnabled is set.
	OTLPEndpoint = env.String("OTLP_ENDPOINT", "localhost:4317")

	// SystemName is used as the display name in operator alert emails.
	SystemName = env.String("SYSTEM_NAME", "AI Gateway")
	// RootUserEmail receives breaker and price-change alerts when no message
	// pusher webhook is configured.
	RootUserEmail = env.String("ROOT_USER_EMAIL", "")

	// SMTPServer/SMTPPort/SMTPAccount/SMTPToken/SMTPFrom configure the
	// fallback email alert channel used by internal/alert.
	SMTPServer           = env.String("SMTP_SERVER", "")
	SMTPPort             = env.Int("SMTP_PORT", 587)
	SMTPAccount          = env.String("SMTP_ACCOUNT", "")
	SMTPToken            = env.String("SMTP_TOKEN", "")
	SMTPFrom             = env.String("SMTP_FROM", "")
	ForceEmailTLSVerify  = env.Bool("FORCE_EMAIL_TLS_VERIFY", true)

	// MessagePusherAddress/MessagePusherToken configure an optional webhook
	// alert channel tried before falling back to email.
	MessagePusherAddress = env.String("MESSAGE_PUSHER_ADDRESS", "")
	MessagePusherToken   = env.String("MESSAGE_PUSHER_TOKEN", "")

	// MetricQueueSize/MetricSuccessRateThreshold govern the rolling sample
	// window internal/breaker uses to decide whether to disable a provider key.
	MetricQueueSize            = env.Int("METRIC_QUEUE_SIZE", 10)
	MetricSuccessRateThreshold = env.Float64("METRIC_SUCCESS_RATE_THRESHOLD", 0.8)

	// MaxInlineImageSizeMB bounds images fetched/generated for vision requests.
	MaxInlineImageSizeMB = env.Int("MAX_INLINE_IMAGE_SIZE_MB", 30)

)

// CacheSensitiveKeywords splits CacheSensitiveKeywordsRaw into a normalized
// slice. No package calls it.
func CacheSensitiveKeywords() []string {
	raw := strings.Split(CacheSensitiveKeywordsRaw, ",")
	out := make([]string, 0, len(raw))
	for _, kw := range raw {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
