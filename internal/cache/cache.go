// Package cache maps a normalized request fingerprint to a stored response,
// backed by an otter W-TinyLFU cache, with golang.org/x/sync/singleflight
// guaranteeing at most one concurrent upstream call per fingerprint:
// concurrent callers with the same fingerprint block on a single shared
// computation and all receive its result, success or failure alike.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/maypok86/otter/v2"
	"golang.org/x/sync/singleflight"

	"github.com/gateway/multiapi/internal/canonical"
	"github.com/gateway/multiapi/relay/model"
)

// Entry is a stored response plus the original cost it took to produce,
// so analytics can attribute a cache hit's saving.
type Entry struct {
	Body         []byte
	ContentType  string
	StatusCode   int
	OriginalCost int64
	ProviderName string
	ActualModel  string
}

// Cache fingerprints canonical requests, stores their responses, and
// deduplicates concurrent identical requests.
type Cache struct {
	store *otter.Cache[string, Entry]
	group singleflight.Group
}

// New builds a Cache bounded to maxEntries, entries expiring ttl after
// being written. A deployment wanting distinct TTLs per request kind runs
// one Cache per kind rather than one Cache with per-entry TTLs, since the
// underlying store's expiry policy is fixed at construction.
func New(maxEntries int, ttl time.Duration) (*Cache, error) {
	store, err := otter.New[string, Entry](&otter.Options[string, Entry]{
		MaximumSize:      maxEntries,
		ExpiryCalculator: otter.ExpiryWriting[string, Entry](ttl),
	})
	if err != nil {
		return nil, err
	}
	return &Cache{store: store}, nil
}

// Eligible reports whether req may participate in the cache at all:
// streaming requests, high-temperature requests, and sensitivity-flagged
// requests never hit or populate the cache.
func Eligible(req *canonical.Request, temperature, thetaTemperature float64, sensitive bool) bool {
	if req.Stream || sensitive {
		return false
	}
	return temperature <= thetaTemperature
}

// Fingerprint normalizes req into a stable cache key: lower-cased model
// name, sorted message fields, whitespace-collapsed text, and no
// non-deterministic fields (request id, timestamps) included at all.
func Fingerprint(req *canonical.Request) string {
	type normalizedMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	normalized := make([]normalizedMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		normalized = append(normalized, normalizedMessage{
			Role:    strings.ToLower(m.Role),
			Content: collapseWhitespace(flattenContent(m.Content)),
		})
	}

	payload := struct {
		Model    string              `json:"model"`
		Messages []normalizedMessage `json:"messages"`
	}{
		Model:    strings.ToLower(req.Model),
		Messages: normalized,
	}

	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func flattenContent(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []model.ContentPart:
		var b strings.Builder
		for _, p := range v {
			b.WriteString(p.Text)
			b.WriteByte(' ')
		}
		return b.String()
	default:
		raw, _ := json.Marshal(v)
		return string(raw)
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Fetch returns a cached Entry for fingerprint, or calls compute exactly
// once across all concurrent callers sharing that fingerprint. Every
// concurrent caller receives that one result, success or failure; only a
// successful result is stored, so a failure is not cached for later callers.
func (c *Cache) Fetch(fingerprint string, compute func() (Entry, error)) (Entry, bool, error) {
	if e, ok := c.store.GetIfPresent(fingerprint); ok {
		return e, true, nil
	}

	v, err, _ := c.group.Do(fingerprint, func() (any, error) {
		if e, ok := c.store.GetIfPresent(fingerprint); ok {
			return e, nil
		}
		e, err := compute()
		if err != nil {
			return Entry{}, err
		}
		c.store.Set(fingerprint, e)
		return e, nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	return v.(Entry), false, nil
}

// Invalidate removes fingerprint from the cache, used by the
// control-plane when a price or routing change makes cached entries stale.
func (c *Cache) Invalidate(fingerprint string) {
	c.store.Invalidate(fingerprint)
}

// Purge clears the entire cache.
func (c *Cache) Purge() {
	c.store.InvalidateAll()
}
