// Package keymanager selects which upstream key a request should use from
// among a provider's enabled keys, under a pluggable strategy, and decrypts
// the chosen key's secret just in time for the outbound call.
package keymanager

import (
	"sort"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/gateway/multiapi/common/random"
	"github.com/gateway/multiapi/internal/secret"
	"github.com/gateway/multiapi/model"
)

// Strategy names one of the ways Select chooses among a provider's
// eligible upstream keys.
type Strategy string

const (
	// LeastUsed picks the active key with the lowest current-minute
	// request count, tie-breaking on the earliest last-used time.
	LeastUsed Strategy = "least_used"
	// RoundRobin walks active keys in id order with a deterministic,
	// per-provider stride.
	RoundRobin Strategy = "round_robin"
	// Random picks uniformly among active keys.
	Random Strategy = "random"
)

// DefaultStrategy is used whenever a caller passes an empty Strategy.
const DefaultStrategy = LeastUsed

// Permissions narrows which keys a tenant may be routed to. A zero value
// imposes no restriction beyond the provider's own enabled/quota filtering.
type Permissions struct {
	AllowedKeyIds []int64
}

// counterState is the in-memory, wall-clock-minute-aligned request counter
// backing the least-used strategy. A DB column would force a write on
// every selection, which the O(#active-keys) + short-lock budget rules out.
type counterState struct {
	minuteStart time.Time
	count       int32
}

// Manager picks and decrypts upstream keys for a provider.
type Manager struct {
	box *secret.Box

	mu       sync.Mutex
	counters map[int64]*counterState // upstream key id -> current-minute count
	cursors  map[int64]int           // provider id -> round-robin cursor
}

// New builds a Manager that decrypts stored keys with box.
func New(box *secret.Box) *Manager {
	return &Manager{
		box:      box,
		counters: make(map[int64]*counterState),
		cursors:  make(map[int64]int),
	}
}

// Selected is the key chosen for one outbound call, with its plaintext
// secret ready to place in an Authorization header. UpstreamKey is the
// full row as loaded for selection (EncryptedSecret included but never
// serialized, per its own json:"-" tag), so callers can consult its rate
// limits without a second lookup.
type Selected struct {
	KeyId       int64
	Secret      secret.String
	UpstreamKey *model.UpstreamKey
}

// ErrNoEligibleKey is returned when a provider has no enabled, permitted
// key left after filtering.
var ErrNoEligibleKey = errors.New("no eligible upstream key")

// Pick selects an enabled key for providerId under DefaultStrategy with no
// permission restriction, for callers that don't need to choose.
func (m *Manager) Pick(providerId int64) (*Selected, error) {
	return m.Select(providerId, Permissions{}, "")
}

// Select chooses one enabled, permitted key for providerId under strategy
// and decrypts it. An empty strategy falls back to DefaultStrategy.
// Disabled keys are already excluded by model.ListEnabledKeysForProvider;
// Permissions filters further, e.g. to keys a tenant is scoped to.
func (m *Manager) Select(providerId int64, perms Permissions, strategy Strategy) (*Selected, error) {
	keys, err := model.ListEnabledKeysForProvider(providerId)
	if err != nil {
		return nil, errors.Wrap(err, "list enabled keys")
	}

	keys = filterEligible(keys, perms)
	if len(keys) == 0 {
		return nil, ErrNoEligibleKey
	}

	if strategy == "" {
		strategy = DefaultStrategy
	}

	var chosen *model.UpstreamKey
	switch strategy {
	case RoundRobin:
		chosen = m.roundRobin(providerId, keys)
	case Random:
		chosen = m.random(keys)
	default:
		chosen = m.leastUsed(keys)
	}

	m.bump(chosen.Id)

	plain, err := m.box.Open(chosen.EncryptedSecret)
	if err != nil {
		return nil, errors.Wrap(err, "decrypt upstream key")
	}

	return &Selected{KeyId: chosen.Id, Secret: plain, UpstreamKey: chosen}, nil
}

func filterEligible(keys []*model.UpstreamKey, perms Permissions) []*model.UpstreamKey {
	if len(perms.AllowedKeyIds) == 0 {
		return keys
	}
	allowed := make(map[int64]bool, len(perms.AllowedKeyIds))
	for _, id := range perms.AllowedKeyIds {
		allowed[id] = true
	}

	out := make([]*model.UpstreamKey, 0, len(keys))
	for _, k := range keys {
		if allowed[k.Id] {
			out = append(out, k)
		}
	}
	return out
}

// leastUsed picks the eligible key with the lowest current-minute request
// count, tie-breaking on the earliest LastUsedAt (nil counts as oldest).
func (m *Manager) leastUsed(keys []*model.UpstreamKey) *model.UpstreamKey {
	counts := m.snapshotCounts(keys)

	best := keys[0]
	bestCount := counts[best.Id]
	for _, k := range keys[1:] {
		c := counts[k.Id]
		if c < bestCount || (c == bestCount && earlier(k.LastUsedAt, best.LastUsedAt)) {
			best, bestCount = k, c
		}
	}
	return best
}

func earlier(a, b *time.Time) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return a.Before(*b)
}

// snapshotCounts reads the current-minute counters for keys, treating a
// stale or missing bucket as zero without mutating any state.
func (m *Manager) snapshotCounts(keys []*model.UpstreamKey) map[int64]int32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	out := make(map[int64]int32, len(keys))
	for _, k := range keys {
		st, ok := m.counters[k.Id]
		if !ok || now.Sub(st.minuteStart) >= time.Minute {
			out[k.Id] = 0
			continue
		}
		out[k.Id] = st.count
	}
	return out
}

// roundRobin walks keys (sorted by id for determinism) with a stride
// counter kept per provider.
func (m *Manager) roundRobin(providerId int64, keys []*model.UpstreamKey) *model.UpstreamKey {
	sorted := make([]*model.UpstreamKey, len(keys))
	copy(sorted, keys)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Id < sorted[j].Id })

	m.mu.Lock()
	idx := m.cursors[providerId] % len(sorted)
	m.cursors[providerId] = idx + 1
	m.mu.Unlock()

	return sorted[idx]
}

// random picks uniformly among keys using crypto-backed randomness.
func (m *Manager) random(keys []*model.UpstreamKey) *model.UpstreamKey {
	return keys[random.RandRange(0, len(keys))]
}

// bump increments the current-minute counter for keyId, rolling over to a
// fresh bucket if the previous one has aged out. This is the only step
// that holds the lock; the outbound call itself proceeds lock-free.
func (m *Manager) bump(keyId int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	st, ok := m.counters[keyId]
	if !ok || now.Sub(st.minuteStart) >= time.Minute {
		m.counters[keyId] = &counterState{minuteStart: now, count: 1}
		return
	}
	st.count++
}

// Seal encrypts a plaintext upstream key for storage, used by the
// control-plane key-import endpoint.
func (m *Manager) Seal(plaintext secret.String) (string, error) {
	sealed, err := m.box.Seal(plaintext)
	return sealed, errors.Wrap(err, "seal upstream key")
}
