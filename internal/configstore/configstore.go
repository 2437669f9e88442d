// Package configstore holds the gateway's hot-reloadable routing
// configuration (providers, routing strategy/weights, key-selection
// strategy; price overrides are read by internal/pricing, not held here) as
// an immutable, atomically-swapped snapshot. Requests in flight keep
// reading their captured snapshot even while a reload is in progress;
// readers never block on a writer.
package configstore

import (
	"sync/atomic"

	"github.com/Laisky/errors/v2"

	"github.com/gateway/multiapi/internal/keymanager"
	"github.com/gateway/multiapi/internal/router"
	"github.com/gateway/multiapi/model"
)

// Snapshot is one immutable, fully-validated view of the routing config.
type Snapshot struct {
	Version     int64
	Providers   []*model.Provider
	Strategy    router.Strategy
	Weights     router.Weights
	KeyStrategy keymanager.Strategy
}

// Store owns the currently-published Snapshot.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// New builds a Store with an empty initial snapshot.
func New() *Store {
	s := &Store{}
	s.current.Store(&Snapshot{
		Strategy:    router.CostFirst,
		Weights:     router.DefaultWeights,
		KeyStrategy: keymanager.DefaultStrategy,
	})
	return s
}

// Load returns the currently published snapshot. Safe for concurrent use
// and never blocks on a concurrent Reload.
func (s *Store) Load() *Snapshot {
	return s.current.Load()
}

// Validate checks a candidate snapshot's invariants before it can be
// published: every provider must resolve to a known family and have a
// non-negative weight and priority.
func Validate(snap *Snapshot) error {
	for _, p := range snap.Providers {
		if p.Family.String() == "unknown" {
			return errors.Errorf("provider %q has unknown family %d", p.Name, p.Family)
		}
		if p.Weight < 0 {
			return errors.Errorf("provider %q has negative weight", p.Name)
		}
		if p.Priority < 0 {
			return errors.Errorf("provider %q has negative priority", p.Name)
		}
	}
	return nil
}

// Reload builds a fresh snapshot from the database, validates it, and
// atomically swaps it in. The previous snapshot is left for in-flight
// requests that already captured it to keep using.
func (s *Store) Reload() error {
	providers, err := listAllProviders()
	if err != nil {
		return errors.Wrap(err, "list providers")
	}

	prev := s.current.Load()
	next := &Snapshot{
		Version:     prev.Version + 1,
		Providers:   providers,
		Strategy:    prev.Strategy,
		Weights:     prev.Weights,
		KeyStrategy: prev.KeyStrategy,
	}

	if err := Validate(next); err != nil {
		return errors.Wrap(err, "validate snapshot")
	}

	s.current.Store(next)
	return nil
}

// SetStrategy publishes a new snapshot with strategy/weights changed,
// leaving providers as-is.
func (s *Store) SetStrategy(strategy router.Strategy, weights router.Weights) {
	prev := s.current.Load()
	next := &Snapshot{
		Version:     prev.Version + 1,
		Providers:   prev.Providers,
		Strategy:    strategy,
		Weights:     weights,
		KeyStrategy: prev.KeyStrategy,
	}
	s.current.Store(next)
}

// SetKeyStrategy publishes a new snapshot with the upstream-key selection
// strategy changed, leaving routing strategy/weights and providers as-is.
func (s *Store) SetKeyStrategy(strategy keymanager.Strategy) {
	prev := s.current.Load()
	next := &Snapshot{
		Version:     prev.Version + 1,
		Providers:   prev.Providers,
		Strategy:    prev.Strategy,
		Weights:     prev.Weights,
		KeyStrategy: strategy,
	}
	s.current.Store(next)
}

func listAllProviders() ([]*model.Provider, error) {
	var providers []*model.Provider
	if err := model.DB.Order("priority desc").Find(&providers).Error; err != nil {
		return nil, err
	}
	return providers, nil
}
