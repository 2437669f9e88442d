package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gateway/multiapi/internal/breaker"
	"github.com/gateway/multiapi/model"
)

func providers() []*model.Provider {
	return []*model.Provider{
		{Id: 1, Name: "cheap"},
		{Id: 2, Name: "fast"},
		{Id: 3, Name: "premium"},
	}
}

func TestRouteCostFirstOrdersByCostAscending(t *testing.T) {
	r := New(nil)
	stats := Stats{
		EstCost: map[string]float64{
			"gpt-4o@1": 0.002,
			"gpt-4o@2": 0.001,
			"gpt-4o@3": 0.01,
		},
	}

	out := r.Route(providers(), "gpt-4o", Preferences{}, CostFirst, DefaultWeights, stats)
	require.Len(t, out, 3)
	require.Equal(t, int64(2), out[0].Provider.Id)
	require.Equal(t, int64(1), out[1].Provider.Id)
	require.Equal(t, int64(3), out[2].Provider.Id)
}

func TestRouteLatencyFirst(t *testing.T) {
	r := New(nil)
	stats := Stats{
		P50LatencyMs: map[string]float64{
			"gpt-4o@1": 500,
			"gpt-4o@2": 100,
			"gpt-4o@3": 900,
		},
	}

	out := r.Route(providers(), "gpt-4o", Preferences{}, LatencyFirst, DefaultWeights, stats)
	require.Equal(t, int64(2), out[0].Provider.Id)
}

func TestRouteFiltersForbiddenProviders(t *testing.T) {
	r := New(nil)
	out := r.Route(providers(), "gpt-4o", Preferences{ForbiddenProviders: []int64{2}}, CostFirst, DefaultWeights, Stats{})
	require.Len(t, out, 2)
	for _, c := range out {
		require.NotEqual(t, int64(2), c.Provider.Id)
	}
}

func TestRoutePrefersPreferredProvidersFirst(t *testing.T) {
	r := New(nil)
	out := r.Route(providers(), "gpt-4o", Preferences{PreferredProviders: []int64{3}}, CostFirst, DefaultWeights, Stats{})
	require.Equal(t, int64(3), out[0].Provider.Id)
}

func TestRouteFiltersOpenCircuitsUnlessNoneRemain(t *testing.T) {
	br := breaker.New(breaker.Config{Window: breaker.DefaultConfig.Window, FailureRatio: 0.1, MinSamples: 1, Cooldown: breaker.DefaultConfig.Cooldown, CooldownCap: breaker.DefaultConfig.CooldownCap})
	for i := 0; i < 2; i++ {
		br.RecordRequest(1, "gpt-4o", 500, nil)
	}
	require.Equal(t, breaker.Open, br.StateOf(1, "gpt-4o"))

	r := New(br)
	out := r.Route(providers(), "gpt-4o", Preferences{}, CostFirst, DefaultWeights, Stats{})
	require.Len(t, out, 2)
	for _, c := range out {
		require.NotEqual(t, int64(1), c.Provider.Id)
	}
}

func TestRouteBoundsCandidateListLength(t *testing.T) {
	many := make([]*model.Provider, 0, 10)
	for i := int64(1); i <= 10; i++ {
		many = append(many, &model.Provider{Id: i})
	}

	r := New(nil)
	out := r.Route(many, "gpt-4o", Preferences{}, CostFirst, DefaultWeights, Stats{})
	require.Len(t, out, DefaultMaxCandidates)
}
