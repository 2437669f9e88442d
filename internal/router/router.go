// Package router is the central decision engine: given a canonical request,
// tenant preferences, the active strategy, circuit-breaker state, and
// recent statistics, it produces an ordered, length-bounded candidate list
// of (provider, model) pairs for internal/dispatch to try in order.
package router

import (
	"sort"
	"strconv"

	"github.com/gateway/multiapi/internal/breaker"
	"github.com/gateway/multiapi/model"
)

// Strategy selects how candidates are ordered once tenant preferences have
// filtered the pool.
type Strategy string

const (
	CostFirst    Strategy = "cost_first"
	LatencyFirst Strategy = "latency_first"
	QualityFirst Strategy = "quality_first"
	Balanced     Strategy = "balanced"
)

// DefaultMaxCandidates bounds the candidate list so a worst-case fallback
// walk has predictable cost.
const DefaultMaxCandidates = 4

// Preferences are tenant-level constraints applied before strategy scoring.
type Preferences struct {
	SpeedPreference     float64
	CostCap             float64
	PreferredProviders  []int64
	ForbiddenProviders  []int64
}

// Stats carries the per-(provider,model) recent performance numbers the
// strategies score on. internal/dispatch passes an empty Stats (it does not
// read internal/usage), so there every candidate scores alike and keeps the
// providers' priority order.
type Stats struct {
	P50LatencyMs map[string]float64
	ErrorRate    map[string]float64
	EstCost      map[string]float64
	Quality      map[string]int
}

func key(providerId int64, modelName string) string {
	return modelName + "@" + strconv.FormatInt(providerId, 10)
}

// Candidate is one routing option.
type Candidate struct {
	Provider *model.Provider
	Model    string

	cost    float64
	latency float64
	errRate float64
	quality int
}

// Router scores and orders candidates, consulting a breaker for circuit state.
type Router struct {
	breaker *breaker.Breaker
}

// New builds a Router backed by br for circuit-breaker state lookups.
func New(br *breaker.Breaker) *Router {
	return &Router{breaker: br}
}

// Weights parameterizes the "balanced" strategy's weighted score.
type Weights struct {
	Cost    float64
	Latency float64
	Error   float64
}

// DefaultWeights matches a cost-leaning balance.
var DefaultWeights = Weights{Cost: 0.5, Latency: 0.3, Error: 0.2}

// Route builds the ordered candidate list for modelName from the set of
// providers that serve it, applying tenant preferences, breaker filtering,
// strategy scoring, and the DefaultMaxCandidates bound.
func (r *Router) Route(providers []*model.Provider, modelName string, prefs Preferences, strategy Strategy, weights Weights, stats Stats) []Candidate {
	candidates := buildCandidates(providers, modelName, stats)
	candidates = filterByPreferences(candidates, prefs)
	candidates = r.filterByBreaker(candidates, modelName)
	candidates = score(candidates, strategy, weights)

	if len(candidates) > DefaultMaxCandidates {
		candidates = candidates[:DefaultMaxCandidates]
	}
	return candidates
}

func buildCandidates(providers []*model.Provider, modelName string, stats Stats) []Candidate {
	out := make([]Candidate, 0, len(providers))
	for _, p := range providers {
		k := key(p.Id, modelName)
		out = append(out, Candidate{
			Provider: p,
			Model:    modelName,
			cost:     stats.EstCost[k],
			latency:  stats.P50LatencyMs[k],
			errRate:  stats.ErrorRate[k],
			quality:  stats.Quality[k],
		})
	}
	return out
}

func filterByPreferences(candidates []Candidate, prefs Preferences) []Candidate {
	forbidden := make(map[int64]bool, len(prefs.ForbiddenProviders))
	for _, id := range prefs.ForbiddenProviders {
		forbidden[id] = true
	}
	preferred := make(map[int64]bool, len(prefs.PreferredProviders))
	for _, id := range prefs.PreferredProviders {
		preferred[id] = true
	}

	filtered := candidates[:0]
	for _, c := range candidates {
		if forbidden[c.Provider.Id] {
			continue
		}
		if prefs.CostCap > 0 && c.cost > prefs.CostCap {
			continue
		}
		filtered = append(filtered, c)
	}

	if len(preferred) == 0 {
		return filtered
	}

	var preferredOnly, rest []Candidate
	for _, c := range filtered {
		if preferred[c.Provider.Id] {
			preferredOnly = append(preferredOnly, c)
		} else {
			rest = append(rest, c)
		}
	}
	if len(preferredOnly) > 0 {
		return append(preferredOnly, rest...)
	}
	return filtered
}

// filterByBreaker drops candidates whose circuit is open, unless that
// would empty the list entirely — in which case the topmost remaining
// candidate is kept so it can serve as a half-open probe.
func (r *Router) filterByBreaker(candidates []Candidate, modelName string) []Candidate {
	if r.breaker == nil {
		return candidates
	}

	var open []Candidate
	var available []Candidate
	for _, c := range candidates {
		if r.breaker.StateOf(c.Provider.Id, modelName) == breaker.Open {
			open = append(open, c)
		} else {
			available = append(available, c)
		}
	}
	if len(available) > 0 {
		return available
	}
	if len(open) > 0 {
		return open[:1]
	}
	return available
}

func score(candidates []Candidate, strategy Strategy, weights Weights) []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)

	switch strategy {
	case LatencyFirst:
		sort.SliceStable(out, func(i, j int) bool { return out[i].latency < out[j].latency })
	case QualityFirst:
		sort.SliceStable(out, func(i, j int) bool { return out[i].quality > out[j].quality })
	case Balanced:
		costNorm, latNorm, errNorm := normalize(out)
		sort.SliceStable(out, func(i, j int) bool {
			si := weights.Cost*costNorm[i] + weights.Latency*latNorm[i] + weights.Error*errNorm[i]
			sj := weights.Cost*costNorm[j] + weights.Latency*latNorm[j] + weights.Error*errNorm[j]
			return si < sj
		})
	default: // CostFirst
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].cost != out[j].cost {
				return out[i].cost < out[j].cost
			}
			return out[i].errRate < out[j].errRate
		})
	}
	return out
}

func normalize(candidates []Candidate) (cost, latency, errRate []float64) {
	cost = make([]float64, len(candidates))
	latency = make([]float64, len(candidates))
	errRate = make([]float64, len(candidates))

	var maxCost, maxLatency, maxErr float64
	for _, c := range candidates {
		maxCost = maxFloat(maxCost, c.cost)
		maxLatency = maxFloat(maxLatency, c.latency)
		maxErr = maxFloat(maxErr, c.errRate)
	}

	for i, c := range candidates {
		cost[i] = safeDiv(c.cost, maxCost)
		latency[i] = safeDiv(c.latency, maxLatency)
		errRate[i] = safeDiv(c.errRate, maxErr)
	}
	return
}

func maxFloat(a, b float64) float64 {
	if b > a {
		return b
	}
	return a
}

func safeDiv(v, max float64) float64 {
	if max == 0 {
		return 0
	}
	return v / max
}
