package core

import (
	"fmt"
	"math"
	"sort"

	"github.com/signalsfoundry/stride-kernel/graph"
	"github.com/signalsfoundry/stride-kernel/model"
)

// weightEpsilon guards divisions when factor populations collapse to zero.
const weightEpsilon = 1e-9

// ModulationFactors are the per-subentity weighting signals, each normalized
// to a population mean of 1.0.
type ModulationFactors struct {
	Urgency      float64
	Reachability float64
	Health       float64
}

// ReachabilityScorer scores how close each subentity's extent sits to the
// locations of recent stimuli. The exact distance/decay formula is a policy
// choice; implementations must return one raw (un-normalized) score per
// subentity.
type ReachabilityScorer interface {
	Score(subs []*model.Subentity, g *graph.Graph, stimuli []model.Stimulus) map[string]float64
}

// UniformReachability treats every subentity as equally reachable. It is the
// fallback when no graph is available.
type UniformReachability struct{}

// Score returns 1.0 for every subentity.
func (UniformReachability) Score(subs []*model.Subentity, _ *graph.Graph, _ []model.Stimulus) map[string]float64 {
	scores := make(map[string]float64, len(subs))
	for _, s := range subs {
		scores[s.ID] = 1.0
	}
	return scores
}

// GraphProximityReachability scores subentities by inverse hop distance from
// their extent to the nodes where recent stimuli landed. With no graph or no
// located stimuli it degrades to uniform scores.
type GraphProximityReachability struct{}

// Score runs one breadth-first search from all stimulus locations and gives
// each subentity 1/(1+d) for the closest hop distance d reached by its
// extent. Extents with no path to any stimulus score zero.
func (GraphProximityReachability) Score(subs []*model.Subentity, g *graph.Graph, stimuli []model.Stimulus) map[string]float64 {
	scores := make(map[string]float64, len(subs))

	var seeds []string
	if g != nil {
		for _, st := range stimuli {
			if st.NodeID != "" && g.HasNode(st.NodeID) {
				seeds = append(seeds, st.NodeID)
			}
		}
	}
	if len(seeds) == 0 {
		for _, s := range subs {
			scores[s.ID] = 1.0
		}
		return scores
	}

	dist := g.HopsFrom(seeds)
	for _, s := range subs {
		best := -1
		for _, nodeID := range s.Extent {
			if d, ok := dist[nodeID]; ok && (best < 0 || d < best) {
				best = d
			}
		}
		if best < 0 {
			scores[s.ID] = 0.0
		} else {
			scores[s.ID] = 1.0 / (1.0 + float64(best))
		}
	}
	return scores
}

// ComputeModulationFactors computes urgency, reachability, and health for
// each subentity, each normalized to mean 1.0 across the current population.
// There are no fixed thresholds: all factors are relative to whoever is
// present this tick.
func ComputeModulationFactors(
	subs []*model.Subentity,
	g *graph.Graph,
	stimuli []model.Stimulus,
	scorer ReachabilityScorer,
) map[string]ModulationFactors {
	if len(subs) == 0 {
		return map[string]ModulationFactors{}
	}
	if scorer == nil {
		scorer = UniformReachability{}
	}

	// Urgency: max cosine similarity of the subentity's centroid to recent
	// stimulus embeddings. No stimuli or no centroid data means neutral.
	urgencyRaw := make(map[string]float64, len(subs))
	for _, s := range subs {
		if len(stimuli) == 0 || s.Centroid == nil || s.Centroid.Count() == 0 {
			urgencyRaw[s.ID] = 1.0
			continue
		}
		maxSim := 0.0
		for _, st := range stimuli {
			if len(st.Embedding) == 0 {
				continue
			}
			if sim := s.Centroid.Similarity(st.Embedding); sim > maxSim {
				maxSim = sim
			}
		}
		urgencyRaw[s.ID] = maxSim
	}

	reachabilityRaw := scorer.Score(subs, g, stimuli)

	// Health: inverse of the smoothed local load. Lower rho is healthier.
	healthRaw := make(map[string]float64, len(subs))
	for _, s := range subs {
		if s.RhoLocalEMA > 0 {
			healthRaw[s.ID] = 1.0 / s.RhoLocalEMA
		} else {
			healthRaw[s.ID] = 1.0
		}
	}

	urgency := normalizeToMeanOne(subs, urgencyRaw)
	reachability := normalizeToMeanOne(subs, reachabilityRaw)
	health := normalizeToMeanOne(subs, healthRaw)

	factors := make(map[string]ModulationFactors, len(subs))
	for _, s := range subs {
		factors[s.ID] = ModulationFactors{
			Urgency:      urgency[s.ID],
			Reachability: reachability[s.ID],
			Health:       health[s.ID],
		}
	}
	return factors
}

// normalizeToMeanOne divides each raw value by the population mean. When the
// whole population is (near) zero there is nothing meaningful to divide by,
// so every subentity gets an equal 1.0 instead.
func normalizeToMeanOne(subs []*model.Subentity, raw map[string]float64) map[string]float64 {
	var sum float64
	for _, s := range subs {
		sum += raw[s.ID]
	}
	mean := sum / float64(len(subs))

	norm := make(map[string]float64, len(subs))
	if mean <= weightEpsilon {
		for _, s := range subs {
			norm[s.ID] = 1.0
		}
		return norm
	}
	for _, s := range subs {
		norm[s.ID] = raw[s.ID] / mean
	}
	return norm
}

// HamiltonApportion distributes qTotal integer strides over the given weights
// using the largest-remainder method. The returned quotas sum to exactly
// qTotal. Subentity order is the stable tie-break everywhere.
func HamiltonApportion(subs []*model.Subentity, qTotal int, weights map[string]float64) map[string]int {
	quotas := make(map[string]int, len(subs))
	if len(subs) == 0 || qTotal <= 0 {
		for _, s := range subs {
			quotas[s.ID] = 0
		}
		return quotas
	}

	var totalWeight float64
	for _, s := range subs {
		totalWeight += weights[s.ID]
	}

	if totalWeight <= weightEpsilon {
		// Nothing to weight by: split as evenly as possible, handing the
		// remainder out in stable input order.
		base := qTotal / len(subs)
		remainder := qTotal % len(subs)
		for i, s := range subs {
			quotas[s.ID] = base
			if i < remainder {
				quotas[s.ID]++
			}
		}
		return quotas
	}

	raw := make([]float64, len(subs))
	allocated := 0
	for i, s := range subs {
		raw[i] = float64(qTotal) * (weights[s.ID] / totalWeight)
		quotas[s.ID] = int(math.Floor(raw[i]))
		allocated += quotas[s.ID]
	}

	remainder := qTotal - allocated
	order := make([]int, len(subs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		fa := raw[order[a]] - math.Floor(raw[order[a]])
		fb := raw[order[b]] - math.Floor(raw[order[b]])
		return fa > fb
	})
	for i := 0; i < remainder && i < len(order); i++ {
		quotas[subs[order[i]].ID]++
	}
	return quotas
}

// AllocateQuotas computes the per-subentity stride quotas for one tick and
// writes QuotaAssigned/QuotaRemaining onto each subentity. The quota values
// sum to exactly qTotal.
//
// Weights combine the normalized modulation factors with inverse extent size:
// w = urgency * reachability * health / max(|extent|, 1), so a small extent
// earns more strides per node than a large one, all else equal.
func AllocateQuotas(
	subs []*model.Subentity,
	qTotal int,
	g *graph.Graph,
	stimuli []model.Stimulus,
	scorer ReachabilityScorer,
) (map[string]int, error) {
	if qTotal < 0 {
		return nil, fmt.Errorf("allocate quotas: budget must be non-negative, got %d", qTotal)
	}
	if len(subs) == 0 {
		return map[string]int{}, nil
	}

	factors := ComputeModulationFactors(subs, g, stimuli, scorer)

	weights := make(map[string]float64, len(subs))
	for _, s := range subs {
		f := factors[s.ID]
		size := s.ExtentSize()
		if size < 1 {
			size = 1
		}
		weights[s.ID] = f.Urgency * f.Reachability * f.Health / float64(size)
	}

	quotas := HamiltonApportion(subs, qTotal, weights)
	for _, s := range subs {
		q := quotas[s.ID]
		s.QuotaAssigned = q
		s.QuotaRemaining = q
	}
	return quotas, nil
}
