package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/stride-kernel/graph"
	"github.com/signalsfoundry/stride-kernel/model"
)

func subentity(id string, extent ...string) *model.Subentity {
	return &model.Subentity{ID: id, Extent: extent, RhoLocalEMA: 1.0}
}

func TestHamiltonApportionReferenceCases(t *testing.T) {
	subs := []*model.Subentity{subentity("a"), subentity("b"), subentity("c")}
	weights := map[string]float64{"a": 0.5, "b": 0.3, "c": 0.2}

	got := HamiltonApportion(subs, 10, weights)
	want := map[string]int{"a": 5, "b": 3, "c": 2}
	for id, q := range want {
		if got[id] != q {
			t.Fatalf("Q=10: quota[%s] = %d, want %d (full: %v)", id, got[id], q, got)
		}
	}

	got = HamiltonApportion(subs, 11, weights)
	want = map[string]int{"a": 6, "b": 3, "c": 2}
	for id, q := range want {
		if got[id] != q {
			t.Fatalf("Q=11: quota[%s] = %d, want %d (full: %v)", id, got[id], q, got)
		}
	}
}

func TestHamiltonApportionZeroWeightsSplitsEvenly(t *testing.T) {
	subs := []*model.Subentity{subentity("a"), subentity("b"), subentity("c")}
	weights := map[string]float64{"a": 0, "b": 0, "c": 0}

	got := HamiltonApportion(subs, 9, weights)
	for _, id := range []string{"a", "b", "c"} {
		if got[id] != 3 {
			t.Fatalf("quota[%s] = %d, want 3 (full: %v)", id, got[id], got)
		}
	}
}

func TestHamiltonApportionZeroWeightsRemainderStableOrder(t *testing.T) {
	subs := []*model.Subentity{subentity("a"), subentity("b"), subentity("c")}
	weights := map[string]float64{}

	got := HamiltonApportion(subs, 10, weights)
	want := map[string]int{"a": 4, "b": 3, "c": 3}
	for id, q := range want {
		if got[id] != q {
			t.Fatalf("quota[%s] = %d, want %d (full: %v)", id, got[id], q, got)
		}
	}
}

func TestAllocateQuotasConservesBudget(t *testing.T) {
	cases := []struct {
		name   string
		subs   []*model.Subentity
		budget int
	}{
		{"single", []*model.Subentity{subentity("a", "n1")}, 7},
		{"uneven extents", []*model.Subentity{
			subentity("a", "n1"),
			subentity("b", "n1", "n2", "n3"),
			subentity("c", "n1", "n2"),
		}, 13},
		{"zero budget", []*model.Subentity{subentity("a"), subentity("b")}, 0},
		{"more subentities than budget", []*model.Subentity{
			subentity("a"), subentity("b"), subentity("c"), subentity("d"), subentity("e"),
		}, 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			quotas, err := AllocateQuotas(tc.subs, tc.budget, nil, nil, nil)
			if err != nil {
				t.Fatalf("AllocateQuotas: %v", err)
			}

			sum := 0
			for _, q := range quotas {
				if q < 0 {
					t.Fatalf("negative quota in %v", quotas)
				}
				sum += q
			}
			if sum != tc.budget {
				t.Fatalf("quotas %v sum to %d, want %d", quotas, sum, tc.budget)
			}

			for _, s := range tc.subs {
				if s.QuotaAssigned != quotas[s.ID] || s.QuotaRemaining != quotas[s.ID] {
					t.Fatalf("subentity %s quota fields (%d, %d), want both %d",
						s.ID, s.QuotaAssigned, s.QuotaRemaining, quotas[s.ID])
				}
			}
		})
	}
}

func TestAllocateQuotasRejectsNegativeBudget(t *testing.T) {
	if _, err := AllocateQuotas([]*model.Subentity{subentity("a")}, -1, nil, nil, nil); err == nil {
		t.Fatalf("AllocateQuotas(-1) succeeded, want error")
	}
}

func TestAllocateQuotasEmptyPopulation(t *testing.T) {
	quotas, err := AllocateQuotas(nil, 10, nil, nil, nil)
	if err != nil {
		t.Fatalf("AllocateQuotas: %v", err)
	}
	if len(quotas) != 0 {
		t.Fatalf("quotas = %v, want empty map", quotas)
	}
}

func TestAllocateQuotasSmallerExtentGetsMorePerNode(t *testing.T) {
	small := subentity("small", "n1")
	large := subentity("large", "n1", "n2", "n3", "n4")
	quotas, err := AllocateQuotas([]*model.Subentity{small, large}, 100, nil, nil, nil)
	if err != nil {
		t.Fatalf("AllocateQuotas: %v", err)
	}

	perNodeSmall := float64(quotas["small"]) / 1.0
	perNodeLarge := float64(quotas["large"]) / 4.0
	if perNodeSmall <= perNodeLarge {
		t.Fatalf("strides per node: small=%v large=%v, want small > large (quotas %v)",
			perNodeSmall, perNodeLarge, quotas)
	}
}

func TestModulationFactorsNormalizeToMeanOne(t *testing.T) {
	subs := []*model.Subentity{
		{ID: "a", RhoLocalEMA: 0.5},
		{ID: "b", RhoLocalEMA: 1.0},
		{ID: "c", RhoLocalEMA: 2.0},
	}

	factors := ComputeModulationFactors(subs, nil, nil, nil)

	var healthSum float64
	for _, s := range subs {
		healthSum += factors[s.ID].Health
	}
	if mean := healthSum / float64(len(subs)); math.Abs(mean-1.0) > 1e-9 {
		t.Fatalf("health mean = %v, want 1.0 (factors %v)", mean, factors)
	}

	if factors["a"].Health <= factors["c"].Health {
		t.Fatalf("lower rho should score healthier: a=%v c=%v",
			factors["a"].Health, factors["c"].Health)
	}
}

func TestModulationFactorsUniformWithoutSignals(t *testing.T) {
	subs := []*model.Subentity{subentity("a"), subentity("b")}

	factors := ComputeModulationFactors(subs, nil, nil, nil)
	for _, s := range subs {
		f := factors[s.ID]
		if f.Urgency != 1.0 || f.Reachability != 1.0 || f.Health != 1.0 {
			t.Fatalf("factors[%s] = %+v, want uniform 1.0", s.ID, f)
		}
	}
}

func TestUrgencyTracksStimulusSimilarity(t *testing.T) {
	aligned := subentity("aligned", "n1")
	aligned.Centroid = model.NewCentroid()
	aligned.Centroid.Add([]float64{1, 0, 0})

	opposed := subentity("opposed", "n1")
	opposed.Centroid = model.NewCentroid()
	opposed.Centroid.Add([]float64{-1, 0, 0})

	stimuli := []model.Stimulus{{ID: "s1", Embedding: []float64{1, 0, 0}}}
	factors := ComputeModulationFactors([]*model.Subentity{aligned, opposed}, nil, stimuli, nil)

	if factors["aligned"].Urgency <= factors["opposed"].Urgency {
		t.Fatalf("aligned urgency %v should exceed opposed urgency %v",
			factors["aligned"].Urgency, factors["opposed"].Urgency)
	}
}

func TestGraphProximityReachabilityPrefersCloserExtent(t *testing.T) {
	g := graph.New()
	for _, id := range []string{"s", "mid", "far", "farther"} {
		if err := g.AddNode(model.NewNode(id)); err != nil {
			t.Fatalf("AddNode: %v", err)
		}
	}
	if err := g.AddLink("s", "mid", 1.0); err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	if err := g.AddLink("mid", "far", 1.0); err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	if err := g.AddLink("far", "farther", 1.0); err != nil {
		t.Fatalf("AddLink: %v", err)
	}

	near := subentity("near", "mid")
	distant := subentity("distant", "farther")
	stimuli := []model.Stimulus{{ID: "s1", NodeID: "s"}}

	scores := GraphProximityReachability{}.Score([]*model.Subentity{near, distant}, g, stimuli)
	if scores["near"] <= scores["distant"] {
		t.Fatalf("near score %v should exceed distant score %v", scores["near"], scores["distant"])
	}
}

func TestGraphProximityReachabilityUniformWithoutGraph(t *testing.T) {
	subs := []*model.Subentity{subentity("a", "n1"), subentity("b", "n2")}
	scores := GraphProximityReachability{}.Score(subs, nil, []model.Stimulus{{NodeID: "n1"}})
	for _, s := range subs {
		if scores[s.ID] != 1.0 {
			t.Fatalf("scores = %v, want uniform 1.0 without a graph", scores)
		}
	}
}
