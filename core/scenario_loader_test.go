package core

import (
	"strings"
	"testing"

	"github.com/signalsfoundry/stride-kernel/graph"
)

const sampleScenario = `{
  "nodes": [
    {"id": "n1", "energy": {"alpha": 0.4}},
    {"id": "n2"},
    {"id": "n3"}
  ],
  "links": [
    {"source": "n1", "target": "n2"},
    {"source": "n2", "target": "n3", "weight": 2.5}
  ],
  "subentities": [
    {"id": "alpha", "extent": ["n1", "n2"], "rho_local_ema": 2.0,
     "centroid_seeds": [[1, 0], [1, 0]]},
    {"id": "beta", "extent": ["n3"]}
  ],
  "stimuli": [
    {"node_id": "n1", "embedding": [1, 0]},
    {"id": "stim-7", "node_id": "n3", "embedding": [0, 1]}
  ]
}`

func TestLoadScenarioPopulatesGraph(t *testing.T) {
	g := graph.New()
	scenario, err := LoadScenario(g, strings.NewReader(sampleScenario))
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}

	if g.NodeCount() != 3 {
		t.Fatalf("node count = %d, want 3", g.NodeCount())
	}
	if scenario.LinkCount != 2 {
		t.Fatalf("link count = %d, want 2", scenario.LinkCount)
	}
	if w := g.LinkWeight("n2", "n3"); w != 2.5 {
		t.Fatalf("link weight n2->n3 = %v, want 2.5", w)
	}
	if w := g.LinkWeight("n1", "n2"); w != 1.0 {
		t.Fatalf("default link weight n1->n2 = %v, want 1.0", w)
	}

	// Energy seeds pass through saturation, so the stored value is
	// tanh(2 * 0.4), not the raw seed.
	node := g.Node("n1")
	if node == nil {
		t.Fatalf("node n1 missing after load")
	}
	if got, want := GetEnergy(node, "alpha"), Saturate(0.4); got != want {
		t.Fatalf("seeded energy = %v, want %v", got, want)
	}
}

func TestLoadScenarioBuildsPopulation(t *testing.T) {
	g := graph.New()
	scenario, err := LoadScenario(g, strings.NewReader(sampleScenario))
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}

	if len(scenario.Subentities) != 2 {
		t.Fatalf("subentity count = %d, want 2", len(scenario.Subentities))
	}

	alpha := scenario.Subentities[0]
	if alpha.ID != "alpha" || alpha.RhoLocalEMA != 2.0 || alpha.ExtentSize() != 2 {
		t.Fatalf("alpha loaded wrong: %+v", alpha)
	}
	if alpha.Centroid == nil || alpha.Centroid.Count() != 2 {
		t.Fatalf("alpha centroid not seeded: %+v", alpha.Centroid)
	}
	if sim := alpha.Centroid.Similarity([]float64{1, 0}); sim != 1.0 {
		t.Fatalf("alpha centroid similarity to seed = %v, want 1.0", sim)
	}

	beta := scenario.Subentities[1]
	if beta.RhoLocalEMA != 1.0 {
		t.Fatalf("beta rho default = %v, want 1.0", beta.RhoLocalEMA)
	}
	if beta.Centroid != nil {
		t.Fatalf("beta centroid = %+v, want nil when unseeded", beta.Centroid)
	}
}

func TestLoadScenarioStimuli(t *testing.T) {
	g := graph.New()
	scenario, err := LoadScenario(g, strings.NewReader(sampleScenario))
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}

	if len(scenario.Stimuli) != 2 {
		t.Fatalf("stimulus count = %d, want 2", len(scenario.Stimuli))
	}
	if scenario.Stimuli[0].ID == "" {
		t.Fatalf("stimulus without explicit id was not assigned one")
	}
	if scenario.Stimuli[1].ID != "stim-7" {
		t.Fatalf("explicit stimulus id = %q, want stim-7", scenario.Stimuli[1].ID)
	}
}

func TestLoadScenarioRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"nodes": [`},
		{"empty node id", `{"nodes": [{"id": ""}]}`},
		{"duplicate node", `{"nodes": [{"id": "n1"}, {"id": "n1"}]}`},
		{"link to unknown node", `{"nodes": [{"id": "n1"}], "links": [{"source": "n1", "target": "nope"}]}`},
		{"extent references unknown node", `{"nodes": [{"id": "n1"}], "subentities": [{"id": "a", "extent": ["missing"]}]}`},
		{"stimulus references unknown node", `{"nodes": [{"id": "n1"}], "stimuli": [{"node_id": "missing"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadScenario(graph.New(), strings.NewReader(tc.body)); err == nil {
				t.Fatalf("scenario accepted, want error:\n%s", tc.body)
			}
		})
	}
}

func TestLoadScenarioNilGraph(t *testing.T) {
	if _, err := LoadScenario(nil, strings.NewReader(`{}`)); err == nil {
		t.Fatalf("nil graph accepted, want error")
	}
}
