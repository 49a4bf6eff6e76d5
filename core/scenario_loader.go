package core

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/signalsfoundry/stride-kernel/graph"
	"github.com/signalsfoundry/stride-kernel/model"
)

// Scenario is what a JSON scenario file yields after loading: the graph is
// populated in place and the scheduling population plus any seed stimuli are
// returned for the caller to drive ticks with.
type Scenario struct {
	Subentities []*model.Subentity
	Stimuli     []model.Stimulus
	NodeIDs     []string
	LinkCount   int
}

// internal JSON shapes, kept unexported so the file format can evolve.
type scenarioJSON struct {
	Nodes       []scenarioNodeJSON      `json:"nodes"`
	Links       []scenarioLinkJSON      `json:"links"`
	Subentities []scenarioSubentityJSON `json:"subentities"`
	Stimuli     []scenarioStimulusJSON  `json:"stimuli"`
}

type scenarioNodeJSON struct {
	ID string `json:"id"`
	// Energy seeds per subentity; values pass through the usual saturation
	// and cleanup on the way in.
	Energy map[string]float64 `json:"energy"`
}

type scenarioLinkJSON struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"` // optional; defaults to 1.0
}

type scenarioSubentityJSON struct {
	ID          string   `json:"id"`
	Extent      []string `json:"extent"`
	RhoLocalEMA *float64 `json:"rho_local_ema"` // optional; defaults to 1.0
	// CentroidSeeds are embedding vectors folded into the subentity's
	// centroid before the first tick.
	CentroidSeeds [][]float64 `json:"centroid_seeds"`
}

type scenarioStimulusJSON struct {
	ID        string    `json:"id"` // optional; generated when absent
	NodeID    string    `json:"node_id"`
	Embedding []float64 `json:"embedding"`
}

// LoadScenario reads a JSON scenario from r, populates g with nodes, energy
// seeds, and links, and returns the subentity population and seed stimuli.
//
// Structural problems fail the load outright; the graph may be partially
// populated in that case, so callers should treat the graph as dirty on
// error.
func LoadScenario(g *graph.Graph, r io.Reader) (*Scenario, error) {
	if g == nil {
		return nil, fmt.Errorf("load scenario: graph is nil")
	}

	var payload scenarioJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("load scenario: decode failed: %w", err)
	}

	result := &Scenario{
		Subentities: make([]*model.Subentity, 0, len(payload.Subentities)),
		Stimuli:     make([]model.Stimulus, 0, len(payload.Stimuli)),
		NodeIDs:     make([]string, 0, len(payload.Nodes)),
	}

	for _, jsNode := range payload.Nodes {
		if jsNode.ID == "" {
			return nil, fmt.Errorf("load scenario: node with empty id")
		}
		node := model.NewNode(jsNode.ID)
		if err := g.AddNode(node); err != nil {
			return nil, fmt.Errorf("load scenario: %w", err)
		}
		for subentity, value := range jsNode.Energy {
			SetEnergy(node, subentity, value)
		}
		result.NodeIDs = append(result.NodeIDs, jsNode.ID)
	}

	for _, jsLink := range payload.Links {
		weight := jsLink.Weight
		if weight == 0 {
			weight = 1.0
		}
		if err := g.AddLink(jsLink.Source, jsLink.Target, weight); err != nil {
			return nil, fmt.Errorf("load scenario: %w", err)
		}
		result.LinkCount++
	}

	for _, jsSub := range payload.Subentities {
		if jsSub.ID == "" {
			return nil, fmt.Errorf("load scenario: subentity with empty id")
		}
		for _, nodeID := range jsSub.Extent {
			if !g.HasNode(nodeID) {
				return nil, fmt.Errorf("load scenario: subentity %s extent references unknown node %s", jsSub.ID, nodeID)
			}
		}

		rho := 1.0
		if jsSub.RhoLocalEMA != nil {
			rho = *jsSub.RhoLocalEMA
		}

		sub := &model.Subentity{
			ID:          jsSub.ID,
			Extent:      append([]string(nil), jsSub.Extent...),
			RhoLocalEMA: rho,
		}
		if len(jsSub.CentroidSeeds) > 0 {
			sub.Centroid = model.NewCentroid()
			for _, seed := range jsSub.CentroidSeeds {
				sub.Centroid.Add(seed)
			}
		}
		result.Subentities = append(result.Subentities, sub)
	}

	for _, jsStim := range payload.Stimuli {
		id := jsStim.ID
		if id == "" {
			id = uuid.NewString()
		}
		if jsStim.NodeID != "" && !g.HasNode(jsStim.NodeID) {
			return nil, fmt.Errorf("load scenario: stimulus %s references unknown node %s", id, jsStim.NodeID)
		}
		result.Stimuli = append(result.Stimuli, model.Stimulus{
			ID:        id,
			NodeID:    jsStim.NodeID,
			Embedding: append([]float64(nil), jsStim.Embedding...),
		})
	}

	return result, nil
}
