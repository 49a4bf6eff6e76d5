package graph

import (
	"fmt"
	"sync"

	"github.com/signalsfoundry/stride-kernel/model"
)

// EventType indicates what kind of structural change happened in the graph.
type EventType int

const (
	EventNodeAdded EventType = iota
	EventLinkAdded
)

// Event is emitted to subscribers on structural changes.
type Event struct {
	Type   EventType
	NodeID string
	Source string
	Target string
}

// Graph is an in-memory, thread-safe store for the shared simulation graph:
// nodes carrying per-subentity energy, and weighted directed links between
// them. The scheduler core reads it for reachability scoring; the stride
// function reads and writes node energy through the core energy operations.
type Graph struct {
	mu sync.RWMutex

	nodes map[string]*model.Node
	// out[src][dst] = link weight
	out map[string]map[string]float64
	// in[dst] lists sources, kept for proximity searches against link direction
	in map[string][]string

	subs []func(Event)
}

// New constructs an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*model.Node),
		out:   make(map[string]map[string]float64),
		in:    make(map[string][]string),
	}
}

// Subscribe registers a callback invoked on every structural change.
func (g *Graph) Subscribe(fn func(Event)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subs = append(g.subs, fn)
}

// AddNode adds a new node. It returns an error if the ID already exists.
func (g *Graph) AddNode(n *model.Node) error {
	g.mu.Lock()
	if _, exists := g.nodes[n.ID]; exists {
		g.mu.Unlock()
		return fmt.Errorf("node with ID %q already exists", n.ID)
	}
	if n.Energy == nil {
		n.Energy = make(map[string]float64)
	}
	// store pointer so that stride functions can mutate energy in-place
	g.nodes[n.ID] = n
	subs := g.subs
	g.mu.Unlock()

	for _, fn := range subs {
		fn(Event{Type: EventNodeAdded, NodeID: n.ID})
	}
	return nil
}

// Node returns the node with the given ID, or nil if not found.
func (g *Graph) Node(id string) *model.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// HasNode reports whether a node with the given ID exists.
func (g *Graph) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// ListNodes returns a snapshot slice of all nodes.
func (g *Graph) ListNodes() []*model.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	res := make([]*model.Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		res = append(res, n)
	}
	return res
}

// AddLink adds a weighted directed link. Both endpoints must exist, and
// weight must be positive.
func (g *Graph) AddLink(source, target string, weight float64) error {
	g.mu.Lock()
	if _, ok := g.nodes[source]; !ok {
		g.mu.Unlock()
		return fmt.Errorf("link source node %q not found", source)
	}
	if _, ok := g.nodes[target]; !ok {
		g.mu.Unlock()
		return fmt.Errorf("link target node %q not found", target)
	}
	if weight <= 0 {
		g.mu.Unlock()
		return fmt.Errorf("link %s->%s: weight must be positive, got %v", source, target, weight)
	}
	if g.out[source] == nil {
		g.out[source] = make(map[string]float64)
	}
	if _, dup := g.out[source][target]; !dup {
		g.in[target] = append(g.in[target], source)
	}
	g.out[source][target] = weight
	subs := g.subs
	g.mu.Unlock()

	for _, fn := range subs {
		fn(Event{Type: EventLinkAdded, Source: source, Target: target})
	}
	return nil
}

// Neighbors returns the IDs of the nodes reachable from id over one outgoing
// link.
func (g *Graph) Neighbors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	res := make([]string, 0, len(g.out[id]))
	for target := range g.out[id] {
		res = append(res, target)
	}
	return res
}

// LinkWeight returns the weight of the link from source to target, or 0 if no
// such link exists.
func (g *Graph) LinkWeight(source, target string) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.out[source][target]
}

// HopsFrom runs a breadth-first search from the given seed nodes, treating
// links as undirected, and returns the hop distance to every reached node.
// Seeds that are not in the graph are ignored.
func (g *Graph) HopsFrom(seeds []string) map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	dist := make(map[string]int)
	queue := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if _, ok := g.nodes[s]; !ok {
			continue
		}
		if _, seen := dist[s]; seen {
			continue
		}
		dist[s] = 0
		queue = append(queue, s)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		d := dist[cur]
		for next := range g.out[cur] {
			if _, seen := dist[next]; !seen {
				dist[next] = d + 1
				queue = append(queue, next)
			}
		}
		for _, prev := range g.in[cur] {
			if _, seen := dist[prev]; !seen {
				dist[prev] = d + 1
				queue = append(queue, prev)
			}
		}
	}
	return dist
}
