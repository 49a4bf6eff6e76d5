package model

import (
	"math"
	"time"
)

// Node is a vertex of the shared simulation graph. Each node owns an
// independent energy slot per subentity; entries below the cleanup threshold
// are absent rather than stored as near-zero values.
type Node struct {
	ID string

	// Energy maps subentity ID to a saturated energy value. Mutations go
	// through the core energy operations, which enforce saturation and
	// cleanup; direct writes bypass those guarantees.
	Energy map[string]float64
}

// NewNode constructs a node with an empty energy map.
func NewNode(id string) *Node {
	return &Node{
		ID:     id,
		Energy: make(map[string]float64),
	}
}

// Subentity is an independent scheduling principal competing for the per-tick
// stride budget. Quota fields are reset every tick by the allocator.
type Subentity struct {
	ID string

	// Extent is the set of node IDs this subentity currently operates over.
	// Its size is used as an inverse weighting factor: smaller extents get
	// more strides per node.
	Extent []string

	// RhoLocalEMA is a smoothed local-load signal; lower is healthier.
	RhoLocalEMA float64

	// Centroid aggregates a representative embedding for the subentity's
	// current focus, scored against stimulus embeddings for urgency.
	Centroid *Centroid

	// QuotaAssigned is the total strides granted for the current tick.
	QuotaAssigned int
	// QuotaRemaining counts down as strides are consumed; never negative.
	QuotaRemaining int
}

// ExtentSize returns the number of nodes in the subentity's extent.
func (s *Subentity) ExtentSize() int {
	return len(s.Extent)
}

// Stimulus is an external event carrying an embedding vector and, optionally,
// the graph node where it landed.
type Stimulus struct {
	ID         string
	NodeID     string // optional location in the graph
	Embedding  []float64
	ReceivedAt time.Time
}

// ScheduleEntry assigns one stride to a subentity. StrideIndex is a zero-based
// counter private to that subentity within the current tick, not the entry's
// position in the global sequence.
type ScheduleEntry struct {
	SubentityID string
	StrideIndex int
}

// Centroid is a running-mean aggregator over embedding vectors. It is the
// representative "focus" vector used for urgency scoring.
type Centroid struct {
	mean []float64
	n    int
}

// NewCentroid constructs an empty centroid.
func NewCentroid() *Centroid {
	return &Centroid{}
}

// Count returns the number of vectors aggregated so far.
func (c *Centroid) Count() int {
	return c.n
}

// Add folds a vector into the running mean. Vectors with a dimension that
// differs from the first one observed are ignored.
func (c *Centroid) Add(vec []float64) {
	if len(vec) == 0 {
		return
	}
	if c.n == 0 {
		c.mean = make([]float64, len(vec))
		copy(c.mean, vec)
		c.n = 1
		return
	}
	if len(vec) != len(c.mean) {
		return
	}
	c.n++
	inv := 1.0 / float64(c.n)
	for i, v := range vec {
		c.mean[i] += (v - c.mean[i]) * inv
	}
}

// Similarity returns the cosine similarity between the centroid and vec,
// clamped to [0, 1]. It returns 0 when the centroid is empty, the dimensions
// disagree, or either vector has zero magnitude.
func (c *Centroid) Similarity(vec []float64) float64 {
	if c.n == 0 || len(vec) != len(c.mean) {
		return 0.0
	}
	var dot, magA, magB float64
	for i, v := range c.mean {
		dot += v * vec[i]
		magA += v * v
		magB += vec[i] * vec[i]
	}
	if magA == 0 || magB == 0 {
		return 0.0
	}
	sim := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	if sim < 0 {
		return 0.0
	}
	if sim > 1 {
		return 1.0
	}
	return sim
}
