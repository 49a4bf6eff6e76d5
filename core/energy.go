package core

import (
	"math"

	"github.com/signalsfoundry/stride-kernel/model"
)

// Energy state model: a per-node, per-subentity saturated scalar field.
//
// Every stored value lies in [0, 1): negative candidates clamp to zero,
// growth is bounded by a tanh saturation curve, and entries that fall below
// the cleanup threshold are removed instead of lingering as near-zero noise.
// Mutating one subentity's slot never touches another's; the slots are
// independent map entries on the node.

const (
	// saturationSlope is the steepness of the tanh saturation curve.
	saturationSlope = 2.0
	// CleanupThreshold is the energy below which an entry is dropped.
	CleanupThreshold = 0.001
)

// Saturate maps a non-negative candidate into [0, 1) along the tanh curve.
func Saturate(x float64) float64 {
	return math.Tanh(saturationSlope * x)
}

// SetEnergy stores saturate(max(value, 0)) as the subentity's entire new
// value on the node. Results below the cleanup threshold remove the entry.
func SetEnergy(n *model.Node, subentity string, value float64) {
	store(n, subentity, value)
}

// GetEnergy returns the stored value, or 0 if the subentity has no entry.
func GetEnergy(n *model.Node, subentity string) float64 {
	return n.Energy[subentity]
}

// AddEnergy applies a delta to the subentity's energy on the node. The
// candidate current+delta is clamped, saturated, and cleaned up like SetEnergy.
func AddEnergy(n *model.Node, subentity string, delta float64) {
	store(n, subentity, GetEnergy(n, subentity)+delta)
}

// MultiplyEnergy scales the subentity's energy on the node, typically for
// decay. The scaled candidate is clamped, saturated, and cleaned up like
// SetEnergy.
func MultiplyEnergy(n *model.Node, subentity string, factor float64) {
	store(n, subentity, GetEnergy(n, subentity)*factor)
}

func store(n *model.Node, subentity string, candidate float64) {
	if candidate < 0 {
		candidate = 0
	}
	v := Saturate(candidate)
	if v < CleanupThreshold {
		delete(n.Energy, subentity)
		return
	}
	if n.Energy == nil {
		n.Energy = make(map[string]float64)
	}
	n.Energy[subentity] = v
}

// ClearEnergy removes the subentity's entry from the node, if present.
func ClearEnergy(n *model.Node, subentity string) {
	delete(n.Energy, subentity)
}

// ClearAllEnergy empties the node's energy map.
func ClearAllEnergy(n *model.Node) {
	for id := range n.Energy {
		delete(n.Energy, id)
	}
}

// ActiveSubentities returns the IDs of all subentities currently present on
// the node.
func ActiveSubentities(n *model.Node) []string {
	ids := make([]string, 0, len(n.Energy))
	for id := range n.Energy {
		ids = append(ids, id)
	}
	return ids
}

// TotalEnergy returns the sum of all stored values on the node.
func TotalEnergy(n *model.Node) float64 {
	var total float64
	for _, v := range n.Energy {
		total += v
	}
	return total
}

// MaxSubentityEnergy returns the subentity holding the largest energy on the
// node. It returns ("", 0) when the map is empty.
func MaxSubentityEnergy(n *model.Node) (string, float64) {
	var (
		maxID string
		maxV  float64
		found bool
	)
	for id, v := range n.Energy {
		if !found || v > maxV || (v == maxV && id < maxID) {
			maxID, maxV = id, v
			found = true
		}
	}
	if !found {
		return "", 0.0
	}
	return maxID, maxV
}

// EnergyDistribution returns each subentity's share of the node's total
// energy, summing to 1 when the total is positive. A node with zero total
// energy yields an empty map: no normalized distribution is defined there.
func EnergyDistribution(n *model.Node) map[string]float64 {
	total := TotalEnergy(n)
	if total == 0 {
		return map[string]float64{}
	}
	dist := make(map[string]float64, len(n.Energy))
	for id, v := range n.Energy {
		dist[id] = v / total
	}
	return dist
}

// VerifyIsolation reports whether every stored value on the node is within
// [0, 1]. A false result indicates external corruption; the model never
// self-heals, callers decide remediation.
func VerifyIsolation(n *model.Node) bool {
	for _, v := range n.Energy {
		if v < 0.0 || v > 1.0 {
			return false
		}
	}
	return true
}
