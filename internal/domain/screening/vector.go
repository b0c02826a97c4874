// Package screening contains the screening domain: the stateless vector
// engine, the question banks, and the assessment entity.
//
// The engine works over four axes A1..A4 and five layers L0..L4. Every
// derived structure is recomputed from the full response history on each
// accumulation - state is never incrementally patched, so a crash between
// writes can only leave a row pre- or post-response, never mid-response.
package screening

import (
	"math"
	"sort"
	"strings"
)

// Axes and layers in canonical order. All per-cell iteration follows these
// slices so derived output is deterministic.
var (
	Axes   = []string{"A1", "A2", "A3", "A4"}
	Layers = []string{"L0", "L1", "L2", "L3", "L4"}
)

// Engine thresholds. Fixed by the method; never tune.
const (
	// AmbiguityCutoff marks a tension cell as a weak-signal zone.
	AmbiguityCutoff = 0.1
	// PolarizationCutoff marks an axis as polarized.
	PolarizationCutoff = 0.7
	// CoverageCutoff marks an axis as covered.
	CoverageCutoff = 0.2
	// RigidityStddevNorm normalizes response spread for the rigidity index.
	RigidityStddevNorm = 0.3
	// ConfidenceStddevNorm normalizes response spread for the stability term.
	ConfidenceStddevNorm = 0.5
	// DominantCellCount is how many top cells are reported.
	DominantCellCount = 3
	// CellCount is the size of the tension matrix (4 axes x 5 layers).
	CellCount = 20
)

// Response is one accumulated client answer: a weight per axis and per
// layer. Missing keys read as zero, so malformed responses degrade cleanly.
type Response struct {
	QuestionID   string             `json:"question_id,omitempty"`
	OptionID     string             `json:"option_id,omitempty"`
	AxisWeights  map[string]float64 `json:"axis_weights"`
	LayerWeights map[string]float64 `json:"layer_weights"`
}

// EngineState holds the response history and every structure derived from
// it. All derived fields are a pure function of ResponseHistory order.
type EngineState struct {
	ResponseHistory []Response         `json:"response_history"`
	AxisVector      map[string]float64 `json:"axis_vector"`
	LayerVector     map[string]float64 `json:"layer_vector"`
	TensionMatrix   map[string]float64 `json:"tension_matrix"`
	AmbiguityZones  []string           `json:"ambiguity_zones"`
	DominantCells   []string           `json:"dominant_cells"`
	Rigidity        float64            `json:"rigidity"`
	Confidence      float64            `json:"confidence"`
}

// NewEngineState returns the empty state: all-zero vectors, every cell an
// ambiguity zone.
func NewEngineState() EngineState {
	return FromHistory(nil)
}

// ProcessResponse appends a response and recomputes all derived structures
// from the full history. The input state is not mutated.
func ProcessResponse(s EngineState, r Response) EngineState {
	history := make([]Response, 0, len(s.ResponseHistory)+1)
	history = append(history, s.ResponseHistory...)
	history = append(history, r)
	return FromHistory(history)
}

// FromHistory rebuilds the complete engine state from a response history.
func FromHistory(history []Response) EngineState {
	axis := aggregate(history, Axes, axisWeight)
	layer := aggregate(history, Layers, layerWeight)
	tension := TensionMatrix(axis, layer)

	return EngineState{
		ResponseHistory: history,
		AxisVector:      axis,
		LayerVector:     layer,
		TensionMatrix:   tension,
		AmbiguityZones:  AmbiguityZones(tension),
		DominantCells:   DominantCells(tension),
		Rigidity:        RigidityIndex(history, axis),
		Confidence:      ConfidenceScore(history, axis, tension),
	}
}

// aggregate computes tanh(mean(weight)) per key. Zero responses yields all
// zeros.
func aggregate(history []Response, keys []string, weight func(Response, string) float64) map[string]float64 {
	out := make(map[string]float64, len(keys))
	for _, key := range keys {
		if len(history) == 0 {
			out[key] = 0
			continue
		}
		var sum float64
		for _, r := range history {
			sum += weight(r, key)
		}
		out[key] = math.Tanh(sum / float64(len(history)))
	}
	return out
}

func axisWeight(r Response, key string) float64  { return r.AxisWeights[key] }
func layerWeight(r Response, key string) float64 { return r.LayerWeights[key] }

// TensionCellKey names a tension matrix cell, e.g. "L0_A1".
func TensionCellKey(layer, axis string) string {
	return layer + "_" + axis
}

// NodeKey names a diagnostic node, e.g. "A1_L0". Phase 2/3 routing and
// ambiguity zones use this orientation.
func NodeKey(axis, layer string) string {
	return axis + "_" + layer
}

// NodeToCell converts an "A_j_L_k" node key into its "L_k_A_j" cell key.
// Unknown keys are returned unchanged.
func NodeToCell(node string) string {
	parts := strings.SplitN(node, "_", 2)
	if len(parts) != 2 {
		return node
	}
	return TensionCellKey(parts[1], parts[0])
}

// TensionMatrix computes the 20-cell outer product layer[k] * axis[j].
func TensionMatrix(axis, layer map[string]float64) map[string]float64 {
	out := make(map[string]float64, CellCount)
	for _, l := range Layers {
		for _, a := range Axes {
			out[TensionCellKey(l, a)] = layer[l] * axis[a]
		}
	}
	return out
}

// AmbiguityZones returns the node keys (A_j_L_k) of cells with
// |tension| < AmbiguityCutoff, in canonical axis-major order.
func AmbiguityZones(tension map[string]float64) []string {
	var zones []string
	for _, a := range Axes {
		for _, l := range Layers {
			if math.Abs(tension[TensionCellKey(l, a)]) < AmbiguityCutoff {
				zones = append(zones, NodeKey(a, l))
			}
		}
	}
	return zones
}

// DominantCells returns the top-3 node keys ranked by |tension| descending.
// Ties resolve by canonical order, keeping the output stable.
func DominantCells(tension map[string]float64) []string {
	type cell struct {
		node string
		mag  float64
	}
	cells := make([]cell, 0, CellCount)
	for _, a := range Axes {
		for _, l := range Layers {
			cells = append(cells, cell{
				node: NodeKey(a, l),
				mag:  math.Abs(tension[TensionCellKey(l, a)]),
			})
		}
	}
	sort.SliceStable(cells, func(i, j int) bool {
		return cells[i].mag > cells[j].mag
	})

	out := make([]string, 0, DominantCellCount)
	for i := 0; i < DominantCellCount && i < len(cells); i++ {
		out = append(out, cells[i].node)
	}
	return out
}

// RigidityIndex combines polarization, low variance, and strategy
// repetition into a 0..1 score:
//
//	0.3*polarization + 0.3*lowVariance + 0.4*strategyRepetition
func RigidityIndex(history []Response, axis map[string]float64) float64 {
	polarized := 0
	for _, a := range Axes {
		if math.Abs(axis[a]) > PolarizationCutoff {
			polarized++
		}
	}
	polarization := float64(polarized) / float64(len(Axes))

	lowVariance := clamp01(1 - meanAxisStddev(history)/RigidityStddevNorm)

	return clamp01(0.3*polarization + 0.3*lowVariance + 0.4*strategyRepetition(history))
}

// ConfidenceScore is the mean of coverage, stability, and clarity.
func ConfidenceScore(history []Response, axis map[string]float64, tension map[string]float64) float64 {
	covered := 0
	for _, a := range Axes {
		if math.Abs(axis[a]) > CoverageCutoff {
			covered++
		}
	}
	coverage := float64(covered) / float64(len(Axes))

	stability := clamp01(1 - meanAxisStddev(history)/ConfidenceStddevNorm)

	ambiguous := 0
	for _, key := range tension {
		if math.Abs(key) < AmbiguityCutoff {
			ambiguous++
		}
	}
	clarity := 1 - float64(ambiguous)/float64(CellCount)

	return (coverage + stability + clarity) / 3
}

// meanAxisStddev is the mean over axes of the per-axis population standard
// deviation of raw weights across responses. Zero or one response gives 0.
func meanAxisStddev(history []Response) float64 {
	if len(history) < 2 {
		return 0
	}
	n := float64(len(history))
	var total float64
	for _, a := range Axes {
		var sum float64
		for _, r := range history {
			sum += r.AxisWeights[a]
		}
		mean := sum / n
		var variance float64
		for _, r := range history {
			d := r.AxisWeights[a] - mean
			variance += d * d
		}
		total += math.Sqrt(variance / n)
	}
	return total / float64(len(Axes))
}

// strategyRepetition is the frequency of the most common per-axis sign
// pattern across responses.
func strategyRepetition(history []Response) float64 {
	if len(history) == 0 {
		return 0
	}
	counts := make(map[string]int)
	best := 0
	for _, r := range history {
		var b strings.Builder
		for _, a := range Axes {
			switch w := r.AxisWeights[a]; {
			case w > 0:
				b.WriteByte('+')
			case w < 0:
				b.WriteByte('-')
			default:
				b.WriteByte('0')
			}
		}
		counts[b.String()]++
		if counts[b.String()] > best {
			best = counts[b.String()]
		}
	}
	return float64(best) / float64(len(history))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
