package screen

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/psyhub-dev/psyhub-gateway/internal/bots"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/screening"
	"github.com/psyhub-dev/psyhub-gateway/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ORCHESTRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Orchestrator drives one screening run through its phases. It is a method
// object built per request around the loaded assessment; it holds no
// cross-request state.
type Orchestrator struct {
	a      *screening.Assessment
	oracle bots.Oracle
	log    *logger.Logger
}

// NewOrchestrator wraps a loaded assessment.
func NewOrchestrator(a *screening.Assessment, oracle bots.Oracle, log *logger.Logger) *Orchestrator {
	return &Orchestrator{a: a, oracle: oracle, log: log}
}

// Accumulate feeds every selected option of a screen into the engine and
// returns the per-axis delta of the accumulation.
func (o *Orchestrator) Accumulate(scr screening.Screen, selected []string) map[string]float64 {
	before := o.a.Engine.AxisVector
	for _, optID := range selected {
		for _, opt := range scr.Options {
			if opt.ID != optID {
				continue
			}
			o.a.Engine = screening.ProcessResponse(o.a.Engine, screening.Response{
				QuestionID:   scr.ID,
				OptionID:     opt.ID,
				AxisWeights:  opt.AxisWeights,
				LayerWeights: opt.LayerWeights,
			})
			break
		}
	}
	delta := make(map[string]float64, len(screening.Axes))
	for _, a := range screening.Axes {
		delta[a] = o.a.Engine.AxisVector[a] - before[a]
	}
	return delta
}

// ──────────────────────────────────────────────────────────────────────────────
// Phase 2: routing and stop decision
// ──────────────────────────────────────────────────────────────────────────────

var reNodeToken = regexp.MustCompile(`A[1-4]_L[0-4]`)

// RouteNode picks the next diagnostic node for Phase 2: oracle router first,
// then the first unvisited ambiguity zone, then the first unvisited bank
// node. The returned node is always backed by a reference template.
func (o *Orchestrator) RouteNode(ctx context.Context) string {
	user := fmt.Sprintf("Зоны неопределённости: %s\nМатрица напряжений: %s\nУже пройдены: %s",
		strings.Join(o.a.Engine.AmbiguityZones, ", "),
		renderMatrix(o.a.Engine.TensionMatrix),
		strings.Join(o.a.VisitedNodes, ", "))

	if reply, err := o.oracle.AskFast(ctx, routerPrompt, user, 50); err == nil {
		if node := reNodeToken.FindString(reply); node != "" && !o.a.Visited(node) {
			if _, ok := screening.Phase2Template(node); ok {
				return node
			}
		}
	} else {
		o.log.Warn("router oracle failed, using local fallback", logger.Err(err))
	}
	return o.fallbackNode()
}

// fallbackNode is the deterministic routing rule: first unvisited ambiguity
// zone, else first unvisited bank node, else the bank's first node.
func (o *Orchestrator) fallbackNode() string {
	for _, node := range o.a.Engine.AmbiguityZones {
		if !o.a.Visited(node) {
			if _, ok := screening.Phase2Template(node); ok {
				return node
			}
		}
	}
	for _, node := range screening.Phase2Nodes() {
		if !o.a.Visited(node) {
			return node
		}
	}
	return screening.Phase2Nodes()[0]
}

type stopVerdict struct {
	Stop bool `json:"stop"`
}

// ShouldStopAdaptive decides whether Phase 2 ends after a round. The round
// budget and the jump threshold are hard stops checked first; within them
// the oracle decides, and on oracle failure the local rule applies: every
// per-axis delta below the ambiguity cutoff. The oracle may end Phase 2
// early, never extend it.
func (o *Orchestrator) ShouldStopAdaptive(ctx context.Context, delta map[string]float64) bool {
	if o.a.AdaptiveRounds >= screening.MaxAdaptiveRounds ||
		o.a.Engine.Confidence >= screening.JumpThreshold {
		return true
	}

	user := fmt.Sprintf("Изменение осей за раунд: %s\nУверенность: %.3f\nЗадано вопросов: %d из %d",
		renderMatrix(delta), o.a.Engine.Confidence, o.a.AdaptiveRounds, screening.MaxAdaptiveRounds)

	if reply, err := o.oracle.AskFast(ctx, stopPrompt, user, 30); err == nil {
		var v stopVerdict
		if jsonErr := bots.ExtractJSON(reply, &v); jsonErr == nil {
			return v.Stop
		}
	} else {
		o.log.Warn("stop oracle failed, using local fallback", logger.Err(err))
	}

	allBelow := true
	for _, a := range screening.Axes {
		if abs(delta[a]) >= screening.AmbiguityCutoff {
			allBelow = false
			break
		}
	}
	return allBelow
}

// ──────────────────────────────────────────────────────────────────────────────
// Phase 3: question construction
// ──────────────────────────────────────────────────────────────────────────────

type constructedOption struct {
	Text         string             `json:"text"`
	AxisWeights  map[string]float64 `json:"axis_weights"`
	LayerWeights map[string]float64 `json:"layer_weights"`
}

type constructedScreen struct {
	Text    string              `json:"text"`
	Options []constructedOption `json:"options"`
}

// TargetNode picks the Phase 3 diagnostic target: the top unvisited
// ambiguity node, with the same fallbacks as routing.
func (o *Orchestrator) TargetNode() string {
	return o.fallbackNode()
}

// ConstructQuestion asks the strong model for a fresh multi-select question
// preserving the node's diagnostic split. On any failure the reference
// template is reused verbatim.
func (o *Orchestrator) ConstructQuestion(ctx context.Context, node string) screening.Screen {
	tmpl, _ := screening.Phase2Template(node)

	user := fmt.Sprintf("Узел: %s\nРеференсный вопрос: %s\nВарианты референса:\n%s",
		node, tmpl.Text, renderOptions(tmpl.Options))

	reply, err := o.oracle.Ask(ctx, constructorPrompt, user, 1200)
	if err != nil {
		o.log.Warn("constructor oracle failed, using reference template", logger.Err(err))
		return tmpl
	}

	var cs constructedScreen
	if err := bots.ExtractJSON(reply, &cs); err != nil || cs.Text == "" ||
		len(cs.Options) < 4 || len(cs.Options) > 6 {
		o.log.Warn("constructor output unusable, using reference template")
		return tmpl
	}

	scr := screening.Screen{
		ID:   fmt.Sprintf("p3_%s_r%d", strings.ToLower(node), o.a.ConstructedRounds+1),
		Text: cs.Text,
	}
	for i, co := range cs.Options {
		scr.Options = append(scr.Options, screening.Option{
			ID:           fmt.Sprintf("%s_o%d", scr.ID, i+1),
			Text:         co.Text,
			AxisWeights:  clampWeights(co.AxisWeights),
			LayerWeights: clampWeights(co.LayerWeights),
		})
	}
	return scr
}

func clampWeights(w map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(w))
	for k, v := range w {
		if v > 1 {
			v = 1
		}
		if v < -1 {
			v = -1
		}
		out[k] = v
	}
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// Report
// ──────────────────────────────────────────────────────────────────────────────

// Report is the folded report document persisted as report_json.
type Report struct {
	AssessmentID      string             `json:"assessment_id"`
	AxisVector        map[string]float64 `json:"axis_vector"`
	LayerVector       map[string]float64 `json:"layer_vector"`
	TensionMatrix     map[string]float64 `json:"tension_matrix"`
	DominantCells     []string           `json:"dominant_cells"`
	Rigidity          float64            `json:"rigidity"`
	Confidence        float64            `json:"confidence"`
	Phases            ReportPhases       `json:"phases"`
	StructuralReport  string             `json:"structural_report"`
	InterviewProtocol string             `json:"interview_protocol"`
}

// ReportPhases records how far each phase ran.
type ReportPhases struct {
	Phase1Screens     int `json:"phase1_screens"`
	AdaptiveRounds    int `json:"adaptive_rounds"`
	ConstructedRounds int `json:"constructed_rounds"`
}

// GenerateReport makes the two report oracle calls and folds the result.
// Oracle failures surface to the caller: a run without a report is left
// resumable rather than completed empty.
func (o *Orchestrator) GenerateReport(ctx context.Context) (*Report, error) {
	data := o.renderEngineData()

	structural, err := o.oracle.Ask(ctx, structuralReportPrompt, data, 2000)
	if err != nil {
		return nil, fmt.Errorf("structural report: %w", err)
	}
	bridge, err := o.oracle.Ask(ctx, interviewBridgePrompt, data, 1500)
	if err != nil {
		return nil, fmt.Errorf("interview bridge: %w", err)
	}

	return &Report{
		AssessmentID:  o.a.ID.String(),
		AxisVector:    o.a.Engine.AxisVector,
		LayerVector:   o.a.Engine.LayerVector,
		TensionMatrix: o.a.Engine.TensionMatrix,
		DominantCells: o.a.Engine.DominantCells,
		Rigidity:      o.a.Engine.Rigidity,
		Confidence:    o.a.Engine.Confidence,
		Phases: ReportPhases{
			Phase1Screens:     o.a.Phase1Index,
			AdaptiveRounds:    o.a.AdaptiveRounds,
			ConstructedRounds: o.a.ConstructedRounds,
		},
		StructuralReport:  strings.TrimSpace(structural),
		InterviewProtocol: strings.TrimSpace(bridge),
	}, nil
}

func (o *Orchestrator) renderEngineData() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Осевой вектор: %s\n", renderMatrix(o.a.Engine.AxisVector))
	fmt.Fprintf(&b, "Уровневый вектор: %s\n", renderMatrix(o.a.Engine.LayerVector))
	fmt.Fprintf(&b, "Матрица напряжений: %s\n", renderMatrix(o.a.Engine.TensionMatrix))
	fmt.Fprintf(&b, "Доминантные узлы: %s\n", strings.Join(o.a.Engine.DominantCells, ", "))
	fmt.Fprintf(&b, "Зоны неопределённости: %s\n", strings.Join(o.a.Engine.AmbiguityZones, ", "))
	fmt.Fprintf(&b, "Ригидность: %.3f\nУверенность: %.3f\nОтветов: %d\n",
		o.a.Engine.Rigidity, o.a.Engine.Confidence, len(o.a.Engine.ResponseHistory))
	return b.String()
}

// MarshalReport serializes the folded report for the report_json column.
func MarshalReport(r *Report) (json.RawMessage, error) {
	return json.Marshal(r)
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

// renderMatrix prints a float map in canonical key order for prompts.
func renderMatrix(m map[string]float64) string {
	keys := make([]string, 0, len(m))
	for _, a := range screening.Axes {
		if _, ok := m[a]; ok {
			keys = append(keys, a)
		}
	}
	for _, l := range screening.Layers {
		if _, ok := m[l]; ok {
			keys = append(keys, l)
		}
	}
	for _, l := range screening.Layers {
		for _, a := range screening.Axes {
			k := screening.TensionCellKey(l, a)
			if _, ok := m[k]; ok {
				keys = append(keys, k)
			}
		}
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.3f", k, m[k]))
	}
	return strings.Join(parts, " ")
}

func renderOptions(opts []screening.Option) string {
	var b strings.Builder
	for i, o := range opts {
		fmt.Fprintf(&b, "%d. %s (оси %s; уровни %s)\n", i+1, o.Text,
			renderMatrix(o.AxisWeights), renderMatrix(o.LayerWeights))
	}
	return b.String()
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
