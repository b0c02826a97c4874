package simulator

import (
	"regexp"
	"strconv"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUPERVISOR CHANNEL
// ══════════════════════════════════════════════════════════════════════════════
//
// Every oracle turn carries two blocks: the client's visible reply and a
// hidden supervisor block with structured fields. The block is delimited by
// the marker line; fields missing from a turn degrade to safe defaults.

// Signal is the supervisor's traffic light for the last therapist move.
type Signal string

const (
	SignalGreen  Signal = "green"
	SignalYellow Signal = "yellow"
	SignalRed    Signal = "red"
)

// supervisorMarker splits the client-visible reply from the hidden block.
const supervisorMarker = "---SUPERVISOR---"

// Deltas are the supervisor's per-turn integer adjustments.
type Deltas struct {
	Trust    int `json:"trust"`
	Tension  int `json:"tension"`
	Access   int `json:"access"`
	Alliance int `json:"alliance"`
	Risk     int `json:"risk"`
}

// Supervisor is one parsed supervisor block.
type Supervisor struct {
	Signal      Signal  `json:"signal"`
	State       string  `json:"state"`
	Layer       string  `json:"layer"`
	Match       float64 `json:"match"`
	CascadeProb float64 `json:"cascade_prob"`
	Deltas      Deltas  `json:"deltas"`
	Crisis      bool    `json:"crisis"`
}

// Iteration is one recorded session turn.
type Iteration struct {
	Therapist  string     `json:"therapist"`
	Client     string     `json:"client"`
	Supervisor Supervisor `json:"supervisor"`
}

var (
	reSignal  = regexp.MustCompile(`(?im)^\s*SIGNAL:\s*(green|yellow|red)`)
	reState   = regexp.MustCompile(`(?im)^\s*STATE:\s*(\S+)`)
	reLayer   = regexp.MustCompile(`(?im)^\s*LAYER:\s*(L[0-4])`)
	reMatch   = regexp.MustCompile(`(?im)^\s*MATCH:\s*([0-9.]+)`)
	reCascade = regexp.MustCompile(`(?im)^\s*CASCADE:\s*([0-9.]+)`)
	reCrisis  = regexp.MustCompile(`(?im)^\s*CRISIS:\s*(yes|no|true|false)`)
	reDelta   = regexp.MustCompile(`(?i)(trust|tension|access|alliance|risk)\s*=\s*([+-]?\d+)`)
)

// ParseTurn splits an oracle reply into the client-visible text and the
// supervisor block. A reply without the marker is treated as all
// client-visible with a default green supervisor.
func ParseTurn(raw string) (string, Supervisor) {
	sup := Supervisor{Signal: SignalGreen, State: "contact", Layer: "L2", Match: 0.5}

	idx := strings.Index(raw, supervisorMarker)
	if idx < 0 {
		return strings.TrimSpace(raw), sup
	}
	visible := strings.TrimSpace(raw[:idx])
	block := raw[idx+len(supervisorMarker):]

	if m := reSignal.FindStringSubmatch(block); m != nil {
		sup.Signal = Signal(strings.ToLower(m[1]))
	}
	if m := reState.FindStringSubmatch(block); m != nil {
		sup.State = m[1]
	}
	if m := reLayer.FindStringSubmatch(block); m != nil {
		sup.Layer = strings.ToUpper(m[1])
	}
	if m := reMatch.FindStringSubmatch(block); m != nil {
		sup.Match = clamp01(parseFloat(m[1], sup.Match))
	}
	if m := reCascade.FindStringSubmatch(block); m != nil {
		sup.CascadeProb = clamp01(parseFloat(m[1], 0))
	}
	if m := reCrisis.FindStringSubmatch(block); m != nil {
		v := strings.ToLower(m[1])
		sup.Crisis = v == "yes" || v == "true"
	}
	for _, m := range reDelta.FindAllStringSubmatch(block, -1) {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		switch strings.ToLower(m[1]) {
		case "trust":
			sup.Deltas.Trust = n
		case "tension":
			sup.Deltas.Tension = n
		case "access":
			sup.Deltas.Access = n
		case "alliance":
			sup.Deltas.Alliance = n
		case "risk":
			sup.Deltas.Risk = n
		}
	}
	return visible, sup
}

func parseFloat(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
