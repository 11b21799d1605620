package models

import (
	"errors"
	"fmt"
	"strings"
)

// Phase is a stage of the NEPQ conversation. The zero value is not a valid phase.
type Phase int

const (
	PhaseConnection Phase = iota + 1
	PhaseSituation
	PhaseProblemAwareness
	PhaseSolutionAwareness
	PhaseConsequence
	PhaseOwnership
	PhaseCommitment
	// PhaseTerminated is the terminal sentinel; it is not part of the canonical order.
	PhaseTerminated
)

// ErrUnknownPhase is returned when a phase name cannot be parsed.
var ErrUnknownPhase = errors.New("unknown phase")

// PhaseOrder is the canonical forward order of the seven active phases.
var PhaseOrder = []Phase{
	PhaseConnection,
	PhaseSituation,
	PhaseProblemAwareness,
	PhaseSolutionAwareness,
	PhaseConsequence,
	PhaseOwnership,
	PhaseCommitment,
}

var phaseNames = map[Phase]string{
	PhaseConnection:        "CONNECTION",
	PhaseSituation:         "SITUATION",
	PhaseProblemAwareness:  "PROBLEM_AWARENESS",
	PhaseSolutionAwareness: "SOLUTION_AWARENESS",
	PhaseConsequence:       "CONSEQUENCE",
	PhaseOwnership:         "OWNERSHIP",
	PhaseCommitment:        "COMMITMENT",
	PhaseTerminated:        "TERMINATED",
}

// String returns the persisted name of the phase.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// ParsePhase parses a persisted phase name. Matching is case-insensitive.
func ParsePhase(s string) (Phase, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	for p, name := range phaseNames {
		if name == normalized {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPhase, s)
}

// IsValid reports whether p is one of the defined phases, including TERMINATED.
func (p Phase) IsValid() bool {
	_, ok := phaseNames[p]
	return ok
}

// Index returns the position of p in PhaseOrder, or -1 for TERMINATED and invalid values.
func (p Phase) Index() int {
	for i, candidate := range PhaseOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Next returns the phase after p. COMMITMENT and TERMINATED both lead to
// TERMINATED, and so does any value outside the canonical order.
func (p Phase) Next() Phase {
	idx := p.Index()
	if idx < 0 || idx >= len(PhaseOrder)-1 {
		return PhaseTerminated
	}
	return PhaseOrder[idx+1]
}

// IsLate reports whether p is OWNERSHIP or COMMITMENT. Objections raised in
// late phases are handled in place and never routed backward.
func (p Phase) IsLate() bool {
	return p == PhaseOwnership || p == PhaseCommitment
}

// IsCritical reports whether thin answers in p should always be probed.
func (p Phase) IsCritical() bool {
	return p == PhaseProblemAwareness || p == PhaseConsequence || p == PhaseOwnership
}

// IsEarly reports whether p is one of the discovery phases before CONSEQUENCE.
func (p Phase) IsEarly() bool {
	idx := p.Index()
	return idx >= 0 && idx < PhaseConsequence.Index()
}

// MarshalText implements encoding.TextMarshaler so phases persist as names.
func (p Phase) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPhase, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
