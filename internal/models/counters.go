package models

// Bounds of the bounded counters.
const (
	MaxOwnershipSubstep  = 6
	MaxDiffusionStep     = 3
	OwnershipSubstepNone = 0
)

// SessionCounters is the per-session bookkeeping the decision engine reads.
type SessionCounters struct {
	RetryCount             int            `json:"retry_count"`
	TurnsInCurrentPhase    int            `json:"turns_in_current_phase"`
	ConsecutiveNoNewInfo   int            `json:"consecutive_no_new_info"`
	DeepestEmotionalDepth  EmotionalDepth `json:"deepest_emotional_depth"`
	ObjectionDiffusionStep int            `json:"objection_diffusion_step"`
	OwnershipSubstep       int            `json:"ownership_substep"`
	LastPlaybook           string         `json:"last_playbook,omitempty"`
	PlaybookStreak         int            `json:"playbook_streak,omitempty"`
}

// NewSessionCounters returns counters for a fresh session.
func NewSessionCounters() SessionCounters {
	return SessionCounters{DeepestEmotionalDepth: DepthSurface}
}

// Clamp pulls every counter into its valid range.
func (c SessionCounters) Clamp() SessionCounters {
	c.RetryCount = clampMin(c.RetryCount)
	c.TurnsInCurrentPhase = clampMin(c.TurnsInCurrentPhase)
	c.ConsecutiveNoNewInfo = clampMin(c.ConsecutiveNoNewInfo)
	c.PlaybookStreak = clampMin(c.PlaybookStreak)
	c.ObjectionDiffusionStep = clampRange(c.ObjectionDiffusionStep, MaxDiffusionStep)
	c.OwnershipSubstep = clampRange(c.OwnershipSubstep, MaxOwnershipSubstep)
	c.DeepestEmotionalDepth = ParseEmotionalDepth(string(c.DeepestEmotionalDepth))
	return c
}

func clampMin(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func clampRange(v, upper int) int {
	if v < 0 {
		return 0
	}
	if v > upper {
		return upper
	}
	return v
}
