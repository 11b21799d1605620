package decision

import "github.com/BTreeMap/SalesPipe/internal/models"

// Observe folds the current turn's analysis into the counters before Decide
// runs. The current turn counts toward turns_in_current_phase.
func Observe(c models.SessionCounters, phase models.Phase, a models.Analysis) models.SessionCounters {
	c = c.Clamp()
	c.TurnsInCurrentPhase++
	if a.NewInformation {
		c.ConsecutiveNoNewInfo = 0
	} else {
		c.ConsecutiveNoNewInfo++
	}
	c.DeepestEmotionalDepth = c.DeepestEmotionalDepth.Max(a.EmotionalDepth)
	if phase.IsLate() {
		if step := a.ObjectionDiffusionStatus.Step(); step > c.ObjectionDiffusionStep {
			c.ObjectionDiffusionStep = step
		}
	}
	if phase == models.PhaseOwnership {
		c.OwnershipSubstep = NextOwnershipSubstep(c.OwnershipSubstep, a)
	}
	return c
}

// Apply records decision d, taken in phase from, in the counters. Phase-scoped
// counters reset whenever the target phase differs from the current one.
func Apply(c models.SessionCounters, from models.Phase, d models.Decision) models.SessionCounters {
	c.RetryCount = d.RetryCount
	if d.TargetPhase != from {
		c.TurnsInCurrentPhase = 0
		c.ConsecutiveNoNewInfo = 0
		c.DeepestEmotionalDepth = models.DepthSurface
		c.ObjectionDiffusionStep = 0
		c.OwnershipSubstep = OwnershipAskCommitment
		c.LastPlaybook = ""
		c.PlaybookStreak = 0
		return c
	}
	name := d.PlaybookName()
	switch {
	case name == "":
		c.PlaybookStreak = 0
	case name == c.LastPlaybook && c.PlaybookStreak > 0:
		c.PlaybookStreak++
	default:
		c.LastPlaybook = name
		c.PlaybookStreak = 1
	}
	return c.Clamp()
}
