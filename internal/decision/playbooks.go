package decision

import (
	"fmt"

	"github.com/BTreeMap/SalesPipe/internal/models"
	"github.com/BTreeMap/SalesPipe/internal/playbook"
)

type playbookTrigger struct {
	name  string
	match func(e *Engine, in Input, d models.Decision) bool
}

// playbookTriggers are evaluated in order; the first eligible one wins.
var playbookTriggers = []playbookTrigger{
	{playbook.GracefulExit, func(_ *Engine, in Input, _ models.Decision) bool {
		return in.Phase.IsLate() &&
			in.Analysis.ObjectionDiffusionStatus == models.DiffusionRepeated &&
			in.Counters.LastPlaybook == playbook.GracefulAlternative
	}},
	{playbook.GracefulAlternative, func(_ *Engine, in Input, _ models.Decision) bool {
		return in.Phase.IsLate() && in.Analysis.ObjectionDiffusionStatus == models.DiffusionRepeated
	}},
	{playbook.ResolveAndClose, func(_ *Engine, in Input, _ models.Decision) bool {
		return in.Phase.IsLate() && in.Analysis.ObjectionDiffusionStatus == models.DiffusionIsolated
	}},
	{playbook.BridgeWithTheirWords, func(_ *Engine, in Input, _ models.Decision) bool {
		return in.Phase == models.PhaseOwnership && in.Counters.OwnershipSubstep == OwnershipBridge
	}},
	{playbook.OwnershipCeiling, func(e *Engine, in Input, _ models.Decision) bool {
		return in.Phase == models.PhaseOwnership && in.Counters.RetryCount >= e.catalog.MaxRetries(in.Phase)
	}},
	{playbook.ConfusionRecovery, func(_ *Engine, in Input, _ models.Decision) bool {
		return in.Analysis.UserIntent == models.IntentConfusion
	}},
	{playbook.EnergyShift, func(_ *Engine, in Input, _ models.Decision) bool {
		return in.Counters.ConsecutiveNoNewInfo >= NoNewInfoThreshold &&
			in.Analysis.ResponseRichness == models.RichnessThin
	}},
	{playbook.SpecificProbe, func(_ *Engine, in Input, d models.Decision) bool {
		return d.Action == models.ActionProbe && in.Phase.IsCritical()
	}},
}

// selectPlaybook attaches a playbook to STAY, PROBE and BREAK_GLASS decisions.
// Progress decisions pass through untouched, and an objection context already
// on the decision is kept alongside the playbook.
func (e *Engine) selectPlaybook(in Input, d models.Decision) models.Decision {
	switch d.Action {
	case models.ActionStay, models.ActionProbe, models.ActionBreakGlass:
	default:
		return d
	}
	for _, trigger := range playbookTriggers {
		if !trigger.match(e, in, d) {
			continue
		}
		pb, ok := playbook.Get(trigger.name)
		if !ok || !pb.Available(&in.Profile) || exhausted(pb, in.Counters) {
			continue
		}
		if pb.OverridesAction && d.Action != models.ActionStay {
			d.Action = models.ActionStay
		}
		d.Context = d.Context.WithPlaybook(pb.Name)
		d.Reason = fmt.Sprintf("%s [playbook: %s]", d.Reason, pb.Name)
		return d
	}
	return d
}

func exhausted(pb *playbook.Playbook, c models.SessionCounters) bool {
	return pb.MaxConsecutiveUses > 0 && c.LastPlaybook == pb.Name && c.PlaybookStreak >= pb.MaxConsecutiveUses
}
