// Package decision implements the phase transition rules of a NEPQ sales
// conversation.
//
// Engine.Decide is a pure function of its Input: it performs no I/O, keeps no
// state between calls and never fails. Everything it needs (phase, analysis,
// profile and counters) is passed in by the caller, which owns persistence and
// must serialize turns of the same session.
package decision

import (
	"fmt"
	"strings"
	"time"

	"github.com/BTreeMap/SalesPipe/internal/catalog"
	"github.com/BTreeMap/SalesPipe/internal/models"
)

const (
	// DefaultSessionTimeout is the wall-clock ceiling of a conversation.
	DefaultSessionTimeout = 30 * time.Minute
	// NoNewInfoThreshold is the number of consecutive turns without new
	// information that counts as a stuck loop.
	NoNewInfoThreshold = 2
	// ForceAdvanceFraction is the share of met criteria (inclusive) that lets a
	// stuck phase advance anyway.
	ForceAdvanceFraction = 0.5
	// HardCeilingMargin is how far past max_retries a phase may run before the
	// retry rule advances it regardless of how many criteria are met.
	HardCeilingMargin = 2
)

// objectionTargets maps routable objections to the phase that addresses them.
var objectionTargets = map[models.ObjectionType]models.Phase{
	models.ObjectionPrice:  models.PhaseConsequence,
	models.ObjectionTiming: models.PhaseProblemAwareness,
	models.ObjectionNeed:   models.PhaseSolutionAwareness,
}

// Input is everything one decision depends on.
type Input struct {
	Phase    models.Phase
	Analysis models.Analysis
	Profile  models.ProspectProfile
	// Counters must already include the current turn (see Observe).
	Counters     models.SessionCounters
	TurnNumber   int
	SessionStart time.Time
	// Now is the time the turn is decided. When zero the engine's clock is used.
	Now time.Time
}

// Engine evaluates the decision rules against a phase catalog.
type Engine struct {
	catalog        *catalog.Catalog
	sessionTimeout time.Duration
	clock          func() time.Time
	playbooks      bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithSessionTimeout overrides DefaultSessionTimeout.
func WithSessionTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.sessionTimeout = d
		}
	}
}

// WithClock sets the clock used when Input.Now is zero.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithoutPlaybooks disables playbook selection so only the core rules run.
func WithoutPlaybooks() Option {
	return func(e *Engine) {
		e.playbooks = false
	}
}

// New creates an Engine. A nil catalog selects catalog.Default().
func New(c *catalog.Catalog, opts ...Option) *Engine {
	if c == nil {
		c = catalog.Default()
	}
	e := &Engine{
		catalog:        c,
		sessionTimeout: DefaultSessionTimeout,
		clock:          time.Now,
		playbooks:      true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the phase catalog the engine decides against.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// SessionTimeout returns the configured conversation time limit.
func (e *Engine) SessionTimeout() time.Duration {
	return e.sessionTimeout
}

// Decide picks the transition for one turn. The first matching rule wins:
// session timeout, terminal phase, objection handling, gap builder, minimum
// turns, thin-response probing, exit criteria, repetition, retry ceiling and
// finally a plain STAY. A playbook may then be attached to non-progress
// decisions.
func (e *Engine) Decide(in Input) models.Decision {
	in.Counters = in.Counters.Clamp()
	if in.Now.IsZero() {
		in.Now = e.clock()
	}
	d := e.decide(in)
	if e.playbooks {
		d = e.selectPlaybook(in, d)
	}
	return d
}

func (e *Engine) decide(in Input) models.Decision {
	phase := in.Phase
	a := in.Analysis
	retry := in.Counters.RetryCount

	if !in.SessionStart.IsZero() {
		if elapsed := in.Now.Sub(in.SessionStart); elapsed > e.sessionTimeout {
			return models.Decision{
				Action:      models.ActionEnd,
				TargetPhase: phase,
				Reason:      fmt.Sprintf("Session exceeded %s limit (%.0fs elapsed)", e.sessionTimeout, elapsed.Seconds()),
				RetryCount:  retry,
			}
		}
	}

	if phase == models.PhaseTerminated {
		return models.Decision{
			Action:      models.ActionEnd,
			TargetPhase: models.PhaseTerminated,
			Reason:      "Session already terminated",
			RetryCount:  retry,
		}
	}

	spec := e.catalog.Spec(phase)
	ids := spec.CriterionIDs()
	eval := a.ExitEvaluation.Project(ids)
	unmet := eval.Unmet(ids)
	// Only the repetition and retry rules look at the ceiling; every gate above
	// them still holds the phase.
	hardCeiling := retry >= spec.MaxRetries+HardCeilingMargin

	stay := func(reason string) models.Decision {
		return models.Decision{
			Action:      models.ActionStay,
			TargetPhase: phase,
			Reason:      reason,
			RetryCount:  retry + 1,
			ProbeTarget: first(unmet),
		}
	}

	if d, ok := e.handleObjection(phase, a, retry); ok {
		return d
	}

	if missing := in.Profile.MissingFields(spec.RequiredProfileFields); len(missing) > 0 {
		return stay(fmt.Sprintf("Gap Builder constraint: %s needs %s before it can run", phase, joinFields(missing)))
	}

	if in.Counters.TurnsInCurrentPhase < spec.MinTurns {
		return stay(fmt.Sprintf("Minimum turns not reached: %d/%d in %s", in.Counters.TurnsInCurrentPhase, spec.MinTurns, phase))
	}

	if a.ResponseRichness == models.RichnessThin {
		if a.EmotionalDepth == models.DepthSurface || a.EmotionalDepth == "" {
			return probe(phase, retry, unmet, "Prospect gave a thin, surface-level response. Dig deeper before advancing.")
		}
		if phase.IsCritical() {
			return probe(phase, retry, unmet, fmt.Sprintf("%s requires substantive engagement. Response too thin.", phase))
		}
	}

	summary := criteriaSummary(eval, ids)
	next := phase.Next()

	if eval.AllMet() {
		if phase == models.PhaseConsequence && next == models.PhaseOwnership &&
			in.Counters.DeepestEmotionalDepth != models.DepthDeep {
			return stay(fmt.Sprintf("Cannot advance to OWNERSHIP without deep emotional engagement (deepest: %s)", depthOrSurface(in.Counters.DeepestEmotionalDepth)))
		}
		if next == models.PhaseTerminated {
			if missing := missingContact(&in.Profile); len(missing) > 0 && a.UserIntent.IsAgreement() {
				return stay(fmt.Sprintf("Prospect committed but still need %s before closing", strings.Join(missing, " and ")))
			}
			return models.Decision{
				Action:      models.ActionEnd,
				TargetPhase: models.PhaseTerminated,
				Reason:      fmt.Sprintf("All %d exit criteria met (%s). Session ending.", eval.Total(), summary),
				RetryCount:  retry,
			}
		}
		if missing := in.Profile.MissingFields(e.catalog.RequiredFields(next)); len(missing) > 0 {
			return stay(fmt.Sprintf("All criteria met but %s is blocked: needs %s", next, joinFields(missing)))
		}
		return advance(next, fmt.Sprintf("All %d exit criteria met (%s). Advancing to %s.", eval.Total(), summary, next))
	}

	fraction := eval.FractionMet()

	if in.Counters.ConsecutiveNoNewInfo >= NoNewInfoThreshold {
		if fraction >= ForceAdvanceFraction {
			return advance(next, fmt.Sprintf("Repetition detected: %d turns with no new info, %d/%d criteria met (%s). Force-advancing to %s.",
				in.Counters.ConsecutiveNoNewInfo, eval.MetCount(), eval.Total(), summary, next))
		}
		if !hardCeiling {
			return breakGlass(phase, retry, unmet, fmt.Sprintf("Repetition detected: %d turns with no new info but only %d/%d criteria met. Trying a different angle.",
				in.Counters.ConsecutiveNoNewInfo, eval.MetCount(), eval.Total()))
		}
	}

	if retry >= spec.MaxRetries {
		switch {
		case fraction >= ForceAdvanceFraction:
			return advance(next, fmt.Sprintf("Break Glass: %d retries reached max %d, %d/%d criteria met (%s). Force-advancing to %s.",
				retry, spec.MaxRetries, eval.MetCount(), eval.Total(), summary, next))
		case hardCeiling:
			return advance(next, fmt.Sprintf("Hard ceiling: %d retries, well past max %d. Only %d/%d criteria met but force-advancing to %s.",
				retry, spec.MaxRetries, eval.MetCount(), eval.Total(), next))
		default:
			return breakGlass(phase, retry, unmet, fmt.Sprintf("Break Glass: %d retries, only %d/%d criteria met (%s). Trying a different angle.",
				retry, eval.MetCount(), eval.Total(), summary))
		}
	}

	reason := fmt.Sprintf("Exit criteria not fully met: %d/%d (%s)", eval.MetCount(), eval.Total(), summary)
	if len(unmet) > 0 {
		reason += ". Unmet: " + strings.Join(unmet, ", ")
	}
	return stay(reason)
}

// handleObjection applies the objection rules. ok is false when the objection
// does not decide the turn and evaluation should fall through.
func (e *Engine) handleObjection(phase models.Phase, a models.Analysis, retry int) (models.Decision, bool) {
	if !a.HasObjection() {
		return models.Decision{}, false
	}
	objection := a.ObjectionType
	detail := a.ObjectionDetail

	if a.UserIntent.IsAgreement() {
		return models.Decision{
			Action:      models.ActionStay,
			TargetPhase: phase,
			Reason:      fmt.Sprintf("Prospect is agreeing with a caveat (%s: %q). Staying to address it naturally.", objection, detail),
			Context:     models.CaveatContext(detail),
			RetryCount:  retry,
		}, true
	}

	if phase.IsLate() {
		return models.Decision{
			Action:      models.ActionStay,
			TargetPhase: phase,
			Reason:      fmt.Sprintf("%s objection in %s. Begin diffusion in place.", objection, phase),
			Context:     models.DiffuseContext(objection, detail),
			RetryCount:  retry,
		}, true
	}

	if objection == models.ObjectionAuthority {
		return models.Decision{
			Action:      models.ActionStay,
			TargetPhase: phase,
			Reason:      fmt.Sprintf("Authority objection detected (%q). Staying to clarify the decision process.", detail),
			Context:     models.AuthorityContext(detail),
			RetryCount:  retry,
		}, true
	}

	target, ok := objectionTargets[objection]
	if !ok || !e.catalog.Spec(phase).ObjectionRouting {
		return models.Decision{}, false
	}
	if phase.Index() > target.Index() {
		return models.Decision{
			Action:      models.ActionReroute,
			TargetPhase: target,
			Reason:      fmt.Sprintf("%s objection detected (%q). Routing back to %s.", objection, detail, target),
			Context:     models.RerouteContext(objection, detail),
			RetryCount:  0,
		}, true
	}
	return models.Decision{}, false
}

func advance(next models.Phase, reason string) models.Decision {
	if next == models.PhaseTerminated {
		return models.Decision{
			Action:      models.ActionEnd,
			TargetPhase: models.PhaseTerminated,
			Reason:      reason,
		}
	}
	return models.Decision{
		Action:      models.ActionAdvance,
		TargetPhase: next,
		Reason:      reason,
	}
}

func probe(phase models.Phase, retry int, unmet []string, reason string) models.Decision {
	return models.Decision{
		Action:      models.ActionProbe,
		TargetPhase: phase,
		Reason:      reason,
		RetryCount:  retry + 1,
		ProbeTarget: first(unmet),
	}
}

func breakGlass(phase models.Phase, retry int, unmet []string, reason string) models.Decision {
	return models.Decision{
		Action:      models.ActionBreakGlass,
		TargetPhase: phase,
		Reason:      reason,
		RetryCount:  retry + 1,
		ProbeTarget: first(unmet),
	}
}

func missingContact(p *models.ProspectProfile) []string {
	var missing []string
	if p.IsEmpty(models.FieldEmail) {
		missing = append(missing, "email")
	}
	if p.IsEmpty(models.FieldPhone) {
		missing = append(missing, "phone")
	}
	return missing
}

func criteriaSummary(eval models.ExitEvaluation, ids []string) string {
	if len(ids) == 0 {
		return "no criteria"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		status := "NOT MET"
		if eval.Criteria[id].Met {
			status = "MET"
		}
		parts[i] = id + "=" + status
	}
	return strings.Join(parts, ", ")
}

func joinFields(fields []models.ProfileField) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

func depthOrSurface(d models.EmotionalDepth) models.EmotionalDepth {
	if d == "" {
		return models.DepthSurface
	}
	return d
}

func first(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}
