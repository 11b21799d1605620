package decision

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/BTreeMap/SalesPipe/internal/catalog"
	"github.com/BTreeMap/SalesPipe/internal/models"
)

var sessionStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

var ignoreReason = cmpopts.IgnoreFields(models.Decision{}, "Reason")

func fullProfile() models.ProspectProfile {
	return models.ProspectProfile{
		Name:           "Sam",
		Role:           "ops lead",
		PainPoints:     []string{"manual reporting eats my Fridays"},
		DesiredState:   "reports that build themselves",
		CostOfInaction: "two lost days a month",
		Email:          "sam@example.com",
		Phone:          "555-0100",
	}
}

// checklist reports every catalog criterion of phase, marking met ones.
func checklist(phase models.Phase, met ...string) models.ExitEvaluation {
	eval := models.ExitEvaluation{Criteria: map[string]models.CriterionResult{}}
	for _, id := range catalog.Default().Spec(phase).CriterionIDs() {
		eval.Criteria[id] = models.CriterionResult{}
	}
	for _, id := range met {
		eval.Criteria[id] = models.CriterionResult{Met: true, Evidence: "prospect said so"}
	}
	return eval
}

func allMet(phase models.Phase) models.ExitEvaluation {
	return checklist(phase, catalog.Default().Spec(phase).CriterionIDs()...)
}

func answer(eval models.ExitEvaluation) models.Analysis {
	return models.Analysis{
		UserIntent:       models.IntentDirectAnswer,
		ObjectionType:    models.ObjectionNone,
		ExitEvaluation:   eval,
		ResponseRichness: models.RichnessModerate,
		EmotionalDepth:   models.DepthModerate,
		NewInformation:   true,
	}
}

func objection(o models.ObjectionType, intent models.UserIntent) models.Analysis {
	a := answer(models.ExitEvaluation{})
	a.ObjectionType = o
	a.ObjectionDetail = "not sure about " + strings.ToLower(string(o))
	a.UserIntent = intent
	return a
}

// settled counters have cleared the minimum-turn gate of every phase.
func settled() models.SessionCounters {
	c := models.NewSessionCounters()
	c.TurnsInCurrentPhase = 3
	c.DeepestEmotionalDepth = models.DepthModerate
	return c
}

func turn(phase models.Phase, a models.Analysis, c models.SessionCounters) Input {
	return Input{
		Phase:        phase,
		Analysis:     a,
		Profile:      fullProfile(),
		Counters:     c,
		TurnNumber:   4,
		SessionStart: sessionStart,
		Now:          sessionStart.Add(5 * time.Minute),
	}
}

func coreEngine() *Engine {
	return New(catalog.Default(), WithoutPlaybooks())
}

func TestSessionTimeout(t *testing.T) {
	e := coreEngine()
	in := turn(models.PhaseSituation, answer(allMet(models.PhaseSituation)), settled())

	in.Now = sessionStart.Add(31 * time.Minute)
	d := e.Decide(in)
	if d.Action != models.ActionEnd {
		t.Fatalf("expected END after 31 minutes, got %s", d.Action)
	}
	if d.TargetPhase != models.PhaseSituation {
		t.Errorf("expected timeout to keep phase SITUATION, got %s", d.TargetPhase)
	}

	in.Now = sessionStart.Add(30 * time.Minute)
	if d := e.Decide(in); d.Action == models.ActionEnd {
		t.Error("exactly 30 minutes must not time out")
	}
}

func TestSessionTimeoutOverridesObjection(t *testing.T) {
	in := turn(models.PhaseConsequence, objection(models.ObjectionPrice, models.IntentObjection), settled())
	in.Now = sessionStart.Add(45 * time.Minute)
	if d := coreEngine().Decide(in); d.Action != models.ActionEnd {
		t.Errorf("expected END, got %s", d.Action)
	}
}

func TestClockUsedWhenNowMissing(t *testing.T) {
	e := New(catalog.Default(), WithClock(func() time.Time { return sessionStart.Add(2 * time.Hour) }))
	in := turn(models.PhaseSituation, answer(checklist(models.PhaseSituation)), settled())
	in.Now = time.Time{}
	if d := e.Decide(in); d.Action != models.ActionEnd {
		t.Errorf("expected END from injected clock, got %s", d.Action)
	}
}

func TestTerminatedIsIdempotent(t *testing.T) {
	d := coreEngine().Decide(turn(models.PhaseTerminated, models.ConservativeAnalysis(), settled()))
	want := models.Decision{Action: models.ActionEnd, TargetPhase: models.PhaseTerminated}
	if diff := cmp.Diff(want, d, ignoreReason); diff != "" {
		t.Errorf("unexpected decision (-want +got):\n%s", diff)
	}
}

func TestObjectionHandling(t *testing.T) {
	retried := settled()
	retried.RetryCount = 2

	tests := []struct {
		name  string
		phase models.Phase
		in    models.Analysis
		want  models.Decision
	}{
		{
			name:  "agreement with caveat stays",
			phase: models.PhaseSituation,
			in:    objection(models.ObjectionPrice, models.IntentAgreement),
			want: models.Decision{Action: models.ActionStay, TargetPhase: models.PhaseSituation,
				Context: models.CaveatContext("not sure about price"), RetryCount: 2},
		},
		{
			name:  "late phase diffuses in place",
			phase: models.PhaseOwnership,
			in:    objection(models.ObjectionPrice, models.IntentObjection),
			want: models.Decision{Action: models.ActionStay, TargetPhase: models.PhaseOwnership,
				Context: models.DiffuseContext(models.ObjectionPrice, "not sure about price"), RetryCount: 2},
		},
		{
			name:  "authority never reroutes",
			phase: models.PhaseConsequence,
			in:    objection(models.ObjectionAuthority, models.IntentPushback),
			want: models.Decision{Action: models.ActionStay, TargetPhase: models.PhaseConsequence,
				Context: models.AuthorityContext("not sure about authority"), RetryCount: 2},
		},
		{
			name:  "timing routes back to problem awareness",
			phase: models.PhaseSolutionAwareness,
			in:    objection(models.ObjectionTiming, models.IntentObjection),
			want: models.Decision{Action: models.ActionReroute, TargetPhase: models.PhaseProblemAwareness,
				Context: models.RerouteContext(models.ObjectionTiming, "not sure about timing"), RetryCount: 0},
		},
		{
			name:  "need routes back to solution awareness",
			phase: models.PhaseConsequence,
			in:    objection(models.ObjectionNeed, models.IntentDeflection),
			want: models.Decision{Action: models.ActionReroute, TargetPhase: models.PhaseSolutionAwareness,
				Context: models.RerouteContext(models.ObjectionNeed, "not sure about need"), RetryCount: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := coreEngine().Decide(turn(tt.phase, tt.in, retried))
			if diff := cmp.Diff(tt.want, d, ignoreReason); diff != "" {
				t.Errorf("unexpected decision (-want +got):\n%s", diff)
			}
		})
	}
}

func TestForwardObjectionFallsThrough(t *testing.T) {
	// PRICE points at CONSEQUENCE, which is ahead of SITUATION.
	d := coreEngine().Decide(turn(models.PhaseSituation, objection(models.ObjectionPrice, models.IntentObjection), settled()))
	if d.Action != models.ActionStay {
		t.Fatalf("expected STAY, got %s", d.Action)
	}
	if d.Context != nil {
		t.Errorf("expected no objection context, got %s", d.Context)
	}
	if d.RetryCount != 1 {
		t.Errorf("expected retry 1, got %d", d.RetryCount)
	}
}

func TestSamePhaseObjectionFallsThrough(t *testing.T) {
	d := coreEngine().Decide(turn(models.PhaseProblemAwareness, objection(models.ObjectionTiming, models.IntentObjection), settled()))
	if d.Action == models.ActionReroute {
		t.Errorf("objection targeting the current phase must not reroute")
	}
}

func TestCatalogCanDisableRouting(t *testing.T) {
	c, err := catalog.Parse([]byte("phases:\n  SOLUTION_AWARENESS:\n    objection_routing: false\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := New(c, WithoutPlaybooks()).Decide(turn(models.PhaseSolutionAwareness, objection(models.ObjectionTiming, models.IntentObjection), settled()))
	if d.Action == models.ActionReroute {
		t.Errorf("expected routing to be disabled, got %s to %s", d.Action, d.TargetPhase)
	}
}

func TestLatePhasesNeverReroute(t *testing.T) {
	intents := []models.UserIntent{
		models.IntentDirectAnswer, models.IntentDeflection, models.IntentQuestion, models.IntentObjection,
		models.IntentSmallTalk, models.IntentAgreement, models.IntentPushback, models.IntentConfusion, models.IntentUnknown,
	}
	objections := []models.ObjectionType{models.ObjectionPrice, models.ObjectionTiming, models.ObjectionAuthority, models.ObjectionNeed}
	e := New(catalog.Default())
	for _, phase := range []models.Phase{models.PhaseOwnership, models.PhaseCommitment} {
		for _, o := range objections {
			for _, intent := range intents {
				for retry := 0; retry < 10; retry++ {
					c := settled()
					c.RetryCount = retry
					d := e.Decide(turn(phase, objection(o, intent), c))
					if d.Action == models.ActionReroute {
						t.Fatalf("%s/%s/%s retry %d: rerouted to %s", phase, o, intent, retry, d.TargetPhase)
					}
				}
			}
		}
	}
}

func TestGapBuilderBlocksPhase(t *testing.T) {
	in := turn(models.PhaseConsequence, answer(allMet(models.PhaseConsequence)), settled())
	in.Counters.RetryCount = 1
	in.Counters.DeepestEmotionalDepth = models.DepthDeep
	in.Profile.DesiredState = ""

	d := coreEngine().Decide(in)
	if d.Action != models.ActionStay {
		t.Fatalf("expected STAY, got %s", d.Action)
	}
	if !strings.Contains(d.Reason, "desired_state") {
		t.Errorf("expected reason to name desired_state, got %q", d.Reason)
	}
	if d.RetryCount != 2 {
		t.Errorf("expected retry 2, got %d", d.RetryCount)
	}
}

func TestGatesHoldAtHardCeiling(t *testing.T) {
	ceiling := func(phase models.Phase) models.SessionCounters {
		c := settled()
		c.RetryCount = catalog.Default().MaxRetries(phase) + HardCeilingMargin
		return c
	}
	thinReply := answer(checklist(models.PhaseSituation))
	thinReply.ResponseRichness = models.RichnessThin
	thinReply.EmotionalDepth = models.DepthSurface

	tests := []struct {
		name       string
		phase      models.Phase
		analysis   models.Analysis
		profile    func(*models.ProspectProfile)
		wantAction models.Action
		wantReason string
	}{
		{
			name:       "gap builder with nothing met",
			phase:      models.PhaseConsequence,
			analysis:   answer(checklist(models.PhaseConsequence)),
			profile:    func(p *models.ProspectProfile) { p.DesiredState = "" },
			wantAction: models.ActionStay,
			wantReason: "desired_state",
		},
		{
			name:       "gap builder with everything met",
			phase:      models.PhaseOwnership,
			analysis:   answer(allMet(models.PhaseOwnership)),
			profile:    func(p *models.ProspectProfile) { p.CostOfInaction = "" },
			wantAction: models.ActionStay,
			wantReason: "cost_of_inaction",
		},
		{
			name:       "thin surface reply",
			phase:      models.PhaseSituation,
			analysis:   thinReply,
			wantAction: models.ActionProbe,
		},
		{
			name:       "emotional depth",
			phase:      models.PhaseConsequence,
			analysis:   answer(allMet(models.PhaseConsequence)),
			wantAction: models.ActionStay,
			wantReason: "deep emotional engagement",
		},
		{
			name:       "contact details",
			phase:      models.PhaseCommitment,
			analysis:   answer(allMet(models.PhaseCommitment)),
			profile:    func(p *models.ProspectProfile) { p.Email, p.Phone = "", "" },
			wantAction: models.ActionStay,
			wantReason: "email and phone",
		},
		{
			name:       "next phase prerequisite",
			phase:      models.PhaseSolutionAwareness,
			analysis:   answer(allMet(models.PhaseSolutionAwareness)),
			profile:    func(p *models.ProspectProfile) { p.DesiredState = "" },
			wantAction: models.ActionStay,
			wantReason: "blocked",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ceiling(tt.phase)
			in := turn(tt.phase, tt.analysis, c)
			if tt.profile != nil {
				tt.profile(&in.Profile)
			}
			d := coreEngine().Decide(in)
			if d.Action != tt.wantAction || d.TargetPhase != tt.phase {
				t.Fatalf("expected %s in %s, got %s to %s (%s)", tt.wantAction, tt.phase, d.Action, d.TargetPhase, d.Reason)
			}
			if !strings.Contains(d.Reason, tt.wantReason) {
				t.Errorf("expected reason to mention %q, got %q", tt.wantReason, d.Reason)
			}
			if d.RetryCount != c.RetryCount+1 {
				t.Errorf("expected retry %d, got %d", c.RetryCount+1, d.RetryCount)
			}
		})
	}
}

func TestThinSurfaceProbesAtAnyRetry(t *testing.T) {
	a := answer(checklist(models.PhaseSituation))
	a.ResponseRichness = models.RichnessThin
	a.EmotionalDepth = models.DepthSurface
	limit := catalog.Default().MaxRetries(models.PhaseSituation) + HardCeilingMargin + 3
	for retry := 0; retry <= limit; retry++ {
		c := settled()
		c.RetryCount = retry
		d := coreEngine().Decide(turn(models.PhaseSituation, a, c))
		if d.Action != models.ActionProbe || d.TargetPhase != models.PhaseSituation {
			t.Errorf("retry %d: expected PROBE in SITUATION, got %s to %s", retry, d.Action, d.TargetPhase)
		}
	}
}

func TestMinimumTurnGate(t *testing.T) {
	c := settled()
	c.TurnsInCurrentPhase = 1
	d := coreEngine().Decide(turn(models.PhaseConnection, answer(allMet(models.PhaseConnection)), c))
	if d.Action != models.ActionStay {
		t.Fatalf("expected STAY on first turn, got %s", d.Action)
	}
	if d.RetryCount != 1 {
		t.Errorf("expected retry 1, got %d", d.RetryCount)
	}
	if !strings.Contains(d.Reason, "1/2") {
		t.Errorf("expected reason to report 1/2 turns, got %q", d.Reason)
	}
}

func TestThinResponseProbing(t *testing.T) {
	thin := func(depth models.EmotionalDepth, eval models.ExitEvaluation) models.Analysis {
		a := answer(eval)
		a.ResponseRichness = models.RichnessThin
		a.EmotionalDepth = depth
		return a
	}

	d := coreEngine().Decide(turn(models.PhaseSituation, thin(models.DepthSurface, checklist(models.PhaseSituation)), settled()))
	want := models.Decision{
		Action:      models.ActionProbe,
		TargetPhase: models.PhaseSituation,
		RetryCount:  1,
		ProbeTarget: "workflow_described",
	}
	if diff := cmp.Diff(want, d, ignoreReason); diff != "" {
		t.Errorf("thin+surface (-want +got):\n%s", diff)
	}

	d = coreEngine().Decide(turn(models.PhaseConsequence, thin(models.DepthModerate, allMet(models.PhaseConsequence)), settled()))
	if d.Action != models.ActionProbe {
		t.Errorf("expected PROBE for thin reply in CONSEQUENCE, got %s", d.Action)
	}

	d = coreEngine().Decide(turn(models.PhaseSituation, thin(models.DepthModerate, allMet(models.PhaseSituation)), settled()))
	if d.Action != models.ActionAdvance {
		t.Errorf("expected thin+moderate outside critical phases to advance, got %s", d.Action)
	}
}

func TestAdvanceWhenAllCriteriaMet(t *testing.T) {
	c := settled()
	c.RetryCount = 2
	d := coreEngine().Decide(turn(models.PhaseSituation, answer(allMet(models.PhaseSituation)), c))
	want := models.Decision{Action: models.ActionAdvance, TargetPhase: models.PhaseProblemAwareness, RetryCount: 0}
	if diff := cmp.Diff(want, d, ignoreReason); diff != "" {
		t.Errorf("unexpected decision (-want +got):\n%s", diff)
	}
}

func TestEmotionalDepthGate(t *testing.T) {
	c := settled()
	d := coreEngine().Decide(turn(models.PhaseConsequence, answer(allMet(models.PhaseConsequence)), c))
	if d.Action != models.ActionStay {
		t.Fatalf("expected STAY without deep engagement, got %s", d.Action)
	}
	if !strings.Contains(d.Reason, "moderate") {
		t.Errorf("expected reason to cite deepest depth, got %q", d.Reason)
	}

	c.DeepestEmotionalDepth = models.DepthDeep
	d = coreEngine().Decide(turn(models.PhaseConsequence, answer(allMet(models.PhaseConsequence)), c))
	if d.Action != models.ActionAdvance || d.TargetPhase != models.PhaseOwnership {
		t.Errorf("expected ADVANCE to OWNERSHIP, got %s to %s", d.Action, d.TargetPhase)
	}
}

func TestCommitmentCollectsContactBeforeEnding(t *testing.T) {
	a := answer(allMet(models.PhaseCommitment))
	a.UserIntent = models.IntentAgreement

	in := turn(models.PhaseCommitment, a, settled())
	in.Profile.Phone = ""
	d := coreEngine().Decide(in)
	if d.Action != models.ActionStay {
		t.Fatalf("expected STAY while phone is missing, got %s", d.Action)
	}
	if !strings.Contains(d.Reason, "phone") {
		t.Errorf("expected reason to mention phone, got %q", d.Reason)
	}

	in.Analysis.UserIntent = models.IntentDeflection
	if d := coreEngine().Decide(in); d.Action != models.ActionEnd {
		t.Errorf("expected END without an agreement signal, got %s", d.Action)
	}

	d = coreEngine().Decide(turn(models.PhaseCommitment, a, settled()))
	want := models.Decision{Action: models.ActionEnd, TargetPhase: models.PhaseTerminated}
	if diff := cmp.Diff(want, d, ignoreReason); diff != "" {
		t.Errorf("unexpected decision (-want +got):\n%s", diff)
	}
}

func TestNextPhaseGapBlocksAdvance(t *testing.T) {
	in := turn(models.PhaseSolutionAwareness, answer(allMet(models.PhaseSolutionAwareness)), settled())
	in.Profile.DesiredState = ""
	d := coreEngine().Decide(in)
	if d.Action != models.ActionStay {
		t.Fatalf("expected STAY, got %s", d.Action)
	}
	if !strings.Contains(d.Reason, "CONSEQUENCE") {
		t.Errorf("expected reason to name the blocked phase, got %q", d.Reason)
	}
}

func TestRepetitionDetection(t *testing.T) {
	stuck := settled()
	stuck.ConsecutiveNoNewInfo = 2
	stuck.RetryCount = 1

	a := answer(checklist(models.PhaseSituation, "workflow_described", "concrete_detail_shared"))
	a.NewInformation = false
	d := coreEngine().Decide(turn(models.PhaseSituation, a, stuck))
	want := models.Decision{Action: models.ActionAdvance, TargetPhase: models.PhaseProblemAwareness}
	if diff := cmp.Diff(want, d, ignoreReason); diff != "" {
		t.Errorf("2/3 met (-want +got):\n%s", diff)
	}

	a.ExitEvaluation = checklist(models.PhaseSituation, "workflow_described")
	d = coreEngine().Decide(turn(models.PhaseSituation, a, stuck))
	want = models.Decision{
		Action:      models.ActionBreakGlass,
		TargetPhase: models.PhaseSituation,
		RetryCount:  2,
		ProbeTarget: "concrete_detail_shared",
	}
	if diff := cmp.Diff(want, d, ignoreReason); diff != "" {
		t.Errorf("1/3 met (-want +got):\n%s", diff)
	}
}

func TestHalfMetIsInclusive(t *testing.T) {
	stuck := settled()
	stuck.ConsecutiveNoNewInfo = 2
	a := answer(checklist(models.PhaseCommitment, "positive_signal", "email_collected"))
	a.NewInformation = false

	d := coreEngine().Decide(turn(models.PhaseCommitment, a, stuck))
	if d.Action != models.ActionEnd || d.TargetPhase != models.PhaseTerminated {
		t.Errorf("expected 2/4 to force the final advance into END, got %s to %s", d.Action, d.TargetPhase)
	}
}

func TestRetryCeiling(t *testing.T) {
	maxRetries := catalog.Default().MaxRetries(models.PhaseSituation)
	tests := []struct {
		name  string
		retry int
		met   []string
		want  models.Decision
	}{
		{
			name:  "break glass below half",
			retry: maxRetries,
			met:   []string{"workflow_described"},
			want: models.Decision{Action: models.ActionBreakGlass, TargetPhase: models.PhaseSituation,
				RetryCount: maxRetries + 1, ProbeTarget: "concrete_detail_shared"},
		},
		{
			name:  "force advance at half",
			retry: maxRetries,
			met:   []string{"workflow_described", "operational_detail_sufficient"},
			want:  models.Decision{Action: models.ActionAdvance, TargetPhase: models.PhaseProblemAwareness},
		},
		{
			name:  "hard ceiling",
			retry: maxRetries + HardCeilingMargin,
			want:  models.Decision{Action: models.ActionAdvance, TargetPhase: models.PhaseProblemAwareness},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := settled()
			c.RetryCount = tt.retry
			d := coreEngine().Decide(turn(models.PhaseSituation, answer(checklist(models.PhaseSituation, tt.met...)), c))
			if diff := cmp.Diff(tt.want, d, ignoreReason); diff != "" {
				t.Errorf("unexpected decision (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDefaultStayCitesUnmetCriteria(t *testing.T) {
	d := coreEngine().Decide(turn(models.PhaseSituation, answer(checklist(models.PhaseSituation, "workflow_described")), settled()))
	if d.Action != models.ActionStay {
		t.Fatalf("expected STAY, got %s", d.Action)
	}
	if d.ProbeTarget != "concrete_detail_shared" {
		t.Errorf("expected probe target concrete_detail_shared, got %q", d.ProbeTarget)
	}
	if !strings.Contains(d.Reason, "operational_detail_sufficient") {
		t.Errorf("expected reason to list unmet criteria, got %q", d.Reason)
	}
	if d.RetryCount != 1 {
		t.Errorf("expected retry 1, got %d", d.RetryCount)
	}
}

func TestMismatchedCriterionIDsCountAsUnmet(t *testing.T) {
	// A checklist keyed by another phase's ids satisfies nothing here.
	d := coreEngine().Decide(turn(models.PhaseSituation, answer(allMet(models.PhaseConnection)), settled()))
	if d.Action != models.ActionStay {
		t.Errorf("expected STAY, got %s", d.Action)
	}
}

func TestConservativeAnalysisNeverAdvances(t *testing.T) {
	e := coreEngine()
	for _, phase := range models.PhaseOrder {
		d := e.Decide(turn(phase, models.ConservativeAnalysis(), settled()))
		if d.Action != models.ActionStay {
			t.Errorf("%s: expected STAY for a malformed analysis, got %s", phase, d.Action)
		}
	}
}

func TestNegativeCountersAreClamped(t *testing.T) {
	c := models.SessionCounters{RetryCount: -3, TurnsInCurrentPhase: -1, ConsecutiveNoNewInfo: -5}
	d := coreEngine().Decide(turn(models.PhaseSituation, answer(allMet(models.PhaseSituation)), c))
	if d.Action != models.ActionStay {
		t.Fatalf("expected STAY from the minimum-turn gate, got %s", d.Action)
	}
	if d.RetryCount != 1 {
		t.Errorf("expected retry 1, got %d", d.RetryCount)
	}
}

func TestUndefinedPhaseUsesSafeDefaults(t *testing.T) {
	empty, err := catalog.New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := New(empty, WithoutPlaybooks())

	d := e.Decide(turn(models.PhaseSituation, models.ConservativeAnalysis(), settled()))
	if d.Action != models.ActionStay {
		t.Errorf("expected STAY, got %s", d.Action)
	}

	c := settled()
	c.RetryCount = catalog.DefaultMaxRetries + HardCeilingMargin
	d = e.Decide(turn(models.PhaseSituation, models.ConservativeAnalysis(), c))
	if d.Action != models.ActionAdvance {
		t.Errorf("expected the default ceiling to force ADVANCE, got %s", d.Action)
	}
}

func TestAdvanceSequenceFollowsCanonicalOrder(t *testing.T) {
	e := New(catalog.Default())
	phase := models.PhaseConnection
	var visited []models.Phase
	for i := 0; i < len(models.PhaseOrder)+1 && phase != models.PhaseTerminated; i++ {
		visited = append(visited, phase)
		c := settled()
		c.DeepestEmotionalDepth = models.DepthDeep
		d := e.Decide(turn(phase, answer(allMet(phase)), c))
		switch d.Action {
		case models.ActionAdvance, models.ActionEnd:
		default:
			t.Fatalf("%s: expected progress, got %s (%s)", phase, d.Action, d.Reason)
		}
		if d.TargetPhase != phase.Next() {
			t.Fatalf("%s: expected next phase %s, got %s", phase, phase.Next(), d.TargetPhase)
		}
		phase = d.TargetPhase
	}
	if diff := cmp.Diff(models.PhaseOrder, visited); diff != "" {
		t.Errorf("phase sequence (-want +got):\n%s", diff)
	}
}

// simulate runs turns through Observe, Decide and Apply until the phase changes.
func simulate(t *testing.T, e *Engine, phase models.Phase, a models.Analysis, maxTurns int) (models.Decision, int) {
	t.Helper()
	c := models.NewSessionCounters()
	for i := 1; i <= maxTurns; i++ {
		c = Observe(c, phase, a)
		d := e.Decide(turn(phase, a, c))
		c = Apply(c, phase, d)
		if d.TargetPhase != phase {
			return d, i
		}
	}
	t.Fatalf("%s: no progress after %d turns", phase, maxTurns)
	return models.Decision{}, 0
}

func TestRetryCeilingForcesProgress(t *testing.T) {
	cat := catalog.Default()
	cases := map[string]func() models.Analysis{
		"nothing met": func() models.Analysis { return answer(checklist(models.PhaseSituation)) },
		"no new info": func() models.Analysis {
			a := answer(checklist(models.PhaseSituation))
			a.NewInformation = false
			return a
		},
	}
	for name, analysis := range cases {
		t.Run(name, func(t *testing.T) {
			limit := cat.MaxRetries(models.PhaseSituation) + HardCeilingMargin + cat.MinTurns(models.PhaseSituation) + 1
			d, turns := simulate(t, New(cat), models.PhaseSituation, analysis(), limit)
			if d.Action != models.ActionAdvance || d.TargetPhase != models.PhaseProblemAwareness {
				t.Errorf("expected ADVANCE to PROBLEM_AWARENESS, got %s to %s after %d turns", d.Action, d.TargetPhase, turns)
			}
		})
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	e := New(catalog.Default())
	in := turn(models.PhaseOwnership, objection(models.ObjectionPrice, models.IntentObjection), settled())
	in.Analysis.ObjectionDiffusionStatus = models.DiffusionRepeated
	first := e.Decide(in)
	for i := 0; i < 20; i++ {
		if diff := cmp.Diff(first, e.Decide(in)); diff != "" {
			t.Fatalf("decision changed between runs (-first +now):\n%s", diff)
		}
	}
}
