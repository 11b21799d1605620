package analyst

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/BTreeMap/SalesPipe/internal/catalog"
	"github.com/BTreeMap/SalesPipe/internal/models"
)

// mockGenerator implements genai.Generator for testing.
type mockGenerator struct {
	out    string
	err    error
	system string
	user   string
}

func (m *mockGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.system = systemPrompt
	m.user = userPrompt
	return m.out, m.err
}

const situationReply = "```json\n" + `{
  "user_intent": "direct answer",
  "objection_type": "none",
  "objection_detail": "ignored without an objection",
  "exit_evaluation": {
    "criteria": {
      "workflow_described": {"met": true, "evidence": "we export CSVs every morning"},
      "concrete_detail_shared": true,
      "operational_detail_sufficient": {"met": "no"},
      "made_up_criterion": {"met": true}
    },
    "reasoning": "workflow is clear",
    "missing_info": ["how many people"]
  },
  "response_richness": "rich",
  "emotional_depth": "moderate",
  "new_information": true,
  "profile_updates": {"team_size": 12, "tools_mentioned": ["Excel", "Slack"], "favourite_color": "blue"},
  "prospect_exact_words": ["every single morning", " "],
  "energy_level": "medium"
}` + "\n```"

func TestParse_FullReply(t *testing.T) {
	ids := catalog.Default().Spec(models.PhaseSituation).CriterionIDs()
	a, err := Parse(situationReply, ids)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if a.UserIntent != models.IntentDirectAnswer {
		t.Errorf("expected DIRECT_ANSWER, got %q", a.UserIntent)
	}
	if a.ObjectionDetail != "" {
		t.Errorf("expected detail dropped without an objection, got %q", a.ObjectionDetail)
	}
	want := map[string]models.CriterionResult{
		"workflow_described":            {Met: true, Evidence: "we export CSVs every morning"},
		"concrete_detail_shared":        {Met: true},
		"operational_detail_sufficient": {Met: false},
	}
	if diff := cmp.Diff(want, a.ExitEvaluation.Criteria); diff != "" {
		t.Errorf("criteria mismatch (-want +got):\n%s", diff)
	}
	if a.ResponseRichness != models.RichnessRich || a.EmotionalDepth != models.DepthModerate {
		t.Errorf("expected rich/moderate, got %s/%s", a.ResponseRichness, a.EmotionalDepth)
	}
	if got := a.ProfileUpdates.Set[models.FieldTeamSize]; got != "12" {
		t.Errorf("expected team_size 12, got %q", got)
	}
	if diff := cmp.Diff([]string{"Excel", "Slack"}, a.ProfileUpdates.Append[models.FieldToolsMentioned]); diff != "" {
		t.Errorf("tools mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"favourite_color"}, a.ProfileUpdates.Unknown); diff != "" {
		t.Errorf("unknown keys mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"every single morning"}, a.ProspectExactWords); diff != "" {
		t.Errorf("exact words mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_MissingFieldsAreConservative(t *testing.T) {
	a, err := Parse(`Sure! Here you go: {"user_intent": "AGREEMENT"} hope that helps`, []string{"a", "b"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if a.UserIntent != models.IntentAgreement {
		t.Errorf("expected AGREEMENT, got %q", a.UserIntent)
	}
	if a.ObjectionType != models.ObjectionNone {
		t.Errorf("expected NONE objection, got %q", a.ObjectionType)
	}
	if a.ExitEvaluation.Total() != 2 || a.ExitEvaluation.MetCount() != 0 {
		t.Errorf("expected 0 of 2 criteria met, got %d of %d", a.ExitEvaluation.MetCount(), a.ExitEvaluation.Total())
	}
	if !a.NewInformation {
		t.Error("expected new_information to default to true")
	}
	if a.ResponseRichness != models.RichnessModerate {
		t.Errorf("expected moderate richness, got %s", a.ResponseRichness)
	}
}

func TestParse_BadEnumsFallBack(t *testing.T) {
	raw := `{"user_intent": "THINKING", "objection_type": "vibes", "emotional_depth": 3,
		"response_richness": "enormous", "new_information": "no", "objection_diffusion_status": "maybe"}`
	a, err := Parse(raw, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if a.UserIntent != models.IntentUnknown {
		t.Errorf("expected unknown intent, got %q", a.UserIntent)
	}
	if a.ObjectionType != models.ObjectionNone {
		t.Errorf("expected NONE, got %q", a.ObjectionType)
	}
	if a.EmotionalDepth != models.DepthSurface {
		t.Errorf("expected surface, got %s", a.EmotionalDepth)
	}
	if a.ResponseRichness != models.RichnessModerate {
		t.Errorf("expected moderate, got %s", a.ResponseRichness)
	}
	if a.NewInformation {
		t.Error("expected the string \"no\" to read as false")
	}
	if a.ObjectionDiffusionStatus != models.DiffusionNone {
		t.Errorf("expected no diffusion status, got %q", a.ObjectionDiffusionStatus)
	}
}

func TestParse_Objection(t *testing.T) {
	raw := `{"user_intent": "PUSHBACK", "objection_type": "PRICE", "objection_detail": "too pricey for us",
		"objection_diffusion_status": "Isolated", "profile_updates": null}`
	a, err := Parse(raw, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if a.ObjectionType != models.ObjectionPrice || a.ObjectionDetail != "too pricey for us" {
		t.Errorf("expected PRICE with detail, got %s %q", a.ObjectionType, a.ObjectionDetail)
	}
	if a.ObjectionDiffusionStatus != models.DiffusionIsolated {
		t.Errorf("expected isolated, got %q", a.ObjectionDiffusionStatus)
	}
	if !a.ProfileUpdates.IsEmpty() {
		t.Errorf("expected no profile updates, got %+v", a.ProfileUpdates)
	}
}

func TestParse_Unparsable(t *testing.T) {
	for _, raw := range []string{"", "I can't help with that", "{not json}", "[1, 2]"} {
		a, err := Parse(raw, nil)
		if !errors.Is(err, ErrUnparsable) {
			t.Errorf("%q: expected ErrUnparsable, got %v", raw, err)
		}
		if diff := cmp.Diff(models.ConservativeAnalysis(), a); diff != "" {
			t.Errorf("%q: expected conservative analysis (-want +got):\n%s", raw, diff)
		}
	}
}

func TestAnalyze_UsesPhaseCriteria(t *testing.T) {
	gen := &mockGenerator{out: `{"user_intent": "DIRECT_ANSWER", "exit_evaluation": {"criteria": {"role_shared": true}}}`}
	an := New(gen, nil)
	req := Request{
		Phase:   models.PhaseConnection,
		Message: "I run ops at a logistics firm",
		History: []models.Message{
			{Role: models.RoleAssistant, Content: "Hi there!"},
			{Role: models.RoleUser, Content: "hey"},
		},
	}
	a, err := an.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gen.system != SystemPrompt {
		t.Error("expected the analyst system prompt")
	}
	for _, want := range []string{"CURRENT PHASE: CONNECTION", "role_shared:", "SALLY: Hi there!", "PROSPECT: hey", "I run ops at a logistics firm", "Nothing yet"} {
		if !strings.Contains(gen.user, want) {
			t.Errorf("expected prompt to contain %q", want)
		}
	}
	wantTotal := len(catalog.Default().Spec(models.PhaseConnection).Criteria)
	if a.ExitEvaluation.Total() != wantTotal || a.ExitEvaluation.MetCount() != 1 {
		t.Errorf("expected 1 of %d criteria met, got %d of %d", wantTotal, a.ExitEvaluation.MetCount(), a.ExitEvaluation.Total())
	}
}

func TestAnalyze_GeneratorError(t *testing.T) {
	an := New(&mockGenerator{err: errors.New("rate limited")}, nil)
	a, err := an.Analyze(context.Background(), Request{Phase: models.PhaseSituation, Message: "hi"})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("expected wrapped generator error, got %v", err)
	}
	if diff := cmp.Diff(models.ConservativeAnalysis(), a); diff != "" {
		t.Errorf("expected conservative analysis (-want +got):\n%s", diff)
	}
}

func TestAnalyze_GarbageIsRecovered(t *testing.T) {
	an := New(&mockGenerator{out: "no json here"}, nil)
	a, err := an.Analyze(context.Background(), Request{Phase: models.PhaseSituation, Message: "hi"})
	if err != nil {
		t.Fatalf("expected unparsable output to be recovered, got %v", err)
	}
	if a.UserIntent != models.IntentUnknown || a.ExitEvaluation.MetCount() != 0 {
		t.Errorf("expected conservative analysis, got %+v", a)
	}
}

func TestBuildPrompt_HistoryLimit(t *testing.T) {
	var history []models.Message
	for i := 0; i < 15; i++ {
		history = append(history, models.Message{Role: models.RoleUser, Content: "msg-" + string(rune('a'+i))})
	}
	prompt := BuildPrompt(catalog.Default().Spec(models.PhaseSituation), Request{Phase: models.PhaseSituation, History: history}, 10)
	if strings.Contains(prompt, "msg-a") || strings.Contains(prompt, "msg-e") {
		t.Error("expected oldest messages to be dropped")
	}
	if !strings.Contains(prompt, "msg-f") || !strings.Contains(prompt, "msg-o") {
		t.Error("expected the last 10 messages to be kept")
	}

	prompt = BuildPrompt(catalog.Default().Spec(models.PhaseSituation), Request{
		Phase:   models.PhaseSituation,
		Profile: models.ProspectProfile{Name: "Ava"},
	}, 0)
	if strings.Contains(prompt, "RECENT CONVERSATION") {
		t.Error("expected no history section with a zero limit")
	}
	if !strings.Contains(prompt, `"name": "Ava"`) {
		t.Error("expected the profile to be rendered as JSON")
	}
}
