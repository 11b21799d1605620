package quality

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/SalesPipe/internal/models"
)

type mockGenerator struct {
	out    string
	err    error
	prompt string
}

func (m *mockGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.prompt = userPrompt
	return m.out, m.err
}

var scoredAt = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestScorer(gen *mockGenerator) *Scorer {
	s := NewScorer(gen)
	s.clock = func() time.Time { return scoredAt }
	return s
}

func TestScore_WeightedOverall(t *testing.T) {
	gen := &mockGenerator{out: "```json\n" + `{"mirroring_score": 80, "energy_matching_score": 60,
		"structure_score": 90, "emotional_arc_score": 70, "overall_score": 3,
		"recommendations": ["mirror more"]}` + "\n```"}
	messages := []models.Message{
		{Role: models.RoleAssistant, Content: "Hi there!", Phase: models.PhaseConnection},
		{Role: models.RoleUser, Content: "I run ops", Phase: models.PhaseConnection},
	}
	logs := []models.ThoughtLog{{
		TurnNumber:   1,
		PhaseBefore:  models.PhaseConnection,
		Analysis:     models.Analysis{ProspectExactWords: []string{"run ops"}, EnergyLevel: "low"},
		Decision:     models.Decision{Action: models.ActionStay},
		ResponseText: strings.Repeat("x", 300),
	}}

	q := newTestScorer(gen).Score(context.Background(), messages, logs)
	// 80*.3 + 60*.2 + 90*.25 + 70*.25 = 76
	if q.OverallScore != 76 {
		t.Errorf("expected overall 76, got %d", q.OverallScore)
	}
	if q.MirroringScore != 80 || q.StructureScore != 90 {
		t.Errorf("unexpected dimension scores %+v", q)
	}
	if !q.ScoredAt.Equal(scoredAt) {
		t.Errorf("expected scored at %v, got %v", scoredAt, q.ScoredAt)
	}
	for _, want := range []string{"[CONNECTION] Sally: Hi there!", "[CONNECTION] Prospect: I run ops", `["run ops"]`, "Energy: low", "..."} {
		if !strings.Contains(gen.prompt, want) {
			t.Errorf("expected prompt to contain %q", want)
		}
	}
}

func TestScore_ClampsOutOfRange(t *testing.T) {
	gen := &mockGenerator{out: `{"mirroring_score": 140, "energy_matching_score": -5, "structure_score": 50.4, "emotional_arc_score": 50}`}
	q := newTestScorer(gen).Score(context.Background(), nil, nil)
	if q.MirroringScore != 100 || q.EnergyMatchingScore != 0 || q.StructureScore != 50 {
		t.Errorf("expected clamped scores, got %+v", q)
	}
}

func TestScore_Failures(t *testing.T) {
	tests := []struct {
		name string
		gen  *mockGenerator
	}{
		{"generation error", &mockGenerator{err: errors.New("quota exceeded")}},
		{"garbage output", &mockGenerator{out: "I'd rate it a solid B"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newTestScorer(tt.gen).Score(context.Background(), nil, nil)
			if q.OverallScore != 0 {
				t.Errorf("expected zero score, got %d", q.OverallScore)
			}
			if !strings.HasPrefix(q.MirroringDetails, "Scoring failed:") {
				t.Errorf("expected failure details, got %q", q.MirroringDetails)
			}
			if len(q.Recommendations) != 1 {
				t.Errorf("expected one recommendation, got %v", q.Recommendations)
			}
		})
	}
}
