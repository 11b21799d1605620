// Package quality scores a finished conversation on how well the agent
// mirrored, matched energy, kept its reply structure and built an emotional arc.
package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/BTreeMap/SalesPipe/internal/genai"
	"github.com/BTreeMap/SalesPipe/internal/models"
)

// Dimension weights of the overall score.
const (
	MirroringWeight    = 0.30
	EnergyWeight       = 0.20
	StructureWeight    = 0.25
	EmotionalArcWeight = 0.25
)

const responsePreview = 200

// SystemPrompt instructs the auditor model.
const SystemPrompt = `You are a conversation quality auditor for an AI sales agent named Sally. You get the full transcript and Sally's per-turn thought logs (phrases her analyst flagged for mirroring, emotional cues, energy levels).

Score four dimensions from 0 to 100. Be specific and cite evidence.
1. MIRRORING: did Sally use the exact words her analyst flagged?
2. ENERGY MATCHING: did her tone match the prospect's detected energy?
3. STRUCTURE: short mirror, then one clear question, never stacked?
4. EMOTIONAL ARC: did engagement deepen naturally across phases with smooth transitions?

Return only this JSON object:
{
  "mirroring_score": 0, "mirroring_details": "",
  "energy_matching_score": 0, "energy_matching_details": "",
  "structure_score": 0, "structure_details": "",
  "emotional_arc_score": 0, "emotional_arc_details": "",
  "recommendations": [""]
}`

// Scorer rates completed conversations.
type Scorer struct {
	gen   genai.Generator
	clock func() time.Time
}

// NewScorer creates a Scorer backed by gen.
func NewScorer(gen genai.Generator) *Scorer {
	return &Scorer{gen: gen, clock: time.Now}
}

type rawScore struct {
	MirroringScore        float64  `json:"mirroring_score"`
	MirroringDetails      string   `json:"mirroring_details"`
	EnergyMatchingScore   float64  `json:"energy_matching_score"`
	EnergyMatchingDetails string   `json:"energy_matching_details"`
	StructureScore        float64  `json:"structure_score"`
	StructureDetails      string   `json:"structure_details"`
	EmotionalArcScore     float64  `json:"emotional_arc_score"`
	EmotionalArcDetails   string   `json:"emotional_arc_details"`
	Recommendations       []string `json:"recommendations"`
}

// Score rates a conversation. It never fails: when the model call or its
// output is unusable the result is a zero score whose details carry the error.
func (s *Scorer) Score(ctx context.Context, messages []models.Message, logs []models.ThoughtLog) models.QualityScore {
	raw, err := s.gen.Generate(ctx, SystemPrompt, BuildPrompt(messages, logs))
	if err != nil {
		slog.Error("Scorer.Score: generation failed", "error", err)
		return s.failed(err)
	}
	var r rawScore
	if err := json.Unmarshal([]byte(genai.StripCodeFence(raw)), &r); err != nil {
		slog.Error("Scorer.Score: unparsable score", "error", err)
		return s.failed(fmt.Errorf("parse score: %w", err))
	}

	score := models.QualityScore{
		MirroringScore:       clampScore(r.MirroringScore),
		MirroringDetails:     r.MirroringDetails,
		EnergyMatchingScore:  clampScore(r.EnergyMatchingScore),
		EnergyMatchingDetail: r.EnergyMatchingDetails,
		StructureScore:       clampScore(r.StructureScore),
		StructureDetails:     r.StructureDetails,
		EmotionalArcScore:    clampScore(r.EmotionalArcScore),
		EmotionalArcDetails:  r.EmotionalArcDetails,
		Recommendations:      r.Recommendations,
		ScoredAt:             s.clock().UTC(),
	}
	score.OverallScore = Overall(score)
	slog.Info("Scorer.Score: conversation scored", "overall", score.OverallScore, "turns", len(logs))
	return score
}

// Overall is the weighted average of the four dimensions, rounded.
func Overall(q models.QualityScore) int {
	v := float64(q.MirroringScore)*MirroringWeight +
		float64(q.EnergyMatchingScore)*EnergyWeight +
		float64(q.StructureScore)*StructureWeight +
		float64(q.EmotionalArcScore)*EmotionalArcWeight
	return int(math.Round(v))
}

func (s *Scorer) failed(err error) models.QualityScore {
	return models.QualityScore{
		MirroringDetails: "Scoring failed: " + err.Error(),
		Recommendations:  []string{"Quality scoring encountered an error"},
		ScoredAt:         s.clock().UTC(),
	}
}

func clampScore(v float64) int {
	return int(math.Round(math.Max(0, math.Min(100, v))))
}

// BuildPrompt renders the transcript and a per-turn thought log summary.
func BuildPrompt(messages []models.Message, logs []models.ThoughtLog) string {
	var b strings.Builder
	b.WriteString("Score this completed sales conversation.\n\nFULL TRANSCRIPT:\n")
	for _, m := range messages {
		label := "Prospect"
		if m.Role == models.RoleAssistant {
			label = "Sally"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Phase.String(), label, m.Content)
	}

	b.WriteString("\nSALLY'S THOUGHT LOGS:\n")
	for _, l := range logs {
		words, _ := json.Marshal(l.Analysis.ProspectExactWords)
		cues, _ := json.Marshal(l.Analysis.EmotionalCues)
		said := l.ResponseText
		if len(said) > responsePreview {
			said = said[:responsePreview] + "..."
		}
		fmt.Fprintf(&b, "Turn %d (%s, %s):\n  Flagged phrases: %s\n  Emotional cues: %s\n  Energy: %s, Tone: %s, New info: %t\n  Sally said: %q\n",
			l.TurnNumber, l.PhaseBefore.String(), l.Decision.Action, words, cues,
			orUnknown(l.Analysis.EnergyLevel), orUnknown(l.Analysis.EmotionalTone), l.Analysis.NewInformation, said)
	}
	b.WriteString("\nProduce the quality score JSON.")
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}
