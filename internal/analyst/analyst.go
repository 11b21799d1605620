// Package analyst turns a prospect message into the structured Analysis the
// decision engine consumes. The model's output is parsed defensively: any
// field that is missing or malformed falls back to its most conservative value.
package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/SalesPipe/internal/catalog"
	"github.com/BTreeMap/SalesPipe/internal/genai"
	"github.com/BTreeMap/SalesPipe/internal/models"
)

// ErrUnparsable is returned by Parse when the output is not a JSON object.
var ErrUnparsable = errors.New("analysis output is not a JSON object")

// Request is one message to analyze.
type Request struct {
	Phase   models.Phase
	Message string
	// History is the transcript before Message, oldest first.
	History []models.Message
	Profile models.ProspectProfile
}

// Analyst produces an Analysis for a prospect message.
type Analyst interface {
	Analyze(ctx context.Context, req Request) (models.Analysis, error)
}

// LLMAnalyst asks a language model for the analysis.
type LLMAnalyst struct {
	gen          genai.Generator
	catalog      *catalog.Catalog
	historyLimit int
}

// New creates an LLMAnalyst. A nil catalog selects catalog.Default().
func New(gen genai.Generator, c *catalog.Catalog) *LLMAnalyst {
	if c == nil {
		c = catalog.Default()
	}
	return &LLMAnalyst{gen: gen, catalog: c, historyLimit: models.DefaultHistoryLimit}
}

// Analyze always returns a usable Analysis. A transport failure is returned
// alongside the conservative analysis; unparsable output is logged and
// replaced by the conservative analysis without an error.
func (a *LLMAnalyst) Analyze(ctx context.Context, req Request) (models.Analysis, error) {
	spec := a.catalog.Spec(req.Phase)
	prompt := BuildPrompt(spec, req, a.historyLimit)

	raw, err := a.gen.Generate(ctx, SystemPrompt, prompt)
	if err != nil {
		slog.Error("LLMAnalyst.Analyze: generation failed", "error", err, "phase", req.Phase.String())
		return models.ConservativeAnalysis(), fmt.Errorf("analyst generation failed: %w", err)
	}

	analysis, err := Parse(raw, spec.CriterionIDs())
	if err != nil {
		slog.Warn("LLMAnalyst.Analyze: unparsable output, using conservative analysis", "error", err, "phase", req.Phase.String(), "length", len(raw))
		return models.ConservativeAnalysis(), nil
	}
	if len(analysis.ProfileUpdates.Unknown) > 0 {
		slog.Debug("LLMAnalyst.Analyze: ignoring unknown profile keys", "keys", analysis.ProfileUpdates.Unknown)
	}
	slog.Debug("LLMAnalyst.Analyze: analysis parsed", "phase", req.Phase.String(), "intent", analysis.UserIntent,
		"objection", analysis.ObjectionType, "met", analysis.ExitEvaluation.MetCount(), "total", analysis.ExitEvaluation.Total())
	return analysis, nil
}

// Parse decodes model output into an Analysis. Code fences and text around
// the JSON object are tolerated. Each field is decoded on its own so one bad
// value only costs that field. When ids is non-nil the checklist is projected
// onto those criterion ids.
func Parse(raw string, ids []string) (models.Analysis, error) {
	text := extractObject(genai.StripCodeFence(raw))
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return models.ConservativeAnalysis(), fmt.Errorf("%w: %v", ErrUnparsable, err)
	}

	a := models.ConservativeAnalysis()
	a.UserIntent = models.ParseUserIntent(stringField(fields, "user_intent"))
	a.ObjectionType = models.ParseObjectionType(stringField(fields, "objection_type"))
	if a.HasObjection() {
		a.ObjectionDetail = stringField(fields, "objection_detail")
	}
	a.ObjectionDiffusionStatus = models.ParseDiffusionStatus(stringField(fields, "objection_diffusion_status"))
	if _, ok := fields["response_richness"]; ok {
		a.ResponseRichness = models.ParseRichness(stringField(fields, "response_richness"))
	}
	a.EmotionalDepth = models.ParseEmotionalDepth(stringField(fields, "emotional_depth"))
	if v, ok := boolField(fields, "new_information"); ok {
		a.NewInformation = v
	}
	a.EmotionalTone = stringField(fields, "emotional_tone")
	a.EnergyLevel = stringField(fields, "energy_level")
	a.SummaryOfProspectPosition = stringField(fields, "summary")
	a.ProspectExactWords = stringList(fields["prospect_exact_words"])
	a.EmotionalCues = stringList(fields["emotional_cues"])

	if rawUpdates, ok := fields["profile_updates"]; ok && !isNull(rawUpdates) {
		var updates models.ProfileUpdates
		if err := json.Unmarshal(rawUpdates, &updates); err != nil {
			slog.Warn("analyst.Parse: dropping malformed profile updates", "error", err)
		} else {
			a.ProfileUpdates = updates
		}
	}

	a.ExitEvaluation = parseExitEvaluation(fields["exit_evaluation"])
	if ids != nil {
		a.ExitEvaluation = a.ExitEvaluation.Project(ids)
	}
	return a, nil
}

func parseExitEvaluation(raw json.RawMessage) models.ExitEvaluation {
	eval := models.ExitEvaluation{Criteria: map[string]models.CriterionResult{}}
	if len(raw) == 0 {
		return eval
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return eval
	}
	var criteria map[string]json.RawMessage
	if err := json.Unmarshal(fields["criteria"], &criteria); err == nil {
		for id, c := range criteria {
			eval.Criteria[strings.TrimSpace(id)] = parseCriterion(c)
		}
	}
	eval.Reasoning = stringField(fields, "reasoning")
	eval.MissingInfo = stringList(fields["missing_info"])
	return eval
}

// parseCriterion accepts {"met": ..., "evidence": ...} or a bare boolean.
func parseCriterion(raw json.RawMessage) models.CriterionResult {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return models.CriterionResult{Met: b}
	}
	var obj struct {
		Met      any `json:"met"`
		Evidence any `json:"evidence"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return models.CriterionResult{}
	}
	result := models.CriterionResult{Met: truthy(obj.Met)}
	if s, ok := obj.Evidence.(string); ok {
		result.Evidence = strings.TrimSpace(s)
	}
	return result
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "met":
			return true
		}
	}
	return false
}

// extractObject trims anything before the first '{' and after the last '}'.
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") {
		return ""
	}
	return s
}

func boolField(fields map[string]json.RawMessage, key string) (bool, bool) {
	raw, ok := fields[key]
	if !ok {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes":
			return true, true
		case "false", "no":
			return false, true
		}
	}
	return false, false
}

func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		out := list[:0]
		for _, s := range list {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && strings.TrimSpace(single) != "" {
		return []string{strings.TrimSpace(single)}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}
