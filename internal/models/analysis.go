package models

import "strings"

// UserIntent classifies what the prospect's latest message was doing.
type UserIntent string

const (
	IntentDirectAnswer UserIntent = "DIRECT_ANSWER"
	IntentDeflection   UserIntent = "DEFLECTION"
	IntentQuestion     UserIntent = "QUESTION"
	IntentObjection    UserIntent = "OBJECTION"
	IntentSmallTalk    UserIntent = "SMALL_TALK"
	IntentAgreement    UserIntent = "AGREEMENT"
	IntentPushback     UserIntent = "PUSHBACK"
	IntentConfusion    UserIntent = "CONFUSION"
	// IntentUnknown is the neutral value used when the analyst omitted or mangled the intent.
	// It never counts as agreement.
	IntentUnknown UserIntent = ""
)

var knownIntents = []UserIntent{
	IntentDirectAnswer, IntentDeflection, IntentQuestion, IntentObjection,
	IntentSmallTalk, IntentAgreement, IntentPushback, IntentConfusion,
}

// ParseUserIntent normalizes s into a known intent, returning IntentUnknown when it does not match.
func ParseUserIntent(s string) UserIntent {
	normalized := UserIntent(normalizeEnum(s))
	for _, intent := range knownIntents {
		if intent == normalized {
			return intent
		}
	}
	return IntentUnknown
}

// IsAgreement reports whether the intent counts as the prospect going along.
func (i UserIntent) IsAgreement() bool {
	return i == IntentAgreement || i == IntentDirectAnswer
}

// ObjectionType is the category of resistance detected in the latest message.
type ObjectionType string

const (
	ObjectionPrice     ObjectionType = "PRICE"
	ObjectionTiming    ObjectionType = "TIMING"
	ObjectionAuthority ObjectionType = "AUTHORITY"
	ObjectionNeed      ObjectionType = "NEED"
	ObjectionNone      ObjectionType = "NONE"
)

// ParseObjectionType normalizes s, mapping anything unrecognized to ObjectionNone.
func ParseObjectionType(s string) ObjectionType {
	switch o := ObjectionType(normalizeEnum(s)); o {
	case ObjectionPrice, ObjectionTiming, ObjectionAuthority, ObjectionNeed:
		return o
	default:
		return ObjectionNone
	}
}

// Richness grades how much substance a response carried.
type Richness string

const (
	RichnessThin     Richness = "thin"
	RichnessModerate Richness = "moderate"
	RichnessRich     Richness = "rich"
)

// ParseRichness normalizes s. Unrecognized values fall back to moderate,
// which neither triggers a probe nor counts as a substantive answer on its own.
func ParseRichness(s string) Richness {
	switch r := Richness(strings.ToLower(strings.TrimSpace(s))); r {
	case RichnessThin, RichnessModerate, RichnessRich:
		return r
	default:
		return RichnessModerate
	}
}

// EmotionalDepth grades how personally invested the prospect sounded.
type EmotionalDepth string

const (
	DepthSurface  EmotionalDepth = "surface"
	DepthModerate EmotionalDepth = "moderate"
	DepthDeep     EmotionalDepth = "deep"
)

// ParseEmotionalDepth normalizes s; unrecognized values are treated as surface.
func ParseEmotionalDepth(s string) EmotionalDepth {
	switch d := EmotionalDepth(strings.ToLower(strings.TrimSpace(s))); d {
	case DepthSurface, DepthModerate, DepthDeep:
		return d
	default:
		return DepthSurface
	}
}

// Rank orders depths: surface 0, moderate 1, deep 2. Unknown values rank as surface.
func (d EmotionalDepth) Rank() int {
	switch d {
	case DepthModerate:
		return 1
	case DepthDeep:
		return 2
	default:
		return 0
	}
}

// Max returns the deeper of d and other.
func (d EmotionalDepth) Max(other EmotionalDepth) EmotionalDepth {
	if other.Rank() > d.Rank() {
		return other
	}
	if d.Rank() == 0 {
		return DepthSurface
	}
	return d
}

// DiffusionStatus tracks how far an in-place objection diffusion has progressed.
type DiffusionStatus string

const (
	DiffusionNone     DiffusionStatus = ""
	DiffusionDiffused DiffusionStatus = "diffused"
	DiffusionIsolated DiffusionStatus = "isolated"
	DiffusionResolved DiffusionStatus = "resolved"
	DiffusionRepeated DiffusionStatus = "repeated"
)

// ParseDiffusionStatus normalizes s, returning DiffusionNone for anything unrecognized.
func ParseDiffusionStatus(s string) DiffusionStatus {
	switch d := DiffusionStatus(strings.ToLower(strings.TrimSpace(s))); d {
	case DiffusionDiffused, DiffusionIsolated, DiffusionResolved, DiffusionRepeated:
		return d
	default:
		return DiffusionNone
	}
}

// Step maps a status onto the objection_diffusion_step counter (0..3).
func (d DiffusionStatus) Step() int {
	switch d {
	case DiffusionDiffused:
		return 1
	case DiffusionIsolated:
		return 2
	case DiffusionResolved:
		return 3
	default:
		return 0
	}
}

// CriterionResult is one entry of the analyst's exit checklist.
type CriterionResult struct {
	Met      bool   `json:"met"`
	Evidence string `json:"evidence,omitempty"`
}

// ExitEvaluation is the analyst's checklist for the current phase's exit criteria.
type ExitEvaluation struct {
	Criteria    map[string]CriterionResult `json:"criteria"`
	Reasoning   string                     `json:"reasoning,omitempty"`
	MissingInfo []string                   `json:"missing_info,omitempty"`
}

// Project restricts the checklist to the given catalog criterion ids. Ids the
// analyst did not report become not-met; ids the catalog does not define are dropped.
func (e ExitEvaluation) Project(ids []string) ExitEvaluation {
	projected := ExitEvaluation{
		Criteria:    make(map[string]CriterionResult, len(ids)),
		Reasoning:   e.Reasoning,
		MissingInfo: e.MissingInfo,
	}
	for _, id := range ids {
		projected.Criteria[id] = e.Criteria[id]
	}
	return projected
}

// MetCount returns how many criteria are met.
func (e ExitEvaluation) MetCount() int {
	n := 0
	for _, c := range e.Criteria {
		if c.Met {
			n++
		}
	}
	return n
}

// Total returns the number of criteria in the checklist.
func (e ExitEvaluation) Total() int {
	return len(e.Criteria)
}

// AllMet is true only for a non-empty checklist whose every criterion is met.
func (e ExitEvaluation) AllMet() bool {
	return e.Total() > 0 && e.MetCount() == e.Total()
}

// FractionMet returns met/total, or 0 for an empty checklist.
func (e ExitEvaluation) FractionMet() float64 {
	if e.Total() == 0 {
		return 0
	}
	return float64(e.MetCount()) / float64(e.Total())
}

// Unmet returns the ids from order that are not met, preserving order.
func (e ExitEvaluation) Unmet(order []string) []string {
	var unmet []string
	for _, id := range order {
		if !e.Criteria[id].Met {
			unmet = append(unmet, id)
		}
	}
	return unmet
}

// Analysis is the structured comprehension of one prospect message.
type Analysis struct {
	UserIntent                UserIntent      `json:"user_intent"`
	ObjectionType             ObjectionType   `json:"objection_type"`
	ObjectionDetail           string          `json:"objection_detail,omitempty"`
	ObjectionDiffusionStatus  DiffusionStatus `json:"objection_diffusion_status,omitempty"`
	ExitEvaluation            ExitEvaluation  `json:"exit_evaluation"`
	ResponseRichness          Richness        `json:"response_richness"`
	EmotionalDepth            EmotionalDepth  `json:"emotional_depth"`
	NewInformation            bool            `json:"new_information"`
	ProfileUpdates            ProfileUpdates  `json:"profile_updates"`
	ProspectExactWords        []string        `json:"prospect_exact_words,omitempty"`
	EmotionalCues             []string        `json:"emotional_cues,omitempty"`
	EnergyLevel               string          `json:"energy_level,omitempty"`
	EmotionalTone             string          `json:"emotional_tone,omitempty"`
	SummaryOfProspectPosition string          `json:"summary,omitempty"`
}

// ConservativeAnalysis is what a turn runs on when the analyst output is
// missing or unusable: neutral intent, no objection, no criteria met.
// NewInformation stays true so a broken analyst cannot push the session
// through the repetition rule.
func ConservativeAnalysis() Analysis {
	return Analysis{
		UserIntent:       IntentUnknown,
		ObjectionType:    ObjectionNone,
		ExitEvaluation:   ExitEvaluation{Criteria: map[string]CriterionResult{}},
		ResponseRichness: RichnessModerate,
		EmotionalDepth:   DepthSurface,
		NewInformation:   true,
	}
}

// HasObjection reports whether a concrete objection category was detected.
func (a Analysis) HasObjection() bool {
	return a.ObjectionType != ObjectionNone && a.ObjectionType != ""
}

func normalizeEnum(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	return strings.ReplaceAll(s, "-", "_")
}
