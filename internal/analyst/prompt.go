package analyst

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/BTreeMap/SalesPipe/internal/catalog"
	"github.com/BTreeMap/SalesPipe/internal/models"
)

// SystemPrompt frames the model as an observer that classifies and extracts
// but never talks to the prospect.
const SystemPrompt = `You are a sales conversation analyst. You observe a conversation between a sales agent (Sally) and a prospect from behind the glass. You never speak to the prospect.

Your job on every turn:
- Classify what the prospect's latest message was doing.
- Evaluate each exit criterion of the current phase against the whole conversation.
- Extract any new facts about the prospect.
- Judge how much substance and emotion the message carried.

Be strict. A criterion is met only when the prospect's own words support it. When in doubt, mark it not met.
Respond with a single JSON object and nothing else.`

const responseSchema = `{
  "user_intent": "DIRECT_ANSWER | DEFLECTION | QUESTION | OBJECTION | SMALL_TALK | AGREEMENT | PUSHBACK | CONFUSION",
  "objection_type": "PRICE | TIMING | AUTHORITY | NEED | NONE",
  "objection_detail": "what exactly they objected to, or null",
  "objection_diffusion_status": "diffused | isolated | resolved | repeated | null",
  "exit_evaluation": {
    "criteria": {"<criterion_id>": {"met": true, "evidence": "quote or reason"}},
    "reasoning": "one or two sentences",
    "missing_info": ["what is still needed"]
  },
  "response_richness": "thin | moderate | rich",
  "emotional_depth": "surface | moderate | deep",
  "new_information": true,
  "profile_updates": {"<field>": "value or list"},
  "prospect_exact_words": ["short phrases worth mirroring back"],
  "emotional_cues": ["frustration", "hope"],
  "energy_level": "low | medium | high",
  "emotional_tone": "one or two words",
  "summary": "where the prospect stands right now"
}`

// BuildPrompt assembles the user prompt for one analysis. At most
// historyLimit prior messages are included; a non-positive limit includes none.
func BuildPrompt(spec catalog.PhaseSpec, req Request, historyLimit int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "CURRENT PHASE: %s\n", req.Phase.String())
	if spec.Purpose != "" {
		fmt.Fprintf(&b, "PHASE PURPOSE: %s\n", spec.Purpose)
	}

	b.WriteString("\nEXIT CRITERIA (evaluate every id):\n")
	if len(spec.Criteria) == 0 {
		b.WriteString("(none)\n")
	}
	for _, c := range spec.Criteria {
		fmt.Fprintf(&b, "- %s: %s\n", c.ID, c.Description)
	}

	b.WriteString("\nPROSPECT PROFILE SO FAR:\n")
	b.WriteString(profileJSON(req.Profile))
	b.WriteString("\n")

	history := req.History
	if historyLimit <= 0 {
		history = nil
	} else if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	if len(history) > 0 {
		b.WriteString("\nRECENT CONVERSATION:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", speakerLabel(m.Role), m.Content)
		}
	}

	fmt.Fprintf(&b, "\nPROSPECT'S LATEST MESSAGE:\n%s\n", req.Message)

	b.WriteString("\nRespond with JSON in exactly this shape:\n")
	b.WriteString(responseSchema)
	b.WriteString("\n\nUpdatable profile fields: ")
	b.WriteString(strings.Join(updatableFields(), ", "))
	b.WriteString("\nFor list fields include only NEW items from the latest message. Omit fields you learned nothing about.")
	b.WriteString("\nSet new_information to false only when the message repeats what the prospect already said or adds nothing.")
	return b.String()
}

func speakerLabel(r models.Role) string {
	if r == models.RoleAssistant {
		return "SALLY"
	}
	return "PROSPECT"
}

func profileJSON(p models.ProspectProfile) string {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil || string(data) == "{}" {
		return "Nothing yet"
	}
	return string(data)
}

func updatableFields() []string {
	fields := []string{
		string(models.FieldName), string(models.FieldRole), string(models.FieldCompany),
		string(models.FieldIndustry), string(models.FieldCurrentState), string(models.FieldTeamSize),
		string(models.FieldToolsMentioned), string(models.FieldPainPoints), string(models.FieldFrustrations),
		string(models.FieldDesiredState), string(models.FieldSuccessMetrics), string(models.FieldCostOfInaction),
		string(models.FieldTimelinePressure), string(models.FieldCompetitiveRisk), string(models.FieldDecisionAuthority),
		string(models.FieldDecisionTimeline), string(models.FieldBudgetSignals), string(models.FieldEmail),
		string(models.FieldPhone),
	}
	sort.Strings(fields)
	return fields
}
