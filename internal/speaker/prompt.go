package speaker

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BTreeMap/SalesPipe/internal/catalog"
	"github.com/BTreeMap/SalesPipe/internal/decision"
	"github.com/BTreeMap/SalesPipe/internal/models"
	"github.com/BTreeMap/SalesPipe/internal/playbook"
)

// Persona is the speaker's system prompt.
const Persona = `You are Sally, a sharp and genuinely curious NEPQ sales consultant at 100x. You are chatting with someone who clicked into a conversation about AI. You sound like a smart friend who knows a lot about AI consulting, not a salesperson reading a script.

You are a problem finder, not a product pusher. Help the prospect discover their own problems through questions. They should do most of the talking.

How you write:
- Text like a real person. Short. Lowercase and fragments are fine.
- Up to two parts: an optional short mirror (2-5 words, using one or two of their words) and ONE question.
- Never stack questions. Never use em dashes or semicolons.
- No hype words and no filler like "great point" or "I hear you".
- Before the CONSEQUENCE phase: stay curious and neutral, do not editorialize, do not pitch, never mention price or the workshop.
- In CONSEQUENCE: reflect only emotions the prospect has actually expressed.
- In OWNERSHIP and COMMITMENT: warmer and calm, never pushy.
- Vary how your questions start. Never repeat a question.

Reply with the message text only.`

// BuildPrompt assembles the user prompt for one reply. closingLink is the
// link the reply must carry, or "" when the turn is not a close.
func BuildPrompt(c *catalog.Catalog, req Request, closingLink, factSheet string) string {
	d := req.Decision
	phase := d.TargetPhase
	spec := c.Spec(phase)

	var b strings.Builder
	b.WriteString("Generate Sally's next response in this conversation.\n")

	fmt.Fprintf(&b, "\nCURRENT PHASE: %s\n", phase.String())
	if spec.Purpose != "" {
		fmt.Fprintf(&b, "PHASE PURPOSE: %s\n", spec.Purpose)
	}
	maxSentences := spec.MaxSentences
	if maxSentences <= 0 {
		maxSentences = defaultMaxSentences
	}
	fmt.Fprintf(&b, "RESPONSE LENGTH: %d sentences max. Shorter is better.\n", maxSentences)
	if len(spec.Objectives) > 0 {
		fmt.Fprintf(&b, "OBJECTIVES: %s\n", strings.Join(spec.Objectives, "; "))
	}
	if len(spec.QuestionPatterns) > 0 {
		b.WriteString("QUESTION IDEAS (adapt, never copy):\n")
		for _, q := range spec.QuestionPatterns {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}

	writeBriefing(&b, req.Analysis)
	writeAction(&b, c, req)

	if phase == models.PhaseOwnership {
		b.WriteString(ownershipScript(req.Counters.OwnershipSubstep, &req.Profile))
	}

	b.WriteString(objectionInstructions(d.Context, phase))
	if name := d.PlaybookName(); name != "" {
		if text := playbook.Render(name, &req.Profile); text != "" {
			b.WriteString("\n" + text + "\n")
		}
	}

	contact := contactInstructions(phase, d, &req.Profile, closingLink)
	b.WriteString(contact)
	if d.Ends() && contact == "" {
		b.WriteString("\nSESSION ENDING: Wrap up gracefully. Thank them for their time and briefly reference what you discussed. If they said no, be warm and leave the door open.\n")
	}

	if factSheet != "" {
		fmt.Fprintf(&b, "\nFACT SHEET (your only source of truth about 100x and the workshop; never invent facts):\n%s\n", factSheet)
	}

	b.WriteString("\nPROSPECT PROFILE:\n")
	if data, err := json.Marshal(req.Profile); err == nil && string(data) != "{}" {
		b.Write(data)
	} else {
		b.WriteString("Nothing yet")
	}
	b.WriteString("\n")

	if history := recent(req.History, historyWindow); len(history) > 0 {
		b.WriteString("\nRECENT CONVERSATION:\n")
		for _, m := range history {
			label := "Prospect"
			if m.Role == models.RoleAssistant {
				label = "Sally"
			}
			fmt.Fprintf(&b, "%s: %s\n", label, m.Content)
		}
	}
	fmt.Fprintf(&b, "\nPROSPECT JUST SAID:\n%s\n", req.UserMessage)
	return b.String()
}

func writeBriefing(b *strings.Builder, a models.Analysis) {
	if a.EmotionalTone == "" && a.EnergyLevel == "" && len(a.ProspectExactWords) == 0 && len(a.EmotionalCues) == 0 {
		return
	}
	b.WriteString("\nANALYST BRIEFING:\n")
	if a.EmotionalTone != "" {
		fmt.Fprintf(b, "- Emotional tone: %s\n", a.EmotionalTone)
	}
	if a.EnergyLevel != "" {
		fmt.Fprintf(b, "- Energy level: %s\n", a.EnergyLevel)
		switch strings.ToLower(a.EnergyLevel) {
		case "low", "low/flat":
			b.WriteString("  They are low energy. Be calm and specific, not bubbly.\n")
		case "high", "high/excited":
			b.WriteString("  They are fired up. Match their energy.\n")
		}
	}
	if len(a.ProspectExactWords) > 0 {
		fmt.Fprintf(b, "- Key phrases (weave one or two words in, do not echo the full phrase): %s\n", jsonString(a.ProspectExactWords))
	}
	if len(a.EmotionalCues) > 0 {
		fmt.Fprintf(b, "- Emotional signals: %s\n", jsonString(a.EmotionalCues))
	}
}

func writeAction(b *strings.Builder, c *catalog.Catalog, req Request) {
	d := req.Decision
	switch d.Action {
	case models.ActionAdvance:
		fmt.Fprintf(b, "\nTRANSITION: You are moving into %s. Bridge from what they just said into your next question. Never announce the change of topic.\n", d.TargetPhase.String())
	case models.ActionProbe:
		b.WriteString("\nACTION: PROBE. Ask a short question that goes deeper on what they just said. Use your own words, do not echo their phrase back. One or two sentences, no validation first.\n")
	case models.ActionBreakGlass:
		b.WriteString("\nBREAK GLASS: Several turns here have not produced what you need. Try a completely different angle: a hypothetical, an analogy, or a more direct question.\n")
	case models.ActionReroute:
		fmt.Fprintf(b, "\nREROUTE: Their objection shows earlier ground needs revisiting. Gently steer back into %s without arguing.\n", d.TargetPhase.String())
	}

	if d.ProbeTarget != "" {
		if guidance := c.CriterionGuidance(d.ProbeTarget); guidance != "" {
			fmt.Fprintf(b, "\nTARGET: The most important thing to uncover next is %q. %s\n", d.ProbeTarget, guidance)
		}
	}

	unmet := req.Analysis.ExitEvaluation.Unmet(c.Spec(d.TargetPhase).CriterionIDs())
	if d.Action == models.ActionAdvance {
		unmet = c.Spec(d.TargetPhase).CriterionIDs()
	}
	var lines []string
	for _, id := range unmet {
		if id == d.ProbeTarget {
			continue
		}
		if g := c.CriterionGuidance(id); g != "" {
			lines = append(lines, fmt.Sprintf("  - %s: %s", id, g))
		}
	}
	if len(lines) > 0 {
		b.WriteString("\nSTILL OPEN IN THIS PHASE (steer toward one of these):\n")
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	}
	if len(req.Analysis.ExitEvaluation.MissingInfo) > 0 {
		fmt.Fprintf(b, "The analyst suggests you still need: %s\n", strings.Join(req.Analysis.ExitEvaluation.MissingInfo, ", "))
	}
}

func ownershipScript(substep int, p *models.ProspectProfile) string {
	switch {
	case substep <= decision.OwnershipAwaitAnswer:
		return `
OWNERSHIP STEP 1: COMMITMENT QUESTION
Ask: "Based on everything we've talked about... do you feel like having a customized AI plan could help you get there?" Reference their specific pain and desired state. Use "feel", not "think". Do not mention price, the workshop, 100x or Nik yet.
`
	case substep == decision.OwnershipSelfPersuasion:
		return `
OWNERSHIP STEP 2: SELF-PERSUASION
Ask what makes them feel it could work for them. Get their own reasons. Do not move to price until they give at least one real reason.
`
	case substep == decision.OwnershipBridge:
		pains := "their challenges"
		if len(p.PainPoints) > 0 {
			pains = strings.Join(p.PainPoints, ", ")
		}
		return fmt.Sprintf(`
OWNERSHIP STEP 3: BRIDGE WITH THEIR WORDS
Their pain: %s
Their frustrations: %s
Their cost of inaction: %s
Connect their exact words to the workshop and ask one yes/no question. Two or three sentences. No open-ended questions.
`, pains, strings.Join(p.Frustrations, ", "), p.CostOfInaction)
	case substep == decision.OwnershipPresentOffer:
		return `
OWNERSHIP STEP 4: PRESENT THE OFFER
"Our CEO Nik Shah runs a hands-on Discovery Workshop where he builds a customized AI plan with your team. It's a $10,000 investment."
One sentence on what they get, one with the price. Then stop. Do not push for a yes.
`
	case substep == decision.OwnershipObjection:
		return `
OWNERSHIP STEP 5: OBJECTION DIFFUSION
One step per message: diffuse ("That's not a problem..."), then isolate ("[objection] aside, do you feel this is the right move?"), then resolve ("If we could figure out the [objection] piece, would you want to move forward?").
Only after full diffusion, offer the free online workshop as a positive alternative.
`
	default:
		return `
OWNERSHIP STEP 6: CLOSE
If they said yes to paid or free, say so warmly and ask for their email. If it is a hard no, thank them and leave the door open. Do not restart discovery.
`
	}
}

func objectionInstructions(ctx *models.DecisionContext, phase models.Phase) string {
	if ctx == nil {
		return ""
	}
	switch ctx.Kind {
	case models.ContextDiffuse:
		return fmt.Sprintf(`
OBJECTION HANDLING: They raised a %s objection: %q
Do ONE step per message: diffuse, isolate, resolve. Never argue, never say "but you told me", never throw their pain back at them.
Only offer the free alternative after full diffusion.
`, ctx.Objection, ctx.Detail)
	case models.ContextCaveat:
		return fmt.Sprintf("\nCAVEAT: They mostly agree but added a reservation: %q. Address it naturally without the diffusion sequence.\n", ctx.Detail)
	case models.ContextAuthority:
		return fmt.Sprintf("\nAUTHORITY: Someone else is involved in the decision (%q). Don't fight it. Ask who else would need to weigh in.\n", ctx.Detail)
	case models.ContextReroute:
		return fmt.Sprintf("\nOBJECTION (%s): %q. Do not argue. Ask a question that reopens %s in their own terms.\n", ctx.Objection, ctx.Detail, phase.String())
	}
	return ""
}

func contactInstructions(phase models.Phase, d models.Decision, p *models.ProspectProfile, closingLink string) string {
	if !isClosingPhase(d) {
		return ""
	}
	switch {
	case p.IsEmpty(models.FieldEmail):
		if phase == models.PhaseTerminated || d.Ends() {
			return ""
		}
		return "\nCONTACT: They have agreed. Ask for their email first. Nothing else this turn, no links.\n"
	case p.IsEmpty(models.FieldPhone):
		if phase == models.PhaseTerminated || d.Ends() {
			return ""
		}
		return "\nCONTACT: You have their email. Ask for the best number to reach them. No links yet.\n"
	case closingLink == PaymentPlaceholder:
		return "\nCLOSING: You have their email and phone. They chose the paid workshop. Include the exact text " + PaymentPlaceholder + " in your reply, then close warmly.\n"
	case closingLink != "":
		return "\nCLOSING: You have their email and phone. They chose the free workshop. Include this exact booking link: " + closingLink + "\n"
	}
	return ""
}

func jsonString(items []string) string {
	data, err := json.Marshal(items)
	if err != nil {
		return strings.Join(items, ", ")
	}
	return string(data)
}
