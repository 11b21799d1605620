// Package playbook defines the named situation playbooks the decision engine
// can attach to a turn, and renders their instructions for the speaker with
// the prospect's own details filled in.
package playbook

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/BTreeMap/SalesPipe/internal/models"
)

// Playbook names.
const (
	ConfusionRecovery    = "confusion_recovery"
	BridgeWithTheirWords = "bridge_with_their_words"
	ResolveAndClose      = "resolve_and_close"
	GracefulAlternative  = "graceful_alternative"
	GracefulExit         = "graceful_exit"
	EnergyShift          = "energy_shift"
	SpecificProbe        = "specific_probe"
	OwnershipCeiling     = "ownership_ceiling"
)

// Playbook is one named response recipe.
type Playbook struct {
	Name               string
	MaxConsecutiveUses int
	// OverridesAction turns a PROBE or BREAK_GLASS into STAY for the turn.
	OverridesAction       bool
	RequiresProfileFields []models.ProfileField
	instruction           *template.Template
}

var registry = map[string]*Playbook{}

func register(name string, maxUses int, overrides bool, requires []models.ProfileField, text string) {
	registry[name] = &Playbook{
		Name:                  name,
		MaxConsecutiveUses:    maxUses,
		OverridesAction:       overrides,
		RequiresProfileFields: requires,
		instruction:           template.Must(template.New(name).Parse(text)),
	}
}

// Get returns the named playbook.
func Get(name string) (*Playbook, bool) {
	pb, ok := registry[name]
	return pb, ok
}

// Names returns every registered playbook name in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Available reports whether the profile holds every field the playbook templates in.
func (p *Playbook) Available(profile *models.ProspectProfile) bool {
	return len(profile.MissingFields(p.RequiresProfileFields)) == 0
}

type templateData struct {
	PainPoints     string
	Frustrations   string
	CostOfInaction string
	FirstPain      string
	Consequence    string
	ProspectName   string
	ObjectionType  string
}

func newTemplateData(profile *models.ProspectProfile) templateData {
	pains := profile.PainPoints
	if len(pains) == 0 {
		pains = []string{"their challenges"}
	}
	frustrations := profile.Frustrations
	if frustrations == nil {
		frustrations = []string{}
	}
	cost := profile.CostOfInaction
	consequence := cost
	if cost == "" {
		cost = "what it's costing them"
		consequence = "the impact on their work"
		if len(frustrations) > 0 {
			consequence = frustrations[0]
		}
	}
	objection := "price"
	if last := profile.LastObjection(); last != models.ObjectionNone {
		objection = strings.ToLower(string(last))
	}
	return templateData{
		PainPoints:     jsonList(pains),
		Frustrations:   jsonList(frustrations),
		CostOfInaction: cost,
		FirstPain:      pains[0],
		Consequence:    consequence,
		ProspectName:   profile.Name,
		ObjectionType:  objection,
	}
}

func jsonList(items []string) string {
	data, err := json.Marshal(items)
	if err != nil {
		return strings.Join(items, ", ")
	}
	return string(data)
}

// Render returns the speaker instructions for the named playbook, or "" when it does not exist.
func Render(name string, profile *models.ProspectProfile) string {
	pb, ok := Get(name)
	if !ok {
		return ""
	}
	var b strings.Builder
	if err := pb.instruction.Execute(&b, newTemplateData(profile)); err != nil {
		return ""
	}
	return fmt.Sprintf("SITUATION DETECTED: %s\nEXECUTE PLAYBOOK: %s\n\n%s\n\nThese instructions override your default phase behavior for this turn only. Follow them exactly.",
		name, name, strings.TrimSpace(b.String()))
}

func init() {
	register(ConfusionRecovery, 2, true, nil, `CONFUSION RECOVERY:
The prospect is confused about what you're saying or asking. That is on you, not them.

DO:
1. Apologize briefly: "Sorry, let me be clearer."
2. State the value in ONE simple sentence tied to their pain: "{{.FirstPain}}"
3. Ask a simple yes/no question: "Is that something you'd want?"

DO NOT ask open-ended questions, restart discovery, or give a long explanation.
Maximum 2 sentences plus 1 yes/no question.`)

	register(BridgeWithTheirWords, 1, true, []models.ProfileField{models.FieldPainPoints}, `BRIDGE WITH THEIR WORDS:
The prospect agreed the solution feels right but could not say why. That is fine.
Do not ask more open-ended questions. Bridge using their own words from earlier.

Their pain points: {{.PainPoints}}
Their frustrations: {{.Frustrations}}
Their cost of inaction: {{.CostOfInaction}}

Say something like: "Look, you told me {{.FirstPain}}. And you said {{.Consequence}}. This workshop is built to fix exactly that. Would you want to hear what it looks like?"

Use their exact words. Maximum 2-3 sentences ending in a yes/no question. This is the one bridge attempt.`)

	register(ResolveAndClose, 1, false, nil, `RESOLVE AND CLOSE:
The prospect still wants this despite the objection. Close it.

Ask: "If we could figure out the {{.ObjectionType}} piece, would you want to move forward?"

If they say yes, move to collecting contact details. Do not restart discovery. One question.`)

	register(GracefulAlternative, 1, true, nil, `GRACEFUL ALTERNATIVE:
The prospect raised the same objection again after it was already diffused. Do not re-diffuse.

Offer the free online workshop as a positive option, not a consolation:
"We also have a free online version of the workshop that covers the AI foundations. Might be a better starting point for you. Want me to send you the link?"

One offer, zero pressure.`)

	register(GracefulExit, 1, true, nil, `GRACEFUL EXIT:
The prospect gave a clear, hard no. Respect it immediately.

1. Acknowledge warmly: "Totally fair. Thanks for the honest conversation{{if .ProspectName}}, {{.ProspectName}}{{end}}."
2. Offer one resource with zero pressure: the free online workshop link if they ever want it.
3. End warmly.

Do not re-sell, re-frame, ask what would change their mind, or use their pain against them.`)

	register(EnergyShift, 1, false, nil, `ENERGY SHIFT:
The prospect has given thin, low-energy answers for several turns. The current approach isn't working.

1. Briefly acknowledge it: "I know I'm asking a lot of questions."
2. Share one short, genuine observation about their situation.
3. Ask ONE question that is easier or more personal to answer.`)

	register(SpecificProbe, 2, false, nil, `SPECIFIC PROBE:
The prospect gave a thin answer in a critical phase. Generic probes aren't working.

1. Pick the most vague word from their answer.
2. Ask about lived experience, not hypotheticals.
3. Anchor it in time: "When was the last time that happened?"

One specific question. No preamble.`)

	register(OwnershipCeiling, 1, true, nil, `OWNERSHIP CEILING:
Too many turns have been spent on the offer. Wrap up gracefully.

Offer the free workshop once:
"Look, I think there's a lot of value here for you. We also run a free online AI Discovery Workshop that covers the core strategy. Want me to send you the link?"

If yes, move to collecting their email. If no, close warmly. One offer, then close.`)
}
