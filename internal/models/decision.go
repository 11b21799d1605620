package models

import "fmt"

// Action is the transition the decision engine chose for a turn.
type Action string

const (
	ActionAdvance    Action = "ADVANCE"
	ActionStay       Action = "STAY"
	ActionProbe      Action = "PROBE"
	ActionReroute    Action = "REROUTE"
	ActionBreakGlass Action = "BREAK_GLASS"
	ActionEnd        Action = "END"
)

// ContextKind tags the variant carried by a DecisionContext.
type ContextKind string

const (
	// ContextCaveat: the prospect agreed while voicing a reservation.
	ContextCaveat ContextKind = "CAVEAT"
	// ContextDiffuse: a late-phase objection is handled in place.
	ContextDiffuse ContextKind = "DIFFUSE"
	// ContextAuthority: another decision maker is involved.
	ContextAuthority ContextKind = "AUTHORITY"
	// ContextReroute: the session was routed back to an earlier phase.
	ContextReroute ContextKind = "REROUTE"
	// ContextPlaybook: a named situation playbook drives the next response.
	ContextPlaybook ContextKind = "PLAYBOOK"
)

// DecisionContext is a tagged union describing objection handling or the
// playbook that should shape the next response.
type DecisionContext struct {
	Kind      ContextKind   `json:"kind"`
	Objection ObjectionType `json:"objection,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	Playbook  string        `json:"playbook,omitempty"`
}

func CaveatContext(detail string) *DecisionContext {
	return &DecisionContext{Kind: ContextCaveat, Detail: detail}
}

func DiffuseContext(o ObjectionType, detail string) *DecisionContext {
	return &DecisionContext{Kind: ContextDiffuse, Objection: o, Detail: detail}
}

func AuthorityContext(detail string) *DecisionContext {
	return &DecisionContext{Kind: ContextAuthority, Objection: ObjectionAuthority, Detail: detail}
}

func RerouteContext(o ObjectionType, detail string) *DecisionContext {
	return &DecisionContext{Kind: ContextReroute, Objection: o, Detail: detail}
}

func PlaybookContext(name string) *DecisionContext {
	return &DecisionContext{Kind: ContextPlaybook, Playbook: name}
}

// WithPlaybook returns a copy of c that also names a playbook. A nil context
// becomes a plain playbook context; objection kinds keep their marker.
func (c *DecisionContext) WithPlaybook(name string) *DecisionContext {
	if c == nil {
		return PlaybookContext(name)
	}
	out := *c
	out.Playbook = name
	return &out
}

// String renders the context in its log form, e.g. "DIFFUSE:PRICE:too expensive",
// "PLAYBOOK:energy_shift" or "DIFFUSE:PRICE:too expensive+PLAYBOOK:graceful_alternative".
func (c *DecisionContext) String() string {
	if c == nil {
		return ""
	}
	var s string
	switch c.Kind {
	case ContextPlaybook:
		return fmt.Sprintf("%s:%s", c.Kind, c.Playbook)
	case ContextDiffuse, ContextReroute:
		s = fmt.Sprintf("%s:%s:%s", c.Kind, c.Objection, c.Detail)
	default:
		s = fmt.Sprintf("%s:%s", c.Kind, c.Detail)
	}
	if c.Playbook != "" {
		s += "+" + string(ContextPlaybook) + ":" + c.Playbook
	}
	return s
}

// Decision is the output of one run of the decision engine.
type Decision struct {
	Action      Action           `json:"action"`
	TargetPhase Phase            `json:"target_phase"`
	Reason      string           `json:"reason"`
	Context     *DecisionContext `json:"context,omitempty"`
	RetryCount  int              `json:"retry_count"`
	ProbeTarget string           `json:"probe_target,omitempty"`
}

// Ends reports whether the decision terminates the session.
func (d Decision) Ends() bool {
	return d.Action == ActionEnd
}

// PlaybookName returns the playbook attached to the decision, if any.
func (d Decision) PlaybookName() string {
	if d.Context != nil {
		return d.Context.Playbook
	}
	return ""
}
