package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ProspectProfile accumulates what the prospect has revealed over the conversation.
type ProspectProfile struct {
	Name                  string   `json:"name,omitempty"`
	Role                  string   `json:"role,omitempty"`
	Company               string   `json:"company,omitempty"`
	Industry              string   `json:"industry,omitempty"`
	CurrentState          string   `json:"current_state,omitempty"`
	TeamSize              string   `json:"team_size,omitempty"`
	ToolsMentioned        []string `json:"tools_mentioned,omitempty"`
	PainPoints            []string `json:"pain_points,omitempty"`
	Frustrations          []string `json:"frustrations,omitempty"`
	DesiredState          string   `json:"desired_state,omitempty"`
	SuccessMetrics        []string `json:"success_metrics,omitempty"`
	CostOfInaction        string   `json:"cost_of_inaction,omitempty"`
	TimelinePressure      string   `json:"timeline_pressure,omitempty"`
	CompetitiveRisk       string   `json:"competitive_risk,omitempty"`
	DecisionAuthority     string   `json:"decision_authority,omitempty"`
	DecisionTimeline      string   `json:"decision_timeline,omitempty"`
	BudgetSignals         string   `json:"budget_signals,omitempty"`
	Email                 string   `json:"email,omitempty"`
	Phone                 string   `json:"phone,omitempty"`
	ObjectionsEncountered []string `json:"objections_encountered,omitempty"`
	ObjectionsResolved    []string `json:"objections_resolved,omitempty"`
}

// ProfileField names a profile attribute. The values match the JSON keys.
type ProfileField string

const (
	FieldName                  ProfileField = "name"
	FieldRole                  ProfileField = "role"
	FieldCompany               ProfileField = "company"
	FieldIndustry              ProfileField = "industry"
	FieldCurrentState          ProfileField = "current_state"
	FieldTeamSize              ProfileField = "team_size"
	FieldToolsMentioned        ProfileField = "tools_mentioned"
	FieldPainPoints            ProfileField = "pain_points"
	FieldFrustrations          ProfileField = "frustrations"
	FieldDesiredState          ProfileField = "desired_state"
	FieldSuccessMetrics        ProfileField = "success_metrics"
	FieldCostOfInaction        ProfileField = "cost_of_inaction"
	FieldTimelinePressure      ProfileField = "timeline_pressure"
	FieldCompetitiveRisk       ProfileField = "competitive_risk"
	FieldDecisionAuthority     ProfileField = "decision_authority"
	FieldDecisionTimeline      ProfileField = "decision_timeline"
	FieldBudgetSignals         ProfileField = "budget_signals"
	FieldEmail                 ProfileField = "email"
	FieldPhone                 ProfileField = "phone"
	FieldObjectionsEncountered ProfileField = "objections_encountered"
	FieldObjectionsResolved    ProfileField = "objections_resolved"
)

type fieldAccess struct {
	scalar func(*ProspectProfile) *string
	list   func(*ProspectProfile) *[]string
}

var profileFields = map[ProfileField]fieldAccess{
	FieldName:                  {scalar: func(p *ProspectProfile) *string { return &p.Name }},
	FieldRole:                  {scalar: func(p *ProspectProfile) *string { return &p.Role }},
	FieldCompany:               {scalar: func(p *ProspectProfile) *string { return &p.Company }},
	FieldIndustry:              {scalar: func(p *ProspectProfile) *string { return &p.Industry }},
	FieldCurrentState:          {scalar: func(p *ProspectProfile) *string { return &p.CurrentState }},
	FieldTeamSize:              {scalar: func(p *ProspectProfile) *string { return &p.TeamSize }},
	FieldToolsMentioned:        {list: func(p *ProspectProfile) *[]string { return &p.ToolsMentioned }},
	FieldPainPoints:            {list: func(p *ProspectProfile) *[]string { return &p.PainPoints }},
	FieldFrustrations:          {list: func(p *ProspectProfile) *[]string { return &p.Frustrations }},
	FieldDesiredState:          {scalar: func(p *ProspectProfile) *string { return &p.DesiredState }},
	FieldSuccessMetrics:        {list: func(p *ProspectProfile) *[]string { return &p.SuccessMetrics }},
	FieldCostOfInaction:        {scalar: func(p *ProspectProfile) *string { return &p.CostOfInaction }},
	FieldTimelinePressure:      {scalar: func(p *ProspectProfile) *string { return &p.TimelinePressure }},
	FieldCompetitiveRisk:       {scalar: func(p *ProspectProfile) *string { return &p.CompetitiveRisk }},
	FieldDecisionAuthority:     {scalar: func(p *ProspectProfile) *string { return &p.DecisionAuthority }},
	FieldDecisionTimeline:      {scalar: func(p *ProspectProfile) *string { return &p.DecisionTimeline }},
	FieldBudgetSignals:         {scalar: func(p *ProspectProfile) *string { return &p.BudgetSignals }},
	FieldEmail:                 {scalar: func(p *ProspectProfile) *string { return &p.Email }},
	FieldPhone:                 {scalar: func(p *ProspectProfile) *string { return &p.Phone }},
	FieldObjectionsEncountered: {list: func(p *ProspectProfile) *[]string { return &p.ObjectionsEncountered }},
	FieldObjectionsResolved:    {list: func(p *ProspectProfile) *[]string { return &p.ObjectionsResolved }},
}

// IsKnown reports whether f names a profile attribute.
func (f ProfileField) IsKnown() bool {
	_, ok := profileFields[f]
	return ok
}

// IsList reports whether f is an append-only list attribute.
func (f ProfileField) IsList() bool {
	return profileFields[f].list != nil
}

// IsEmpty reports whether the named field holds no value. Unknown fields count as empty.
func (p *ProspectProfile) IsEmpty(f ProfileField) bool {
	access, ok := profileFields[f]
	if !ok {
		return true
	}
	if access.list != nil {
		return len(*access.list(p)) == 0
	}
	return strings.TrimSpace(*access.scalar(p)) == ""
}

// MissingFields returns the fields from required that are still empty, in order.
func (p *ProspectProfile) MissingFields(required []ProfileField) []ProfileField {
	var missing []ProfileField
	for _, f := range required {
		if p.IsEmpty(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// ProfileUpdates is a validated set of changes extracted from one message.
type ProfileUpdates struct {
	Set    map[ProfileField]string   `json:"set,omitempty"`
	Append map[ProfileField][]string `json:"append,omitempty"`
	// Unknown lists keys the analyst produced that are not profile attributes.
	Unknown []string `json:"unknown,omitempty"`
}

// NewProfileUpdates returns an empty update set.
func NewProfileUpdates() ProfileUpdates {
	return ProfileUpdates{
		Set:    map[ProfileField]string{},
		Append: map[ProfileField][]string{},
	}
}

// IsEmpty reports whether the update carries no changes.
func (u ProfileUpdates) IsEmpty() bool {
	return len(u.Set) == 0 && len(u.Append) == 0
}

// SetField records a scalar value for f. List fields receive the value as a single append.
func (u *ProfileUpdates) SetField(f ProfileField, value string) {
	if u.Set == nil {
		u.Set = map[ProfileField]string{}
	}
	if u.Append == nil {
		u.Append = map[ProfileField][]string{}
	}
	if !f.IsKnown() {
		u.Unknown = append(u.Unknown, string(f))
		return
	}
	if f.IsList() {
		u.Append[f] = append(u.Append[f], value)
		return
	}
	u.Set[f] = value
}

// AppendField records list values for f. For scalar fields the last non-empty value wins.
func (u *ProfileUpdates) AppendField(f ProfileField, values ...string) {
	if f.IsKnown() && !f.IsList() {
		for i := len(values) - 1; i >= 0; i-- {
			if strings.TrimSpace(values[i]) != "" {
				u.SetField(f, values[i])
				return
			}
		}
		return
	}
	for _, v := range values {
		u.SetField(f, v)
	}
}

// UnmarshalJSON accepts the loose object the analyst produces: keys are profile
// attribute names and values may be strings, numbers, lists or null. Unknown
// keys are collected in Unknown rather than rejected.
func (u *ProfileUpdates) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("profile updates must be an object: %w", err)
	}
	*u = NewProfileUpdates()

	// The persisted form uses "set"/"append"/"unknown"; none is a profile attribute.
	_, hasSet := raw["set"]
	_, hasAppend := raw["append"]
	_, hasUnknown := raw["unknown"]
	if hasSet || hasAppend || hasUnknown {
		type structured ProfileUpdates
		var s structured
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode profile updates: %w", err)
		}
		*u = ProfileUpdates(s)
		if u.Set == nil {
			u.Set = map[ProfileField]string{}
		}
		if u.Append == nil {
			u.Append = map[ProfileField][]string{}
		}
		return nil
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		field := ProfileField(strings.ToLower(strings.TrimSpace(key)))
		values := decodeLooseStrings(raw[key])
		if len(values) == 0 {
			continue
		}
		if !field.IsKnown() {
			u.Unknown = append(u.Unknown, key)
			continue
		}
		u.AppendField(field, values...)
	}
	return nil
}

// decodeLooseStrings turns a JSON value into strings, dropping nulls and empties.
func decodeLooseStrings(msg json.RawMessage) []string {
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		return []string{s}
	}
	var n json.Number
	if err := json.Unmarshal(msg, &n); err == nil {
		return []string{n.String()}
	}
	var b bool
	if err := json.Unmarshal(msg, &b); err == nil {
		return []string{strconv.FormatBool(b)}
	}
	var list []json.RawMessage
	if err := json.Unmarshal(msg, &list); err == nil {
		var out []string
		for _, item := range list {
			out = append(out, decodeLooseStrings(item)...)
		}
		return out
	}
	return nil
}

// Merge applies u to the profile. Lists only grow and skip duplicates; scalars
// are overwritten only by non-empty values. It returns the fields that changed.
func (p *ProspectProfile) Merge(u ProfileUpdates) []ProfileField {
	var changed []ProfileField

	setKeys := make([]string, 0, len(u.Set))
	for f := range u.Set {
		setKeys = append(setKeys, string(f))
	}
	sort.Strings(setKeys)
	for _, key := range setKeys {
		f := ProfileField(key)
		access, ok := profileFields[f]
		if !ok || access.scalar == nil {
			continue
		}
		value := strings.TrimSpace(u.Set[f])
		if value == "" {
			continue
		}
		target := access.scalar(p)
		if *target != value {
			*target = value
			changed = append(changed, f)
		}
	}

	appendKeys := make([]string, 0, len(u.Append))
	for f := range u.Append {
		appendKeys = append(appendKeys, string(f))
	}
	sort.Strings(appendKeys)
	for _, key := range appendKeys {
		f := ProfileField(key)
		access, ok := profileFields[f]
		if !ok || access.list == nil {
			continue
		}
		target := access.list(p)
		grew := false
		for _, v := range u.Append[f] {
			v = strings.TrimSpace(v)
			if v == "" || containsString(*target, v) {
				continue
			}
			*target = append(*target, v)
			grew = true
		}
		if grew {
			changed = append(changed, f)
		}
	}
	return changed
}

// RecordObjection appends a "TYPE: detail" entry to objections_encountered.
func (p *ProspectProfile) RecordObjection(o ObjectionType, detail string) bool {
	entry := string(o)
	if d := strings.TrimSpace(detail); d != "" {
		entry += ": " + d
	}
	if containsString(p.ObjectionsEncountered, entry) {
		return false
	}
	p.ObjectionsEncountered = append(p.ObjectionsEncountered, entry)
	return true
}

// RecordResolvedObjection appends the objection category to objections_resolved.
func (p *ProspectProfile) RecordResolvedObjection(o ObjectionType) bool {
	if containsString(p.ObjectionsResolved, string(o)) {
		return false
	}
	p.ObjectionsResolved = append(p.ObjectionsResolved, string(o))
	return true
}

// LastObjection returns the category of the most recent recorded objection, or ObjectionNone.
func (p *ProspectProfile) LastObjection() ObjectionType {
	if len(p.ObjectionsEncountered) == 0 {
		return ObjectionNone
	}
	last := p.ObjectionsEncountered[len(p.ObjectionsEncountered)-1]
	head, _, _ := strings.Cut(last, ":")
	return ParseObjectionType(head)
}

// Clone returns a deep copy of the profile.
func (p ProspectProfile) Clone() ProspectProfile {
	c := p
	c.ToolsMentioned = cloneStrings(p.ToolsMentioned)
	c.PainPoints = cloneStrings(p.PainPoints)
	c.Frustrations = cloneStrings(p.Frustrations)
	c.SuccessMetrics = cloneStrings(p.SuccessMetrics)
	c.ObjectionsEncountered = cloneStrings(p.ObjectionsEncountered)
	c.ObjectionsResolved = cloneStrings(p.ObjectionsResolved)
	return c
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
