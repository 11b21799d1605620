// Package catalog holds the static definition of each conversation phase:
// its exit criteria, retry ceiling, minimum turns and the profile fields that
// must be filled before the phase can run.
package catalog

import (
	"errors"
	"log/slog"

	"github.com/BTreeMap/SalesPipe/internal/models"
)

// DefaultMaxRetries applies to phases the catalog does not define.
const DefaultMaxRetries = 4

// ErrInvalidCatalog is returned when a catalog definition fails validation.
var ErrInvalidCatalog = errors.New("invalid phase catalog")

// Criterion is one exit condition the analyst evaluates for a phase.
type Criterion struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description" json:"description"`
	// Guidance tells the speaker what to steer toward while the criterion is unmet.
	Guidance string `yaml:"guidance,omitempty" json:"guidance,omitempty"`
}

// PhaseSpec is the static definition of a phase.
type PhaseSpec struct {
	Phase                 models.Phase          `yaml:"-" json:"phase"`
	Purpose               string                `yaml:"purpose" json:"purpose"`
	Criteria              []Criterion           `yaml:"criteria" json:"criteria"`
	MaxRetries            int                   `yaml:"max_retries" json:"max_retries"`
	MinTurns              int                   `yaml:"min_turns" json:"min_turns"`
	RequiredProfileFields []models.ProfileField `yaml:"required_profile_fields,omitempty" json:"required_profile_fields,omitempty"`
	// ObjectionRouting controls whether objections may route the session back
	// from this phase. Late phases never route backward regardless of this flag.
	ObjectionRouting bool     `yaml:"objection_routing" json:"objection_routing"`
	Objectives       []string `yaml:"objectives,omitempty" json:"objectives,omitempty"`
	QuestionPatterns []string `yaml:"question_patterns,omitempty" json:"question_patterns,omitempty"`
	ExtractionTarget []string `yaml:"extraction_targets,omitempty" json:"extraction_targets,omitempty"`
	MaxSentences     int      `yaml:"max_sentences,omitempty" json:"max_sentences,omitempty"`
}

// CriterionIDs returns the ids of the phase's criteria in catalog order.
func (s PhaseSpec) CriterionIDs() []string {
	ids := make([]string, len(s.Criteria))
	for i, c := range s.Criteria {
		ids[i] = c.ID
	}
	return ids
}

// Criterion looks up a criterion by id.
func (s PhaseSpec) Criterion(id string) (Criterion, bool) {
	for _, c := range s.Criteria {
		if c.ID == id {
			return c, true
		}
	}
	return Criterion{}, false
}

// Catalog maps phases to their definitions. It is read-only after construction.
type Catalog struct {
	phases map[models.Phase]PhaseSpec
}

// New builds a catalog from specs, validating each one.
func New(specs ...PhaseSpec) (*Catalog, error) {
	c := &Catalog{phases: make(map[models.Phase]PhaseSpec, len(specs))}
	for _, spec := range specs {
		if err := validateSpec(spec); err != nil {
			return nil, err
		}
		c.phases[spec.Phase] = spec
	}
	return c, nil
}

// Lookup returns the definition of p.
func (c *Catalog) Lookup(p models.Phase) (PhaseSpec, bool) {
	if c == nil {
		return PhaseSpec{}, false
	}
	spec, ok := c.phases[p]
	return spec, ok
}

// Spec returns the definition of p. Undefined phases get an empty criteria
// list, DefaultMaxRetries, no minimum turns and no required fields, and the
// lookup is logged because it points at a catalog data bug.
func (c *Catalog) Spec(p models.Phase) PhaseSpec {
	if spec, ok := c.Lookup(p); ok {
		return spec
	}
	if p != models.PhaseTerminated {
		slog.Warn("Catalog.Spec: phase not defined in catalog, using defaults", "phase", p.String())
	}
	return PhaseSpec{Phase: p, MaxRetries: DefaultMaxRetries}
}

// Criteria returns the exit criteria of p.
func (c *Catalog) Criteria(p models.Phase) []Criterion {
	return c.Spec(p).Criteria
}

// MaxRetries returns the retry ceiling of p.
func (c *Catalog) MaxRetries(p models.Phase) int {
	return c.Spec(p).MaxRetries
}

// MinTurns returns how many turns p must run before it can be exited.
func (c *Catalog) MinTurns(p models.Phase) int {
	return c.Spec(p).MinTurns
}

// RequiredFields returns the profile fields p needs before it can run.
func (c *Catalog) RequiredFields(p models.Phase) []models.ProfileField {
	return c.Spec(p).RequiredProfileFields
}

// Phases returns the defined phases in canonical order.
func (c *Catalog) Phases() []PhaseSpec {
	var specs []PhaseSpec
	for _, p := range models.PhaseOrder {
		if spec, ok := c.Lookup(p); ok {
			specs = append(specs, spec)
		}
	}
	return specs
}

// CriterionGuidance looks up steering guidance for a criterion id in any phase.
func (c *Catalog) CriterionGuidance(id string) string {
	for _, spec := range c.Phases() {
		if crit, ok := spec.Criterion(id); ok {
			return crit.Guidance
		}
	}
	return ""
}
