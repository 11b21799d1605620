package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/SalesPipe/internal/models"
)

// fileSpec mirrors PhaseSpec with pointer fields so a YAML override can tell
// "not given" apart from zero.
type fileSpec struct {
	Purpose               *string               `yaml:"purpose"`
	Criteria              []Criterion           `yaml:"criteria"`
	MaxRetries            *int                  `yaml:"max_retries"`
	MinTurns              *int                  `yaml:"min_turns"`
	RequiredProfileFields []models.ProfileField `yaml:"required_profile_fields"`
	ObjectionRouting      *bool                 `yaml:"objection_routing"`
	Objectives            []string              `yaml:"objectives"`
	QuestionPatterns      []string              `yaml:"question_patterns"`
	ExtractionTargets     []string              `yaml:"extraction_targets"`
	MaxSentences          *int                  `yaml:"max_sentences"`
}

type file struct {
	Phases map[string]fileSpec `yaml:"phases"`
}

// LoadFile reads a YAML catalog override and applies it on top of the built-in
// catalog. Fields absent from the file keep their built-in values.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("catalog.LoadFile: read failed", "error", err, "path", path)
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		slog.Error("catalog.LoadFile: parse failed", "error", err, "path", path)
		return nil, err
	}
	slog.Info("catalog.LoadFile: catalog override loaded", "path", path, "phases", len(c.phases))
	return c, nil
}

// Parse applies a YAML override document to the built-in catalog.
func Parse(data []byte) (*Catalog, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	specs := map[models.Phase]PhaseSpec{}
	for _, spec := range defaultSpecs() {
		specs[spec.Phase] = spec
	}

	for name, override := range f.Phases {
		phase, err := models.ParsePhase(name)
		if err != nil || phase == models.PhaseTerminated {
			return nil, fmt.Errorf("%w: phase %q cannot be configured", ErrInvalidCatalog, name)
		}
		spec := specs[phase]
		spec.Phase = phase
		if override.Purpose != nil {
			spec.Purpose = *override.Purpose
		}
		if override.Criteria != nil {
			spec.Criteria = override.Criteria
		}
		if override.MaxRetries != nil {
			spec.MaxRetries = *override.MaxRetries
		}
		if override.MinTurns != nil {
			spec.MinTurns = *override.MinTurns
		}
		if override.RequiredProfileFields != nil {
			spec.RequiredProfileFields = override.RequiredProfileFields
		}
		if override.ObjectionRouting != nil {
			spec.ObjectionRouting = *override.ObjectionRouting
		}
		if override.Objectives != nil {
			spec.Objectives = override.Objectives
		}
		if override.QuestionPatterns != nil {
			spec.QuestionPatterns = override.QuestionPatterns
		}
		if override.ExtractionTargets != nil {
			spec.ExtractionTarget = override.ExtractionTargets
		}
		if override.MaxSentences != nil {
			spec.MaxSentences = *override.MaxSentences
		}
		specs[phase] = spec
	}

	ordered := make([]PhaseSpec, 0, len(specs))
	for _, p := range models.PhaseOrder {
		if spec, ok := specs[p]; ok {
			ordered = append(ordered, spec)
		}
	}
	return New(ordered...)
}

// Marshal renders the catalog as a YAML document that Parse accepts.
func (c *Catalog) Marshal() ([]byte, error) {
	out := struct {
		Phases *yaml.Node `yaml:"phases"`
	}{Phases: &yaml.Node{Kind: yaml.MappingNode}}
	for _, spec := range c.Phases() {
		var value yaml.Node
		if err := value.Encode(spec); err != nil {
			return nil, fmt.Errorf("encode phase %s: %w", spec.Phase, err)
		}
		out.Phases.Content = append(out.Phases.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: spec.Phase.String()},
			&value,
		)
	}
	return yaml.Marshal(out)
}

func validateSpec(spec PhaseSpec) error {
	if spec.Phase.Index() < 0 {
		return fmt.Errorf("%w: phase %v is not an active phase", ErrInvalidCatalog, spec.Phase)
	}
	if spec.MaxRetries < 1 {
		return fmt.Errorf("%w: %s max_retries must be at least 1", ErrInvalidCatalog, spec.Phase)
	}
	if spec.MinTurns < 0 {
		return fmt.Errorf("%w: %s min_turns must not be negative", ErrInvalidCatalog, spec.Phase)
	}
	seen := map[string]bool{}
	for _, c := range spec.Criteria {
		if c.ID == "" {
			return fmt.Errorf("%w: %s has a criterion without an id", ErrInvalidCatalog, spec.Phase)
		}
		if seen[c.ID] {
			return fmt.Errorf("%w: %s has duplicate criterion %q", ErrInvalidCatalog, spec.Phase, c.ID)
		}
		seen[c.ID] = true
	}
	for _, f := range spec.RequiredProfileFields {
		if !f.IsKnown() {
			return fmt.Errorf("%w: %s requires unknown profile field %q", ErrInvalidCatalog, spec.Phase, f)
		}
	}
	return nil
}
