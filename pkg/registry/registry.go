// Package registry holds the static catalog of tools the decision loop may call.
package registry

import (
	"fmt"
	"os"
	"sort"

	"github.com/aretw0/attest/pkg/domain"
	"github.com/aretw0/attest/pkg/schema"
	"gopkg.in/yaml.v3"
)

// Priority levels accepted by escalate_to_human.
var Priorities = []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}

// Registry is an immutable tool catalog. It is safe to share between sessions.
type Registry struct {
	order []string
	tools map[string]domain.ToolDefinition
}

// New builds a registry from defs. Names must be non-empty and unique.
func New(defs ...domain.ToolDefinition) (*Registry, error) {
	r := &Registry{tools: make(map[string]domain.ToolDefinition, len(defs))}
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("tool definition without a name")
		}
		if _, dup := r.tools[def.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", def.Name)
		}
		r.tools[def.Name] = def
		r.order = append(r.order, def.Name)
	}
	return r, nil
}

// Default returns the canonical four-tool catalog.
func Default() *Registry {
	r, err := New(Canonical()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Canonical returns fresh copies of the canonical tool definitions.
// Enum and range constraints are advisory: they are published to the oracle
// but not enforced by validation.
func Canonical() []domain.ToolDefinition {
	return []domain.ToolDefinition{
		{
			Name: domain.ToolAnalyzeReply,
			Description: "Read the institution's reply closely to extract its verification status, tone and key statements. " +
				"Call this when the meaning of the reply is not yet clear. It tells confirmations, denials, " +
				"requests for more information and ambiguous answers apart.",
			Parameters: schema.Object{Fields: []schema.Field{
				{
					Name:        "focus_areas",
					Type:        schema.Slice(schema.String()),
					Description: "Aspects to look at: verification_status, sender_legitimacy, completeness, tone, red_flags",
				},
			}},
		},
		{
			Name: domain.ToolRequestClarification,
			Description: "Flag that the reply is unclear or incomplete and that more information is needed before deciding. " +
				"The case is marked for follow-up; the loop keeps running.",
			Parameters: schema.Object{Fields: []schema.Field{
				{Name: "reason", Type: schema.String(), Required: true, Description: "Why clarification is needed"},
				{Name: "missing_information", Type: schema.Slice(schema.String()), Description: "Information that is missing or unclear"},
				{Name: "suggested_follow_up", Type: schema.String(), Description: "Recommended next step or question for the institution"},
			}},
		},
		{
			Name: domain.ToolEscalateToHuman,
			Description: "Hand the case to a human compliance officer. Use it for suspected fraud, a sender that does not " +
				"match the institution, or a case too complex to decide automatically. Ends the loop.",
			Parameters: schema.Object{Fields: []schema.Field{
				{Name: "reason", Type: schema.String(), Required: true, Description: "Why manual review is required"},
				{Name: "priority", Type: schema.String(), Required: true, Enum: Priorities, Description: "Urgency of the review"},
				{Name: "risk_indicators", Type: schema.Slice(schema.String()), Description: "Risks found, e.g. domain_mismatch, potential_fraud"},
			}},
			Terminal: true,
		},
		{
			Name: domain.ToolDecideCompliance,
			Description: "Record the final compliance decision. Call it only with enough evidence to decide; clear " +
				"confirmations or denials may be decided directly. Ends the loop.",
			Parameters: schema.Object{Fields: []schema.Field{
				{
					Name: "status", Type: schema.String(), Required: true,
					Enum:        []string{string(domain.Compliant), string(domain.NotCompliant), string(domain.Inconclusive)},
					Description: "Final compliance status",
				},
				{
					Name: "confidence_score", Type: schema.Float(), Required: true,
					Minimum: schema.Bound(0), Maximum: schema.Bound(1),
					Description: "Confidence from 0.0 to 1.0",
				},
				{Name: "explanation", Type: schema.String(), Required: true, Description: "Reasoning behind the decision"},
				{Name: "evidence_summary", Type: schema.String(), Description: "Statements from the reply that support the decision"},
			}},
			Terminal: true,
		},
	}
}

// List returns the definitions in registration order.
func (r *Registry) List() []domain.ToolDefinition {
	out := make([]domain.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns the tool names sorted alphabetically.
func (r *Registry) Names() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Get returns the named definition or an *domain.UnknownToolError.
func (r *Registry) Get(name string) (domain.ToolDefinition, error) {
	def, ok := r.tools[name]
	if !ok {
		return domain.ToolDefinition{}, &domain.UnknownToolError{Name: name}
	}
	return def, nil
}

// IsTerminal reports whether a successful call to name ends the loop.
// Unknown names are not terminal.
func (r *Registry) IsTerminal(name string) bool {
	return r.tools[name].Terminal
}

// Overrides replaces tool descriptions, keyed by tool name.
type Overrides struct {
	Tools map[string]struct {
		Description string `yaml:"description"`
	} `yaml:"tools"`
}

// LoadOverrides reads a YAML override file and returns a new registry with
// the descriptions replaced. Names outside the catalog are rejected.
func (r *Registry) LoadOverrides(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry overrides: %w", err)
	}

	var ov Overrides
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return nil, fmt.Errorf("failed to parse registry overrides: %w", err)
	}
	return r.WithOverrides(ov)
}

// WithOverrides returns a copy of r with ov applied.
func (r *Registry) WithOverrides(ov Overrides) (*Registry, error) {
	defs := r.List()
	for name, o := range ov.Tools {
		if _, ok := r.tools[name]; !ok {
			return nil, fmt.Errorf("override for %w", &domain.UnknownToolError{Name: name})
		}
		for i := range defs {
			if defs[i].Name == name && o.Description != "" {
				defs[i].Description = o.Description
			}
		}
	}
	return New(defs...)
}
