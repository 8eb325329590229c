// Package catalog holds the static resource tier table and the capability
// verifier that resolves each roster entry to a usable capability.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"yqhp/arena/pkg/types"
)

// ErrUnknownTier is returned for a tier name missing from the catalog.
var ErrUnknownTier = errors.New("unknown resource tier")

// Baseline capability substituted when neither primary nor fallback is available.
const (
	BaselineCapability     = "baseline-coder"
	BaselineSpecialization = "basic"
)

// Tier is a named resource envelope.
type Tier struct {
	Name        string
	Description string
	Roster      []types.WorkerSpec
}

var tiers = []Tier{
	{
		Name:        "light",
		Description: "two small workers for quick comparisons",
		Roster: []types.WorkerSpec{
			{Name: "rapid-prototyper", Capability: "gpt-4o-mini", Specialization: "rapid-prototyping", Memory: "2g", Fallback: "claude-haiku"},
			{Name: "test-first", Capability: "claude-haiku", Specialization: "test-driven", Memory: "2g", Fallback: "gpt-4o-mini"},
		},
	},
	{
		Name:        "medium",
		Description: "four workers with distinct strategies",
		Roster: []types.WorkerSpec{
			{Name: "architect", Capability: "gpt-4o", Specialization: "architecture-first", Memory: "4g", Fallback: "gpt-4o-mini"},
			{Name: "test-first", Capability: "claude-sonnet", Specialization: "test-driven", Memory: "4g", Fallback: "claude-haiku"},
			{Name: "ux-focus", Capability: "gpt-4o-mini", Specialization: "ui-ux", Memory: "4g", Fallback: "claude-haiku"},
			{Name: "performance", Capability: "deepseek-coder", Specialization: "performance", Memory: "4g", Fallback: "qwen-coder"},
		},
	},
	{
		Name:        "high",
		Description: "six workers with larger memory budgets",
		Roster: []types.WorkerSpec{
			{Name: "architect", Capability: "claude-opus", Specialization: "architecture-first", Memory: "8g", Fallback: "claude-sonnet"},
			{Name: "test-first", Capability: "claude-sonnet", Specialization: "test-driven", Memory: "8g", Fallback: "claude-haiku"},
			{Name: "ux-focus", Capability: "gpt-4o", Specialization: "ui-ux", Memory: "8g", Fallback: "gpt-4o-mini"},
			{Name: "performance", Capability: "deepseek-coder", Specialization: "performance", Memory: "8g", Fallback: "qwen-coder"},
			{Name: "security", Capability: "o3-mini", Specialization: "security-hardening", Memory: "8g", Fallback: "gpt-4o"},
			{Name: "minimalist", Capability: "codestral", Specialization: "minimal-dependencies", Memory: "8g", Fallback: "qwen-coder"},
		},
	},
	{
		Name:        "ultra",
		Description: "eight workers with the largest envelope",
		Roster: []types.WorkerSpec{
			{Name: "architect", Capability: "claude-opus", Specialization: "architecture-first", Memory: "16g", Fallback: "claude-sonnet"},
			{Name: "test-first", Capability: "claude-sonnet", Specialization: "test-driven", Memory: "16g", Fallback: "claude-haiku"},
			{Name: "ux-focus", Capability: "gpt-4o", Specialization: "ui-ux", Memory: "16g", Fallback: "gpt-4o-mini"},
			{Name: "performance", Capability: "deepseek-coder", Specialization: "performance", Memory: "16g", Fallback: "qwen-coder"},
			{Name: "security", Capability: "o3-mini", Specialization: "security-hardening", Memory: "16g", Fallback: "gpt-4o"},
			{Name: "minimalist", Capability: "codestral", Specialization: "minimal-dependencies", Memory: "16g", Fallback: "qwen-coder"},
			{Name: "accessibility", Capability: "gpt-4o", Specialization: "accessibility", Memory: "16g", Fallback: "claude-sonnet"},
			{Name: "api-design", Capability: "llama-coder", Specialization: "api-design", Memory: "16g", Fallback: "codestral"},
		},
	},
}

// Tiers returns every tier in increasing resource order.
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	for i, t := range tiers {
		out[i] = t
		out[i].Roster = append([]types.WorkerSpec(nil), t.Roster...)
	}
	return out
}

// Names returns the tier names in catalog order.
func Names() []string {
	names := make([]string, len(tiers))
	for i, t := range tiers {
		names[i] = t.Name
	}
	return names
}

// Lookup finds a tier by name, case-insensitively.
func Lookup(name string) (Tier, error) {
	for _, t := range Tiers() {
		if strings.EqualFold(t.Name, strings.TrimSpace(name)) {
			return t, nil
		}
	}
	return Tier{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownTier, name, strings.Join(Names(), ", "))
}

// Select returns the first budget entries of the roster. A budget of zero
// or one larger than the roster selects the whole roster.
func (t Tier) Select(budget int) []types.WorkerSpec {
	if budget <= 0 || budget > len(t.Roster) {
		budget = len(t.Roster)
	}
	return append([]types.WorkerSpec(nil), t.Roster[:budget]...)
}

// WorkerID returns the id of the i-th provisioned worker, starting at zero.
func WorkerID(i int) string {
	return fmt.Sprintf("worker-%d", i+1)
}

// RosterIDs returns the worker ids for n workers.
func RosterIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = WorkerID(i)
	}
	return ids
}
