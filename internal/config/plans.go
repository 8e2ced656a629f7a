package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PlanTable is the single plan name to word limit mapping.  Unknown plan
// names resolve to DefaultLimit; self-hosted installs get SelfHostedLimit.
type PlanTable struct {
	DefaultLimit    int            `yaml:"default_limit"`
	SelfHostedLimit int            `yaml:"self_hosted_limit"`
	Plans           map[string]int `yaml:"plans"`
}

// DefaultPlans is used when no PLANS_FILE is configured.
func DefaultPlans() PlanTable {
	return PlanTable{
		DefaultLimit:    1000,
		SelfHostedLimit: 1_000_000,
		Plans: map[string]int{
			"trial":   1000,
			"free":    1000,
			"basic":   5000,
			"pro":     20000,
			"premium": 50000,
		},
	}
}

// LoadPlans reads the plan table from path, or returns DefaultPlans when path
// is empty.  Values missing from the file keep their defaults.
func LoadPlans(path string) (PlanTable, error) {
	t := DefaultPlans()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return PlanTable{}, fmt.Errorf("read plans file: %w", err)
	}
	var f PlanTable
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return PlanTable{}, fmt.Errorf("parse plans file: %w", err)
	}
	if f.DefaultLimit > 0 {
		t.DefaultLimit = f.DefaultLimit
	}
	if f.SelfHostedLimit > 0 {
		t.SelfHostedLimit = f.SelfHostedLimit
	}
	for name, limit := range f.Plans {
		if limit <= 0 {
			return PlanTable{}, fmt.Errorf("plan %q: limit must be positive", name)
		}
		t.Plans[normalizePlan(name)] = limit
	}
	return t, nil
}

// LimitFor returns the word limit for a plan name.
func (t PlanTable) LimitFor(plan string) int {
	if n, ok := t.Plans[normalizePlan(plan)]; ok {
		return n
	}
	return t.DefaultLimit
}

func normalizePlan(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
