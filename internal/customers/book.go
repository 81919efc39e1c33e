package customers

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"renewflow/internal/renewal"
)

// Filter narrows which customers a source should return.
type Filter struct {
	OwnerID string
}

// Source supplies the customer snapshots an evaluation runs over.
type Source interface {
	Name() string
	ListNeedingEvaluation(ctx context.Context, f Filter) ([]renewal.CustomerSnapshot, error)
}

// Book reads customers and owner contexts from a YAML file in the
// workspace. It accepts either a document with `customers:` and
// `owners:` sections or a top-level customer list.
type Book struct {
	Path string
}

func (b *Book) Name() string { return "book" }

type bookFile struct {
	Customers []bookCustomer `yaml:"customers"`
	Owners    []bookOwner    `yaml:"owners"`
}

type bookCustomer struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	ARR              *float64 `yaml:"arr"`
	RenewalID        string   `yaml:"renewal_id"`
	RenewalDate      string   `yaml:"renewal_date"`
	AccountPlan      string   `yaml:"account_plan"`
	OpportunityScore *float64 `yaml:"opportunity_score"`
	RiskScore        *float64 `yaml:"risk_score"`
	OwnerID          string   `yaml:"owner_id"`
	ActiveWorkflows  int      `yaml:"active_workflows"`
}

type bookOwner struct {
	ID              string `yaml:"id"`
	ExperienceLevel string `yaml:"experience_level"`
	CurrentWorkload int    `yaml:"current_workload"`
}

func (b *Book) ListNeedingEvaluation(ctx context.Context, f Filter) ([]renewal.CustomerSnapshot, error) {
	_ = ctx

	file, err := b.load()
	if err != nil {
		return nil, err
	}

	var out []renewal.CustomerSnapshot
	for _, c := range file.Customers {
		if c.ID == "" {
			continue
		}
		if f.OwnerID != "" && c.OwnerID != f.OwnerID {
			continue
		}
		snap := renewal.CustomerSnapshot{
			ID:               c.ID,
			Name:             c.Name,
			ARR:              c.ARR,
			RenewalID:        c.RenewalID,
			AccountPlan:      c.AccountPlan,
			OpportunityScore: c.OpportunityScore,
			RiskScore:        c.RiskScore,
			OwnerID:          c.OwnerID,
			ActiveWorkflows:  c.ActiveWorkflows,
		}
		if c.RenewalDate != "" {
			parsed, err := parseDate(c.RenewalDate)
			if err != nil {
				return nil, fmt.Errorf("customer %s: %w", c.ID, err)
			}
			snap.RenewalDate = &parsed
		}
		out = append(out, snap)
	}
	return out, nil
}

// OwnerContexts returns the per-owner scoring context keyed by owner id.
func (b *Book) OwnerContexts() (map[string]renewal.UserContext, error) {
	file, err := b.load()
	if err != nil {
		return nil, err
	}

	out := make(map[string]renewal.UserContext, len(file.Owners))
	for _, o := range file.Owners {
		if o.ID == "" {
			continue
		}
		out[o.ID] = renewal.UserContext{
			UserID:          o.ID,
			ExperienceLevel: o.ExperienceLevel,
			CurrentWorkload: o.CurrentWorkload,
		}
	}
	return out, nil
}

func (b *Book) load() (*bookFile, error) {
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return &bookFile{}, nil
		}
		return nil, fmt.Errorf("read customer book: %w", err)
	}

	var file bookFile
	if err := yaml.Unmarshal(data, &file); err == nil && (file.Customers != nil || file.Owners != nil) {
		return &file, nil
	}

	var list []bookCustomer
	if err := yaml.Unmarshal(data, &list); err == nil && list != nil {
		return &bookFile{Customers: list}, nil
	}

	return nil, fmt.Errorf("customer book must contain `customers:`/`owners:` sections or a top-level list")
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse renewal date %q: %w", s, err)
	}
	return t, nil
}
