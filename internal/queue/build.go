package queue

import (
	"fmt"
	"sort"
	"time"

	"renewflow/internal/renewal"
	"renewflow/internal/scoring"
	"renewflow/internal/scoringcfg"
)

// Assignment is one unit of prioritized work: a workflow type on a
// customer with its computed priority and the factor breakdown that
// explains it.
type Assignment struct {
	WorkflowType renewal.WorkflowType     `json:"workflow_type"`
	Customer     renewal.CustomerSnapshot `json:"customer"`
	Stage        renewal.Stage            `json:"stage,omitempty"`
	Priority     int                      `json:"priority"`
	Factors      scoring.Factors          `json:"factors"`
}

// Warning records a per-customer failure that was isolated rather than
// aborting the whole build.
type Warning struct {
	CustomerID string `json:"customer_id"`
	Message    string `json:"message"`
}

// BuildResult is the output of one queue build.
type BuildResult struct {
	Assignments []Assignment `json:"assignments"`
	Warnings    []Warning    `json:"warnings,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// BuildOptions configures a queue build.
type BuildOptions struct {
	// Now fixes the evaluation instant; zero means time.Now().
	Now time.Time
	// OwnerFilter restricts the build to customers assigned to one CSM.
	OwnerFilter string
	// UserContexts maps owner id -> CSM context for experience and
	// workload adjustments. Customers whose owner has no entry score
	// without a context.
	UserContexts map[string]renewal.UserContext
}

// Build determines and scores workflows for every customer and returns
// them ordered descending by priority. Sorting is stable, so repeated
// builds over identical inputs produce identical ordering. A customer
// with bad data is skipped with a warning; the rest of the batch is
// unaffected.
func Build(customers []renewal.CustomerSnapshot, cfg scoringcfg.Config, opts BuildOptions) *BuildResult {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	result := &BuildResult{GeneratedAt: now}

	for _, c := range customers {
		if opts.OwnerFilter != "" && c.OwnerID != opts.OwnerFilter {
			continue
		}
		if err := validateCustomer(c); err != nil {
			result.Warnings = append(result.Warnings, Warning{CustomerID: c.ID, Message: err.Error()})
			continue
		}

		var ctx *renewal.UserContext
		if opts.UserContexts != nil {
			if uc, ok := opts.UserContexts[c.OwnerID]; ok {
				ctx = &uc
			}
		}

		stage, _ := renewal.StageForCustomer(c, now)

		for _, wt := range renewal.Determine(c, cfg, now) {
			priority, factors := scoring.Score(wt, c, ctx, cfg, now)
			result.Assignments = append(result.Assignments, Assignment{
				WorkflowType: wt,
				Customer:     c,
				Stage:        stage,
				Priority:     priority,
				Factors:      factors,
			})
		}
	}

	sort.SliceStable(result.Assignments, func(i, j int) bool {
		return result.Assignments[i].Priority > result.Assignments[j].Priority
	})

	return result
}

func validateCustomer(c renewal.CustomerSnapshot) error {
	if c.ID == "" {
		return fmt.Errorf("customer snapshot has no id")
	}
	if c.ARR != nil && *c.ARR < 0 {
		return fmt.Errorf("customer %s has negative arr", c.ID)
	}
	if c.ActiveWorkflows < 0 {
		return fmt.Errorf("customer %s has negative active workflow count", c.ID)
	}
	return nil
}
