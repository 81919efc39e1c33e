package renewal

import (
	"time"

	"renewflow/internal/scoringcfg"
)

// WorkflowType is the closed set of workflow kinds a customer can
// qualify for.
type WorkflowType string

const (
	WorkflowRenewal     WorkflowType = "renewal"
	WorkflowStrategic   WorkflowType = "strategic"
	WorkflowOpportunity WorkflowType = "opportunity"
	WorkflowRisk        WorkflowType = "risk"
)

// WorkflowTypes lists all workflow types in determination order.
var WorkflowTypes = []WorkflowType{
	WorkflowRenewal,
	WorkflowStrategic,
	WorkflowOpportunity,
	WorkflowRisk,
}

// Determine returns the workflow types the customer currently qualifies
// for. Pure function of the snapshot, the config, and now; a customer
// may qualify for several types at once.
func Determine(c CustomerSnapshot, cfg scoringcfg.Config, now time.Time) []WorkflowType {
	var types []WorkflowType

	if qualifiesRenewal(c, now) {
		types = append(types, WorkflowRenewal)
	}
	if cfg.IsStrategicPlan(c.AccountPlan) {
		types = append(types, WorkflowStrategic)
	}
	if c.OpportunityScore != nil && *c.OpportunityScore >= cfg.Opportunity.MinScore {
		types = append(types, WorkflowOpportunity)
	}
	if c.RiskScore != nil && *c.RiskScore >= cfg.Risk.MinScore {
		types = append(types, WorkflowRisk)
	}

	return types
}

// qualifiesRenewal is true when the customer has an active renewal
// reference or a renewal date in the future.
func qualifiesRenewal(c CustomerSnapshot, now time.Time) bool {
	if c.RenewalID != "" {
		return true
	}
	return c.RenewalDate != nil && c.RenewalDate.After(now)
}
