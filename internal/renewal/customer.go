package renewal

import (
	"math"
	"time"
)

// CustomerSnapshot is a read-only projection of a customer supplied by
// the external system of record. The engine never mutates one.
type CustomerSnapshot struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	ARR              *float64   `json:"arr,omitempty"`
	RenewalID        string     `json:"renewal_id,omitempty"`
	RenewalDate      *time.Time `json:"renewal_date,omitempty"`
	DaysUntilRenewal *int       `json:"days_until_renewal,omitempty"`
	AccountPlan      string     `json:"account_plan,omitempty"`
	OpportunityScore *float64   `json:"opportunity_score,omitempty"`
	RiskScore        *float64   `json:"risk_score,omitempty"`
	OwnerID          string     `json:"owner_id,omitempty"`
	ActiveWorkflows  int        `json:"active_workflows"`
}

// UserContext describes the CSM the queue is being built for. It is
// optional everywhere it appears; a missing context scores neutrally.
type UserContext struct {
	UserID          string `json:"user_id"`
	ExperienceLevel string `json:"experience_level,omitempty"`
	CurrentWorkload int    `json:"current_workload"`
}

// DaysUntil returns the customer's days until renewal as of now. The
// snapshot's precomputed value wins; otherwise it is derived from the
// renewal date. The second result is false when neither is available.
func (c CustomerSnapshot) DaysUntil(now time.Time) (int, bool) {
	if c.DaysUntilRenewal != nil {
		return *c.DaysUntilRenewal, true
	}
	if c.RenewalDate == nil {
		return 0, false
	}
	days := int(math.Floor(c.RenewalDate.Sub(now).Hours() / 24))
	return days, true
}
