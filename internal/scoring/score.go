package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"renewflow/internal/renewal"
	"renewflow/internal/scoringcfg"
)

// Factors is the itemized breakdown behind a priority score. Every
// contribution is recorded so a total can be audited and re-derived
// from the same inputs.
type Factors struct {
	WorkflowType renewal.WorkflowType `json:"workflow_type"`
	Base         float64              `json:"base"`
	BaseReason   string               `json:"base_reason"`
	Stage        renewal.Stage        `json:"stage,omitempty"`
	StageBonus   float64              `json:"stage_bonus"`

	ARRMultiplier        float64 `json:"arr_multiplier"`
	ARRTier              string  `json:"arr_tier"`
	PlanMultiplier       float64 `json:"plan_multiplier"`
	AccountPlan          string  `json:"account_plan,omitempty"`
	ExperienceMultiplier float64 `json:"experience_multiplier"`
	ExperienceLevel      string  `json:"experience_level,omitempty"`

	WorkloadPenalty float64 `json:"workload_penalty"`

	Subtotal float64 `json:"subtotal"`
	Total    int     `json:"total"`
}

// Score computes the priority of a (workflow type, customer, optional
// user context) triple under the given config snapshot. It is a pure,
// deterministic function of its inputs: identical inputs always yield
// the identical (total, factors) pair.
//
// All multiplications happen before rounding; rounding occurs exactly
// once at the end.
func Score(wt renewal.WorkflowType, c renewal.CustomerSnapshot, ctx *renewal.UserContext, cfg scoringcfg.Config, now time.Time) (int, Factors) {
	f := Factors{WorkflowType: wt}

	stage, hasStage := renewal.StageForCustomer(c, now)
	if hasStage {
		f.Stage = stage
	}

	f.Base, f.BaseReason = baseScore(wt, c, stage, hasStage, cfg)

	if hasStage {
		f.StageBonus = cfg.BonusFor(string(stage))
	}

	f.ARRMultiplier, f.ARRTier = cfg.ARRMultiplier(c.ARR)
	f.AccountPlan = c.AccountPlan
	f.PlanMultiplier = cfg.PlanMultiplier(c.AccountPlan)

	f.ExperienceMultiplier = 1.0
	if ctx != nil {
		f.ExperienceLevel = ctx.ExperienceLevel
		f.ExperienceMultiplier = cfg.ExperienceMultiplier(ctx.ExperienceLevel)
		f.WorkloadPenalty = float64(ctx.CurrentWorkload) * cfg.WorkloadPenaltyPerWorkflow
	}

	f.Subtotal = (f.Base + f.StageBonus) * f.ARRMultiplier * f.PlanMultiplier * f.ExperienceMultiplier
	f.Total = int(math.Round(f.Subtotal - f.WorkloadPenalty))

	return f.Total, f
}

// baseScore resolves the type-specific base contribution.
func baseScore(wt renewal.WorkflowType, c renewal.CustomerSnapshot, stage renewal.Stage, hasStage bool, cfg scoringcfg.Config) (float64, string) {
	switch wt {
	case renewal.WorkflowRenewal:
		if hasStage {
			return cfg.UrgencyFor(string(stage)), fmt.Sprintf("stage %s urgency", stage)
		}
		// Renewal reference without a date: score as the farthest stage.
		return cfg.UrgencyFor(string(renewal.StageMonitor)), "no renewal date, monitor urgency"
	case renewal.WorkflowStrategic:
		plan := c.AccountPlan
		if plan == "" {
			plan = "default"
		}
		return cfg.StrategicBaseFor(c.AccountPlan), fmt.Sprintf("strategic base for plan %s", plan)
	case renewal.WorkflowOpportunity:
		raw := 0.0
		if c.OpportunityScore != nil {
			raw = *c.OpportunityScore
		}
		return cfg.Opportunity.Base + raw*cfg.Opportunity.Weight, fmt.Sprintf("opportunity %.0f weighted", raw)
	case renewal.WorkflowRisk:
		raw := 0.0
		if c.RiskScore != nil {
			raw = *c.RiskScore
		}
		return cfg.Risk.Base + raw*cfg.Risk.Weight, fmt.Sprintf("risk %.0f weighted", raw)
	default:
		return 0, fmt.Sprintf("unknown workflow type %s", wt)
	}
}

// Explain renders the breakdown as a deterministic, human-readable
// derivation of the total.
func (f Factors) Explain() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: base %.1f (%s)", f.WorkflowType, f.Base, f.BaseReason)
	if f.StageBonus != 0 {
		fmt.Fprintf(&b, " + stage bonus %.1f (%s)", f.StageBonus, f.Stage)
	}
	fmt.Fprintf(&b, " x %.2f arr (%s)", f.ARRMultiplier, f.ARRTier)
	plan := f.AccountPlan
	if plan == "" {
		plan = "none"
	}
	fmt.Fprintf(&b, " x %.2f plan (%s)", f.PlanMultiplier, plan)
	if f.ExperienceLevel != "" {
		fmt.Fprintf(&b, " x %.2f experience (%s)", f.ExperienceMultiplier, f.ExperienceLevel)
	}
	if f.WorkloadPenalty != 0 {
		fmt.Fprintf(&b, " - %.1f workload", f.WorkloadPenalty)
	}
	fmt.Fprintf(&b, " = %d", f.Total)
	return b.String()
}
