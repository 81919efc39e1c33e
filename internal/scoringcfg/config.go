package scoringcfg

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Persisted property-group keys. Each key maps to one row in the
// scoring_config table and one field group in Config.
const (
	KeyARRTiers              = "arr_tiers"
	KeyPlanMultipliers       = "plan_multipliers"
	KeyExperienceMultipliers = "experience_multipliers"
	KeyWorkloadPenalty       = "workload_penalty_per_workflow"
	KeyStageUrgency          = "stage_urgency"
	KeyStageBonuses          = "stage_bonuses"
	KeyStrategicPlans        = "strategic_plans"
	KeyStrategicBase         = "strategic_base"
	KeyOpportunityRules      = "opportunity_rules"
	KeyRiskRules             = "risk_rules"
)

// ARRTier maps an annual-recurring-revenue breakpoint to a multiplier.
// Tiers are matched highest breakpoint first.
type ARRTier struct {
	MinARR     float64 `json:"min_arr"`
	Multiplier float64 `json:"multiplier"`
}

// ScoreRule describes an eligibility threshold plus the linear base
// contribution used by opportunity and risk workflows.
type ScoreRule struct {
	MinScore float64 `json:"min_score"`
	Base     float64 `json:"base"`
	Weight   float64 `json:"weight"`
}

// Config is the full, strongly-typed scoring configuration. A Config is
// always complete: loading merges persisted rows over Defaults, so no
// caller ever observes a partial set.
type Config struct {
	ARRTiers                   []ARRTier          `json:"arr_tiers"`
	PlanMultipliers            map[string]float64 `json:"plan_multipliers"`
	ExperienceMultipliers      map[string]float64 `json:"experience_multipliers"`
	WorkloadPenaltyPerWorkflow float64            `json:"workload_penalty_per_workflow"`
	StageUrgency               map[string]float64 `json:"stage_urgency"`
	StageBonuses               map[string]float64 `json:"stage_bonuses"`
	StrategicPlans             []string           `json:"strategic_plans"`
	StrategicBase              map[string]float64 `json:"strategic_base"`
	Opportunity                ScoreRule          `json:"opportunity_rules"`
	Risk                       ScoreRule          `json:"risk_rules"`
}

// Defaults returns the embedded default configuration used whenever the
// backing store is empty or unreachable.
func Defaults() Config {
	return Config{
		ARRTiers: []ARRTier{
			{MinARR: 100000, Multiplier: 2.0},
			{MinARR: 50000, Multiplier: 1.5},
			{MinARR: 0, Multiplier: 1.0},
		},
		PlanMultipliers: map[string]float64{
			"invest":   1.5,
			"expand":   1.3,
			"maintain": 1.0,
			"harvest":  0.8,
		},
		ExperienceMultipliers: map[string]float64{
			"junior":   0.9,
			"standard": 1.0,
			"senior":   1.1,
			"expert":   1.2,
		},
		WorkloadPenaltyPerWorkflow: 2.0,
		StageUrgency: map[string]float64{
			"overdue":   100,
			"emergency": 90,
			"critical":  80,
			"urgent":    70,
			"engage":    55,
			"prepare":   40,
			"monitor":   20,
		},
		StageBonuses: map[string]float64{
			"overdue":   20,
			"emergency": 15,
			"critical":  10,
		},
		StrategicPlans: []string{"invest", "expand"},
		StrategicBase: map[string]float64{
			"invest":  90,
			"expand":  75,
			"default": 50,
		},
		Opportunity: ScoreRule{MinScore: 70, Base: 40, Weight: 0.5},
		Risk:        ScoreRule{MinScore: 60, Base: 50, Weight: 0.5},
	}
}

// Keys returns every persisted property-group key in stable order.
func Keys() []string {
	return []string{
		KeyARRTiers,
		KeyExperienceMultipliers,
		KeyOpportunityRules,
		KeyPlanMultipliers,
		KeyRiskRules,
		KeyStageBonuses,
		KeyStageUrgency,
		KeyStrategicBase,
		KeyStrategicPlans,
		KeyWorkloadPenalty,
	}
}

// apply parses one persisted row into its property group. Unknown keys
// and malformed values are errors; callers decide whether to skip them.
func (c *Config) apply(key string, raw []byte) error {
	switch key {
	case KeyARRTiers:
		var tiers []ARRTier
		if err := json.Unmarshal(raw, &tiers); err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		if len(tiers) == 0 {
			return fmt.Errorf("parse %s: at least one tier is required", key)
		}
		sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].MinARR > tiers[j].MinARR })
		c.ARRTiers = tiers
	case KeyPlanMultipliers:
		return applyFloatMap(raw, key, &c.PlanMultipliers)
	case KeyExperienceMultipliers:
		return applyFloatMap(raw, key, &c.ExperienceMultipliers)
	case KeyWorkloadPenalty:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		if v < 0 {
			return fmt.Errorf("parse %s: penalty must not be negative", key)
		}
		c.WorkloadPenaltyPerWorkflow = v
	case KeyStageUrgency:
		return applyFloatMap(raw, key, &c.StageUrgency)
	case KeyStageBonuses:
		return applyFloatMap(raw, key, &c.StageBonuses)
	case KeyStrategicPlans:
		var plans []string
		if err := json.Unmarshal(raw, &plans); err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		c.StrategicPlans = plans
	case KeyStrategicBase:
		return applyFloatMap(raw, key, &c.StrategicBase)
	case KeyOpportunityRules:
		var rule ScoreRule
		if err := json.Unmarshal(raw, &rule); err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		c.Opportunity = rule
	case KeyRiskRules:
		var rule ScoreRule
		if err := json.Unmarshal(raw, &rule); err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		c.Risk = rule
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

// render returns the JSON encoding of one property group.
func (c Config) render(key string) (json.RawMessage, error) {
	var v any
	switch key {
	case KeyARRTiers:
		v = c.ARRTiers
	case KeyPlanMultipliers:
		v = c.PlanMultipliers
	case KeyExperienceMultipliers:
		v = c.ExperienceMultipliers
	case KeyWorkloadPenalty:
		v = c.WorkloadPenaltyPerWorkflow
	case KeyStageUrgency:
		v = c.StageUrgency
	case KeyStageBonuses:
		v = c.StageBonuses
	case KeyStrategicPlans:
		v = c.StrategicPlans
	case KeyStrategicBase:
		v = c.StrategicBase
	case KeyOpportunityRules:
		v = c.Opportunity
	case KeyRiskRules:
		v = c.Risk
	default:
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	return data, nil
}

func applyFloatMap(raw []byte, key string, dst *map[string]float64) error {
	var m map[string]float64
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	if len(m) == 0 {
		return fmt.Errorf("parse %s: at least one entry is required", key)
	}
	*dst = m
	return nil
}

// ARRMultiplier returns the tier multiplier for the given ARR and a
// label for the matched tier. A missing ARR falls into the lowest tier.
func (c Config) ARRMultiplier(arr *float64) (float64, string) {
	if len(c.ARRTiers) == 0 {
		return 1.0, "none"
	}
	lowest := c.ARRTiers[len(c.ARRTiers)-1]
	if arr == nil {
		return lowest.Multiplier, "none"
	}
	for _, tier := range c.ARRTiers {
		if *arr >= tier.MinARR {
			return tier.Multiplier, fmt.Sprintf(">=%.0f", tier.MinARR)
		}
	}
	return lowest.Multiplier, fmt.Sprintf(">=%.0f", lowest.MinARR)
}

// PlanMultiplier returns the account-plan multiplier, neutral (1.0)
// when the plan is empty or unknown.
func (c Config) PlanMultiplier(plan string) float64 {
	if m, ok := c.PlanMultipliers[plan]; ok {
		return m
	}
	return 1.0
}

// ExperienceMultiplier returns the CSM experience multiplier, neutral
// (1.0) when the level is empty or unknown.
func (c Config) ExperienceMultiplier(level string) float64 {
	if m, ok := c.ExperienceMultipliers[level]; ok {
		return m
	}
	return 1.0
}

// UrgencyFor returns the base urgency score for a renewal stage.
func (c Config) UrgencyFor(stage string) float64 {
	return c.StageUrgency[stage]
}

// BonusFor returns the additive stage bonus, zero for stages outside
// the configured bonus set.
func (c Config) BonusFor(stage string) float64 {
	return c.StageBonuses[stage]
}

// IsStrategicPlan reports whether the plan is in the strategic set.
func (c Config) IsStrategicPlan(plan string) bool {
	for _, p := range c.StrategicPlans {
		if p == plan {
			return true
		}
	}
	return false
}

// StrategicBaseFor returns the strategic base score for an account
// plan, falling back to the configured default entry.
func (c Config) StrategicBaseFor(plan string) float64 {
	if v, ok := c.StrategicBase[plan]; ok {
		return v
	}
	return c.StrategicBase["default"]
}
