package renewal

import "time"

// Stage is a named renewal-proximity bucket derived from days until a
// customer's contract renewal date.
type Stage string

const (
	StageOverdue   Stage = "overdue"
	StageEmergency Stage = "emergency"
	StageCritical  Stage = "critical"
	StageUrgent    Stage = "urgent"
	StageEngage    Stage = "engage"
	StagePrepare   Stage = "prepare"
	StageMonitor   Stage = "monitor"
)

// StageOrder lists stages most urgent first.
var StageOrder = []Stage{
	StageOverdue,
	StageEmergency,
	StageCritical,
	StageUrgent,
	StageEngage,
	StagePrepare,
	StageMonitor,
}

// StageFor classifies days-until-renewal into a stage. The partition is
// total and non-overlapping over all integers:
//
//	< 0     overdue
//	0-6     emergency
//	7-13    critical
//	14-29   urgent
//	30-89   engage
//	90-179  prepare
//	>= 180  monitor
func StageFor(daysUntilRenewal int) Stage {
	switch {
	case daysUntilRenewal < 0:
		return StageOverdue
	case daysUntilRenewal <= 6:
		return StageEmergency
	case daysUntilRenewal <= 13:
		return StageCritical
	case daysUntilRenewal <= 29:
		return StageUrgent
	case daysUntilRenewal <= 89:
		return StageEngage
	case daysUntilRenewal <= 179:
		return StagePrepare
	default:
		return StageMonitor
	}
}

// StageForCustomer classifies the customer's current stage as of now.
// The second result is false when the customer has no renewal date.
func StageForCustomer(c CustomerSnapshot, now time.Time) (Stage, bool) {
	days, ok := c.DaysUntil(now)
	if !ok {
		return "", false
	}
	return StageFor(days), true
}
