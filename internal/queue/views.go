package queue

import (
	"sort"

	"renewflow/internal/renewal"
)

// CustomerGroup aggregates a customer's assignments.
type CustomerGroup struct {
	CustomerID    string       `json:"customer_id"`
	CustomerName  string       `json:"customer_name,omitempty"`
	Assignments   []Assignment `json:"assignments"`
	TotalPriority int          `json:"total_priority"`
	MaxPriority   int          `json:"max_priority"`
}

// GroupByCustomer groups assignments per customer, ordered by each
// group's max priority descending (stable). The input is not mutated.
func GroupByCustomer(assignments []Assignment) []CustomerGroup {
	index := make(map[string]int)
	var groups []CustomerGroup

	for _, a := range assignments {
		i, ok := index[a.Customer.ID]
		if !ok {
			i = len(groups)
			index[a.Customer.ID] = i
			groups = append(groups, CustomerGroup{
				CustomerID:   a.Customer.ID,
				CustomerName: a.Customer.Name,
			})
		}
		groups[i].Assignments = append(groups[i].Assignments, a)
		groups[i].TotalPriority += a.Priority
		if a.Priority > groups[i].MaxPriority {
			groups[i].MaxPriority = a.Priority
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].MaxPriority > groups[j].MaxPriority
	})

	return groups
}

// Criteria filters assignments. Nil/empty fields match everything.
type Criteria struct {
	Types       []renewal.WorkflowType
	Stages      []renewal.Stage
	MinARR      *float64
	MaxARR      *float64
	MinPriority *int
	MinDays     *int
	MaxDays     *int
}

// Filter returns the assignments matching every set criterion, in their
// original order. The input is not mutated.
func Filter(assignments []Assignment, c Criteria) []Assignment {
	var out []Assignment
	for _, a := range assignments {
		if !matchType(a, c.Types) || !matchStage(a, c.Stages) {
			continue
		}
		if c.MinPriority != nil && a.Priority < *c.MinPriority {
			continue
		}
		if c.MinARR != nil && (a.Customer.ARR == nil || *a.Customer.ARR < *c.MinARR) {
			continue
		}
		if c.MaxARR != nil && (a.Customer.ARR == nil || *a.Customer.ARR > *c.MaxARR) {
			continue
		}
		if c.MinDays != nil || c.MaxDays != nil {
			if a.Customer.DaysUntilRenewal == nil {
				continue
			}
			days := *a.Customer.DaysUntilRenewal
			if c.MinDays != nil && days < *c.MinDays {
				continue
			}
			if c.MaxDays != nil && days > *c.MaxDays {
				continue
			}
		}
		out = append(out, a)
	}
	return out
}

func matchType(a Assignment, types []renewal.WorkflowType) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if a.WorkflowType == t {
			return true
		}
	}
	return false
}

func matchStage(a Assignment, stages []renewal.Stage) bool {
	if len(stages) == 0 {
		return true
	}
	for _, s := range stages {
		if a.Stage == s {
			return true
		}
	}
	return false
}

// Stats summarizes a queue.
type Stats struct {
	Total           int            `json:"total"`
	UniqueCustomers int            `json:"unique_customers"`
	ByType          map[string]int `json:"by_type"`
	ByStage         map[string]int `json:"by_stage"`
	ByPlan          map[string]int `json:"by_plan"`
	AvgPriority     float64        `json:"avg_priority"`
	MinPriority     int            `json:"min_priority"`
	MaxPriority     int            `json:"max_priority"`
}

// Summarize computes summary statistics over the assignments without
// mutating them.
func Summarize(assignments []Assignment) Stats {
	stats := Stats{
		ByType:  make(map[string]int),
		ByStage: make(map[string]int),
		ByPlan:  make(map[string]int),
	}
	if len(assignments) == 0 {
		return stats
	}

	customers := make(map[string]struct{})
	sum := 0
	stats.MinPriority = assignments[0].Priority
	stats.MaxPriority = assignments[0].Priority

	for _, a := range assignments {
		stats.Total++
		customers[a.Customer.ID] = struct{}{}
		stats.ByType[string(a.WorkflowType)]++
		if a.Stage != "" {
			stats.ByStage[string(a.Stage)]++
		}
		if a.Customer.AccountPlan != "" {
			stats.ByPlan[a.Customer.AccountPlan]++
		}
		sum += a.Priority
		if a.Priority < stats.MinPriority {
			stats.MinPriority = a.Priority
		}
		if a.Priority > stats.MaxPriority {
			stats.MaxPriority = a.Priority
		}
	}

	stats.UniqueCustomers = len(customers)
	stats.AvgPriority = float64(sum) / float64(stats.Total)
	return stats
}
