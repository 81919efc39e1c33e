package queue

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"renewflow/internal/renewal"
	"renewflow/internal/scoringcfg"
)

func fp(v float64) *float64 { return &v }

func testNow() time.Time {
	return time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
}

func dateIn(days int) *time.Time {
	d := testNow().Add(time.Duration(days) * 24 * time.Hour)
	return &d
}

func sampleCustomers() []renewal.CustomerSnapshot {
	return []renewal.CustomerSnapshot{
		{
			ID:          "cust-emergency",
			Name:        "Emergency Co",
			ARR:         fp(150000),
			RenewalDate: dateIn(3),
			AccountPlan: "invest",
			OwnerID:     "csm-1",
		},
		{
			ID:          "cust-monitor",
			Name:        "Monitor Co",
			ARR:         fp(30000),
			RenewalDate: dateIn(365),
			OwnerID:     "csm-2",
		},
		{
			ID:               "cust-risk",
			Name:             "Risk Co",
			ARR:              fp(60000),
			RiskScore:        fp(80),
			OpportunityScore: fp(75),
			OwnerID:          "csm-1",
		},
	}
}

func TestBuildSortsDescending(t *testing.T) {
	result := Build(sampleCustomers(), scoringcfg.Defaults(), BuildOptions{Now: testNow()})

	if len(result.Assignments) == 0 {
		t.Fatal("no assignments built")
	}
	for i := 1; i < len(result.Assignments); i++ {
		if result.Assignments[i].Priority > result.Assignments[i-1].Priority {
			t.Fatalf("assignment %d priority %d > previous %d",
				i, result.Assignments[i].Priority, result.Assignments[i-1].Priority)
		}
	}
	if got := result.Assignments[0].Customer.ID; got != "cust-emergency" {
		t.Fatalf("top of queue = %s, want cust-emergency", got)
	}
}

func TestBuildDeterministic(t *testing.T) {
	cfg := scoringcfg.Defaults()
	first := Build(sampleCustomers(), cfg, BuildOptions{Now: testNow()})
	second := Build(sampleCustomers(), cfg, BuildOptions{Now: testNow()})

	if diff := cmp.Diff(first.Assignments, second.Assignments); diff != "" {
		t.Fatalf("builds differ (-first +second):\n%s", diff)
	}
}

func TestBuildIsolatesBadCustomers(t *testing.T) {
	customers := sampleCustomers()
	customers = append(customers, renewal.CustomerSnapshot{
		ID:  "cust-bad",
		ARR: fp(-5),
	})
	customers = append(customers, renewal.CustomerSnapshot{
		Name: "no id",
	})

	result := Build(customers, scoringcfg.Defaults(), BuildOptions{Now: testNow()})

	if len(result.Warnings) != 2 {
		t.Fatalf("warnings = %d, want 2", len(result.Warnings))
	}
	for _, a := range result.Assignments {
		if a.Customer.ID == "cust-bad" || a.Customer.ID == "" {
			t.Fatalf("bad customer %q made it into the queue", a.Customer.ID)
		}
	}
	if len(result.Assignments) == 0 {
		t.Fatal("valid customers were dropped along with the bad ones")
	}
}

func TestBuildOwnerFilter(t *testing.T) {
	result := Build(sampleCustomers(), scoringcfg.Defaults(), BuildOptions{
		Now:         testNow(),
		OwnerFilter: "csm-2",
	})

	if len(result.Assignments) == 0 {
		t.Fatal("no assignments for csm-2")
	}
	for _, a := range result.Assignments {
		if a.Customer.OwnerID != "csm-2" {
			t.Fatalf("assignment for owner %s leaked through filter", a.Customer.OwnerID)
		}
	}
}

func TestBuildAppliesOwnerContext(t *testing.T) {
	cfg := scoringcfg.Defaults()
	contexts := map[string]renewal.UserContext{
		"csm-1": {UserID: "csm-1", ExperienceLevel: "senior", CurrentWorkload: 5},
	}

	with := Build(sampleCustomers(), cfg, BuildOptions{Now: testNow(), UserContexts: contexts})
	without := Build(sampleCustomers(), cfg, BuildOptions{Now: testNow()})

	var withTop, withoutTop int
	for _, a := range with.Assignments {
		if a.Customer.ID == "cust-emergency" && a.WorkflowType == renewal.WorkflowRenewal {
			withTop = a.Priority
		}
	}
	for _, a := range without.Assignments {
		if a.Customer.ID == "cust-emergency" && a.WorkflowType == renewal.WorkflowRenewal {
			withoutTop = a.Priority
		}
	}
	if withTop == withoutTop {
		t.Fatalf("owner context had no effect: %d == %d", withTop, withoutTop)
	}
}

func TestFilterByTypeAndPriority(t *testing.T) {
	result := Build(sampleCustomers(), scoringcfg.Defaults(), BuildOptions{Now: testNow()})

	filtered := Filter(result.Assignments, Criteria{Types: []renewal.WorkflowType{renewal.WorkflowRisk}})
	for _, a := range filtered {
		if a.WorkflowType != renewal.WorkflowRisk {
			t.Fatalf("type filter leaked %s", a.WorkflowType)
		}
	}
	if len(filtered) != 1 {
		t.Fatalf("risk assignments = %d, want 1", len(filtered))
	}

	floor := 200
	high := Filter(result.Assignments, Criteria{MinPriority: &floor})
	for _, a := range high {
		if a.Priority < floor {
			t.Fatalf("priority filter leaked %d", a.Priority)
		}
	}

	// Filtering must not reorder or mutate the input.
	if len(result.Assignments) < 2 {
		t.Fatal("expected multiple assignments")
	}
}

func TestFilterByARRAndDays(t *testing.T) {
	result := Build(sampleCustomers(), scoringcfg.Defaults(), BuildOptions{Now: testNow()})

	minARR := 100000.0
	big := Filter(result.Assignments, Criteria{MinARR: &minARR})
	for _, a := range big {
		if a.Customer.ARR == nil || *a.Customer.ARR < minARR {
			t.Fatalf("arr filter leaked customer %s", a.Customer.ID)
		}
	}

	maxDays := 30
	soon := Filter(result.Assignments, Criteria{MaxDays: &maxDays})
	for _, a := range soon {
		if a.Customer.DaysUntilRenewal == nil && a.Customer.RenewalDate == nil {
			t.Fatalf("days filter kept customer %s without a renewal date", a.Customer.ID)
		}
	}
}

func TestGroupByCustomer(t *testing.T) {
	result := Build(sampleCustomers(), scoringcfg.Defaults(), BuildOptions{Now: testNow()})
	groups := GroupByCustomer(result.Assignments)

	seen := map[string]bool{}
	for _, g := range groups {
		if seen[g.CustomerID] {
			t.Fatalf("customer %s appears in two groups", g.CustomerID)
		}
		seen[g.CustomerID] = true
		if g.MaxPriority > groups[0].MaxPriority {
			t.Fatalf("groups not ordered by max priority")
		}
		total := 0
		max := 0
		for _, a := range g.Assignments {
			total += a.Priority
			if a.Priority > max {
				max = a.Priority
			}
		}
		if total != g.TotalPriority || max != g.MaxPriority {
			t.Fatalf("group %s aggregates wrong: total %d/%d max %d/%d",
				g.CustomerID, g.TotalPriority, total, g.MaxPriority, max)
		}
	}
}

func TestSummarize(t *testing.T) {
	result := Build(sampleCustomers(), scoringcfg.Defaults(), BuildOptions{Now: testNow()})
	stats := Summarize(result.Assignments)

	if stats.Total != len(result.Assignments) {
		t.Fatalf("total = %d, want %d", stats.Total, len(result.Assignments))
	}
	if stats.UniqueCustomers != 3 {
		t.Fatalf("unique customers = %d, want 3", stats.UniqueCustomers)
	}
	if stats.MinPriority > stats.MaxPriority {
		t.Fatalf("min %d > max %d", stats.MinPriority, stats.MaxPriority)
	}

	empty := Summarize(nil)
	if empty.Total != 0 || empty.AvgPriority != 0 {
		t.Fatalf("empty stats not zeroed: %+v", empty)
	}
}
