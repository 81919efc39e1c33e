package customers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeBook(t *testing.T, contents string) *Book {
	t.Helper()
	path := filepath.Join(t.TempDir(), "customers.yml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return &Book{Path: path}
}

const sectionedBook = `customers:
  - id: cust-1
    name: Acme Corp
    arr: 120000
    renewal_id: ren-1
    renewal_date: 2026-11-30
    account_plan: invest
    opportunity_score: 72
    owner_id: csm-1
    active_workflows: 2
  - id: cust-2
    name: Beta Inc
    renewal_date: 2026-09-01T00:00:00Z
    owner_id: csm-2

owners:
  - id: csm-1
    experience_level: senior
    current_workload: 5
`

func TestBookSectionedDocument(t *testing.T) {
	book := writeBook(t, sectionedBook)

	got, err := book.ListNeedingEvaluation(context.Background(), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("customers = %d, want 2", len(got))
	}

	c := got[0]
	if c.ID != "cust-1" || c.ARR == nil || *c.ARR != 120000 {
		t.Fatalf("customer = %+v", c)
	}
	if c.RenewalDate == nil || c.RenewalDate.Year() != 2026 || c.RenewalDate.Month() != 11 {
		t.Fatalf("renewal date = %v", c.RenewalDate)
	}
	if got[1].RenewalDate == nil || got[1].RenewalDate.Month() != 9 {
		t.Fatalf("rfc3339 renewal date = %v", got[1].RenewalDate)
	}

	contexts, err := book.OwnerContexts()
	if err != nil {
		t.Fatal(err)
	}
	ctx, ok := contexts["csm-1"]
	if !ok {
		t.Fatal("csm-1 context missing")
	}
	if ctx.ExperienceLevel != "senior" || ctx.CurrentWorkload != 5 {
		t.Fatalf("context = %+v", ctx)
	}
}

func TestBookTopLevelList(t *testing.T) {
	book := writeBook(t, `- id: cust-1
  name: Acme Corp
- id: cust-2
`)

	got, err := book.ListNeedingEvaluation(context.Background(), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("customers = %d, want 2", len(got))
	}
}

func TestBookOwnerFilter(t *testing.T) {
	book := writeBook(t, sectionedBook)

	got, err := book.ListNeedingEvaluation(context.Background(), Filter{OwnerID: "csm-2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "cust-2" {
		t.Fatalf("filtered = %+v", got)
	}
}

func TestBookSkipsEntriesWithoutID(t *testing.T) {
	book := writeBook(t, `customers:
  - name: nameless
  - id: cust-1
`)

	got, err := book.ListNeedingEvaluation(context.Background(), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "cust-1" {
		t.Fatalf("customers = %+v", got)
	}
}

func TestBookBadRenewalDate(t *testing.T) {
	book := writeBook(t, `customers:
  - id: cust-1
    renewal_date: next tuesday
`)

	if _, err := book.ListNeedingEvaluation(context.Background(), Filter{}); err == nil {
		t.Fatal("bad renewal date accepted")
	}
}

func TestBookMissingFileIsEmpty(t *testing.T) {
	book := &Book{Path: filepath.Join(t.TempDir(), "nope.yml")}
	got, err := book.ListNeedingEvaluation(context.Background(), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("customers = %+v, want none", got)
	}
}
