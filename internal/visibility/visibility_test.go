package visibility

import (
	"reflect"
	"testing"

	"baulot/internal/domain"
)

func strPtr(s string) *string { return &s }

func sampleTrades() []domain.Trade {
	media := func(prefix string) ([]domain.Photo, []domain.Comment) {
		return []domain.Photo{
				{ID: prefix + "-p-int", Visibility: domain.VisibilityInternal},
				{ID: prefix + "-p-cli", Visibility: domain.VisibilityClient},
			}, []domain.Comment{
				{ID: prefix + "-c-int", Visibility: domain.VisibilityInternal},
				{ID: prefix + "-c-cli", Visibility: domain.VisibilityClient},
			}
	}
	p1, c1 := media("t1")
	p2, c2 := media("t2")
	p3, c3 := media("t3")
	return []domain.Trade{
		{ID: "trade-1", ContractorID: strPtr("A"), Tasks: []domain.Task{{ID: "task-1", Photos: p1, Comments: c1}}},
		{ID: "trade-2", ContractorID: strPtr("B"), Tasks: []domain.Task{{ID: "task-2", Photos: p2, Comments: c2}}},
		{ID: "trade-3", Tasks: []domain.Task{{ID: "task-3", Photos: p3, Comments: c3}}},
	}
}

func TestContractorSeesOnlyOwnTradesWithAllMedia(t *testing.T) {
	got := Filter(domain.RoleContractor, "A", sampleTrades())
	if len(got) != 1 || got[0].ID != "trade-1" {
		t.Fatalf("expected only trade-1, got %+v", got)
	}
	task := got[0].Tasks[0]
	if len(task.Photos) != 2 || len(task.Comments) != 2 {
		t.Fatalf("expected internal and client media intact, got %d photos %d comments", len(task.Photos), len(task.Comments))
	}
}

func TestUnassignedTradeHiddenFromEveryContractor(t *testing.T) {
	for _, caller := range []string{"A", "B", "C", ""} {
		for _, tr := range Filter(domain.RoleContractor, caller, sampleTrades()) {
			if tr.ID == "trade-3" {
				t.Fatalf("unassigned trade visible to contractor %q", caller)
			}
		}
	}
}

func TestContractorTradeMembershipMatchesCallerID(t *testing.T) {
	trades := sampleTrades()
	for _, caller := range []string{"A", "B", "nobody"} {
		got := Filter(domain.RoleContractor, caller, trades)
		seen := map[string]bool{}
		for _, tr := range got {
			seen[tr.ID] = true
		}
		for _, tr := range trades {
			want := tr.ContractorID != nil && *tr.ContractorID == caller
			if seen[tr.ID] != want {
				t.Fatalf("caller %q trade %s: visible=%v want %v", caller, tr.ID, seen[tr.ID], want)
			}
		}
	}
}

func TestClientNeverSeesInternalMedia(t *testing.T) {
	got := Filter(domain.RoleClient, "client-1", sampleTrades())
	if len(got) != 3 {
		t.Fatalf("expected every trade for client, got %d", len(got))
	}
	for _, tr := range got {
		for _, task := range tr.Tasks {
			for _, ph := range task.Photos {
				if ph.Visibility != domain.VisibilityClient {
					t.Fatalf("internal photo %s leaked to client", ph.ID)
				}
			}
			for _, c := range task.Comments {
				if c.Visibility != domain.VisibilityClient {
					t.Fatalf("internal comment %s leaked to client", c.ID)
				}
			}
			if len(task.Photos) != 1 || len(task.Comments) != 1 {
				t.Fatalf("expected one client photo and comment on %s", task.ID)
			}
		}
	}
}

func TestArchitectIsIdentity(t *testing.T) {
	trades := sampleTrades()
	got := Filter(domain.RoleArchitect, "arch-1", trades)
	if !reflect.DeepEqual(got, trades) {
		t.Fatalf("architect view differs from input")
	}
}

func TestUnknownRoleFailsClosed(t *testing.T) {
	for _, role := range []domain.Role{"", "admin", "Architect"} {
		got := Filter(role, "x", sampleTrades())
		if got == nil || len(got) != 0 {
			t.Fatalf("role %q: expected empty non-nil result, got %+v", role, got)
		}
	}
}

func TestFilterIsRestrictiveOnly(t *testing.T) {
	trades := sampleTrades()
	for _, role := range []domain.Role{domain.RoleArchitect, domain.RoleContractor, domain.RoleClient, "other"} {
		if got := Filter(role, "A", trades); len(got) > len(trades) {
			t.Fatalf("role %s returned more trades than input", role)
		}
	}
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	trades := sampleTrades()
	snapshot := sampleTrades()

	clientView := Filter(domain.RoleClient, "c", trades)
	_ = Filter(domain.RoleContractor, "A", trades)
	if !reflect.DeepEqual(trades, snapshot) {
		t.Fatalf("input mutated by filter")
	}

	// Writes through the output must not reach the input.
	clientView[0].Tasks[0].Photos[0].Caption = "changed"
	*clientView[0].ContractorID = "Z"
	clientView[0].Tasks = append(clientView[0].Tasks, domain.Task{ID: "extra"})
	if !reflect.DeepEqual(trades, snapshot) {
		t.Fatalf("output aliases input")
	}
}

func TestProjectFiltersTradesAndKeepsMetadata(t *testing.T) {
	p := domain.Project{ID: "p1", Name: "Haus am See", ClientID: strPtr("client-1"), Trades: sampleTrades()}
	got := Project(domain.RoleContractor, "B", p)
	if got.ID != "p1" || got.Name != "Haus am See" || got.ClientID == nil || *got.ClientID != "client-1" {
		t.Fatalf("project metadata not preserved: %+v", got)
	}
	if len(got.Trades) != 1 || got.Trades[0].ID != "trade-2" {
		t.Fatalf("unexpected trades: %+v", got.Trades)
	}
	if len(p.Trades) != 3 {
		t.Fatalf("input project mutated")
	}
}

func TestTaskHiddenOutsideContractorScope(t *testing.T) {
	p := domain.Project{Trades: sampleTrades()}
	if _, _, ok := Task(domain.RoleContractor, "A", p, "task-2"); ok {
		t.Fatalf("task of another contractor's trade should not be visible")
	}
	_, task, ok := Task(domain.RoleClient, "c", p, "task-2")
	if !ok {
		t.Fatalf("client should see task-2")
	}
	if len(task.Photos) != 1 {
		t.Fatalf("client task view should carry filtered photos, got %d", len(task.Photos))
	}
}
