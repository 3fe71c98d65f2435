package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dividi/internal/core"
	"dividi/internal/groups"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "nested", "dividi.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleGroup(t *testing.T) core.GroupState {
	t.Helper()
	g, err := core.NewGroupState("group_1", []string{"Zoe", "Alex", "Jordan"})
	if err != nil {
		t.Fatalf("NewGroupState: %v", err)
	}
	created := time.Date(2025, 5, 1, 18, 30, 0, 0, time.UTC)
	g, err = g.AddExpense(core.Expense{
		ID: "e2", Description: "Dinner", Amount: decimal.RequireFromString("10"),
		Payer: "Alex", Beneficiaries: []string{"Zoe", "Alex", "Jordan"}, CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	g, err = g.AddExpense(core.Expense{
		ID: "e1", Description: "Taxi", Amount: decimal.RequireFromString("7.125"),
		Payer: "Zoe", Beneficiaries: []string{"Jordan"},
	})
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	g.UpdatedAt = created
	return g
}

func TestSQLiteRepository_SaveAndLoad(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.Load(ctx, "missing"); !errors.Is(err, groups.ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}

	g := sampleGroup(t)
	if err := repo.Save(ctx, g); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.Load(ctx, g.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Revision != g.Revision || !got.UpdatedAt.Equal(g.UpdatedAt) {
		t.Fatalf("metadata mismatch: %+v", got)
	}
	if len(got.Roster) != 3 || got.Roster[0] != "Zoe" || got.Roster[2] != "Jordan" {
		t.Fatalf("roster order not preserved: %v", got.Roster)
	}
	if len(got.Expenses) != 2 || got.Expenses[0].ID != "e2" || got.Expenses[1].ID != "e1" {
		t.Fatalf("expense order not preserved: %+v", got.Expenses)
	}
	dinner := got.Expenses[0]
	if len(dinner.Beneficiaries) != 3 || dinner.Beneficiaries[0] != "Zoe" || !dinner.CreatedAt.Equal(g.Expenses[0].CreatedAt) {
		t.Fatalf("unexpected dinner: %+v", dinner)
	}
	if !got.Expenses[1].Amount.Equal(decimal.RequireFromString("7.125")) || !got.Expenses[1].CreatedAt.IsZero() {
		t.Fatalf("unexpected taxi: %+v", got.Expenses[1])
	}
}

func TestSQLiteRepository_SaveReplaces(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	g := sampleGroup(t)
	if err := repo.Save(ctx, g); err != nil {
		t.Fatalf("Save: %v", err)
	}

	next, err := g.DeleteExpense("e1")
	if err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	next, err = next.AddParticipant("Sam")
	if err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	if err := repo.Save(ctx, next); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.Load(ctx, g.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Revision != next.Revision || len(got.Expenses) != 1 || len(got.Roster) != 4 {
		t.Fatalf("stale state after save: %+v", got)
	}

	// the loaded group still balances
	summary, err := core.Summarize(got)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(summary.Settlements) != 2 {
		t.Fatalf("expected 2 settlements, got %+v", summary.Settlements)
	}
}

func TestSQLiteRepository_Activity(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)

	for rev := int64(1); rev <= 3; rev++ {
		a := core.Activity{
			GroupID:         "group_1",
			Revision:        rev,
			Action:          core.ActionExpenseAdded,
			TotalExpenses:   decimal.NewFromInt(10 * rev),
			OpenSettlements: int(rev),
			Outstanding:     decimal.RequireFromString("3.3333333333333333"),
			RecordedAt:      at,
		}
		if err := repo.RecordActivity(ctx, a); err != nil {
			t.Fatalf("RecordActivity: %v", err)
		}
	}
	// redelivery of revision 3 is ignored
	if err := repo.RecordActivity(ctx, core.Activity{GroupID: "group_1", Revision: 3, Action: "dup",
		TotalExpenses: decimal.Zero, Outstanding: decimal.Zero, RecordedAt: at}); err != nil {
		t.Fatalf("RecordActivity duplicate: %v", err)
	}

	got, err := repo.ListActivity(ctx, "group_1", 2)
	if err != nil {
		t.Fatalf("ListActivity: %v", err)
	}
	if len(got) != 2 || got[0].Revision != 3 || got[1].Revision != 2 {
		t.Fatalf("unexpected activity: %+v", got)
	}
	if got[0].Action != core.ActionExpenseAdded || !got[0].TotalExpenses.Equal(decimal.NewFromInt(30)) || !got[0].RecordedAt.Equal(at) {
		t.Fatalf("unexpected entry: %+v", got[0])
	}

	none, err := repo.ListActivity(ctx, "other", 0)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty list, got %v err=%v", none, err)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dividi.db")

	for i := 0; i < 2; i++ {
		version, err := RunMigrations(path)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if version != SchemaVersion {
			t.Fatalf("run %d: version = %d, want %d", i, version, SchemaVersion)
		}
	}
}
