package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"nudge/internal/budget"
	"nudge/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "nudge.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestTransactionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	catID, err := repo.CreateCategory(ctx, core.Category{
		UserID: "u1", Name: "Food", Kind: core.Expense,
		MonthlyLimit: core.Money{Cents: 60000},
	})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}

	id, err := repo.CreateTransaction(ctx, core.Transaction{
		UserID:     "u1",
		CategoryID: catID,
		Amount:     core.Money{Cents: -4500},
		Kind:       core.Expense,
		Date:       core.NewDate(2026, 9, 2),
		Title:      "groceries",
		Source:     core.SourceManual,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	txs, err := repo.ListExpenseTransactions(ctx, "u1", start, end)
	if err != nil {
		t.Fatalf("list expenses: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
	got := txs[0]
	if got.ID != id || got.CategoryID != catID || got.Amount.Cents != -4500 || got.Title != "groceries" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Date.Year() != 2026 || got.Date.Month() != 9 || got.Date.Day() != 2 {
		t.Errorf("date mismatch: %v", got.Date.Time)
	}
}

func TestListExpenseTransactionsRangeInclusive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	dates := []core.Date{
		core.NewDate(2026, 8, 31), // before
		core.NewDate(2026, 9, 1),  // start boundary
		core.NewDate(2026, 9, 18), // end boundary
		core.NewDate(2026, 9, 19), // after
	}
	for _, d := range dates {
		if _, err := repo.CreateTransaction(ctx, core.Transaction{
			UserID: "u1", Amount: core.Money{Cents: 100}, Kind: core.Expense,
			Date: d, Title: "x", Source: core.SourceImported,
		}); err != nil {
			t.Fatalf("create transaction: %v", err)
		}
	}
	// Income within range must be excluded.
	if _, err := repo.CreateTransaction(ctx, core.Transaction{
		UserID: "u1", Amount: core.Money{Cents: 100}, Kind: core.Income,
		Date: core.NewDate(2026, 9, 10), Title: "pay", Source: core.SourceManual,
	}); err != nil {
		t.Fatalf("create income: %v", err)
	}

	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 9, 18, 12, 30, 0, 0, time.UTC)
	txs, err := repo.ListExpenseTransactions(ctx, "u1", start, end)
	if err != nil {
		t.Fatalf("list expenses: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected both boundary days inclusive, got %d rows", len(txs))
	}
}

func TestDeleteCategoryOrphansTransactions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	catID, err := repo.CreateCategory(ctx, core.Category{
		UserID: "u1", Name: "Transport", Kind: core.Expense,
		MonthlyLimit: core.Money{Cents: 25000},
	})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if _, err := repo.CreateTransaction(ctx, core.Transaction{
		UserID: "u1", CategoryID: catID, Amount: core.Money{Cents: 500},
		Kind: core.Expense, Date: core.NewDate(2026, 9, 5), Title: "bus", Source: core.SourceManual,
	}); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	if err := repo.DeleteCategory(ctx, "u1", catID); err != nil {
		t.Fatalf("delete category: %v", err)
	}

	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	txs, err := repo.ListExpenseTransactions(ctx, "u1", start, end)
	if err != nil {
		t.Fatalf("list expenses: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected orphaned transaction to survive, got %d rows", len(txs))
	}
	if txs[0].CategoryID != "" {
		t.Errorf("expected empty category id after orphaning, got %q", txs[0].CategoryID)
	}
}

func TestAlertPreference(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetAlertPreference(ctx, "nobody")
	if !errors.Is(err, budget.ErrPreferenceMissing) {
		t.Fatalf("expected ErrPreferenceMissing, got %v", err)
	}

	pref := core.AlertPreference{UserID: "u1", Enabled: true, NotifyAddress: "u1@example.com", Currency: "INR"}
	if err := repo.PutAlertPreference(ctx, pref); err != nil {
		t.Fatalf("put preference: %v", err)
	}

	got, err := repo.GetAlertPreference(ctx, "u1")
	if err != nil {
		t.Fatalf("get preference: %v", err)
	}
	if got != pref {
		t.Errorf("preference mismatch: %+v vs %+v", got, pref)
	}

	// Upsert overwrites.
	pref.Enabled = false
	if err := repo.PutAlertPreference(ctx, pref); err != nil {
		t.Fatalf("update preference: %v", err)
	}
	got, err = repo.GetAlertPreference(ctx, "u1")
	if err != nil {
		t.Fatalf("get preference after update: %v", err)
	}
	if got.Enabled {
		t.Errorf("expected disabled after update")
	}
}

func TestListAlertUsers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	prefs := []core.AlertPreference{
		{UserID: "a", Enabled: true, NotifyAddress: "a@example.com", Currency: "INR"},
		{UserID: "b", Enabled: false, NotifyAddress: "b@example.com", Currency: "INR"},
		{UserID: "c", Enabled: true, NotifyAddress: "c@example.com", Currency: "EUR"},
	}
	for _, p := range prefs {
		if err := repo.PutAlertPreference(ctx, p); err != nil {
			t.Fatalf("put preference: %v", err)
		}
	}

	users, err := repo.ListAlertUsers(ctx)
	if err != nil {
		t.Fatalf("list alert users: %v", err)
	}
	want := []string{"a", "c"}
	if len(users) != len(want) || users[0] != want[0] || users[1] != want[1] {
		t.Errorf("users = %v, want %v", users, want)
	}
}
