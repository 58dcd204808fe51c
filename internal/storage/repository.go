package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"nudge/internal/budget"
	"nudge/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// SQLiteRepository is the durable record of transactions, categories, and
// alert preferences. The engine only ever reads from it.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateTransaction persists a transaction and returns its generated id.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (string, error) {
	id := newID()
	var categoryID any
	if t.CategoryID != "" {
		categoryID = t.CategoryID
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, category_id, amount_cents, kind, date, title, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, t.UserID, categoryID, t.Amount.Cents, string(t.Kind),
		t.Date.Format(dateLayout), t.Title, string(t.Source))
	if err != nil {
		return "", fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", id,
		"user_id", t.UserID,
		"amount_cents", t.Amount.Cents,
		"kind", string(t.Kind),
		"category_id", t.CategoryID)

	return id, nil
}

// DeleteTransaction removes a transaction owned by the user.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListTransactions returns all of the user's transactions dated within
// [start, end], newest first.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string, start, end time.Time) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(category_id, ''), amount_cents, kind, date, title, source
		FROM transactions
		WHERE user_id = ? AND date BETWEEN ? AND ?
		ORDER BY date DESC, created_at DESC`,
		userID, start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// ListExpenseTransactions implements budget.TransactionReader. The date range
// filter is inclusive on both ends at calendar-date granularity.
func (r *SQLiteRepository) ListExpenseTransactions(ctx context.Context, userID string, start, end time.Time) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(category_id, ''), amount_cents, kind, date, title, source
		FROM transactions
		WHERE user_id = ? AND kind = 'expense' AND date BETWEEN ? AND ?
		ORDER BY date, created_at`,
		userID, start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list expense transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		var (
			t        core.Transaction
			kind     string
			source   string
			dateText string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.CategoryID, &t.Amount.Cents, &kind, &dateText, &t.Title, &source); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		parsed, err := time.Parse(dateLayout, dateText)
		if err != nil {
			return nil, fmt.Errorf("parse transaction date %q: %w", dateText, err)
		}
		t.Kind = core.TransactionKind(kind)
		t.Source = core.TransactionSource(source)
		t.Date = core.Date{Time: parsed}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// CreateCategory persists a category and returns its generated id.
func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (string, error) {
	id := newID()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, user_id, name, kind, monthly_limit_cents)
		VALUES (?, ?, ?, ?, ?)`,
		id, c.UserID, c.Name, string(c.Kind), c.MonthlyLimit.Cents)
	if err != nil {
		return "", fmt.Errorf("create category: %w", err)
	}

	slog.InfoContext(ctx, "Category saved",
		"id", id,
		"user_id", c.UserID,
		"name", c.Name,
		"monthly_limit_cents", c.MonthlyLimit.Cents)

	return id, nil
}

// ListCategories implements budget.CategoryReader.
func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, kind, monthly_limit_cents
		FROM categories
		WHERE user_id = ?
		ORDER BY name`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var (
			c    core.Category
			kind string
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &kind, &c.MonthlyLimit.Cents); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Kind = core.TransactionKind(kind)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return out, nil
}

// SetMonthlyLimit updates a category's monthly spend limit.
func (r *SQLiteRepository) SetMonthlyLimit(ctx context.Context, userID, categoryID string, limit core.Money) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE categories SET monthly_limit_cents = ? WHERE id = ? AND user_id = ?`,
		limit.Cents, categoryID, userID)
	if err != nil {
		return fmt.Errorf("set monthly limit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}

	slog.InfoContext(ctx, "Monthly limit updated",
		"category_id", categoryID,
		"user_id", userID,
		"monthly_limit_cents", limit.Cents)

	return nil
}

// DeleteCategory removes a category. Its transactions are orphaned by the
// schema (ON DELETE SET NULL) and aggregate into the uncategorized bucket
// from then on.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM categories WHERE id = ? AND user_id = ?`, categoryID, userID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetAlertPreference implements budget.PreferenceReader. A user with no
// stored preference gets budget.ErrPreferenceMissing, which the engine
// treats as alerts-disabled.
func (r *SQLiteRepository) GetAlertPreference(ctx context.Context, userID string) (core.AlertPreference, error) {
	var (
		p       core.AlertPreference
		enabled int
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, enabled, notify_address, currency
		FROM alert_preferences WHERE user_id = ?`,
		userID).Scan(&p.UserID, &enabled, &p.NotifyAddress, &p.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return core.AlertPreference{}, budget.ErrPreferenceMissing
	}
	if err != nil {
		return core.AlertPreference{}, fmt.Errorf("get alert preference: %w", err)
	}
	p.Enabled = enabled != 0
	return p, nil
}

// PutAlertPreference inserts or replaces the user's alert preference.
func (r *SQLiteRepository) PutAlertPreference(ctx context.Context, p core.AlertPreference) error {
	enabled := 0
	if p.Enabled {
		enabled = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alert_preferences (user_id, enabled, notify_address, currency, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			enabled = excluded.enabled,
			notify_address = excluded.notify_address,
			currency = excluded.currency,
			updated_at = CURRENT_TIMESTAMP`,
		p.UserID, enabled, p.NotifyAddress, p.Currency)
	if err != nil {
		return fmt.Errorf("put alert preference: %w", err)
	}
	return nil
}

// ListAlertUsers returns the ids of all users with alerting enabled, for the
// scheduled sweep.
func (r *SQLiteRepository) ListAlertUsers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM alert_preferences WHERE enabled = 1 ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list alert users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user ids: %w", err)
	}
	return out, nil
}

func newID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("id_%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
