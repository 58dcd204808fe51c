package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"nudge/internal/core"
)

// Ports to the external collaborators the engine reads from. The concrete
// implementations live in internal/storage.
type (
	TransactionReader interface {
		// ListExpenseTransactions returns the user's expense transactions
		// dated within [start, end], both boundary dates inclusive.
		ListExpenseTransactions(ctx context.Context, userID string, start, end time.Time) ([]core.Transaction, error)
	}

	CategoryReader interface {
		ListCategories(ctx context.Context, userID string) ([]core.Category, error)
	}

	PreferenceReader interface {
		// GetAlertPreference returns ErrPreferenceMissing when the user has
		// never configured alerting.
		GetAlertPreference(ctx context.Context, userID string) (core.AlertPreference, error)
	}
)

var (
	// ErrConfigFetch wraps a failed transaction, category, or preference
	// read. The invocation is abandoned: no partial alert is ever computed
	// from incomplete data, and the engine does not retry.
	ErrConfigFetch = errors.New("config fetch failed")

	// ErrPreferenceMissing is returned by PreferenceReader implementations
	// when no preference row exists. The engine treats it as alerts-disabled
	// rather than an error.
	ErrPreferenceMissing = errors.New("alert preference missing")

	// ErrDispatch marks a delivery failure downstream of the engine. The
	// computed alert remains valid; the caller may retry dispatch on its own.
	ErrDispatch = errors.New("alert dispatch failed")
)

// Engine ties aggregation, classification, and composition together for one
// invocation. It holds no per-user state: invoking it twice within the same
// period on unchanged data produces identical results, and it performs no
// deduplication against prior sends.
type Engine struct {
	transactions TransactionReader
	categories   CategoryReader
	preferences  PreferenceReader
}

func NewEngine(tr TransactionReader, cr CategoryReader, pr PreferenceReader) *Engine {
	return &Engine{
		transactions: tr,
		categories:   cr,
		preferences:  pr,
	}
}

// Result is the outcome of one engine run.
type Result struct {
	Period     core.Period
	Preference core.AlertPreference
	Statuses   []AlertStatus // classified categories, ordered by category id
	Alert      Alert
}

// Run executes one check for the user against the calendar month containing
// now: fetch config, bail out early when alerts are disabled, then aggregate,
// classify, and compose. Dispatch is deliberately not part of the run; the
// caller passes Result.Alert to a dispatcher if ShouldSend is set.
func (e *Engine) Run(ctx context.Context, userID string, now time.Time) (Result, error) {
	res := Result{Period: core.MonthOf(now)}

	pref, err := e.preferences.GetAlertPreference(ctx, userID)
	switch {
	case errors.Is(err, ErrPreferenceMissing):
		// No preference configured means alerts are off, not an error.
		pref = core.AlertPreference{UserID: userID}
	case err != nil:
		return Result{}, fmt.Errorf("%w: alert preference for user %s: %w", ErrConfigFetch, userID, err)
	}
	res.Preference = pref

	if !pref.Enabled {
		// Short-circuit before any aggregation work.
		slog.DebugContext(ctx, "Alerts disabled, skipping aggregation", "user_id", userID)
		return res, nil
	}

	categories, err := e.categories.ListCategories(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: list categories for user %s: %w", ErrConfigFetch, userID, err)
	}

	transactions, err := e.transactions.ListExpenseTransactions(ctx, userID, res.Period.Start, res.Period.End)
	if err != nil {
		return Result{}, fmt.Errorf("%w: list transactions for user %s: %w", ErrConfigFetch, userID, err)
	}

	spends := Aggregate(transactions, categories, res.Period)

	res.Statuses = make([]AlertStatus, 0, len(spends))
	for _, cs := range spends {
		if st, ok := Classify(cs); ok {
			res.Statuses = append(res.Statuses, st)
		}
	}
	// Map iteration order is random; fix the order for reproducible output.
	sort.Slice(res.Statuses, func(i, j int) bool {
		return res.Statuses[i].CategoryID < res.Statuses[j].CategoryID
	})

	res.Alert = Compose(res.Statuses, pref.Enabled)

	slog.DebugContext(ctx, "Engine run complete",
		"user_id", userID,
		"period", res.Period.Key(),
		"classified", len(res.Statuses),
		"alert_lines", len(res.Alert.Lines),
		"should_send", res.Alert.ShouldSend)

	return res, nil
}
