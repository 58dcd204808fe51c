// Package budget implements the budget alert engine: period aggregation,
// threshold classification, and alert composition. Everything here is a pure
// computation over injected inputs; fetching and dispatch live with the
// callers.
package budget

import (
	"nudge/internal/core"
)

// CategorySpend is the per-category reduction of one user's expenses over a
// single period. It is derived on every invocation and never persisted.
type CategorySpend struct {
	CategoryID string
	Name       string
	Limit      core.Money // zero when the category has no usable budget
	Spent      core.Money // sum of absolute expense amounts in the period
}

// Aggregate reduces a user's transactions into per-category spend for the
// given period. Only expense transactions dated inside the period (both
// boundary days inclusive) participate; amounts are normalized to their
// absolute value before summing, so source sign conventions do not matter.
//
// Transactions whose category id does not resolve against the catalog land in
// the reserved uncategorized bucket, which carries no limit. Categories with
// a negative (malformed) limit are kept in the result but degraded to
// no-limit rather than dropped.
//
// The result is identical for any ordering of the inputs and the inputs are
// never mutated.
func Aggregate(transactions []core.Transaction, categories []core.Category, period core.Period) map[string]CategorySpend {
	catalog := make(map[string]core.Category, len(categories))
	for _, c := range categories {
		catalog[c.ID] = c
	}

	spends := make(map[string]CategorySpend)
	for _, t := range transactions {
		if t.Kind != core.Expense {
			continue
		}
		if !period.Contains(t.Date) {
			continue
		}

		id := t.CategoryID
		cat, known := catalog[id]
		if id == "" || !known {
			id = core.UncategorizedID
		}

		entry, ok := spends[id]
		if !ok {
			entry = CategorySpend{CategoryID: id}
			if id == core.UncategorizedID {
				entry.Name = core.UncategorizedName
			} else {
				entry.Name = cat.Name
				if cat.HasBudget() {
					entry.Limit = cat.MonthlyLimit
				}
			}
		}
		entry.Spent.Cents += t.Amount.Abs().Cents
		spends[id] = entry
	}

	return spends
}
