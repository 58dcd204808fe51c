package budget

import (
	"fmt"
	"sort"
	"strings"
)

// Alert is the composed, ready-to-deliver notification payload. It is a pure
// decision object: the composer never triggers delivery itself.
type Alert struct {
	Lines      []string
	ShouldSend bool
}

// Compose turns classified categories into an ordered alert line list and a
// delivery decision.
//
// When alerts are disabled for the user the result is empty with
// ShouldSend=false. Otherwise only alert-worthy statuses contribute lines,
// ordered by descending percentage with ties broken by category name
// ascending, case-insensitive, so the most urgent overspend comes first. The
// ordering is stable and reproducible for identical inputs.
func Compose(statuses []AlertStatus, enabled bool) Alert {
	if !enabled {
		return Alert{}
	}

	worthy := make([]AlertStatus, 0, len(statuses))
	for _, st := range statuses {
		if st.Status.AlertWorthy() {
			worthy = append(worthy, st)
		}
	}

	sort.SliceStable(worthy, func(i, j int) bool {
		if worthy[i].Percentage != worthy[j].Percentage {
			return worthy[i].Percentage > worthy[j].Percentage
		}
		return strings.ToLower(worthy[i].Name) < strings.ToLower(worthy[j].Name)
	})

	lines := make([]string, len(worthy))
	for i, st := range worthy {
		lines[i] = FormatLine(st)
	}

	return Alert{Lines: lines, ShouldSend: len(lines) > 0}
}

// FormatLine renders one alert line with two decimal places for amounts and
// one for the percentage, e.g. "Food: 450.00 / 600.00 (75.0%)".
func FormatLine(st AlertStatus) string {
	return fmt.Sprintf("%s: %s / %s (%.1f%%)",
		st.Name, st.Spent.Format(), st.Limit.Format(), st.Percentage)
}
