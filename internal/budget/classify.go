package budget

// AlertThresholdPct is the fixed spent/limit ratio at which monitoring starts
// warning the user before full overspend.
const AlertThresholdPct = 80.0

const (
	StatusOnTrack    Status = "on_track"
	StatusNearLimit  Status = "near_limit"
	StatusOverBudget Status = "over_budget"
)

type Status string

// AlertWorthy reports whether the status is eligible for inclusion in a
// dispatched notification.
func (s Status) AlertWorthy() bool {
	return s == StatusNearLimit || s == StatusOverBudget
}

// AlertStatus is a classified CategorySpend: the spend plus its status tag
// and the computed spent/limit percentage.
type AlertStatus struct {
	CategorySpend
	Status     Status
	Percentage float64
}

// Classify maps a category's spend against its monthly limit. The second
// return value is false when the category has no usable limit (absent, zero,
// or negative), in which case no status applies and the category can never
// alert.
//
// The status rule, first match wins:
//
//	percentage > 100  -> over_budget
//	percentage >= 80  -> near_limit
//	otherwise         -> on_track
//
// Zero spend is always on_track regardless of the limit.
func Classify(cs CategorySpend) (AlertStatus, bool) {
	if cs.Limit.Cents <= 0 {
		return AlertStatus{}, false
	}

	st := AlertStatus{CategorySpend: cs, Status: StatusOnTrack}
	if cs.Spent.Cents == 0 {
		return st, true
	}

	st.Percentage = cs.Spent.Units() / cs.Limit.Units() * 100
	switch {
	case st.Percentage > 100:
		st.Status = StatusOverBudget
	case st.Percentage >= AlertThresholdPct:
		st.Status = StatusNearLimit
	}
	return st, true
}
