package budget

import (
	"reflect"
	"testing"
)

func classified(name string, spent, limit int64) AlertStatus {
	st, ok := Classify(spend(name, spent, limit))
	if !ok {
		panic("test status must be classifiable: " + name)
	}
	return st
}

func TestComposeDisabledShortCircuit(t *testing.T) {
	statuses := []AlertStatus{
		classified("Entertainment", 18000, 15000), // over budget
	}

	alert := Compose(statuses, false)

	if alert.ShouldSend {
		t.Errorf("ShouldSend must be false when alerts are disabled")
	}
	if len(alert.Lines) != 0 {
		t.Errorf("expected empty line list, got %v", alert.Lines)
	}
}

func TestComposeFiltersAndOrders(t *testing.T) {
	statuses := []AlertStatus{
		classified("Food", 45000, 60000),          // 75% on_track, excluded
		classified("Transport", 22000, 25000),     // 88% near_limit
		classified("Entertainment", 18000, 15000), // 120% over_budget, first
	}

	alert := Compose(statuses, true)

	if !alert.ShouldSend {
		t.Fatalf("expected ShouldSend")
	}
	want := []string{
		"Entertainment: 180.00 / 150.00 (120.0%)",
		"Transport: 220.00 / 250.00 (88.0%)",
	}
	if !reflect.DeepEqual(alert.Lines, want) {
		t.Errorf("lines = %v, want %v", alert.Lines, want)
	}
}

func TestComposeTieBreaksByNameCaseInsensitive(t *testing.T) {
	statuses := []AlertStatus{
		classified("zeta", 8000, 10000),  // 80%
		classified("Alpha", 8000, 10000), // 80%
		classified("beta", 9500, 10000),  // 95%
	}

	alert := Compose(statuses, true)

	want := []string{
		"beta: 95.00 / 100.00 (95.0%)",
		"Alpha: 80.00 / 100.00 (80.0%)",
		"zeta: 80.00 / 100.00 (80.0%)",
	}
	if !reflect.DeepEqual(alert.Lines, want) {
		t.Errorf("lines = %v, want %v", alert.Lines, want)
	}
}

func TestComposeNoWorthyStatuses(t *testing.T) {
	statuses := []AlertStatus{
		classified("Food", 10000, 60000),
	}

	alert := Compose(statuses, true)

	if alert.ShouldSend {
		t.Errorf("ShouldSend must be false with no alert-worthy categories")
	}
	if len(alert.Lines) != 0 {
		t.Errorf("expected no lines, got %v", alert.Lines)
	}
}

func TestComposeReproducible(t *testing.T) {
	statuses := []AlertStatus{
		classified("a", 9000, 10000),
		classified("b", 8500, 10000),
		classified("c", 12000, 10000),
	}

	first := Compose(statuses, true)
	second := Compose(statuses, true)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("compose not reproducible: %v vs %v", first, second)
	}
}

func TestFormatLine(t *testing.T) {
	st := classified("Food", 45000, 60000)
	if got := FormatLine(st); got != "Food: 450.00 / 600.00 (75.0%)" {
		t.Errorf("FormatLine = %q", got)
	}
}
