// Package notify delivers composed budget alerts. The engine never calls
// into this package; callers pass it the engine's decision object.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultSubject is the subject line for spending alert emails.
const DefaultSubject = "Spending alert: you're approaching your budget limit"

// Dispatcher delivers an ordered alert line list to a notify address.
// Implementations must respect context cancellation and report failure to
// the caller; they never retry on their own.
type Dispatcher interface {
	SendAlert(ctx context.Context, notifyAddress, subject string, lines []string) error
}

// BuildBody renders the plain-text alert email body. The currency code, when
// present, frames the amounts; the lines themselves stay as composed.
func BuildBody(lines []string, currency string) string {
	var b strings.Builder
	b.WriteString("Hi! You're approaching or have exceeded your budget in these categories:\n\n")
	for _, line := range lines {
		b.WriteString("  - ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	if currency != "" {
		fmt.Fprintf(&b, "\nAmounts are in %s.\n", currency)
	}
	b.WriteString("\nSmall reminder: every bit saved today is an investment in your future.\n")
	b.WriteString("Consider reviewing your spending patterns to see where you can optimize.\n")
	return b.String()
}

// LogDispatcher writes alerts to the structured log instead of sending them.
// Used when no mail provider is configured, and in tests.
type LogDispatcher struct{}

func (LogDispatcher) SendAlert(ctx context.Context, notifyAddress, subject string, lines []string) error {
	slog.InfoContext(ctx, "Alert dispatched to log",
		"notify_address", notifyAddress,
		"subject", subject,
		"lines", strings.Join(lines, "; "))
	return nil
}
