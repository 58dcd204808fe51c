package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionKind = "income"
	Expense TransactionKind = "expense"
)

const (
	SourceManual   TransactionSource = "manual"
	SourceScanned  TransactionSource = "scanned"
	SourceImported TransactionSource = "imported"
)

// UncategorizedID is the reserved bucket for transactions whose category no
// longer resolves. The bucket carries no limit and never raises alerts.
const UncategorizedID = "uncategorized"

// UncategorizedName is the display name of the reserved bucket.
const UncategorizedName = "Uncategorized"

type (
	TransactionKind   string
	TransactionSource string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Transaction struct {
		ID         string
		UserID     string
		CategoryID string // empty when the transaction has no category
		Amount     Money  // signed as recorded; expenses may carry either sign
		Kind       TransactionKind
		Date       Date
		Title      string
		Source     TransactionSource
	}

	Category struct {
		ID           string
		UserID       string
		Name         string
		Kind         TransactionKind
		MonthlyLimit Money // zero or negative means no budget set
	}

	// AlertPreference controls whether and where spending alerts are sent.
	AlertPreference struct {
		UserID        string
		Enabled       bool
		NotifyAddress string
		Currency      string
	}
)

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidKind   = errors.New("invalid transaction kind")
	ErrInvalidSource = errors.New("invalid transaction source")
	ErrEmptyTitle    = errors.New("empty title")
	ErrEmptyName     = errors.New("empty category name")
	ErrEmptyUser     = errors.New("empty user id")
	ErrReservedName  = errors.New("category id or name is reserved")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month as 1-12.
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year.
func (d Date) Year() int {
	return d.Time.Year()
}

// NewDate creates a Date from year, month, day at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (k TransactionKind) Validate() error {
	switch k {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidKind
	}
}

func (s TransactionSource) Validate() error {
	switch s {
	case SourceManual, SourceScanned, SourceImported:
		return nil
	default:
		return ErrInvalidSource
	}
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUser
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if err := t.Source.Validate(); err != nil {
		return err
	}
	if t.Amount.Cents == 0 {
		return ErrInvalidAmount
	}
	if len(strings.TrimSpace(t.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(t.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return errors.New("category name too long (max 100 characters)")
	}
	if err := c.Kind.Validate(); err != nil {
		return err
	}
	if c.ID == UncategorizedID || strings.EqualFold(c.Name, UncategorizedName) {
		return ErrReservedName
	}
	return nil
}

// HasBudget reports whether the category carries a usable monthly limit.
// Absent, zero, and malformed negative limits all mean "no budget set":
// the category aggregates normally but never alerts.
func (c Category) HasBudget() bool {
	return c.MonthlyLimit.Cents > 0
}
