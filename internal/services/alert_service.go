// Package services provides business logic and orchestration on top of the
// budget engine: recording transactions, triggering checks, and dispatching
// the resulting alerts.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nudge/internal/amqp"
	"nudge/internal/budget"
	"nudge/internal/core"
	applog "nudge/internal/log"
	"nudge/internal/notify"
	"nudge/internal/storage"
)

// AlertService orchestrates storage, the budget engine, the check queue, and
// alert dispatch.
type AlertService struct {
	storage    *storage.SQLiteRepository
	engine     *budget.Engine
	amqpClient *amqp.Client
	dispatcher notify.Dispatcher
	suppressor *notify.Suppressor

	now func() time.Time
}

func NewAlertService(store *storage.SQLiteRepository, amqpClient *amqp.Client, dispatcher notify.Dispatcher, suppressor *notify.Suppressor) *AlertService {
	return &AlertService{
		storage:    store,
		engine:     budget.NewEngine(store, store, store),
		amqpClient: amqpClient,
		dispatcher: dispatcher,
		suppressor: suppressor,
		now:        time.Now,
	}
}

// RecordTransaction validates and persists a transaction. Expense
// transactions additionally enqueue a budget check for the owner; a publish
// failure is logged but never fails the request, since the record is already
// durable.
func (s *AlertService) RecordTransaction(ctx context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("validate transaction: %w", err)
	}

	id, err := s.storage.CreateTransaction(ctx, t)
	if err != nil {
		return "", fmt.Errorf("save transaction: %w", err)
	}

	if t.Kind == core.Expense {
		if err := s.publishCheck(ctx, t.UserID, amqp.ReasonTransactionRecorded); err != nil {
			slog.ErrorContext(ctx, "Failed to publish alert check",
				"user_id", t.UserID, "error", err)
		}
	}

	return id, nil
}

// DeleteTransaction removes a transaction owned by the user.
func (s *AlertService) DeleteTransaction(ctx context.Context, userID, id string) error {
	if err := s.storage.DeleteTransaction(ctx, userID, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

// ListTransactions returns the user's transactions for one calendar month.
func (s *AlertService) ListTransactions(ctx context.Context, userID string, year, month int) ([]core.Transaction, error) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	txs, err := s.storage.ListTransactions(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// CreateCategory validates and persists a category.
func (s *AlertService) CreateCategory(ctx context.Context, c core.Category) (string, error) {
	if c.MonthlyLimit.Cents < 0 {
		// Malformed limits degrade to "no budget" instead of failing.
		slog.WarnContext(ctx, "Negative monthly limit degraded to no budget",
			"user_id", c.UserID, "name", c.Name, "monthly_limit_cents", c.MonthlyLimit.Cents)
		c.MonthlyLimit = core.Money{}
	}
	if err := c.Validate(); err != nil {
		return "", fmt.Errorf("validate category: %w", err)
	}
	id, err := s.storage.CreateCategory(ctx, c)
	if err != nil {
		return "", fmt.Errorf("save category: %w", err)
	}
	return id, nil
}

// ListCategories returns the user's category catalog including limits.
func (s *AlertService) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	return s.storage.ListCategories(ctx, userID)
}

// SetMonthlyLimit updates a category's budget. Negative limits degrade to
// zero ("no budget set") rather than erroring.
func (s *AlertService) SetMonthlyLimit(ctx context.Context, userID, categoryID string, limit core.Money) error {
	if limit.Cents < 0 {
		slog.WarnContext(ctx, "Negative monthly limit degraded to no budget",
			"user_id", userID, "category_id", categoryID, "monthly_limit_cents", limit.Cents)
		limit = core.Money{}
	}
	return s.storage.SetMonthlyLimit(ctx, userID, categoryID, limit)
}

// DeleteCategory removes a category; its transactions are orphaned into the
// uncategorized bucket by the store.
func (s *AlertService) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	return s.storage.DeleteCategory(ctx, userID, categoryID)
}

// GetPreference returns the user's alert preference. A user who never
// configured alerting gets a disabled default, not an error.
func (s *AlertService) GetPreference(ctx context.Context, userID string) (core.AlertPreference, error) {
	pref, err := s.storage.GetAlertPreference(ctx, userID)
	if errors.Is(err, budget.ErrPreferenceMissing) {
		return core.AlertPreference{UserID: userID}, nil
	}
	return pref, err
}

// PutPreference stores the user's alert preference.
func (s *AlertService) PutPreference(ctx context.Context, p core.AlertPreference) error {
	if p.UserID == "" {
		return core.ErrEmptyUser
	}
	if p.Enabled && p.NotifyAddress == "" {
		return errors.New("notify address required when alerts are enabled")
	}
	return s.storage.PutAlertPreference(ctx, p)
}

// CheckOutcome reports what one budget check did.
type CheckOutcome struct {
	Alert      budget.Alert
	Sent       bool
	Suppressed int // alert-worthy categories withheld by the watermark
}

// CheckUser runs the engine for one user at the given reference time and
// dispatches the composed alert if warranted. Delivery failure is reported
// as budget.ErrDispatch but does not invalidate the computed alert; the
// watermark is only advanced after a successful send so delivery can be
// retried.
func (s *AlertService) CheckUser(ctx context.Context, userID string, now time.Time) (CheckOutcome, error) {
	res, err := s.engine.Run(ctx, userID, now)
	if err != nil {
		return CheckOutcome{}, err
	}
	if !res.Alert.ShouldSend {
		return CheckOutcome{Alert: res.Alert}, nil
	}

	worthy := make([]budget.AlertStatus, 0, len(res.Statuses))
	for _, st := range res.Statuses {
		if st.Status.AlertWorthy() {
			worthy = append(worthy, st)
		}
	}

	fresh := worthy
	if s.suppressor != nil {
		fresh, err = s.suppressor.FilterFresh(ctx, userID, res.Period, worthy)
		if err != nil {
			// Fail open: a broken watermark store must not silence alerts.
			slog.WarnContext(ctx, "Suppression check failed, sending without watermark",
				"user_id", userID, "error", err)
			fresh = worthy
		}
	}

	if len(fresh) == 0 {
		slog.InfoContext(ctx, "Alert fully suppressed this period",
			"user_id", userID, "period", res.Period.Key(), "categories", len(worthy))
		return CheckOutcome{Alert: res.Alert, Suppressed: len(worthy)}, nil
	}

	alert := budget.Compose(fresh, true)
	outcome := CheckOutcome{Alert: alert, Suppressed: len(worthy) - len(fresh)}

	if err := s.dispatcher.SendAlert(ctx, res.Preference.NotifyAddress, notify.DefaultSubject, alert.Lines); err != nil {
		return outcome, fmt.Errorf("%w: user %s: %w", budget.ErrDispatch, userID, err)
	}
	outcome.Sent = true

	if s.suppressor != nil {
		if err := s.suppressor.MarkSent(ctx, userID, res.Period, fresh); err != nil {
			slog.WarnContext(ctx, "Failed to record alert watermark",
				"user_id", userID, "error", err)
		}
	}

	slog.InfoContext(ctx, "Alert dispatched",
		applog.FieldUserID, userID,
		applog.FieldPeriod, res.Period.Key(),
		"lines", len(alert.Lines),
		"suppressed", outcome.Suppressed)

	return outcome, nil
}

// EnqueueCheck queues a manually triggered budget check instead of running it
// inline. Unlike the post-transaction publish, a caller asking for a check
// explicitly gets the publish failure back.
func (s *AlertService) EnqueueCheck(ctx context.Context, userID string) error {
	if s.amqpClient == nil {
		return errors.New("check queue not configured")
	}
	return s.amqpClient.PublishAlertCheck(ctx, userID, amqp.ReasonManualTrigger)
}

// HandleCheckMessage processes one queued check request from AMQP.
func (s *AlertService) HandleCheckMessage(ctx context.Context, msg *amqp.AlertCheckMessage) error {
	_, err := s.CheckUser(ctx, msg.UserID, s.now())
	return err
}

func (s *AlertService) publishCheck(ctx context.Context, userID, reason string) error {
	if s.amqpClient == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping alert check publish",
			"user_id", userID)
		return nil
	}
	return s.amqpClient.PublishAlertCheck(ctx, userID, reason)
}

// Close closes storage, queue, and suppressor connections.
func (s *AlertService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if s.suppressor != nil {
		if err := s.suppressor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("suppressor: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close alert service: %v", errs)
	}
	return nil
}
