package http

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"nudge/internal/budget"
	"nudge/internal/core"
	"nudge/internal/middleware/trace"
)

type transactionRequest struct {
	CategoryID string `json:"category_id"`
	Title      string `json:"title"`
	Amount     string `json:"amount"`
	Kind       string `json:"kind"`
	Date       string `json:"date"`
	Source     string `json:"source"`
}

type transactionResponse struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id,omitempty"`
	Title      string `json:"title"`
	Amount     string `json:"amount"`
	Kind       string `json:"kind"`
	Date       string `json:"date"`
	Source     string `json:"source"`
}

type categoryRequest struct {
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	MonthlyLimit string `json:"monthly_limit"`
}

type categoryResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	MonthlyLimit string `json:"monthly_limit"`
}

type limitRequest struct {
	MonthlyLimit string `json:"monthly_limit"`
}

type preferenceRequest struct {
	Enabled       bool   `json:"enabled"`
	NotifyAddress string `json:"notify_address"`
	Currency      string `json:"currency"`
}

type preferenceResponse struct {
	UserID        string `json:"user_id"`
	Enabled       bool   `json:"enabled"`
	NotifyAddress string `json:"notify_address,omitempty"`
	Currency      string `json:"currency,omitempty"`
}

type checkResponse struct {
	Sent       bool     `json:"sent"`
	Suppressed int      `json:"suppressed"`
	Lines      []string `json:"lines"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateTransaction(w, r)
	case http.MethodGet:
		s.handleListTransactions(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid date, expected YYYY-MM-DD")
		return
	}

	t := core.Transaction{
		UserID:     uid,
		CategoryID: sanitizeInput(req.CategoryID),
		Title:      sanitizeInput(req.Title),
		Amount:     core.Money{Cents: cents},
		Kind:       core.TransactionKind(req.Kind),
		Date:       date,
		Source:     core.TransactionSource(req.Source),
	}

	id, err := s.svc.RecordTransaction(r.Context(), t)
	if err != nil {
		if isValidationError(err) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "Failed to record transaction",
			"user_id", uid, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to record transaction")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	year, month := parseYearMonth(r, time.Now())

	txs, err := s.svc.ListTransactions(r.Context(), uid, year, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list transactions",
			"user_id", uid, "year", year, "month", month, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionResponse{
			ID:         t.ID,
			CategoryID: t.CategoryID,
			Title:      t.Title,
			Amount:     t.Amount.Format(),
			Kind:       string(t.Kind),
			Date:       t.Date.Format("2006-01-02"),
			Source:     string(t.Source),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleTransactionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", "DELETE")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	id := r.PathValue("id")

	if err := s.svc.DeleteTransaction(r.Context(), uid, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "transaction not found")
			return
		}
		slog.ErrorContext(r.Context(), "Failed to delete transaction",
			"user_id", uid, "transaction_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to delete transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateCategory(w, r)
	case http.MethodGet:
		s.handleListCategories(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var limit core.Money
	if req.MonthlyLimit != "" {
		cents, err := core.ParseDecimalToCents(req.MonthlyLimit)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, "invalid monthly limit")
			return
		}
		limit = core.Money{Cents: cents}
	}

	c := core.Category{
		UserID:       uid,
		Name:         sanitizeInput(req.Name),
		Kind:         core.TransactionKind(req.Kind),
		MonthlyLimit: limit,
	}

	id, err := s.svc.CreateCategory(r.Context(), c)
	if err != nil {
		if isValidationError(err) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "Failed to create category",
			"user_id", uid, "name", c.Name, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create category")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	cats, err := s.svc.ListCategories(r.Context(), uid)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list categories",
			"user_id", uid, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}

	out := make([]categoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryResponse{
			ID:           c.ID,
			Name:         c.Name,
			Kind:         string(c.Kind),
			MonthlyLimit: c.MonthlyLimit.Format(),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCategoryByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", "DELETE")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	id := r.PathValue("id")

	if err := s.svc.DeleteCategory(r.Context(), uid, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "category not found")
			return
		}
		slog.ErrorContext(r.Context(), "Failed to delete category",
			"user_id", uid, "category_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to delete category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCategoryLimit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.Header().Set("Allow", "PUT")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	id := r.PathValue("id")

	var req limitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cents, err := core.ParseDecimalToCents(req.MonthlyLimit)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid monthly limit")
		return
	}

	if err := s.svc.SetMonthlyLimit(r.Context(), uid, id, core.Money{Cents: cents}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "category not found")
			return
		}
		slog.ErrorContext(r.Context(), "Failed to set monthly limit",
			"user_id", uid, "category_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to set monthly limit")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		pref, err := s.svc.GetPreference(r.Context(), uid)
		if err != nil {
			slog.ErrorContext(r.Context(), "Failed to get preference",
				"user_id", uid, "error", err)
			respondError(w, http.StatusInternalServerError, "failed to get preference")
			return
		}
		respondJSON(w, http.StatusOK, preferenceResponse{
			UserID:        pref.UserID,
			Enabled:       pref.Enabled,
			NotifyAddress: pref.NotifyAddress,
			Currency:      pref.Currency,
		})

	case http.MethodPut:
		var req preferenceRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		pref := core.AlertPreference{
			UserID:        uid,
			Enabled:       req.Enabled,
			NotifyAddress: sanitizeInput(req.NotifyAddress),
			Currency:      sanitizeInput(req.Currency),
		}
		if err := s.svc.PutPreference(r.Context(), pref); err != nil {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, PUT")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleAlertCheck triggers a budget check for the user. The default runs the
// check inline and reports the outcome; with async=1 the check is queued for
// the worker instead. Inline dispatch failures surface as 502 so callers can
// retry; the computed lines are still returned.
func (s *Server) handleAlertCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if v := r.URL.Query().Get("async"); v == "1" || v == "true" {
		if err := s.svc.EnqueueCheck(r.Context(), uid); err != nil {
			slog.ErrorContext(r.Context(), "Failed to queue budget check",
				"request_id", trace.GetRequestID(r.Context()),
				"user_id", uid, "error", err)
			respondError(w, http.StatusServiceUnavailable, "check queue unavailable")
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
		return
	}

	outcome, err := s.svc.CheckUser(r.Context(), uid, time.Now())
	if err != nil {
		if errors.Is(err, budget.ErrDispatch) {
			respondJSON(w, http.StatusBadGateway, checkResponse{
				Sent:       false,
				Suppressed: outcome.Suppressed,
				Lines:      outcome.Alert.Lines,
			})
			return
		}
		slog.ErrorContext(r.Context(), "Budget check failed",
			"user_id", uid, "error", err)
		respondError(w, http.StatusInternalServerError, "budget check failed")
		return
	}

	lines := outcome.Alert.Lines
	if lines == nil {
		lines = []string{}
	}
	respondJSON(w, http.StatusOK, checkResponse{
		Sent:       outcome.Sent,
		Suppressed: outcome.Suppressed,
		Lines:      lines,
	})
}

func isValidationError(err error) bool {
	return errors.Is(err, core.ErrInvalidDate) ||
		errors.Is(err, core.ErrInvalidAmount) ||
		errors.Is(err, core.ErrInvalidKind) ||
		errors.Is(err, core.ErrInvalidSource) ||
		errors.Is(err, core.ErrEmptyTitle) ||
		errors.Is(err, core.ErrEmptyName) ||
		errors.Is(err, core.ErrEmptyUser) ||
		errors.Is(err, core.ErrReservedName)
}
