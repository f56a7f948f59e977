package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/entrepeneur4lyf/paycopilot/internal/alerts"
	"github.com/entrepeneur4lyf/paycopilot/internal/storage"
	"github.com/entrepeneur4lyf/paycopilot/internal/transactions"
)

func (s *Server) handleTransactionSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Reports.Summary(r.Context())
	switch {
	case errors.Is(err, transactions.ErrNoData):
		s.writeError(w, http.StatusNotFound, "No transaction data found", err)
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, "Failed to get transaction summary", err)
	default:
		s.writeOK(w, "Transaction summary retrieved", summary)
	}
}

func (s *Server) handleUserTransactions(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	limit := transactions.DefaultUserLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		// zero is rejected here; the service reads it as "use the default"
		if err != nil || n == 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit", transactions.ErrInvalidLimit)
			return
		}
		limit = n
	}

	rows, err := s.deps.Reports.UserTransactions(r.Context(), userID, limit)
	switch {
	case errors.Is(err, transactions.ErrInvalidLimit), errors.Is(err, transactions.ErrInvalidUser):
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to get transactions for user %s", userID), err)
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get transactions for user %s", userID), err)
		return
	}

	s.writeOK(w, fmt.Sprintf("Retrieved %d transactions for user %s", len(rows), userID), map[string]any{
		"user_id":      userID,
		"transactions": rows,
		"count":        len(rows),
	})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Alerts.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to get alerts", err)
		return
	}
	s.writeOK(w, "Alerts retrieved", list)
}

func (s *Server) handleMarkAlertSeen(w http.ResponseWriter, r *http.Request) {
	alertID := mux.Vars(r)["alert_id"]

	ok, err := s.deps.Alerts.MarkSeen(r.Context(), alertID)
	switch {
	case errors.Is(err, storage.ErrInvalidAlertID):
		s.writeError(w, http.StatusBadRequest, "Failed to update alert", err)
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, "Failed to update alert", err)
	case !ok:
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("Alert %s not found", alertID), nil)
	default:
		s.writeOK(w, "Alert updated", map[string]string{"alert_id": alertID})
	}
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var hook alerts.Webhook
	if err := decodeBody(w, r, &hook); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid webhook payload", err)
		return
	}

	res, err := s.deps.Webhooks.HandleWebhook(r.Context(), hook)
	switch {
	case errors.Is(err, alerts.ErrMissingTransaction):
		s.writeError(w, http.StatusBadRequest, "'transaction_id' not found in alert", err)
		return
	case err != nil:
		s.logger.Error("webhook failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal server error", err)
		return
	}

	if res.Status == alerts.StatusIgnored {
		s.writeOK(w, "Alert ignored", res)
		return
	}
	s.writeOK(w, "Alert processed and analyzed.", res)
}
