package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/budget-tracker/internal/api/middleware"
	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/logger"
	"github.com/dvloznov/budget-tracker/internal/store"
	"github.com/shopspring/decimal"
)

// maxBodyBytes bounds request bodies; a bulk batch of a few thousand
// records fits comfortably.
const maxBodyBytes = 4 << 20

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	store store.TransactionStore
	now   func() time.Time
}

// NewTransactionsHandler creates a new transactions handler. Handlers log
// through the request-scoped logger set by middleware.Logger.
func NewTransactionsHandler(s store.TransactionStore) *TransactionsHandler {
	return &TransactionsHandler{
		store: s,
		now:   time.Now,
	}
}

// ListTransactions handles GET /api/transaction
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	transactions, err := h.store.List(ctx)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	// Return array directly for frontend compatibility
	if transactions == nil {
		transactions = []domain.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, transactions)
}

// CreateTransaction handles POST /api/transaction
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := req.toTransaction(h.now())
	if err != nil {
		h.writeInvalid(w, r, err)
		return
	}

	log := logger.FromContext(r.Context())
	stored, err := h.store.Insert(r.Context(), tx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to insert transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save transaction")
		return
	}

	log.Info().Str("transaction_id", stored[0].ID).Int64("value", stored[0].Value).Msg("Transaction stored")
	middleware.WriteJSON(w, http.StatusCreated, stored[0])
}

// BulkCreateTransactions handles POST /api/transaction/bulk. The batch is
// validated as a whole; nothing is stored if any record is invalid.
func (h *TransactionsHandler) BulkCreateTransactions(w http.ResponseWriter, r *http.Request) {
	var reqs []transactionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&reqs); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	now := h.now()
	txs := make([]domain.Transaction, 0, len(reqs))
	for i, req := range reqs {
		tx, err := req.toTransaction(now)
		if err != nil {
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				err = prefixFields(verr, i)
			}
			h.writeInvalid(w, r, err)
			return
		}
		txs = append(txs, tx)
	}

	if len(txs) == 0 {
		middleware.WriteJSON(w, http.StatusCreated, []domain.Transaction{})
		return
	}

	log := logger.FromContext(r.Context())
	stored, err := h.store.Insert(r.Context(), txs...)
	if err != nil {
		log.Error().Err(err).Int("count", len(txs)).Msg("Failed to insert transaction batch")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save transactions")
		return
	}

	log.Info().Int("count", len(stored)).Msg("Transaction batch stored")
	middleware.WriteJSON(w, http.StatusCreated, stored)
}

func (h *TransactionsHandler) writeInvalid(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	log := logger.FromContext(r.Context())
	log.Debug().Interface("errors", verr.Fields).Msg("Transaction rejected")
	middleware.WriteValidationError(w, verr)
}

// transactionRequest accepts value as a JSON number or a numeric string.
type transactionRequest struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
	Date  *time.Time      `json:"date"`
}

func (req transactionRequest) toTransaction(now time.Time) (domain.Transaction, error) {
	fields := map[string]string{}

	value, msg := parseValue(req.Value)
	if msg != "" {
		fields["value"] = msg
	}

	tx := domain.Transaction{
		ID:    strings.TrimSpace(req.ID),
		Name:  strings.TrimSpace(req.Name),
		Value: value,
		Date:  now.UTC(),
	}
	if req.Date != nil && !req.Date.IsZero() {
		tx.Date = req.Date.UTC()
	}

	if err := tx.Validate(); err != nil {
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			return domain.Transaction{}, err
		}
		for k, v := range verr.Fields {
			fields[k] = v
		}
	}
	if len(fields) > 0 {
		return domain.Transaction{}, &domain.ValidationError{Message: "Missing Information", Fields: fields}
	}
	return tx, nil
}

func parseValue(raw json.RawMessage) (int64, string) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, "Enter an amount"
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, "amount must be a number"
		}
		s = strings.TrimSpace(str)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, "amount must be a number"
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, "amount must be a whole number of units"
	}
	if !d.Abs().LessThan(decimal.New(1, 18)) {
		return 0, "amount is out of range"
	}
	return d.IntPart(), ""
}

func prefixFields(verr *domain.ValidationError, index int) *domain.ValidationError {
	fields := make(map[string]string, len(verr.Fields))
	for k, v := range verr.Fields {
		fields[fmt.Sprintf("%d.%s", index, k)] = v
	}
	return &domain.ValidationError{Message: verr.Message, Fields: fields}
}
