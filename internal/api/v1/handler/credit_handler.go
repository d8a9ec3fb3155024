package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/service"

	"github.com/rs/zerolog"
)

// CreditHandler exposes balances and the audit ledger.
type CreditHandler struct {
	creditSvc service.CreditService
	logger    zerolog.Logger
}

// NewCreditHandler creates a new CreditHandler.
func NewCreditHandler(creditSvc service.CreditService, logger zerolog.Logger) *CreditHandler {
	return &CreditHandler{creditSvc: creditSvc, logger: logger}
}

// RegisterRoutes registers the credit endpoints.
func (h *CreditHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/credits", authMw(http.HandlerFunc(h.Summary)))
	mux.Handle("/credits/ledger", authMw(http.HandlerFunc(h.Ledger)))
	mux.Handle("/credits/check", authMw(http.HandlerFunc(h.Check)))
}

// Summary godoc
// @Summary Get the current credit balances
// @Description Returns plan credits, overage credits and the revision quota for the account page.
// @Tags credits
// @Produce json
// @Success 200 {object} service.CreditSummary
// @Failure 401 {string} string "unauthorized"
// @Failure 500 {string} string "failed to fetch credit summary"
// @Router /credits [get]
func (h *CreditHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	summary, err := h.creditSvc.GetSummary(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to fetch credit summary")
		http.Error(w, "failed to fetch credit summary", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// Ledger godoc
// @Summary List credit ledger entries
// @Description Returns the append-only audit trail of credit movements, most recent first.
// @Tags credits
// @Produce json
// @Param limit query int false "Maximum entries to return"
// @Success 200 {array} dto.LedgerEntryResponseDTO
// @Failure 401 {string} string "unauthorized"
// @Failure 500 {string} string "failed to fetch ledger"
// @Router /credits/ledger [get]
func (h *CreditHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.creditSvc.ListLedger(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to fetch ledger")
		http.Error(w, "failed to fetch ledger", http.StatusInternalServerError)
		return
	}
	resp := make([]dto.LedgerEntryResponseDTO, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, dto.LedgerEntryResponseDTO{
			ID:          e.ID,
			Amount:      e.Amount,
			Type:        string(e.Type),
			Description: e.Description,
			CreatedAt:   e.CreatedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Check godoc
// @Summary Check whether a spend would succeed
// @Description Advisory read of the current balance against an amount. The answer can be stale.
// @Tags credits
// @Produce json
// @Param amount query int true "Credits needed"
// @Success 200 {object} dto.CreditCheckResponse
// @Failure 400 {string} string "invalid amount"
// @Failure 401 {string} string "unauthorized"
// @Failure 500 {string} string "failed to check credits"
// @Router /credits/check [get]
func (h *CreditHandler) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	amount, err := strconv.Atoi(r.URL.Query().Get("amount"))
	if err != nil || amount <= 0 {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}
	ok, err := h.creditSvc.CheckCredits(r.Context(), userID, amount)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to check credits")
		http.Error(w, "failed to check credits", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.CreditCheckResponse{Sufficient: ok, Amount: amount})
}
