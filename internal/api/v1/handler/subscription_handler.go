package handler

import (
	"encoding/json"
	"net/http"

	"app/internal/middleware"
	"app/internal/service"

	"github.com/rs/zerolog"
)

// SubscriptionHandler is the read surface over the subscription record.
type SubscriptionHandler struct {
	subSvc service.SubscriptionService
	logger zerolog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(subSvc service.SubscriptionService, logger zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subSvc: subSvc, logger: logger}
}

// RegisterRoutes registers the subscription endpoints.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/subscriptions/me", authMw(http.HandlerFunc(h.Get)))
}

// Get godoc
// @Summary Get the authenticated user's subscription
// @Description Returns the subscription record regardless of status, or 404 for users who never subscribed.
// @Tags subscriptions
// @Produce json
// @Success 200 {object} model.Subscription
// @Failure 401 {string} string "unauthorized"
// @Failure 404 {string} string "no subscription"
// @Failure 500 {string} string "failed to fetch subscription"
// @Router /subscriptions/me [get]
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	sub, err := h.subSvc.GetSubscription(r.Context(), userID)
	if err != nil {
		http.Error(w, "failed to fetch subscription", http.StatusInternalServerError)
		return
	}
	if sub == nil {
		http.Error(w, "no subscription", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sub)
}
