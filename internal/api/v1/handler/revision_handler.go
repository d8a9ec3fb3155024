package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/repository"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// RevisionHandler handles the revision-credit request workflow.
type RevisionHandler struct {
	revisionSvc service.RevisionService
	validate    *validator.Validate
	logger      zerolog.Logger
}

// NewRevisionHandler creates a new RevisionHandler.
func NewRevisionHandler(revisionSvc service.RevisionService, validate *validator.Validate, logger zerolog.Logger) *RevisionHandler {
	return &RevisionHandler{revisionSvc: revisionSvc, validate: validate, logger: logger}
}

// RegisterRoutes registers the revision endpoints. Admin review routes
// live under /admin/revisions; the role check happens in the service
// against the stored profile, not the token.
func (h *RevisionHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/revisions", authMw(http.HandlerFunc(h.Submit)))
	mux.Handle("/revisions/", authMw(http.HandlerFunc(h.Get)))
	mux.Handle("/admin/revisions", authMw(http.HandlerFunc(h.ListPending)))
	mux.Handle("/admin/revisions/", authMw(http.HandlerFunc(h.handleReview)))
}

// Submit godoc
// @Summary Submit a revision request
// @Description Files a request for one free revision of a video. One request per video.
// @Tags revisions
// @Accept json
// @Produce json
// @Param revision body dto.RevisionSubmitRequest true "Revision request"
// @Success 201 {object} dto.RevisionResponseDTO
// @Failure 400 {string} string "invalid request payload"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "no active subscription"
// @Failure 404 {string} string "video not found"
// @Failure 409 {string} string "duplicate request or quota exhausted"
// @Failure 500 {string} string "failed to submit revision request"
// @Router /revisions [post]
func (h *RevisionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req dto.RevisionSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	created, err := h.revisionSvc.Submit(r.Context(), userID, req.VideoID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoActiveSubscription):
			http.Error(w, "no active subscription", http.StatusForbidden)
		case errors.Is(err, repository.ErrVideoNotFound), errors.Is(err, service.ErrVideoNotOwned):
			http.Error(w, "video not found", http.StatusNotFound)
		case errors.Is(err, repository.ErrDuplicateRequest):
			http.Error(w, "a revision request already exists for this video", http.StatusConflict)
		case errors.Is(err, repository.ErrRevisionQuotaExhausted):
			http.Error(w, "revision quota exhausted for this cycle", http.StatusConflict)
		default:
			h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to submit revision request")
			http.Error(w, "failed to submit revision request", http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(revisionResponse(created))
}

// Get godoc
// @Summary Get a revision request
// @Tags revisions
// @Produce json
// @Param requestId path string true "Request ID"
// @Success 200 {object} dto.RevisionResponseDTO
// @Failure 401 {string} string "unauthorized"
// @Failure 404 {string} string "request not found"
// @Router /revisions/{requestId} [get]
func (h *RevisionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	requestID := strings.TrimPrefix(r.URL.Path, "/revisions/")
	req, err := h.revisionSvc.Get(r.Context(), requestID)
	if err != nil || req == nil || req.UserID != userID {
		http.Error(w, "request not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(revisionResponse(req))
}

// ListPending godoc
// @Summary List pending revision requests
// @Description Admin-only review queue, oldest first.
// @Tags revisions
// @Produce json
// @Success 200 {array} dto.RevisionResponseDTO
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 500 {string} string "failed to list pending requests"
// @Router /admin/revisions [get]
func (h *RevisionHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	adminID := middleware.UserID(r.Context())
	if adminID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	pending, err := h.revisionSvc.ListPending(r.Context(), adminID)
	if err != nil {
		if errors.Is(err, service.ErrNotAdmin) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		h.logger.Error().Err(err).Msg("failed to list pending requests")
		http.Error(w, "failed to list pending requests", http.StatusInternalServerError)
		return
	}
	resp := make([]dto.RevisionResponseDTO, 0, len(pending))
	for i := range pending {
		resp = append(resp, revisionResponse(&pending[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *RevisionHandler) handleReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/admin/revisions/")
	switch {
	case strings.HasSuffix(rest, "/approve"):
		h.approve(w, r, strings.TrimSuffix(rest, "/approve"))
	case strings.HasSuffix(rest, "/deny"):
		h.deny(w, r, strings.TrimSuffix(rest, "/deny"))
	default:
		http.NotFound(w, r)
	}
}

// approve godoc
// @Summary Approve a revision request
// @Description Grants one revision credit atomically. Fails if the request is not pending or the cycle quota is exhausted.
// @Tags revisions
// @Produce json
// @Param requestId path string true "Request ID"
// @Success 200 {object} dto.RevisionResponseDTO
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "request not found"
// @Failure 409 {string} string "request not pending or quota exhausted"
// @Failure 500 {string} string "failed to approve request"
// @Router /admin/revisions/{requestId}/approve [post]
func (h *RevisionHandler) approve(w http.ResponseWriter, r *http.Request, requestID string) {
	adminID := middleware.UserID(r.Context())
	if adminID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	req, err := h.revisionSvc.Approve(r.Context(), adminID, requestID)
	if err != nil {
		h.writeReviewError(w, err, requestID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(revisionResponse(req))
}

// deny godoc
// @Summary Deny a revision request
// @Description Marks the request denied with mandatory notes. No balances change.
// @Tags revisions
// @Accept json
// @Produce json
// @Param requestId path string true "Request ID"
// @Param denial body dto.RevisionDenyRequest true "Denial notes"
// @Success 200 {object} dto.RevisionResponseDTO
// @Failure 400 {string} string "invalid request payload"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "request not found"
// @Failure 409 {string} string "request not pending"
// @Failure 500 {string} string "failed to deny request"
// @Router /admin/revisions/{requestId}/deny [post]
func (h *RevisionHandler) deny(w http.ResponseWriter, r *http.Request, requestID string) {
	adminID := middleware.UserID(r.Context())
	if adminID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var body dto.RevisionDenyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&body); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	req, err := h.revisionSvc.Deny(r.Context(), adminID, requestID, body.Notes)
	if err != nil {
		if errors.Is(err, service.ErrDenialNotesTooShort) {
			http.Error(w, "denial notes must be at least 10 characters", http.StatusBadRequest)
			return
		}
		h.writeReviewError(w, err, requestID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(revisionResponse(req))
}

func (h *RevisionHandler) writeReviewError(w http.ResponseWriter, err error, requestID string) {
	switch {
	case errors.Is(err, service.ErrNotAdmin):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, repository.ErrRequestNotFound):
		http.Error(w, "request not found", http.StatusNotFound)
	case errors.Is(err, repository.ErrRequestNotPending):
		http.Error(w, "request is not pending", http.StatusConflict)
	case errors.Is(err, repository.ErrRevisionQuotaExhausted):
		http.Error(w, "revision quota exhausted for this cycle", http.StatusConflict)
	default:
		h.logger.Error().Err(err).Str("request_id", requestID).Msg("failed to review revision request")
		http.Error(w, "failed to review request", http.StatusInternalServerError)
	}
}

func revisionResponse(req *model.RevisionRequest) dto.RevisionResponseDTO {
	return dto.RevisionResponseDTO{
		RequestID:   req.ID,
		VideoID:     req.VideoID,
		UserID:      req.UserID,
		Reason:      req.Reason,
		Status:      string(req.Status),
		AdminNotes:  req.AdminNotes,
		RequestedAt: req.RequestedAt,
		ReviewedAt:  req.ReviewedAt,
	}
}
