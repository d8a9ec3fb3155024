package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/repository"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// VideoHandler handles the video creation flow and the render-worker
// callback.
type VideoHandler struct {
	videoSvc service.VideoService
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewVideoHandler creates a new VideoHandler.
func NewVideoHandler(videoSvc service.VideoService, validate *validator.Validate, logger zerolog.Logger) *VideoHandler {
	return &VideoHandler{videoSvc: videoSvc, validate: validate, logger: logger}
}

// RegisterRoutes registers the video endpoints. The render callback is
// mounted behind the shared-secret middleware, not user auth.
func (h *VideoHandler) RegisterRoutes(mux *http.ServeMux, authMw, renderAuthMw func(http.Handler) http.Handler) {
	mux.Handle("/videos", authMw(http.HandlerFunc(h.handleVideos)))
	mux.Handle("/videos/upload-url", authMw(http.HandlerFunc(h.UploadURL)))
	mux.Handle("/videos/", authMw(http.HandlerFunc(h.handleVideo)))
	mux.Handle("/internal/render-callback", renderAuthMw(http.HandlerFunc(h.RenderCallback)))
}

func (h *VideoHandler) handleVideos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createVideo(w, r)
	case http.MethodGet:
		h.listVideos(w, r)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (h *VideoHandler) handleVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/videos/")
	switch {
	case strings.HasSuffix(rest, "/playback"):
		h.playbackURLs(w, r, strings.TrimSuffix(rest, "/playback"))
	case rest != "" && !strings.Contains(rest, "/"):
		h.getVideo(w, r, rest)
	default:
		http.NotFound(w, r)
	}
}

// UploadURL godoc
// @Summary Get a presigned upload URL for a logo asset
// @Tags videos
// @Accept json
// @Produce json
// @Param upload body dto.LogoUploadRequest true "Logo upload request"
// @Success 200 {object} dto.LogoUploadResponse
// @Failure 400 {string} string "invalid request payload"
// @Failure 401 {string} string "unauthorized"
// @Failure 500 {string} string "failed to generate upload URL"
// @Router /videos/upload-url [post]
func (h *VideoHandler) UploadURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req dto.LogoUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	logoPath, uploadURL, err := h.videoSvc.InitiateLogoUpload(r.Context(), userID, req.Filename)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to generate upload URL")
		http.Error(w, "failed to generate upload URL", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.LogoUploadResponse{LogoPath: logoPath, UploadURL: uploadURL})
}

// createVideo godoc
// @Summary Create a video render job
// @Description Creates the video record, spends one credit and dispatches the render job.
// @Tags videos
// @Accept json
// @Produce json
// @Param video body dto.VideoCreateRequest true "Video create request"
// @Success 201 {object} dto.VideoCreateResponse
// @Failure 400 {string} string "invalid request payload"
// @Failure 401 {string} string "unauthorized"
// @Failure 402 {string} string "insufficient credits"
// @Failure 500 {string} string "failed to create video"
// @Router /videos [post]
func (h *VideoHandler) createVideo(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req dto.VideoCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	video, sub, err := h.videoSvc.CreateVideo(r.Context(), userID, req.Title, req.LogoPath, req.TemplateID)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientCredits) {
			http.Error(w, "insufficient credits", http.StatusPaymentRequired)
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to create video")
		http.Error(w, "failed to create video", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(dto.VideoCreateResponse{
		Video:            videoResponse(video),
		SpendableCredits: sub.SpendableCredits(),
	})
}

// listVideos godoc
// @Summary List the authenticated user's videos
// @Tags videos
// @Produce json
// @Param limit query int false "Maximum videos to return"
// @Success 200 {array} dto.VideoResponseDTO
// @Failure 401 {string} string "unauthorized"
// @Failure 500 {string} string "failed to list videos"
// @Router /videos [get]
func (h *VideoHandler) listVideos(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	videos, err := h.videoSvc.ListVideos(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to list videos")
		http.Error(w, "failed to list videos", http.StatusInternalServerError)
		return
	}
	resp := make([]dto.VideoResponseDTO, 0, len(videos))
	for i := range videos {
		resp = append(resp, videoResponse(&videos[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// getVideo godoc
// @Summary Get a video
// @Tags videos
// @Produce json
// @Param videoId path string true "Video ID"
// @Success 200 {object} dto.VideoResponseDTO
// @Failure 401 {string} string "unauthorized"
// @Failure 404 {string} string "video not found"
// @Router /videos/{videoId} [get]
func (h *VideoHandler) getVideo(w http.ResponseWriter, r *http.Request, videoID string) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	video, err := h.videoSvc.GetVideo(r.Context(), userID, videoID)
	if err != nil {
		if errors.Is(err, repository.ErrVideoNotFound) || errors.Is(err, service.ErrVideoNotOwned) {
			http.Error(w, "video not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("video_id", videoID).Msg("failed to fetch video")
		http.Error(w, "failed to fetch video", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(videoResponse(video))
}

// playbackURLs godoc
// @Summary Get presigned playback URLs for a completed video
// @Tags videos
// @Produce json
// @Param videoId path string true "Video ID"
// @Success 200 {object} dto.PlaybackURLsResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 404 {string} string "video not found"
// @Failure 409 {string} string "video is not completed"
// @Router /videos/{videoId}/playback [get]
func (h *VideoHandler) playbackURLs(w http.ResponseWriter, r *http.Request, videoID string) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	videoURL, thumbnailURL, err := h.videoSvc.GetPlaybackURLs(r.Context(), userID, videoID)
	if err != nil {
		if errors.Is(err, repository.ErrVideoNotFound) || errors.Is(err, service.ErrVideoNotOwned) {
			http.Error(w, "video not found", http.StatusNotFound)
			return
		}
		http.Error(w, "video is not completed", http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.PlaybackURLsResponse{VideoURL: videoURL, ThumbnailURL: thumbnailURL})
}

// RenderCallback godoc
// @Summary Render worker status callback
// @Description Applies a render status update. Repeats with the same execution id are no-ops; a mismatched execution id is ignored.
// @Tags videos
// @Accept json
// @Produce json
// @Param callback body dto.RenderCallbackRequest true "Render callback"
// @Success 200 {object} map[string]string
// @Failure 400 {string} string "invalid request payload"
// @Failure 404 {string} string "video not found"
// @Failure 500 {string} string "failed to apply render update"
// @Router /internal/render-callback [post]
func (h *VideoHandler) RenderCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.RenderCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	video, err := h.videoSvc.HandleRenderCallback(r.Context(), req.VideoID, req.ExecutionID,
		model.VideoStatus(req.Status), req.VideoPath, req.ThumbnailPath, req.ErrorMessage)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleRenderUpdate):
			// Another execution owns this video; acknowledge so the
			// worker stops retrying.
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": "ignored"})
			return
		case errors.Is(err, repository.ErrVideoNotFound):
			http.Error(w, "video not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("video_id", req.VideoID).Msg("failed to apply render update")
		http.Error(w, "failed to apply render update", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": string(video.Status)})
}

func videoResponse(v *model.Video) dto.VideoResponseDTO {
	return dto.VideoResponseDTO{
		VideoID:      v.ID,
		Title:        v.Title,
		TemplateID:   v.TemplateID,
		Status:       string(v.Status),
		ErrorMessage: v.ErrorMessage,
		CreatedAt:    v.CreatedAt,
		UpdatedAt:    v.UpdatedAt,
	}
}
