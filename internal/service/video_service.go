package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"app/internal/model"
	"app/internal/pubsub"
	"app/internal/repository"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Each render consumes one credit regardless of template.
const videoCreditCost = 1

// VideoService runs the video creation flow: record, credit spend,
// render-job dispatch. The spend is the authoritative gate; publishing
// the render job is best-effort and never rolls the spend back.
type VideoService interface {
	InitiateLogoUpload(ctx context.Context, userID, filename string) (logoPath, uploadURL string, err error)
	CreateVideo(ctx context.Context, userID, title, logoPath, templateID string) (*model.Video, *model.Subscription, error)
	GetVideo(ctx context.Context, userID, videoID string) (*model.Video, error)
	ListVideos(ctx context.Context, userID string, limit int) ([]model.Video, error)
	GetPlaybackURLs(ctx context.Context, userID, videoID string) (videoURL, thumbnailURL string, err error)
	HandleRenderCallback(ctx context.Context, videoID, executionID string, status model.VideoStatus, videoURL, thumbnailURL, errorMessage *string) (*model.Video, error)
}

type videoService struct {
	videoRepo      repository.VideoRepository
	creditSvc      CreditService
	presignClient  *s3.PresignClient
	bucketName     string
	publisher      pubsub.Publisher
	renderJobTopic string
	logger         zerolog.Logger
}

func NewVideoService(
	videoRepo repository.VideoRepository,
	creditSvc CreditService,
	presignClient *s3.PresignClient,
	bucketName string,
	publisher pubsub.Publisher,
	renderJobTopic string,
	logger zerolog.Logger,
) VideoService {
	return &videoService{
		videoRepo:      videoRepo,
		creditSvc:      creditSvc,
		presignClient:  presignClient,
		bucketName:     bucketName,
		publisher:      publisher,
		renderJobTopic: renderJobTopic,
		logger:         logger.With().Str("service", "VideoService").Logger(),
	}
}

// InitiateLogoUpload returns a storage path and a presigned PUT URL for
// uploading the logo asset directly to object storage.
func (s *videoService) InitiateLogoUpload(ctx context.Context, userID, filename string) (string, string, error) {
	logoPath := fmt.Sprintf("logos/%s/%d%s", userID, time.Now().UnixNano(), path.Ext(filename))
	request, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(logoPath),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		s.logger.Error().Err(err).Str("logo_path", logoPath).Msg("Failed to generate presigned PUT URL")
		return "", "", fmt.Errorf("failed to generate presigned PUT URL: %w", err)
	}
	return logoPath, request.URL, nil
}

// CreateVideo creates the video record, spends one credit, and
// dispatches the render job. If the spend fails the record is removed;
// if only the dispatch fails the spend stands and the job is re-sent
// manually.
func (s *videoService) CreateVideo(ctx context.Context, userID, title, logoPath, templateID string) (*model.Video, *model.Subscription, error) {
	video := &model.Video{
		UserID:     userID,
		Title:      title,
		LogoPath:   logoPath,
		TemplateID: templateID,
	}
	if err := s.videoRepo.CreateVideo(ctx, video); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create video record")
		return nil, nil, fmt.Errorf("failed to create video record: %w", err)
	}

	sub, err := s.creditSvc.SpendCredits(ctx, userID, video.ID, videoCreditCost)
	if err != nil {
		_ = s.videoRepo.DeleteVideo(ctx, video.ID)
		return nil, nil, err
	}

	payload := struct {
		VideoID    string `json:"video_id"`
		UserID     string `json:"user_id"`
		LogoPath   string `json:"logo_path"`
		TemplateID string `json:"template_id"`
	}{
		VideoID:    video.ID,
		UserID:     userID,
		LogoPath:   logoPath,
		TemplateID: templateID,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("video_id", video.ID).Msg("Failed to marshal render job payload")
		// Don't return error; the video exists and was paid for, the job
		// needs a manual trigger.
	} else {
		if _, err := s.publisher.Publish(ctx, s.renderJobTopic, data); err != nil {
			s.logger.Error().Err(err).Str("topic", s.renderJobTopic).Str("video_id", video.ID).
				Msg("Failed to publish render job")
			// Don't return an error here either.
		}
	}

	return video, sub, nil
}

func (s *videoService) GetVideo(ctx context.Context, userID, videoID string) (*model.Video, error) {
	video, err := s.videoRepo.GetVideoByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video.UserID != userID {
		return nil, ErrVideoNotOwned
	}
	return video, nil
}

func (s *videoService) ListVideos(ctx context.Context, userID string, limit int) ([]model.Video, error) {
	return s.videoRepo.ListVideosByUser(ctx, userID, limit)
}

// GetPlaybackURLs turns the stored storage paths of a completed video
// into short-lived presigned GET URLs.
func (s *videoService) GetPlaybackURLs(ctx context.Context, userID, videoID string) (string, string, error) {
	video, err := s.GetVideo(ctx, userID, videoID)
	if err != nil {
		return "", "", err
	}
	if video.Status != model.VideoCompleted || video.VideoURL == nil {
		return "", "", fmt.Errorf("video %s is not completed", videoID)
	}
	videoURL, err := s.presignGet(ctx, *video.VideoURL)
	if err != nil {
		return "", "", err
	}
	var thumbnailURL string
	if video.ThumbnailURL != nil {
		thumbnailURL, err = s.presignGet(ctx, *video.ThumbnailURL)
		if err != nil {
			return "", "", err
		}
	}
	return videoURL, thumbnailURL, nil
}

// HandleRenderCallback applies a worker status callback. A progress
// report ("processing") claims the execution id on first contact;
// repeats with the same id are no-ops at the repository level, and a
// callback for an execution the video does not own returns
// repository.ErrStaleRenderUpdate.
func (s *videoService) HandleRenderCallback(ctx context.Context, videoID, executionID string, status model.VideoStatus, videoURL, thumbnailURL, errorMessage *string) (*model.Video, error) {
	switch status {
	case model.VideoProcessing, model.VideoCompleted, model.VideoFailed:
	default:
		return nil, fmt.Errorf("invalid render status: %s", status)
	}
	video, err := s.videoRepo.UpdateRenderStatus(ctx, videoID, executionID, status, videoURL, thumbnailURL, errorMessage)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("video_id", videoID).Str("execution_id", executionID).Str("status", string(status)).
		Msg("Render status updated")
	return video, nil
}

func (s *videoService) presignGet(ctx context.Context, storagePath string) (string, error) {
	resp, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(storagePath),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		s.logger.Error().Err(err).Str("storage_path", storagePath).Msg("Failed to generate presigned URL")
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return resp.URL, nil
}
