package router

import (
	"context"
	"net/http"
	"strings"

	"app/internal/api/v1/handler"
	"app/internal/config"
	"app/internal/middleware"
	"app/internal/pubsub"
	"app/internal/repository"
	"app/internal/service"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsmiddleware "github.com/aws/smithy-go/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// New wires repositories, services and handlers and returns the root
// HTTP handler plus the connection pool for shutdown.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (http.Handler, *pgxpool.Pool, error) {
	logger.Info().Str("environment", cfg.Environment).Msg("App environment loaded")

	// Open the connection pool. In development ensure SSL is disabled
	// for local Postgres; deployed environments provide their own
	// sslmode in the connection string.
	dsn := cfg.DBConnectionString
	if cfg.Environment == "development" && !strings.Contains(dsn, "sslmode") {
		separator := " "
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			separator = "?"
			if strings.Contains(dsn, "?") {
				separator = "&"
			}
		}
		dsn += separator + "sslmode=disable"
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create connection pool")
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to ping DB")
		return nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	// S3 client for presigned logo/video URLs.
	s3Config, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		awsconfig.WithAPIOptions([]func(*awsmiddleware.Stack) error{removeDisableGzip()}),
	)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load S3 config")
		return nil, nil, err
	}
	s3Client := s3.NewFromConfig(s3Config, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3URL)
		o.UsePathStyle = true
	})
	presignClient := s3.NewPresignClient(s3Client)

	validate := validator.New(validator.WithRequiredStructEnabled())

	pubSubPublisher, err := pubsub.NewPublisher(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create Pub/Sub publisher")
		return nil, nil, err
	}

	// Repositories
	userRepo := repository.NewUserRepo(pool)
	subRepo := repository.NewSubscriptionRepo(pool)
	billingRepo := repository.NewBillingRepo(pool)
	creditRepo := repository.NewCreditRepo(pool)
	ledgerRepo := repository.NewLedgerRepo(pool)
	revisionRepo := repository.NewRevisionRepo(pool)
	videoRepo := repository.NewVideoRepo(pool)
	eventRepo := repository.NewEventRepo(pool)

	// Services
	catalog := service.NewCatalog(cfg)
	emailSvc := service.NewResendEmailService(cfg.ResendAPIKey, cfg.EmailFrom, logger)
	billingSvc := service.NewBillingService(billingRepo, subRepo, userRepo, catalog, emailSvc, logger)
	stripeSvc := service.NewStripeService(cfg, userRepo, eventRepo, billingSvc, catalog, logger)
	creditSvc := service.NewCreditService(creditRepo, subRepo, ledgerRepo, logger)
	revisionSvc := service.NewRevisionService(revisionRepo, subRepo, videoRepo, userRepo, logger)
	subSvc := service.NewSubscriptionService(subRepo, catalog, logger)
	userSvc := service.NewUserService(userRepo)
	videoSvc := service.NewVideoService(videoRepo, creditSvc, presignClient, cfg.S3Bucket, pubSubPublisher, cfg.RenderJobTopic, logger)

	// Handlers
	userHandler := handler.NewUserHandler(userSvc, validate, logger)
	billingHandler := handler.NewBillingHandler(stripeSvc, validate, logger)
	creditHandler := handler.NewCreditHandler(creditSvc, logger)
	subHandler := handler.NewSubscriptionHandler(subSvc, logger)
	videoHandler := handler.NewVideoHandler(videoSvc, validate, logger)
	revisionHandler := handler.NewRevisionHandler(revisionSvc, validate, logger)

	// Middleware
	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret, logger)
	renderAuthMiddleware := middleware.RenderAuthMiddleware(cfg.RenderCallbackSecret, logger)

	apiV1Mux := http.NewServeMux()
	userHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	billingHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	creditHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	subHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	videoHandler.RegisterRoutes(apiV1Mux, authMiddleware, renderAuthMiddleware)
	revisionHandler.RegisterRoutes(apiV1Mux, authMiddleware)

	mux := http.NewServeMux()
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	// Swagger documentation
	mux.HandleFunc("/swagger/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./docs/swagger/swagger.json")
	})
	mux.Handle("/swagger/", http.StripPrefix("/swagger/", http.FileServer(http.Dir("./docs/swagger/swagger-ui"))))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(logger)(c.Handler(mux)), pool, nil
}

// removeDisableGzip is a workaround for S3 signature errors with some S3-compatible services.
// See: https://github.com/supabase/storage/issues/577
func removeDisableGzip() func(*awsmiddleware.Stack) error {
	return func(stack *awsmiddleware.Stack) error {
		if _, ok := stack.Finalize.Get("DisableAcceptEncodingGzip"); ok {
			_, err := stack.Finalize.Remove("DisableAcceptEncodingGzip")
			return err
		}
		return nil
	}
}
