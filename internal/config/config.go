package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port               string `envconfig:"PORT" default:"8080"`
	Environment        string `envconfig:"ENV" default:"development"`
	DBConnectionString string `envconfig:"DATABASE_URL" required:"true"`
	JWTSecret          string `envconfig:"JWT_SECRET" required:"true"`

	// Stripe settings. In production the secret values may be resolved
	// through Secret Manager at startup instead of the environment.
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`

	StripePriceStarterMonthly string `envconfig:"STRIPE_PRICE_STARTER_MONTHLY"`
	StripePriceStarterAnnual  string `envconfig:"STRIPE_PRICE_STARTER_ANNUAL"`
	StripePriceStudioMonthly  string `envconfig:"STRIPE_PRICE_STUDIO_MONTHLY"`
	StripePriceStudioAnnual   string `envconfig:"STRIPE_PRICE_STUDIO_ANNUAL"`
	StripePricePackSmall      string `envconfig:"STRIPE_PRICE_PACK_SMALL"`
	StripePricePackLarge      string `envconfig:"STRIPE_PRICE_PACK_LARGE"`
	StripePortalReturnURL     string `envconfig:"STRIPE_PORTAL_RETURN_URL" default:"http://localhost:3000/account"`

	// Render worker settings
	RenderCallbackSecret string `envconfig:"RENDER_CALLBACK_SECRET"`
	RenderJobTopic       string `envconfig:"RENDER_JOB_TOPIC" default:"render_jobs"`
	GCPProjectID         string `envconfig:"GCP_PROJECT_ID"`

	// Object storage for logo uploads and finished videos
	S3URL       string `envconfig:"S3_URL"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"animation-labs"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`

	// Transactional email (best-effort notices only)
	ResendAPIKey string `envconfig:"RESEND_API_KEY"`
	EmailFrom    string `envconfig:"EMAIL_FROM" default:"billing@animationlabs.app"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
