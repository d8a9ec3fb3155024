package dto

// SubscriptionCheckoutRequest starts a subscription checkout.
type SubscriptionCheckoutRequest struct {
	Plan     string `json:"plan" validate:"required,oneof=starter studio"`
	Interval string `json:"interval" validate:"required,oneof=monthly annual"`
}

// PackCheckoutRequest starts a one-time credit pack checkout.
type PackCheckoutRequest struct {
	Pack string `json:"pack" validate:"required,oneof=small large"`
}
