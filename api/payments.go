package api

import (
	"context"
	"net/http"

	"github.com/stripe/stripe-go/v76"

	"nestly/models"
)

// GetSubscription fetches the caller's subscription status. The poller
// calls this periodically in addition to the push events.
func (c *Client) GetSubscription(ctx context.Context) (*models.SubscriptionStatus, error) {
	var out models.SubscriptionStatus
	if err := c.do(ctx, http.MethodGet, "/api/subscriptions/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckoutSession is the redirect handle returned when starting a
// subscription purchase.
type CheckoutSession struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// CreateCheckoutSession starts a subscription checkout for the given plan.
func (c *Client) CreateCheckoutSession(ctx context.Context, planID string) (*CheckoutSession, error) {
	body := map[string]string{"planId": planID}
	var out CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/api/subscriptions/create-checkout-session", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateStripeIntent asks the backend to create a payment intent for a
// booking. The response is the intent as Stripe shapes it; the caller only
// needs ClientSecret to hand to the payment widget.
func (c *Client) CreateStripeIntent(ctx context.Context, bookingID string) (*stripe.PaymentIntent, error) {
	body := map[string]string{"bookingId": bookingID}
	var out stripe.PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/api/payments/create-stripe-intent", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmCOD records a cash-on-delivery payment choice for a booking.
func (c *Client) ConfirmCOD(ctx context.Context, bookingID string) error {
	body := map[string]string{"bookingId": bookingID}
	return c.do(ctx, http.MethodPost, "/api/payments/confirm-cod", body, nil)
}
