package api

import (
	"context"
	"net/http"

	"nestly/models"
)

// ListServices fetches the full service catalog.
func (c *Client) ListServices(ctx context.Context) ([]models.ServiceCatalogEntry, error) {
	var out []models.ServiceCatalogEntry
	if err := c.do(ctx, http.MethodGet, "/api/services", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetService fetches a single catalog entry by id.
func (c *Client) GetService(ctx context.Context, id string) (*models.ServiceCatalogEntry, error) {
	var out models.ServiceCatalogEntry
	if err := c.do(ctx, http.MethodGet, "/api/services/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListFeedback fetches all feedback visible to the caller.
func (c *Client) ListFeedback(ctx context.Context) ([]models.FeedbackEntry, error) {
	var out []models.FeedbackEntry
	if err := c.do(ctx, http.MethodGet, "/api/feedback", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListFAQs fetches the FAQ list.
func (c *Client) ListFAQs(ctx context.Context) ([]models.FAQEntry, error) {
	var out []models.FAQEntry
	if err := c.do(ctx, http.MethodGet, "/api/faqs", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPlans fetches the available subscription plans.
func (c *Client) ListPlans(ctx context.Context) ([]models.Plan, error) {
	var out []models.Plan
	if err := c.do(ctx, http.MethodGet, "/api/plans", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetStats fetches the provider dashboard aggregates.
func (c *Client) GetStats(ctx context.Context) (*models.ProviderStats, error) {
	var out models.ProviderStats
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
