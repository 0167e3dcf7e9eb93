package api

import (
	"context"
	"net/http"
	"time"

	"nestly/models"
)

// CreateBookingRequest is the body of POST /api/bookings.
type CreateBookingRequest struct {
	ServiceID     string    `json:"serviceId"`
	ScheduledTime time.Time `json:"scheduledTime"`
	Location      string    `json:"location"`
	PaymentMethod string    `json:"paymentMethod,omitempty"`
}

// CreateBooking submits a new booking. The returned booking is the server's
// acknowledged record, including the id and the authoritative status.
func (c *Client) CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	var out models.Booking
	if err := c.do(ctx, http.MethodPost, "/api/bookings", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBookings fetches the caller's bookings (customer: own orders;
// provider: assigned jobs).
func (c *Client) ListBookings(ctx context.Context) ([]models.Booking, error) {
	var out []models.Booking
	if err := c.do(ctx, http.MethodGet, "/api/bookings", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AcceptBooking asks the server to move an assigned booking to in-progress.
func (c *Client) AcceptBooking(ctx context.Context, id string) (*models.Booking, error) {
	var out models.Booking
	if err := c.do(ctx, http.MethodPut, "/api/bookings/"+id+"/accept", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RejectBooking asks the server to reject an assigned booking.
func (c *Client) RejectBooking(ctx context.Context, id string) (*models.Booking, error) {
	var out models.Booking
	if err := c.do(ctx, http.MethodPut, "/api/bookings/"+id+"/reject", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateBookingStatus asks the server to set an explicit status (used by
// providers to mark a job completed).
func (c *Client) UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus) (*models.Booking, error) {
	body := map[string]models.BookingStatus{"status": status}
	var out models.Booking
	if err := c.do(ctx, http.MethodPut, "/api/bookings/"+id+"/status", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelBooking cancels the caller's booking.
func (c *Client) CancelBooking(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/bookings/"+id, nil, nil)
}
