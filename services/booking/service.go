// Package booking implements the client side of the booking state machine:
// every action validates its precondition against the cached booking before
// any request leaves the tab, and the store is only patched after the
// server acknowledges the transition.
package booking

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"nestly/api"
	"nestly/models"
	"nestly/store"
	"nestly/utils"
)

// Service issues booking mutations. It is the only component besides the
// event dispatcher that writes bookings into the store, and it does so
// exclusively with server-acknowledged state.
type Service struct {
	api    *api.Client
	store  *store.Store
	logger *zap.Logger
}

// NewService builds the booking action service.
func NewService(apiClient *api.Client, st *store.Store) *Service {
	return &Service{
		api:    apiClient,
		store:  st,
		logger: utils.GetLogger(),
	}
}

// Create submits a new booking and inserts the server's acknowledged
// record into the store. No optimistic status is written ahead of the ack;
// a response without a status enters the machine at pending.
func (s *Service) Create(ctx context.Context, req api.CreateBookingRequest) (*models.Booking, error) {
	b, err := s.api.CreateBooking(ctx, req)
	if err != nil {
		return nil, err
	}
	if b.Status == "" {
		b.Status = models.BookingPending
	}
	s.store.Upsert(models.ColBookings, *b)
	s.logger.Info("booking created",
		zap.String("bookingId", b.ID), zap.String("status", string(b.Status)))
	return b, nil
}

// Accept moves an assigned booking to in-progress. Legal only while the
// cached status is assigned.
func (s *Service) Accept(ctx context.Context, id string) (*models.Booking, error) {
	if err := s.require(id, models.BookingAssigned, "accept"); err != nil {
		return nil, err
	}
	b, err := s.api.AcceptBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	s.applyAck(b)
	return b, nil
}

// Reject declines an assigned booking.
func (s *Service) Reject(ctx context.Context, id string) (*models.Booking, error) {
	if err := s.require(id, models.BookingAssigned, "reject"); err != nil {
		return nil, err
	}
	b, err := s.api.RejectBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	s.applyAck(b)
	return b, nil
}

// Complete marks an in-progress booking as completed.
func (s *Service) Complete(ctx context.Context, id string) (*models.Booking, error) {
	if err := s.require(id, models.BookingInProgress, "complete"); err != nil {
		return nil, err
	}
	b, err := s.api.UpdateBookingStatus(ctx, id, models.BookingCompleted)
	if err != nil {
		return nil, err
	}
	s.applyAck(b)
	return b, nil
}

// Cancel cancels the booking. Allowed from any non-terminal status.
func (s *Service) Cancel(ctx context.Context, id string) error {
	cur, err := s.lookup(id)
	if err != nil {
		return err
	}
	if cur.Status.IsTerminal() {
		return newPreconditionError(fmt.Sprintf(
			"booking %s is already %s and cannot be cancelled", id, cur.Status))
	}
	if err := s.api.CancelBooking(ctx, id); err != nil {
		return err
	}
	s.store.Patch(models.ColBookings, id, func(e store.Entity) store.Entity {
		b, ok := e.(models.Booking)
		if !ok {
			return e
		}
		b.Status = models.BookingCancelled
		return b
	})
	return nil
}

func (s *Service) lookup(id string) (models.Booking, error) {
	snap := s.store.Get(models.ColBookings)
	e, ok := snap.Find(id)
	if !ok {
		return models.Booking{}, newNotFoundError(id)
	}
	b, ok := e.(models.Booking)
	if !ok {
		return models.Booking{}, newNotFoundError(id)
	}
	return b, nil
}

// require rejects the action locally when the cached booking is not in the
// status the server would demand anyway, saving the round-trip.
func (s *Service) require(id string, want models.BookingStatus, action string) error {
	cur, err := s.lookup(id)
	if err != nil {
		return err
	}
	if cur.Status != want {
		return newPreconditionError(fmt.Sprintf(
			"cannot %s booking %s: status is %s, must be %s",
			action, id, cur.Status, want))
	}
	return nil
}

// applyAck writes the server-acknowledged booking back into the store. The
// monotonic guard makes this a no-op if an event already advanced further.
func (s *Service) applyAck(b *models.Booking) {
	if b == nil || b.ID == "" {
		return
	}
	s.store.Upsert(models.ColBookings, *b)
}
