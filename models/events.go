package models

import "encoding/json"

// Collection keys used by the entity store and the fetch coordinator.
const (
	ColServices      = "services"
	ColBookings      = "bookings"
	ColFeedbacks     = "feedbacks"
	ColFAQs          = "faqs"
	ColPlans         = "plans"
	ColProfile       = "profile"
	ColStats         = "stats"
	ColSubscription  = "subscription"
	ColNotifications = "notifications"
)

// Real-time event names pushed by the backend.
const (
	EvServiceAdded        = "serviceAdded"
	EvServiceUpdated      = "serviceUpdated"
	EvServiceDeleted      = "serviceDeleted"
	EvNewBookingAssigned  = "newBookingAssigned"
	EvBookingStatusUpdate = "bookingStatusUpdate"
	EvBookingUpdate       = "booking_update"
	EvFeedbackSubmitted   = "feedbackSubmitted"
	EvFeedbackUpdated     = "feedbackUpdated"
	EvFeedbackDeleted     = "feedbackDeleted"
	EvUserUpdated         = "userUpdated"
	EvStatsUpdated        = "statsUpdated"
	EvFeedbacksUpdated    = "feedbacksUpdated"
	EvSubscriptionWarning = "subscriptionWarning"
	EvSubscriptionUpdated = "subscriptionUpdated"
)

// EventEnvelope is the wire frame of the real-time channel. Data is kept
// raw because payload shapes vary per event and are frequently narrower
// than the full entity.
type EventEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// BookingUpdatePayload is carried by bookingStatusUpdate and booking_update.
// Only the id and the new status are guaranteed; everything else on the
// booking must be preserved locally.
type BookingUpdatePayload struct {
	BookingID string        `json:"bookingId"`
	Status    BookingStatus `json:"status"`
}

// SubscriptionWarningPayload is carried by subscriptionWarning.
type SubscriptionWarningPayload struct {
	Message string `json:"message"`
}

// EventRoute describes, per event name, what the dispatcher does on
// receipt. Refetch lists collections whose payloads are not trusted to be
// complete; Patch marks fine-grained events that carry enough to update a
// single entity in place. Notify, when non-empty, enqueues a
// NotificationItem regardless of whether the store action succeeds; Toast,
// when non-empty, shows a transient message.
type EventRoute struct {
	Refetch []string
	Patch   bool
	Notify  string
	Toast   string
}

// Routes is the single source of truth mapping event names to store
// actions. Pages never decide this ad hoc.
var Routes = map[string]EventRoute{
	EvServiceAdded:   {Refetch: []string{ColServices}, Toast: "New services are available"},
	EvServiceUpdated: {Refetch: []string{ColServices}},
	EvServiceDeleted: {Refetch: []string{ColServices}},

	EvNewBookingAssigned:  {Refetch: []string{ColBookings}, Notify: "A new booking was assigned to you", Toast: "New booking assigned"},
	EvBookingStatusUpdate: {Patch: true, Notify: "A booking changed status"},
	EvBookingUpdate:       {Patch: true},

	EvFeedbackSubmitted: {Refetch: []string{ColFeedbacks}, Notify: "New feedback received"},
	EvFeedbackUpdated:   {Refetch: []string{ColFeedbacks}},
	EvFeedbackDeleted:   {Refetch: []string{ColFeedbacks}},
	EvFeedbacksUpdated:  {Refetch: []string{ColFeedbacks}},

	EvUserUpdated:  {Refetch: []string{ColProfile}},
	EvStatsUpdated: {Refetch: []string{ColStats}},

	EvSubscriptionWarning: {Patch: true, Notify: "Your subscription needs attention", Toast: "Your subscription needs attention"},
	EvSubscriptionUpdated: {Refetch: []string{ColSubscription}},
}
