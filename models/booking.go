package models

import "time"

// BookingStatus is the finite set of booking states. Transitions are
// monotonic: no event may move a booking backward through the machine.
type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingAssigned   BookingStatus = "assigned"
	BookingInProgress BookingStatus = "in-progress"
	BookingCompleted  BookingStatus = "completed"
	BookingRejected   BookingStatus = "rejected"
	BookingCancelled  BookingStatus = "cancelled"
)

// transitions holds the legal edges of the booking state machine.
var transitions = map[BookingStatus][]BookingStatus{
	BookingPending:    {BookingAssigned, BookingCancelled},
	BookingAssigned:   {BookingInProgress, BookingRejected, BookingCancelled},
	BookingInProgress: {BookingCompleted, BookingCancelled},
}

// CanTransition reports whether a booking may move from one status to
// another. Unknown source statuses (e.g. a booking the client has never
// seen) accept any target, since the server is authoritative.
func CanTransition(from, to BookingStatus) bool {
	if from == "" {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing transitions.
func (s BookingStatus) IsTerminal() bool {
	return len(transitions[s]) == 0 && s != ""
}

// Booking is one customer order of a service. ProviderID stays empty until
// the server assigns a provider.
type Booking struct {
	ID            string        `json:"id"`
	ServiceID     string        `json:"serviceId"`
	CustomerID    string        `json:"customerId"`
	ProviderID    string        `json:"providerId,omitempty"`
	ScheduledTime time.Time     `json:"scheduledTime"`
	Location      string        `json:"location"`
	Status        BookingStatus `json:"status"`
	PaymentMethod string        `json:"paymentMethod,omitempty"`
	TotalPrice    float64       `json:"totalPrice,omitempty"`
	CreatedAt     time.Time     `json:"createdAt,omitempty"`
}

func (b Booking) EntityID() string { return b.ID }
