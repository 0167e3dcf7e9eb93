package models

import (
	"fmt"
	"time"
)

// NotificationItem is an ephemeral, client-side notification accumulated
// from real-time events and cleared when the user views the notifications
// tab. The ID is derived from the creation timestamp so items sort
// naturally and never collide within one tab.
type NotificationItem struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

func (n NotificationItem) EntityID() string { return n.ID }

// NewNotification builds a NotificationItem stamped with the current time.
func NewNotification(message string) NotificationItem {
	now := time.Now()
	return NotificationItem{
		ID:        fmt.Sprintf("n-%d", now.UnixNano()),
		Message:   message,
		CreatedAt: now,
	}
}

// SubscriptionTier names a provider's plan level.
type SubscriptionTier string

// SubscriptionState is the billing state of a provider subscription.
type SubscriptionState string

const (
	SubscriptionActive   SubscriptionState = "active"
	SubscriptionPastDue  SubscriptionState = "past_due"
	SubscriptionInactive SubscriptionState = "inactive"
)

// SubscriptionStatus gates premium features elsewhere in the app. It is
// refreshed both by polling and by subscriptionWarning / subscriptionUpdated
// push events.
type SubscriptionStatus struct {
	UserID         string            `json:"userId"`
	Tier           SubscriptionTier  `json:"tier"`
	Status         SubscriptionState `json:"status"`
	WarningMessage string            `json:"warningMessage,omitempty"`
	RenewsAt       time.Time         `json:"renewsAt,omitempty"`
}

func (s SubscriptionStatus) EntityID() string { return s.UserID }
