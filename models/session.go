package models

import "time"

// Role distinguishes the two sides of the marketplace.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
)

// Session is the authenticated state shared by every tab of one browser
// profile. It is owned by the session broadcaster; all other components
// read it through their local mirror.
type Session struct {
	UserID        string       `json:"userId"`
	Role          Role         `json:"role"`
	AuthToken     string       `json:"authToken"`
	TokenIssuedAt time.Time    `json:"tokenIssuedAt"`
	Profile       *UserProfile `json:"profile,omitempty"`
	LastLocation  string       `json:"lastLocation,omitempty"`

	// Notifications accumulated while this session was live. Persisted so a
	// page reload does not lose the unread badge.
	Notifications []NotificationItem `json:"notifications,omitempty"`
}

// UserProfile mirrors GET /api/users/profile.
type UserProfile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Role     Role   `json:"role"`
	Location string `json:"location,omitempty"`
}

func (p UserProfile) EntityID() string { return p.ID }
