package api

import (
	"context"
	"net/http"

	"nestly/models"
)

// Credentials is the body of login and register calls.
type Credentials struct {
	Name     string      `json:"name,omitempty"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role,omitempty"`
}

// AuthResponse carries the token and profile the backend returns on a
// successful login or registration.
type AuthResponse struct {
	Token   string             `json:"token"`
	Profile models.UserProfile `json:"profile"`
}

// Login authenticates and returns the bearer token plus profile.
func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/users/login", creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account and returns the same payload as Login, so a
// fresh registration starts a session immediately.
func (c *Client) Register(ctx context.Context, creds Credentials) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/users/register", creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProfile fetches the caller's profile.
func (c *Client) GetProfile(ctx context.Context) (*models.UserProfile, error) {
	var out models.UserProfile
	if err := c.do(ctx, http.MethodGet, "/api/users/profile", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile replaces the caller's profile.
func (c *Client) UpdateProfile(ctx context.Context, p models.UserProfile) (*models.UserProfile, error) {
	var out models.UserProfile
	if err := c.do(ctx, http.MethodPut, "/api/users/profile", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
