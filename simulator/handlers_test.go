package simulator

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestly/api"
	"nestly/models"
)

func newTestClient(t *testing.T) (*Simulator, *api.Client, func(string)) {
	t.Helper()
	sim := New()
	srv := httptest.NewServer(sim.Router())
	t.Cleanup(srv.Close)

	var token string
	c := api.New(srv.URL, 5*time.Second, func() string { return token })
	return sim, c, func(tok string) { token = tok }
}

func register(t *testing.T, c *api.Client, setToken func(string), role models.Role) *api.AuthResponse {
	t.Helper()
	resp, err := c.Register(context.Background(), api.Credentials{
		Name:     "Test User",
		Email:    string(role) + "@example.com",
		Password: "hunter22",
		Role:     role,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)
	setToken(resp.Token)
	return resp
}

func TestRegisterThenLogin(t *testing.T) {
	_, c, setToken := newTestClient(t)
	register(t, c, setToken, models.RoleCustomer)

	resp, err := c.Login(context.Background(), api.Credentials{
		Email: "customer@example.com", Password: "hunter22",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleCustomer, resp.Profile.Role)

	_, err = c.Login(context.Background(), api.Credentials{
		Email: "customer@example.com", Password: "wrong",
	})
	assert.ErrorIs(t, err, api.ErrUnauthorized)
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	_, c, setToken := newTestClient(t)
	register(t, c, setToken, models.RoleCustomer)

	_, err := c.Register(context.Background(), api.Credentials{
		Email: "customer@example.com", Password: "other",
	})
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.Status)
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	_, c, _ := newTestClient(t)
	_, err := c.ListBookings(context.Background())
	assert.ErrorIs(t, err, api.ErrUnauthorized)
}

func TestSeededCatalog(t *testing.T) {
	_, c, _ := newTestClient(t)

	services, err := c.ListServices(context.Background())
	require.NoError(t, err)
	assert.Len(t, services, 3)

	faqs, err := c.ListFAQs(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, faqs)

	plans, err := c.ListPlans(context.Background())
	require.NoError(t, err)
	assert.Len(t, plans, 2)
}

func TestBookingLifecycle(t *testing.T) {
	_, c, setToken := newTestClient(t)
	register(t, c, setToken, models.RoleCustomer)

	b, err := c.CreateBooking(context.Background(), api.CreateBookingRequest{
		ServiceID:     "svc-plumbing",
		ScheduledTime: time.Now().Add(48 * time.Hour),
		Location:      "4 Oak Ave",
	})
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, b.Status)
	assert.NotZero(t, b.TotalPrice, "price comes from the service catalog")

	// accepting a pending booking is an illegal transition
	_, err = c.AcceptBooking(context.Background(), b.ID)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.Status)

	mine, err := c.ListBookings(context.Background())
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, b.ID, mine[0].ID)

	require.NoError(t, c.CancelBooking(context.Background(), b.ID))
	_, err = c.AcceptBooking(context.Background(), b.ID)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.Status, "cancelled is terminal")
}

func TestBookingForUnknownService(t *testing.T) {
	_, c, setToken := newTestClient(t)
	register(t, c, setToken, models.RoleCustomer)

	_, err := c.CreateBooking(context.Background(), api.CreateBookingRequest{
		ServiceID: "svc-ghost",
	})
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 422, apiErr.Status)
}

func TestSubscriptionDefaultsAndPastDue(t *testing.T) {
	sim, c, setToken := newTestClient(t)
	resp := register(t, c, setToken, models.RoleProvider)

	sub, err := c.GetSubscription(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionInactive, sub.Status)

	sim.MarkPastDue(resp.Profile.ID, "card declined")

	sub, err = c.GetSubscription(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionPastDue, sub.Status)
	assert.Equal(t, "card declined", sub.WarningMessage)
}

func TestStripeIntentShape(t *testing.T) {
	_, c, setToken := newTestClient(t)
	register(t, c, setToken, models.RoleCustomer)

	b, err := c.CreateBooking(context.Background(), api.CreateBookingRequest{
		ServiceID: "svc-plumbing",
	})
	require.NoError(t, err)

	intent, err := c.CreateStripeIntent(context.Background(), b.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, intent.ID)
	assert.NotEmpty(t, intent.ClientSecret)
	assert.EqualValues(t, int64(b.TotalPrice*100), intent.Amount)
}

func TestCheckoutActivatesSubscription(t *testing.T) {
	_, c, setToken := newTestClient(t)
	register(t, c, setToken, models.RoleProvider)

	cs, err := c.CreateCheckoutSession(context.Background(), "plan-pro")
	require.NoError(t, err)
	assert.NotEmpty(t, cs.SessionID)

	sub, err := c.GetSubscription(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.Equal(t, models.SubscriptionTier("pro"), sub.Tier)
}
