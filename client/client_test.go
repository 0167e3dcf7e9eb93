package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestly/api"
	"nestly/models"
	"nestly/session"
	"nestly/simulator"
	"nestly/store"
)

type fixture struct {
	sim     *simulator.Simulator
	srv     *httptest.Server
	storage *session.MemoryStorage
	client  *Client
	ctx     context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sim := simulator.New()
	srv := httptest.NewServer(sim.Router())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	storage := session.NewMemoryStorage()
	c, err := New(ctx, Options{
		APIBaseURL:       srv.URL,
		WSURL:            "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		HTTPTimeout:      5 * time.Second,
		PollInterval:     time.Hour,
		ReconnectMinWait: 10 * time.Millisecond,
		ReconnectMaxWait: 50 * time.Millisecond,
		Storage:          storage,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	c.Coordinator.SetCoalesceWindow(2 * time.Millisecond)

	return &fixture{sim: sim, srv: srv, storage: storage, client: c, ctx: ctx}
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	require.NoError(t, f.client.Register(f.ctx, api.Credentials{
		Name:     "Ada",
		Email:    fmt.Sprintf("ada-%d@example.com", time.Now().UnixNano()),
		Password: "correct-horse",
	}))
	require.Eventually(t, func() bool { return f.client.Conn.IsConnected() },
		5*time.Second, 10*time.Millisecond)
}

// call issues a raw authenticated request against the simulator, playing
// the part of the operator or of another device.
func (f *fixture) call(t *testing.T, method, path string, body any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.client.Broadcaster.Token())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Less(t, resp.StatusCode, 300, "%s %s", method, path)
}

func (f *fixture) booking(id string) (models.Booking, bool) {
	e, ok := f.client.Store.Get(models.ColBookings).Find(id)
	if !ok {
		return models.Booking{}, false
	}
	b, ok := e.(models.Booking)
	return b, ok
}

func TestLoginLoadsCoreCollections(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	require.Eventually(t, func() bool {
		snap := f.client.Store.Get(models.ColServices)
		return !snap.Loading && len(snap.Items) == 3
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		snap := f.client.Store.Get(models.ColProfile)
		return !snap.Loading && len(snap.Items) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestBookingAssignmentPatchesStatusOnly(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	b, err := f.client.CreateBooking(f.ctx, api.CreateBookingRequest{
		ServiceID:     "svc-cleaning",
		ScheduledTime: time.Now().Add(24 * time.Hour),
		Location:      "12 Elm St",
	})
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, b.Status)
	assert.Equal(t, "12 Elm St", f.client.Broadcaster.Current().LastLocation)

	f.call(t, http.MethodPut, "/api/bookings/"+b.ID+"/assign",
		map[string]string{"providerId": "p-77"})

	require.Eventually(t, func() bool {
		cached, ok := f.booking(b.ID)
		return ok && cached.Status == models.BookingAssigned
	}, 5*time.Second, 10*time.Millisecond)

	cached, _ := f.booking(b.ID)
	assert.Equal(t, "12 Elm St", cached.Location, "the event patch must keep unrelated fields")
	assert.Equal(t, b.TotalPrice, cached.TotalPrice)
}

func TestServiceDeletedRefetchesCatalog(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	require.Eventually(t, func() bool {
		snap := f.client.Store.Get(models.ColServices)
		_, found := snap.Find("svc-lawn")
		return found
	}, 5*time.Second, 10*time.Millisecond)

	f.call(t, http.MethodDelete, "/api/services/svc-lawn", nil)

	require.Eventually(t, func() bool {
		snap := f.client.Store.Get(models.ColServices)
		_, found := snap.Find("svc-lawn")
		return !found && len(snap.Items) == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSubscriptionWarningPatchesAndNotifies(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	require.Eventually(t, func() bool {
		return len(f.client.Store.Get(models.ColSubscription).Items) == 1
	}, 5*time.Second, 10*time.Millisecond)

	userID := f.client.Broadcaster.Current().UserID
	f.sim.MarkPastDue(userID, "Payment failed, service paused soon")

	require.Eventually(t, func() bool {
		snap := f.client.Store.Get(models.ColSubscription)
		if len(snap.Items) == 0 {
			return false
		}
		sub, ok := snap.Items[0].(models.SubscriptionStatus)
		return ok && sub.WarningMessage == "Payment failed, service paused soon"
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(f.client.Store.Get(models.ColNotifications).Items) > 0
	}, 5*time.Second, 10*time.Millisecond)

	// the badge survives a reload: notifications are in the persisted session
	require.Eventually(t, func() bool {
		s := f.client.Broadcaster.Current()
		return s != nil && len(s.Notifications) > 0
	}, 5*time.Second, 10*time.Millisecond)

	f.client.AckNotifications(f.ctx)
	assert.Empty(t, f.client.Store.Get(models.ColNotifications).Items)
	assert.Empty(t, f.client.Broadcaster.Current().Notifications)
}

func TestCrossTabLogoutTearsDownRuntime(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	// another tab on the same browser profile
	other, err := session.NewBroadcaster(f.ctx, f.storage)
	require.NoError(t, err)
	require.NoError(t, other.Start(f.ctx))
	defer other.Stop()
	require.NotNil(t, other.Current())

	require.NoError(t, other.Logout(f.ctx))

	require.Eventually(t, func() bool {
		return !f.client.Conn.IsConnected() && f.client.Broadcaster.Current() == nil
	}, 5*time.Second, 10*time.Millisecond)

	snap := f.client.Store.Get(models.ColServices)
	assert.Empty(t, snap.Items, "another user's data must not survive logout")
	assert.True(t, snap.Loading)
}

func TestStaleEventCannotRewindBooking(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.client.Store.Set(models.ColBookings, []store.Entity{
		models.Booking{ID: "b1", Status: models.BookingCompleted},
	})

	ok := f.client.Store.Upsert(models.ColBookings,
		models.Booking{ID: "b1", Status: models.BookingPending})
	assert.False(t, ok)

	cached, _ := f.booking("b1")
	assert.Equal(t, models.BookingCompleted, cached.Status)
}

func TestBookingGuard(t *testing.T) {
	cases := []struct {
		from, to models.BookingStatus
		ok       bool
	}{
		{models.BookingPending, models.BookingAssigned, true},
		{models.BookingAssigned, models.BookingAssigned, true},
		{models.BookingCompleted, models.BookingPending, false},
		{models.BookingInProgress, models.BookingAssigned, false},
	}
	for _, tc := range cases {
		got := bookingGuard(
			models.Booking{ID: "b1", Status: tc.from},
			models.Booking{ID: "b1", Status: tc.to})
		assert.Equal(t, tc.ok, got, "%s -> %s", tc.from, tc.to)
	}
}

func TestSwitchingUsersClearsPreviousData(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.client.Store.Set(models.ColBookings, []store.Entity{
		models.Booking{ID: "b-old", Status: models.BookingPending},
	})
	f.client.Store.Upsert(models.ColNotifications, models.NewNotification("old user's badge"))

	// a second account logs in over the live session, no logout in between
	require.NoError(t, f.client.Register(f.ctx, api.Credentials{
		Name:     "Brie",
		Email:    fmt.Sprintf("brie-%d@example.com", time.Now().UnixNano()),
		Password: "correct-horse",
	}))

	require.Eventually(t, func() bool {
		_, found := f.client.Store.Get(models.ColBookings).Find("b-old")
		return !found
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, f.client.Store.Get(models.ColNotifications).Items)
	require.Eventually(t, func() bool { return f.client.Conn.IsConnected() },
		5*time.Second, 10*time.Millisecond)
}

func TestLogoutThenLoginStartsCleanSession(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	require.NoError(t, f.client.Logout(f.ctx))

	require.Eventually(t, func() bool { return !f.client.Conn.IsConnected() },
		5*time.Second, 10*time.Millisecond)

	f.login(t)
	require.Eventually(t, func() bool {
		snap := f.client.Store.Get(models.ColServices)
		return !snap.Loading && len(snap.Items) > 0
	}, 5*time.Second, 10*time.Millisecond)
}
