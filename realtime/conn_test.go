package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestly/models"
	"nestly/simulator"
	"nestly/utils"
)

func startSim(t *testing.T) (*simulator.Simulator, *httptest.Server, string) {
	t.Helper()
	sim := simulator.New()
	srv := httptest.NewServer(sim.Router())
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return sim, srv, wsURL
}

func testSession(t *testing.T, userID string) *models.Session {
	t.Helper()
	token, err := utils.GenerateToken(userID, string(models.RoleCustomer), time.Hour)
	require.NoError(t, err)
	return &models.Session{UserID: userID, AuthToken: token}
}

func TestConnectRequiresSession(t *testing.T) {
	c := NewConn("ws://localhost:0/ws", time.Millisecond, time.Millisecond)
	assert.Error(t, c.Connect(context.Background(), nil))
	assert.Error(t, c.Connect(context.Background(), &models.Session{UserID: "u1"}))
}

func TestRoomEventsReachTheHandler(t *testing.T) {
	sim, _, wsURL := startSim(t)
	c := NewConn(wsURL, 10*time.Millisecond, 50*time.Millisecond)
	defer c.Disconnect()

	got := make(chan json.RawMessage, 16)
	c.On(models.EvBookingStatusUpdate, func(data json.RawMessage) { got <- data })

	require.NoError(t, c.Connect(context.Background(), testSession(t, "u1")))
	require.True(t, c.IsConnected())

	var last json.RawMessage
	require.Eventually(t, func() bool {
		sim.Hub.Publish("user:u1", models.EvBookingStatusUpdate,
			models.BookingUpdatePayload{BookingID: "b1", Status: models.BookingAssigned})
		select {
		case last = <-got:
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	var p models.BookingUpdatePayload
	require.NoError(t, json.Unmarshal(last, &p))
	assert.Equal(t, "b1", p.BookingID)
	assert.Equal(t, models.BookingAssigned, p.Status)
}

func TestRegisteredEventsAreSubscribedOnConnect(t *testing.T) {
	sim, _, wsURL := startSim(t)
	c := NewConn(wsURL, 10*time.Millisecond, 50*time.Millisecond)
	defer c.Disconnect()

	got := make(chan struct{}, 16)
	c.On(models.EvServiceAdded, func(json.RawMessage) { got <- struct{}{} })

	require.NoError(t, c.Connect(context.Background(), testSession(t, "u1")))

	require.Eventually(t, func() bool {
		sim.Hub.Broadcast(models.EvServiceAdded, map[string]string{"id": "svc-x"})
		select {
		case <-got:
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
}

func TestEventsForOtherRoomsAreNotDelivered(t *testing.T) {
	sim, _, wsURL := startSim(t)
	c := NewConn(wsURL, 10*time.Millisecond, 50*time.Millisecond)
	defer c.Disconnect()

	var fired atomic.Int32
	c.On(models.EvBookingStatusUpdate, func(json.RawMessage) { fired.Add(1) })
	require.NoError(t, c.Connect(context.Background(), testSession(t, "u1")))

	sim.Hub.Publish("user:someone-else", models.EvBookingStatusUpdate,
		models.BookingUpdatePayload{BookingID: "b9", Status: models.BookingCompleted})

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestAuthFailureFailsClosed(t *testing.T) {
	_, _, wsURL := startSim(t)
	c := NewConn(wsURL, 10*time.Millisecond, 50*time.Millisecond)

	var authErr atomic.Value
	c.OnAuthError(func(err error) { authErr.Store(err) })

	err := c.Connect(context.Background(),
		&models.Session{UserID: "u1", AuthToken: "not-a-token"})
	require.ErrorIs(t, err, ErrAuthFailed)
	assert.False(t, c.IsConnected())

	stored, ok := authErr.Load().(error)
	require.True(t, ok, "auth error callback must fire")
	assert.True(t, errors.Is(stored, ErrAuthFailed))
}

func TestReconnectResubscribesAfterTransportDrop(t *testing.T) {
	sim, srv, wsURL := startSim(t)
	c := NewConn(wsURL, 10*time.Millisecond, 50*time.Millisecond)
	defer c.Disconnect()

	got := make(chan struct{}, 16)
	c.On(models.EvServiceAdded, func(json.RawMessage) { got <- struct{}{} })
	require.NoError(t, c.Connect(context.Background(), testSession(t, "u1")))

	// verify delivery, then kill the transport underneath the client
	require.Eventually(t, func() bool {
		sim.Hub.Broadcast(models.EvServiceAdded, nil)
		select {
		case <-got:
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	srv.CloseClientConnections()

	require.Eventually(t, func() bool { return c.IsConnected() },
		5*time.Second, 20*time.Millisecond)

	for len(got) > 0 {
		<-got
	}
	require.Eventually(t, func() bool {
		sim.Hub.Broadcast(models.EvServiceAdded, nil)
		select {
		case <-got:
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond, "subscriptions must survive a reconnect")
}

func TestDisconnectIsIdempotent(t *testing.T) {
	_, _, wsURL := startSim(t)
	c := NewConn(wsURL, 10*time.Millisecond, 50*time.Millisecond)
	require.NoError(t, c.Connect(context.Background(), testSession(t, "u1")))

	c.Disconnect()
	c.Disconnect()
	assert.False(t, c.IsConnected())
}

func TestReleaseOfLastConsumerDisconnects(t *testing.T) {
	_, _, wsURL := startSim(t)
	c := NewConn(wsURL, 10*time.Millisecond, 50*time.Millisecond)
	require.NoError(t, c.Connect(context.Background(), testSession(t, "u1")))

	assert.Equal(t, 1, c.Acquire())
	assert.Equal(t, 2, c.Acquire())
	c.Release()
	assert.True(t, c.IsConnected())
	c.Release()
	assert.False(t, c.IsConnected())
}
