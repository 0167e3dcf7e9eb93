package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestly/models"
	"nestly/utils"
)

func testToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := utils.GenerateToken(userID, string(models.RoleCustomer), time.Hour)
	require.NoError(t, err)
	return token
}

// newTab builds a started broadcaster on the shared storage, simulating one
// browser tab.
func newTab(t *testing.T, ctx context.Context, storage Storage) *Broadcaster {
	t.Helper()
	b, err := NewBroadcaster(ctx, storage)
	require.NoError(t, err)
	require.NoError(t, b.Start(ctx))
	t.Cleanup(b.Stop)
	return b
}

func TestLoginFillsIdentityFromToken(t *testing.T) {
	ctx := context.Background()
	b := newTab(t, ctx, NewMemoryStorage())

	require.NoError(t, b.Login(ctx, &models.Session{AuthToken: testToken(t, "u1")}))

	s := b.Current()
	require.NotNil(t, s)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, models.RoleCustomer, s.Role)
	assert.False(t, s.TokenIssuedAt.IsZero())
}

func TestLoginRequiresToken(t *testing.T) {
	ctx := context.Background()
	b := newTab(t, ctx, NewMemoryStorage())
	assert.Error(t, b.Login(ctx, nil))
	assert.Error(t, b.Login(ctx, &models.Session{}))
}

func TestLoginPropagatesAcrossTabs(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	tabA := newTab(t, ctx, storage)
	tabB := newTab(t, ctx, storage)

	require.NoError(t, tabA.Login(ctx, &models.Session{AuthToken: testToken(t, "u1")}))

	require.Eventually(t, func() bool {
		s := tabB.Current()
		return s != nil && s.UserID == "u1"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, tabA.Token(), tabB.Token())
}

func TestLogoutPropagatesAcrossTabs(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	tabA := newTab(t, ctx, storage)
	tabB := newTab(t, ctx, storage)

	require.NoError(t, tabA.Login(ctx, &models.Session{AuthToken: testToken(t, "u1")}))
	require.Eventually(t, func() bool { return tabB.Current() != nil },
		time.Second, 5*time.Millisecond)

	require.NoError(t, tabB.Logout(ctx))

	require.Eventually(t, func() bool { return tabA.Current() == nil },
		time.Second, 5*time.Millisecond)
	assert.Empty(t, tabA.Token())
}

func TestRehydrationOnNewTab(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	tabA := newTab(t, ctx, storage)
	require.NoError(t, tabA.Login(ctx, &models.Session{AuthToken: testToken(t, "u1")}))

	// a tab opened after login starts authenticated without waiting for a
	// change event
	tabB := newTab(t, ctx, storage)
	s := tabB.Current()
	require.NotNil(t, s)
	assert.Equal(t, "u1", s.UserID)
}

func TestOwnWritesAreNotDoubled(t *testing.T) {
	ctx := context.Background()
	b := newTab(t, ctx, NewMemoryStorage())

	var fired atomic.Int32
	b.OnChange(func(*models.Session) { fired.Add(1) })

	require.NoError(t, b.Login(ctx, &models.Session{AuthToken: testToken(t, "u1")}))

	// the storage echo of our own write carries our tab id and is skipped
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestUpdatePersistsNotifications(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	tabA := newTab(t, ctx, storage)
	tabB := newTab(t, ctx, storage)

	require.NoError(t, tabA.Login(ctx, &models.Session{AuthToken: testToken(t, "u1")}))
	require.NoError(t, tabA.Update(ctx, func(s *models.Session) {
		s.Notifications = append(s.Notifications, models.NewNotification("booking assigned"))
	}))

	require.Eventually(t, func() bool {
		s := tabB.Current()
		return s != nil && len(s.Notifications) == 1
	}, time.Second, 5*time.Millisecond)

	// the session survives a full tab restart
	tabC := newTab(t, ctx, storage)
	s := tabC.Current()
	require.NotNil(t, s)
	require.Len(t, s.Notifications, 1)
	assert.Equal(t, "booking assigned", s.Notifications[0].Message)
}

func TestUpdateWithoutSession(t *testing.T) {
	ctx := context.Background()
	b := newTab(t, ctx, NewMemoryStorage())
	assert.Error(t, b.Update(ctx, func(*models.Session) {}))
}

func TestCurrentReturnsACopy(t *testing.T) {
	ctx := context.Background()
	b := newTab(t, ctx, NewMemoryStorage())
	require.NoError(t, b.Login(ctx, &models.Session{AuthToken: testToken(t, "u1")}))

	s := b.Current()
	s.UserID = "tampered"
	assert.Equal(t, "u1", b.Current().UserID)
}
