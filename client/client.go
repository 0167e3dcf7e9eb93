// Package client assembles the synchronization runtime for one tab: the
// session broadcaster, the entity store, the fetch coordinator, the
// real-time connection and the event dispatcher, wired the way every page
// of the app consumes them.
package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"nestly/api"
	"nestly/fetch"
	"nestly/models"
	"nestly/realtime"
	"nestly/services/booking"
	"nestly/services/subscription"
	"nestly/session"
	"nestly/store"
	"nestly/utils"
)

// Options configures a Client.
type Options struct {
	APIBaseURL string
	WSURL      string

	HTTPTimeout      time.Duration
	PollInterval     time.Duration
	ReconnectMinWait time.Duration
	ReconnectMaxWait time.Duration

	// Storage is the shared session backend. Required.
	Storage session.Storage

	// Toast, when set, receives transient UI messages.
	Toast func(string)
}

// coreCollections are loaded eagerly when a session appears.
var coreCollections = []string{
	models.ColServices,
	models.ColBookings,
	models.ColProfile,
	models.ColSubscription,
}

// Client is the per-tab sync runtime. The store and connection are
// singletons scoped to the Client's lifetime; UI consumers read the store
// and issue mutations through Bookings, nothing else writes.
type Client struct {
	Store       *store.Store
	API         *api.Client
	Conn        *realtime.Conn
	Coordinator *fetch.Coordinator
	Broadcaster *session.Broadcaster
	Bookings    *booking.Service

	dispatcher *realtime.Dispatcher
	poller     *subscription.Poller
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	liveToken  string
	liveUserID string
}

// New builds and starts the runtime. If a session was already persisted
// (page reload), the connection and initial fetches come up immediately.
func New(ctx context.Context, opts Options) (*Client, error) {
	ctx, cancel := context.WithCancel(ctx)

	bc, err := session.NewBroadcaster(ctx, opts.Storage)
	if err != nil {
		cancel()
		return nil, err
	}

	c := &Client{
		Store:       store.New(),
		Broadcaster: bc,
		logger:      utils.GetLogger(),
		ctx:         ctx,
		cancel:      cancel,
	}

	c.Store.RegisterGuard(models.ColBookings, bookingGuard)

	c.API = api.New(opts.APIBaseURL, opts.HTTPTimeout, bc.Token)
	c.Coordinator = fetch.New(c.Store)
	c.registerFetchers()

	c.Conn = realtime.NewConn(opts.WSURL, opts.ReconnectMinWait, opts.ReconnectMaxWait)
	c.Conn.OnAuthError(c.onAuthError)

	c.dispatcher = realtime.NewDispatcher(c.Conn, c.Store, c.Coordinator)
	c.dispatcher.SetNotifier(c.onNotification)
	if opts.Toast != nil {
		c.dispatcher.SetToaster(opts.Toast)
	}
	c.dispatcher.Register()

	c.Bookings = booking.NewService(c.API, c.Store)
	c.poller = subscription.NewPoller(c.Coordinator, opts.PollInterval)

	bc.OnChange(c.onSessionChange)
	if err := bc.Start(ctx); err != nil {
		cancel()
		return nil, err
	}
	if s := bc.Current(); s != nil {
		c.onSessionChange(s)
	}
	return c, nil
}

// bookingGuard keeps booking status monotonic: an event or a late fetch may
// never move a booking backward through the state machine.
func bookingGuard(old, next store.Entity) bool {
	ob, ok1 := old.(models.Booking)
	nb, ok2 := next.(models.Booking)
	if !ok1 || !ok2 {
		return true
	}
	if ob.Status == nb.Status {
		return true
	}
	return models.CanTransition(ob.Status, nb.Status)
}

func (c *Client) registerFetchers() {
	c.Coordinator.Register(models.ColServices, listFetcher(func(ctx context.Context) ([]models.ServiceCatalogEntry, error) {
		return c.API.ListServices(ctx)
	}))
	c.Coordinator.Register(models.ColBookings, listFetcher(func(ctx context.Context) ([]models.Booking, error) {
		return c.API.ListBookings(ctx)
	}))
	c.Coordinator.Register(models.ColFeedbacks, listFetcher(func(ctx context.Context) ([]models.FeedbackEntry, error) {
		return c.API.ListFeedback(ctx)
	}))
	c.Coordinator.Register(models.ColFAQs, listFetcher(func(ctx context.Context) ([]models.FAQEntry, error) {
		return c.API.ListFAQs(ctx)
	}))
	c.Coordinator.Register(models.ColPlans, listFetcher(func(ctx context.Context) ([]models.Plan, error) {
		return c.API.ListPlans(ctx)
	}))
	c.Coordinator.Register(models.ColProfile, singleFetcher(func(ctx context.Context) (*models.UserProfile, error) {
		return c.API.GetProfile(ctx)
	}))
	c.Coordinator.Register(models.ColStats, singleFetcher(func(ctx context.Context) (*models.ProviderStats, error) {
		return c.API.GetStats(ctx)
	}))
	c.Coordinator.Register(models.ColSubscription, singleFetcher(func(ctx context.Context) (*models.SubscriptionStatus, error) {
		return c.API.GetSubscription(ctx)
	}))
}

func listFetcher[T store.Entity](fn func(ctx context.Context) ([]T, error)) fetch.Func {
	return func(ctx context.Context) ([]store.Entity, error) {
		items, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]store.Entity, len(items))
		for i, it := range items {
			out[i] = it
		}
		return out, nil
	}
}

func singleFetcher[T store.Entity](fn func(ctx context.Context) (*T, error)) fetch.Func {
	return func(ctx context.Context) ([]store.Entity, error) {
		item, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, nil
		}
		return []store.Entity{*item}, nil
	}
}

// onSessionChange reacts to every session transition, local or from
// another tab: connect on login, tear down on logout. A re-broadcast of the
// same token (e.g. persisted notifications) changes nothing.
func (c *Client) onSessionChange(s *models.Session) {
	c.mu.Lock()
	if s != nil && s.AuthToken == c.liveToken {
		c.mu.Unlock()
		return
	}
	if s == nil && c.liveToken == "" {
		c.mu.Unlock()
		return
	}
	switched := s != nil && c.liveUserID != "" && s.UserID != c.liveUserID
	if s != nil {
		c.liveToken = s.AuthToken
		c.liveUserID = s.UserID
	} else {
		c.liveToken = ""
		c.liveUserID = ""
	}
	c.mu.Unlock()

	if s == nil {
		c.logger.Info("session gone, tearing down")
		c.poller.Stop()
		c.Conn.Disconnect()
		c.Store.Reset()
		return
	}

	if switched {
		// a different user logged in over the live session; their
		// predecessor's cached data must not leak into the new view
		c.logger.Info("session user changed, clearing cached data",
			zap.String("userId", s.UserID))
		c.Store.Reset()
	}

	c.logger.Info("session live", zap.String("userId", s.UserID), zap.String("role", string(s.Role)))
	if err := c.Conn.Connect(c.ctx, s); err != nil {
		c.logger.Warn("realtime connect failed", zap.Error(err))
	}
	for _, key := range coreCollections {
		k := key
		go func() { _ = c.Coordinator.EnsureFresh(c.ctx, k) }()
	}
	c.poller.Start(c.ctx)
}

// onAuthError forces session teardown: an expired or revoked token is
// never silently retried.
func (c *Client) onAuthError(err error) {
	c.logger.Warn("realtime auth rejected, logging out", zap.Error(err))
	_ = c.Broadcaster.Logout(c.ctx)
}

// onNotification appends the item to the notifications collection and to
// the persisted session so a reload keeps the badge.
func (c *Client) onNotification(n models.NotificationItem) {
	c.Store.Upsert(models.ColNotifications, n)
	_ = c.Broadcaster.Update(c.ctx, func(s *models.Session) {
		s.Notifications = append(s.Notifications, n)
	})
}

// Login authenticates against the backend and broadcasts the new session
// to every tab.
func (c *Client) Login(ctx context.Context, creds api.Credentials) error {
	resp, err := c.API.Login(ctx, creds)
	if err != nil {
		return err
	}
	return c.Broadcaster.Login(ctx, &models.Session{
		AuthToken: resp.Token,
		Profile:   &resp.Profile,
	})
}

// Register creates an account and starts the session immediately.
func (c *Client) Register(ctx context.Context, creds api.Credentials) error {
	resp, err := c.API.Register(ctx, creds)
	if err != nil {
		return err
	}
	return c.Broadcaster.Login(ctx, &models.Session{
		AuthToken: resp.Token,
		Profile:   &resp.Profile,
	})
}

// CreateBooking submits a booking through the booking service and remembers
// the location in the persisted session, so the next booking form can
// prefill it.
func (c *Client) CreateBooking(ctx context.Context, req api.CreateBookingRequest) (*models.Booking, error) {
	b, err := c.Bookings.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Location != "" {
		_ = c.Broadcaster.Update(ctx, func(s *models.Session) {
			s.LastLocation = req.Location
		})
	}
	return b, nil
}

// Logout ends the session in every tab.
func (c *Client) Logout(ctx context.Context) error {
	return c.Broadcaster.Logout(ctx)
}

// AckNotifications clears accumulated notifications; called when the user
// opens the notifications tab.
func (c *Client) AckNotifications(ctx context.Context) {
	c.Store.Set(models.ColNotifications, nil)
	_ = c.Broadcaster.Update(ctx, func(s *models.Session) {
		s.Notifications = nil
	})
}

// Close tears the runtime down.
func (c *Client) Close() {
	c.poller.Stop()
	c.Conn.Disconnect()
	c.Broadcaster.Stop()
	c.cancel()
}
