package realtime

import (
	"encoding/json"

	"go.uber.org/zap"

	"nestly/fetch"
	"nestly/models"
	"nestly/store"
	"nestly/utils"
)

// Dispatcher maps inbound named events onto entity-store actions. The
// mapping lives centrally in models.Routes: fine-grained events patch the
// store directly, coarse events invalidate a collection through the fetch
// coordinator. Notification and toast side effects always run, even when
// the store action later fails.
type Dispatcher struct {
	conn   *Conn
	store  *store.Store
	coord  *fetch.Coordinator
	logger *zap.Logger

	notify func(models.NotificationItem)
	toast  func(string)
}

// NewDispatcher wires a dispatcher to the connection, store and
// coordinator.
func NewDispatcher(conn *Conn, st *store.Store, coord *fetch.Coordinator) *Dispatcher {
	return &Dispatcher{
		conn:   conn,
		store:  st,
		coord:  coord,
		logger: utils.GetLogger(),
	}
}

// SetNotifier installs the sink for NotificationItems (badge + persisted
// session list).
func (d *Dispatcher) SetNotifier(fn func(models.NotificationItem)) { d.notify = fn }

// SetToaster installs the transient toast sink.
func (d *Dispatcher) SetToaster(fn func(string)) { d.toast = fn }

// Register installs one handler per routed event name on the connection.
func (d *Dispatcher) Register() {
	for name := range models.Routes {
		event := name
		d.conn.On(event, func(data json.RawMessage) {
			d.handle(event, data)
		})
	}
}

func (d *Dispatcher) handle(event string, data json.RawMessage) {
	route, ok := models.Routes[event]
	if !ok {
		return
	}
	d.logger.Debug("event received", zap.String("event", event))

	// Presentation side effects first; they must never be dropped because a
	// refetch fails afterwards.
	if route.Notify != "" && d.notify != nil {
		d.notify(models.NewNotification(route.Notify))
	}
	if route.Toast != "" && d.toast != nil {
		d.toast(route.Toast)
	}

	if route.Patch {
		d.patch(event, data)
	}
	for _, key := range route.Refetch {
		d.coord.Invalidate(key)
	}
}

// patch applies fine-grained events whose payload carries an id and the
// changed fields. Payloads narrower than expected fall back to a refetch
// rather than guessing.
func (d *Dispatcher) patch(event string, data json.RawMessage) {
	switch event {
	case models.EvBookingStatusUpdate, models.EvBookingUpdate:
		var p models.BookingUpdatePayload
		if err := json.Unmarshal(data, &p); err != nil || p.BookingID == "" || p.Status == "" {
			d.coord.Invalidate(models.ColBookings)
			return
		}
		ok := d.store.Patch(models.ColBookings, p.BookingID, func(e store.Entity) store.Entity {
			b, isBooking := e.(models.Booking)
			if !isBooking {
				return e
			}
			b.Status = p.Status
			return b
		})
		if !ok {
			// unknown booking (or a backward transition the guard refused):
			// the full list is the authority
			d.coord.Invalidate(models.ColBookings)
		}

	case models.EvSubscriptionWarning:
		var p models.SubscriptionWarningPayload
		if err := json.Unmarshal(data, &p); err != nil || p.Message == "" {
			d.coord.Invalidate(models.ColSubscription)
			return
		}
		snap := d.store.Get(models.ColSubscription)
		if len(snap.Items) == 0 {
			d.coord.Invalidate(models.ColSubscription)
			return
		}
		d.store.Patch(models.ColSubscription, snap.Items[0].EntityID(), func(e store.Entity) store.Entity {
			sub, isSub := e.(models.SubscriptionStatus)
			if !isSub {
				return e
			}
			sub.WarningMessage = p.Message
			return sub
		})

	default:
		d.logger.Warn("patch route without patch logic", zap.String("event", event))
	}
}
