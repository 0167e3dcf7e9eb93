package simulator

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"nestly/models"
)

func jsonMarshal(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

type account struct {
	Profile      models.UserProfile
	PasswordHash []byte
}

// dataset is the simulator's in-memory state. Everything is guarded by one
// mutex; the simulator favors simplicity over throughput.
type dataset struct {
	mu            sync.Mutex
	accounts      map[string]*account // by email
	accountsByID  map[string]*account
	services      map[string]models.ServiceCatalogEntry
	bookings      map[string]models.Booking
	feedbacks     map[string]models.FeedbackEntry
	faqs          []models.FAQEntry
	plans         []models.Plan
	subscriptions map[string]models.SubscriptionStatus // by user id
}

func newDataset() *dataset {
	d := &dataset{
		accounts:      make(map[string]*account),
		accountsByID:  make(map[string]*account),
		services:      make(map[string]models.ServiceCatalogEntry),
		bookings:      make(map[string]models.Booking),
		feedbacks:     make(map[string]models.FeedbackEntry),
		subscriptions: make(map[string]models.SubscriptionStatus),
	}
	d.seed()
	return d
}

// seed loads a small believable catalog so a fresh simulator is browsable.
func (d *dataset) seed() {
	for _, svc := range []models.ServiceCatalogEntry{
		{ID: "svc-cleaning", Name: "Home Cleaning", Price: 45, Category: "cleaning", Description: "Standard two-hour home clean", Rating: 4.6, ReviewCount: 182},
		{ID: "svc-plumbing", Name: "Plumbing Repair", Price: 80, Category: "repair", Description: "Leaks, taps and pipe fittings", Rating: 4.4, ReviewCount: 97},
		{ID: "svc-lawn", Name: "Lawn Care", Price: 35, Category: "outdoor", Description: "Mowing and edging", Rating: 4.8, ReviewCount: 61},
	} {
		d.services[svc.ID] = svc
	}
	d.faqs = []models.FAQEntry{
		{ID: "faq-1", Question: "How do I cancel a booking?", Answer: "Open the booking and choose cancel; bookings can be cancelled until the job is completed."},
		{ID: "faq-2", Question: "When am I charged?", Answer: "Card payments are captured when the provider accepts; cash is collected on completion."},
	}
	d.plans = []models.Plan{
		{ID: "plan-basic", Tier: "basic", Price: 0, Interval: "month", Features: []string{"Up to 5 bookings"}},
		{ID: "plan-pro", Tier: "pro", Price: 19.99, Interval: "month", Features: []string{"Unlimited bookings", "Priority support"}},
	}
}

func (d *dataset) addAccount(a *account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[a.Profile.Email] = a
	d.accountsByID[a.Profile.ID] = a
}

func (d *dataset) accountByEmail(email string) (*account, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.accounts[email]
	return a, ok
}

func (d *dataset) accountByID(id string) (*account, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.accountsByID[id]
	return a, ok
}

func (d *dataset) listServices() []models.ServiceCatalogEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.ServiceCatalogEntry, 0, len(d.services))
	for _, s := range d.services {
		out = append(out, s)
	}
	return out
}

func (d *dataset) listBookingsFor(userID string) []models.Booking {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Booking, 0)
	for _, b := range d.bookings {
		if b.CustomerID == userID || b.ProviderID == userID {
			out = append(out, b)
		}
	}
	return out
}

func (d *dataset) listFeedback() []models.FeedbackEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.FeedbackEntry, 0, len(d.feedbacks))
	for _, f := range d.feedbacks {
		out = append(out, f)
	}
	return out
}

func (d *dataset) subscriptionFor(userID string) models.SubscriptionStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.subscriptions[userID]; ok {
		return s
	}
	return models.SubscriptionStatus{
		UserID: userID,
		Tier:   "basic",
		Status: models.SubscriptionInactive,
	}
}

func (d *dataset) statsFor(providerID string) models.ProviderStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	stats := models.ProviderStats{ProviderID: providerID}
	var ratingSum float64
	var rated int
	for _, b := range d.bookings {
		if b.ProviderID != providerID {
			continue
		}
		switch b.Status {
		case models.BookingCompleted:
			stats.CompletedJobs++
			stats.EarningsThisWeek += b.TotalPrice
		case models.BookingAssigned, models.BookingInProgress:
			stats.ActiveBookings++
		}
	}
	for _, f := range d.feedbacks {
		ratingSum += float64(f.Rating)
		rated++
	}
	if rated > 0 {
		stats.AverageRating = ratingSum / float64(rated)
	}
	return stats
}

func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

func nowUTC() time.Time { return time.Now().UTC() }
