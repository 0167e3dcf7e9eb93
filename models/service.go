package models

// ServiceCatalogEntry is one bookable service as listed by the backend.
// Catalog entries are mutated only by server-originated events
// (serviceAdded / serviceUpdated / serviceDeleted); the client never writes
// them directly.
type ServiceCatalogEntry struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	Description string  `json:"description,omitempty"`
	MediaURL    string  `json:"mediaUrl,omitempty"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"reviewCount"`
}

func (s ServiceCatalogEntry) EntityID() string { return s.ID }

// FeedbackEntry is a customer review attached to a service.
type FeedbackEntry struct {
	ID        string  `json:"id"`
	ServiceID string  `json:"serviceId"`
	UserID    string  `json:"userId"`
	Rating    int     `json:"rating"`
	Comment   string  `json:"comment,omitempty"`
	CreatedAt string  `json:"createdAt,omitempty"`
	Reply     *string `json:"reply,omitempty"`
}

func (f FeedbackEntry) EntityID() string { return f.ID }

// FAQEntry mirrors GET /api/faqs.
type FAQEntry struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (f FAQEntry) EntityID() string { return f.ID }

// Plan mirrors GET /api/plans.
type Plan struct {
	ID       string   `json:"id"`
	Tier     string   `json:"tier"`
	Price    float64  `json:"price"`
	Interval string   `json:"interval"`
	Features []string `json:"features,omitempty"`
}

func (p Plan) EntityID() string { return p.ID }

// ProviderStats is the aggregate block on the provider dashboard, refreshed
// whenever a statsUpdated event arrives.
type ProviderStats struct {
	ProviderID       string  `json:"providerId"`
	CompletedJobs    int     `json:"completedJobs"`
	ActiveBookings   int     `json:"activeBookings"`
	AverageRating    float64 `json:"averageRating"`
	EarningsThisWeek float64 `json:"earningsThisWeek"`
}

func (s ProviderStats) EntityID() string { return s.ProviderID }
