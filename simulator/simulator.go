// Package simulator is a self-contained, in-memory stand-in for the
// marketplace backend: the REST surface plus the websocket event channel.
// Tests run it in-process via httptest; `nestly -sim` runs it standalone
// for local development.
package simulator

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nestly/models"
	"nestly/utils"
)

// Simulator bundles the dataset, the event hub and the router.
type Simulator struct {
	Hub    *Hub
	data   *dataset
	router *gin.Engine
	logger *zap.Logger
}

// New assembles a simulator with a seeded catalog.
func New() *Simulator {
	s := &Simulator{
		Hub:    NewHub(),
		data:   newDataset(),
		logger: utils.GetLogger(),
	}
	s.router = s.buildRouter()
	return s
}

// Router exposes the gin engine (httptest mounts it directly).
func (s *Simulator) Router() http.Handler { return s.router }

// Run serves until the listener fails.
func (s *Simulator) Run(addr string) error {
	s.logger.Info("simulator listening", zap.String("addr", addr))
	return s.router.Run(addr)
}

func (s *Simulator) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(utils.ErrorHandler())
	r.Use(RateLimitMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/ws", s.Hub.Handle)

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/users/register", s.registerHandler)
		apiGroup.POST("/users/login", s.loginHandler)
		apiGroup.GET("/services", s.listServicesHandler)
		apiGroup.GET("/services/:id", s.getServiceHandler)
		apiGroup.GET("/faqs", s.listFAQsHandler)
		apiGroup.GET("/plans", s.listPlansHandler)

		protected := apiGroup.Group("")
		protected.Use(AuthMiddleware())
		{
			protected.GET("/users/profile", s.profileHandler)
			protected.PUT("/users/profile", s.updateProfileHandler)

			protected.POST("/services", s.addServiceHandler)
			protected.PUT("/services/:id", s.updateServiceHandler)
			protected.DELETE("/services/:id", s.deleteServiceHandler)

			protected.GET("/bookings", s.listBookingsHandler)
			protected.POST("/bookings", s.createBookingHandler)
			protected.PUT("/bookings/:id/assign", s.assignBookingHandler)
			protected.PUT("/bookings/:id/accept", s.acceptBookingHandler)
			protected.PUT("/bookings/:id/reject", s.rejectBookingHandler)
			protected.PUT("/bookings/:id/status", s.updateBookingStatusHandler)
			protected.DELETE("/bookings/:id", s.cancelBookingHandler)

			protected.GET("/feedback", s.listFeedbackHandler)
			protected.POST("/feedback", s.addFeedbackHandler)

			protected.GET("/stats", s.statsHandler)

			protected.GET("/subscriptions/status", s.subscriptionStatusHandler)
			protected.POST("/subscriptions/create-checkout-session", s.createCheckoutSessionHandler)

			protected.POST("/payments/create-stripe-intent", s.createStripeIntentHandler)
			protected.POST("/payments/confirm-cod", s.confirmCODHandler)
		}
	}
	return r
}

// MarkPastDue flips a user's subscription to past_due and pushes the
// warning event; the reminder worker calls this on schedule.
func (s *Simulator) MarkPastDue(userID, message string) {
	s.data.mu.Lock()
	sub := s.data.subscriptions[userID]
	sub.UserID = userID
	if sub.Tier == "" {
		sub.Tier = "basic"
	}
	sub.Status = models.SubscriptionPastDue
	sub.WarningMessage = message
	s.data.subscriptions[userID] = sub
	s.data.mu.Unlock()

	s.Hub.Publish("user:"+userID, models.EvSubscriptionWarning,
		models.SubscriptionWarningPayload{Message: message})
}
