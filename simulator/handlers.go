package simulator

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"golang.org/x/crypto/bcrypt"

	"nestly/api"
	"nestly/models"
	"nestly/utils"
)

const tokenTTL = 24 * time.Hour

func (s *Simulator) registerHandler(c *gin.Context) {
	var creds api.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if creds.Email == "" || creds.Password == "" {
		utils.JSONError(c, http.StatusBadRequest, "email and password are required", "")
		return
	}
	if _, exists := s.data.accountByEmail(creds.Email); exists {
		utils.JSONError(c, http.StatusConflict, "account already exists", creds.Email)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "failed to hash password", err.Error())
		return
	}
	role := creds.Role
	if role == "" {
		role = models.RoleCustomer
	}
	acct := &account{
		Profile: models.UserProfile{
			ID:    newID("u"),
			Name:  creds.Name,
			Email: creds.Email,
			Role:  role,
		},
		PasswordHash: hash,
	}
	s.data.addAccount(acct)
	s.respondAuth(c, acct)
}

func (s *Simulator) loginHandler(c *gin.Context) {
	var creds api.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	acct, ok := s.data.accountByEmail(creds.Email)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, "invalid credentials", "")
		return
	}
	if err := bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(creds.Password)); err != nil {
		utils.JSONError(c, http.StatusUnauthorized, "invalid credentials", "")
		return
	}
	s.respondAuth(c, acct)
}

func (s *Simulator) respondAuth(c *gin.Context, acct *account) {
	token, err := utils.GenerateToken(acct.Profile.ID, string(acct.Profile.Role), tokenTTL)
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "failed to issue token", err.Error())
		return
	}
	c.JSON(http.StatusOK, api.AuthResponse{Token: token, Profile: acct.Profile})
}

func (s *Simulator) profileHandler(c *gin.Context) {
	acct, ok := s.data.accountByID(callerID(c))
	if !ok {
		utils.JSONError(c, http.StatusNotFound, "account not found", "")
		return
	}
	c.JSON(http.StatusOK, acct.Profile)
}

func (s *Simulator) updateProfileHandler(c *gin.Context) {
	var p models.UserProfile
	if err := c.ShouldBindJSON(&p); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	acct, ok := s.data.accountByID(callerID(c))
	if !ok {
		utils.JSONError(c, http.StatusNotFound, "account not found", "")
		return
	}
	s.data.mu.Lock()
	acct.Profile.Name = p.Name
	acct.Profile.Phone = p.Phone
	acct.Profile.Location = p.Location
	profile := acct.Profile
	s.data.mu.Unlock()

	s.Hub.Publish("user:"+profile.ID, models.EvUserUpdated, profile)
	c.JSON(http.StatusOK, profile)
}

func (s *Simulator) listServicesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.data.listServices())
}

func (s *Simulator) getServiceHandler(c *gin.Context) {
	s.data.mu.Lock()
	svc, ok := s.data.services[c.Param("id")]
	s.data.mu.Unlock()
	if !ok {
		utils.JSONError(c, http.StatusNotFound, "service not found", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, svc)
}

func (s *Simulator) addServiceHandler(c *gin.Context) {
	var svc models.ServiceCatalogEntry
	if err := c.ShouldBindJSON(&svc); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if svc.ID == "" {
		svc.ID = newID("svc")
	}
	s.data.mu.Lock()
	s.data.services[svc.ID] = svc
	s.data.mu.Unlock()

	// coarse event: payload is intentionally narrower than the entity
	s.Hub.Broadcast(models.EvServiceAdded, gin.H{"id": svc.ID})
	c.JSON(http.StatusCreated, svc)
}

func (s *Simulator) updateServiceHandler(c *gin.Context) {
	var svc models.ServiceCatalogEntry
	if err := c.ShouldBindJSON(&svc); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	id := c.Param("id")
	s.data.mu.Lock()
	_, ok := s.data.services[id]
	if ok {
		svc.ID = id
		s.data.services[id] = svc
	}
	s.data.mu.Unlock()
	if !ok {
		utils.JSONError(c, http.StatusNotFound, "service not found", id)
		return
	}
	s.Hub.Broadcast(models.EvServiceUpdated, gin.H{"id": id})
	c.JSON(http.StatusOK, svc)
}

func (s *Simulator) deleteServiceHandler(c *gin.Context) {
	id := c.Param("id")
	s.data.mu.Lock()
	_, ok := s.data.services[id]
	delete(s.data.services, id)
	s.data.mu.Unlock()
	if !ok {
		utils.JSONError(c, http.StatusNotFound, "service not found", id)
		return
	}
	s.Hub.Broadcast(models.EvServiceDeleted, gin.H{"id": id})
	c.Status(http.StatusNoContent)
}

func (s *Simulator) listBookingsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.data.listBookingsFor(callerID(c)))
}

func (s *Simulator) createBookingHandler(c *gin.Context) {
	var req api.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	s.data.mu.Lock()
	svc, ok := s.data.services[req.ServiceID]
	s.data.mu.Unlock()
	if !ok {
		utils.JSONError(c, http.StatusUnprocessableEntity, "unknown service", req.ServiceID)
		return
	}

	b := models.Booking{
		ID:            newID("b"),
		ServiceID:     req.ServiceID,
		CustomerID:    callerID(c),
		ScheduledTime: req.ScheduledTime,
		Location:      req.Location,
		Status:        models.BookingPending,
		PaymentMethod: req.PaymentMethod,
		TotalPrice:    svc.Price,
		CreatedAt:     nowUTC(),
	}
	s.data.mu.Lock()
	s.data.bookings[b.ID] = b
	s.data.mu.Unlock()
	c.JSON(http.StatusCreated, b)
}

// assignBookingHandler is the server-side provider assignment; in
// production an operator or matching engine drives it.
func (s *Simulator) assignBookingHandler(c *gin.Context) {
	var body struct {
		ProviderID string `json:"providerId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.ProviderID == "" {
		utils.JSONError(c, http.StatusBadRequest, "providerId is required", "")
		return
	}
	b, err := s.transition(c.Param("id"), models.BookingAssigned, func(b *models.Booking) {
		b.ProviderID = body.ProviderID
	})
	if err != nil {
		s.transitionError(c, err)
		return
	}
	s.Hub.Publish("user:"+b.ProviderID, models.EvNewBookingAssigned, b)
	s.Hub.Publish("user:"+b.CustomerID, models.EvBookingStatusUpdate,
		models.BookingUpdatePayload{BookingID: b.ID, Status: b.Status})
	c.JSON(http.StatusOK, b)
}

func (s *Simulator) acceptBookingHandler(c *gin.Context) {
	b, err := s.transition(c.Param("id"), models.BookingInProgress, nil)
	if err != nil {
		s.transitionError(c, err)
		return
	}
	s.Hub.Publish("user:"+b.CustomerID, models.EvBookingUpdate,
		models.BookingUpdatePayload{BookingID: b.ID, Status: b.Status})
	c.JSON(http.StatusOK, b)
}

func (s *Simulator) rejectBookingHandler(c *gin.Context) {
	b, err := s.transition(c.Param("id"), models.BookingRejected, nil)
	if err != nil {
		s.transitionError(c, err)
		return
	}
	s.Hub.Publish("user:"+b.CustomerID, models.EvBookingUpdate,
		models.BookingUpdatePayload{BookingID: b.ID, Status: b.Status})
	c.JSON(http.StatusOK, b)
}

func (s *Simulator) updateBookingStatusHandler(c *gin.Context) {
	var body struct {
		Status models.BookingStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Status == "" {
		utils.JSONError(c, http.StatusBadRequest, "status is required", "")
		return
	}
	b, err := s.transition(c.Param("id"), body.Status, nil)
	if err != nil {
		s.transitionError(c, err)
		return
	}
	s.Hub.Publish("user:"+b.CustomerID, models.EvBookingUpdate,
		models.BookingUpdatePayload{BookingID: b.ID, Status: b.Status})
	if b.ProviderID != "" {
		s.Hub.Publish("user:"+b.ProviderID, models.EvStatsUpdated, nil)
	}
	c.JSON(http.StatusOK, b)
}

func (s *Simulator) cancelBookingHandler(c *gin.Context) {
	b, err := s.transition(c.Param("id"), models.BookingCancelled, nil)
	if err != nil {
		s.transitionError(c, err)
		return
	}
	if b.ProviderID != "" {
		s.Hub.Publish("user:"+b.ProviderID, models.EvBookingStatusUpdate,
			models.BookingUpdatePayload{BookingID: b.ID, Status: b.Status})
	}
	c.Status(http.StatusNoContent)
}

type transitionErr struct {
	notFound bool
	from, to models.BookingStatus
}

func (e *transitionErr) Error() string { return "illegal transition" }

// transition enforces the same state machine the client validates against.
func (s *Simulator) transition(id string, to models.BookingStatus, mutate func(*models.Booking)) (models.Booking, error) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	b, ok := s.data.bookings[id]
	if !ok {
		return models.Booking{}, &transitionErr{notFound: true}
	}
	if !models.CanTransition(b.Status, to) {
		return models.Booking{}, &transitionErr{from: b.Status, to: to}
	}
	b.Status = to
	if mutate != nil {
		mutate(&b)
	}
	s.data.bookings[id] = b
	return b, nil
}

func (s *Simulator) transitionError(c *gin.Context, err error) {
	te, ok := err.(*transitionErr)
	if ok && te.notFound {
		utils.JSONError(c, http.StatusNotFound, "booking not found", "")
		return
	}
	if ok {
		utils.JSONError(c, http.StatusConflict, "illegal status transition",
			string(te.from)+" -> "+string(te.to))
		return
	}
	utils.JSONError(c, http.StatusInternalServerError, "transition failed", err.Error())
}

func (s *Simulator) listFeedbackHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.data.listFeedback())
}

func (s *Simulator) addFeedbackHandler(c *gin.Context) {
	var f models.FeedbackEntry
	if err := c.ShouldBindJSON(&f); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	f.ID = newID("fb")
	f.UserID = callerID(c)
	f.CreatedAt = nowUTC().Format(time.RFC3339)
	s.data.mu.Lock()
	s.data.feedbacks[f.ID] = f
	s.data.mu.Unlock()

	s.Hub.Broadcast(models.EvFeedbackSubmitted, gin.H{"id": f.ID})
	c.JSON(http.StatusCreated, f)
}

func (s *Simulator) listFAQsHandler(c *gin.Context) {
	s.data.mu.Lock()
	faqs := append([]models.FAQEntry(nil), s.data.faqs...)
	s.data.mu.Unlock()
	c.JSON(http.StatusOK, faqs)
}

func (s *Simulator) listPlansHandler(c *gin.Context) {
	s.data.mu.Lock()
	plans := append([]models.Plan(nil), s.data.plans...)
	s.data.mu.Unlock()
	c.JSON(http.StatusOK, plans)
}

func (s *Simulator) statsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.data.statsFor(callerID(c)))
}

func (s *Simulator) subscriptionStatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.data.subscriptionFor(callerID(c)))
}

func (s *Simulator) createCheckoutSessionHandler(c *gin.Context) {
	var body struct {
		PlanID string `json:"planId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.PlanID == "" {
		utils.JSONError(c, http.StatusBadRequest, "planId is required", "")
		return
	}
	var tier models.SubscriptionTier
	s.data.mu.Lock()
	for _, p := range s.data.plans {
		if p.ID == body.PlanID {
			tier = models.SubscriptionTier(p.Tier)
		}
	}
	s.data.mu.Unlock()
	if tier == "" {
		utils.JSONError(c, http.StatusUnprocessableEntity, "unknown plan", body.PlanID)
		return
	}

	// The simulator has no real payment provider: checkout "completes"
	// immediately and the update event follows.
	userID := callerID(c)
	s.data.mu.Lock()
	s.data.subscriptions[userID] = models.SubscriptionStatus{
		UserID:   userID,
		Tier:     tier,
		Status:   models.SubscriptionActive,
		RenewsAt: nowUTC().AddDate(0, 1, 0),
	}
	s.data.mu.Unlock()
	s.Hub.Publish("user:"+userID, models.EvSubscriptionUpdated, nil)

	c.JSON(http.StatusOK, api.CheckoutSession{
		SessionID: newID("cs"),
		URL:       "https://checkout.example/" + body.PlanID,
	})
}

func (s *Simulator) createStripeIntentHandler(c *gin.Context) {
	var body struct {
		BookingID string `json:"bookingId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.BookingID == "" {
		utils.JSONError(c, http.StatusBadRequest, "bookingId is required", "")
		return
	}
	s.data.mu.Lock()
	b, ok := s.data.bookings[body.BookingID]
	s.data.mu.Unlock()
	if !ok {
		utils.JSONError(c, http.StatusNotFound, "booking not found", body.BookingID)
		return
	}

	id := "pi_" + newID("sim")
	c.JSON(http.StatusOK, &stripe.PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret_" + newID("cs"),
		Amount:       int64(b.TotalPrice * 100),
		Currency:     stripe.CurrencyUSD,
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
	})
}

func (s *Simulator) confirmCODHandler(c *gin.Context) {
	var body struct {
		BookingID string `json:"bookingId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.BookingID == "" {
		utils.JSONError(c, http.StatusBadRequest, "bookingId is required", "")
		return
	}
	s.data.mu.Lock()
	b, ok := s.data.bookings[body.BookingID]
	if ok {
		b.PaymentMethod = "cod"
		s.data.bookings[b.ID] = b
	}
	s.data.mu.Unlock()
	if !ok {
		utils.JSONError(c, http.StatusNotFound, "booking not found", body.BookingID)
		return
	}
	c.Status(http.StatusNoContent)
}
