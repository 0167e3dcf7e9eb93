package cron

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestly/api"
	"nestly/models"
	"nestly/simulator"
)

func TestWarnTaskMarksSubscriptionPastDue(t *testing.T) {
	sim := simulator.New()
	srv := httptest.NewServer(sim.Router())
	defer srv.Close()

	var token string
	c := api.New(srv.URL, 5*time.Second, func() string { return token })
	resp, err := c.Register(context.Background(), api.Credentials{
		Name:     "Prov",
		Email:    "prov@example.com",
		Password: "hunter22",
		Role:     models.RoleProvider,
	})
	require.NoError(t, err)
	token = resp.Token

	payload, err := json.Marshal(WarnPayload{
		UserID:  resp.Profile.ID,
		Message: "payment overdue",
	})
	require.NoError(t, err)
	task := asynq.NewTask(TypeSubscriptionWarn, payload)
	require.NoError(t, handleWarnTask(sim)(context.Background(), task))

	sub, err := c.GetSubscription(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionPastDue, sub.Status)
	assert.Equal(t, "payment overdue", sub.WarningMessage)
}

func TestWarnTaskRejectsMalformedPayload(t *testing.T) {
	task := asynq.NewTask(TypeSubscriptionWarn, []byte("{"))
	err := handleWarnTask(simulator.New())(context.Background(), task)
	assert.Error(t, err)
}
