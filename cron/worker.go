// Package cron runs the simulator's background jobs: delayed
// subscription-warning pushes scheduled over redis with asynq, the same way
// the production backend nags past-due subscribers.
package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"nestly/config"
	"nestly/simulator"
	"nestly/utils"
)

const TypeSubscriptionWarn = "subscription:warn"

// WarnPayload is the task body for a scheduled subscription warning.
type WarnPayload struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

func redisOpts() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisSessionDB,
	}
}

// InitWarningWorker runs the async worker in background. Requires a
// reachable redis; the simulator works without it, only scheduled warnings
// are lost.
func InitWarningWorker(sim *simulator.Simulator) {
	logger := utils.GetLogger()

	srv := asynq.NewServer(
		redisOpts(),
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSubscriptionWarn, handleWarnTask(sim))

	go func() {
		logger.Info("starting subscription warning worker")
		if err := srv.Run(mux); err != nil {
			logger.Warn("warning worker stopped", zap.Error(err))
		}
	}()
}

func handleWarnTask(sim *simulator.Simulator) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p WarnPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("cron: decode warn payload: %w", err)
		}
		sim.MarkPastDue(p.UserID, p.Message)
		return nil
	}
}

// ScheduleWarning enqueues a subscription warning to fire after delay.
func ScheduleWarning(userID, message string, delay time.Duration) error {
	payload, err := json.Marshal(WarnPayload{UserID: userID, Message: message})
	if err != nil {
		return fmt.Errorf("cron: encode warn payload: %w", err)
	}
	client := asynq.NewClient(redisOpts())
	defer client.Close()

	task := asynq.NewTask(TypeSubscriptionWarn, payload)
	if _, err := client.Enqueue(task, asynq.ProcessIn(delay)); err != nil {
		return fmt.Errorf("cron: enqueue warning: %w", err)
	}
	return nil
}
