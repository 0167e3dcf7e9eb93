package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"nestly/api"
	"nestly/client"
	"nestly/config"
	"nestly/cron"
	"nestly/models"
	"nestly/session"
	"nestly/simulator"
	"nestly/store"
	"nestly/utils"
)

func main() {
	simMode := flag.Bool("sim", false, "run the backend simulator instead of the sync agent")
	email := flag.String("email", "", "account email for the sync agent")
	password := flag.String("password", "", "account password for the sync agent")
	warnUser := flag.String("warn-user", "", "schedule a subscription warning for this user id (sim mode)")
	warnAfter := flag.Duration("warn-after", time.Minute, "delay before the scheduled warning fires (sim mode)")
	flag.Parse()

	config.LoadConfig()
	logger := utils.GetLogger()
	defer logger.Sync()

	if *simMode {
		runSimulator(logger, *warnUser, *warnAfter)
		return
	}
	runAgent(logger, *email, *password)
}

func runSimulator(logger *zap.Logger, warnUser string, warnAfter time.Duration) {
	sim := simulator.New()
	cron.InitWarningWorker(sim)
	if warnUser != "" {
		if err := cron.ScheduleWarning(warnUser, "Your subscription payment is past due", warnAfter); err != nil {
			logger.Warn("failed to schedule subscription warning", zap.Error(err))
		}
	}
	if err := sim.Run(":" + config.AppConfig.SimPort); err != nil {
		logger.Sugar().Fatalf("simulator: %v", err)
	}
}

// runAgent is a headless tab: it logs in, brings up the sync runtime and
// prints every store change until interrupted.
func runAgent(logger *zap.Logger, email, password string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := session.NewRedisStorage(ctx)
	if err != nil {
		logger.Sugar().Fatalf("agent: session storage: %v", err)
	}

	c, err := client.New(ctx, client.Options{
		APIBaseURL:       config.AppConfig.APIBaseURL,
		WSURL:            config.AppConfig.WSURL,
		HTTPTimeout:      config.AppConfig.HTTPTimeout,
		PollInterval:     config.AppConfig.PollInterval,
		ReconnectMinWait: config.AppConfig.ReconnectMinWait,
		ReconnectMaxWait: config.AppConfig.ReconnectMaxWait,
		Storage:          storage,
		Toast: func(msg string) {
			logger.Info("toast", zap.String("message", msg))
		},
	})
	if err != nil {
		logger.Sugar().Fatalf("agent: %v", err)
	}
	defer c.Close()

	if c.Broadcaster.Current() == nil {
		if email == "" || password == "" {
			logger.Sugar().Fatal("agent: no persisted session; pass -email and -password")
		}
		if err := c.Login(ctx, api.Credentials{Email: email, Password: password}); err != nil {
			logger.Sugar().Fatalf("agent: login: %v", err)
		}
	}

	watch := func(key string) {
		ch, cancel := c.Store.Subscribe(key)
		go func() {
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case snap := <-ch:
					logger.Info("collection changed",
						zap.String("collection", key),
						zap.Int("items", len(snap.Items)),
						zap.Bool("loading", snap.Loading),
						zap.Error(snap.Err))
				}
			}
		}()
	}
	for _, key := range []string{
		models.ColServices, models.ColBookings, models.ColNotifications, models.ColSubscription,
	} {
		watch(key)
	}

	printSnapshot(logger, c.Store, models.ColServices)
	<-ctx.Done()
	logger.Info("agent shutting down")
}

func printSnapshot(logger *zap.Logger, st *store.Store, key string) {
	snap := st.Get(key)
	for _, it := range snap.Items {
		logger.Debug("cached item", zap.String("collection", key), zap.String("id", it.EntityID()))
	}
}
