// Package subscription keeps the subscription status fresh by polling in
// addition to the subscriptionWarning / subscriptionUpdated push events.
package subscription

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nestly/fetch"
	"nestly/models"
	"nestly/utils"
)

// Poller triggers periodic subscription refreshes through the fetch
// coordinator so a poll never races a push-driven refetch for the same
// collection.
type Poller struct {
	coord    *fetch.Coordinator
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
}

// NewPoller builds a poller with the given interval.
func NewPoller(coord *fetch.Coordinator, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{
		coord:    coord,
		interval: interval,
		logger:   utils.GetLogger(),
	}
}

// Start begins polling until Stop or ctx cancellation. The first refresh
// happens immediately. Starting again replaces the previous schedule.
func (p *Poller) Start(ctx context.Context) {
	p.Stop()
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		if err := p.coord.EnsureFresh(ctx, models.ColSubscription); err != nil {
			p.logger.Debug("initial subscription poll failed", zap.Error(err))
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.coord.EnsureFresh(ctx, models.ColSubscription); err != nil {
					p.logger.Debug("subscription poll failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop halts polling.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}
