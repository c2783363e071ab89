package services

import (
	"context"
	"sync"
	"time"

	"nft-marketplace/internal/domain"
	"nft-marketplace/pkg/logger"

	"github.com/robfig/cron/v3"
)

type expiredAuctionSource interface {
	ExpiredUnsettled(now time.Time) []uint64
}

// ExpiryWatcher announces auctions whose end time has passed. It only
// publishes events; settlement stays with the participants.
type ExpiryWatcher struct {
	cron      *cron.Cron
	spec      string
	registry  expiredAuctionSource
	eventPub  domain.EventPublisher
	clock     domain.Clock
	announced map[uint64]struct{}
	mutex     sync.Mutex
	log       logger.Logger
}

func NewExpiryWatcher(spec string, registry expiredAuctionSource, eventPub domain.EventPublisher,
	clock domain.Clock, log logger.Logger) *ExpiryWatcher {
	return &ExpiryWatcher{
		cron:      cron.New(cron.WithSeconds()),
		spec:      spec,
		registry:  registry,
		eventPub:  eventPub,
		clock:     clock,
		announced: make(map[uint64]struct{}),
		log:       log,
	}
}

func (w *ExpiryWatcher) Start(ctx context.Context) error {
	w.log.Info("Starting expiry watcher", "spec", w.spec)

	_, err := w.cron.AddFunc(w.spec, func() {
		w.Scan(ctx)
	})
	if err != nil {
		return err
	}

	w.cron.Start()
	return nil
}

func (w *ExpiryWatcher) Stop() error {
	w.log.Info("Stopping expiry watcher")
	<-w.cron.Stop().Done()
	return nil
}

// Scan publishes one auction_expired event per newly expired auction and
// returns how many it announced.
func (w *ExpiryWatcher) Scan(ctx context.Context) int {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	now := w.clock.Now()
	expired := w.registry.ExpiredUnsettled(now)

	// Settled auctions never return to the expired list, so forget them.
	pending := make(map[uint64]struct{}, len(expired))
	for _, index := range expired {
		pending[index] = struct{}{}
	}
	for index := range w.announced {
		if _, ok := pending[index]; !ok {
			delete(w.announced, index)
		}
	}

	announced := 0
	for _, index := range expired {
		if _, done := w.announced[index]; done {
			continue
		}

		event := domain.NewAuctionEvent(domain.EventAuctionExpired, index, "", 0, now)
		if err := w.eventPub.PublishAuctionEvent(ctx, event); err != nil {
			// Not marked, retried on the next tick.
			w.log.Error("Failed to announce expired auction", "auction_index", index, "error", err)
			continue
		}

		w.announced[index] = struct{}{}
		announced++
		w.log.Info("Auction expired", "auction_index", index)
	}
	return announced
}
