package ship

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shipyard-dev/harbor/internal/adapters/metrics"
	"github.com/shipyard-dev/harbor/internal/domain/harbor"
	"github.com/shipyard-dev/harbor/internal/infrastructure/config"
)

// Replenisher keeps a floor of unbound running ships so session resolution
// can hand out a warm container instead of paying the cold-start cost.
type Replenisher struct {
	service *Service
	ships   harbor.ShipRepository
	cfg     *config.WarmPoolConfig
	maxTTL  int
	metrics *metrics.Metrics
	log     *logrus.Entry

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewReplenisher(
	service *Service,
	ships harbor.ShipRepository,
	cfg *config.WarmPoolConfig,
	shipCfg *config.ShipConfig,
	m *metrics.Metrics,
	log *logrus.Logger,
) *Replenisher {
	return &Replenisher{
		service: service,
		ships:   ships,
		cfg:     cfg,
		maxTTL:  shipCfg.DefaultTTL,
		metrics: m,
		log:     log.WithField("component", "warm-pool"),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the replenish loop. A first pass runs immediately so the
// pool fills at startup rather than one interval later.
func (r *Replenisher) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		r.replenish(ctx)

		ticker := time.NewTicker(r.cfg.ReplenishInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.replenish(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (r *Replenisher) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

// replenish tops the pool up to MinSize, bounded by the pool's MaxSize and
// the global ship ceiling. Creation stops at the first failure; the next
// tick retries.
func (r *Replenisher) replenish(ctx context.Context) {
	current, err := r.ships.CountWarmPoolShips(ctx)
	if err != nil {
		r.log.WithError(err).Warn("failed to count warm pool ships")
		return
	}

	active, err := r.ships.CountActive(ctx)
	if err != nil {
		r.log.WithError(err).Warn("failed to count active ships")
		return
	}

	needed := r.cfg.MinSize - current
	if slots := r.service.cfg.MaxShips - active; slots < needed {
		needed = slots
	}
	if room := r.cfg.MaxSize - current; room < needed {
		needed = room
	}
	if needed <= 0 {
		return
	}

	r.log.WithFields(logrus.Fields{
		"current": current,
		"needed":  needed,
	}).Info("replenishing warm pool")

	for i := 0; i < needed; i++ {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if _, err := r.service.createShip(ctx, "", r.maxTTL, nil); err != nil {
			r.log.WithError(err).Warn("warm pool creation failed, will retry next pass")
			return
		}
		r.metrics.RecordWarmPoolCreation()
	}
}
