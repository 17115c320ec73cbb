package order

import (
	"context"
	"fmt"
	"time"

	"ticket-marketplace/internal/logger"
	"ticket-marketplace/internal/models"
)

// ExpiredOrderSource is the slice of the order store the sweeper queries.
type ExpiredOrderSource interface {
	ListExpiredPending(now time.Time) ([]models.Order, error)
}

// OrderExpirer drives one order past its TTL.
type OrderExpirer interface {
	ExpireOrder(orderID string) error
}

// Sweeper is the time-driven reclaim loop: it periodically expires PENDING
// orders whose TTL elapsed, including orders orphaned by a lost reservation
// intent or a crash between commit and publish. One startup sweep (after a
// short delay) catches orders that expired while the process was down.
type Sweeper struct {
	Source  ExpiredOrderSource
	Expirer OrderExpirer
	Logger  *logger.Logger

	Interval     time.Duration
	StartupDelay time.Duration
	Now          func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(source ExpiredOrderSource, expirer OrderExpirer, log *logger.Logger, interval, startupDelay time.Duration) *Sweeper {
	return &Sweeper{
		Source:       source,
		Expirer:      expirer,
		Logger:       log,
		Interval:     interval,
		StartupDelay: startupDelay,
		Now:          time.Now,
	}
}

// Start launches the tick loop. Call Stop to shut it down.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		select {
		case <-time.After(s.StartupDelay):
			s.Logger.LogSweeper("startup sweep")
			s.Sweep()
		case <-ctx.Done():
			return
		}

		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// Sweep runs one reclaim cycle. Failures are isolated per order so one bad
// row never stalls the rest of the batch.
func (s *Sweeper) Sweep() {
	expired, err := s.Source.ListExpiredPending(s.Now())
	if err != nil {
		s.Logger.Error("SWEEPER", fmt.Sprintf("query expired orders: %v", err))
		return
	}
	if len(expired) == 0 {
		return
	}

	s.Logger.LogSweeper(fmt.Sprintf("found %d expired orders", len(expired)))

	for _, o := range expired {
		if err := s.Expirer.ExpireOrder(o.ID); err != nil {
			s.Logger.Error("SWEEPER", fmt.Sprintf("expire order %s: %v", o.ID, err))
		}
	}
}
