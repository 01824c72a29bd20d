package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultErrorPenalty is the extra wait after a failed cycle.
const DefaultErrorPenalty = 60 * time.Second

// Cycler is the work the poller schedules.
type Cycler interface {
	Init(ctx context.Context) error
	Cycle(ctx context.Context) error
}

// Poller runs Init once, waits one interval, then runs cycles on a fixed
// cadence measured from cycle start to cycle start.
type Poller struct {
	Engine   Cycler
	Interval time.Duration
	Penalty  time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPoller(engine Cycler, interval, penalty time.Duration) *Poller {
	if penalty <= 0 {
		penalty = DefaultErrorPenalty
	}
	return &Poller{Engine: engine, Interval: interval, Penalty: penalty, now: time.Now, sleep: sleepContext}
}

// Run blocks until ctx is cancelled. Cancellation is only observed between
// cycles; a running cycle always finishes. It returns an error only when
// Init reports missing layout nodes.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.Engine.Init(ctx); err != nil {
		if IsLookupError(err) {
			return err
		}
		log.Error().Err(err).Str("component", "poller").Msg("Initial reconciliation failed, retrying on next cycle")
	}

	if err := p.sleep(ctx, p.Interval); err != nil {
		return nil
	}
	for {
		started := p.now()
		if err := p.Engine.Cycle(context.WithoutCancel(ctx)); err != nil {
			log.Error().Err(err).Str("component", "poller").Dur("penalty", p.Penalty).Msg("Cycle failed")
			if err := p.sleep(ctx, p.Penalty); err != nil {
				return nil
			}
		}
		delay := nextDelay(p.Interval, p.now().Sub(started))
		log.Debug().Str("component", "poller").Dur("delay", delay).Msg("Next cycle scheduled")
		if err := p.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

// nextDelay is the wait that keeps cycle starts one interval apart.
func nextDelay(interval, elapsed time.Duration) time.Duration {
	if d := interval - elapsed; d > 0 {
		return d
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
