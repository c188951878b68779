package seeder

import (
	"context"
	"time"

	"github.com/telhawk-systems/telhawk-beacon/common/logging"
	"github.com/telhawk-systems/telhawk-beacon/internal/models"
)

// Capturer is the part of the telemetry client the runner drives.
type Capturer interface {
	CaptureEvent(ctx context.Context, event *models.Event, hint *models.EventHint) string
	Flush(ctx context.Context) error
}

// Config controls a seeding run.
type Config struct {
	Count int
	// CrashRatio and MessageRatio are the shares of crashes and plain
	// messages; the rest are handled errors.
	CrashRatio   float64
	MessageRatio float64
	// Interval is the pause between events.
	Interval time.Duration
	// TimeSpread spreads event timestamps backwards from now.
	TimeSpread time.Duration
}

// Stats summarises a run.
type Stats struct {
	Sent    int `json:"sent" yaml:"sent"`
	Dropped int `json:"dropped" yaml:"dropped"`
	Crashes int `json:"crashes" yaml:"crashes"`
}

// Runner sends generated samples through a client.
type Runner struct {
	cfg       Config
	generator *Generator
	client    Capturer
	logger    *logging.Logger
	now       func() time.Time
}

func NewRunner(cfg Config, generator *Generator, client Capturer, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{
		cfg:       cfg,
		generator: generator,
		client:    client,
		logger:    logger.With(logging.Component("seeder")),
		now:       time.Now,
	}
}

// Run sends cfg.Count events, then flushes. It stops early when ctx is done.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	now := r.now()

	for i := range r.cfg.Count {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		sample := r.next(r.eventTime(now, i))
		if id := r.client.CaptureEvent(ctx, sample.Event, sample.Hint); id == "" {
			stats.Dropped++
		} else {
			stats.Sent++
			if sample.Crash {
				stats.Crashes++
			}
		}

		if r.cfg.Interval > 0 && i < r.cfg.Count-1 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(r.cfg.Interval):
			}
		}
	}

	if err := r.client.Flush(ctx); err != nil {
		r.logger.WarnContext(ctx, "flush after seeding failed", logging.Error(err))
	}
	r.logger.InfoContext(ctx, "seeding complete", "sent", stats.Sent, "dropped", stats.Dropped, "crashes", stats.Crashes)
	return stats, nil
}

func (r *Runner) next(at time.Time) Sample {
	roll := r.generator.faker.Float64Range(0, 1)
	switch {
	case roll < r.cfg.CrashRatio:
		return r.generator.Crash(at)
	case roll < r.cfg.CrashRatio+r.cfg.MessageRatio:
		return r.generator.Message(at)
	default:
		return r.generator.HandledError(at)
	}
}

// eventTime spaces events evenly across TimeSpread, oldest first.
func (r *Runner) eventTime(now time.Time, index int) time.Time {
	if r.cfg.TimeSpread <= 0 || r.cfg.Count == 0 {
		return now
	}
	step := r.cfg.TimeSpread / time.Duration(r.cfg.Count)
	return now.Add(-r.cfg.TimeSpread + time.Duration(index+1)*step)
}
