// Package jobs schedules housekeeping that runs beside the API.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// TokenPurger removes expired auth tokens and revocations.
type TokenPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// LimiterPruner forgets idle rate limiter buckets.
type LimiterPruner interface {
	Prune(idle time.Duration) int
}

// cronLogger routes cron's own logging, panics included, through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

type Scheduler struct {
	cron    *cron.Cron
	tokens  TokenPurger
	limiter LimiterPruner
	idle    time.Duration
	log     *zap.Logger
}

// NewScheduler registers the cleanup job on schedule. limiter may be nil when
// rate limiting is off.
func NewScheduler(schedule string, tokens TokenPurger, limiter LimiterPruner, idle time.Duration, log *zap.Logger) (*Scheduler, error) {
	log = log.Named("jobs")
	clog := cronLogger{log: log.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog)),
		),
		tokens:  tokens,
		limiter: limiter,
		idle:    idle,
		log:     log,
	}
	if _, err := s.cron.AddFunc(schedule, s.Cleanup); err != nil {
		return nil, fmt.Errorf("schedule cleanup %q: %w", schedule, err)
	}
	return s, nil
}

// Cleanup runs one pass of every housekeeping task.
func (s *Scheduler) Cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.tokens.PurgeExpired(ctx)
	if err != nil {
		s.log.Error("token cleanup failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("purged expired tokens", zap.Int64("count", n))
	}

	if s.limiter != nil {
		if pruned := s.limiter.Prune(s.idle); pruned > 0 {
			s.log.Debug("pruned idle rate limiters", zap.Int("count", pruned))
		}
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for a running job to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
