package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

// RateLimiter paces the frame loop to a target rate. It only ever waits: an iteration that ran
// over budget continues immediately and later iterations do not speed up to catch up.
type RateLimiter struct {
	clock    clock.Clock
	interval time.Duration
	limiter  *rate.Limiter
	overruns atomic.Int64
}

// NewRateLimiter returns a limiter for `fps` iterations per second.
func NewRateLimiter(fps float64, clk clock.Clock) (*RateLimiter, error) {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return nil, errors.Errorf("target fps must be a positive number, got %v", fps)
	}
	if clk == nil {
		clk = clock.New()
	}
	return &RateLimiter{
		clock:    clk,
		interval: time.Duration(float64(time.Second) / fps),
		// A burst of one token keeps a stalled loop from bursting afterwards.
		limiter: rate.NewLimiter(rate.Limit(fps), 1),
	}, nil
}

// Interval is the minimum time between two iterations.
func (rl *RateLimiter) Interval() time.Duration {
	return rl.interval
}

// Overruns counts iterations whose work alone took longer than the interval.
func (rl *RateLimiter) Overruns() int64 {
	return rl.overruns.Load()
}

// Pace blocks until at least one interval has passed since `loopStart` and since the previous
// call returned. It returns early with the context's error if ctx is done.
func (rl *RateLimiter) Pace(ctx context.Context, loopStart time.Time) error {
	now := rl.clock.Now()
	untilDeadline := loopStart.Add(rl.interval).Sub(now)
	if untilDeadline <= 0 {
		rl.overruns.Inc()
	}

	delay := rl.limiter.ReserveN(now, 1).DelayFrom(now)
	if untilDeadline > delay {
		delay = untilDeadline
	}
	if delay <= 0 {
		return nil
	}

	timer := rl.clock.Timer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
