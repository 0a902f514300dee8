package utils

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"go.viam.com/peoplecount/logging"
)

// SlowLogger warns every few seconds until the returned func is called or `ctx` is done. The first
// warning fires after `after`; later ones back off to twice that.
func SlowLogger(
	ctx context.Context,
	clk clock.Clock,
	after time.Duration,
	msg, fieldName string,
	fieldVal interface{},
	logger logging.Logger,
) func() {
	ctxWithCancel, cancel := context.WithCancel(ctx)
	startTime := clk.Now()
	timer := clk.Timer(after)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-timer.C:
				elapsed := clk.Since(startTime).Round(time.Millisecond).String()
				logger.CWarnw(ctx, msg, fieldName, fieldVal, "time_elapsed", elapsed)
				timer.Reset(2 * after)
			case <-ctxWithCancel.Done():
				return
			}
		}
	}()
	return func() {
		cancel()
		timer.Stop()
		<-done
	}
}
