package service

import (
	"context"
	"errors"
	"time"

	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/lock"
)

// WriteGuard serialises a tenant's check-then-write sequences. A zero
// WriteGuard does not lock at all.
type WriteGuard struct {
	Locker  lock.Locker
	Wait    time.Duration
	Metrics *MetricsService
}

// acquire takes the tenant lock, waiting at most g.Wait.
func (g WriteGuard) acquire(ctx context.Context, schoolID string) (lock.Unlock, error) {
	if g.Locker == nil {
		return func() {}, nil
	}
	lockCtx := ctx
	if g.Wait > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, g.Wait)
		defer cancel()
	}

	start := time.Now()
	unlock, err := g.Locker.Lock(lockCtx, schoolID)
	g.Metrics.ObserveLockWait(time.Since(start))
	if err == nil {
		return unlock, nil
	}

	switch {
	case ctx.Err() != nil:
		return nil, appErrors.Wrap(ctx.Err(), appErrors.ErrCanceled.Code, appErrors.ErrCanceled.Status, "request canceled while waiting for tenant lock")
	case errors.Is(err, lock.ErrTimeout):
		return nil, appErrors.Wrap(err, appErrors.ErrLockTimeout.Code, appErrors.ErrLockTimeout.Status, appErrors.ErrLockTimeout.Message)
	default:
		return nil, appErrors.Storage(err, "failed to acquire tenant lock")
	}
}
