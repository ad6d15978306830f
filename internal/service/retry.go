package service

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/support-core/internal/repository"
	apperrors "github.com/spec-kit/support-core/pkg/util/errorutil"
)

var retryBackoff = 25 * time.Millisecond

// withRetry runs fn and repeats it once when the store reports a transient
// failure. A second transient failure, or a context deadline, surfaces as
// a retryable unavailable error. fn must be safe to run twice; in practice
// it wraps a whole transaction.
func withRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if repository.IsTransient(err) && ctx.Err() == nil {
		timer := time.NewTimer(retryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return apperrors.NewUnavailable(err)
		case <-timer.C:
		}
		err = fn()
		if err == nil {
			return nil
		}
	}
	if repository.IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewUnavailable(err)
	}
	return err
}
