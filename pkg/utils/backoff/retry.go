/*
 * Copyright © AMD. 2025-2026. All rights reserved.
 */

package backoff

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
)

func Retry(f backoff.Operation, maxElapsedTime, maxInterval time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsedTime
	b.MaxInterval = maxInterval
	if err := backoff.Retry(f, b); err != nil {
		return err
	}
	return nil
}

// RetryTransient retries f with bounded exponential backoff, giving up
// immediately on errors that are not classified retryable.
func RetryTransient(f backoff.Operation, maxElapsedTime, maxInterval time.Duration) error {
	wrapped := func() error {
		err := f()
		if err != nil && !avserrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return Retry(wrapped, maxElapsedTime, maxInterval)
}

func ConflictRetry(f backoff.Operation, count int, interval time.Duration) error {
	for i := 0; i < count; i++ {
		err := f()
		if err == nil {
			break
		}
		if i == count-1 || !avserrors.IsConflict(err) {
			return err
		}
		time.Sleep(interval)
	}
	return nil
}
