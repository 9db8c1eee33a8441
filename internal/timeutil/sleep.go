// SPDX-License-Identifier: GPL-3.0-only

// Package timeutil provides cancellable sleeps shared by the sampling and
// transition loops.
package timeutil

import (
	"context"
	"time"
)

// SleepFunc pauses for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep pauses the current goroutine for d. It returns ctx.Err() if the
// context is cancelled before the duration elapses.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
