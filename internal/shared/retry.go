package shared

import (
	"context"
	"log/slog"
	"time"
)

const (
	conflictRetries   = 3
	conflictBaseDelay = 50 * time.Millisecond
)

// RetryOnConflict runs op, retrying SQLite busy/locked failures with
// exponential backoff (50ms, 100ms). Other errors are returned at once.
func RetryOnConflict(ctx context.Context, what string, op func() error) error {
	var err error
	for i := 0; i < conflictRetries; i++ {
		err = op()
		if err == nil || !IsSQLiteConflictError(err) {
			return err
		}
		if i == conflictRetries-1 {
			break
		}
		delay := conflictBaseDelay * time.Duration(1<<i)
		slog.Debug("Database locked, retrying", "op", what, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return err
		}
	}
	return err
}
