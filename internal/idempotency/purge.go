package idempotency

import (
	"context"
	"time"

	"sponsorrail/internal/logtrace"
)

// RunPurge drops expired records every interval until ctx is done. A
// non-positive interval disables it.
func RunPurge(ctx context.Context, p Purger, interval time.Duration) {
	if p == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := p.Purge(ctx, now)
			fields := logtrace.Fields{logtrace.FieldModule: "idempotency", "purged": n}
			if err != nil {
				fields[logtrace.FieldError] = err.Error()
				logtrace.Warn(ctx, "idempotency purge failed", fields)
				continue
			}
			logtrace.Debug(ctx, "idempotency records purged", fields)
		}
	}
}
