package billing

import (
	"context"
	"time"
)

// backoffDelay espera exponencial: base·2^(try−1), con tope en limit.
func backoffDelay(base, limit time.Duration, try int) time.Duration {
	if try < 1 {
		try = 1
	}
	d := base
	for i := 1; i < try; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}

// sleepCtx duerme d o hasta que ctx se cancele.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
