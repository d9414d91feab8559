package mirror

import (
	"context"
	"sync"
	"time"
)

// pacer enforces a minimum delay between successive requests to the server.
type pacer struct {
	mu    sync.Mutex
	delay time.Duration
	last  time.Time
}

func newPacer(delay time.Duration) *pacer {
	return &pacer{delay: delay}
}

// wait blocks until delay has passed since the previous request and then
// records the new request time.
func (p *pacer) wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.delay > 0 && !p.last.IsZero() {
		if elapsed := time.Since(p.last); elapsed < p.delay {
			timer := time.NewTimer(p.delay - elapsed)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}
	p.last = time.Now()
	return nil
}
