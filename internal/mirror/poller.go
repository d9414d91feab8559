package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/bryan-buckman/greadersync/internal/database"
)

// SyncTimeout bounds a single background sync.
const SyncTimeout = 10 * time.Minute

// Poller runs continuous syncing.
type Poller struct {
	mirror   *Mirror
	db       database.Store
	stopChan chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewPoller creates a background poller.
func NewPoller(m *Mirror, db database.Store) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		mirror:   m,
		db:       db,
		stopChan: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the polling loop. The first sync runs immediately.
func (p *Poller) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			interval, _ := p.db.GetPollingInterval()
			if interval < database.MinPollingIntervalMinutes {
				interval = database.MinPollingIntervalMinutes
			}
			p.mirror.log.Info("poller: syncing", "interval_minutes", interval)

			ctx, cancel := context.WithTimeout(p.ctx, SyncTimeout)
			res, err := p.mirror.Sync(ctx)
			cancel()

			if err != nil {
				p.mirror.log.Error("poller: sync failed", "error", err)
			} else {
				p.mirror.log.Info("poller: sync done",
					"new_items", res.Pull.NewItems,
					"pages", res.Pull.Pages,
					"pushed", res.Push.Pushed)
			}

			select {
			case <-p.stopChan:
				return
			case <-time.After(time.Duration(interval) * time.Minute):
			}
		}
	}()
}

// Stop stops the poller, cancelling a sync in flight.
func (p *Poller) Stop() {
	close(p.stopChan)
	p.cancel()
	p.wg.Wait()
}
