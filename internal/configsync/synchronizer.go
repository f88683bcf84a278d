package configsync

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/canmogol/archura-router/internal/config"
	"github.com/canmogol/archura-router/internal/logging"
)

// Synchronizer ties the fetcher and the listener together: it loads
// the initial configuration, then reloads on every notification server
// connect and invalidation message. Lazily cached domains are cleared
// before each reload so stale entries cannot outlive a push.
type Synchronizer struct {
	store    *config.Store
	fetcher  *Fetcher
	listener *Listener
	events   chan Event
	ready    atomic.Bool
}

// Ready reports whether the initial configuration fetch has completed.
func (s *Synchronizer) Ready() bool {
	return s.ready.Load()
}

// NewSynchronizer wires a synchronizer around store and fetcher.
func NewSynchronizer(store *config.Store, fetcher *Fetcher) *Synchronizer {
	events := make(chan Event, 8)
	return &Synchronizer{
		store:    store,
		fetcher:  fetcher,
		listener: NewListener(store, events),
		events:   events,
	}
}

// Run blocks until ctx is canceled. The initial fetch retries forever,
// so callers should run this in its own goroutine when serving must
// start before configuration arrives.
func (s *Synchronizer) Run(ctx context.Context) error {
	if err := s.fetcher.FetchGlobalWithRetry(ctx); err != nil {
		return err
	}
	s.ready.Store(true)

	go s.listener.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-s.events:
			s.handle(ctx, event)
		}
	}
}

func (s *Synchronizer) handle(ctx context.Context, event Event) {
	switch event.Type {
	case EventConnected:
		s.reload(ctx)
	case EventMessage:
		logging.Info("configuration invalidation received", zap.String("message", event.Message))
		s.reload(ctx)
	case EventDisconnected:
		// The listener reconnects on its own; the reload happens on
		// the connect event that follows.
	}
}

func (s *Synchronizer) reload(ctx context.Context) {
	s.store.ClearDomains()
	if err := s.fetcher.FetchGlobalWithRetry(ctx); err != nil {
		logging.Error("configuration reload abandoned", zap.Error(err))
	}
}
