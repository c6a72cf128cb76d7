// Package expiry runs the periodic batch sweep that removes links past
// their expiration. One-shot deferred deletions armed at create time handle
// the common case; this sweep is the recovery mechanism for anything they
// miss, such as timers lost to a restart.
package expiry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Store is the slice of the link service the sweeper needs.
type Store interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// Sweeper periodically sweeps expired links from store and cache.
type Sweeper struct {
	store    Store
	interval time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// NewSweeper creates a sweeper running at the given interval.
func NewSweeper(store Store, interval time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		log:      log.With().Str("component", "sweeper").Logger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop in the background.
func (s *Sweeper) Start() {
	go s.loop()
}

func (s *Sweeper) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *Sweeper) sweep() {
	count, err := s.store.CleanupExpired(context.Background())
	if err != nil {
		s.log.Error().Err(err).Msg("sweep failed")
		return
	}
	if count > 0 {
		s.log.Info().Int("removed", count).Msg("swept expired links")
	}
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
	})
}
