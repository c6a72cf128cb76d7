// Package tasks runs fire-and-forget background work, decoupling the
// redirect response from stats persistence. Work submitted here may be
// dropped under saturation and is never retried; callers must not depend on
// it for correctness.
package tasks

import (
	"sync"

	"github.com/rs/zerolog"
)

// Runner executes submitted functions on a fixed pool of workers fed by a
// bounded queue.
type Runner struct {
	jobs    chan func()
	wg      sync.WaitGroup
	log     zerolog.Logger
	closeMu sync.Mutex
	closed  bool
}

// NewRunner starts workers goroutines draining a queue of the given size.
func NewRunner(workers, queueSize int, log zerolog.Logger) *Runner {
	r := &Runner{
		jobs: make(chan func(), queueSize),
		log:  log.With().Str("component", "tasks").Logger(),
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.work()
	}
	return r
}

func (r *Runner) work() {
	defer r.wg.Done()
	for job := range r.jobs {
		r.run(job)
	}
}

func (r *Runner) run(job func()) {
	defer func() {
		if v := recover(); v != nil {
			r.log.Error().Interface("panic", v).Msg("background task panicked")
		}
	}()
	job()
}

// Submit enqueues a job without blocking. When the queue is full the job is
// dropped and logged; an occasional lost stats update is accepted.
func (r *Runner) Submit(job func()) {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.jobs <- job:
	default:
		r.log.Warn().Msg("task queue full, dropping job")
	}
}

// Close stops accepting work and waits for queued jobs to finish.
func (r *Runner) Close() {
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return
	}
	r.closed = true
	close(r.jobs)
	r.closeMu.Unlock()
	r.wg.Wait()
}
