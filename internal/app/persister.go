package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/core"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/domain"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var (
	ErrPersistQueueFull = errors.New("persist queue full")
	ErrPersisterStopped = errors.New("persister stopped")
)

// PersistJob is one chat message waiting to be stored.
type PersistJob struct {
	SID       core.SessionID
	RoomID    domain.RoomID
	SenderID  domain.UserID
	Content   string
	MessageID string
}

type PersisterOptions struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// Persister hands chat messages to the persistence bridge off the routing
// path. Submit never blocks; a full queue is reported to the caller.
type Persister struct {
	bridge core.PersistenceBridge
	opts   PersisterOptions
	queue  chan PersistJob

	mu       sync.RWMutex
	stopped  bool
	onResult func(job PersistJob, storedID string, err error)
	wg       conc.WaitGroup
}

func NewPersister(bridge core.PersistenceBridge, opts PersisterOptions) *Persister {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	return &Persister{
		bridge: bridge,
		opts:   opts,
		queue:  make(chan PersistJob, opts.QueueSize),
	}
}

// Start launches the workers. They run until Stop drains the queue.
func (p *Persister) Start(ctx context.Context) {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Go(func() { p.work(ctx) })
	}
	log.Info().Str("module", "app.persister").Int("workers", p.opts.Workers).Int("queue", p.opts.QueueSize).Msg("persister started")
}

// OnResult registers a callback run from a worker after each attempt.
func (p *Persister) OnResult(fn func(job PersistJob, storedID string, err error)) {
	p.mu.Lock()
	p.onResult = fn
	p.mu.Unlock()
}

func (p *Persister) Submit(job PersistJob) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPersisterStopped
	}
	select {
	case p.queue <- job:
		return nil
	default:
		metrics.Persisted.WithLabelValues("queue_full").Inc()
		return ErrPersistQueueFull
	}
}

// Stop refuses new jobs and waits for queued ones to finish.
func (p *Persister) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
	log.Info().Str("module", "app.persister").Msg("persister stopped")
}

func (p *Persister) work(ctx context.Context) {
	for job := range p.queue {
		p.persist(ctx, job)
	}
}

func (p *Persister) persist(parent context.Context, job PersistJob) {
	// Detached from parent cancellation so shutdown still drains the queue.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), p.opts.Timeout)
	defer cancel()

	id, err := p.bridge.PersistChatMessage(ctx, job.RoomID, job.SenderID, job.Content)
	if err != nil {
		metrics.Persisted.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("module", "app.persister").Str("room", string(job.RoomID)).Str("message", job.MessageID).Msg("persist failed")
	} else {
		metrics.Persisted.WithLabelValues("ok").Inc()
	}
	p.mu.RLock()
	fn := p.onResult
	p.mu.RUnlock()
	if fn != nil {
		fn(job, id, err)
	}
}
