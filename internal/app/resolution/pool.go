package resolution

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trakify/internal/domain/track"
	"github.com/osa030/trakify/internal/infra/storage"
)

// Config holds pool configuration.
type Config struct {
	Workers       int           // Number of concurrent resolutions
	QueueSize     int           // Jobs waiting for a worker
	Timeout       time.Duration // Per-job resolver deadline
	PrefetchDelay time.Duration // Pause between bulk prefetch submissions
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		Workers:       2,
		QueueSize:     64,
		Timeout:       120 * time.Second,
		PrefetchDelay: 1500 * time.Millisecond,
	}
}

// Pool runs resolution jobs on a fixed set of workers.
// At most one job per item ID is queued or running at any time.
type Pool struct {
	config   Config
	resolver Resolver
	dir      *storage.Dir

	jobs chan track.QueueItem

	mu       sync.Mutex
	inFlight map[string]struct{}
	closed   bool
	complete CompleteFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a new resolution pool. Call Start before submitting.
func NewPool(config Config, resolver Resolver, dir *storage.Dir) *Pool {
	def := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.PrefetchDelay < 0 {
		config.PrefetchDelay = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		config:   config,
		resolver: resolver,
		dir:      dir,
		jobs:     make(chan track.QueueItem, config.QueueSize),
		inFlight: make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the workers. complete receives every finished job.
func (p *Pool) Start(complete CompleteFunc) {
	p.mu.Lock()
	p.complete = complete
	p.mu.Unlock()

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	zlog.Info().Msgf("resolution: pool started: workers=%d queue=%d timeout=%v",
		p.config.Workers, p.config.QueueSize, p.config.Timeout)
}

// Submit queues a job for item without blocking.
func (p *Pool) Submit(item track.QueueItem) Admission {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return Rejected
	}
	if _, ok := p.inFlight[item.ID]; ok {
		return AlreadyInFlight
	}

	select {
	case p.jobs <- item:
		p.inFlight[item.ID] = struct{}{}
		return Accepted
	default:
		zlog.Warn().Msgf("resolution: job queue full, rejecting: title=%s", item.Title)
		return Rejected
	}
}

// InFlight reports whether a job for the item is queued or running.
func (p *Pool) InFlight(itemID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inFlight[itemID]
	return ok
}

// Prefetch resolves the given items in the background, one submission per
// PrefetchDelay. Each item is claimed right before it is submitted, so items
// that left the queue or were resolved meanwhile are skipped.
func (p *Pool) Prefetch(ctx context.Context, itemIDs []string, claim ClaimFunc) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()

		submitted := 0
		for _, id := range itemIDs {
			if submitted > 0 && !p.pause(ctx) {
				return
			}

			item, ok := claim(id)
			if !ok {
				continue
			}
			switch p.submitWait(ctx, item) {
			case Accepted:
				submitted++
			case AlreadyInFlight:
				// The running job reports for the item.
			case Rejected:
				p.report(Result{ItemID: item.ID, Title: item.Title, Err: errors.Wrap(ErrResolutionFailed, "prefetch cancelled")})
				return
			}
		}
		zlog.Debug().Msgf("resolution: prefetch finished: requested=%d submitted=%d", len(itemIDs), submitted)
	}()
}

// Close stops the workers and waits for them. Queued jobs are abandoned.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

// submitWait queues a job, waiting for room in the queue.
func (p *Pool) submitWait(ctx context.Context, item track.QueueItem) Admission {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Rejected
	}
	if _, ok := p.inFlight[item.ID]; ok {
		p.mu.Unlock()
		return AlreadyInFlight
	}
	p.inFlight[item.ID] = struct{}{}
	p.mu.Unlock()

	select {
	case p.jobs <- item:
		return Accepted
	case <-ctx.Done():
	case <-p.ctx.Done():
	}

	p.mu.Lock()
	delete(p.inFlight, item.ID)
	p.mu.Unlock()
	return Rejected
}

func (p *Pool) pause(ctx context.Context) bool {
	if p.config.PrefetchDelay == 0 {
		return true
	}
	timer := time.NewTimer(p.config.PrefetchDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-p.ctx.Done():
		return false
	}
}

func (p *Pool) worker(n int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case item := <-p.jobs:
			res := p.resolve(item)

			p.mu.Lock()
			delete(p.inFlight, item.ID)
			p.mu.Unlock()

			zlog.Debug().Msgf("resolution: job finished: worker=%d title=%s cached=%t err=%v", n, item.Title, res.Cached, res.Err)
			p.report(res)
		}
	}
}

// resolve produces content for one item. The content directory is checked
// first; the resolver runs only on a cache miss.
func (p *Pool) resolve(item track.QueueItem) Result {
	res := Result{ItemID: item.ID, Title: item.Title}

	if err := p.dir.Ensure(); err != nil {
		res.Err = err
		return res
	}

	target := p.dir.PathFor(item.Artist, item.Title)
	if storage.Exists(target) {
		res.ContentRef = target
		res.Cached = true
		return res
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.config.Timeout)
	defer cancel()

	path, err := p.resolver.Resolve(ctx, item.Query(), target)
	switch {
	case err != nil:
		res.Err = errors.Mark(errors.Wrapf(err, "failed to resolve %q", item.Title), ErrResolutionFailed)
	case path == "":
		res.Err = errors.Wrapf(ErrResolutionFailed, "no content found for %q", item.Title)
	default:
		res.ContentRef = path
	}
	return res
}

func (p *Pool) report(res Result) {
	p.mu.Lock()
	complete := p.complete
	p.mu.Unlock()

	if complete != nil {
		complete(res)
	}
}
