// Package workers provides the bounded background pool the object cache
// schedules resource loads on.
package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrStopped is returned by Submit after Stop
var ErrStopped = errors.New("worker pool stopped")

// Task is one unit of background work
type Task func(ctx context.Context)

type job struct {
	kind string
	fn   Task
}

// Pool runs submitted tasks on at most size goroutines at a time. Tasks are
// queued without bound, so a task may submit further tasks without blocking.
type Pool struct {
	name string
	size int
	sem  *semaphore.Weighted

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []job
	closed  bool
	started bool

	ctx     context.Context
	wg      sync.WaitGroup
	metrics *Metrics
	logger  *zap.Logger
}

// NewPool creates a pool; size <= 0 means one worker
func NewPool(name string, size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		name:    name,
		size:    size,
		sem:     semaphore.NewWeighted(int64(size)),
		metrics: NewMetrics(),
		logger:  logger.With(zap.String("pool", name)),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Size returns the concurrency limit
func (p *Pool) Size() int { return p.size }

// Start begins dispatching. ctx is handed to every task; cancelling it does
// not drop queued tasks, since a load once scheduled always runs.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.ctx = ctx

	p.logger.Debug("starting worker pool", zap.Int("workers", p.size))
	p.wg.Add(1)
	go p.dispatch()
}

// Submit queues fn under a kind label used for metrics
func (p *Pool) Submit(kind string, fn Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrStopped
	}
	p.queue = append(p.queue, job{kind: kind, fn: fn})
	p.metrics.recordQueued(kind)
	p.cond.Signal()
	return nil
}

// Stop rejects new tasks, runs everything already queued and waits for it
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	started := p.started
	p.cond.Broadcast()
	p.mu.Unlock()

	if !started {
		p.Start(context.Background())
	}
	p.wg.Wait()
	p.logger.Debug("worker pool stopped")
}

// Metrics returns the pool's counters
func (p *Pool) Metrics() *Metrics { return p.metrics }

func (p *Pool) next() (job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return job{}, false
	}
	j := p.queue[0]
	p.queue[0] = job{}
	p.queue = p.queue[1:]
	return j, true
}

func (p *Pool) dispatch() {
	defer p.wg.Done()
	for {
		j, ok := p.next()
		if !ok {
			return
		}
		// Background context: the acquire must not fail, queued work always runs
		_ = p.sem.Acquire(context.Background(), 1)
		p.wg.Add(1)
		go p.run(j)
	}
}

func (p *Pool) run(j job) {
	defer p.wg.Done()
	defer p.sem.Release(1)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked",
				zap.String("kind", j.kind),
				zap.String("panic", fmt.Sprint(r)),
			)
			p.metrics.recordDone(j.kind, time.Since(start), true)
			return
		}
		p.metrics.recordDone(j.kind, time.Since(start), false)
	}()
	j.fn(p.ctx)
}

// Metrics tracks per-kind task counts and timings
type Metrics struct {
	mu            sync.RWMutex
	queued        map[string]int64
	completed     map[string]int64
	panicked      map[string]int64
	totalDuration map[string]time.Duration
	maxDuration   map[string]time.Duration
}

// Stats is a snapshot for one task kind
type Stats struct {
	Kind        string
	Queued      int64
	Completed   int64
	Panicked    int64
	AvgDuration time.Duration
	MaxDuration time.Duration
}

// NewMetrics creates empty metrics
func NewMetrics() *Metrics {
	return &Metrics{
		queued:        make(map[string]int64),
		completed:     make(map[string]int64),
		panicked:      make(map[string]int64),
		totalDuration: make(map[string]time.Duration),
		maxDuration:   make(map[string]time.Duration),
	}
}

func (m *Metrics) recordQueued(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued[kind]++
}

func (m *Metrics) recordDone(kind string, d time.Duration, panicked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed[kind]++
	if panicked {
		m.panicked[kind]++
	}
	m.totalDuration[kind] += d
	if d > m.maxDuration[kind] {
		m.maxDuration[kind] = d
	}
}

// GetStats returns the snapshot for kind
func (m *Metrics) GetStats(kind string) Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		Kind:        kind,
		Queued:      m.queued[kind],
		Completed:   m.completed[kind],
		Panicked:    m.panicked[kind],
		MaxDuration: m.maxDuration[kind],
	}
	if s.Completed > 0 {
		s.AvgDuration = m.totalDuration[kind] / time.Duration(s.Completed)
	}
	return s
}
