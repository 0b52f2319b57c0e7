package parallel

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kantek-org/kantek/events"
	"github.com/kantek-org/kantek/events/schedulers"

	"github.com/prometheus/client_golang/prometheus"
)

var ErrShutdown = errors.New("scheduler is shut down")

// Scheduler is a parallel scheduler that will run work on a fixed number of workers.
//
// Work for a single key is handed to at most one worker at a time, so items with the same key are processed in the order they were added. AddWork never waits for a worker: the head item of each idle key goes onto a ready queue that workers pull from.
type Scheduler struct {
	maxConcurrency int

	do func(context.Context, *events.Event) error

	lk      sync.Mutex
	cond    *sync.Cond
	active  map[string][]*consumerTask
	ready   []*consumerTask
	running int
	closed  bool
	workers sync.WaitGroup

	ident string

	// metrics
	itemsAdded     prometheus.Counter
	itemsProcessed prometheus.Counter
	itemsActive    prometheus.Counter
	workersActive  prometheus.Gauge
	keysQueued     prometheus.Gauge

	log *slog.Logger
}

var _ schedulers.Scheduler = (*Scheduler)(nil)

func NewScheduler(maxC int, ident string, logger *slog.Logger, do func(context.Context, *events.Event) error) *Scheduler {
	if maxC < 1 {
		maxC = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Scheduler{
		maxConcurrency: maxC,

		do: do,

		active: make(map[string][]*consumerTask),

		ident: ident,

		itemsAdded:     schedulers.WorkItemsAdded.WithLabelValues(ident, "parallel"),
		itemsProcessed: schedulers.WorkItemsProcessed.WithLabelValues(ident, "parallel"),
		itemsActive:    schedulers.WorkItemsActive.WithLabelValues(ident, "parallel"),
		workersActive:  schedulers.WorkersActive.WithLabelValues(ident, "parallel"),
		keysQueued:     schedulers.KeysQueued.WithLabelValues(ident, "parallel"),

		log: logger.With("system", "parallel-scheduler", "pool", ident),
	}
	p.cond = sync.NewCond(&p.lk)

	p.workers.Add(maxC)
	for i := 0; i < maxC; i++ {
		go p.worker()
	}

	p.workersActive.Set(float64(maxC))

	return p
}

// Stops accepting work, waits for all queued and in-flight work to finish, then stops the workers.
func (p *Scheduler) Shutdown() {
	p.lk.Lock()
	if p.closed {
		p.lk.Unlock()
		return
	}
	p.closed = true
	p.cond.Broadcast()
	p.lk.Unlock()

	p.log.Info("shutting down parallel scheduler")

	p.workers.Wait()

	p.workersActive.Set(0)
	p.log.Info("parallel scheduler shutdown complete")
}

type consumerTask struct {
	ctx context.Context
	key string
	val *events.Event
}

// Queues val behind any pending work for key. Returns without waiting for a worker.
func (p *Scheduler) AddWork(ctx context.Context, key string, val *events.Event) error {
	t := &consumerTask{
		ctx: ctx,
		key: key,
		val: val,
	}
	p.lk.Lock()
	defer p.lk.Unlock()
	if p.closed {
		return ErrShutdown
	}
	p.itemsAdded.Inc()

	if a, ok := p.active[key]; ok {
		p.active[key] = append(a, t)
		return nil
	}

	p.active[key] = []*consumerTask{}
	p.keysQueued.Inc()
	p.ready = append(p.ready, t)
	p.cond.Signal()
	return nil
}

// Waits for the next ready item. Returns nil once shut down with nothing left queued or running.
func (p *Scheduler) next() *consumerTask {
	p.lk.Lock()
	defer p.lk.Unlock()
	for len(p.ready) == 0 {
		// a running item may still queue its key's successor
		if p.closed && p.running == 0 {
			return nil
		}
		p.cond.Wait()
	}
	work := p.ready[0]
	p.ready[0] = nil
	p.ready = p.ready[1:]
	p.running++
	return work
}

// Releases the key of a finished item, readying its successor if one was queued.
func (p *Scheduler) finish(work *consumerTask) {
	p.lk.Lock()
	defer p.lk.Unlock()
	p.running--

	rem, ok := p.active[work.key]
	if !ok {
		p.log.Error("should always have an 'active' entry if a worker is processing a job")
	}
	if len(rem) == 0 {
		delete(p.active, work.key)
		p.keysQueued.Dec()
	} else {
		p.ready = append(p.ready, rem[0])
		p.active[work.key] = rem[1:]
	}
	// wakes idle workers for the successor, and lets them exit after the last item of a shutdown
	p.cond.Broadcast()
}

func (p *Scheduler) worker() {
	defer p.workers.Done()
	for {
		work := p.next()
		if work == nil {
			return
		}

		p.itemsActive.Inc()
		if err := p.do(work.ctx, work.val); err != nil {
			p.log.Error("event handler failed", "err", err, "key", work.key)
		}
		p.itemsProcessed.Inc()

		p.finish(work)
	}
}
