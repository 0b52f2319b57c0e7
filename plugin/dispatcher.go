package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kantek-org/kantek/events"
	"github.com/kantek-org/kantek/events/schedulers"
	"github.com/kantek-org/kantek/events/schedulers/parallel"
	"github.com/kantek-org/kantek/platform"
)

// Dispatcher matches events against the registry and runs the matching handlers.
//
// Events are queued per chat on a shared worker pool: events of one chat are started in arrival order, events of different chats run in parallel. Every handler invocation is isolated; errors and panics are logged and counted, never propagated.
type Dispatcher struct {
	registry *Registry
	env      *Env
	logger   *slog.Logger
	sched    schedulers.Scheduler

	async sync.WaitGroup
}

type DispatcherConfig struct {
	Logger *slog.Logger
	// Size of the worker pool
	Workers int
	// Overrides the worker pool; mostly for tests. Receives the dispatcher's per-event function.
	Scheduler func(do func(context.Context, *events.Event) error) schedulers.Scheduler
}

func NewDispatcher(registry *Registry, env *Env, cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		registry: registry,
		env:      env,
		logger:   logger.With("system", "dispatcher"),
	}
	if env.Registry == nil {
		env.Registry = registry
	}
	if cfg.Scheduler != nil {
		d.sched = cfg.Scheduler(d.process)
	} else {
		workers := cfg.Workers
		if workers <= 0 {
			workers = 8
		}
		d.sched = parallel.NewScheduler(workers, "dispatch", logger, d.process)
	}
	return d
}

// Queues the event for its chat. Returns once the event is queued, not when handlers finish.
func (d *Dispatcher) Dispatch(ctx context.Context, evt *events.Event) error {
	if err := evt.Validate(); err != nil {
		return fmt.Errorf("dispatching event in chat %d: %w", evt.ChatID, err)
	}
	eventsDispatched.WithLabelValues(string(evt.Kind())).Inc()
	return d.sched.AddWork(ctx, evt.ChatKey(), evt)
}

// Blocks until all started async handlers have returned. Only meaningful once no more events are being processed (eg, after the source has stopped); use Shutdown otherwise.
func (d *Dispatcher) Wait() {
	d.async.Wait()
}

// Stops accepting events, drains queued work, and waits for async handlers.
func (d *Dispatcher) Shutdown() {
	d.sched.Shutdown()
	d.async.Wait()
}

func (d *Dispatcher) process(ctx context.Context, evt *events.Event) error {
	for _, m := range d.registry.Match(evt) {
		if m.Registration.Async {
			d.async.Add(1)
			go func(m Match) {
				defer d.async.Done()
				d.invoke(ctx, evt, m)
			}(m)
			continue
		}
		d.invoke(ctx, evt, m)
	}
	return nil
}

func (d *Dispatcher) invoke(ctx context.Context, evt *events.Event, m Match) {
	reg := m.Registration
	logger := d.logger.With("handler", reg.Name, "chat", evt.ChatID, "sender", evt.SenderID, "msg", evt.MessageID, "kind", evt.Kind())
	start := time.Now()
	handlerInvocations.WithLabelValues(reg.Name).Inc()

	// like an HTTP server, a panicking handler must not take down the delivery loop
	defer func() {
		if r := recover(); r != nil {
			handlerFailures.WithLabelValues(reg.Name, "panic").Inc()
			logger.Error("handler panicked", "err", r)
		}
		handlerDuration.WithLabelValues(reg.Name).Observe(time.Since(start).Seconds())
	}()

	c := NewContext(ctx, logger, evt, m.Groups, d.env)
	err := reg.Handler(c)
	switch {
	case err == nil:
		return
	case errors.Is(err, ErrValidation):
		handlerFailures.WithLabelValues(reg.Name, "validation").Inc()
		logger.Info("rejected command arguments", "err", err)
	case errors.Is(err, platform.ErrPermission):
		handlerFailures.WithLabelValues(reg.Name, "permission").Inc()
		logger.Warn("insufficient rights for handler", "err", err)
	default:
		handlerFailures.WithLabelValues(reg.Name, "error").Inc()
		logger.Error("handler failed", "err", err)
	}
}
