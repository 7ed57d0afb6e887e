// Package scheduler implements the Scheduler (spec §4.11): a task registry
// keyed by name supporting cron, one-shot timeout and repeating interval
// tasks, with cluster-wide cron firings serialised through the Lock
// Manager so at most one replica executes each tick.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/lock"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/logging"
	"go.uber.org/zap"
)

// Kind names the scheduling strategy a registered task runs under.
type Kind string

const (
	KindCron     Kind = "cron"
	KindTimeout  Kind = "timeout"
	KindInterval Kind = "interval"
)

// Task is a unit of scheduled work. Implementations should be short; long
// work belongs behind a goroutine the task itself spawns and returns from
// promptly (spec §4.2's Event Bus carries the same constraint for handlers).
type Task func(ctx context.Context)

// Registry is the Scheduler's task registry. One Registry exists per
// replica process; cron firings additionally coordinate across replicas
// via lockTTL-bounded scheduled_task_{name} locks.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*entry

	cron    *cron.Cron
	locks   *lock.Manager
	lockTTL time.Duration
}

type entry struct {
	kind   Kind
	cancel func()
}

// New constructs a Registry and starts its cron driver. lockTTL bounds how
// long a cron firing's cluster-wide lock is held; it should comfortably
// exceed the slowest registered cron task's expected runtime, since a task
// still running past lockTTL no longer blocks the next replica's attempt at
// the following tick.
func New(locks *lock.Manager, lockTTL time.Duration) *Registry {
	c := cron.New()
	c.Start()
	return &Registry{
		tasks:   make(map[string]*entry),
		cron:    c,
		locks:   locks,
		lockTTL: lockTTL,
	}
}

// RegisterCron registers fn to run on the given cron expression (robfig/cron
// syntax, including "@every 1m"-style descriptors) under the cluster-wide
// scheduled_task_{name} lock (spec §4.11): at most one replica executes any
// given firing. Registering a task under a name already in use replaces the
// previous registration (spec §4.11).
func (r *Registry) RegisterCron(name, expr string, fn Task) error {
	entryID, err := r.cron.AddFunc(expr, func() { r.runUnderLock(name, fn) })
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked(name)
	r.tasks[name] = &entry{kind: KindCron, cancel: func() { r.cron.Remove(entryID) }}
	return nil
}

func (r *Registry) runUnderLock(name string, fn Task) {
	ctx := context.Background()
	var names lock.Names
	l, err := r.locks.Acquire(ctx, names.ScheduledTask(name), r.lockTTL)
	if err != nil {
		logging.Warn(ctx, "scheduler: could not acquire cron lock", zap.String("task", name), zap.Error(err))
		return
	}
	if l == nil {
		return // another replica already won this firing
	}
	defer func() {
		if err := r.locks.Release(ctx, l); err != nil {
			logging.Warn(ctx, "scheduler: could not release cron lock", zap.String("task", name), zap.Error(err))
		}
	}()
	fn(ctx)
}

// RegisterTimeout registers fn to fire once after delay (spec §4.11). The
// registration self-removes once fn has run; cancelling before then via
// Cancel is idempotent.
func (r *Registry) RegisterTimeout(name string, delay time.Duration, fn Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked(name)

	timer := time.AfterFunc(delay, func() {
		fn(context.Background())
		r.mu.Lock()
		delete(r.tasks, name)
		r.mu.Unlock()
	})
	r.tasks[name] = &entry{kind: KindTimeout, cancel: func() { timer.Stop() }}
}

// RegisterInterval registers fn to fire every interval until cancelled
// (spec §4.11). Unlike cron tasks, interval firings are replica-local: a
// task that needs cluster-wide exclusivity should be registered as cron
// with an "@every" expression instead.
func (r *Registry) RegisterInterval(name string, interval time.Duration, fn Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked(name)

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn(context.Background())
			case <-stop:
				return
			}
		}
	}()
	r.tasks[name] = &entry{kind: KindInterval, cancel: func() { close(stop) }}
}

// Cancel removes a registered task by name. Idempotent: cancelling an
// unknown or already-cancelled name is a no-op (spec §4.11).
func (r *Registry) Cancel(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked(name)
}

func (r *Registry) cancelLocked(name string) {
	if e, ok := r.tasks[name]; ok {
		e.cancel()
		delete(r.tasks, name)
	}
}

// Kind reports the kind a registered task was last registered under, and
// whether name is currently registered.
func (r *Registry) Kind(name string) (Kind, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[name]
	if !ok {
		return "", false
	}
	return e.kind, true
}

// Stop cancels every registered task and stops the cron driver, waiting up
// to ctx's deadline for in-flight cron jobs to finish.
func (r *Registry) Stop(ctx context.Context) {
	r.mu.Lock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	for _, name := range names {
		r.cancelLocked(name)
	}
	r.mu.Unlock()

	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
