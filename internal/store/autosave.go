package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/conduit-lang/objrt/runtime/object"
)

// ErrAlreadyTracked is returned when a key is tracked twice
var ErrAlreadyTracked = errors.New("key already tracked")

type trackedObject struct {
	ref     *object.WeakRef
	handler object.HandlerID
	notify  object.WeakNotifyID
}

// Autosaver writes property changes of tracked instances to a backend in
// the background. Each tracked instance is held weakly; when it is
// finalized its last changes are saved and it is untracked.
type Autosaver struct {
	backend Backend
	tracker *ChangeTracker
	queue   *Queue
	logger  *zap.Logger

	mu      sync.Mutex
	tracked map[string]*trackedObject

	// saving serializes saves of the same key
	saving sync.Map
}

// NewAutosaver creates an autosaver writing to backend with the given
// number of workers
func NewAutosaver(backend Backend, workers int, logger *zap.Logger) *Autosaver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Autosaver{
		backend: backend,
		tracker: NewChangeTracker(),
		queue:   NewQueue(workers, 0, logger),
		logger:  logger,
		tracked: make(map[string]*trackedObject),
	}
}

// Start starts the save workers
func (a *Autosaver) Start() {
	a.queue.Start()
}

// Track saves obj under key and starts recording its property changes
func (a *Autosaver) Track(ctx context.Context, key string, obj *object.Object) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.tracked[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyTracked, key)
	}

	snap, err := Capture(obj)
	if err != nil {
		return err
	}
	if err := a.backend.Put(ctx, key, snap); err != nil {
		return fmt.Errorf("failed to save '%s': %w", key, err)
	}
	a.tracker.Begin(key, snap)

	handler, err := obj.ConnectNotify("", func(o *object.Object, pspec *object.ParamSpec) {
		a.record(key, o, pspec)
	})
	if err != nil {
		a.tracker.Forget(key)
		return err
	}
	notify := obj.AddWeakNotify(func(*object.Object) {
		a.finalized(key)
	})

	a.tracked[key] = &trackedObject{ref: obj.Downgrade(), handler: handler, notify: notify}
	a.logger.Debug("tracking instance",
		zap.String("key", key),
		zap.String("instance", obj.String()))
	return nil
}

// Untrack saves pending changes of key and stops tracking it
func (a *Autosaver) Untrack(ctx context.Context, key string) error {
	a.mu.Lock()
	t, ok := a.tracked[key]
	delete(a.tracked, key)
	a.mu.Unlock()

	if !ok {
		return nil
	}
	if obj := t.ref.Upgrade(); obj != nil {
		_ = obj.Disconnect(t.handler)
		obj.RemoveWeakNotify(t.notify)
		obj.Unref()
	}
	t.ref.Clear()

	err := a.save(ctx, key)
	a.release(key)
	return err
}

// Tracked returns the tracked keys in sorted order
func (a *Autosaver) Tracked() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := make([]string, 0, len(a.tracked))
	for k := range a.tracked {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Pending returns the unsaved changes of key
func (a *Autosaver) Pending(key string) []PropertyChange {
	return a.tracker.Changes(key)
}

// Flush saves every pending change synchronously
func (a *Autosaver) Flush(ctx context.Context) error {
	var errs []error
	for _, key := range a.tracker.DirtyKeys() {
		if err := a.save(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown untracks every instance, drains the workers and saves what is
// left
func (a *Autosaver) Shutdown(ctx context.Context) error {
	var errs []error
	for _, key := range a.Tracked() {
		if err := a.Untrack(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	a.queue.Shutdown()
	if err := a.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *Autosaver) record(key string, obj *object.Object, pspec *object.ParamSpec) {
	if !Persistable(pspec) {
		return
	}
	v, err := obj.Property(pspec.Name())
	if err != nil {
		return
	}
	if a.tracker.Record(key, pspec.Name(), v.Interface()) {
		a.enqueue(key, false)
	}
}

// finalized runs during teardown of a tracked instance
func (a *Autosaver) finalized(key string) {
	a.mu.Lock()
	delete(a.tracked, key)
	a.mu.Unlock()
	a.enqueue(key, true)
}

func (a *Autosaver) enqueue(key string, last bool) {
	task := Task{
		Name: "save " + key,
		Fn: func(ctx context.Context) error {
			err := a.save(ctx, key)
			if last {
				a.release(key)
			}
			return err
		},
	}
	if err := a.queue.Enqueue(task); err != nil {
		a.logger.Debug("save not queued, saving inline",
			zap.String("key", key),
			zap.Error(err))
		_ = task.Fn(context.Background())
	}
}

func (a *Autosaver) save(ctx context.Context, key string) error {
	l, _ := a.saving.LoadOrStore(key, &sync.Mutex{})
	mu := l.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	snap, taken := a.tracker.Take(key)
	if snap == nil {
		return nil
	}
	if err := a.backend.Merge(ctx, key, snap); err != nil {
		a.tracker.Requeue(key, taken)
		a.logger.Warn("autosave failed",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to save '%s': %w", key, err)
	}
	a.logger.Debug("autosaved",
		zap.String("key", key),
		zap.Strings("properties", snap.Names()))
	return nil
}

// release drops the change log and save lock of an untracked key. A key
// tracked again in the meantime keeps its lock.
func (a *Autosaver) release(key string) {
	a.tracker.Forget(key)
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.tracked[key]; !ok {
		a.saving.Delete(key)
	}
}
