package store

import (
	"reflect"
	"sort"
	"sync"
)

// PropertyChange represents a change to a single property
type PropertyChange struct {
	Property string
	OldValue any
	NewValue any
}

type trackedState struct {
	typeName string
	original map[string]any
	changes  map[string]*PropertyChange
	pending  bool
}

// ChangeTracker tracks unsaved property changes per key. A change that
// returns a property to its saved value is dropped.
type ChangeTracker struct {
	mu      sync.RWMutex
	entries map[string]*trackedState
}

// NewChangeTracker creates an empty tracker
func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{entries: make(map[string]*trackedState)}
}

// Begin starts tracking key with snap as the saved state
func (ct *ChangeTracker) Begin(key string, snap *Snapshot) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.entries[key] = &trackedState{
		typeName: snap.Type,
		original: snap.clone().Properties,
		changes:  make(map[string]*PropertyChange),
	}
}

// Forget stops tracking key and drops its changes
func (ct *ChangeTracker) Forget(key string) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	delete(ct.entries, key)
}

// Tracking reports whether key is tracked
func (ct *ChangeTracker) Tracking(key string) bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	_, ok := ct.entries[key]
	return ok
}

// Record stores the new value of a property. It returns true when key has
// just become dirty and a save should be scheduled.
func (ct *ChangeTracker) Record(key, property string, value any) bool {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	e, ok := ct.entries[key]
	if !ok {
		return false
	}
	old := e.original[property]
	if reflect.DeepEqual(old, value) {
		delete(e.changes, property)
		return false
	}
	e.changes[property] = &PropertyChange{Property: property, OldValue: old, NewValue: value}
	if e.pending {
		return false
	}
	e.pending = true
	return true
}

// HasChanges reports whether key has unsaved changes
func (ct *ChangeTracker) HasChanges(key string) bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	e, ok := ct.entries[key]
	return ok && len(e.changes) > 0
}

// Changes returns the unsaved changes of key sorted by property
func (ct *ChangeTracker) Changes(key string) []PropertyChange {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	e, ok := ct.entries[key]
	if !ok {
		return nil
	}
	out := make([]PropertyChange, 0, len(e.changes))
	for _, c := range e.changes {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Property < out[j].Property })
	return out
}

// Take returns the unsaved changes of key as a partial snapshot and marks
// them saved. It returns nil when there is nothing to save.
func (ct *ChangeTracker) Take(key string) (*Snapshot, []PropertyChange) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	e, ok := ct.entries[key]
	if !ok {
		return nil, nil
	}
	e.pending = false
	if len(e.changes) == 0 {
		return nil, nil
	}
	snap := &Snapshot{Type: e.typeName, Properties: make(map[string]any, len(e.changes))}
	taken := make([]PropertyChange, 0, len(e.changes))
	for name, c := range e.changes {
		snap.Properties[name] = c.NewValue
		e.original[name] = c.NewValue
		taken = append(taken, *c)
	}
	e.changes = make(map[string]*PropertyChange)
	return snap, taken
}

// Requeue puts changes returned by Take back as unsaved, unless newer
// values were recorded meanwhile.
func (ct *ChangeTracker) Requeue(key string, changes []PropertyChange) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	e, ok := ct.entries[key]
	if !ok {
		return
	}
	for _, c := range changes {
		e.original[c.Property] = c.OldValue
		if newer, ok := e.changes[c.Property]; ok {
			newer.OldValue = c.OldValue
			continue
		}
		change := c
		e.changes[c.Property] = &change
	}
}

// DirtyKeys returns the keys with unsaved changes
func (ct *ChangeTracker) DirtyKeys() []string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	keys := make([]string, 0, len(ct.entries))
	for k, e := range ct.entries {
		if len(e.changes) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
