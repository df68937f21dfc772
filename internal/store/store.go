// Package store persists object property snapshots in memory, redis or a
// SQL database.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/conduit-lang/objrt/runtime/object"
)

var (
	// ErrNotFound is returned when no snapshot is stored under a key
	ErrNotFound = errors.New("snapshot not found")

	// ErrTypeMismatch is returned when a snapshot is loaded into an instance of another type
	ErrTypeMismatch = errors.New("snapshot type mismatch")

	// ErrClosed is returned by a backend after Close
	ErrClosed = errors.New("store closed")
)

// typeField holds the type name next to the properties in redis hashes and SQL rows
const typeField = "__type"

// IsNotFound returns true if err is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Snapshot is the persisted state of one instance. Property values are
// plain Go values: bool, int64, uint64, float64 or string.
type Snapshot struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// Names returns the property names in sorted order
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Snapshot) clone() *Snapshot {
	c := &Snapshot{Type: s.Type, Properties: make(map[string]any, len(s.Properties))}
	for k, v := range s.Properties {
		c.Properties[k] = v
	}
	return c
}

// Backend stores snapshots by key
type Backend interface {
	// Put replaces the snapshot stored under key
	Put(ctx context.Context, key string, snap *Snapshot) error
	// Merge updates the listed properties, creating the snapshot if needed
	Merge(ctx context.Context, key string, snap *Snapshot) error
	// Get returns the snapshot under key or ErrNotFound
	Get(ctx context.Context, key string) (*Snapshot, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Store saves and restores instances
type Store interface {
	Save(ctx context.Context, key string, obj *object.Object) error
	Load(ctx context.Context, key string, obj *object.Object) error
	Delete(ctx context.Context, key string) error
}

// ObjectStore implements Store on top of a Backend
type ObjectStore struct {
	backend Backend
	logger  *zap.Logger
}

// NewObjectStore wraps backend. A nil logger disables logging.
func NewObjectStore(backend Backend, logger *zap.Logger) *ObjectStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ObjectStore{backend: backend, logger: logger}
}

// Backend returns the underlying backend
func (s *ObjectStore) Backend() Backend {
	return s.backend
}

// Save captures obj and replaces the snapshot under key
func (s *ObjectStore) Save(ctx context.Context, key string, obj *object.Object) error {
	snap, err := Capture(obj)
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, key, snap); err != nil {
		return fmt.Errorf("failed to save '%s': %w", key, err)
	}
	s.logger.Debug("snapshot saved",
		zap.String("key", key),
		zap.String("type", snap.Type),
		zap.Int("properties", len(snap.Properties)))
	return nil
}

// Load restores the snapshot under key into obj
func (s *ObjectStore) Load(ctx context.Context, key string, obj *object.Object) error {
	snap, err := s.backend.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to load '%s': %w", key, err)
	}
	return Restore(obj, snap)
}

// Delete removes the snapshot under key
func (s *ObjectStore) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Close closes the backend
func (s *ObjectStore) Close() error {
	return s.backend.Close()
}

// Persistable reports whether a property is part of snapshots: readable,
// writable after construction and of a scalar kind.
func Persistable(p *object.ParamSpec) bool {
	if !p.IsReadable() || !p.IsWritable() {
		return false
	}
	switch p.ValueType() {
	case object.TypeBool, object.TypeInt, object.TypeUint, object.TypeDouble, object.TypeString:
		return true
	}
	return false
}

// Capture takes a snapshot of obj's persistable properties
func Capture(obj *object.Object) (*Snapshot, error) {
	snap := &Snapshot{Type: obj.TypeName(), Properties: make(map[string]any)}
	for _, p := range obj.ListProperties() {
		if !Persistable(p) {
			continue
		}
		v, err := obj.Property(p.Name())
		if err != nil {
			return nil, err
		}
		snap.Properties[p.Name()] = v.Interface()
	}
	return snap, nil
}

// Restore applies snap to obj. Properties that no longer exist or are not
// persistable are skipped; the rest are set together or not at all.
func Restore(obj *object.Object, snap *Snapshot) error {
	if snap.Type != obj.TypeName() {
		return fmt.Errorf("%w: snapshot of %s loaded into %s", ErrTypeMismatch, snap.Type, obj.TypeName())
	}
	props := make([]object.Property, 0, len(snap.Properties))
	for _, name := range snap.Names() {
		pspec := obj.FindProperty(name)
		if pspec == nil || !Persistable(pspec) {
			continue
		}
		v, err := decodeValue(snap.Properties[name], pspec.ValueType())
		if err != nil {
			return fmt.Errorf("property '%s': %w", name, err)
		}
		props = append(props, object.Property{Name: name, Value: v})
	}
	return obj.SetProperties(props...)
}

// decodeValue converts a stored value to a Value of type t. Numbers read
// back from JSON arrive as json.Number.
func decodeValue(raw any, t object.Type) (object.Value, error) {
	v := object.ValueOf(raw)
	if n, ok := raw.(json.Number); ok {
		v = object.StringValue(n.String())
	}
	out, ok := object.Transform(v, t)
	if !ok {
		return object.Value{}, fmt.Errorf("%w: cannot convert %v to %s", object.ErrTypeMismatch, raw, t)
	}
	return out, nil
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("json marshal error: %w", err)
	}
	return string(data), nil
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("json unmarshal error: %w", err)
	}
	return v, nil
}
