package inspect

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/objrt/runtime/object"
)

func (s *Server) listTypes(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	types := make([]TypeInfo, 0)
	for _, t := range s.reg.Types() {
		c, err := s.reg.Class(t)
		if err != nil {
			continue
		}
		info := newTypeInfo(s.reg, c)
		if kind != "" && info.Kind != kind {
			continue
		}
		types = append(types, info)
	}
	writeJSON(w, http.StatusOK, types)
}

func (s *Server) showType(w http.ResponseWriter, r *http.Request) {
	c, err := s.reg.ClassByName(chi.URLParam(r, "name"))
	if err != nil {
		writeObjectError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTypeDetail(s.reg, c))
}

func (s *Server) listInstances(w http.ResponseWriter, r *http.Request) {
	var filter object.Type
	if name := r.URL.Query().Get("type"); name != "" {
		t, ok := s.reg.Lookup(name)
		if !ok {
			writeObjectError(w, r, fmt.Errorf("type '%s': %w", name, object.ErrUnknownType))
			return
		}
		filter = t
	}

	instances := make([]InstanceInfo, 0, s.tracker.Len())
	s.tracker.Each(func(obj *object.Object) {
		if filter != object.TypeInvalid && !obj.IsA(filter) {
			return
		}
		info := newInstanceInfo(obj)
		// the reference held while listing is not the caller's
		info.RefCount--
		instances = append(instances, info)
	})
	writeJSON(w, http.StatusOK, instances)
}

// instance resolves the {id} parameter to a strong reference. It writes
// the error response and returns nil when the instance is not available.
func (s *Server) instance(w http.ResponseWriter, r *http.Request) *object.Object {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ID", fmt.Sprintf("invalid instance id '%s'", raw))
		return nil
	}
	obj := s.tracker.Lookup(id)
	if obj == nil {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("instance %s not found", id))
		return nil
	}
	return obj
}

func (s *Server) showInstance(w http.ResponseWriter, r *http.Request) {
	obj := s.instance(w, r)
	if obj == nil {
		return
	}
	defer obj.Unref()

	d := InstanceDetail{
		InstanceInfo: newInstanceInfo(obj),
		Properties:   make(map[string]any),
	}
	d.RefCount--
	for _, p := range obj.ListProperties() {
		if !p.IsReadable() {
			continue
		}
		v, err := obj.Property(p.Name())
		if err != nil {
			continue
		}
		d.Properties[p.Name()] = jsonValue(v)
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) getProperty(w http.ResponseWriter, r *http.Request) {
	obj := s.instance(w, r)
	if obj == nil {
		return
	}
	defer obj.Unref()

	s.writeProperty(w, r, obj, chi.URLParam(r, "prop"))
}

func (s *Server) writeProperty(w http.ResponseWriter, r *http.Request, obj *object.Object, name string) {
	v, err := obj.Property(name)
	if err != nil {
		writeObjectError(w, r, err)
		return
	}
	t, _ := obj.PropertyType(name)
	writeJSON(w, http.StatusOK, PropertyValue{Name: name, Type: s.reg.Name(t), Value: jsonValue(v)})
}

func (s *Server) setProperty(w http.ResponseWriter, r *http.Request) {
	obj := s.instance(w, r)
	if obj == nil {
		return
	}
	defer obj.Unref()

	name := chi.URLParam(r, "prop")
	pspec := obj.FindProperty(name)
	if pspec == nil {
		writeObjectError(w, r, &object.PropertyError{Type: obj.TypeName(), Property: name, Op: "set", Err: object.ErrUnknownProperty})
		return
	}

	var req SetPropertyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	v, release, err := s.toValue(req.Value, pspec.ValueType())
	if err != nil {
		writeObjectError(w, r, fmt.Errorf("property '%s': %w", name, err))
		return
	}
	defer release()

	if err := obj.SetProperty(name, v); err != nil {
		writeObjectError(w, r, err)
		return
	}
	s.logger.Debug("property set",
		zap.String("instance", obj.String()),
		zap.String("property", name),
		zap.String("by", Subject(r.Context())))
	s.writeProperty(w, r, obj, name)
}

func (s *Server) emitSignal(w http.ResponseWriter, r *http.Request) {
	obj := s.instance(w, r)
	if obj == nil {
		return
	}
	defer obj.Unref()

	full := chi.URLParam(r, "signal")
	name, _, _ := strings.Cut(full, "::")
	spec := obj.Class().FindSignal(name)
	if spec == nil {
		writeObjectError(w, r, &object.SignalError{Type: obj.TypeName(), Signal: full, Index: -1, Err: object.ErrUnknownSignal})
		return
	}

	var req EmitRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_BODY", err.Error())
			return
		}
	}

	params := spec.ParamTypes()
	args := make([]object.Value, len(req.Args))
	for i, raw := range req.Args {
		if i >= len(params) {
			args[i] = object.ValueOf(raw)
			continue
		}
		v, release, err := s.toValue(raw, params[i])
		if err != nil {
			writeObjectError(w, r, &object.SignalError{Type: obj.TypeName(), Signal: full, Index: i,
				Err: object.ErrArgTypeMismatch, Detail: err.Error()})
			return
		}
		defer release()
		args[i] = v
	}

	ret, err := obj.EmitValues(full, args)
	if err != nil {
		writeObjectError(w, r, err)
		return
	}
	s.logger.Debug("signal emitted",
		zap.String("instance", obj.String()),
		zap.String("signal", full),
		zap.String("by", Subject(r.Context())))
	writeJSON(w, http.StatusOK, EmitResponse{Signal: full, Return: jsonValue(ret)})
}

// toValue converts a decoded JSON value to a Value of type t. Object types
// take an instance id or null. The returned release function drops the
// reference taken on a looked up instance.
func (s *Server) toValue(raw any, t object.Type) (object.Value, func(), error) {
	noop := func() {}

	if s.isObjectType(t) {
		if raw == nil {
			return object.ObjectValueAs(t, nil), noop, nil
		}
		str, ok := raw.(string)
		if !ok {
			return object.Value{}, noop, fmt.Errorf("%w: expected instance id", object.ErrTypeMismatch)
		}
		id, err := uuid.Parse(str)
		if err != nil {
			return object.Value{}, noop, fmt.Errorf("%w: invalid instance id '%s'", object.ErrTypeMismatch, str)
		}
		obj := s.tracker.Lookup(id)
		if obj == nil {
			return object.Value{}, noop, fmt.Errorf("instance %s: %w", id, object.ErrNotFound)
		}
		if !obj.IsA(t) {
			obj.Unref()
			return object.Value{}, noop, fmt.Errorf("%w: %s is not a %s", object.ErrTypeMismatch, obj.TypeName(), s.reg.Name(t))
		}
		return object.ObjectValueAs(t, obj), obj.Unref, nil
	}

	if t == object.TypeBoxed {
		return object.BoxedValue(raw), noop, nil
	}

	var v object.Value
	switch x := raw.(type) {
	case json.Number:
		v = object.StringValue(x.String())
	case bool, string:
		v = object.ValueOf(x)
	default:
		return object.Value{}, noop, fmt.Errorf("%w: cannot use %v as %s", object.ErrTypeMismatch, raw, s.reg.Name(t))
	}
	out, ok := object.Transform(v, t)
	if !ok {
		return object.Value{}, noop, fmt.Errorf("%w: cannot use %v as %s", object.ErrTypeMismatch, raw, s.reg.Name(t))
	}
	return out, noop, nil
}

func (s *Server) isObjectType(t object.Type) bool {
	c, err := s.reg.Class(t)
	if err != nil {
		return false
	}
	return c.IsInterface() || s.reg.IsA(t, object.TypeObject)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
