package object

import (
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// HandlerID identifies a connection. Ids are unique within a registry and
// never reused.
type HandlerID uint64

// disconnectedHistory is how many disconnected ids an object remembers so
// that repeated operations on them report ErrAlreadyDisconnected
const disconnectedHistory = 64

type handlerTombstone struct {
	id     HandlerID
	signal string
}

// HandlerState is the lifecycle state of a connection
type HandlerState int32

const (
	HandlerConnected HandlerState = iota
	HandlerBlocked
	HandlerDisconnected
)

func (s HandlerState) String() string {
	switch s {
	case HandlerConnected:
		return "connected"
	case HandlerBlocked:
		return "blocked"
	default:
		return "disconnected"
	}
}

type handlerEntry struct {
	id     HandlerID
	signal *SignalSpec
	detail string
	after  bool
	fn     Handler
	state  atomic.Int32
}

func (h *handlerEntry) matches(spec *SignalSpec, detail string) bool {
	return h.signal == spec && (h.detail == "" || h.detail == detail)
}

func (o *Object) resolveSignal(full string) (*SignalSpec, string, error) {
	name, detail, ok := parseSignalName(full)
	if !ok {
		return nil, "", &SignalError{Type: o.class.name, Signal: full, Index: -1, Err: ErrUnknownSignal,
			Detail: "malformed signal name"}
	}
	spec := o.class.FindSignal(name)
	if spec == nil {
		return nil, "", &SignalError{Type: o.class.name, Signal: full, Index: -1, Err: ErrUnknownSignal}
	}
	if detail != "" && !spec.flags.Has(SignalDetailed) {
		return nil, "", &SignalError{Type: o.class.name, Signal: full, Index: -1, Err: ErrUnknownSignal,
			Detail: "signal does not accept a detail"}
	}
	return spec, detail, nil
}

// Connect attaches h to the signal "name" or "name::detail". Handlers
// connected with after run after the RUN_LAST class handler. A nil handler
// panics.
func (o *Object) Connect(name string, after bool, h Handler) (HandlerID, error) {
	if h == nil {
		panic("object: Connect with nil handler")
	}
	spec, detail, err := o.resolveSignal(name)
	if err != nil {
		return 0, err
	}

	e := &handlerEntry{
		id:     HandlerID(o.class.registry.nextHandler.Add(1)),
		signal: spec,
		detail: detail,
		after:  after,
		fn:     h,
	}

	o.sigMu.Lock()
	handlers := make([]*handlerEntry, len(o.handlers), len(o.handlers)+1)
	copy(handlers, o.handlers)
	o.handlers = append(handlers, e)
	o.byID[e.id] = e
	o.sigMu.Unlock()

	o.class.registry.logger.Debug("handler connected",
		zap.String("type", o.class.name),
		zap.String("signal", name),
		zap.Uint64("handler", uint64(e.id)),
		zap.Bool("after", after))
	return e.id, nil
}

func (o *Object) lookupHandler(id HandlerID) (*handlerEntry, error) {
	o.sigMu.Lock()
	defer o.sigMu.Unlock()
	if e := o.byID[id]; e != nil {
		return e, nil
	}
	return nil, o.missingHandlerLocked(id)
}

// missingHandlerLocked reports an id absent from byID. sigMu must be held.
func (o *Object) missingHandlerLocked(id HandlerID) error {
	for _, t := range o.disconnected {
		if t.id == id {
			return o.disconnectedError(id, t.signal)
		}
	}
	return &SignalError{Type: o.class.name, Index: -1, Err: ErrUnknownHandler,
		Detail: fmt.Sprintf("handler %d", id)}
}

func (o *Object) disconnectedError(id HandlerID, signal string) error {
	return &SignalError{Type: o.class.name, Signal: signal, Index: -1, Err: ErrAlreadyDisconnected,
		Detail: fmt.Sprintf("handler %d", id)}
}

// BlockHandler stops the handler from being invoked until it is unblocked.
// Blocking a blocked handler is a no-op.
func (o *Object) BlockHandler(id HandlerID) error {
	e, err := o.lookupHandler(id)
	if err != nil {
		return err
	}
	if !e.state.CompareAndSwap(int32(HandlerConnected), int32(HandlerBlocked)) &&
		HandlerState(e.state.Load()) == HandlerDisconnected {
		return o.disconnectedError(e.id, e.signal.name)
	}
	return nil
}

// UnblockHandler resumes a blocked handler. Unblocking a connected handler is a no-op.
func (o *Object) UnblockHandler(id HandlerID) error {
	e, err := o.lookupHandler(id)
	if err != nil {
		return err
	}
	if !e.state.CompareAndSwap(int32(HandlerBlocked), int32(HandlerConnected)) &&
		HandlerState(e.state.Load()) == HandlerDisconnected {
		return o.disconnectedError(e.id, e.signal.name)
	}
	return nil
}

// Disconnect removes the handler for good. An emission already in progress
// will not call it again. The most recent disconnected ids keep reporting
// ErrAlreadyDisconnected; older ones become unknown.
func (o *Object) Disconnect(id HandlerID) error {
	o.sigMu.Lock()
	defer o.sigMu.Unlock()

	e := o.byID[id]
	if e == nil {
		return o.missingHandlerLocked(id)
	}
	e.state.Store(int32(HandlerDisconnected))
	delete(o.byID, id)
	o.disconnected = append(o.disconnected, handlerTombstone{id: id, signal: e.signal.name})
	if len(o.disconnected) > disconnectedHistory {
		o.disconnected = append(o.disconnected[:0], o.disconnected[len(o.disconnected)-disconnectedHistory:]...)
	}

	handlers := make([]*handlerEntry, 0, len(o.handlers))
	for _, h := range o.handlers {
		if h != e {
			handlers = append(handlers, h)
		}
	}
	o.handlers = handlers

	o.class.registry.logger.Debug("handler disconnected",
		zap.String("type", o.class.name),
		zap.String("signal", e.signal.name),
		zap.Uint64("handler", uint64(id)))
	return nil
}

// HandlerState returns the state of a connection
func (o *Object) HandlerState(id HandlerID) (HandlerState, error) {
	e, err := o.lookupHandler(id)
	if errors.Is(err, ErrAlreadyDisconnected) {
		return HandlerDisconnected, nil
	}
	if err != nil {
		return HandlerDisconnected, err
	}
	return HandlerState(e.state.Load()), nil
}

// HasHandlerPending reports whether an unblocked handler is connected to name
func (o *Object) HasHandlerPending(name string) bool {
	spec, detail, err := o.resolveSignal(name)
	if err != nil {
		return false
	}
	for _, h := range o.snapshotHandlers() {
		if h.matches(spec, detail) && HandlerState(h.state.Load()) == HandlerConnected {
			return true
		}
	}
	return false
}

func (o *Object) snapshotHandlers() []*handlerEntry {
	o.sigMu.Lock()
	defer o.sigMu.Unlock()
	return o.handlers
}

func (o *Object) disconnectAll() {
	o.sigMu.Lock()
	handlers := o.handlers
	o.handlers = nil
	clear(o.byID)
	o.disconnected = nil
	o.sigMu.Unlock()

	for _, h := range handlers {
		h.state.Store(int32(HandlerDisconnected))
	}
}
