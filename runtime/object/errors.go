package object

import (
	"errors"
	"fmt"
)

// Error taxonomy. Refined errors wrap one of the roots so callers can test
// either the broad class or the specific condition with errors.Is.
var (
	// ErrNotFound is returned for unknown types, properties, signals and handlers
	ErrNotFound = errors.New("not found")

	// ErrNotWritable is returned when a property cannot be written in the current phase
	ErrNotWritable = errors.New("not writable")

	// ErrNotReadable is returned when a property lacks the readable flag
	ErrNotReadable = errors.New("not readable")

	// ErrTypeMismatch is returned when a value does not hold the declared type
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrArgTypeMismatch is returned when a signal argument has the wrong type
	ErrArgTypeMismatch = errors.New("argument type mismatch")

	// ErrArityMismatch is returned when a signal is emitted with the wrong number of arguments
	ErrArityMismatch = errors.New("arity mismatch")

	// ErrValidationFailed is returned when a value had to be coerced and the property is strict
	ErrValidationFailed = errors.New("validation failed")

	// ErrAlreadyDisconnected is returned for operations on a disconnected handler
	ErrAlreadyDisconnected = errors.New("handler already disconnected")

	// ErrConstruct is returned when an instance cannot be constructed
	ErrConstruct = errors.New("cannot construct instance")

	// ErrDuplicateType is returned when a type name is registered twice
	ErrDuplicateType = errors.New("type already registered")

	// ErrDuplicateProperty is returned when a class installs the same property name twice
	ErrDuplicateProperty = errors.New("property already installed")

	// ErrDuplicateSignal is returned when a class adds the same signal name twice
	ErrDuplicateSignal = errors.New("signal already registered")

	// ErrSealed is returned when class metadata is modified after the first instance exists
	ErrSealed = errors.New("class is sealed")

	// ErrNoEmission is returned by StopEmission outside an active emission
	ErrNoEmission = errors.New("signal is not being emitted")

	// ErrInvalidDefinition is returned for malformed type, property or signal definitions
	ErrInvalidDefinition = errors.New("invalid definition")

	ErrUnknownType     = fmt.Errorf("unknown type: %w", ErrNotFound)
	ErrUnknownProperty = fmt.Errorf("unknown property: %w", ErrNotFound)
	ErrUnknownSignal   = fmt.Errorf("unknown signal: %w", ErrNotFound)
	ErrUnknownHandler  = fmt.Errorf("unknown handler: %w", ErrNotFound)

	ErrAbstract        = fmt.Errorf("abstract type: %w", ErrConstruct)
	ErrNotInstantiable = fmt.Errorf("type is not instantiable: %w", ErrConstruct)
	ErrNotFloating     = fmt.Errorf("type is not initially unowned: %w", ErrConstruct)
)

// PropertyError describes a failed property operation
type PropertyError struct {
	Type     string
	Property string
	Op       string // "set", "get" or "construct"
	Err      error
	Detail   string
}

// Error implements the error interface
func (e *PropertyError) Error() string {
	msg := fmt.Sprintf("%s property '%s' of type '%s': %v", e.Op, e.Property, e.Type, e.Err)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Unwrap returns the underlying error
func (e *PropertyError) Unwrap() error {
	return e.Err
}

// SignalError describes a failed connect or emit. Index is the offending
// argument position, or -1 when the error is not tied to an argument.
type SignalError struct {
	Type   string
	Signal string
	Index  int
	Err    error
	Detail string
}

// Error implements the error interface
func (e *SignalError) Error() string {
	msg := fmt.Sprintf("signal '%s' of type '%s': %v", e.Signal, e.Type, e.Err)
	if e.Index >= 0 {
		msg = fmt.Sprintf("signal '%s' of type '%s': %v in argument %d", e.Signal, e.Type, e.Err, e.Index)
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Unwrap returns the underlying error
func (e *SignalError) Unwrap() error {
	return e.Err
}

// ConstructError is returned by Registry.New. It always matches ErrConstruct
// and unwraps to the cause (for example a *PropertyError).
type ConstructError struct {
	Type string
	Err  error
}

// Error implements the error interface
func (e *ConstructError) Error() string {
	return fmt.Sprintf("cannot construct '%s': %v", e.Type, e.Err)
}

// Unwrap returns the underlying error
func (e *ConstructError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrConstruct
func (e *ConstructError) Is(target error) bool {
	return target == ErrConstruct
}

// ContractViolation is the panic value raised when a signal handler breaks
// the return-value contract of its signal. It is a programming error in the
// handler, never a data-dependent condition.
type ContractViolation struct {
	Type   string
	Signal string
	Detail string
}

// Error implements the error interface
func (c *ContractViolation) Error() string {
	return fmt.Sprintf("signal '%s' of type '%s': contract violation: %s", c.Signal, c.Type, c.Detail)
}

// IsNotFound returns true if err is any not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNotWritable returns true if err is ErrNotWritable
func IsNotWritable(err error) bool {
	return errors.Is(err, ErrNotWritable)
}

// IsTypeMismatch returns true if err is a property or argument type mismatch
func IsTypeMismatch(err error) bool {
	return errors.Is(err, ErrTypeMismatch) || errors.Is(err, ErrArgTypeMismatch)
}

// IsValidationFailed returns true if err is ErrValidationFailed
func IsValidationFailed(err error) bool {
	return errors.Is(err, ErrValidationFailed)
}
