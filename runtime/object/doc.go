// Package object implements a dynamic object runtime: a registry of types
// with single inheritance and interfaces, reference-counted instances, typed
// properties with validation, a signal bus and weak references.
//
// # Overview
//
// Types are registered at startup into a Registry. Each registered type has
// a Class holding its property and signal tables and its virtual slots.
// Classes are open for additions until the first instance of the type or of
// a descendant is constructed; after that they are sealed and read without
// locking.
//
// The package defines several key types:
//
//   - Registry: owns classes and issues Type ids
//   - Class: per-type metadata, property and signal tables, virtual slots
//   - Object: a reference-counted instance
//   - Value: a tagged value used for properties and signal arguments
//   - ParamSpec: a property descriptor with flags, default and validators
//   - SignalSpec: a signal descriptor with flags, parameter and return types
//   - WeakRef: a reference that does not keep its object alive
//
// # Example Usage
//
// Registering a type and using an instance:
//
//	reg := object.NewRegistry(object.WithLogger(logger))
//	button, err := reg.Register(object.TypeDefinition{
//		Name: "Button",
//		Properties: []*object.ParamSpec{
//			object.StringParam("label", "", object.ParamReadWrite),
//			object.IntParam("width", 0, 1000, 100, object.ParamReadWrite|object.ParamConstruct),
//		},
//		Signals: []*object.SignalSpec{
//			object.NewSignal("clicked", object.SignalRunLast, []object.Type{object.TypeInt}, object.TypeNone),
//		},
//	})
//
//	obj, err := reg.New(button, object.Prop("label", "OK"))
//	defer obj.Unref()
//
//	obj.ConnectNotify("label", func(o *object.Object, p *object.ParamSpec) {
//		fmt.Println("label changed")
//	})
//	obj.Set("label", "Cancel")
//	obj.Emit("clicked", 1)
//
// # Ownership
//
// New returns an owned reference. Every Ref must be paired with an Unref;
// the last Unref tears the instance down. Instances of types deriving from
// InitiallyUnowned can also be created with NewUnowned, which returns a
// floating reference that a container takes over with Sink.
//
// # Signals
//
// An emission runs, in order: the RUN_FIRST class handler, handlers
// connected without after, the RUN_LAST class handler, handlers connected
// with after, and the RUN_CLEANUP class handler. An accumulator may stop the
// emission early, and so may StopEmission. Property changes emit the
// detailed "notify" signal with the property name as detail.
//
// # Thread Safety
//
// Reference counting, weak references, property access, connection
// management and emission are safe for concurrent use. Handlers run on the
// emitting goroutine and may reenter the runtime.
package object
