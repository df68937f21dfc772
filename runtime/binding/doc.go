/*
Package binding keeps two object properties in sync.

# Overview

A binding watches the notify signal of a source property and writes every
new value to a target property, converting it on the way. Bidirectional
bindings also watch the target. Values pass through object.Transform unless
a custom transform is set, so an int property can drive a string property
and the other way around.

# Example Usage

	b := binding.Bind(slider, "value", label, "text").
		Flags(binding.SyncCreate).
		Build()
	if b == nil {
		// the properties cannot be bound
	}
	defer b.Unbind()

# Ownership

A Binding holds weak references only. It never keeps source or target
alive, and it releases itself when either one is finalized.
*/
package binding
